package metadata

import (
	"path"
	"regexp"
	"strings"
)

// Dir is the directory, relative to a source's base path, that holds sidecars.
const Dir = ".metadata"

var (
	withExt    = regexp.MustCompile(`^(.*)\.metadata\.([^.]+)\.json$`)
	withoutExt = regexp.MustCompile(`^(.*)\.metadata\.json$`)
)

// FileName maps an image file name to its sidecar file name:
// foo.jpg becomes foo.metadata.jpg.json, foo becomes foo.metadata.json.
func FileName(imageName string) string {
	ext := path.Ext(imageName)
	if len(ext) <= 1 {
		return imageName + ".metadata.json"
	}
	return strings.TrimSuffix(imageName, ext) + ".metadata" + ext + ".json"
}

// ImageName is the inverse of FileName. It reports false for names that do not
// follow the sidecar convention.
func ImageName(sidecarName string) (string, bool) {
	if m := withExt.FindStringSubmatch(sidecarName); m != nil {
		return m[1] + "." + m[2], true
	}
	if m := withoutExt.FindStringSubmatch(sidecarName); m != nil {
		return m[1], true
	}
	return "", false
}
