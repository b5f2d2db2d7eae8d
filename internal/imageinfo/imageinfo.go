// Package imageinfo inspects uploaded bytes: format, MIME type and pixel size.
package imageinfo

import (
	"bytes"
	"encoding/xml"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"path"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

var extensions = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".bmp":  "image/bmp",
	".webp": "image/webp",
	".svg":  "image/svg+xml",
}

// IsImageName reports whether name carries a recognized image extension.
func IsImageName(name string) bool {
	_, ok := extensions[strings.ToLower(path.Ext(name))]
	return ok
}

// MimeTypeByName guesses the MIME type from the file extension alone.
func MimeTypeByName(name string) string {
	if mt, ok := extensions[strings.ToLower(path.Ext(name))]; ok {
		return mt
	}
	return "application/octet-stream"
}

// Info describes an image payload.
type Info struct {
	MimeType string
	Width    int
	Height   int
}

// Inspect sniffs data. Unknown or undecodable payloads yield zero dimensions and
// the MIME type implied by name.
func Inspect(name string, data []byte) Info {
	info := Info{MimeType: MimeTypeByName(name)}
	if len(data) == 0 {
		return info
	}
	if mt := mimetype.Detect(data); strings.HasPrefix(mt.String(), "image/") {
		info.MimeType = mt.String()
		if i := strings.IndexByte(info.MimeType, ';'); i >= 0 {
			info.MimeType = info.MimeType[:i]
		}
	}

	if info.MimeType == "image/svg+xml" {
		info.Width, info.Height = svgSize(data)
		return info
	}
	if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		info.Width, info.Height = cfg.Width, cfg.Height
	}
	return info
}

// svgSize reads width/height (or the viewBox) from the root element.
func svgSize(data []byte) (int, int) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	for {
		tok, err := dec.Token()
		if err != nil {
			return 0, 0
		}
		el, ok := tok.(xml.StartElement)
		if !ok || el.Name.Local != "svg" {
			continue
		}
		var w, h int
		var viewBox string
		for _, attr := range el.Attr {
			switch attr.Name.Local {
			case "width":
				w = parseLength(attr.Value)
			case "height":
				h = parseLength(attr.Value)
			case "viewBox":
				viewBox = attr.Value
			}
		}
		if (w == 0 || h == 0) && viewBox != "" {
			if f := strings.Fields(strings.ReplaceAll(viewBox, ",", " ")); len(f) == 4 {
				w, h = parseLength(f[2]), parseLength(f[3])
			}
		}
		return w, h
	}
}

func parseLength(v string) int {
	v = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(v), "px"))
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 {
		return 0
	}
	return int(f)
}
