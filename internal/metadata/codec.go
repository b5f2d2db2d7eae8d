package metadata

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"pixrepo/internal/domain"
)

type sidecar struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Tags        []string  `json:"tags"`
	Size        int64     `json:"size"`
	Width       int       `json:"width"`
	Height      int       `json:"height"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// looseSidecar accepts records written by other clients: numbers may be floats
// or strings and timestamps may be in any common layout.
type looseSidecar struct {
	ID          any `json:"id"`
	Name        any `json:"name"`
	Description any `json:"description"`
	Tags        any `json:"tags"`
	Size        any `json:"size"`
	Width       any `json:"width"`
	Height      any `json:"height"`
	CreatedAt   any `json:"createdAt"`
	UpdatedAt   any `json:"updatedAt"`
}

func encode(md domain.ImageMetadata) ([]byte, error) {
	tags := md.Tags
	if tags == nil {
		tags = []string{}
	}
	doc := sidecar{
		ID:          md.ID,
		Name:        md.Name,
		Description: md.Description,
		Tags:        tags,
		Size:        md.Size,
		Width:       md.Width,
		Height:      md.Height,
		CreatedAt:   md.CreatedAt.UTC(),
		UpdatedAt:   md.UpdatedAt.UTC(),
	}
	return json.MarshalIndent(doc, "", "  ")
}

func decode(data []byte) (domain.ImageMetadata, error) {
	var doc looseSidecar
	if err := json.Unmarshal(data, &doc); err != nil {
		return domain.ImageMetadata{}, fmt.Errorf("decode sidecar: %w", err)
	}
	return domain.ImageMetadata{
		ID:          asString(doc.ID),
		Name:        asString(doc.Name),
		Description: asString(doc.Description),
		Tags:        asStrings(doc.Tags),
		Size:        asInt64(doc.Size),
		Width:       int(asInt64(doc.Width)),
		Height:      int(asInt64(doc.Height)),
		CreatedAt:   asTime(doc.CreatedAt),
		UpdatedAt:   asTime(doc.UpdatedAt),
	}, nil
}

func asString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	}
	return ""
}

func asStrings(v any) []string {
	list, ok := v.([]any)
	if !ok {
		return []string{}
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		if s, ok := item.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}

func asInt64(v any) int64 {
	switch t := v.(type) {
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return 0
		}
		return int64(t)
	case string:
		if f, err := strconv.ParseFloat(t, 64); err == nil {
			return int64(f)
		}
	}
	return 0
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000Z0700",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func asTime(v any) time.Time {
	switch t := v.(type) {
	case string:
		for _, layout := range timeLayouts {
			if ts, err := time.Parse(layout, t); err == nil {
				return ts
			}
		}
	case float64:
		// epoch milliseconds
		return time.UnixMilli(int64(t)).UTC()
	}
	return time.Time{}
}
