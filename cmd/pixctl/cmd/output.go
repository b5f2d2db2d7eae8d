package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"gopkg.in/yaml.v3"

	"pixrepo/internal/domain"
)

const (
	formatTable = "table"
	formatYAML  = "yaml"
	formatJSON  = "json"
)

type sourceView struct {
	ID       string `json:"id" yaml:"id"`
	Name     string `json:"name" yaml:"name"`
	Provider string `json:"provider" yaml:"provider"`
	Owner    string `json:"owner,omitempty" yaml:"owner,omitempty"`
	Repo     string `json:"repo" yaml:"repo"`
	Branch   string `json:"branch,omitempty" yaml:"branch,omitempty"`
	Path     string `json:"path,omitempty" yaml:"path,omitempty"`
	Created  string `json:"created_at" yaml:"created_at"`
}

type imageView struct {
	ID          string   `json:"id" yaml:"id"`
	Name        string   `json:"name" yaml:"name"`
	URL         string   `json:"url" yaml:"url"`
	RawURL      string   `json:"raw_url" yaml:"raw_url"`
	Size        int64    `json:"size" yaml:"size"`
	Width       int      `json:"width,omitempty" yaml:"width,omitempty"`
	Height      int      `json:"height,omitempty" yaml:"height,omitempty"`
	Tags        []string `json:"tags" yaml:"tags"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Updated     string   `json:"updated_at" yaml:"updated_at"`
}

func toSourceViews(sources []domain.Source) []sourceView {
	out := make([]sourceView, len(sources))
	for i, s := range sources {
		out[i] = sourceView{
			ID:       s.ID,
			Name:     s.Name,
			Provider: string(s.Config.Provider),
			Owner:    s.Config.Owner,
			Repo:     s.Config.Repo,
			Branch:   s.Config.Branch,
			Path:     s.Config.Path,
			Created:  stamp(s.CreatedAt),
		}
	}
	return out
}

func toImageViews(items []domain.ImageItem) []imageView {
	out := make([]imageView, len(items))
	for i, item := range items {
		tags := item.Tags
		if tags == nil {
			tags = []string{}
		}
		out[i] = imageView{
			ID:          item.ID,
			Name:        item.Name,
			URL:         item.URL,
			RawURL:      item.RawURL,
			Size:        item.Size,
			Width:       item.Width,
			Height:      item.Height,
			Tags:        tags,
			Description: item.Description,
			Updated:     stamp(item.UpdatedAt),
		}
	}
	return out
}

func stamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// render writes rows in the selected format. header and row describe the
// table form.
func render[T any](w io.Writer, format string, rows []T, header []string, row func(T) []string) error {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(rows); err != nil {
			return err
		}
		return enc.Close()
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(header, "\t"))
	for _, r := range rows {
		fmt.Fprintln(tw, strings.Join(row(r), "\t"))
	}
	return tw.Flush()
}
