package registry

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
)

// Meta is the [template] header of a template file.
type Meta struct {
	Name        string `toml:"name"`
	Description string `toml:"description"`
	Version     string `toml:"version"`
	SourceURL   string `toml:"source_url"`
}

// ParseMeta validates that content is TOML and extracts its [template]
// header. Missing fields fall back to name "unnamed" and version "1.0.0".
// The rest of the document is not interpreted.
func ParseMeta(content []byte) (Meta, error) {
	var doc struct {
		Template Meta `toml:"template"`
	}
	if _, err := toml.Decode(string(content), &doc); err != nil {
		return Meta{}, fmt.Errorf("invalid template format: %w", err)
	}

	meta := doc.Template
	if meta.Name == "" {
		meta.Name = "unnamed"
	}
	if meta.Version == "" {
		meta.Version = "1.0.0"
	}
	return meta, nil
}

// Slug returns the registry name derived from the template name.
func (m Meta) Slug() string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(m.Name)), " ", "-")
}
