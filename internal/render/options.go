package render

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Options selects goldmark extensions and HTML renderer behaviour.
type Options struct {
	// GFM enables tables, strikethrough, autolinks and task lists.
	GFM bool `yaml:"gfm"`

	// UnsafeHTML passes raw HTML and dangerous links through instead of omitting them.
	UnsafeHTML bool `yaml:"unsafe_html"`

	HardWraps       bool `yaml:"hard_wraps"`
	XHTML           bool `yaml:"xhtml"`
	HeadingIDs      bool `yaml:"heading_ids"`
	Typographer     bool `yaml:"typographer"`
	Footnotes       bool `yaml:"footnotes"`
	DefinitionLists bool `yaml:"definition_lists"`
}

// DefaultOptions is used when no options file is configured.
func DefaultOptions() Options {
	return Options{GFM: true}
}

// LoadOptions reads options from a YAML file. Fields absent from the file
// keep their DefaultOptions value; unknown fields are rejected.
func LoadOptions(path string) (Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Options{}, fmt.Errorf("read render options %s: %w", path, err)
	}
	return ParseOptions(data)
}

// ParseOptions decodes YAML render options. Empty input yields DefaultOptions.
func ParseOptions(data []byte) (Options, error) {
	opts := DefaultOptions()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&opts); err != nil && !errors.Is(err, io.EOF) {
		return Options{}, fmt.Errorf("parse render options: %w", err)
	}
	return opts, nil
}
