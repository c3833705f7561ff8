package config

import (
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Profile holds reusable ingestion options stored as YAML.
//
//	text_field: text
//	docvars_from: filenames
//	docvar_sep: "_"
//	docvar_names: [year, president]
//	encoding: [UTF-8]
//	missing: fail
//	verbosity: 2
type Profile struct {
	TextField        string   `json:"textField" yaml:"text_field"`
	DocvarsFrom      string   `json:"docvarsFrom" yaml:"docvars_from"`
	DocvarSep        string   `json:"docvarSep" yaml:"docvar_sep"`
	DocvarNames      []string `json:"docvarNames" yaml:"docvar_names"`
	Encoding         []string `json:"encoding" yaml:"encoding"`
	Missing          string   `json:"missing" yaml:"missing"`
	Verbosity        *int     `json:"verbosity,omitempty" yaml:"verbosity,omitempty"`
	Delimiter        string   `json:"delimiter" yaml:"delimiter"`
	Workers          int      `json:"workers" yaml:"workers"`
	ConverterTimeout string   `json:"converterTimeout" yaml:"converter_timeout"`
}

// ParseProfile parses a YAML profile file.
func ParseProfile(filePath string) (*Profile, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return ParseProfileFromReader(file)
}

// ParseProfileFromReader parses a profile from an io.Reader.
func ParseProfileFromReader(r io.Reader) (*Profile, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse profile: %w", err)
	}

	return &p, nil
}

// Timeout parses ConverterTimeout; an empty value means no timeout.
func (p *Profile) Timeout() (time.Duration, error) {
	if p.ConverterTimeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(p.ConverterTimeout)
	if err != nil {
		return 0, fmt.Errorf("invalid converter_timeout %q: %w", p.ConverterTimeout, err)
	}
	return d, nil
}
