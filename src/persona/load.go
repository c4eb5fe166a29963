package persona

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Source describes where the persona table lives.
type Source struct {
	// Kind is "csv", "yaml" or "supabase". Empty infers csv/yaml from Path.
	Kind  string
	Path  string
	Table string

	SupabaseURL string
	SupabaseKey string
}

// Load reads the catalog from src. Any failure is wrapped in ErrInvalidCatalog
// so callers can treat it as fatal at startup.
func Load(ctx context.Context, src Source) (*Catalog, error) {
	kind := strings.ToLower(strings.TrimSpace(src.Kind))
	if kind == "" {
		switch strings.ToLower(filepath.Ext(src.Path)) {
		case ".yaml", ".yml":
			kind = "yaml"
		default:
			kind = "csv"
		}
	}
	switch kind {
	case "csv", "yaml":
		return LoadFile(src.Path, kind)
	case "supabase":
		return LoadSupabase(ctx, SupabaseConfig{URL: src.SupabaseURL, APIKey: src.SupabaseKey, Table: src.Table})
	default:
		return nil, fmt.Errorf("%w: unsupported source %q", ErrInvalidCatalog, src.Kind)
	}
}

// LoadFile opens path and parses it as kind ("csv" or "yaml").
func LoadFile(path, kind string) (*Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("%w: persona file path is required", ErrInvalidCatalog)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}
	defer f.Close()
	if kind == "yaml" {
		return LoadYAML(f)
	}
	return LoadCSV(f)
}

// LoadCSV parses a persona table with a header row. Columns are matched by
// header name, so their order does not matter; unknown columns are ignored.
func LoadCSV(r io.Reader) (*Catalog, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: reading header: %v", ErrInvalidCatalog, err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	for _, required := range []string{"template_name", "model", "temperature"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("%w: missing column %q", ErrInvalidCatalog, required)
		}
	}

	var personas []Persona
	line := 1
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrInvalidCatalog, line, err)
		}
		field := func(name string) string {
			i, ok := cols[name]
			if !ok || i >= len(rec) {
				return ""
			}
			return strings.TrimSpace(rec[i])
		}
		if field("template_name") == "" && field("model") == "" {
			continue
		}

		temp, err := strconv.ParseFloat(field("temperature"), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: temperature: %v", ErrInvalidCatalog, line, err)
		}
		version := 1
		if v := field("version"); v != "" {
			if version, err = strconv.Atoi(v); err != nil {
				return nil, fmt.Errorf("%w: line %d: version: %v", ErrInvalidCatalog, line, err)
			}
		}

		personas = append(personas, Persona{
			Name:                 field("template_name"),
			Model:                field("model"),
			Temperature:          temp,
			PersonalityPrompt:    field("personality_prompt"),
			SpeakingStyle:        field("speaking_instructions"),
			Tone:                 field("tone"),
			Adaptability:         field("adaptability"),
			LengthPreference:     field("default_length_preference"),
			VocabularyComplexity: field("preferred_vocabulary_complexity"),
			ResponseFormat:       field("default_response_format"),
			UsageGuidance:        field("when_to_use"),
			Version:              version,
		})
	}
	return NewCatalog(personas)
}

// LoadYAML accepts either a top-level list of personas or a document with a
// "personas" key holding that list.
func LoadYAML(r io.Reader) (*Catalog, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}

	var doc struct {
		Personas []Persona `yaml:"personas"`
	}
	if err := yaml.Unmarshal(data, &doc); err == nil && len(doc.Personas) > 0 {
		return NewCatalog(doc.Personas)
	}

	var list []Persona
	if err := yaml.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}
	return NewCatalog(list)
}
