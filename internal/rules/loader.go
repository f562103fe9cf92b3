// Package rules loads, validates and indexes the declarative interaction rule
// set. Each rule lives in its own YAML or TOML file.
package rules

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/pharmds-ddi-server/data"
	"github.com/pharmds-ddi-server/internal/domain"
	"gopkg.in/yaml.v3"
)

// Format is a rule file encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// ErrNoRules is returned when a rule source contains no rule files.
var ErrNoRules = errors.New("no rule files found")

// FormatFor returns the encoding implied by a file name's extension.
func FormatFor(name string) (Format, bool) {
	switch strings.ToLower(path.Ext(name)) {
	case ".yaml", ".yml":
		return FormatYAML, true
	case ".toml":
		return FormatTOML, true
	default:
		return "", false
	}
}

// IsRuleFile reports whether name has a rule file extension.
func IsRuleFile(name string) bool {
	_, ok := FormatFor(name)
	return ok
}

// Decode parses a single rule document. Unknown keys are errors.
func Decode(raw []byte, format Format) (*File, error) {
	var f File
	switch format {
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(raw))
		dec.KnownFields(true)
		if err := dec.Decode(&f); err != nil {
			return nil, fmt.Errorf("decoding yaml: %w", err)
		}
	case FormatTOML:
		dec := toml.NewDecoder(bytes.NewReader(raw)).DisallowUnknownFields()
		if err := dec.Decode(&f); err != nil {
			return nil, fmt.Errorf("decoding toml: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported rule format %q", format)
	}
	return &f, nil
}

// Parse decodes and validates one rule. source is recorded on the rule.
func Parse(raw []byte, format Format, source string) (*domain.Rule, error) {
	f, err := Decode(raw, format)
	if err != nil {
		return nil, err
	}
	rule, err := f.Rule()
	if err != nil {
		return nil, err
	}
	if err := rule.Validate(); err != nil {
		return nil, err
	}
	rule.Source = source
	return rule, nil
}

// LoadFS loads every rule file directly under dir in fsys. All problems are
// collected, so one run reports every broken file.
func LoadFS(fsys fs.FS, dir string) (*Set, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("reading rule directory: %w", err)
	}

	var (
		loaded   []domain.Rule
		problems []error
	)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		format, ok := FormatFor(entry.Name())
		if !ok {
			continue
		}
		name := path.Join(dir, entry.Name())
		raw, err := fs.ReadFile(fsys, name)
		if err != nil {
			problems = append(problems, fmt.Errorf("%s: %w", name, err))
			continue
		}
		rule, err := Parse(raw, format, name)
		if err != nil {
			problems = append(problems, fmt.Errorf("%s: %w", name, err))
			continue
		}
		loaded = append(loaded, *rule)
	}

	if len(problems) > 0 {
		return nil, fmt.Errorf("loading rules: %w", errors.Join(problems...))
	}
	if len(loaded) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoRules, dir)
	}
	return NewSet(loaded)
}

// LoadDir loads the rule files in a directory on disk.
func LoadDir(dir string) (*Set, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("reading rule directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("rule path %s is not a directory", dir)
	}
	set, err := LoadFS(os.DirFS(dir), ".")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", dir, err)
	}
	return set, nil
}

// LoadEmbedded loads the default rule set compiled into the binary.
func LoadEmbedded() (*Set, error) {
	return LoadFS(data.FS, data.RulesDir)
}

// Load loads dir, or the embedded rule set when dir is empty.
func Load(dir string) (*Set, error) {
	if dir == "" {
		return LoadEmbedded()
	}
	return LoadDir(dir)
}

// Encode writes a rule in the given format.
func Encode(r *domain.Rule, format Format) ([]byte, error) {
	f := FileFromRule(r)
	switch format {
	case FormatYAML:
		return yaml.Marshal(f)
	case FormatTOML:
		return toml.Marshal(f)
	default:
		return nil, fmt.Errorf("unsupported rule format %q", format)
	}
}

// sortRules orders rules by id.
func sortRules(rs []domain.Rule) {
	sort.Slice(rs, func(i, j int) bool { return rs[i].ID < rs[j].ID })
}
