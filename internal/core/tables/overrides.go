package tables

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/JonMunkholm/thermoextract/internal/core"
)

// Overrides extends registered mappings without a rebuild:
//
//	mappings:
//	  earthbank_samples:
//	    tags: ["Sample list"]
//	    fields:
//	      sampleID:
//	        aliases: ["Sample code"]
//	      elevation:
//	        rule: {min: -500, max: 9000}
type Overrides struct {
	Mappings map[string]MappingOverride `yaml:"mappings"`
}

// MappingOverride adds tags and field changes to one mapping.
type MappingOverride struct {
	Description string                   `yaml:"description"`
	Tags        []string                 `yaml:"tags"`
	Fields      map[string]FieldOverride `yaml:"fields"`
}

// FieldOverride adds aliases to a field and optionally replaces its rule.
type FieldOverride struct {
	Aliases []string   `yaml:"aliases"`
	Rule    *core.Rule `yaml:"rule"`
}

// LoadOverrides reads a YAML overrides file and applies it to the registry.
// An empty path is a no-op.
func LoadOverrides(path string) (int, error) {
	if path == "" {
		return 0, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read mapping overrides: %w", err)
	}
	return ApplyOverrides(data)
}

// ApplyOverrides parses YAML overrides and replaces each named mapping with
// its extended version. It returns the number of mappings changed.
func ApplyOverrides(data []byte) (int, error) {
	var o Overrides
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&o); err != nil {
		return 0, fmt.Errorf("parse mapping overrides: %w", err)
	}

	changed := 0
	for key, mo := range o.Mappings {
		m, ok := core.Get(key)
		if !ok {
			return changed, fmt.Errorf("mapping overrides: unknown mapping %q", key)
		}
		updated, err := mo.apply(m)
		if err != nil {
			return changed, fmt.Errorf("mapping overrides %s: %w", key, err)
		}
		if err := core.Replace(updated); err != nil {
			return changed, err
		}
		changed++
	}
	return changed, nil
}

func (mo MappingOverride) apply(m core.TableMapping) (core.TableMapping, error) {
	out := m
	if mo.Description != "" {
		out.Description = mo.Description
	}
	out.Tags = appendUnique(m.Tags, mo.Tags)

	out.Fields = make([]core.FieldMapping, len(m.Fields))
	copy(out.Fields, m.Fields)

	for name, fo := range mo.Fields {
		idx := -1
		for i, f := range out.Fields {
			if strings.EqualFold(f.Name, name) {
				idx = i
				break
			}
		}
		if idx < 0 {
			return m, fmt.Errorf("unknown field %q", name)
		}
		f := out.Fields[idx]
		f.Aliases = appendUnique(f.Aliases, fo.Aliases)
		if fo.Rule != nil {
			rule := *fo.Rule
			f.Rule = &rule
		}
		out.Fields[idx] = f
	}
	return out, nil
}

// appendUnique appends the values of extra not already in base, ignoring case.
func appendUnique(base, extra []string) []string {
	out := append([]string(nil), base...)
	seen := make(map[string]bool, len(base)+len(extra))
	for _, v := range base {
		seen[strings.ToLower(strings.TrimSpace(v))] = true
	}
	for _, v := range extra {
		k := strings.ToLower(strings.TrimSpace(v))
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, strings.TrimSpace(v))
	}
	return out
}
