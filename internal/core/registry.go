package core

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
)

// FieldType is the expected data type of a canonical field.
type FieldType string

const (
	FieldString  FieldType = "string"
	FieldNumber  FieldType = "number"
	FieldInteger FieldType = "integer"
	FieldBoolean FieldType = "boolean"
)

// Rule constrains a field's value. Nil bounds are unchecked.
type Rule struct {
	Min     *float64 `json:"min,omitempty" yaml:"min,omitempty"`
	Max     *float64 `json:"max,omitempty" yaml:"max,omitempty"`
	Pattern string   `json:"pattern,omitempty" yaml:"pattern,omitempty"`

	re *regexp.Regexp
}

// FieldMapping defines one canonical field and the source column names that
// refer to it.
type FieldMapping struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Type        FieldType `json:"type"`
	Required    bool      `json:"required"`
	Aliases     []string  `json:"aliases"`
	Unit        string    `json:"unit,omitempty"`
	Rule        *Rule     `json:"rule,omitempty"`
}

// TableMapping is the canonical schema for one table kind.
type TableMapping struct {
	Key         string         `json:"key"`   // "earthbank_samples"
	Label       string         `json:"label"` // "Samples"
	Description string         `json:"description"`
	Tags        []string       `json:"tags"` // data-type tags answered by this mapping
	Fields      []FieldMapping `json:"fields"`
}

// Canonical mapping keys.
const (
	MappingSamples        = "earthbank_samples"
	MappingFTDatapoints   = "earthbank_ftDatapoints"
	MappingHeDatapoints   = "earthbank_heDatapoints"
	MappingFTTrackLengths = "earthbank_ftTrackLengthData"
	MappingHeWholeGrain   = "earthbank_heWholeGrainData"
)

var (
	registry   = make(map[string]TableMapping)
	tagIndex   = make(map[string]string)
	registryMu sync.RWMutex
)

// Register adds a table mapping to the registry.
// Panics if the key or a tag is already registered, or a pattern does not compile.
func Register(m TableMapping) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := registry[m.Key]; exists {
		panic(fmt.Sprintf("mapping already registered: %s", m.Key))
	}
	for i := range m.Fields {
		if err := compileRule(m.Fields[i].Rule); err != nil {
			panic(fmt.Sprintf("mapping %s field %s: %v", m.Key, m.Fields[i].Name, err))
		}
	}
	for _, tag := range m.Tags {
		key := normalizeTag(tag)
		if owner, taken := tagIndex[key]; taken {
			panic(fmt.Sprintf("data type %q already mapped to %s", tag, owner))
		}
		tagIndex[key] = m.Key
	}

	registry[m.Key] = m
}

// Replace swaps in an updated mapping for an existing key and reindexes its tags.
func Replace(m TableMapping) error {
	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := registry[m.Key]; !exists {
		return fmt.Errorf("mapping %s: %w", m.Key, ErrNotFound)
	}
	for i := range m.Fields {
		if err := compileRule(m.Fields[i].Rule); err != nil {
			return fmt.Errorf("mapping %s field %s: %w", m.Key, m.Fields[i].Name, err)
		}
	}
	for _, tag := range m.Tags {
		if owner, taken := tagIndex[normalizeTag(tag)]; taken && owner != m.Key {
			return fmt.Errorf("data type %q already mapped to %s", tag, owner)
		}
	}
	for tag, owner := range tagIndex {
		if owner == m.Key {
			delete(tagIndex, tag)
		}
	}
	for _, tag := range m.Tags {
		tagIndex[normalizeTag(tag)] = m.Key
	}
	registry[m.Key] = m
	return nil
}

func compileRule(r *Rule) error {
	if r == nil || r.Pattern == "" {
		return nil
	}
	re, err := regexp.Compile(r.Pattern)
	if err != nil {
		return fmt.Errorf("invalid pattern %q: %w", r.Pattern, err)
	}
	r.re = re
	return nil
}

// Get returns a mapping by key.
func Get(key string) (TableMapping, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	m, ok := registry[key]
	return m, ok
}

// ForDataType resolves a data-type tag such as "AFT ages", or a mapping key,
// to its mapping. Tag matching is case-insensitive and ignores extra whitespace.
func ForDataType(tag string) (TableMapping, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	if m, ok := registry[strings.TrimSpace(tag)]; ok {
		return m, true
	}
	key, ok := tagIndex[normalizeTag(tag)]
	if !ok {
		return TableMapping{}, false
	}
	m, ok := registry[key]
	return m, ok
}

// All returns all registered mappings sorted by key.
func All() []TableMapping {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]TableMapping, 0, len(registry))
	for _, m := range registry {
		result = append(result, m)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Key < result[j].Key
	})

	return result
}

// MappingCount returns the number of registered mappings.
func MappingCount() int {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return len(registry)
}

// Clear removes all registered mappings.
// Primarily useful for testing.
func Clear() {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = make(map[string]TableMapping)
	tagIndex = make(map[string]string)
}

func normalizeTag(tag string) string {
	return strings.ToLower(strings.Join(strings.Fields(tag), " "))
}

// FindField resolves a source column header to a canonical field.
// Canonical names are checked before aliases; comparison is case-insensitive.
func (m TableMapping) FindField(header string) (FieldMapping, bool) {
	h := strings.ToLower(strings.TrimSpace(header))
	if h == "" {
		return FieldMapping{}, false
	}
	for _, f := range m.Fields {
		if strings.ToLower(f.Name) == h {
			return f, true
		}
	}
	for _, f := range m.Fields {
		for _, a := range f.Aliases {
			if strings.ToLower(strings.TrimSpace(a)) == h {
				return f, true
			}
		}
	}
	return FieldMapping{}, false
}

// RequiredFields returns the mapping's required fields in declaration order.
func (m TableMapping) RequiredFields() []FieldMapping {
	var out []FieldMapping
	for _, f := range m.Fields {
		if f.Required {
			out = append(out, f)
		}
	}
	return out
}

// MappingDescription renders the schema as prompt text for the analysis service.
func MappingDescription(m TableMapping) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**Table: %s** - %s\n\n**Fields:**\n\n", m.Key, m.Description)
	for _, f := range m.Fields {
		fmt.Fprintf(&b, "- **%s**", f.Name)
		if f.Required {
			b.WriteString(" (REQUIRED)")
		}
		fmt.Fprintf(&b, "\n  - Description: %s\n  - Data Type: %s\n", f.Description, f.Type)
		if f.Unit != "" {
			fmt.Fprintf(&b, "  - Unit: %s\n", f.Unit)
		}
		fmt.Fprintf(&b, "  - Common aliases: %s\n", strings.Join(f.Aliases, ", "))
		if f.Rule != nil {
			var rules []string
			if f.Rule.Min != nil {
				rules = append(rules, "min: "+formatNumber(*f.Rule.Min))
			}
			if f.Rule.Max != nil {
				rules = append(rules, "max: "+formatNumber(*f.Rule.Max))
			}
			if f.Rule.Pattern != "" {
				rules = append(rules, "pattern: "+f.Rule.Pattern)
			}
			if len(rules) > 0 {
				fmt.Fprintf(&b, "  - Validation: %s\n", strings.Join(rules, ", "))
			}
		}
		b.WriteString("\n")
	}
	return b.String()
}

// DetectMapping picks the registered mapping that best fits a header row:
// all required fields present and the most headers resolved. Ties go to the
// lower key. Returns false when no mapping has its required fields.
func DetectMapping(headers []string) (TableMapping, bool) {
	var (
		best      TableMapping
		bestScore int
		found     bool
	)
	for _, m := range All() {
		if len(MissingRequired(headers, m)) > 0 {
			continue
		}
		score := 0
		for _, h := range headers {
			if _, ok := m.FindField(h); ok {
				score++
			}
		}
		if score > bestScore {
			best, bestScore, found = m, score, true
		}
	}
	return best, found
}
