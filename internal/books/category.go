package books

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// CategoryMapper translates a site's raw category labels into Categories.
// Each bookstore ships its own mapping as a data table so the core never
// branches on site-specific strings.
type CategoryMapper struct {
	table map[string]Category
}

// NewCategoryMapper builds a mapper from a raw-label table.
func NewCategoryMapper(table map[string]Category) *CategoryMapper {
	m := make(map[string]Category, len(table))
	for raw, cat := range table {
		m[CleanText(raw)] = cat
	}
	return &CategoryMapper{table: m}
}

// LoadCategoryMapper reads a YAML file of rawLabel -> category name pairs.
func LoadCategoryMapper(path string) (*CategoryMapper, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read category map: %w", err)
	}
	var raw map[string]string
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse category map %s: %w", path, err)
	}
	table := make(map[string]Category, len(raw))
	for label, name := range raw {
		cat := ParseCategory(name)
		if cat == CategoryNone && name != string(CategoryNone) {
			return nil, fmt.Errorf("category map %s: unknown category %q for label %q", path, name, label)
		}
		table[label] = cat
	}
	return NewCategoryMapper(table), nil
}

// Map returns the category for a raw site label, or CategoryNone when the
// label is unmapped.
func (m *CategoryMapper) Map(raw string) Category {
	if cat, ok := m.table[CleanText(raw)]; ok {
		return cat
	}
	return CategoryNone
}
