// Package factors holds the built-in factor definitions seeded into analysis_factors.
package factors

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/lueurxax/insights-engine/internal/core/domain"
	apperrors "github.com/lueurxax/insights-engine/internal/core/errors"
)

//go:embed factors.yaml
var builtin []byte

type entry struct {
	Key         string `yaml:"key"`
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
}

type file struct {
	Categories map[string][]entry `yaml:"categories"`
}

// Builtin returns the embedded factor definitions.
func Builtin() ([]domain.FactorDefinition, error) {
	return Parse(builtin)
}

// Parse decodes a factor file. Categories must be scored categories and keys unique within one.
// Definitions come back grouped by category in display order.
func Parse(raw []byte) ([]domain.FactorDefinition, error) {
	var f file
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("%w: decode factors: %v", apperrors.ErrValidation, err)
	}

	names := make([]string, 0, len(f.Categories))
	for name := range f.Categories {
		names = append(names, name)
	}

	sort.Strings(names)

	for _, name := range names {
		c, err := domain.ParseCategory(name)
		if err != nil {
			return nil, err
		}

		if !c.HasFactors() {
			return nil, fmt.Errorf("%w: %s is not scored by factors", apperrors.ErrValidation, c)
		}
	}

	var defs []domain.FactorDefinition

	for _, c := range domain.FactorCategories() {
		seen := map[string]bool{}

		for i, e := range f.Categories[string(c)] {
			key := strings.TrimSpace(e.Key)
			if key == "" {
				return nil, fmt.Errorf("%w: %s factor %d has no key", apperrors.ErrValidation, c, i)
			}

			if seen[key] {
				return nil, fmt.Errorf("%w: %s factor %q defined twice", apperrors.ErrValidation, c, key)
			}

			seen[key] = true

			title := strings.TrimSpace(e.Title)
			if title == "" {
				title = key
			}

			defs = append(defs, domain.FactorDefinition{
				Category:    c,
				Key:         key,
				Title:       title,
				Description: strings.TrimSpace(e.Description),
				SortOrder:   i,
			})
		}
	}

	return defs, nil
}
