package fetch

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/xZoluGames/skinfetch/internal/engine"
)

// Template placeholders understood by the unit builders.
const (
	placeholderOffset = "{offset}"
	placeholderCount  = "{count}"
	placeholderName   = "{name}"
)

// BuildPageUnits expands a paged URL template over an item range, one unit
// per page. The final page shrinks to cover the remainder.
func BuildPageUnits(template string, totalItems, pageSize int) ([]engine.Unit, error) {
	if totalItems <= 0 {
		return nil, fmt.Errorf("total items must be positive, got %d", totalItems)
	}
	if pageSize <= 0 {
		return nil, fmt.Errorf("page size must be positive, got %d", pageSize)
	}
	if !strings.Contains(template, placeholderOffset) || !strings.Contains(template, placeholderCount) {
		return nil, fmt.Errorf("page template needs %s and %s placeholders: %q",
			placeholderOffset, placeholderCount, template)
	}

	units := make([]engine.Unit, 0, (totalItems+pageSize-1)/pageSize)
	for offset := 0; offset < totalItems; offset += pageSize {
		count := pageSize
		if offset+count > totalItems {
			count = totalItems - offset
		}
		target := strings.NewReplacer(
			placeholderOffset, strconv.Itoa(offset),
			placeholderCount, strconv.Itoa(count),
		).Replace(template)
		units = append(units, engine.Unit{
			ID:   fmt.Sprintf("page-%d", offset),
			Kind: engine.UnitKindPage,
			URL:  target,
		})
	}
	return units, nil
}

// BuildProbeUnits makes one unit per item name, capped at limit when limit is
// positive. Empty names are skipped.
func BuildProbeUnits(template string, names []string, limit int) ([]engine.Unit, error) {
	if !strings.Contains(template, placeholderName) {
		return nil, fmt.Errorf("probe template needs %s placeholder: %q", placeholderName, template)
	}

	units := make([]engine.Unit, 0, len(names))
	for _, name := range names {
		if name == "" {
			continue
		}
		if limit > 0 && len(units) >= limit {
			break
		}
		units = append(units, engine.Unit{
			ID:   "probe-" + name,
			Kind: engine.UnitKindProbe,
			URL:  strings.ReplaceAll(template, placeholderName, url.QueryEscape(name)),
		})
	}
	return units, nil
}
