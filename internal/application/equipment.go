package application

import (
	"strings"
)

// DefaultEquipment is the allow-list used when none is configured.
var DefaultEquipment = []string{"Projector", "Whiteboard", "VideoConference"}

// EquipmentCatalog is an immutable allow-list of room equipment.
type EquipmentCatalog struct {
	allowed map[string]struct{}
	ordered []string
}

// NewEquipmentCatalog copies items into a catalog. Blank entries are ignored
// and a list without usable entries falls back to DefaultEquipment.
func NewEquipmentCatalog(items []string) EquipmentCatalog {
	catalog := EquipmentCatalog{allowed: make(map[string]struct{})}
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		if _, seen := catalog.allowed[item]; seen {
			continue
		}
		catalog.allowed[item] = struct{}{}
		catalog.ordered = append(catalog.ordered, item)
	}
	if len(catalog.ordered) == 0 {
		return NewEquipmentCatalog(DefaultEquipment)
	}
	return catalog
}

// Items returns a copy of the allow-list in configuration order.
func (c EquipmentCatalog) Items() []string {
	out := make([]string, len(c.ordered))
	copy(out, c.ordered)
	return out
}

// Allows reports whether item is on the allow-list.
func (c EquipmentCatalog) Allows(item string) bool {
	_, ok := c.allowed[item]
	return ok
}

// Normalize trims the items, drops blanks, collapses duplicates keeping the
// first occurrence and returns the items that are not on the allow-list.
func (c EquipmentCatalog) Normalize(items []string) (normalized []string, invalid []string) {
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		if _, dup := seen[item]; dup {
			continue
		}
		seen[item] = struct{}{}
		if !c.Allows(item) {
			invalid = append(invalid, item)
			continue
		}
		normalized = append(normalized, item)
	}
	return normalized, invalid
}

func (c EquipmentCatalog) validate(items []string, vErr *ValidationError) []string {
	normalized, invalid := c.Normalize(items)
	if len(invalid) > 0 {
		vErr.add("equipment", "invalid equipment: "+strings.Join(invalid, ", "))
	}
	return normalized
}
