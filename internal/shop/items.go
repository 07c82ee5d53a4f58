// Package shop builds the purchasable catalog from configuration.
package shop

import (
	"strings"

	"github.com/rs/zerolog/log"

	"snake-market/internal/config"
)

// Grant describes what a purchase delivers: either one item of Item, or
// Amount rounds of Ammo.
type Grant struct {
	Item   string `json:"item,omitempty"`
	Ammo   string `json:"ammo,omitempty"`
	Amount int    `json:"amount,omitempty"`
}

// IsAmmo returns true if the grant delivers ammunition.
func (g Grant) IsAmmo() bool {
	return g.Ammo != ""
}

// Entry is one purchasable catalog item.
type Entry struct {
	Code        string `json:"code"`
	DisplayName string `json:"display_name"`
	Price       int64  `json:"price"`
	Grant       Grant  `json:"grant"`
	Enabled     bool   `json:"enabled"`
}

// Catalog is an immutable set of entries in configured order.
type Catalog struct {
	entries []Entry
	byCode  map[string]int
}

// NormalizeCode lower-cases and trims a user-supplied item code.
func NormalizeCode(code string) string {
	return strings.ToLower(strings.TrimSpace(code))
}

// Build creates a catalog from configured items. Entries without a valid
// grant, or with a negative price, are logged and skipped. A later duplicate
// code is skipped as well.
func Build(items []config.CatalogItemConfig) *Catalog {
	c := &Catalog{byCode: make(map[string]int, len(items))}
	for _, it := range items {
		code := NormalizeCode(it.Code)
		grant, ok := grantFor(it)
		switch {
		case code == "":
			log.Warn().Str("display_name", it.DisplayName).Msg("Skipping catalog item without code")
			continue
		case !ok:
			log.Warn().Str("code", code).Msg("Skipping catalog item without a single item or ammo grant")
			continue
		case it.Price < 0:
			log.Warn().Str("code", code).Int64("price", it.Price).Msg("Skipping catalog item with negative price")
			continue
		}
		if _, dup := c.byCode[code]; dup {
			log.Warn().Str("code", code).Msg("Skipping duplicate catalog code")
			continue
		}

		name := it.DisplayName
		if name == "" {
			name = code
		}
		c.byCode[code] = len(c.entries)
		c.entries = append(c.entries, Entry{
			Code:        code,
			DisplayName: name,
			Price:       it.Price,
			Grant:       grant,
			Enabled:     it.IsEnabled(),
		})
	}
	return c
}

func grantFor(it config.CatalogItemConfig) (Grant, bool) {
	item := strings.TrimSpace(it.ItemType)
	ammo := strings.TrimSpace(it.AmmoType)
	switch {
	case item != "" && ammo == "":
		return Grant{Item: item}, true
	case ammo != "" && item == "" && it.AmmoAmount > 0:
		return Grant{Ammo: ammo, Amount: it.AmmoAmount}, true
	default:
		return Grant{}, false
	}
}

// Lookup returns the enabled entry with the given code.
func (c *Catalog) Lookup(code string) (Entry, bool) {
	i, ok := c.byCode[NormalizeCode(code)]
	if !ok || !c.entries[i].Enabled {
		return Entry{}, false
	}
	return c.entries[i], true
}

// Enabled returns the enabled entries in configured order.
func (c *Catalog) Enabled() []Entry {
	out := make([]Entry, 0, len(c.entries))
	for _, e := range c.entries {
		if e.Enabled {
			out = append(out, e)
		}
	}
	return out
}

// All returns every entry, including disabled ones.
func (c *Catalog) All() []Entry {
	return append([]Entry(nil), c.entries...)
}
