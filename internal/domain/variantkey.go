package domain

import "strings"

// VariantKey carries the signals a caller can provide to locate one variant in
// a product's variant list. Any subset of the fields may be set; matching
// follows a fixed precedence so the same inputs always resolve to the same
// variant regardless of which component asks.
type VariantKey struct {
	VariantID string
	Image     string
	Name      string
}

// IsZero reports whether the key carries no usable signal.
func (k VariantKey) IsZero() bool {
	return strings.TrimSpace(k.VariantID) == "" &&
		strings.TrimSpace(k.Image) == "" &&
		strings.TrimSpace(k.Name) == ""
}

// ResolveVariant locates the index of the variant matching key. Precedence,
// first rule with a usable signal wins:
//
//  1. exact match on the stored variant identifier
//  2. exact match on image URL, when both sides expose one
//  3. exact, case-sensitive match on the variant name; a localized stored name
//     matches when the candidate equals any locale form
//
// There is no fuzzy or partial matching: no rule hit means not found.
func ResolveVariant(key VariantKey, variants []ProductVariant) (int, bool) {
	if id := strings.TrimSpace(key.VariantID); id != "" {
		for i, variant := range variants {
			if variant.ID != "" && variant.ID == id {
				return i, true
			}
		}
	}

	if image := strings.TrimSpace(key.Image); image != "" {
		for i, variant := range variants {
			for _, stored := range variant.Images {
				if stored != "" && stored == image {
					return i, true
				}
			}
		}
	}

	if name := strings.TrimSpace(key.Name); name != "" {
		for i, variant := range variants {
			if variant.Name.Matches(name) {
				return i, true
			}
		}
	}

	return 0, false
}

// MatchesSnapshot applies the same precedence rules against an order line's
// stored snapshot instead of a live product, for locating a line inside an
// order during partial removal.
func (k VariantKey) MatchesSnapshot(snapshot VariantSnapshot) bool {
	if id := strings.TrimSpace(k.VariantID); id != "" && snapshot.VariantID != "" {
		return snapshot.VariantID == id
	}
	if image := strings.TrimSpace(k.Image); image != "" && snapshot.Image != "" {
		return snapshot.Image == image
	}
	if name := strings.TrimSpace(k.Name); name != "" {
		return snapshot.Name == name
	}
	return false
}
