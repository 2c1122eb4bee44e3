package domain

import (
	"strings"

	"golang.org/x/text/language"
)

// VariantName is the tagged union of the two historical shapes a variant name
// was stored in: a single canonical string, or a per-locale record. Exactly one
// of the fields is populated.
type VariantName struct {
	Plain     string
	Localized map[string]string
}

// PlainName wraps a canonical single-string name.
func PlainName(name string) VariantName {
	return VariantName{Plain: strings.TrimSpace(name)}
}

// LocalizedName wraps a per-locale record, canonicalising locale keys via BCP 47
// parsing so "AR", "ar-TN" and "ar" style inputs collapse predictably. Entries
// with unparseable keys or empty values are dropped.
func LocalizedName(forms map[string]string) VariantName {
	if len(forms) == 0 {
		return VariantName{}
	}
	normalised := make(map[string]string, len(forms))
	for locale, form := range forms {
		form = strings.TrimSpace(form)
		if form == "" {
			continue
		}
		normalised[canonicalLocale(locale)] = form
	}
	if len(normalised) == 0 {
		return VariantName{}
	}
	return VariantName{Localized: normalised}
}

// IsZero reports whether the name carries no usable form.
func (n VariantName) IsZero() bool {
	return n.Plain == "" && len(n.Localized) == 0
}

// Matches reports whether candidate equals the plain form or any locale form.
// Comparison is exact and case-sensitive; ambiguity is never resolved by
// fuzzy matching because a wrong-variant stock mutation is worse than a failed
// match that is surfaced and logged.
func (n VariantName) Matches(candidate string) bool {
	candidate = strings.TrimSpace(candidate)
	if candidate == "" {
		return false
	}
	if n.Plain != "" {
		return n.Plain == candidate
	}
	for _, form := range n.Localized {
		if form == candidate {
			return true
		}
	}
	return false
}

// Display resolves a single presentable form. Locale preference follows the
// shop's historical order (Arabic first, then French, then English, then any),
// falling back to the provided default when the name is empty.
func (n VariantName) Display(fallback string) string {
	if n.Plain != "" {
		return n.Plain
	}
	for _, locale := range []string{"ar", "fr", "en"} {
		if form, ok := n.Localized[locale]; ok && form != "" {
			return form
		}
	}
	for _, form := range n.Localized {
		if form != "" {
			return form
		}
	}
	return fallback
}

func canonicalLocale(locale string) string {
	trimmed := strings.TrimSpace(locale)
	if trimmed == "" {
		return ""
	}
	tag, err := language.Parse(trimmed)
	if err != nil {
		return strings.ToLower(trimmed)
	}
	base, confidence := tag.Base()
	if confidence == language.No {
		return strings.ToLower(trimmed)
	}
	return base.String()
}
