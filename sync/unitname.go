package sync

import (
	"fmt"
	"regexp"
	"strings"
)

// UnknownUnit is the placeholder shown when no unit name can be resolved.
// The board must never show an empty unit cell, so the sentinel is emitted
// instead of leaving the field absent.
const UnknownUnit = "Unknown unit"

var (
	groupPattern        = regexp.MustCompile(`[(\[]([^()\[\]]+)[)\]]`)
	digitsOnlyPattern   = regexp.MustCompile(`^\d+$`)
	trailingRunPattern  = regexp.MustCompile(`\s*\d{5,}\s*$`)
	alphanumericPattern = regexp.MustCompile(`[A-Za-z0-9]`)
)

// ResolveUnitName picks a display name for the booked unit. Priority
// order, first non-empty wins:
//
//  1. an explicit unit/rental name from the payload
//  2. the last (...) or [...] group in the free-text source description,
//     rejected when it is a bare 5+ digit number or has fewer than 2
//     meaningful characters
//  3. the last hyphen-delimited segment of that text, with trailing long
//     digit runs stripped
//  4. a label built from the property/room identifiers
//
// When nothing resolves it returns the UnknownUnit sentinel.
func ResolveUnitName(explicit, sourceText, propertyID, roomID string, props map[string]string) string {
	if name := strings.TrimSpace(explicit); name != "" {
		return name
	}

	if name := nameFromGroups(sourceText); name != "" {
		return name
	}
	if name := nameFromHyphenSegment(sourceText); name != "" {
		return name
	}

	if name := props[propertyID]; strings.TrimSpace(name) != "" {
		return strings.TrimSpace(name)
	}

	switch {
	case propertyID != "" && roomID != "":
		return fmt.Sprintf("Property %s / Room %s", propertyID, roomID)
	case propertyID != "":
		return fmt.Sprintf("Property %s", propertyID)
	}

	return UnknownUnit
}

// nameFromGroups extracts the last parenthesized or bracketed group from
// free text, e.g. "Reservation via OTA (Queens 8)" → "Queens 8".
func nameFromGroups(text string) string {
	matches := groupPattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return ""
	}
	candidate := strings.TrimSpace(matches[len(matches)-1][1])

	// A bare long number is a reservation code, not a unit name
	if digitsOnlyPattern.MatchString(candidate) && len(candidate) >= 5 {
		return ""
	}
	if len(alphanumericPattern.FindAllString(candidate, -1)) < 2 {
		return ""
	}
	return candidate
}

// nameFromHyphenSegment falls back to the last hyphen-delimited segment of
// the free text, stripping a trailing long digit run (booking references
// appended by some channels).
func nameFromHyphenSegment(text string) string {
	if !strings.Contains(text, "-") {
		return ""
	}
	segments := strings.Split(text, "-")
	candidate := strings.TrimSpace(segments[len(segments)-1])
	candidate = strings.TrimSpace(trailingRunPattern.ReplaceAllString(candidate, ""))

	if candidate == "" || digitsOnlyPattern.MatchString(candidate) {
		return ""
	}
	if len(alphanumericPattern.FindAllString(candidate, -1)) < 2 {
		return ""
	}
	return candidate
}
