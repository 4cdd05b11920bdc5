// Package address normalizes free-text parcel addresses for cross-file matching.
package address

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Normalize produces the matching form of an address:
//  1. Unicode NFC composition (spreadsheets exported on macOS carry decomposed Hangul)
//  2. Lowercasing
//  3. Dropping whitespace, punctuation and symbols
//
// Two addresses that differ only in spacing, casing or separators such as
// "-", "," or "()" normalize to the same string.
func Normalize(addr string) string {
	addr = norm.NFC.String(strings.TrimSpace(addr))
	if addr == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(addr))
	for _, r := range addr {
		if unicode.IsSpace(r) || unicode.IsPunct(r) || unicode.IsSymbol(r) {
			continue
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

// FarmerKey combines an owner id with a normalized address.
func FarmerKey(farmerID, addr string) string {
	n := Normalize(addr)
	if n == "" {
		return ""
	}
	return strings.TrimSpace(farmerID) + "|" + n
}
