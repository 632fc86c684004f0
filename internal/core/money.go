// Package core provides amount parsing for ledger rows.
//
// Amounts are whole currency units (yen), so there is no fractional part
// to round; the parser only has to strip the decorations exports add.
package core

import (
	"strconv"
	"strings"
	"unicode"
)

// ParseAmount converts an export amount field to whole currency units.
//
// An empty field is 0. Thousands separators and a leading yen sign are
// removed. Anything else that is not a non-negative integer fails with
// ErrInvalidAmount.
//
// Examples:
//
//	ParseAmount("")       -> 0, nil
//	ParseAmount("3000")   -> 3000, nil
//	ParseAmount("¥1,200") -> 1200, nil
//	ParseAmount("-5")     -> 0, ErrInvalidAmount
func ParseAmount(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	s = strings.TrimPrefix(s, "¥")
	s = strings.TrimPrefix(s, "￥")
	s = strings.ReplaceAll(s, ",", "")
	if s == "" {
		return 0, ErrInvalidAmount
	}
	for _, r := range s {
		if !unicode.IsDigit(r) || r > unicode.MaxASCII {
			return 0, ErrInvalidAmount
		}
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	return v, nil
}
