// Package phone normalizes user-entered phone numbers to E.164.
package phone

import (
	"errors"
	"regexp"
	"strings"
)

var ErrInvalid = errors.New("invalid phone number")

var e164 = regexp.MustCompile(`^\+[1-9]\d{7,14}$`)

// Normalize converts raw input into "+<country code><number>".
//
// Spaces, dashes, dots and parentheses are dropped. A "00" international
// prefix becomes "+". A single leading "0" is treated as a national trunk
// prefix and replaced by defaultCountryCode. Anything else without "+" is
// assumed to already carry its country code.
//
// Normalize does not validate; use Valid or Parse for that.
func Normalize(raw, defaultCountryCode string) string {
	var b strings.Builder
	for i, r := range strings.TrimSpace(raw) {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && i == 0:
			b.WriteRune(r)
		}
	}
	s := b.String()

	switch {
	case s == "":
		return ""
	case strings.HasPrefix(s, "+"):
		return s
	case strings.HasPrefix(s, "00"):
		return "+" + s[2:]
	case strings.HasPrefix(s, "0") && defaultCountryCode != "":
		return "+" + strings.TrimPrefix(defaultCountryCode, "+") + s[1:]
	default:
		return "+" + s
	}
}

// Valid reports whether s is already in E.164 form.
func Valid(s string) bool {
	return e164.MatchString(s)
}

// Parse normalizes raw and validates the result.
func Parse(raw, defaultCountryCode string) (string, error) {
	n := Normalize(raw, defaultCountryCode)
	if !Valid(n) {
		return "", ErrInvalid
	}
	return n, nil
}
