// Package dispatch: phone normalization.
//
// All adapters share one normalization and validation path so a recipient
// is rewritten to its country-coded form exactly once, before any network
// call. The rules target Bulgarian numbers by default but the country
// prefix and mobile pattern are configurable.
package dispatch

import (
	"errors"
	"regexp"
	"strings"
)

// ErrUnparseablePhone is returned when a recipient contains no digits at all.
var ErrUnparseablePhone = errors.New("unparseable phone number")

// PhoneNormalizer rewrites raw recipient strings to E.164-style numbers for
// a single country and validates them against its mobile pattern.
type PhoneNormalizer struct {
	// countryPrefix is the "+"-prefixed country code, e.g. "+359".
	countryPrefix string
	// mobileRE matches valid, fully normalized mobile numbers.
	mobileRE *regexp.Regexp
}

// NewPhoneNormalizer builds a normalizer for the given country prefix and
// mobile pattern. Zero values fall back to Bulgarian defaults.
func NewPhoneNormalizer(countryPrefix, mobilePattern string) (*PhoneNormalizer, error) {
	if countryPrefix == "" {
		countryPrefix = "+359"
	}
	if mobilePattern == "" {
		mobilePattern = `^\+3598[7-9][0-9]{7}$`
	}
	re, err := regexp.Compile(mobilePattern)
	if err != nil {
		return nil, err
	}
	return &PhoneNormalizer{countryPrefix: countryPrefix, mobileRE: re}, nil
}

// Normalize strips every character except digits and a leading "+", then
// rewrites the number into country-coded form:
//
//	"0888123456"   -> "+359888123456"  (leading 0 replaced by the prefix)
//	"359888123456" -> "+359888123456"  (bare country code gains the "+")
//	"+359888..."   -> unchanged
//
// Anything else keeps its digits and gains the country prefix.
func (p *PhoneNormalizer) Normalize(raw string) (string, error) {
	var b strings.Builder
	for i, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		} else if r == '+' && i == 0 {
			b.WriteRune(r)
		}
	}
	s := b.String()
	if s == "" || s == "+" {
		return "", ErrUnparseablePhone
	}

	switch {
	case strings.HasPrefix(s, "+"):
		return s, nil
	case strings.HasPrefix(s, "0"):
		return p.countryPrefix + s[1:], nil
	case strings.HasPrefix(s, p.countryPrefix[1:]):
		return "+" + s, nil
	default:
		return p.countryPrefix + s, nil
	}
}

// IsValidMobile reports whether a normalized number matches the configured
// national mobile pattern.
func (p *PhoneNormalizer) IsValidMobile(normalized string) bool {
	return p.mobileRE.MatchString(normalized)
}

// e164RE matches the country-coded shape Normalize produces. Adapters that
// can message any valid number answer CanSendToNumber with this check, so
// the answer holds even when they are asked outside a dispatcher send.
var e164RE = regexp.MustCompile(`^\+[0-9]{6,15}$`)
