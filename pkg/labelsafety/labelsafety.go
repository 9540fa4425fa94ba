// Package labelsafety classifies a single DNS label as safe or unsafe,
// catching homograph, invisible-codepoint, and punycode-abuse tricks that
// the registrar APIs themselves do not filter.
package labelsafety

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/net/idna"
)

// Reason enumerates why a label was rejected.
type Reason string

const (
	ReasonInvalidLength          Reason = "InvalidLength"
	ReasonInvalidHyphenPosition  Reason = "InvalidHyphenPosition"
	ReasonNonASCIINotAllowed     Reason = "NonASCIINotAllowed"
	ReasonUnicodeMustUsePunycode Reason = "UnicodeMustUsePunycode"
	ReasonInvalidPunycode        Reason = "InvalidPunycode"
	ReasonHasInvisible           Reason = "HasInvisible"
	ReasonMixedScripts           Reason = "MixedScripts"
	ReasonAllNumeric             Reason = "AllNumeric"
)

// Result is the outcome of classifying a label.
type Result struct {
	Safe    bool
	Reasons []Reason
}

var asciiLDH = regexp.MustCompile(`^[a-z0-9-]+$`)
var allDigits = regexp.MustCompile(`^[0-9]+$`)

// invisible codepoints that can hide an otherwise-conspicuous swap.
var invisibleRunes = map[rune]bool{
	'​': true, // zero width space
	'‌': true, // zero width non-joiner
	'‍': true, // zero width joiner
	'⁠': true, // word joiner
	'﻿': true, // zero width no-break space
}

// scripts we recognize for mixed-script detection. A label that mixes two of
// these is treated as a homograph risk; scripts outside this set don't
// contribute to the mix (they're simply ignored, not flagged on their own).
var recognizedScripts = []*unicode.RangeTable{
	unicode.Latin,
	unicode.Cyrillic,
	unicode.Greek,
	unicode.Arabic,
	unicode.Hebrew,
	unicode.Han,
	unicode.Hiragana,
	unicode.Katakana,
}

var scriptNames = []string{"Latin", "Cyrillic", "Greek", "Arabic", "Hebrew", "Han", "Hiragana", "Katakana"}

// Check classifies label (the portion of a domain name before the final
// dot) according to the rules in spec §4.1.
func Check(label string, allowUnicode bool) Result {
	label = strings.ToLower(label)

	if len(label) < 1 || len(label) > 63 {
		return Result{Safe: false, Reasons: []Reason{ReasonInvalidLength}}
	}
	if strings.HasPrefix(label, "-") || strings.HasSuffix(label, "-") {
		return Result{Safe: false, Reasons: []Reason{ReasonInvalidHyphenPosition}}
	}

	if asciiLDH.MatchString(label) {
		if allDigits.MatchString(label) {
			return Result{Safe: false, Reasons: []Reason{ReasonAllNumeric}}
		}
		return Result{Safe: true}
	}

	if !allowUnicode {
		return Result{Safe: false, Reasons: []Reason{ReasonNonASCIINotAllowed}}
	}

	if !strings.HasPrefix(label, "xn--") {
		return Result{Safe: false, Reasons: []Reason{ReasonUnicodeMustUsePunycode}}
	}

	decoded, err := idna.ToUnicode(label)
	if err != nil {
		return Result{Safe: false, Reasons: []Reason{ReasonInvalidPunycode}}
	}

	var reasons []Reason
	if hasInvisible(decoded) {
		reasons = append(reasons, ReasonHasInvisible)
	}
	if isMixedScript(decoded) {
		reasons = append(reasons, ReasonMixedScripts)
	}

	return Result{Safe: len(reasons) == 0, Reasons: reasons}
}

func hasInvisible(s string) bool {
	for _, r := range s {
		if invisibleRunes[r] {
			return true
		}
	}
	return false
}

func isMixedScript(s string) bool {
	seen := make(map[string]bool)
	for _, r := range s {
		for i, rt := range recognizedScripts {
			if unicode.Is(rt, r) {
				seen[scriptNames[i]] = true
				break
			}
		}
	}
	return len(seen) > 1
}
