// Package entities implements the Prompt Builder's pure regex validators
// (spec §4.3, §6): resource IDs, dates, times and VINs. These carry no LLM
// dependency and are reused by the Reasoning Engine's Validate and by the
// Approval State Machine's field validator.
package entities

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// resourceIDPatterns are the canonical resource-ID shapes from spec §6.
var resourceIDPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^[A-Z]{2,4}-\d{3,4}$`),
	regexp.MustCompile(`^[A-Z]{3,4}\d{3}$`),
	regexp.MustCompile(`^[A-Z]\d{3,4}$`),
	regexp.MustCompile(`^\d{3,4}$`),
}

// IsResourceID reports whether s matches one of the canonical resource ID shapes.
func IsResourceID(s string) bool {
	s = strings.TrimSpace(s)
	for _, p := range resourceIDPatterns {
		if p.MatchString(s) {
			return true
		}
	}
	return false
}

var (
	dateISO  = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	dateUS   = regexp.MustCompile(`^\d{1,2}/\d{1,2}/\d{4}$`)
)

// IsDate reports whether s is an ISO-8601 date (%Y-%m-%d) or US date
// (%m/%d/%Y).
func IsDate(s string) bool {
	s = strings.TrimSpace(s)
	return dateISO.MatchString(s) || dateUS.MatchString(s)
}

var (
	timeHHMM    = regexp.MustCompile(`^([01]?\d|2[0-3]):[0-5]\d$`)
	timeHHMMSS  = regexp.MustCompile(`^([01]?\d|2[0-3]):[0-5]\d:[0-5]\d$`)
	timeHam     = regexp.MustCompile(`(?i)^\d{1,2}(am|pm)$`)
	timeHMMam   = regexp.MustCompile(`(?i)^\d{1,2}:\d{2}(am|pm)$`)
	timeRangeH  = regexp.MustCompile(`(?i)^\d{1,2}-\d{1,2}(am|pm)$`)
)

// IsTime reports whether s matches one of the canonical time shapes:
// HH:MM, HH:MM:SS, H(am|pm), H:MM(am|pm), H-H(am|pm).
func IsTime(s string) bool {
	s = strings.TrimSpace(s)
	switch {
	case timeHHMM.MatchString(s),
		timeHHMMSS.MatchString(s),
		timeHam.MatchString(s),
		timeHMMam.MatchString(s),
		timeRangeH.MatchString(s):
		return true
	default:
		return false
	}
}

// vinPattern enforces the 17-character alphanumeric shape excluding I, O, Q,
// per ISO 3779. The check digit is re-derived below rather than trusted from
// any single source, per SPEC_FULL §9 item 4.
var vinPattern = regexp.MustCompile(`^[A-HJ-NPR-Z0-9]{17}$`)

// IsVINShape reports whether s has the correct VIN character set and length,
// without validating the check digit.
func IsVINShape(s string) bool {
	return vinPattern.MatchString(strings.ToUpper(strings.TrimSpace(s)))
}

// vinTransliteration is the ISO 3779 / NHTSA letter-to-digit table used for
// the VIN check-digit algorithm. Re-derived from the standard: every letter
// maps to exactly one digit 0-9, and no two letters sharing a digit collide
// with the weighting scheme (in particular S maps to 2, not 7 — some public
// tables conflate this with a typo found in non-canonical sources; this
// table matches the NHTSA reference implementation).
var vinTransliteration = map[rune]int{
	'0': 0, '1': 1, '2': 2, '3': 3, '4': 4, '5': 5, '6': 6, '7': 7, '8': 8, '9': 9,
	'A': 1, 'B': 2, 'C': 3, 'D': 4, 'E': 5, 'F': 6, 'G': 7, 'H': 8,
	'J': 1, 'K': 2, 'L': 3, 'M': 4, 'N': 5, 'P': 7, 'R': 9,
	'S': 2, 'T': 3, 'U': 4, 'V': 5, 'W': 6, 'X': 7, 'Y': 8, 'Z': 9,
}

var vinWeights = [17]int{8, 7, 6, 5, 4, 3, 2, 10, 0, 9, 8, 7, 6, 5, 4, 3, 2}

// IsValidVIN validates a 17-character VIN's shape and ISO 3779 check digit
// (position 9, 0-indexed 8).
func IsValidVIN(s string) bool {
	s = strings.ToUpper(strings.TrimSpace(s))
	if !vinPattern.MatchString(s) {
		return false
	}
	sum := 0
	for i, r := range s {
		v, ok := vinTransliteration[r]
		if !ok {
			return false
		}
		sum += v * vinWeights[i]
	}
	remainder := sum % 11
	check := s[8]
	if remainder == 10 {
		return check == 'X'
	}
	return check == byte('0'+remainder)
}

// ValidationIssue is one problem found validating a candidate entity value.
type ValidationIssue struct {
	Kind  string
	Value string
	Msg   string
}

// ValidateKind checks a raw extracted value against the canonical pattern
// for its entity kind. kind is one of "resource_id", "date", "time", "vin".
// Unknown kinds are accepted unconditionally (no canonical pattern exists).
func ValidateKind(kind, value string) *ValidationIssue {
	switch kind {
	case "resource_id":
		if !IsResourceID(value) {
			return &ValidationIssue{Kind: kind, Value: value, Msg: "does not match any known resource ID pattern"}
		}
	case "date":
		if !IsDate(value) {
			return &ValidationIssue{Kind: kind, Value: value, Msg: "not a recognized date format (expected YYYY-MM-DD or MM/DD/YYYY)"}
		}
	case "time":
		if !IsTime(value) {
			return &ValidationIssue{Kind: kind, Value: value, Msg: "not a recognized time format"}
		}
	case "vin":
		if !IsValidVIN(value) {
			return &ValidationIssue{Kind: kind, Value: value, Msg: "not a valid VIN (shape or check digit failed)"}
		}
	}
	return nil
}

// ParseIntInRange parses s as an integer and checks it falls within
// [min, max] inclusive, returning a descriptive error otherwise.
func ParseIntInRange(field, s string, min, max int) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%s: not an integer: %q", field, s)
	}
	if n < min || n > max {
		return 0, fmt.Errorf("%s: %d out of range [%d,%d]", field, n, min, max)
	}
	return n, nil
}
