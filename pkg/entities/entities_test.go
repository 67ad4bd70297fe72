package entities

import "testing"

func TestIsResourceID(t *testing.T) {
	cases := map[string]bool{
		"RES-1234": true,
		"VEH123":   true,
		"V123":     true,
		"1234":     true,
		"res-1234": false,
		"VEH1234X": false,
		"":         false,
	}
	for in, want := range cases {
		if got := IsResourceID(in); got != want {
			t.Errorf("IsResourceID(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestIsDate(t *testing.T) {
	cases := map[string]bool{
		"2024-05-03": true,
		"05/03/2024": true,
		"2024/05/03": false,
		"tomorrow":   false,
	}
	for in, want := range cases {
		if got := IsDate(in); got != want {
			t.Errorf("IsDate(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestIsTime(t *testing.T) {
	cases := map[string]bool{
		"14:00":    true,
		"14:00:00": true,
		"2pm":      true,
		"2:30pm":   true,
		"2-4pm":    true,
		"noon":     false,
		"25:00":    false,
	}
	for in, want := range cases {
		if got := IsTime(in); got != want {
			t.Errorf("IsTime(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestIsValidVIN(t *testing.T) {
	// 1HGCM82633A004352 is a commonly cited valid sample VIN with correct
	// check digit under the NHTSA algorithm.
	if !IsValidVIN("1HGCM82633A004352") {
		t.Errorf("expected known-valid VIN to validate")
	}
	if IsValidVIN("1HGCM82633A004353") {
		t.Errorf("expected VIN with corrupted check digit to fail")
	}
	if IsValidVIN("1HGCM8263IA004352") {
		t.Errorf("VIN containing excluded letter I must fail shape check")
	}
}

func TestValidateKind(t *testing.T) {
	if issue := ValidateKind("resource_id", "RES-1234"); issue != nil {
		t.Errorf("expected no issue, got %+v", issue)
	}
	if issue := ValidateKind("resource_id", "not valid"); issue == nil {
		t.Errorf("expected an issue for invalid resource id")
	}
	if issue := ValidateKind("unknown_kind", "anything"); issue != nil {
		t.Errorf("unknown kinds should not be flagged, got %+v", issue)
	}
}

func TestParseIntInRange(t *testing.T) {
	if _, err := ParseIntInRange("year", "2024", 2000, 2025); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if _, err := ParseIntInRange("year", "1999", 2000, 2025); err == nil {
		t.Errorf("expected out-of-range error")
	}
	if _, err := ParseIntInRange("year", "abc", 2000, 2025); err == nil {
		t.Errorf("expected parse error")
	}
}
