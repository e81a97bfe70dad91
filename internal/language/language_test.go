package language

import (
	"slices"
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"en", "en"},
		{"EN", "en"},
		{"eng", "en"},
		{"fre", "fr"},
		{"ger", "de"},
		{"chi", "zh"},
		{"Spanish", "es"},
		{" portuguese ", "pt"},
		{"en-US", "en"},
		{"pt_BR", "pt"},
		{"xy", ""},
		{"klingon", ""},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := Normalize(tt.input); got != tt.expected {
				t.Errorf("Normalize(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestDisplayName(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"en", "English"},
		{"deu", "German"},
		{"fr-CA", "French"},
		{"  Hill Country Texan ", "Hill Country Texan"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := DisplayName(tt.input); got != tt.expected {
			t.Errorf("DisplayName(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestKnownAndSupported(t *testing.T) {
	if !Known("Japanese") || Known("zz") {
		t.Fatal("unexpected Known result")
	}
	codes := Supported()
	if !slices.Contains(codes, "en") || !slices.Contains(codes, "id") {
		t.Fatalf("unexpected supported list %v", codes)
	}
	for _, code := range codes {
		if Normalize(code) != code {
			t.Fatalf("supported code %q does not normalize to itself", code)
		}
	}
}
