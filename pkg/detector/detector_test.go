package detector

import (
	"strings"
	"testing"

	"github.com/pemistahl/lingua-go"
)

func TestLanguage(t *testing.T) {
	d := New(lingua.English, lingua.German, lingua.French)

	tests := []struct {
		text string
		want string
	}{
		{text: "The quick brown fox jumps over the lazy dog while the farmer watches from the porch.", want: "en"},
		{text: "Der schnelle braune Fuchs springt über den faulen Hund, während der Bauer zuschaut.", want: "de"},
		{text: "Le renard brun rapide saute par-dessus le chien paresseux pendant que le fermier regarde.", want: "fr"},
	}
	for _, tt := range tests {
		got, ok := d.Language(tt.text)
		if !ok {
			t.Errorf("Language(%q) ok = false", tt.text)
			continue
		}
		if got.Code != tt.want {
			t.Errorf("Language(%q) = %q, want %q", tt.text, got.Code, tt.want)
		}
		if got.Confidence <= 0 || got.Confidence > 1 {
			t.Errorf("Language(%q) confidence = %f", tt.text, got.Confidence)
		}
	}
}

func TestLanguageEmpty(t *testing.T) {
	if _, ok := New().Language("   "); ok {
		t.Error("Language(blank) ok = true")
	}
}

func TestSample(t *testing.T) {
	long := strings.Repeat("é", sampleRunes+10)
	if got := len([]rune(sample(long))); got != sampleRunes {
		t.Errorf("sample() runes = %d, want %d", got, sampleRunes)
	}
}

func TestDomainType(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://www.nasa.gov/missions", "gov"},
		{"https://www.gov.uk/", "gov"},
		{"https://cs.stanford.edu/", "edu"},
		{"https://www.ox.ac.uk/", "edu"},
		{"https://arxiv.org/abs/1234", "academic"},
		{"https://m.example.com/", "mobile"},
		{"https://shop.example.com/", "commercial"},
		{"not a url", "unknown"},
	}
	for _, tt := range tests {
		if got := DomainType(tt.url); got != tt.want {
			t.Errorf("DomainType(%q) = %q, want %q", tt.url, got, tt.want)
		}
	}
}
