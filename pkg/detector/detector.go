// Package detector derives cheap metadata for text assets: the language of the
// text and the kind of site it came from.
package detector

import (
	"net/url"
	"strings"
	"sync"

	"github.com/pemistahl/lingua-go"
)

// sampleRunes bounds how much text is fed to language detection.
const sampleRunes = 2000

// DefaultLanguages keeps the models loaded in memory small.
var DefaultLanguages = []lingua.Language{
	lingua.English, lingua.Spanish, lingua.French, lingua.German,
	lingua.Italian, lingua.Portuguese, lingua.Dutch, lingua.Japanese,
	lingua.Chinese, lingua.Korean, lingua.Russian,
}

// Language is a detected ISO 639-1 code with its confidence in [0, 1].
type Language struct {
	Code       string
	Confidence float64
}

// Detector builds its language models on first use.
type Detector struct {
	languages []lingua.Language
	once      sync.Once
	detector  lingua.LanguageDetector
}

func New(languages ...lingua.Language) *Detector {
	if len(languages) < 2 {
		languages = DefaultLanguages
	}
	return &Detector{languages: languages}
}

// Language reports the most likely language of text.
func (d *Detector) Language(text string) (Language, bool) {
	text = sample(text)
	if strings.TrimSpace(text) == "" {
		return Language{}, false
	}
	d.once.Do(func() {
		d.detector = lingua.NewLanguageDetectorBuilder().
			FromLanguages(d.languages...).
			WithLowAccuracyMode().
			Build()
	})

	lang, ok := d.detector.DetectLanguageOf(text)
	if !ok {
		return Language{}, false
	}
	return Language{
		Code:       strings.ToLower(lang.IsoCode639_1().String()),
		Confidence: d.detector.ComputeLanguageConfidence(text, lang),
	}, true
}

func sample(text string) string {
	r := []rune(text)
	if len(r) > sampleRunes {
		r = r[:sampleRunes]
	}
	return string(r)
}

// DomainType classifies a site from its host name: gov, edu, academic,
// mobile or commercial.
func DomainType(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return "unknown"
	}
	host := strings.ToLower(u.Hostname())

	if strings.HasSuffix(host, ".gov") || strings.HasSuffix(host, ".mil") || strings.Contains(host, ".gov.") {
		return "gov"
	}
	if strings.HasSuffix(host, ".edu") || strings.Contains(host, ".ac.") || strings.Contains(host, ".edu.") {
		return "edu"
	}

	academicDomains := []string{
		"arxiv.org", "doi.org", "pubmed.ncbi.nlm.nih.gov",
		"scholar.google.com", "researchgate.net", "academia.edu",
		"biorxiv.org", "medrxiv.org", "ssrn.com",
	}
	for _, domain := range academicDomains {
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return "academic"
		}
	}

	if strings.HasPrefix(host, "m.") || strings.HasPrefix(host, "mobile.") {
		return "mobile"
	}
	return "commercial"
}
