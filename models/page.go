package models

// MinTextLength is the shortest extracted text that becomes a text asset.
const MinTextLength = 50

// Page is what the extractor pulls out of one fetched HTML document.
type Page struct {
	URL      string   `json:"url"`
	Title    string   `json:"title"`
	Text     string   `json:"text"`
	Excerpt  string   `json:"excerpt,omitempty"`
	SiteName string   `json:"siteName,omitempty"`
	Links    []string `json:"links"`
	Images   []string `json:"images"`
	// TextSource records which extraction step produced Text.
	TextSource string `json:"textSource,omitempty"`
}

// HasText reports whether the page carries enough text to be stored.
func (p *Page) HasText() bool {
	return len([]rune(p.Text)) >= MinTextLength
}

// WordCount counts whitespace separated tokens in Text.
func (p *Page) WordCount() int {
	count := 0
	inWord := false
	for _, r := range p.Text {
		switch r {
		case ' ', '\n', '\t', '\r':
			inWord = false
		default:
			if !inWord {
				count++
				inWord = true
			}
		}
	}
	return count
}
