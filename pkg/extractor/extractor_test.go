package extractor

import (
	"io"
	"log/slog"
	"slices"
	"strings"
	"testing"
)

var longPara = strings.Repeat("Our team designs durable outdoor gear for mountain guides. ", 6)

func newTestExtractor() *Extractor {
	return New(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

var fixturePage = `<!DOCTYPE html>
<html>
<head>
  <title>  About   Us | Example </title>
  <link rel="next" href="/about?page=2">
</head>
<body style="background-image: url('/img/bg.jpg')">
  <header><a href="/home">Home</a></header>
  <nav>
    <a href="/products">Products</a>
    <a href="https://other.org/partner">Partner</a>
  </nav>
  <article>
    <h1>About us</h1>
    <p>` + longPara + `</p>
    <p>Visit   our   <a href="/stores#map">stores</a>.</p>
    <img src="/img/team.png" alt="team">
    <img data-src="/img/lazy.jpg">
    <img srcset="/img/s-320.jpg 320w, /img/s-640.jpg 640w,/img/s-1280.jpg 1280w">
    <picture><source srcset="https://cdn.example.com/hero.webp 1x, https://cdn.example.com/hero@2x.webp 2x"></picture>
    <img src="data:image/png;base64,iVBORw0KGgo=">
    <img src="/img/team.png">
    <div class="hero" style="color: red; background: #fff url(&quot;/img/hero-bg.png&quot;) no-repeat"></div>
  </article>
  <div class="pagination"><span data-href="/about?page=3">3</span></div>
  <a href="javascript:void(0)">js</a>
  <a href="mailto:hello@example.com">mail</a>
  <a href="/blog/?utm_source=footer">Blog</a>
  <footer><a href="/contact">Contact</a></footer>
  <script>var x = "should not appear";</script>
</body>
</html>`

func TestExtractLinks(t *testing.T) {
	page, err := newTestExtractor().Extract("https://example.com/about", []byte(fixturePage))
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}

	want := []string{
		"https://example.com/home",
		"https://example.com/products",
		"https://example.com/stores",
		"https://example.com/blog/",
		"https://example.com/contact",
		"https://example.com/about?page=2",
		"https://example.com/about?page=3",
	}
	for _, w := range want {
		if !slices.Contains(page.Links, w) {
			t.Errorf("Links missing %q; got %v", w, page.Links)
		}
	}
	for _, l := range page.Links {
		if strings.Contains(l, "other.org") || strings.HasPrefix(l, "javascript:") || strings.HasPrefix(l, "mailto:") {
			t.Errorf("Links contains disallowed %q", l)
		}
		if strings.Contains(l, "#") {
			t.Errorf("Links contains fragment %q", l)
		}
	}
	seen := map[string]bool{}
	for _, l := range page.Links {
		if seen[l] {
			t.Errorf("duplicate link %q", l)
		}
		seen[l] = true
	}
}

func TestExtractImages(t *testing.T) {
	page, err := newTestExtractor().Extract("https://example.com/about", []byte(fixturePage))
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}

	want := []string{
		"https://example.com/img/team.png",
		"https://example.com/img/lazy.jpg",
		"https://example.com/img/s-320.jpg",
		"https://example.com/img/s-640.jpg",
		"https://example.com/img/s-1280.jpg",
		"https://cdn.example.com/hero.webp",
		"https://cdn.example.com/hero@2x.webp",
		"https://example.com/img/bg.jpg",
		"https://example.com/img/hero-bg.png",
	}
	for _, w := range want {
		if !slices.Contains(page.Images, w) {
			t.Errorf("Images missing %q; got %v", w, page.Images)
		}
	}
	if len(page.Images) != len(want) {
		t.Errorf("len(Images) = %d, want %d: %v", len(page.Images), len(want), page.Images)
	}
	for _, img := range page.Images {
		if strings.HasPrefix(img, "data:") {
			t.Errorf("data URI kept: %q", img)
		}
	}
}

func TestExtractTextFromMainContent(t *testing.T) {
	page, err := newTestExtractor().Extract("https://example.com/about", []byte(fixturePage))
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}

	if page.Title != "About Us | Example" {
		t.Errorf("Title = %q", page.Title)
	}
	if page.TextSource != SourceSelector {
		t.Errorf("TextSource = %q, want %q", page.TextSource, SourceSelector)
	}
	if !strings.Contains(page.Text, "mountain guides") {
		t.Errorf("Text missing article content: %q", page.Text)
	}
	if !strings.Contains(page.Text, "Visit our stores.") {
		t.Errorf("Text spaces not collapsed: %q", page.Text)
	}
	for _, unwanted := range []string{"should not appear", "Products", "Contact"} {
		if strings.Contains(page.Text, unwanted) {
			t.Errorf("Text contains pruned content %q", unwanted)
		}
	}
	if !page.HasText() {
		t.Error("HasText() = false, want true")
	}
}

func TestExtractFallsBackToParagraphs(t *testing.T) {
	body := `<html><body><div class="wrapper">
<p>` + longPara + `</p>
<p>Second    paragraph.</p>
</div><footer><p>Copyright footer text</p></footer></body></html>`

	page, err := newTestExtractor().Extract("https://example.com/", []byte(body))
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if page.TextSource != SourceParagraphs {
		t.Errorf("TextSource = %q, want %q", page.TextSource, SourceParagraphs)
	}
	if !strings.Contains(page.Text, "\n\nSecond paragraph.") {
		t.Errorf("Text = %q, want paragraphs separated by a blank line", page.Text)
	}
	if strings.Contains(page.Text, "Copyright") {
		t.Errorf("footer text kept: %q", page.Text)
	}
}

func TestExtractFullTextFallback(t *testing.T) {
	body := `<html><body><div>` + strings.Repeat("Plain div text without paragraphs. ", 10) + `</div></body></html>`

	page, err := newTestExtractor().Extract("https://example.com/", []byte(body))
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if !page.HasText() {
		t.Fatalf("HasText() = false, text = %q", page.Text)
	}
	if !strings.Contains(page.Text, "Plain div text without paragraphs.") {
		t.Errorf("Text = %q", page.Text)
	}
}

func TestExtractShortPageHasNoText(t *testing.T) {
	page, err := newTestExtractor().Extract("https://example.com/", []byte(`<html><body><p>Hi.</p></body></html>`))
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if page.HasText() {
		t.Errorf("HasText() = true for %q, want false", page.Text)
	}
}

func TestExtractHonoursBaseHref(t *testing.T) {
	body := `<html><head><base href="https://example.com/docs/"></head><body><a href="intro.html">Intro</a></body></html>`
	page, err := newTestExtractor().Extract("https://example.com/index.html", []byte(body))
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if !slices.Contains(page.Links, "https://example.com/docs/intro.html") {
		t.Errorf("Links = %v, want base-relative link", page.Links)
	}
}

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "spaces", in: "a    b\t\tc", want: "a b c"},
		{name: "newline runs", in: "a\n\n\n\n\nb", want: "a\n\nb"},
		{name: "blank lines with spaces", in: "a\n   \n  \n \nb", want: "a\n\nb"},
		{name: "keeps single break", in: "a\nb", want: "a\nb"},
		{name: "crlf", in: "a\r\n\r\n\r\n\r\nb", want: "a\n\nb"},
		{name: "trim", in: "  \n a \n ", want: "a"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := normalizeText(tt.in)
			if got != tt.want {
				t.Errorf("normalizeText(%q) = %q, want %q", tt.in, got, tt.want)
			}
			if strings.Contains(got, "\n\n\n") || strings.Contains(got, "  ") {
				t.Errorf("normalizeText(%q) = %q still has runs", tt.in, got)
			}
		})
	}
}

func TestParseSrcset(t *testing.T) {
	got := parseSrcset(" a.jpg 1x,  b.jpg 2x , ,c.jpg")
	want := []string{"a.jpg", "b.jpg", "c.jpg"}
	if !slices.Equal(got, want) {
		t.Errorf("parseSrcset() = %v, want %v", got, want)
	}
}

func TestBackgroundImages(t *testing.T) {
	got := backgroundImages(`color: red; BACKGROUND-IMAGE: url("a.png"), url(b.png); background: url('c.png') no-repeat; content: url(d.png)`)
	want := []string{"a.png", "b.png", "c.png"}
	if !slices.Equal(got, want) {
		t.Errorf("backgroundImages() = %v, want %v", got, want)
	}
}
