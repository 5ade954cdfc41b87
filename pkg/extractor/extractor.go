// Package extractor turns a fetched HTML document into links, images and
// readable text.
package extractor

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"
	"github.com/jaytaylor/html2text"
	"golang.org/x/net/html"

	"github.com/dtnitsch/persona-ingest/models"
	"github.com/dtnitsch/persona-ingest/pkg/urlnorm"
)

// contentThreshold is the length a main-content candidate must exceed to be used.
const contentThreshold = 200

// Text sources recorded on models.Page.
const (
	SourceSelector    = "selector"
	SourceParagraphs  = "paragraphs"
	SourceReadability = "readability"
	SourceFullText    = "fulltext"
)

// mainContentSelectors are tried in order; the first with enough text wins.
var mainContentSelectors = []string{
	"article",
	"main",
	"[role='main']",
	".post-content",
	".entry-content",
	".article-content",
	".article-body",
	"#content",
	".content",
	".post",
	".blog-post",
}

const blockSelector = "p, h1, h2, h3, h4, h5, h6, li, blockquote, pre"

// pruneSelector removes chrome and non-content elements before text extraction.
const pruneSelector = "script, style, noscript, iframe, svg, form, nav, header, footer, aside, " +
	"[role='navigation'], [role='banner'], [role='contentinfo'], " +
	"[class*='sidebar'], [id*='sidebar'], [class*='cookie'], [class*='advert'], [class*='menu']"

type Extractor struct {
	logger *slog.Logger
}

func New(logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{logger: logger}
}

// Extract parses body as the document found at pageURL. Links and images are
// collected from the full document before anything is pruned.
func (e *Extractor) Extract(pageURL string, body []byte) (*models.Page, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("invalid page URL: %w", err)
	}
	root, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	doc := goquery.NewDocumentFromNode(root)
	base = documentBase(doc, base)

	page := &models.Page{
		URL:    pageURL,
		Links:  discoverLinks(doc, base, pageURL),
		Images: discoverImages(doc, base),
	}
	page.Title = normalizeInline(doc.Find("title").First().Text())

	rp := readability.NewParser()
	article, rerr := rp.Parse(bytes.NewReader(body), base)
	if rerr != nil {
		e.logger.Debug("readability failed", "url", pageURL, "error", rerr)
	} else {
		page.Excerpt = normalizeInline(article.Excerpt)
		page.SiteName = normalizeInline(article.SiteName)
		if page.Title == "" {
			page.Title = normalizeInline(article.Title)
		}
	}
	if page.Title == "" {
		page.Title = normalizeInline(doc.Find("h1").First().Text())
	}

	doc.Find(pruneSelector).Remove()

	page.Text, page.TextSource = e.mainText(doc, article.Content, rerr == nil)
	return page, nil
}

func (e *Extractor) mainText(doc *goquery.Document, readableHTML string, haveReadable bool) (string, string) {
	for _, sel := range mainContentSelectors {
		s := doc.Find(sel).First()
		if s.Length() == 0 {
			continue
		}
		if text := blockText(s); len(text) > contentThreshold {
			return text, SourceSelector
		}
	}

	var paras []string
	doc.Find("p").Each(func(_ int, s *goquery.Selection) {
		if t := normalizeInline(s.Text()); t != "" {
			paras = append(paras, t)
		}
	})
	if text := normalizeText(strings.Join(paras, "\n\n")); len(text) > contentThreshold {
		return text, SourceParagraphs
	}

	if haveReadable && readableHTML != "" {
		if rdoc, err := goquery.NewDocumentFromReader(strings.NewReader(readableHTML)); err == nil {
			if text := blockText(rdoc.Selection); len(text) > contentThreshold {
				return text, SourceReadability
			}
		}
	}

	return fullText(doc), SourceFullText
}

// blockText joins the text of block-level elements inside s, or the whole
// selection text when it has none.
func blockText(s *goquery.Selection) string {
	var blocks []string
	s.Find(blockSelector).Each(func(_ int, b *goquery.Selection) {
		// Nested blocks are reported through their outermost block.
		if b.ParentsFiltered(blockSelector).Length() > 0 {
			return
		}
		if t := normalizeInline(b.Text()); t != "" {
			blocks = append(blocks, t)
		}
	})
	if len(blocks) == 0 {
		return normalizeText(s.Text())
	}
	return normalizeText(strings.Join(blocks, "\n\n"))
}

func fullText(doc *goquery.Document) string {
	body := doc.Find("body")
	if body.Length() == 0 {
		body = doc.Selection
	}
	markup, err := goquery.OuterHtml(body)
	if err == nil {
		if text, err := html2text.FromString(markup, html2text.Options{TextOnly: true}); err == nil {
			return normalizeText(text)
		}
	}
	return normalizeText(body.Text())
}

// documentBase honours <base href> when present.
func documentBase(doc *goquery.Document, pageURL *url.URL) *url.URL {
	href, ok := doc.Find("base[href]").First().Attr("href")
	if !ok {
		return pageURL
	}
	resolved, ok := urlnorm.Resolve(pageURL, href)
	if !ok {
		return pageURL
	}
	u, err := url.Parse(resolved)
	if err != nil {
		return pageURL
	}
	return u
}
