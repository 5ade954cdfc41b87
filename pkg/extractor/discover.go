package extractor

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/dtnitsch/persona-ingest/pkg/urlnorm"
)

// linkSelectors covers ordinary anchors plus navigation and pagination
// patterns that carry hrefs on non-anchor elements.
var linkSelectors = []struct {
	selector string
	attr     string
}{
	{"a[href]", "href"},
	{"area[href]", "href"},
	{"link[rel='next'][href]", "href"},
	{"link[rel='prev'][href]", "href"},
	{"[class*='pagination'] [href], [class*='pager'] [href]", "href"},
	{"[class*='archive'] [href], [class*='menu'] [href]", "href"},
	{"nav [href], [role='navigation'] [href]", "href"},
	{"[data-href]", "data-href"},
}

var imageAttrSelectors = []struct {
	selector string
	attr     string
}{
	{"img[src]", "src"},
	{"[data-src]", "data-src"},
	{"[data-lazy-src]", "data-lazy-src"},
	{"[data-original]", "data-original"},
}

var srcsetSelectors = []struct {
	selector string
	attr     string
}{
	{"img[srcset], source[srcset]", "srcset"},
	{"[data-srcset]", "data-srcset"},
}

var backgroundURL = regexp.MustCompile(`(?i)url\(\s*['"]?([^'")]+?)['"]?\s*\)`)

// orderedSet keeps first-seen order.
type orderedSet struct {
	seen  map[string]struct{}
	items []string
}

func newOrderedSet() *orderedSet {
	return &orderedSet{seen: make(map[string]struct{})}
}

func (s *orderedSet) add(v string) {
	if _, ok := s.seen[v]; ok {
		return
	}
	s.seen[v] = struct{}{}
	s.items = append(s.items, v)
}

func discoverLinks(doc *goquery.Document, base *url.URL, pageURL string) []string {
	links := newOrderedSet()
	for _, ls := range linkSelectors {
		doc.Find(ls.selector).Each(func(_ int, s *goquery.Selection) {
			href, _ := s.Attr(ls.attr)
			abs, ok := urlnorm.Resolve(base, href)
			if !ok || !urlnorm.SameSite(abs, pageURL) {
				return
			}
			links.add(abs)
		})
	}
	return links.items
}

func discoverImages(doc *goquery.Document, base *url.URL) []string {
	images := newOrderedSet()
	add := func(ref string) {
		if abs, ok := urlnorm.Resolve(base, ref); ok {
			images.add(abs)
		}
	}

	for _, is := range imageAttrSelectors {
		doc.Find(is.selector).Each(func(_ int, s *goquery.Selection) {
			v, _ := s.Attr(is.attr)
			add(v)
		})
	}
	for _, ss := range srcsetSelectors {
		doc.Find(ss.selector).Each(func(_ int, s *goquery.Selection) {
			v, _ := s.Attr(ss.attr)
			for _, candidate := range parseSrcset(v) {
				add(candidate)
			}
		})
	}
	doc.Find("[style]").Each(func(_ int, s *goquery.Selection) {
		style, _ := s.Attr("style")
		for _, ref := range backgroundImages(style) {
			add(ref)
		}
	})
	return images.items
}

// parseSrcset returns the URL of every candidate in a srcset attribute.
func parseSrcset(srcset string) []string {
	var urls []string
	for _, candidate := range strings.Split(srcset, ",") {
		fields := strings.Fields(candidate)
		if len(fields) == 0 {
			continue
		}
		urls = append(urls, fields[0])
	}
	return urls
}

// backgroundImages pulls url(...) references out of background declarations
// in an inline style.
func backgroundImages(style string) []string {
	var refs []string
	for _, decl := range strings.Split(style, ";") {
		name, value, ok := strings.Cut(decl, ":")
		if !ok {
			continue
		}
		name = strings.ToLower(strings.TrimSpace(name))
		if name != "background" && name != "background-image" {
			continue
		}
		for _, m := range backgroundURL.FindAllStringSubmatch(value, -1) {
			refs = append(refs, strings.TrimSpace(m[1]))
		}
	}
	return refs
}
