// Package urlnorm resolves and cleans URLs discovered in crawled pages.
package urlnorm

import (
	"errors"
	"net/url"
	"strings"
)

var ErrInvalidURL = errors.New("invalid url")

var rejectedSchemes = []string{"javascript:", "mailto:", "data:", "tel:"}

// trackingParams are dropped from queries. Keys ending in * match by prefix.
var trackingParams = []string{
	"utm_*", "fbclid", "gclid", "dclid", "msclkid", "mc_cid", "mc_eid",
	"_ga", "_gl", "igshid", "yclid", "ref_src",
}

func isTrackingParam(key string) bool {
	key = strings.ToLower(key)
	for _, p := range trackingParams {
		if prefix, ok := strings.CutSuffix(p, "*"); ok {
			if strings.HasPrefix(key, prefix) {
				return true
			}
			continue
		}
		if key == p {
			return true
		}
	}
	return false
}

// Resolve turns ref into an absolute http(s) URL relative to base. The
// fragment and tracking parameters are removed. It reports false for empty,
// non-http and unparsable references.
func Resolve(base *url.URL, ref string) (string, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.HasPrefix(ref, "#") {
		return "", false
	}
	lower := strings.ToLower(ref)
	for _, scheme := range rejectedSchemes {
		if strings.HasPrefix(lower, scheme) {
			return "", false
		}
	}

	u, err := url.Parse(ref)
	if err != nil {
		return "", false
	}
	if base != nil {
		u = base.ResolveReference(u)
	}
	if !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", false
	}
	return clean(u), true
}

// Normalize cleans an absolute URL.
func Normalize(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", errors.Join(ErrInvalidURL, err)
	}
	if !u.IsAbs() || u.Host == "" {
		return "", ErrInvalidURL
	}
	out, ok := Resolve(nil, u.String())
	if !ok {
		return "", ErrInvalidURL
	}
	return out, nil
}

func clean(u *url.URL) string {
	u.Fragment = ""
	u.RawFragment = ""
	u.Host = strings.ToLower(u.Host)
	if port := u.Port(); (u.Scheme == "http" && port == "80") || (u.Scheme == "https" && port == "443") {
		u.Host = strings.TrimSuffix(u.Host, ":"+port)
	}
	// A bare host and its root are the same page.
	if u.Path == "" {
		u.Path = "/"
		u.RawPath = ""
	}

	if u.RawQuery != "" {
		params := strings.Split(u.RawQuery, "&")
		kept := params[:0]
		dropped := false
		for _, p := range params {
			key := p
			if i := strings.IndexByte(p, '='); i >= 0 {
				key = p[:i]
			}
			if k, err := url.QueryUnescape(key); err == nil {
				key = k
			}
			if isTrackingParam(key) {
				dropped = true
				continue
			}
			kept = append(kept, p)
		}
		// Only rebuild when something was removed so clean URLs round trip unchanged.
		if dropped {
			u.RawQuery = strings.Join(kept, "&")
		}
	}
	if u.RawQuery == "" {
		u.ForceQuery = false
	}
	return u.String()
}

// Host returns the lowercased hostname with a leading "www." removed.
func Host(u *url.URL) string {
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

// SameSite reports whether two absolute URLs share a host.
func SameSite(a, b string) bool {
	ua, err := url.Parse(a)
	if err != nil {
		return false
	}
	ub, err := url.Parse(b)
	if err != nil {
		return false
	}
	ha, hb := Host(ua), Host(ub)
	return ha != "" && ha == hb
}
