package deeplink

import (
	"net/url"
	"strings"
)

// ParseURL builds a Record from a raw URL string. It never fails: malformed
// input degrades to path "/" with empty parameters, and the raw URL is
// preserved verbatim.
func ParseURL(raw string) Record {
	rec := Record{
		URL:        raw,
		Path:       "/",
		Parameters: map[string]string{},
	}
	prefix, query, _ := strings.Cut(raw, "?")
	rec.Path = extractPath(prefix)
	if query != "" {
		rec.Parameters = parseQuery(query)
	}
	return hoistAttribution(rec)
}

// extractPath pulls the path component out of the part before the query
// string. A scheme://host/path form yields everything after the host. With
// no slash after "://" the remainder is a bare host for web schemes
// (https://x.link) but a path segment for custom schemes (myapp://products).
func extractPath(prefix string) string {
	idx := strings.Index(prefix, "://")
	if idx <= 0 {
		return "/"
	}
	scheme := strings.ToLower(prefix[:idx])
	rest := prefix[idx+len("://"):]
	if rest == "" {
		return "/"
	}
	if slash := strings.Index(rest, "/"); slash >= 0 {
		if path := rest[slash:]; path != "/" && path != "" {
			return path
		}
		return "/"
	}
	if scheme == "http" || scheme == "https" {
		return "/"
	}
	return "/" + rest
}

// parseQuery splits a query string on "&" and each pair on the first "=".
// Key and value are percent-decoded independently; a pair whose decoding
// fails keeps its raw key or value rather than being discarded.
func parseQuery(query string) map[string]string {
	params := map[string]string{}
	for _, pair := range strings.Split(query, "&") {
		if pair == "" {
			continue
		}
		key, value, _ := strings.Cut(pair, "=")
		if key == "" {
			continue
		}
		if decoded, err := url.QueryUnescape(key); err == nil {
			key = decoded
		}
		if decoded, err := url.QueryUnescape(value); err == nil {
			value = decoded
		}
		params[key] = value
	}
	return params
}
