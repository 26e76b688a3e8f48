package util

import (
	"net/url"
	"strings"
)

// Hostname returns the lower-cased host of rawURL without port.
// Returns empty string if rawURL cannot be parsed or has no host.
func Hostname(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(parsed.Hostname())
}

// SameHost reports whether both URLs are absolute http(s) URLs on the same host.
func SameHost(a, b string) bool {
	for _, raw := range []string{a, b} {
		if strings.ContainsAny(raw, "\r\n") {
			return false
		}
		parsed, err := url.Parse(raw)
		if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
			return false
		}
	}
	hostA := Hostname(a)
	return hostA != "" && hostA == Hostname(b)
}

// JoinDomainPath appends a relative path to a domain URL, collapsing the
// slash between them.
func JoinDomainPath(domain, path string) string {
	return strings.TrimRight(domain, "/") + "/" + strings.TrimLeft(path, "/")
}

// AppendQuery adds the given key/value pairs to rawURL's query string,
// preserving any parameters already present.
func AppendQuery(rawURL string, params url.Values) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		sep := "?"
		if strings.Contains(rawURL, "?") {
			sep = "&"
		}
		return rawURL + sep + params.Encode()
	}
	query := parsed.Query()
	for key, values := range params {
		for _, v := range values {
			query.Add(key, v)
		}
	}
	parsed.RawQuery = query.Encode()
	return parsed.String()
}
