// Package urlnorm canonicalizes article URLs so that the same page reached
// through different links maps to one history key.
package urlnorm

import (
	"fmt"
	"net"
	"net/url"
	"path"
	"sort"
	"strings"
)

type InvalidURLError struct {
	Raw    string
	Reason string
}

func (e *InvalidURLError) Error() string {
	return fmt.Sprintf("invalid URL %q: %s", e.Raw, e.Reason)
}

var trackingParams = map[string]bool{
	"fbclid":  true,
	"gclid":   true,
	"msclkid": true,
	"mc_eid":  true,
	"mc_cid":  true,
	"igshid":  true,
	"yclid":   true,
	"_ga":     true,
	"_hsenc":  true,
	"_hsmi":   true,
	"ref_src": true,
}

func isTrackingParam(key string) bool {
	k := strings.ToLower(key)
	return strings.HasPrefix(k, "utm_") || trackingParams[k]
}

// Normalize returns the canonical form of raw. Applying it to its own
// output returns the same string.
func Normalize(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", &InvalidURLError{Raw: raw, Reason: "empty"}
	}

	u, err := url.Parse(trimmed)
	if err != nil {
		return "", &InvalidURLError{Raw: raw, Reason: err.Error()}
	}

	return normalizeParsed(raw, u)
}

// Resolve interprets ref relative to base and normalizes the result.
func Resolve(base, ref string) (string, error) {
	baseURL, err := url.Parse(strings.TrimSpace(base))
	if err != nil {
		return "", &InvalidURLError{Raw: base, Reason: err.Error()}
	}

	refURL, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return "", &InvalidURLError{Raw: ref, Reason: err.Error()}
	}

	return normalizeParsed(ref, baseURL.ResolveReference(refURL))
}

// Absolute resolves ref against base without normalizing, so the result
// can be fetched exactly as the site published it. Only the fragment is
// dropped.
func Absolute(base, ref string) (string, error) {
	baseURL, err := url.Parse(strings.TrimSpace(base))
	if err != nil {
		return "", &InvalidURLError{Raw: base, Reason: err.Error()}
	}

	refURL, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return "", &InvalidURLError{Raw: ref, Reason: err.Error()}
	}

	resolved := baseURL.ResolveReference(refURL)
	if s := strings.ToLower(resolved.Scheme); s != "http" && s != "https" {
		return "", &InvalidURLError{Raw: ref, Reason: "unsupported scheme"}
	}
	if resolved.Hostname() == "" {
		return "", &InvalidURLError{Raw: ref, Reason: "missing host"}
	}

	resolved.Fragment = ""
	resolved.RawFragment = ""
	return resolved.String(), nil
}

// SameHost reports whether two URLs point at the same host, ignoring a
// leading "www.".
func SameHost(a, b string) bool {
	ua, err := url.Parse(a)
	if err != nil {
		return false
	}
	ub, err := url.Parse(b)
	if err != nil {
		return false
	}
	return bareHost(ua.Hostname()) == bareHost(ub.Hostname())
}

func bareHost(host string) string {
	return strings.TrimPrefix(strings.ToLower(host), "www.")
}

func normalizeParsed(raw string, u *url.URL) (string, error) {
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", &InvalidURLError{Raw: raw, Reason: "unsupported scheme"}
	}
	if u.Hostname() == "" {
		return "", &InvalidURLError{Raw: raw, Reason: "missing host"}
	}

	u.Scheme = scheme
	u.Host = normalizeHost(scheme, u.Host)
	u.User = nil
	u.Fragment = ""
	u.RawFragment = ""

	escaped := cleanPath(normalizeEscapes(u.EscapedPath(), pathChars))
	decoded, err := url.PathUnescape(escaped)
	if err != nil {
		return "", &InvalidURLError{Raw: raw, Reason: err.Error()}
	}
	u.Path = decoded
	u.RawPath = escaped

	u.RawQuery = cleanQuery(u.RawQuery)
	u.ForceQuery = false

	return u.String(), nil
}

func normalizeHost(scheme, host string) string {
	host = strings.ToLower(host)

	hostname, port, err := net.SplitHostPort(host)
	if err != nil {
		return host
	}

	if (scheme == "http" && port == "80") || (scheme == "https" && port == "443") || port == "" {
		if strings.Contains(hostname, ":") {
			return "[" + hostname + "]"
		}
		return hostname
	}

	return host
}

func cleanPath(p string) string {
	if p == "" || p == "/" {
		return "/"
	}

	cleaned := path.Clean("/" + p)
	if cleaned != "/" {
		cleaned = strings.TrimSuffix(cleaned, "/")
	}
	return cleaned
}

// cleanQuery drops tracking parameters and sorts the rest by key, keeping
// the order of repeated keys. Pairs are handled as raw text so ones that do
// not decode survive.
func cleanQuery(raw string) string {
	type pair struct {
		key, text string
	}

	var pairs []pair
	for _, part := range strings.Split(raw, "&") {
		if part == "" {
			continue
		}
		part = strings.ReplaceAll(normalizeEscapes(part, queryChars), "%20", "+")

		key, _, _ := strings.Cut(part, "=")
		name, err := url.QueryUnescape(key)
		if err != nil {
			name = key
		}
		if isTrackingParam(name) {
			continue
		}
		pairs = append(pairs, pair{key: key, text: part})
	}

	sort.SliceStable(pairs, func(i, j int) bool {
		return pairs[i].key < pairs[j].key
	})

	texts := make([]string, len(pairs))
	for i, p := range pairs {
		texts[i] = p.text
	}
	return strings.Join(texts, "&")
}

// Characters besides the unreserved set that may appear unescaped.
const (
	pathChars  = "/!$&'()*+,;=:@"
	queryChars = "/?!$'()*+,;=:@"
	upperHex   = "0123456789ABCDEF"
)

// normalizeEscapes puts percent-encoding in one form: escaped unreserved
// characters are decoded, hex digits are uppercased, and a stray '%' or a
// byte outside allowed is escaped. Every distinct input byte sequence keeps
// a distinct output.
func normalizeEscapes(s, allowed string) string {
	var b strings.Builder
	b.Grow(len(s))

	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '%' && i+2 < len(s) && isHex(s[i+1]) && isHex(s[i+2]):
			decoded := unhex(s[i+1])<<4 | unhex(s[i+2])
			if isUnreserved(decoded) {
				b.WriteByte(decoded)
			} else {
				writeEscaped(&b, decoded)
			}
			i += 2
		case isUnreserved(c) || strings.IndexByte(allowed, c) >= 0:
			b.WriteByte(c)
		default:
			writeEscaped(&b, c)
		}
	}
	return b.String()
}

func writeEscaped(b *strings.Builder, c byte) {
	b.WriteByte('%')
	b.WriteByte(upperHex[c>>4])
	b.WriteByte(upperHex[c&15])
}

func isUnreserved(c byte) bool {
	return 'a' <= c && c <= 'z' || 'A' <= c && c <= 'Z' || '0' <= c && c <= '9' ||
		c == '-' || c == '.' || c == '_' || c == '~'
}

func isHex(c byte) bool {
	return '0' <= c && c <= '9' || 'a' <= c && c <= 'f' || 'A' <= c && c <= 'F'
}

func unhex(c byte) byte {
	switch {
	case '0' <= c && c <= '9':
		return c - '0'
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10
	default:
		return c - 'A' + 10
	}
}
