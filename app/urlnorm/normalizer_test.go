package urlnorm

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		expected string
	}{
		{"lowercases scheme and host", "HTTPS://Example.COM/Path", "https://example.com/Path"},
		{"strips default https port", "https://example.com:443/a", "https://example.com/a"},
		{"strips default http port", "http://example.com:80/a", "http://example.com/a"},
		{"keeps custom port", "http://example.com:8080/a", "http://example.com:8080/a"},
		{"drops fragment", "https://example.com/a#section", "https://example.com/a"},
		{"removes trailing slash", "https://example.com/news/", "https://example.com/news"},
		{"keeps root slash", "https://example.com/", "https://example.com/"},
		{"adds root slash", "https://example.com", "https://example.com/"},
		{"resolves dot segments", "https://example.com/a/./b/../c", "https://example.com/a/c"},
		{"strips tracking params", "https://example.com/a?utm_source=x&id=5&fbclid=abc", "https://example.com/a?id=5"},
		{"sorts query params", "https://example.com/a?z=1&a=2", "https://example.com/a?a=2&z=1"},
		{"drops empty query", "https://example.com/a?utm_medium=email", "https://example.com/a"},
		{"strips user info", "https://user:pw@example.com/a", "https://example.com/a"},
		{"trims whitespace", "  https://example.com/a  ", "https://example.com/a"},
		{"keeps escaped slash", "https://example.com/a%2Fb", "https://example.com/a%2Fb"},
		{"decodes unreserved escapes", "https://example.com/%7Euser/", "https://example.com/~user"},
		{"uppercases escape hex", "https://example.com/caf%c3%a9", "https://example.com/caf%C3%A9"},
		{"keeps undecodable query pair", "https://example.com/s?q=%zz&b=1", "https://example.com/s?b=1&q=%25zz"},
		{"keeps repeated key order", "https://example.com/s?tag=b&id=1&tag=a", "https://example.com/s?id=1&tag=b&tag=a"},
		{"keeps valueless key", "https://example.com/s?amp&id=1", "https://example.com/s?amp&id=1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	inputs := []string{
		"HTTPS://Example.COM:443/a/../b/?utm_campaign=x&q=go&a=1#frag",
		"http://[::1]:80/x/",
		"https://example.com/search?q=hello+world&page=2",
		"https://example.com/%7Euser/",
		"https://example.com/a%2Fb/c%2f",
		"https://example.com/s?q=%zz&b=1&q=%E2%82%AC",
		"https://example.com/s?q=a%20b&utm_source=x",
	}

	for _, raw := range inputs {
		once, err := Normalize(raw)
		require.NoError(t, err, raw)
		twice, err := Normalize(once)
		require.NoError(t, err, once)
		assert.Equal(t, once, twice, "normalize should be idempotent for %s", raw)
	}
}

func TestNormalizeKeepsDistinctURLsApart(t *testing.T) {
	pairs := [][2]string{
		{"https://example.com/a%2Fb", "https://example.com/a/b"},
		{"https://example.com/s?q=%zz&b=1", "https://example.com/s?b=1"},
		{"https://example.com/s?q=a%26b", "https://example.com/s?q=a&b"},
	}

	for _, pair := range pairs {
		first, err := Normalize(pair[0])
		require.NoError(t, err)
		second, err := Normalize(pair[1])
		require.NoError(t, err)
		assert.NotEqual(t, first, second, "%s and %s collapsed", pair[0], pair[1])
	}
}

func TestNormalizeRejectsInvalid(t *testing.T) {
	inputs := []string{
		"",
		"ftp://example.com/file",
		"mailto:someone@example.com",
		"javascript:void(0)",
		"/relative/path",
		"https://",
	}

	for _, raw := range inputs {
		_, err := Normalize(raw)
		require.Error(t, err, raw)

		var invalid *InvalidURLError
		assert.True(t, errors.As(err, &invalid), "expected InvalidURLError for %q", raw)
	}
}

func TestResolve(t *testing.T) {
	got, err := Resolve("https://example.com/news/index.html", "../world/story-1/?utm_source=rss")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/world/story-1", got)

	got, err = Resolve("https://example.com/news/", "https://Other.org/x")
	require.NoError(t, err)
	assert.Equal(t, "https://other.org/x", got)

	_, err = Resolve("https://example.com/", "mailto:a@b.c")
	assert.Error(t, err)
}

func TestSameHost(t *testing.T) {
	assert.True(t, SameHost("https://www.example.com/a", "https://example.com/b"))
	assert.True(t, SameHost("https://EXAMPLE.com/a", "http://example.com:8080/b"))
	assert.False(t, SameHost("https://example.com/a", "https://cdn.example.org/b"))
}

func TestAbsolute(t *testing.T) {
	got, err := Absolute("https://example.com/news/", "story-1/?utm_source=rss#top")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/news/story-1/?utm_source=rss", got)

	_, err = Absolute("https://example.com/", "javascript:void(0)")
	assert.Error(t, err)
}
