package dedup

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const story = "The city council approved the new transit budget on Tuesday evening after a long debate. " +
	"Supporters said the plan would add bus routes to underserved neighborhoods and cut waiting times. " +
	"Critics argued the money should go to road repairs first, but the measure passed seven to two."

func TestNormalize(t *testing.T) {
	assert.Equal(t, "hello world 2024", Normalize("  Hello,   WORLD!! 2024... "))
	assert.Equal(t, "cafe fi", Normalize("CAFE ﬁ"))
	assert.Equal(t, "", Normalize("!!! ... ---"))
}

func TestChecksum(t *testing.T) {
	a := Checksum("Breaking: Markets rally!")
	b := Checksum("breaking markets   RALLY")

	assert.Len(t, a, 64)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, Checksum("Markets fall"))
	assert.Equal(t, "", Checksum("   "))
}

func TestJaccard(t *testing.T) {
	a := Shingles("one two three four five")
	b := Shingles("one two three four five")
	c := Shingles("six seven eight nine ten")

	assert.Equal(t, 1.0, Jaccard(a, b))
	assert.Equal(t, 0.0, Jaccard(a, c))
	assert.Equal(t, 0.0, Jaccard(Shingles(""), Shingles("")))
	assert.Len(t, Shingles("just two"), 1)
}

func TestDetector_Checksum(t *testing.T) {
	detector := NewDetector(DefaultThreshold)

	record := Record{ID: "new", NormalizedURL: "https://a.example.com/x", Body: story}
	corpus := []Record{
		{ID: "old", NormalizedURL: "https://b.example.com/y", Body: strings.ToUpper(story)},
	}

	matches := detector.Run(record, corpus)
	require.Len(t, matches, 1)
	assert.Equal(t, Match{DuplicateID: "old", Method: MethodChecksum, Score: 1.0}, matches[0])
}

func TestDetector_URL(t *testing.T) {
	detector := NewDetector(DefaultThreshold)

	record := Record{ID: "new", NormalizedURL: "https://a.example.com/x", Body: story}
	corpus := []Record{
		{ID: "old", NormalizedURL: "https://a.example.com/x", Body: "An entirely different earlier version of the page."},
	}

	matches := detector.Run(record, corpus)
	require.Len(t, matches, 1)
	assert.Equal(t, MethodURL, matches[0].Method)
}

func TestDetector_Similarity(t *testing.T) {
	detector := NewDetector(0.7)

	edited := strings.Replace(story, "Tuesday evening", "Tuesday night", 1)
	record := Record{ID: "new", Body: edited}
	corpus := []Record{
		{ID: "near", Body: story},
		{ID: "far", Body: "A completely unrelated article about gardening tips for the spring season and soil care."},
	}

	matches := detector.Run(record, corpus)
	require.Len(t, matches, 1)
	assert.Equal(t, "near", matches[0].DuplicateID)
	assert.Equal(t, MethodSimilarity, matches[0].Method)
	assert.GreaterOrEqual(t, matches[0].Score, 0.7)
	assert.Less(t, matches[0].Score, 1.0)
}

func TestDetector_NeverMatchesSelf(t *testing.T) {
	detector := NewDetector(DefaultThreshold)

	record := Record{ID: "same", NormalizedURL: "https://a.example.com/x", Body: story}

	assert.Empty(t, detector.Run(record, []Record{record}))
}

func TestDetector_Symmetric(t *testing.T) {
	detector := NewDetector(0.5)

	a := Record{ID: "a", Body: story}
	b := Record{ID: "b", Body: story + " The mayor is expected to sign it next week."}

	ab := detector.Run(a, []Record{b})
	ba := detector.Run(b, []Record{a})

	require.Len(t, ab, 1)
	require.Len(t, ba, 1)
	assert.Equal(t, ab[0].Method, ba[0].Method)
	assert.InDelta(t, ab[0].Score, ba[0].Score, 1e-9)
	assert.GreaterOrEqual(t, ab[0].Score, 0.0)
	assert.LessOrEqual(t, ab[0].Score, 1.0)
}

func TestNewDetector_InvalidThreshold(t *testing.T) {
	assert.Equal(t, DefaultThreshold, NewDetector(0).threshold)
	assert.Equal(t, DefaultThreshold, NewDetector(1.5).threshold)
	assert.Equal(t, 0.6, NewDetector(0.6).threshold)
}
