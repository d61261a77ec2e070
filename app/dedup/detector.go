// Package dedup flags articles that repeat content already in a topic's
// recent corpus.
package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"hash/fnv"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

const (
	MethodChecksum   = "checksum"
	MethodURL        = "url"
	MethodSimilarity = "similarity"

	DefaultThreshold = 0.8
	shingleSize      = 3
)

// Record is the part of an article the detector compares.
type Record struct {
	ID            string
	NormalizedURL string
	Checksum      string
	Body          string
}

type Match struct {
	DuplicateID string
	Method      string
	Score       float64
}

type Detector struct {
	threshold float64
}

func NewDetector(threshold float64) *Detector {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultThreshold
	}
	return &Detector{threshold: threshold}
}

// Run returns one match per corpus entry that duplicates record, strongest
// method first: checksum, then URL, then shingle similarity. Entries with
// record's own ID are never matched.
func (d *Detector) Run(record Record, corpus []Record) []Match {
	checksum := record.Checksum
	if checksum == "" {
		checksum = Checksum(record.Body)
	}

	var shingles map[uint64]struct{}
	var matches []Match

	for _, entry := range corpus {
		if record.ID != "" && entry.ID == record.ID {
			continue
		}

		entryChecksum := entry.Checksum
		if entryChecksum == "" {
			entryChecksum = Checksum(entry.Body)
		}

		switch {
		case checksum != "" && checksum == entryChecksum:
			matches = append(matches, Match{DuplicateID: entry.ID, Method: MethodChecksum, Score: 1.0})
			continue
		case record.NormalizedURL != "" && record.NormalizedURL == entry.NormalizedURL:
			matches = append(matches, Match{DuplicateID: entry.ID, Method: MethodURL, Score: 1.0})
			continue
		}

		if shingles == nil {
			shingles = Shingles(record.Body)
		}
		if score := Jaccard(shingles, Shingles(entry.Body)); score >= d.threshold {
			matches = append(matches, Match{DuplicateID: entry.ID, Method: MethodSimilarity, Score: score})
		}
	}

	return matches
}

// Normalize folds text to NFKC, lower case, no punctuation and single
// spaces.
func Normalize(text string) string {
	folded := strings.ToLower(norm.NFKC.String(text))

	var b strings.Builder
	b.Grow(len(folded))
	space := false
	for _, r := range folded {
		switch {
		case unicode.IsLetter(r) || unicode.IsNumber(r):
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
		case unicode.IsSpace(r):
			space = true
		}
	}
	return b.String()
}

// Checksum is the SHA-256 of the normalized text, or "" for text with no
// words.
func Checksum(text string) string {
	normalized := Normalize(text)
	if normalized == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// Shingles hashes every run of three consecutive normalized words. Texts
// shorter than three words yield a single shingle of all their words.
func Shingles(text string) map[uint64]struct{} {
	words := strings.Fields(Normalize(text))
	set := make(map[uint64]struct{})
	if len(words) == 0 {
		return set
	}
	if len(words) < shingleSize {
		set[hashWords(words)] = struct{}{}
		return set
	}
	for i := 0; i+shingleSize <= len(words); i++ {
		set[hashWords(words[i:i+shingleSize])] = struct{}{}
	}
	return set
}

func hashWords(words []string) uint64 {
	h := fnv.New64a()
	for i, word := range words {
		if i > 0 {
			h.Write([]byte{' '})
		}
		h.Write([]byte(word))
	}
	return h.Sum64()
}

// Jaccard returns |a∩b| / |a∪b|, 0 when both sets are empty.
func Jaccard(a, b map[uint64]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	small, large := a, b
	if len(small) > len(large) {
		small, large = large, small
	}
	shared := 0
	for key := range small {
		if _, ok := large[key]; ok {
			shared++
		}
	}
	union := len(a) + len(b) - shared
	return float64(shared) / float64(union)
}
