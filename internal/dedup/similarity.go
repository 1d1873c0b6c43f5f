package dedup

import (
	"encoding/hex"
	"fmt"
	"math"
	"strings"
	"unicode"

	"golang.org/x/crypto/blake2b"

	types "github.com/yungbote/listingtrust-backend/internal/domain"
)

// Fingerprint is a blake2b-256 digest of the normalized identity fields and text.
// Two listings with the same fingerprint are the same listing reposted.
func Fingerprint(c types.ListingCandidate) string {
	var mileage string
	if c.Mileage != nil {
		mileage = fmt.Sprint(*c.Mileage)
	}
	parts := []string{
		normalize(c.Brand),
		normalize(c.Model),
		fmt.Sprint(c.Year),
		fmt.Sprint(c.Price),
		mileage,
		normalize(c.City),
		strings.Join(tokens(c.Text()), " "),
	}
	sum := blake2b.Sum256([]byte(strings.Join(parts, "\x1f")))
	return hex.EncodeToString(sum[:])
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// tokens lowercases s and splits it on anything that is not a letter or digit.
func tokens(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// jaccard is |A∩B| / |A∪B| over token sets; two empty sets score 0.
func jaccard(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	set := make(map[string]uint8, len(a)+len(b))
	for _, t := range a {
		set[t] |= 1
	}
	for _, t := range b {
		set[t] |= 2
	}
	inter := 0
	for _, m := range set {
		if m == 3 {
			inter++
		}
	}
	return float64(inter) / float64(len(set))
}

// priceProximity is 1 for equal prices and falls linearly to 0 at a 100% difference.
func priceProximity(a, b int64) float64 {
	if a <= 0 || b <= 0 {
		return 0
	}
	hi := math.Max(float64(a), float64(b))
	diff := math.Abs(float64(a) - float64(b))
	return math.Max(0, 1-diff/hi)
}

// confidence blends content similarity with price proximity.
func confidence(similarity float64, a, b int64) float64 {
	c := 0.8*similarity + 0.2*priceProximity(a, b)
	return math.Max(0, math.Min(1, c))
}
