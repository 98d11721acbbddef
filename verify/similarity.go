package verify

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/sublatesublate-design/legal-database/normalize"
)

// Classification is the outcome of comparing a quote with canonical text
type Classification string

const (
	Exact      Classification = "exact"
	Paraphrase Classification = "paraphrase"
	Mismatch   Classification = "mismatch"
	NotFound   Classification = "not_found"
	// Unquoted marks a batch citation with no claimed text; only the law
	// and article were checked.
	Unquoted Classification = "unquoted"
	// Failed marks a batch citation whose lookup hit an infrastructure error
	Failed Classification = "error"
)

// Thresholds tune classification
type Thresholds struct {
	// Exact is the lower edge of the verbatim band. A quote at or above it
	// that is not verbatim has been altered and is a mismatch.
	Exact float64
	// Paraphrase is the minimum similarity for a close but non-verbatim quote
	Paraphrase float64
	// AlteredMaxEdits is the largest edit distance treated as a corrupted
	// verbatim quote rather than a rewording
	AlteredMaxEdits int
	// MinPartialRunes is the shortest quote accepted as a verbatim excerpt
	MinPartialRunes int
}

// DefaultThresholds returns the default classification bands
func DefaultThresholds() Thresholds {
	return Thresholds{Exact: 0.98, Paraphrase: 0.80, AlteredMaxEdits: 3, MinPartialRunes: 8}
}

// Validate checks the bands are ordered and inside [0,1]
func (t Thresholds) Validate() error {
	if t.Exact <= 0 || t.Exact > 1 {
		return fmt.Errorf("exact threshold %v out of (0,1]", t.Exact)
	}
	if t.Paraphrase <= 0 || t.Paraphrase >= t.Exact {
		return fmt.Errorf("paraphrase threshold %v must be in (0, %v)", t.Paraphrase, t.Exact)
	}
	if t.AlteredMaxEdits < 0 {
		return fmt.Errorf("altered edit limit %d is negative", t.AlteredMaxEdits)
	}
	return nil
}

// Comparison is the result of Compare
type Comparison struct {
	Classification Classification `json:"classification"`
	Similarity     float64        `json:"similarity"`
	Distance       int            `json:"distance"`
	Partial        bool           `json:"partial,omitempty"`
	Altered        bool           `json:"altered,omitempty"`
}

// Distance returns the rune-level Levenshtein distance between a and b
func Distance(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

// Similarity returns 1 - distance/max(len) over normalized texts, rounded
// to four places, and the distance itself
func Similarity(canonical, claimed string) (float64, int) {
	a, b := normalize.Text(canonical), normalize.Text(claimed)
	return ratio(a, b)
}

func ratio(a, b string) (float64, int) {
	longest := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if longest == 0 {
		return 1, 0
	}
	d := Distance(a, b)
	return roundRatio(1 - float64(d)/float64(longest)), d
}

func roundRatio(f float64) float64 {
	return float64(int64(f*10000+0.5)) / 10000
}

// Compare classifies a claimed quote against canonical article text.
// Only verbatim quotes are exact: the whole text, the whole text with
// punctuation changes, or an excerpt of at least MinPartialRunes. A
// near-verbatim quote with a few altered characters is a mismatch.
func Compare(canonical, claimed string, t Thresholds) Comparison {
	a, b := normalize.Text(canonical), normalize.Text(claimed)
	if b == "" {
		return Comparison{Classification: Mismatch, Distance: utf8.RuneCountInString(a)}
	}
	if a == b {
		return Comparison{Classification: Exact, Similarity: 1}
	}

	sim, d := ratio(a, b)

	sa, sb := normalize.StripPunct(a), normalize.StripPunct(b)
	if sa == sb {
		return Comparison{Classification: Exact, Similarity: sim, Distance: d}
	}
	if utf8.RuneCountInString(sb) >= t.MinPartialRunes && strings.Contains(sa, sb) {
		return Comparison{Classification: Exact, Similarity: 1, Partial: true}
	}

	switch {
	case sim >= t.Exact || d <= t.AlteredMaxEdits:
		return Comparison{Classification: Mismatch, Similarity: sim, Distance: d, Altered: true}
	case sim >= t.Paraphrase:
		return Comparison{Classification: Paraphrase, Similarity: sim, Distance: d}
	default:
		return Comparison{Classification: Mismatch, Similarity: sim, Distance: d}
	}
}
