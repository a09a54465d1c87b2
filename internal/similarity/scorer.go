package similarity

import (
	"math"
	"strings"
)

// DefaultTrigramWeight is the share of the blended score taken from trigram
// similarity; the remainder comes from the edit-distance ratio.
const DefaultTrigramWeight = 0.6

// maxInexact caps scores of names that differ after normalization so that a
// 1.0 score always means the normalized names are identical.
const maxInexact = 0.9999

// Subject is one side of a comparison.
type Subject struct {
	Key   string
	Name  string
	City  string
	State string
}

// Result is the outcome of comparing two subjects.
type Result struct {
	Score        float64 `json:"score"`
	ExactName    bool    `json:"exact_name_match"`
	ExactKey     bool    `json:"exact_number_match"`
	SameLocation bool    `json:"location_match"`
}

// Scorer computes normalized [0,1] name similarity. The zero value uses
// DefaultTrigramWeight.
type Scorer struct {
	TrigramWeight float64
}

// NewScorer creates a Scorer with the given trigram weight.
func NewScorer(trigramWeight float64) *Scorer {
	return &Scorer{TrigramWeight: trigramWeight}
}

// Score returns the similarity of two names. Empty names score 0.
func (s *Scorer) Score(a, b string) float64 {
	na, nb := NormalizeName(a), NormalizeName(b)
	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return 1
	}

	w := s.weight()
	score := w*Trigram(na, nb) + (1-w)*EditRatio(na, nb)
	return round4(math.Min(math.Max(score, 0), maxInexact))
}

// Compare scores two subjects and evaluates the tie-break predicates.
func (s *Scorer) Compare(a, b Subject) Result {
	return Result{
		Score:        s.Score(a.Name, b.Name),
		ExactName:    ExactName(a.Name, b.Name),
		ExactKey:     ExactKey(a.Key, b.Key),
		SameLocation: SameLocation(a.City, a.State, b.City, b.State),
	}
}

func (s *Scorer) weight() float64 {
	if s == nil || s.TrigramWeight <= 0 || s.TrigramWeight > 1 {
		return DefaultTrigramWeight
	}
	return s.TrigramWeight
}

// ExactName reports case- and whitespace-insensitive equality of two
// non-empty names.
func ExactName(a, b string) bool {
	ca, cb := canon(a), canon(b)
	return ca != "" && ca == cb
}

// ExactKey reports equality of two non-empty natural keys. Purely numeric
// keys compare without leading zeros ("00123" == "123").
func ExactKey(a, b string) bool {
	ka, kb := canonKey(a), canonKey(b)
	return ka != "" && ka == kb
}

// SameLocation reports city+state equality; all four parts must be present.
func SameLocation(cityA, stateA, cityB, stateB string) bool {
	ca, sa, cb, sb := canon(cityA), canon(stateA), canon(cityB), canon(stateB)
	if ca == "" || sa == "" || cb == "" || sb == "" {
		return false
	}
	return ca == cb && sa == sb
}

func canonKey(k string) string {
	k = strings.ToUpper(strings.TrimSpace(k))
	if k == "" || strings.Trim(k, "0123456789") != "" {
		return k
	}
	trimmed := strings.TrimLeft(k, "0")
	if trimmed == "" {
		return "0"
	}
	return trimmed
}

func round4(f float64) float64 {
	return math.Round(f*10000) / 10000
}
