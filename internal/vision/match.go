package vision

import (
	"github.com/google/uuid"

	"github.com/your-org/facewatch/internal/apperr"
)

// DefaultMatchThreshold is the similarity a match must exceed.
const DefaultMatchThreshold = 0.6

// Candidate is one active enrolled encoding.
type Candidate struct {
	EncodingID uuid.UUID
	ProfileID  uuid.UUID
	Encoding   Encoding
}

// Match is the outcome of comparing a query against all candidates.
// Score is the best similarity seen, also when Matched is false.
type Match struct {
	ProfileID  uuid.UUID
	EncodingID uuid.UUID
	Score      float64
	Matched    bool
}

// Similarity is the fraction of positions where a and b hold the same
// symbol. Encodings of different length have similarity 0.
func Similarity(a, b Encoding) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	same := 0
	for i := 0; i < len(a); i++ {
		if a[i] == b[i] {
			same++
		}
	}
	return float64(same) / float64(len(a))
}

type Matcher struct {
	threshold float64
}

func NewMatcher(threshold float64) *Matcher {
	if threshold <= 0 {
		threshold = DefaultMatchThreshold
	}
	return &Matcher{threshold: threshold}
}

func (m *Matcher) Threshold() float64 {
	return m.threshold
}

// Best scores query against candidates in the given order. The first
// candidate reaching the maximum score wins. A match is reported only when
// that score exceeds the threshold. Malformed candidates are skipped.
func (m *Matcher) Best(query Encoding, candidates []Candidate) (Match, error) {
	if !query.Valid() {
		return Match{}, apperr.ErrMalformedEncoding
	}

	var best Match
	found := false
	for _, c := range candidates {
		if !c.Encoding.Valid() {
			continue
		}
		score := Similarity(query, c.Encoding)
		if !found || score > best.Score {
			best = Match{ProfileID: c.ProfileID, EncodingID: c.EncodingID, Score: score}
			found = true
		}
	}

	if !found {
		return Match{}, nil
	}
	if best.Score > m.threshold {
		best.Matched = true
		return best, nil
	}
	return Match{Score: best.Score}, nil
}
