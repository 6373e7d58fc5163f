package search

import (
	"github.com/Adithya-Monish-Kumar-K/search-scoring-engine/internal/index"
)

// Scorer iterates matching docs of one segment and scores the current doc.
type Scorer interface {
	DocIdSetIterator
	Score() float64
	// Freq is the number of matches (terms, phrases or sub-scorers) on the
	// current doc.
	Freq() int
}

// Query is an immutable description of what to match. Implementations are
// pointer types so rewrites can be detected by identity.
type Query interface {
	// Rewrite returns a primitive form of the query, or the query itself
	// when no rewrite applies. Expansions stay within s.MaxClauseCount
	// where the rewrite can choose its terms.
	Rewrite(s *IndexSearcher) (Query, error)
	CreateWeight(s *IndexSearcher) (Weight, error)
	// ExtractTerms adds the terms of a rewritten query to terms.
	ExtractTerms(terms map[index.Term]struct{})
	Boost() float64
	SetBoost(b float64)
	// Clone returns a shallow copy whose boost can be changed freely.
	Clone() Query
	String() string
}

// Weight is the searcher-specific, normalized form of a query. A Weight is
// safe for concurrent use by per-segment scoring once normalized.
type Weight interface {
	Query() Query
	ValueForNormalization() float64
	Normalize(norm, topLevelBoost float64)
	// Scorer returns nil without error when the segment has no matches.
	// Docs rejected by acceptDocs never match; nil accepts everything.
	Scorer(leaf *index.LeafContext, acceptDocs index.Bits) (Scorer, error)
	Explain(leaf *index.LeafContext, doc int) (*Explanation, error)
}

// Boosted holds a query boost and is embedded by query implementations.
type Boosted struct {
	boost float64
	set   bool
}

// Boost defaults to 1.
func (b *Boosted) Boost() float64 {
	if !b.set {
		return 1
	}
	return b.boost
}

func (b *Boosted) SetBoost(v float64) {
	b.boost = v
	b.set = true
}

// BoostString renders a non-default boost as "^v".
func BoostString(boost float64) string {
	if boost == 1 {
		return ""
	}
	return "^" + formatFloat(boost)
}
