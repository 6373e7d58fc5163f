package query

import (
	"bytes"
	"slices"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/search-scoring-engine/internal/index"
	"github.com/Adithya-Monish-Kumar-K/search-scoring-engine/internal/search"
)

// TermRangeQuery matches docs with a term of field between lower and upper
// in byte order. A nil bound leaves that end open.
type TermRangeQuery struct {
	multiTermBase
	lower, upper               []byte
	includeLower, includeUpper bool
}

func NewTermRangeQuery(field string, lower, upper []byte, includeLower, includeUpper bool) *TermRangeQuery {
	return &TermRangeQuery{
		multiTermBase: multiTermBase{field: field},
		lower:         slices.Clone(lower),
		upper:         slices.Clone(upper),
		includeLower:  includeLower,
		includeUpper:  includeUpper,
	}
}

func (q *TermRangeQuery) Lower() []byte       { return q.lower }
func (q *TermRangeQuery) Upper() []byte       { return q.upper }
func (q *TermRangeQuery) IncludesLower() bool { return q.includeLower }
func (q *TermRangeQuery) IncludesUpper() bool { return q.includeUpper }

func (q *TermRangeQuery) TermMatcher(*index.Terms) TermMatcher {
	if q.lower != nil && q.upper != nil && bytes.Compare(q.lower, q.upper) > 0 {
		return nil
	}
	if (q.lower == nil || (q.includeLower && len(q.lower) == 0)) && q.upper == nil {
		return allTerms{}
	}
	m := &termRangeMatcher{lower: q.lower, upper: q.upper, includeLower: q.includeLower, includeUpper: q.includeUpper}
	if m.lower == nil {
		m.lower = []byte{}
		m.includeLower = true
	}
	return m
}

func (q *TermRangeQuery) Rewrite(s *search.IndexSearcher) (search.Query, error) {
	return q.RewriteMethod().Rewrite(s, q)
}

func (q *TermRangeQuery) Clone() search.Query {
	c := *q
	return &c
}

func (q *TermRangeQuery) String() string {
	var b strings.Builder
	b.WriteString(q.field)
	b.WriteByte(':')
	if q.includeLower {
		b.WriteByte('[')
	} else {
		b.WriteByte('{')
	}
	b.WriteString(rangeBound(q.lower))
	b.WriteString(" TO ")
	b.WriteString(rangeBound(q.upper))
	if q.includeUpper {
		b.WriteByte(']')
	} else {
		b.WriteByte('}')
	}
	b.WriteString(search.BoostString(q.Boost()))
	return b.String()
}

func rangeBound(v []byte) string {
	switch {
	case v == nil:
		return "*"
	case string(v) == "*":
		return `\*`
	}
	return string(v)
}

type termRangeMatcher struct {
	lower, upper               []byte
	includeLower, includeUpper bool
}

func (m *termRangeMatcher) NextSeekTerm(current []byte) []byte {
	if current == nil {
		return m.lower
	}
	return nil
}

func (m *termRangeMatcher) Accept(term []byte) AcceptStatus {
	if !m.includeLower && bytes.Equal(term, m.lower) {
		return AcceptNo
	}
	if m.upper != nil {
		c := bytes.Compare(m.upper, term)
		if c < 0 || (!m.includeUpper && c == 0) {
			return AcceptEnd
		}
	}
	return AcceptYes
}
