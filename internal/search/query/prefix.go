package query

import (
	"bytes"

	"github.com/Adithya-Monish-Kumar-K/search-scoring-engine/internal/index"
	"github.com/Adithya-Monish-Kumar-K/search-scoring-engine/internal/search"
)

// PrefixQuery matches docs with a term starting with the prefix.
type PrefixQuery struct {
	multiTermBase
	prefix index.Term
}

func NewPrefixQuery(prefix index.Term) *PrefixQuery {
	return &PrefixQuery{multiTermBase: multiTermBase{field: prefix.Field}, prefix: prefix}
}

func (q *PrefixQuery) Prefix() index.Term { return q.prefix }

func (q *PrefixQuery) TermMatcher(*index.Terms) TermMatcher {
	if q.prefix.Text == "" {
		return allTerms{}
	}
	return prefixMatcher(q.prefix.Bytes())
}

func (q *PrefixQuery) Rewrite(s *search.IndexSearcher) (search.Query, error) {
	return q.RewriteMethod().Rewrite(s, q)
}

func (q *PrefixQuery) Clone() search.Query {
	c := *q
	return &c
}

func (q *PrefixQuery) String() string {
	return q.field + ":" + q.prefix.Text + "*" + search.BoostString(q.Boost())
}

// prefixMatcher seeks to the prefix and stops at the first term without it.
type prefixMatcher []byte

func (p prefixMatcher) NextSeekTerm(current []byte) []byte {
	if current == nil {
		return p
	}
	return nil
}

func (p prefixMatcher) Accept(term []byte) AcceptStatus {
	if bytes.HasPrefix(term, p) {
		return AcceptYes
	}
	return AcceptEnd
}
