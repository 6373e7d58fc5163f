package query

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/Adithya-Monish-Kumar-K/search-scoring-engine/internal/index"
	"github.com/Adithya-Monish-Kumar-K/search-scoring-engine/internal/search"
	apperrors "github.com/Adithya-Monish-Kumar-K/search-scoring-engine/pkg/errors"
)

// AcceptStatus tells a FilteredTermsEnum what to do with a term.
type AcceptStatus int

const (
	AcceptYes AcceptStatus = iota
	// AcceptYesAndSeek accepts the term, then seeks to NextSeekTerm.
	AcceptYesAndSeek
	AcceptNo
	// AcceptNoAndSeek rejects the term, then seeks to NextSeekTerm.
	AcceptNoAndSeek
	// AcceptEnd stops the enumeration.
	AcceptEnd
)

// TermMatcher selects the terms of one field that a multi-term query
// expands to.
type TermMatcher interface {
	Accept(term []byte) AcceptStatus
	// NextSeekTerm is called with nil before the first term, then with the
	// current term after a seeking status. A nil result ends enumeration.
	NextSeekTerm(current []byte) []byte
}

// termBooster is implemented by matchers that weight accepted terms.
type termBooster interface {
	// Boost is the boost of the most recently accepted term.
	Boost() float64
}

// FilteredTermsEnum walks the terms of a field accepted by a TermMatcher
// in ascending order.
type FilteredTermsEnum struct {
	te      *index.TermsEnum
	matcher TermMatcher
	doSeek  bool
	current []byte
}

func NewFilteredTermsEnum(te *index.TermsEnum, m TermMatcher) *FilteredTermsEnum {
	return &FilteredTermsEnum{te: te, matcher: m, doSeek: true}
}

// Next returns the next accepted term, or nil at the end.
func (e *FilteredTermsEnum) Next() []byte {
	for {
		var term []byte
		if e.doSeek {
			e.doSeek = false
			target := e.matcher.NextSeekTerm(e.current)
			if target == nil || e.te.SeekCeil(target) == index.SeekEnd {
				return nil
			}
			term = e.te.Term()
		} else {
			term = e.te.Next()
			if term == nil {
				return nil
			}
		}
		e.current = term
		switch e.matcher.Accept(term) {
		case AcceptYesAndSeek:
			e.doSeek = true
			return term
		case AcceptYes:
			return term
		case AcceptNoAndSeek:
			e.doSeek = true
		case AcceptEnd:
			return nil
		}
	}
}

func (e *FilteredTermsEnum) Term() []byte         { return e.current }
func (e *FilteredTermsEnum) DocFreq() int         { return e.te.DocFreq() }
func (e *FilteredTermsEnum) TotalTermFreq() int64 { return e.te.TotalTermFreq() }

func (e *FilteredTermsEnum) Postings(accept index.Bits) *index.PostingsEnum {
	return e.te.Postings(accept)
}

// Boost is the boost of the current term, 1 unless the matcher weights
// terms.
func (e *FilteredTermsEnum) Boost() float64 {
	if b, ok := e.matcher.(termBooster); ok {
		return b.Boost()
	}
	return 1
}

// allTerms accepts every term from the start of the field.
type allTerms struct{}

func (allTerms) Accept([]byte) AcceptStatus { return AcceptYes }

func (allTerms) NextSeekTerm(current []byte) []byte {
	if current == nil {
		return []byte{}
	}
	return nil
}

// MultiTermQuery matches the docs of every term its matcher accepts. It
// must be rewritten before use; the RewriteMethod decides into what.
type MultiTermQuery interface {
	search.Query
	Field() string
	// TermMatcher returns nil when no term of terms can match.
	TermMatcher(terms *index.Terms) TermMatcher
	RewriteMethod() RewriteMethod
	SetRewriteMethod(m RewriteMethod)
}

// multiTermBase holds the state shared by every MultiTermQuery.
type multiTermBase struct {
	search.Boosted
	field   string
	rewrite RewriteMethod
}

func (b *multiTermBase) Field() string { return b.field }

func (b *multiTermBase) RewriteMethod() RewriteMethod {
	if b.rewrite == nil {
		return DefaultRewrite
	}
	return b.rewrite
}

func (b *multiTermBase) SetRewriteMethod(m RewriteMethod) { b.rewrite = m }

// ExtractTerms adds nothing: terms are only known after rewriting.
func (b *multiTermBase) ExtractTerms(map[index.Term]struct{}) {}

func (b *multiTermBase) CreateWeight(*search.IndexSearcher) (search.Weight, error) {
	return nil, apperrors.IllegalStatef("multi-term query on field %q must be rewritten before scoring", b.field)
}

// visitTerms calls fn for every accepted term of every segment until fn
// returns false.
func visitTerms(r *index.Reader, q MultiTermQuery, fn func(leaf *index.LeafContext, te *FilteredTermsEnum) bool) {
	for _, leaf := range r.Leaves() {
		terms := leaf.Segment.Terms(q.Field())
		if terms == nil {
			continue
		}
		m := q.TermMatcher(terms)
		if m == nil {
			continue
		}
		te := NewFilteredTermsEnum(terms.Iterator(), m)
		for t := te.Next(); t != nil; t = te.Next() {
			if !fn(leaf, te) {
				return
			}
		}
	}
}

type scoredTerm struct {
	text  string
	boost float64
}

// collectTerms returns the distinct accepted terms in ascending order.
func collectTerms(r *index.Reader, q MultiTermQuery) []scoredTerm {
	seen := make(map[string]float64)
	visitTerms(r, q, func(_ *index.LeafContext, te *FilteredTermsEnum) bool {
		if _, ok := seen[string(te.Term())]; !ok {
			seen[string(te.Term())] = te.Boost()
		}
		return true
	})
	out := make([]scoredTerm, 0, len(seen))
	for text, boost := range seen {
		out = append(out, scoredTerm{text: text, boost: boost})
	}
	slices.SortFunc(out, func(a, b scoredTerm) int { return cmp.Compare(a.text, b.text) })
	return out
}

// CountTerms returns how many distinct terms q expands to in r.
func CountTerms(r *index.Reader, q MultiTermQuery) int {
	return len(collectTerms(r, q))
}

// RewriteMethod turns a MultiTermQuery into a primitive query. Every
// method matches the same docs; they differ in scoring and clause count.
// The full boolean expansions fail with ErrTooManyClauses past
// s.MaxClauseCount; the top-terms and auto methods stay below it.
type RewriteMethod interface {
	Rewrite(s *search.IndexSearcher, q MultiTermQuery) (search.Query, error)
	String() string
}

type constantScoreFilterRewrite struct{}

func (constantScoreFilterRewrite) Rewrite(_ *search.IndexSearcher, q MultiTermQuery) (search.Query, error) {
	csq := NewConstantScoreFilterQuery(NewMultiTermQueryWrapperFilter(q))
	csq.SetBoost(q.Boost())
	return csq, nil
}

func (constantScoreFilterRewrite) String() string { return "constant_score_filter" }

type constantScoreBooleanRewrite struct{}

func (constantScoreBooleanRewrite) Rewrite(s *search.IndexSearcher, q MultiTermQuery) (search.Query, error) {
	return constantBoolean(q, collectTerms(s.Reader(), q)), nil
}

func (constantScoreBooleanRewrite) String() string { return "constant_score_boolean" }

func constantBoolean(q MultiTermQuery, terms []scoredTerm) search.Query {
	bq := NewBooleanQuery(true)
	for _, t := range terms {
		bq.Add(NewTermQuery(index.NewTerm(q.Field(), t.text)), Should)
	}
	csq := NewConstantScoreQuery(bq)
	csq.SetBoost(q.Boost())
	return csq
}

type scoringBooleanRewrite struct{}

func (scoringBooleanRewrite) Rewrite(s *search.IndexSearcher, q MultiTermQuery) (search.Query, error) {
	bq := NewBooleanQuery(true)
	for _, t := range collectTerms(s.Reader(), q) {
		tq := NewTermQuery(index.NewTerm(q.Field(), t.text))
		tq.SetBoost(q.Boost() * t.boost)
		bq.Add(tq, Should)
	}
	return bq, nil
}

func (scoringBooleanRewrite) String() string { return "scoring_boolean" }

type topTermsRewrite struct {
	size      int
	boostOnly bool
}

// TopTermsScoringBooleanRewrite keeps the size best terms by term boost and
// scores them like ScoringBooleanRewrite. A searcher with a lower clause
// limit keeps that many instead.
func TopTermsScoringBooleanRewrite(size int) RewriteMethod {
	return topTermsRewrite{size: max(1, size)}
}

// TopTermsBoostOnlyBooleanRewrite keeps the size best terms by term boost;
// each contributes only its boost, not its tf-idf score.
func TopTermsBoostOnlyBooleanRewrite(size int) RewriteMethod {
	return topTermsRewrite{size: max(1, size), boostOnly: true}
}

func (t topTermsRewrite) Rewrite(s *search.IndexSearcher, q MultiTermQuery) (search.Query, error) {
	size := min(t.size, s.MaxClauseCount())
	terms := collectTerms(s.Reader(), q)
	if len(terms) > size {
		best := slices.Clone(terms)
		slices.SortStableFunc(best, func(a, b scoredTerm) int { return cmp.Compare(b.boost, a.boost) })
		best = best[:size]
		slices.SortFunc(best, func(a, b scoredTerm) int { return cmp.Compare(a.text, b.text) })
		terms = best
	}
	bq := NewBooleanQuery(true)
	for _, st := range terms {
		var clause search.Query = NewTermQuery(index.NewTerm(q.Field(), st.text))
		if t.boostOnly {
			clause = NewConstantScoreQuery(clause)
		}
		clause.SetBoost(q.Boost() * st.boost)
		bq.Add(clause, Should)
	}
	return bq, nil
}

func (t topTermsRewrite) String() string {
	if t.boostOnly {
		return fmt.Sprintf("top_terms_boost_%d", t.size)
	}
	return fmt.Sprintf("top_terms_%d", t.size)
}

// ConstantScoreAutoRewrite uses a constant-score boolean query while the
// expansion stays small and the filter rewrite otherwise. The term cutoff
// never exceeds the searcher's clause limit.
type ConstantScoreAutoRewrite struct {
	// TermCountCutoff is the number of terms at which the filter is used.
	TermCountCutoff int
	// DocCountPercent is the share of maxDoc, in percent, of visited
	// postings at which the filter is used.
	DocCountPercent float64
}

const (
	DefaultTermCountCutoff = 350
	DefaultDocCountPercent = 0.1
)

func (a ConstantScoreAutoRewrite) Rewrite(s *search.IndexSearcher, q MultiTermQuery) (search.Query, error) {
	r := s.Reader()
	termCutoff := min(a.TermCountCutoff, s.MaxClauseCount())
	docCutoff := int(a.DocCountPercent / 100 * float64(r.MaxDoc()))
	seen := make(map[string]struct{})
	var terms []scoredTerm
	visited := 0
	cutOff := false
	visitTerms(r, q, func(_ *index.LeafContext, te *FilteredTermsEnum) bool {
		if _, ok := seen[string(te.Term())]; !ok {
			seen[string(te.Term())] = struct{}{}
			terms = append(terms, scoredTerm{text: string(te.Term()), boost: 1})
		}
		visited += te.DocFreq()
		if visited >= docCutoff || len(terms) >= termCutoff {
			cutOff = true
			return false
		}
		return true
	})
	if cutOff {
		return ConstantScoreFilterRewrite.Rewrite(s, q)
	}
	slices.SortFunc(terms, func(x, y scoredTerm) int { return cmp.Compare(x.text, y.text) })
	return constantBoolean(q, terms), nil
}

func (a ConstantScoreAutoRewrite) String() string {
	return fmt.Sprintf("constant_score_auto(%d, %g)", a.TermCountCutoff, a.DocCountPercent)
}

// Rewrite methods.
var (
	ConstantScoreFilterRewrite  RewriteMethod = constantScoreFilterRewrite{}
	ConstantScoreBooleanRewrite RewriteMethod = constantScoreBooleanRewrite{}
	ScoringBooleanRewrite       RewriteMethod = scoringBooleanRewrite{}
	DefaultRewrite              RewriteMethod = ConstantScoreAutoRewrite{
		TermCountCutoff: DefaultTermCountCutoff,
		DocCountPercent: DefaultDocCountPercent,
	}
)
