package query

import (
	"bytes"
	"fmt"
	"strconv"
	"sync"
	"unicode/utf8"

	"github.com/blevesearch/vellum"
	"github.com/blevesearch/vellum/levenshtein"

	"github.com/Adithya-Monish-Kumar-K/search-scoring-engine/internal/index"
	"github.com/Adithya-Monish-Kumar-K/search-scoring-engine/internal/search"
	apperrors "github.com/Adithya-Monish-Kumar-K/search-scoring-engine/pkg/errors"
)

const (
	// MaxEdits is the largest edit distance a FuzzyQuery supports.
	MaxEdits             = 2
	DefaultMaxExpansions = 50
)

// levBuilders are shared, thread-safe automaton builders keyed by edit
// distance. Transpositions count as one edit.
var levBuilders = sync.OnceValues(func() (map[int]*levenshtein.LevenshteinAutomatonBuilder, error) {
	out := make(map[int]*levenshtein.LevenshteinAutomatonBuilder, MaxEdits)
	for d := 1; d <= MaxEdits; d++ {
		b, err := levenshtein.NewLevenshteinAutomatonBuilder(uint8(d), true)
		if err != nil {
			return nil, fmt.Errorf("building levenshtein automaton builder for distance %d: %w", d, err)
		}
		out[d] = b
	}
	return out, nil
})

// FuzzyQuery matches terms within maxEdits of a term. Each matching term is
// boosted by 1 - edits/min(len(term), len(candidate)), counted in
// characters.
type FuzzyQuery struct {
	multiTermBase
	term          index.Term
	maxEdits      int
	prefixLength  int
	maxExpansions int
	// automata holds one DFA per distance, from maxEdits down to 1.
	automata []*levenshtein.DFA
	prefix   []byte
}

func NewFuzzyQuery(t index.Term, maxEdits, prefixLength int) (*FuzzyQuery, error) {
	if maxEdits < 0 || maxEdits > MaxEdits {
		return nil, apperrors.Invalidf("max edits must be between 0 and %d, got %d", MaxEdits, maxEdits)
	}
	if prefixLength < 0 {
		return nil, apperrors.Invalidf("prefix length must be non-negative, got %d", prefixLength)
	}
	q := &FuzzyQuery{
		multiTermBase: multiTermBase{field: t.Field, rewrite: TopTermsScoringBooleanRewrite(DefaultMaxExpansions)},
		term:          t,
		maxEdits:      maxEdits,
		prefixLength:  prefixLength,
		maxExpansions: DefaultMaxExpansions,
	}
	q.prefix = []byte(t.Text)
	n := 0
	for i := range t.Text {
		if n == prefixLength {
			q.prefix = []byte(t.Text[:i])
			break
		}
		n++
	}
	if maxEdits == 0 {
		return q, nil
	}
	builders, err := levBuilders()
	if err != nil {
		return nil, err
	}
	for d := maxEdits; d > 0; d-- {
		dfa, err := builders[d].BuildDfa(t.Text, uint8(d))
		if err != nil {
			return nil, fmt.Errorf("building levenshtein automaton for %q: %w", t.Text, err)
		}
		q.automata = append(q.automata, dfa)
	}
	return q, nil
}

func (q *FuzzyQuery) Term() index.Term   { return q.term }
func (q *FuzzyQuery) MaxEdits() int      { return q.maxEdits }
func (q *FuzzyQuery) PrefixLength() int  { return q.prefixLength }
func (q *FuzzyQuery) MaxExpansions() int { return q.maxExpansions }

// SetMaxExpansions bounds the number of terms kept by the default rewrite.
func (q *FuzzyQuery) SetMaxExpansions(n int) error {
	if n < 1 {
		return apperrors.Invalidf("max expansions must be positive, got %d", n)
	}
	q.maxExpansions = n
	q.rewrite = TopTermsScoringBooleanRewrite(n)
	return nil
}

func (q *FuzzyQuery) TermMatcher(*index.Terms) TermMatcher {
	if len(q.automata) == 0 {
		return &exactMatcher{term: q.term.Bytes()}
	}
	return &fuzzyMatcher{
		prefix:   q.prefix,
		text:     q.term.Text,
		textLen:  utf8.RuneCountInString(q.term.Text),
		maxEdits: q.maxEdits,
		automata: q.automata,
	}
}

func (q *FuzzyQuery) Rewrite(s *search.IndexSearcher) (search.Query, error) {
	return q.RewriteMethod().Rewrite(s, q)
}

func (q *FuzzyQuery) Clone() search.Query {
	c := *q
	return &c
}

func (q *FuzzyQuery) String() string {
	return q.field + ":" + q.term.Text + "~" + strconv.Itoa(q.maxEdits) + search.BoostString(q.Boost())
}

type fuzzyMatcher struct {
	prefix   []byte
	text     string
	textLen  int
	maxEdits int
	automata []*levenshtein.DFA
	boost    float64
}

func (m *fuzzyMatcher) NextSeekTerm(current []byte) []byte {
	if current == nil {
		return m.prefix
	}
	return nil
}

func (m *fuzzyMatcher) Accept(term []byte) AcceptStatus {
	if !bytes.HasPrefix(term, m.prefix) {
		return AcceptEnd
	}
	if string(term) == m.text {
		m.boost = 1
		return AcceptYes
	}
	if !vellum.AutomatonContains(m.automata[0], term) {
		return AcceptNo
	}
	edits := m.maxEdits
	for _, a := range m.automata[1:] {
		if vellum.AutomatonContains(a, term) {
			edits--
		}
	}
	minLen := min(m.textLen, utf8.RuneCount(term))
	if minLen == 0 {
		return AcceptNo
	}
	sim := 1 - float64(edits)/float64(minLen)
	if sim <= 0 {
		return AcceptNo
	}
	m.boost = sim
	return AcceptYes
}

func (m *fuzzyMatcher) Boost() float64 { return m.boost }

// exactMatcher accepts a single term.
type exactMatcher struct {
	term []byte
}

func (m *exactMatcher) NextSeekTerm(current []byte) []byte {
	if current == nil {
		return m.term
	}
	return nil
}

func (m *exactMatcher) Accept(term []byte) AcceptStatus {
	if bytes.Equal(term, m.term) {
		return AcceptYes
	}
	return AcceptEnd
}
