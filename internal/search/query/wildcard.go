package query

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/search-scoring-engine/internal/index"
	"github.com/Adithya-Monish-Kumar-K/search-scoring-engine/internal/search"
)

const (
	WildcardString = '*'
	WildcardChar   = '?'
	WildcardEscape = '\\'
)

// WildcardQuery matches terms against a pattern where * matches any
// sequence and ? matches one character. A backslash escapes the next
// character.
type WildcardQuery struct {
	multiTermBase
	term    index.Term
	prefix  []byte
	pattern *regexp.Regexp
}

func NewWildcardQuery(t index.Term) *WildcardQuery {
	prefix, expr := compileWildcard(t.Text)
	return &WildcardQuery{
		multiTermBase: multiTermBase{field: t.Field},
		term:          t,
		prefix:        prefix,
		pattern:       regexp.MustCompile(expr),
	}
}

// compileWildcard returns the literal prefix of pattern and an anchored
// regular expression equivalent to it.
func compileWildcard(pattern string) ([]byte, string) {
	var expr strings.Builder
	prefix := []byte{}
	literal := true
	expr.WriteString(`^(?s:`)
	runes := []rune(pattern)
	for i := 0; i < len(runes); i++ {
		c := runes[i]
		switch c {
		case WildcardString:
			literal = false
			expr.WriteString(`.*`)
			continue
		case WildcardChar:
			literal = false
			expr.WriteString(`.`)
			continue
		case WildcardEscape:
			if i+1 < len(runes) {
				i++
				c = runes[i]
			}
		}
		if literal {
			prefix = append(prefix, string(c)...)
		}
		expr.WriteString(regexp.QuoteMeta(string(c)))
	}
	expr.WriteString(`)$`)
	return prefix, expr.String()
}

func (q *WildcardQuery) Term() index.Term { return q.term }

func (q *WildcardQuery) TermMatcher(*index.Terms) TermMatcher {
	return &wildcardMatcher{prefix: q.prefix, pattern: q.pattern}
}

func (q *WildcardQuery) Rewrite(s *search.IndexSearcher) (search.Query, error) {
	return q.RewriteMethod().Rewrite(s, q)
}

func (q *WildcardQuery) Clone() search.Query {
	c := *q
	return &c
}

func (q *WildcardQuery) String() string {
	return q.field + ":" + q.term.Text + search.BoostString(q.Boost())
}

type wildcardMatcher struct {
	prefix  []byte
	pattern *regexp.Regexp
}

func (m *wildcardMatcher) NextSeekTerm(current []byte) []byte {
	if current == nil {
		return m.prefix
	}
	return nil
}

func (m *wildcardMatcher) Accept(term []byte) AcceptStatus {
	if !bytes.HasPrefix(term, m.prefix) {
		return AcceptEnd
	}
	if m.pattern.Match(term) {
		return AcceptYes
	}
	return AcceptNo
}
