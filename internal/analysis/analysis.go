// Package analysis turns field text into positioned tokens. It offers a
// whitespace analyzer that keeps every token verbatim apart from case, a
// keyword analyzer that emits the whole value, and the standard analyzer
// that splits on non-alphanumerics, removes stop-words and stems.
package analysis

import (
	"fmt"
	"strings"
	"unicode"
)

// Token represents a single normalised term and its position in the
// original text.
type Token struct {
	Term     string
	Position int
}

// Analyzer produces the tokens indexed for a text value.
type Analyzer interface {
	Analyze(text string) []Token
}

// AnalyzerFunc adapts a function to Analyzer.
type AnalyzerFunc func(text string) []Token

func (f AnalyzerFunc) Analyze(text string) []Token { return f(text) }

// ByName resolves the analyzer names accepted in configuration.
func ByName(name string) (Analyzer, error) {
	switch name {
	case "", "standard":
		return Standard{}, nil
	case "whitespace":
		return Whitespace{}, nil
	case "keyword":
		return Keyword{}, nil
	default:
		return nil, fmt.Errorf("unknown analyzer %q", name)
	}
}

// Whitespace lower-cases and splits on white space.
type Whitespace struct{}

func (Whitespace) Analyze(text string) []Token {
	words := strings.Fields(strings.ToLower(text))
	tokens := make([]Token, len(words))
	for i, w := range words {
		tokens[i] = Token{Term: w, Position: i}
	}
	return tokens
}

// Keyword emits the value unchanged as a single token.
type Keyword struct{}

func (Keyword) Analyze(text string) []Token {
	return []Token{{Term: text}}
}

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {},
	"be": {}, "by": {}, "for": {}, "from": {}, "has": {}, "he": {},
	"in": {}, "is": {}, "it": {}, "its": {}, "of": {}, "on": {},
	"or": {}, "that": {}, "the": {}, "to": {}, "was": {}, "were": {},
	"will": {}, "with": {}, "this": {}, "but": {}, "they": {},
	"have": {}, "had": {}, "what": {}, "when": {}, "where": {},
	"who": {}, "which": {}, "their": {}, "if": {}, "each": {},
	"do": {}, "not": {}, "no": {}, "so": {}, "can": {},
}

// Standard lower-cases input, splits on non-alphanumeric boundaries,
// removes stop-words and applies a suffix stemmer. Positions skip removed
// words so phrase slop still sees the gap.
type Standard struct{}

func (Standard) Analyze(text string) []Token {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	tokens := make([]Token, 0, len(words))
	for pos, word := range words {
		if len(word) < 2 {
			continue
		}
		if _, isStop := stopWords[word]; isStop {
			continue
		}
		if stemmed := Stem(word); stemmed != "" {
			tokens = append(tokens, Token{Term: stemmed, Position: pos})
		}
	}
	return tokens
}

var suffixRules = []struct {
	suffix      string
	replacement string
	minLen      int
}{
	{"ational", "ate", 2},
	{"tional", "tion", 2},
	{"encies", "ence", 2},
	{"ances", "ance", 2},
	{"ments", "ment", 2},
	{"izing", "ize", 2},
	{"ating", "ate", 2},
	{"iness", "y", 2},
	{"ously", "ous", 2},
	{"ively", "ive", 2},
	{"eness", "ene", 2},
	{"tion", "t", 3},
	{"sion", "s", 3},
	{"ying", "y", 2},
	{"ling", "l", 3},
	{"ies", "y", 2},
	{"ing", "", 3},
	{"ers", "er", 2},
	{"est", "", 3},
	{"ful", "", 3},
	{"ous", "", 3},
	{"ess", "", 3},
	{"ble", "", 3},
	{"ed", "", 3},
	{"er", "", 3},
	{"ly", "", 3},
	{"es", "", 3},
	{"ss", "ss", 2},
	{"s", "", 3},
}

// Stem applies the first matching suffix rule whose result is long enough.
func Stem(word string) string {
	for _, rule := range suffixRules {
		if strings.HasSuffix(word, rule.suffix) {
			newWord := word[:len(word)-len(rule.suffix)] + rule.replacement
			if len(newWord) >= rule.minLen {
				return newWord
			}
		}
	}
	return word
}
