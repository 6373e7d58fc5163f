package index

import (
	"fmt"
	"strings"
)

// Term is a (field, text) pair. Text holds raw term bytes; it is a string so
// terms are comparable and usable as map keys.
type Term struct {
	Field string
	Text  string
}

func NewTerm(field, text string) Term {
	return Term{Field: field, Text: text}
}

func NewTermBytes(field string, text []byte) Term {
	return Term{Field: field, Text: string(text)}
}

func (t Term) Bytes() []byte { return []byte(t.Text) }

// Compare orders terms by field, then by text bytes.
func (t Term) Compare(o Term) int {
	if c := strings.Compare(t.Field, o.Field); c != 0 {
		return c
	}
	return strings.Compare(t.Text, o.Text)
}

func (t Term) String() string {
	return fmt.Sprintf("%s:%s", t.Field, t.Text)
}
