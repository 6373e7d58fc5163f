package search

import (
	"strconv"
	"strings"
)

// Explanation is a tree describing how a score was computed.
type Explanation struct {
	Value       float64        `json:"value"`
	Description string         `json:"description"`
	Match       bool           `json:"match"`
	Details     []*Explanation `json:"details,omitempty"`
}

// Matched returns a matching explanation node.
func Matched(value float64, description string, details ...*Explanation) *Explanation {
	return &Explanation{Value: value, Description: description, Match: true, Details: details}
}

// NoMatch returns a non-matching explanation node with value 0.
func NoMatch(description string, details ...*Explanation) *Explanation {
	return &Explanation{Description: description, Details: details}
}

// Factor returns a detail node that only contributes a factor.
func Factor(value float64, description string) *Explanation {
	return &Explanation{Value: value, Description: description, Match: true}
}

func (e *Explanation) AddDetail(d *Explanation) {
	e.Details = append(e.Details, d)
}

func (e *Explanation) String() string {
	var b strings.Builder
	e.write(&b, 0)
	return b.String()
}

func (e *Explanation) write(b *strings.Builder, depth int) {
	b.WriteString(strings.Repeat("  ", depth))
	b.WriteString(formatFloat(e.Value))
	if e.Match {
		b.WriteString(" = (MATCH) ")
	} else {
		b.WriteString(" = (NON-MATCH) ")
	}
	b.WriteString(e.Description)
	b.WriteByte('\n')
	for _, d := range e.Details {
		d.write(b, depth+1)
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
