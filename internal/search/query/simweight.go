// Package query holds the query types: term and phrase matching, boolean
// and disjunction-max combination, multi-term expansion with its rewrite
// methods, constant scoring and the filters built from queries.
package query

import (
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/search-scoring-engine/internal/index"
	"github.com/Adithya-Monish-Kumar-K/search-scoring-engine/internal/search"
)

// simWeight carries the TF-IDF factors shared by term and phrase weights.
type simWeight struct {
	sim         search.Similarity
	field       string
	boost       float64
	idf         float64
	idfExpl     *search.Explanation
	queryNorm   float64
	queryWeight float64
	value       float64
}

func newSimWeight(s *search.IndexSearcher, field string, boost float64, terms ...index.Term) *simWeight {
	sim := s.Similarity()
	maxDoc := int64(s.MaxDoc())
	w := &simWeight{sim: sim, field: field, boost: boost}
	if len(terms) == 1 {
		df := int64(s.DocFreq(terms[0]))
		w.idf = sim.Idf(df, maxDoc)
		w.idfExpl = search.Factor(w.idf, fmt.Sprintf("idf(docFreq=%d, maxDocs=%d)", df, maxDoc))
	} else {
		w.idfExpl = search.Factor(0, "idf(), sum of:")
		for _, t := range terms {
			df := int64(s.DocFreq(t))
			v := sim.Idf(df, maxDoc)
			w.idf += v
			w.idfExpl.AddDetail(search.Factor(v, fmt.Sprintf("idf(docFreq=%d, maxDocs=%d)", df, maxDoc)))
		}
		w.idfExpl.Value = w.idf
	}
	w.queryWeight = w.idf * boost
	return w
}

func (w *simWeight) valueForNormalization() float64 {
	return w.queryWeight * w.queryWeight
}

func (w *simWeight) normalize(norm, topLevelBoost float64) {
	w.queryNorm = norm * topLevelBoost
	w.queryWeight *= w.queryNorm
	w.value = w.queryWeight * w.idf
}

// fieldNorm is the length norm of doc's field, 1 for fields without norms.
func (w *simWeight) fieldNorm(seg *index.Segment, doc int) float64 {
	if !seg.HasNorms(w.field) {
		return 1
	}
	n, ok := seg.FieldLength(w.field, doc)
	if !ok {
		return 1
	}
	return w.sim.LengthNorm(n)
}

func (w *simWeight) score(seg *index.Segment, doc int, freq float64) float64 {
	return w.sim.Tf(freq) * w.value * w.fieldNorm(seg, doc)
}

// explain renders the classic queryWeight * fieldWeight breakdown.
func (w *simWeight) explain(seg *index.Segment, doc int, freq float64, desc string) *search.Explanation {
	queryExpl := search.Matched(w.queryWeight, "queryWeight, product of:")
	if w.boost != 1 {
		queryExpl.AddDetail(search.Factor(w.boost, "boost"))
	}
	queryExpl.AddDetail(w.idfExpl)
	queryExpl.AddDetail(search.Factor(w.queryNorm, "queryNorm"))

	tf := w.sim.Tf(freq)
	norm := w.fieldNorm(seg, doc)
	fieldExpl := search.Matched(tf*w.idf*norm, fmt.Sprintf("fieldWeight in %d, product of:", doc),
		search.Factor(tf, fmt.Sprintf("tf(freq=%s), with freq of:", formatFreq(freq))),
		w.idfExpl,
		search.Factor(norm, fmt.Sprintf("fieldNorm(doc=%d)", doc)),
	)
	fieldExpl.Details[0].AddDetail(search.Factor(freq, "termFreq="+formatFreq(freq)))

	score := w.score(seg, doc, freq)
	if queryExpl.Value == 1 {
		return search.Matched(score, desc+", result of:", fieldExpl)
	}
	return search.Matched(score, desc+", product of:", queryExpl, fieldExpl)
}

func formatFreq(f float64) string {
	return fmt.Sprintf("%g", f)
}
