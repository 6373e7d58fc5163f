package index

import (
	"sort"

	"github.com/Adithya-Monish-Kumar-K/search-scoring-engine/internal/analysis"
	"github.com/Adithya-Monish-Kumar-K/search-scoring-engine/internal/numeric"
)

type pendingPosting struct {
	freq      int32
	positions []int32
}

type pendingField struct {
	terms     map[string]*pendingPosting
	length    int32
	omitNorms bool
	positions bool
}

type pendingDoc struct {
	fields  map[string]*pendingField
	stored  StoredDocument
	deleted bool
}

func (d *pendingDoc) hasTerm(t Term) bool {
	pf, ok := d.fields[t.Field]
	if !ok {
		return false
	}
	_, ok = pf.terms[t.Text]
	return ok
}

// segmentBuilder buffers analyzed documents until they are flushed into an
// immutable SegmentCore.
type segmentBuilder struct {
	analyzer analysis.Analyzer
	docs     []*pendingDoc
	live     int
	size     int64
}

func newSegmentBuilder(analyzer analysis.Analyzer) *segmentBuilder {
	return &segmentBuilder{analyzer: analyzer}
}

func (b *segmentBuilder) addDocument(doc *Document) {
	pd := &pendingDoc{fields: make(map[string]*pendingField)}
	for _, f := range doc.Fields {
		if f.Stored {
			if pd.stored == nil {
				pd.stored = make(StoredDocument)
			}
			pd.stored[f.Name] = append(pd.stored[f.Name], f.Value)
		}
		if f.Kind == KindStored {
			continue
		}
		pf, ok := pd.fields[f.Name]
		if !ok {
			pf = &pendingField{terms: make(map[string]*pendingPosting), omitNorms: true}
			pd.fields[f.Name] = pf
		}
		switch f.Kind {
		case KindText:
			pf.omitNorms = false
			pf.positions = true
			// repeated values continue the position sequence
			base := pf.length
			tokens := b.analyzer.Analyze(f.Value)
			for _, tok := range tokens {
				pf.add(tok.Term, base+int32(tok.Position))
				b.size += int64(len(tok.Term) + 8)
			}
			if n := len(tokens); n > 0 {
				pf.length = base + int32(tokens[n-1].Position) + 1
			}
		case KindString:
			pf.add(f.Value, pf.length)
			pf.length++
			b.size += int64(len(f.Value) + 8)
		case KindNumeric:
			step := f.PrecisionStep
			if step <= 0 {
				step = numeric.PrecisionStepDefault
			}
			for _, term := range numeric.LongTrieTerms(f.Encoded, step) {
				pf.add(string(term), 0)
				b.size += int64(len(term) + 8)
			}
		}
	}
	b.docs = append(b.docs, pd)
	b.live++
}

func (pf *pendingField) add(term string, pos int32) {
	p, ok := pf.terms[term]
	if !ok {
		p = &pendingPosting{}
		pf.terms[term] = p
	}
	p.freq++
	p.positions = append(p.positions, pos)
}

// deleteTerm marks buffered docs containing t as deleted and reports how many
// were removed.
func (b *segmentBuilder) deleteTerm(t Term) int {
	n := 0
	for _, d := range b.docs {
		if !d.deleted && d.hasTerm(t) {
			d.deleted = true
			n++
		}
	}
	b.live -= n
	return n
}

func (b *segmentBuilder) numDocs() int { return b.live }

func (b *segmentBuilder) reset() {
	b.docs = nil
	b.live = 0
	b.size = 0
}

// build compacts the live buffered docs into a core. It returns nil when no
// live docs are buffered.
func (b *segmentBuilder) build(name string) *SegmentCore {
	if b.live == 0 {
		return nil
	}
	type accum struct {
		lists     map[string]*postingList
		lengths   []int32
		omitNorms bool
		positions bool
		docCount  int
	}
	fields := make(map[string]*accum)
	stored := make([]StoredDocument, 0, b.live)
	doc := int32(0)
	for _, pd := range b.docs {
		if pd.deleted {
			continue
		}
		for name, pf := range pd.fields {
			a, ok := fields[name]
			if !ok {
				a = &accum{lists: make(map[string]*postingList), omitNorms: true}
				fields[name] = a
			}
			if !pf.omitNorms {
				a.omitNorms = false
				if a.lengths == nil {
					a.lengths = make([]int32, b.live)
				}
				a.lengths[doc] = pf.length
			}
			a.positions = a.positions || pf.positions
			a.docCount++
			for term, p := range pf.terms {
				pl, ok := a.lists[term]
				if !ok {
					pl = &postingList{}
					a.lists[term] = pl
				}
				pl.Docs = append(pl.Docs, doc)
				pl.Freqs = append(pl.Freqs, p.freq)
				pl.Positions = append(pl.Positions, p.positions)
			}
		}
		stored = append(stored, pd.stored)
		doc++
	}

	out := make(map[string]*fieldData, len(fields))
	for name, a := range fields {
		fd := &fieldData{
			Terms:     make([]string, 0, len(a.lists)),
			OmitNorms: a.omitNorms,
			DocCount:  a.docCount,
		}
		if !a.omitNorms {
			fd.Lengths = a.lengths
		}
		for term := range a.lists {
			fd.Terms = append(fd.Terms, term)
		}
		sort.Strings(fd.Terms)
		fd.Lists = make([]*postingList, len(fd.Terms))
		for i, term := range fd.Terms {
			pl := a.lists[term]
			if !a.positions {
				pl.Positions = nil
			}
			fd.Lists[i] = pl
			fd.SumTTF += pl.totalTermFreq()
		}
		out[name] = fd
	}
	return newSegmentCore(name, b.live, out, stored)
}
