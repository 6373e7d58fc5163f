package index

import (
	"strconv"

	"github.com/Adithya-Monish-Kumar-K/search-scoring-engine/internal/numeric"
)

// FieldKind selects how a field value is turned into terms.
type FieldKind int

const (
	// KindText is analyzed into positioned tokens and keeps length norms.
	KindText FieldKind = iota
	// KindString is indexed verbatim as one token without norms.
	KindString
	// KindNumeric is indexed as prefix-coded trie terms without norms.
	KindNumeric
	// KindStored is stored only.
	KindStored
)

// NumericType records the declared type of a numeric field.
type NumericType int

const (
	NumericLong NumericType = iota
	NumericInt
	NumericFloat
	NumericDouble
)

// Field is one value of a document.
type Field struct {
	Name  string
	Kind  FieldKind
	Value string
	// Encoded is the sortable int64 of a numeric field.
	Encoded       int64
	NumericType   NumericType
	PrecisionStep int
	Stored        bool
}

func NewTextField(name, value string, stored bool) Field {
	return Field{Name: name, Kind: KindText, Value: value, Stored: stored}
}

func NewStringField(name, value string, stored bool) Field {
	return Field{Name: name, Kind: KindString, Value: value, Stored: stored}
}

func NewStoredField(name, value string) Field {
	return Field{Name: name, Kind: KindStored, Value: value, Stored: true}
}

func NewLongField(name string, v int64, precisionStep int, stored bool) Field {
	return Field{
		Name: name, Kind: KindNumeric, Value: strconv.FormatInt(v, 10),
		Encoded: v, NumericType: NumericLong, PrecisionStep: precisionStep, Stored: stored,
	}
}

func NewIntField(name string, v int32, precisionStep int, stored bool) Field {
	return Field{
		Name: name, Kind: KindNumeric, Value: strconv.FormatInt(int64(v), 10),
		Encoded: numeric.Int32ToLong(v), NumericType: NumericInt, PrecisionStep: precisionStep, Stored: stored,
	}
}

func NewDoubleField(name string, v float64, precisionStep int, stored bool) Field {
	return Field{
		Name: name, Kind: KindNumeric, Value: strconv.FormatFloat(v, 'g', -1, 64),
		Encoded: numeric.DoubleToSortableLong(v), NumericType: NumericDouble, PrecisionStep: precisionStep, Stored: stored,
	}
}

func NewFloatField(name string, v float32, precisionStep int, stored bool) Field {
	return Field{
		Name: name, Kind: KindNumeric, Value: strconv.FormatFloat(float64(v), 'g', -1, 32),
		Encoded: numeric.Float32ToSortableLong(v), NumericType: NumericFloat, PrecisionStep: precisionStep, Stored: stored,
	}
}

// Document is an ordered list of fields; a name may repeat.
type Document struct {
	Fields []Field
}

func NewDocument(fields ...Field) *Document {
	return &Document{Fields: fields}
}

func (d *Document) Add(f Field) *Document {
	d.Fields = append(d.Fields, f)
	return d
}

// StoredDocument holds the stored values of a document by field name.
type StoredDocument map[string][]string

// Get returns the first stored value of field, or "".
func (d StoredDocument) Get(field string) string {
	if vs := d[field]; len(vs) > 0 {
		return vs[0]
	}
	return ""
}
