// Package ingest turns document events into index mutations. Events arrive
// over HTTP or from a Kafka topic; both paths share validation and apply
// them to the index writer, where an upsert replaces every document with
// the same id.
package ingest

import (
	"encoding/json"
	"time"
)

// IDField is the indexed, stored field holding a document's external id.
const IDField = "id"

type Op string

const (
	OpUpsert Op = "upsert"
	OpDelete Op = "delete"
)

// FieldType names how a field value is indexed.
type FieldType string

const (
	TypeText   FieldType = "text"
	TypeString FieldType = "string"
	TypeStored FieldType = "stored"
	TypeLong   FieldType = "long"
	TypeInt    FieldType = "int"
	TypeFloat  FieldType = "float"
	TypeDouble FieldType = "double"
)

// FieldSpec is one field of an upserted document. Value is a JSON string
// for text, string and stored fields and a JSON number for numeric ones.
type FieldSpec struct {
	Name   string          `json:"name"`
	Type   FieldType       `json:"type"`
	Value  json.RawMessage `json:"value"`
	Stored bool            `json:"stored,omitempty"`
	// PrecisionStep overrides the index default for numeric fields.
	PrecisionStep int `json:"precision_step,omitempty"`
}

// DocumentEvent is the payload of the HTTP endpoint and of the ingest topic.
type DocumentEvent struct {
	Op        Op          `json:"op"`
	ID        string      `json:"id"`
	Fields    []FieldSpec `json:"fields,omitempty"`
	Timestamp time.Time   `json:"timestamp,omitempty"`
}

// Result reports an applied event. Generation can be passed as
// min_generation to a search to wait until the change is visible.
type Result struct {
	ID         string `json:"id"`
	Op         Op     `json:"op"`
	Status     string `json:"status"`
	Generation int64  `json:"generation,omitempty"`
}
