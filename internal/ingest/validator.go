package ingest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/search-scoring-engine/internal/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/search-scoring-engine/pkg/errors"
)

const (
	maxIDLength    = 512
	maxFields      = 256
	maxValueLength = 1 << 20
)

// ValidationError holds per-field validation failure messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error {
	return apperrors.ErrInvalidInput
}

// Validate checks e without building the document.
func Validate(e *DocumentEvent) error {
	_, err := build(e, 1)
	return err
}

// ToDocument validates an upsert and converts it to an index document whose
// first field is the stored id. defaultStep applies to numeric fields that
// do not set their own precision step.
func ToDocument(e *DocumentEvent, defaultStep int) (*index.Document, error) {
	if e.Op != OpUpsert {
		return nil, apperrors.Invalidf("cannot build a document for op %q", e.Op)
	}
	return build(e, defaultStep)
}

func build(e *DocumentEvent, defaultStep int) (*index.Document, error) {
	errs := make(map[string]string)

	id := strings.TrimSpace(e.ID)
	switch {
	case id == "":
		errs["id"] = "id is required"
	case len(id) > maxIDLength:
		errs["id"] = fmt.Sprintf("id must be at most %d characters", maxIDLength)
	}

	var doc *index.Document
	switch e.Op {
	case OpDelete:
		if len(e.Fields) > 0 {
			errs["fields"] = "delete takes no fields"
		}
	case OpUpsert:
		switch {
		case len(e.Fields) == 0:
			errs["fields"] = "upsert needs at least one field"
		case len(e.Fields) > maxFields:
			errs["fields"] = fmt.Sprintf("at most %d fields are allowed", maxFields)
		}
		doc = index.NewDocument(index.NewStringField(IDField, id, true))
		for i, spec := range e.Fields {
			f, err := toField(spec, defaultStep)
			if err != nil {
				errs[fmt.Sprintf("fields[%d]", i)] = err.Error()
				continue
			}
			doc.Add(f)
		}
	default:
		errs["op"] = fmt.Sprintf("op must be %q or %q", OpUpsert, OpDelete)
	}

	if len(errs) > 0 {
		return nil, &ValidationError{Fields: errs}
	}
	return doc, nil
}

func toField(spec FieldSpec, defaultStep int) (index.Field, error) {
	if spec.Name == "" {
		return index.Field{}, fmt.Errorf("name is required")
	}
	if spec.Name == IDField {
		return index.Field{}, fmt.Errorf("%q is reserved", IDField)
	}
	if len(spec.Value) == 0 {
		return index.Field{}, fmt.Errorf("value is required")
	}
	if len(spec.Value) > maxValueLength {
		return index.Field{}, fmt.Errorf("value must be at most %d bytes", maxValueLength)
	}
	step := defaultStep
	if spec.PrecisionStep != 0 {
		step = spec.PrecisionStep
	}
	if step < 1 {
		return index.Field{}, fmt.Errorf("precision_step must be >= 1, got %d", step)
	}

	switch spec.Type {
	case TypeText, TypeString, TypeStored:
		var s string
		if err := json.Unmarshal(spec.Value, &s); err != nil {
			return index.Field{}, fmt.Errorf("%s value must be a string", spec.Type)
		}
		switch spec.Type {
		case TypeText:
			return index.NewTextField(spec.Name, s, spec.Stored), nil
		case TypeString:
			return index.NewStringField(spec.Name, s, spec.Stored), nil
		default:
			return index.NewStoredField(spec.Name, s), nil
		}
	case TypeLong, TypeInt:
		bits := 64
		if spec.Type == TypeInt {
			bits = 32
		}
		n, err := strconv.ParseInt(number(spec.Value), 10, bits)
		if err != nil {
			return index.Field{}, fmt.Errorf("%s value must be an integer in range", spec.Type)
		}
		if spec.Type == TypeInt {
			return index.NewIntField(spec.Name, int32(n), step, spec.Stored), nil
		}
		return index.NewLongField(spec.Name, n, step, spec.Stored), nil
	case TypeFloat, TypeDouble:
		bits := 64
		if spec.Type == TypeFloat {
			bits = 32
		}
		v, err := strconv.ParseFloat(number(spec.Value), bits)
		if err != nil || math.IsNaN(v) {
			return index.Field{}, fmt.Errorf("%s value must be a number in range", spec.Type)
		}
		if spec.Type == TypeFloat {
			return index.NewFloatField(spec.Name, float32(v), step, spec.Stored), nil
		}
		return index.NewDoubleField(spec.Name, v, step, spec.Stored), nil
	}
	return index.Field{}, fmt.Errorf("unknown type %q", spec.Type)
}

// number returns the literal text of a JSON number; anything else yields a
// string the numeric parsers reject.
func number(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] == '"' {
		return ""
	}
	return string(raw)
}
