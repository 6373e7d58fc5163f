package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"app error", New(ErrInvalidInput, http.StatusTeapot, "teapot"), http.StatusTeapot},
		{"wrapped app error", fmt.Errorf("outer: %w", Newf(ErrInternal, http.StatusBadGateway, "upstream %d", 1)), http.StatusBadGateway},
		{"not found", ErrDocumentNotFound, http.StatusNotFound},
		{"invalid argument", Invalidf("limit %d", -1), http.StatusBadRequest},
		{"invalid input", ErrInvalidInput, http.StatusBadRequest},
		{"too many clauses", fmt.Errorf("rewrite: %w", ErrTooManyClauses), http.StatusUnprocessableEntity},
		{"closed", ErrAlreadyClosed, http.StatusServiceUnavailable},
		{"timeout", ErrTimeout, http.StatusServiceUnavailable},
		{"illegal state", IllegalStatef("refcount %d", 0), http.StatusConflict},
		{"unknown", context.Canceled, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatusCode(tt.err))
		})
	}
}

func TestAppErrorUnwrap(t *testing.T) {
	err := Newf(ErrInvalidInput, http.StatusBadRequest, "field %q", "title")
	assert.True(t, errors.Is(err, ErrInvalidInput))
	assert.Equal(t, `invalid input: field "title"`, err.Error())
}

func TestFormattedSentinels(t *testing.T) {
	err := Invalidf("precision step %d", 0)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.Equal(t, "invalid argument: precision step 0", err.Error())

	err = IllegalStatef("manager closed")
	assert.ErrorIs(t, err, ErrIllegalState)
}
