package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatusCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{ErrDocumentNotFound, http.StatusNotFound},
		{fmt.Errorf("reading notes.txt: %w", ErrDocumentNotFound), http.StatusNotFound},
		{ErrInvalidInput, http.StatusBadRequest},
		{ErrUnsupportedFormat, http.StatusUnsupportedMediaType},
		{ErrPayloadTooLarge, http.StatusRequestEntityTooLarge},
		{ErrTaskScheduling, http.StatusServiceUnavailable},
		{ErrStorage, http.StatusInternalServerError},
		{New(ErrStorage, http.StatusBadGateway, "bucket unreachable"), http.StatusBadGateway},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, HTTPStatusCode(tt.err), tt.err.Error())
	}
}

func TestAppError_Unwrap(t *testing.T) {
	err := Newf(ErrDocumentNotFound, http.StatusNotFound, "key %q", "a.txt")
	assert.ErrorIs(t, err, ErrDocumentNotFound)
	assert.Equal(t, `document not found: key "a.txt"`, err.Error())
}
