package common

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPipelineErrorStatusAndMessage(t *testing.T) {
	cases := []struct {
		name    string
		err     error
		status  int
		message string
		is      error
	}{
		{"validation", ValidationErr("No files provided"), http.StatusBadRequest, "No files provided", ErrValidation},
		{"extraction", ExtractionErr("Unable to extract text from: a.pdf", errors.New("boom")), http.StatusBadRequest, "Unable to extract text from: a.pdf", ErrExtraction},
		{"structuring", StructuringErr(http.StatusInternalServerError, "GPT portfolio parsing failed", nil), http.StatusInternalServerError, "GPT portfolio parsing failed", ErrStructuring},
		{"storage", StorageErr("Error saving x to database", errors.New("down")), http.StatusInternalServerError, "Error saving x to database", ErrStorage},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.status, StatusOf(tc.err))
			assert.Equal(t, tc.message, MessageOf(tc.err))
			assert.ErrorIs(t, tc.err, tc.is)
		})
	}
}

func TestPipelineErrorUnwrapsCause(t *testing.T) {
	cause := errors.New("disk full")
	err := fmt.Errorf("stage: %w", StorageErr("Error saving file a.pdf", cause))

	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, ErrStorage)
	assert.Equal(t, http.StatusInternalServerError, StatusOf(err))
	assert.Equal(t, "Error saving file a.pdf", MessageOf(err))
}

func TestStatusOfPlainErrors(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, StatusOf(WrapError(ErrNotFound, "draft")))
	assert.Equal(t, http.StatusBadRequest, StatusOf(NewAppError("BAD", "bad input", ErrInvalidInput)))
	assert.Equal(t, http.StatusInternalServerError, StatusOf(errors.New("x")))
	assert.Equal(t, "x", MessageOf(errors.New("x")))
}

func TestValidatorCollectsErrors(t *testing.T) {
	v := NewValidator().
		Field("doc_type", "", Required).
		Field("files", []string{}, NotEmpty).
		Field("name", "abcdef", MaxLen(3))

	assert.True(t, v.HasErrors())
	assert.Len(t, v.Errors(), 3)

	assert.NotNil(t, NotEmpty("items", []struct{ A int }{}))
	assert.Nil(t, NotEmpty("items", []struct{ A int }{{A: 1}}))
	assert.Nil(t, NotEmpty("name", "not a collection"))

	err := ValidateAndReturnError(v)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, http.StatusBadRequest, StatusOf(err))
	assert.Contains(t, MessageOf(err), "doc_type")
}
