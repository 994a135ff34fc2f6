package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOfAndClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"validation", Validation("p", "bad %s", "field"), KindValidation},
		{"wrapped distance", fmt.Errorf("assemble: %w", &DistanceComputationError{Err: errors.New("x")}), KindDistance},
		{"assembly", Assembly("p", "missing depot"), KindAssembly},
		{"plain", errors.New("boom"), KindUnexpected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
			assert.Equal(t, tt.want, KindOf(Classify("p", tt.err)))
		})
	}

	plain := errors.New("boom")
	c := Classify("p-1", plain)
	var ue *UnexpectedError
	assert.ErrorAs(t, c, &ue)
	assert.ErrorIs(t, c, plain)
	assert.Equal(t, "p-1", ProblemIDOf(c))
	assert.Same(t, c, Classify("p-1", c))
	assert.Nil(t, Classify("p", nil))
}

func TestExtractProblemID(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{`{"problemId": "abc-1", "orders": [`, "abc-1"},
		{`{"orders":[],"problemId":"last"}`, "last"},
		{`{"problemId":12,"orders":[]}`, ""},
		{`{"orders":[]}`, ""},
		{`not json`, ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ExtractProblemID(tt.raw), tt.raw)
	}
}
