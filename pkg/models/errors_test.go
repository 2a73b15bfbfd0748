package models

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind ErrorKind
	}{
		{"nil", nil, KindUnknown},
		{"input", fmt.Errorf("%w: bad tier", ErrInput), KindInput},
		{"cancelled", ErrCancelled, KindCancelled},
		{"context cancel maps to cancelled", context.Canceled, KindCancelled},
		{"timeout", fmt.Errorf("%w: scout", ErrTimeout), KindTimeout},
		{"context deadline maps to timeout", context.DeadlineExceeded, KindTimeout},
		{"rate limited", ErrRateLimited, KindRateLimited},
		{"circuit open", ErrCircuitOpen, KindCircuitOpen},
		{"upstream", fmt.Errorf("%w: 502", ErrUpstream), KindUpstream},
		{"transport", ErrTransport, KindTransport},
		{"budget", ErrBudget, KindBudget},
		{"internal", ErrInternal, KindInternal},
		{"unclassified", errors.New("boom"), KindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.kind, KindOf(tt.err))
		})
	}
}

func TestFatal(t *testing.T) {
	assert.True(t, Fatal(ErrInternal))
	assert.True(t, Fatal(fmt.Errorf("%w: shutting down", ErrCancelled)))
	assert.True(t, Fatal(context.Canceled))

	assert.False(t, Fatal(ErrUpstream), "upstream failures degrade, not abort")
	assert.False(t, Fatal(ErrBudget))
	assert.False(t, Fatal(errors.New("boom")))
	assert.False(t, Fatal(nil))
}

func TestNewErrorRecord(t *testing.T) {
	rec := NewErrorRecord("graph", "urlhaus", fmt.Errorf("%w: 503", ErrUpstream))

	assert.Equal(t, "graph", rec.Phase)
	assert.Equal(t, "urlhaus", rec.Source)
	assert.Equal(t, KindUpstream, rec.Kind)
	assert.Equal(t, "upstream error: 503", rec.Message)
	assert.False(t, rec.At.IsZero())
}
