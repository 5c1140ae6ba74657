package ledger

import (
	"errors"
	"fmt"
	"testing"
)

func TestMapServiceError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"nil", nil, nil},
		{"not found", errors.New("service error: " + ErrNotFound.Error()), ErrNotFound},
		{"not retryable", fmt.Errorf("remote: %s", ErrNotRetryable.Error()), ErrNotRetryable},
		{"invalid status", fmt.Errorf("%w %q", ErrInvalidStatus, "lost"), ErrInvalidStatus},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MapServiceError(tt.err); !errors.Is(got, tt.want) {
				t.Errorf("MapServiceError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestMapServiceErrorPassesThroughUnknown(t *testing.T) {
	err := errors.New("nats: timeout")
	if got := MapServiceError(err); got != err {
		t.Errorf("MapServiceError() = %v, want original error", got)
	}
}
