package errdefs

import (
	"testing"

	"github.com/pkg/errors"
)

func TestKindsSurviveWrapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind error
	}{
		{"invalid", InvalidArgument("convention %q", "dx"), ErrInvalidArgument},
		{"degenerate", DegenerateInput("%d cameras", 1), ErrDegenerateInput},
		{"precondition", PreconditionViolation("model %s", "OPENCV"), ErrPreconditionViolation},
		{"not implemented", NotImplemented("undistort"), ErrNotImplemented},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := errors.Wrap(tt.err, "outer")
			if !errors.Is(wrapped, tt.kind) {
				t.Errorf("errors.Is(%v, %v) = false", wrapped, tt.kind)
			}
		})
	}

	if errors.Is(InvalidArgument("x"), ErrDegenerateInput) {
		t.Error("kinds must not match each other")
	}
}
