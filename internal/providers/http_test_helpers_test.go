package providers

import (
	"net/http"
	"testing"

	"github.com/sentinelstack/pkg-sentinel/internal/utils"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func newTestClient(rt roundTripFunc) *http.Client {
	return &http.Client{Transport: rt}
}

// requireAppError asserts that err carries an AppError tagged with the given
// provider operation.
func requireAppError(t *testing.T, err error, op string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected an error for operation %s", op)
	}
	appErr, ok := utils.AsAppError(err)
	if !ok {
		t.Fatalf("expected an AppError, got %T: %v", err, err)
	}
	if appErr.Op != op {
		t.Fatalf("expected operation %s, got %s", op, appErr.Op)
	}
}
