package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNotFoundIsRetriableFalse(t *testing.T) {
	err := NotFoundf("node %q not found", "ALICE")
	assert.Equal(t, ErrorTypeNotFound, GetType(err))
	assert.True(t, IsNotFound(err))
	assert.False(t, IsRetriable(err))
	assert.False(t, IsFatal(err))
}

func TestTransientUpstreamIsRetriable(t *testing.T) {
	cause := fmt.Errorf("connection reset")
	err := TransientUpstreamErrf(cause, "publish to bus topic %q failed", "graphrag.query")
	assert.True(t, IsRetriable(err))
	assert.ErrorIs(t, err, cause)
}

func TestAlreadyExistsIs(t *testing.T) {
	a := AlreadyExistsf("node %q already exists", "ACME")
	b := AlreadyExists("different message, same type")
	assert.True(t, a.Is(b))
	assert.True(t, IsAlreadyExists(a))
}

func TestParseFailureSeverityIsLow(t *testing.T) {
	err := ParseFailuref(fmt.Errorf("bad json"), "failed to parse map-worker response")
	assert.Equal(t, SeverityLow, GetSeverity(err))
	assert.False(t, IsFatal(err))
}

func TestTimeoutSeverityIsHigh(t *testing.T) {
	err := TimeoutErr("rendezvous did not reach completion threshold")
	assert.Equal(t, SeverityHigh, GetSeverity(err))
	assert.Contains(t, err.DetailedString(), "TIMEOUT")
}
