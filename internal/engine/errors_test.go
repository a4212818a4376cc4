package engine

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf_ThroughWraps(t *testing.T) {
	base := Errorf(KindQuota, "search", "daily limit reached")
	wrapped := fmt.Errorf("query 3 of 10: %w", base)
	assert.Equal(t, KindQuota, KindOf(wrapped))

	assert.Equal(t, KindUnknown, KindOf(errors.New("bare")))
	assert.Equal(t, KindUnknown, KindOf(nil))
}

func TestErrorMessageAndUnwrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := E(KindTransport, "fetch", cause)
	assert.Equal(t, "fetch: connection reset", err.Error())
	assert.ErrorIs(t, err, cause)

	bare := &Error{Kind: KindFatal, Op: "sync"}
	assert.Equal(t, "sync: fatal", bare.Error())
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(Errorf(KindTransport, "fetch", "timeout")))
	for _, k := range []Kind{KindConfig, KindAuth, KindQuota, KindProtocol, KindContent, KindPolicy, KindConflict, KindFatal} {
		assert.False(t, IsRetryable(Errorf(k, "op", "x")), k.String())
	}
	assert.False(t, IsRetryable(errors.New("unclassified")))
}

func TestKindFromStatus(t *testing.T) {
	cases := map[int]Kind{
		http.StatusOK:                  KindUnknown,
		http.StatusUnauthorized:        KindAuth,
		http.StatusForbidden:           KindAuth,
		http.StatusTooManyRequests:     KindQuota,
		http.StatusNotFound:            KindProtocol,
		http.StatusUnprocessableEntity: KindProtocol,
		http.StatusInternalServerError: KindTransport,
		http.StatusBadGateway:          KindTransport,
	}
	for status, want := range cases {
		assert.Equal(t, want, KindFromStatus(status), "status %d", status)
	}
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "quota", KindQuota.String())
	assert.Equal(t, "unknown", KindUnknown.String())
	assert.Equal(t, "unknown", Kind(99).String())
}
