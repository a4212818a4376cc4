package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plantedhq/venuescout/internal/engine"
)

func TestWebhook_PostsEvent(t *testing.T) {
	var got Event
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := NewWebhook(srv.URL)
	err := n.Send(context.Background(), Event{
		Type:     "sync.completed",
		Severity: SeverityInfo,
		Message:  "promoted 4 venues",
		Context:  map[string]any{"added": 4},
	})
	require.NoError(t, err)
	assert.Equal(t, "sync.completed", got.Type)
	assert.False(t, got.Timestamp.IsZero(), "timestamp is stamped when omitted")
}

func TestWebhook_NonRetryableStatusFailsOnce(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	err := NewWebhook(srv.URL).Send(context.Background(), Event{Type: "x"})
	require.Error(t, err)
	assert.Equal(t, 1, calls, "client errors are not retried")
	assert.Equal(t, engine.KindProtocol, engine.KindOf(err))
}

func TestWebhook_EmptyURLIsNoop(t *testing.T) {
	n := NewWebhook("")
	assert.NoError(t, n.Send(context.Background(), Event{Type: "x"}))
	_, ok := n.(Noop)
	assert.True(t, ok)
}
