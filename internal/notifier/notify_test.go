package notifier

import (
	"CatalogAuth/internal/model"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebhookNotifier_NotifyRecovery(t *testing.T) {
	received := make(chan model.RecoveryEvent, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var event model.RecoveryEvent
		require.NoError(t, json.NewDecoder(r.Body).Decode(&event))
		received <- event
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	n := NewWebhookNotifier(server.URL, time.Second)
	err := n.NotifyRecovery(context.Background(), model.RecoveryEvent{Username: "admin", TokenIDPrefix: "0123abcd"})
	require.NoError(t, err)

	event := <-received
	assert.Equal(t, EventRecordRecovered, event.Event)
	assert.Equal(t, "admin", event.Username)
	assert.Equal(t, "0123abcd", event.TokenIDPrefix)
	assert.False(t, event.TimeStamp.IsZero())
}

func TestWebhookNotifier_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	n := NewWebhookNotifier(server.URL, time.Second)
	err := n.NotifyRecovery(context.Background(), model.RecoveryEvent{Username: "admin"})
	assert.Error(t, err)
}
