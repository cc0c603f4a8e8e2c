package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebhookNotifier_Send(t *testing.T) {
	t.Run("disabled notifier is a no-op", func(t *testing.T) {
		var w *WebhookNotifier
		assert.False(t, w.Enabled())
		assert.NoError(t, w.Send(context.Background(), WebhookEvent{Action: "folder.create"}))
	})

	t.Run("delivers to every url and reports failures", func(t *testing.T) {
		var hits atomic.Int32
		ok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			hits.Add(1)
			w.WriteHeader(http.StatusNoContent)
		}))
		defer ok.Close()
		bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer bad.Close()

		notifier := NewWebhookNotifier([]string{ok.URL, bad.URL, ok.URL}, "bot", time.Second)
		err := notifier.Send(context.Background(), WebhookEvent{Action: "report.create", Title: "New report"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "502")
		assert.EqualValues(t, 3, hits.Load())
	})
}

func TestColorForAction(t *testing.T) {
	assert.Equal(t, 0x5865F2, colorForAction("folder.member_join"))
	assert.Equal(t, 0x57F287, colorForAction("report.create"))
	assert.Equal(t, 0x99AAB5, colorForAction("auth.login"))
}
