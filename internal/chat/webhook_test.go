package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebhookMessenger_Notify(t *testing.T) {
	var got payload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	m := NewWebhookMessenger(srv.URL, "+6287800000000")
	require.NoError(t, m.Notify(context.Background(), "wake", "Bangun Sayang!"))

	assert.Equal(t, "wake", got.Channel)
	assert.Equal(t, "+6287800000000", got.Target)
	assert.Equal(t, "Bangun Sayang!", got.Text)
	assert.NotEmpty(t, got.SentAt)
}

func TestWebhookMessenger_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewWebhookMessenger(srv.URL, "").Notify(context.Background(), "", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")

	assert.Error(t, NewWebhookMessenger("", "").Notify(context.Background(), "", "x"))

	var nilMessenger *WebhookMessenger
	assert.Error(t, nilMessenger.Notify(context.Background(), "", "x"))
}
