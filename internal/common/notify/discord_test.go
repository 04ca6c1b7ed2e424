package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscordNotify(t *testing.T) {
	var got WebhookMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	err := NewDiscord(srv.URL).Notify(context.Background(), "ERROR", "run failed", map[string]string{
		"run_id": "abc",
		"date":   "2024-01-15",
		"error":  strings.Repeat("x", 2000),
	})
	require.NoError(t, err)

	require.Len(t, got.Embeds, 1)
	embed := got.Embeds[0]
	assert.Equal(t, "run failed", embed.Description)
	assert.Equal(t, 0xFF0000, embed.Color)
	require.Len(t, embed.Fields, 3)
	assert.Equal(t, "date", embed.Fields[0].Name)
	assert.Equal(t, "error", embed.Fields[1].Name)
	assert.Len(t, embed.Fields[1].Value, 1024)
	assert.False(t, embed.Fields[1].Inline)
	assert.Equal(t, "run_id", embed.Fields[2].Name)
}

func TestDiscordNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	err := NewDiscord(srv.URL).Notify(context.Background(), "ERROR", "run failed", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
}

func TestNewWithoutURLIsNop(t *testing.T) {
	n := New("")
	assert.NoError(t, n.Notify(context.Background(), "ERROR", "x", nil))
	_, ok := n.(nop)
	assert.True(t, ok)
}

func TestTruncateKeepsRunesWhole(t *testing.T) {
	long := strings.Repeat("ā", 2000)
	got := truncate(long, 1024)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, 1024, utf8.RuneCountInString(got))
	assert.True(t, strings.HasSuffix(got, "..."))

	short := strings.Repeat("ā", 1024)
	assert.Equal(t, short, truncate(short, 1024))
}
