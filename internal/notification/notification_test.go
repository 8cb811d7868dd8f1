package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebhookNotifier_Send(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	err := NewWebhookNotifier(srv.URL).Send(context.Background(), Alert{
		Level: AlertCritical, Component: "session", Title: "login failed", Message: "401 Unauthorized",
	})
	require.NoError(t, err)
	assert.Equal(t, "CRITICAL", got["level"])
	assert.Equal(t, "session", got["component"])
	assert.NotEmpty(t, got["ts"])
}

func TestWebhookNotifier_BadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewWebhookNotifier(srv.URL).Send(context.Background(), Alert{Title: "x"})
	assert.ErrorContains(t, err, "unexpected status 502")
}

func TestTelegramNotifier_Send(t *testing.T) {
	var path string
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
	}))
	defer srv.Close()

	tn := NewTelegramNotifier("TOKEN", "-100")
	tn.apiBase = srv.URL
	err := tn.Send(context.Background(), Alert{Level: AlertWarning, Component: "catalogue", Title: "refresh failed", Message: "status 503."})
	require.NoError(t, err)

	assert.Equal(t, "/botTOKEN/sendMessage", path)
	assert.Equal(t, "-100", got["chat_id"])
	assert.Contains(t, got["text"], `\[catalogue\] refresh failed`)
	assert.Contains(t, got["text"], `status 503\.`)
}

func TestEscapeMarkdown(t *testing.T) {
	assert.Equal(t, `NIFTY\-50 \(index\)`, escapeMarkdown("NIFTY-50 (index)"))
	assert.Equal(t, "plain", escapeMarkdown("plain"))
}

type failing struct{}

func (failing) Send(context.Context, Alert) error { return errors.New("down") }

func TestMulti_JoinsErrors(t *testing.T) {
	var buf bytes.Buffer
	logN := NewLogNotifier(slog.New(slog.NewJSONHandler(&buf, nil)))

	err := Multi{logN, failing{}}.Send(context.Background(), Alert{Level: AlertWarning, Component: "router", Title: "order rejected"})
	assert.ErrorContains(t, err, "down")
	assert.Contains(t, buf.String(), `"msg":"order rejected"`)
	assert.Contains(t, buf.String(), `"level":"WARN"`)
}
