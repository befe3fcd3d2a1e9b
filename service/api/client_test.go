package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ChatRelay/tools/errs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateMessage(t *testing.T) {
	var gotAuth, gotPath string
	var gotBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &gotBody)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":11,"chat_id":"c1","content":"hi","created_at":"2024-01-01T00:00:00Z"}`))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL + "/", MessagesPath: "/conversations/{id}/messages", Timeout: time.Second})
	msg, err := c.CreateMessage(context.Background(), "tok", "c1", "hi", "text")
	require.NoError(t, err)

	assert.Equal(t, "Bearer tok", gotAuth)
	assert.Equal(t, "/conversations/c1/messages", gotPath)
	assert.Equal(t, map[string]string{"content": "hi", "type": "text"}, gotBody)
	assert.Equal(t, "11", string(msg.ID))
	assert.Equal(t, "2024-01-01T00:00:00Z", msg.CreatedAt)
	assert.JSONEq(t, `{"id":11,"chat_id":"c1","content":"hi","created_at":"2024-01-01T00:00:00Z"}`, string(msg.Raw))
}

func TestCreateMessage_Non2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"detail":"Not a participant"}`))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL})
	_, err := c.CreateMessage(context.Background(), "tok", "c1", "hi", "text")
	require.Error(t, err)
	assert.True(t, errs.ErrUpstream.Is(err))
	assert.Contains(t, ErrorText(err), "Not a participant")
}

func TestCreateMessage_EmptyErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewClient(Config{BaseURL: srv.URL}).CreateMessage(context.Background(), "", "c1", "hi", "text")
	require.Error(t, err)
	assert.Contains(t, ErrorText(err), "Bad Gateway")
}

func TestCreateMessage_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := NewClient(Config{BaseURL: srv.URL, Timeout: 50 * time.Millisecond})
	start := time.Now()
	_, err := c.CreateMessage(context.Background(), "tok", "c1", "hi", "text")
	require.Error(t, err)
	assert.True(t, errs.ErrUpstream.Is(err))
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestCreateMessage_MissingID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"content":"hi"}`))
	}))
	defer srv.Close()

	_, err := NewClient(Config{BaseURL: srv.URL}).CreateMessage(context.Background(), "tok", "c1", "hi", "text")
	require.Error(t, err)
	assert.Contains(t, ErrorText(err), "missing id")
}

func TestEndpointEscapesID(t *testing.T) {
	c := NewClient(Config{BaseURL: "http://api", MessagesPath: "/api/messages/chat/{id}"})
	assert.Equal(t, "http://api/api/messages/chat/a%2Fb", c.endpoint("a/b"))
}
