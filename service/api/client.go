// Package api calls the API of record that persists chat messages.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"ChatRelay/tools/errs"
)

const maxErrorBody = 512

// Message is the created message as returned by the API. Raw is forwarded to
// clients untouched.
type Message struct {
	ID        json.RawMessage `json:"id"`
	CreatedAt string          `json:"created_at"`
	Raw       json.RawMessage `json:"-"`
}

// Creator persists a message on behalf of the caller's credential.
type Creator interface {
	CreateMessage(ctx context.Context, token, conversationID, content, kind string) (Message, error)
}

type Config struct {
	BaseURL      string
	MessagesPath string // must contain {id}
	Timeout      time.Duration
}

type Client struct {
	cfg        Config
	httpClient *http.Client
}

func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.MessagesPath == "" {
		cfg.MessagesPath = "/conversations/{id}/messages"
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

func (c *Client) endpoint(conversationID string) string {
	path := strings.ReplaceAll(c.cfg.MessagesPath, "{id}", url.PathEscape(conversationID))
	return strings.TrimRight(c.cfg.BaseURL, "/") + path
}

type createRequest struct {
	Content string `json:"content"`
	Type    string `json:"type"`
}

// CreateMessage posts {content, type} with the caller's bearer token. Any
// failure, including a non-2xx reply or a timeout, is an UpstreamError whose
// detail is the reply body or the transport error.
func (c *Client) CreateMessage(ctx context.Context, token, conversationID, content, kind string) (Message, error) {
	body, err := json.Marshal(createRequest{Content: content, Type: kind})
	if err != nil {
		return Message{}, errs.ErrUpstream.WrapMsg(err.Error())
	}
	reqCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.endpoint(conversationID), bytes.NewReader(body))
	if err != nil {
		return Message{}, errs.ErrUpstream.WrapMsg(err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if reqCtx.Err() == context.DeadlineExceeded {
			return Message{}, errs.ErrUpstream.WrapMsg("request timed out")
		}
		return Message{}, errs.ErrUpstream.WrapMsg(err.Error())
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Message{}, errs.ErrUpstream.WrapMsg("read response: " + err.Error())
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Message{}, errs.ErrUpstream.WrapMsg(errorDetail(resp, raw))
	}

	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return Message{}, errs.ErrUpstream.WrapMsg("malformed message: " + err.Error())
	}
	if len(msg.ID) == 0 || string(msg.ID) == "null" {
		return Message{}, errs.ErrUpstream.WrapMsg("malformed message: missing id")
	}
	msg.Raw = raw
	return msg, nil
}

func errorDetail(resp *http.Response, body []byte) string {
	text := strings.TrimSpace(string(body))
	if text == "" {
		if s := http.StatusText(resp.StatusCode); s != "" {
			return s
		}
		return resp.Status
	}
	if len(text) > maxErrorBody {
		text = text[:maxErrorBody]
	}
	return text
}

// ErrorText is the text shown to the client for a failed create.
func ErrorText(err error) string {
	if ce, ok := errs.AsCode(err); ok {
		if d := ce.Detail; d != "" {
			return d
		}
		return ce.Msg
	}
	return "Request failed"
}
