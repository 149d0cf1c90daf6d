// Package httpsource implements feed.Source against the chat server's HTTP
// API: history through the REST pager and the live window through the tail
// websocket.
package httpsource

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/shinyyama/musclecat-chat/internal/feed"
	"github.com/shinyyama/musclecat-chat/internal/model"
)

// ErrStreamClosed is returned by Watch when the server ends the stream.
var ErrStreamClosed = errors.New("tail stream closed by server")

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned %d", e.Status)
	}
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

type Options struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
	Dialer     *websocket.Dialer
	Logger     *zap.Logger
	// OnServerStatus receives the status frames of the server-side tail.
	OnServerStatus func(status, errMsg string)
}

type Client struct {
	base     *url.URL
	token    string
	http     *http.Client
	dialer   *websocket.Dialer
	log      *zap.Logger
	onStatus func(status, errMsg string)
}

var _ feed.Source = (*Client)(nil)

func New(opts Options) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("base url must be http or https, got %q", opts.BaseURL)
	}
	c := &Client{
		base:     base,
		token:    opts.Token,
		http:     opts.HTTPClient,
		dialer:   opts.Dialer,
		log:      opts.Logger,
		onStatus: opts.OnServerStatus,
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: 15 * time.Second}
	}
	if c.dialer == nil {
		c.dialer = &websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	}
	if c.log == nil {
		c.log = zap.NewNop()
	}
	return c, nil
}

func (c *Client) endpoint(path string, q url.Values) *url.URL {
	u := *c.base
	u.Path = c.base.Path + path
	u.RawQuery = q.Encode()
	return &u
}

func (c *Client) authorize(h http.Header) {
	if c.token != "" {
		h.Set("Authorization", "Bearer "+c.token)
	}
}

func (c *Client) do(ctx context.Context, method string, u *url.URL, body, out interface{}) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), rd)
	if err != nil {
		return err
	}
	c.authorize(req.Header)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return decodeAPIError(res)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, res.Body)
		return nil
	}
	return json.NewDecoder(res.Body).Decode(out)
}

func decodeAPIError(res *http.Response) error {
	apiErr := &APIError{Status: res.StatusCode}
	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	b, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
	if json.Unmarshal(b, &envelope) == nil {
		apiErr.Code = envelope.Error.Code
		apiErr.Message = envelope.Error.Message
	}
	return apiErr
}

// ReadRange walks the REST pager until limit messages are collected or history
// ends, since the server may cap a single page below limit.
func (c *Client) ReadRange(ctx context.Context, olderThan *feed.Cursor, limit int) ([]model.Message, error) {
	if limit <= 0 {
		return nil, feed.ErrInvalidPageSize
	}
	out := make([]model.Message, 0, limit)
	before := olderThan
	for len(out) < limit {
		q := url.Values{}
		q.Set("limit", strconv.Itoa(limit-len(out)))
		if before != nil {
			q.Set("before", before.Encode())
		}
		var page model.MessagePage
		if err := c.do(ctx, http.MethodGet, c.endpoint("/api/messages", q), nil, &page); err != nil {
			return nil, err
		}
		for i := len(page.Messages) - 1; i >= 0; i-- {
			out = append(out, page.Messages[i])
		}
		if page.Exhausted || page.Next == "" || len(page.Messages) == 0 {
			break
		}
		next, err := feed.DecodeCursor(page.Next)
		if err != nil {
			return nil, err
		}
		before = next
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Watch holds the tail websocket open and passes every snapshot frame to fn.
func (c *Client) Watch(ctx context.Context, limit int, fn func([]model.Message)) error {
	u := c.endpoint("/api/messages/tail", url.Values{"limit": {strconv.Itoa(limit)}})
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	h := http.Header{}
	c.authorize(h)
	conn, res, err := c.dialer.DialContext(ctx, u.String(), h)
	if err != nil {
		if res != nil {
			defer res.Body.Close()
			return decodeAPIError(res)
		}
		return fmt.Errorf("dial tail: %w", err)
	}
	if res != nil && res.Body != nil {
		_ = res.Body.Close()
	}
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		var frame model.TailFrame
		if err := conn.ReadJSON(&frame); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return ErrStreamClosed
			}
			return fmt.Errorf("read tail frame: %w", err)
		}
		switch frame.Type {
		case model.FrameSnapshot:
			fn(frame.Messages)
		case model.FrameStatus:
			c.log.Debug("server tail status", zap.String("status", frame.Status), zap.String("error", frame.Error))
			if c.onStatus != nil {
				c.onStatus(frame.Status, frame.Error)
			}
		default:
			c.log.Debug("ignoring tail frame", zap.String("type", frame.Type))
		}
	}
}

type SendRequest struct {
	Kind      model.Kind `json:"kind"`
	Text      string     `json:"text,omitempty"`
	ImageURL  string     `json:"imageUrl,omitempty"`
	ReplyToID string     `json:"replyToId,omitempty"`
	ClientID  string     `json:"clientId,omitempty"`
}

// Send posts a message and returns the committed record.
func (c *Client) Send(ctx context.Context, in SendRequest) (*model.Message, error) {
	var m model.Message
	if err := c.do(ctx, http.MethodPost, c.endpoint("/api/messages", nil), in, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// MarkRead adds the caller to readBy of every message written by someone else.
func (c *Client) MarkRead(ctx context.Context) (int64, error) {
	var out struct {
		Marked int64 `json:"marked"`
	}
	err := c.do(ctx, http.MethodPost, c.endpoint("/api/messages/read", nil), nil, &out)
	return out.Marked, err
}

// Identity is the caller as the server sees it.
type Identity struct {
	UID         string     `json:"uid"`
	DisplayName string     `json:"displayName"`
	Role        model.Role `json:"role"`
}

func (c *Client) Me(ctx context.Context) (Identity, error) {
	var id Identity
	err := c.do(ctx, http.MethodGet, c.endpoint("/api/me", nil), nil, &id)
	return id, err
}
