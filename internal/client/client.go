// Package client talks to a perch server over HTTP.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/hay-kot/perch/internal/broker"
	"github.com/hay-kot/perch/internal/core/messaging"
	"github.com/hay-kot/perch/internal/transport/httpapi"
)

// Default retry timing for Listen.
const (
	DefaultRetryDelay    = 50 * time.Millisecond
	DefaultMaxRetryDelay = 5 * time.Second
)

// ErrStatus is wrapped by every StatusError.
var ErrStatus = errors.New("unexpected status")

// StatusError reports a non-2xx answer from the server.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: %d %s", ErrStatus, e.Code, http.StatusText(e.Code))
	}
	return fmt.Sprintf("%s: %d %s", ErrStatus, e.Code, e.Message)
}

func (e *StatusError) Unwrap() error { return ErrStatus }

// Permanent reports whether retrying the same request cannot succeed.
func (e *StatusError) Permanent() bool {
	return e.Code >= 400 && e.Code < 500 && e.Code != http.StatusRequestTimeout && e.Code != http.StatusTooManyRequests
}

// Client is a perch HTTP client. It is safe for concurrent use.
type Client struct {
	base          *url.URL
	http          *http.Client
	log           zerolog.Logger
	retryDelay    time.Duration
	maxRetryDelay time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client. It must not carry a
// timeout shorter than the server's request timeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the logger used by Listen.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Client) { c.log = log }
}

// WithRetry sets the initial and maximum delay between failed polls.
// Non-positive values keep the defaults.
func WithRetry(delay, maxDelay time.Duration) Option {
	return func(c *Client) {
		if delay > 0 {
			c.retryDelay = delay
		}
		if maxDelay > 0 {
			c.maxRetryDelay = maxDelay
		}
	}
}

// New creates a client for the server at rawURL.
func New(rawURL string, opts ...Option) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(rawURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("server url %q must use http or https", rawURL)
	}

	c := &Client{
		base:          base,
		http:          &http.Client{},
		log:           zerolog.Nop(),
		retryDelay:    DefaultRetryDelay,
		maxRetryDelay: DefaultMaxRetryDelay,
	}
	for _, o := range opts {
		o(c)
	}
	if c.maxRetryDelay < c.retryDelay {
		c.maxRetryDelay = c.retryDelay
	}

	return c, nil
}

// URL returns the server base URL.
func (c *Client) URL() string {
	return c.base.String()
}

// Publish sends payload to channel. typ becomes the message type; when
// empty the server derives it from the content type.
func (c *Client) Publish(ctx context.Context, channel, typ string, payload []byte) (httpapi.PublishResponse, error) {
	q := url.Values{}
	if typ != "" {
		q.Set("type", typ)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/publish/"+channel, q, bytes.NewReader(payload))
	if err != nil {
		return httpapi.PublishResponse{}, err
	}
	if json.Valid(payload) {
		req.Header.Set("Content-Type", "application/json")
	} else {
		req.Header.Set("Content-Type", "text/plain")
	}

	var out httpapi.PublishResponse
	if err := c.do(req, http.StatusAccepted, &out); err != nil {
		return httpapi.PublishResponse{}, fmt.Errorf("publish to %s: %w", channel, err)
	}
	return out, nil
}

// Poll issues a single long-poll and blocks until the server answers or
// ctx ends.
func (c *Client) Poll(ctx context.Context, clientID string, channels []string) (httpapi.PollResponse, error) {
	q := url.Values{}
	q.Set("client", clientID)
	for _, ch := range channels {
		q.Add("channel", ch)
	}

	req, err := c.newRequest(ctx, http.MethodGet, "/poll", q, nil)
	if err != nil {
		return httpapi.PollResponse{}, err
	}

	var out httpapi.PollResponse
	if err := c.do(req, http.StatusOK, &out); err != nil {
		return httpapi.PollResponse{}, fmt.Errorf("poll: %w", err)
	}
	return out, nil
}

// Listen polls in a loop, handing every response that carries messages to
// fn and re-polling immediately. Failed polls are retried after the retry
// delay, doubling up to the maximum while failures continue. Listen returns
// ctx's error when ctx ends, fn's error when fn fails, and the server's
// error when it rejects the request outright.
func (c *Client) Listen(ctx context.Context, clientID string, channels []string, fn func(httpapi.PollResponse) error) error {
	delay := c.retryDelay

	for {
		resp, err := c.Poll(ctx, clientID, channels)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			var se *StatusError
			if errors.As(err, &se) && se.Permanent() {
				return err
			}

			c.log.Debug().Err(err).Dur("retry_in", delay).Msg("poll failed")
			if err := sleep(ctx, delay); err != nil {
				return err
			}
			delay = min(delay*2, c.maxRetryDelay)
			continue
		}

		delay = c.retryDelay

		if len(resp.Messages) == 0 {
			continue
		}
		if err := fn(resp); err != nil {
			return err
		}
	}
}

// Channels lists channels holding messages.
func (c *Client) Channels(ctx context.Context) ([]messaging.ChannelInfo, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/channels", nil, nil)
	if err != nil {
		return nil, err
	}

	var out []messaging.ChannelInfo
	if err := c.do(req, http.StatusOK, &out); err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}
	return out, nil
}

// Stats returns the server's broker statistics.
func (c *Client) Stats(ctx context.Context) (broker.Stats, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/stats", nil, nil)
	if err != nil {
		return broker.Stats{}, err
	}

	var out broker.Stats
	if err := c.do(req, http.StatusOK, &out); err != nil {
		return broker.Stats{}, fmt.Errorf("stats: %w", err)
	}
	return out, nil
}

// Health checks that the server is up.
func (c *Client) Health(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodGet, "/healthz", nil, nil)
	if err != nil {
		return err
	}
	if err := c.do(req, http.StatusOK, nil); err != nil {
		return fmt.Errorf("health check: %w", err)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, q url.Values, body io.Reader) (*http.Request, error) {
	u := c.base.JoinPath(path)
	if len(q) > 0 {
		u.RawQuery = q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// do sends req and decodes a JSON body into out when the status matches.
func (c *Client) do(req *http.Request, want int, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != want {
		var body httpapi.ErrorResponse
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if err := json.Unmarshal(data, &body); err != nil || body.Error == "" {
			body.Error = strings.TrimSpace(string(data))
		}
		return &StatusError{Code: resp.StatusCode, Message: body.Error}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
