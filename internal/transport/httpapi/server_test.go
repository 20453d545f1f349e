package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hay-kot/perch/internal/broker"
	"github.com/hay-kot/perch/internal/core/config"
)

type harness struct {
	broker *broker.Broker
	server *Server
	http   *httptest.Server
}

func newHarness(t *testing.T, mutate ...func(*config.ServerConfig)) *harness {
	t.Helper()
	return newHarnessWith(t, broker.Options{
		BufferTimeout:  10 * time.Millisecond,
		RequestTimeout: 300 * time.Millisecond,
	}, mutate...)
}

func newHarnessWith(t *testing.T, opts broker.Options, mutate ...func(*config.ServerConfig)) *harness {
	t.Helper()

	b, err := broker.New(opts)
	require.NoError(t, err)

	cfg := config.DefaultConfig().Server
	for _, m := range mutate {
		m(&cfg)
	}

	s, err := New(b, cfg, zerolog.Nop())
	require.NoError(t, err)

	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		b.Close()
		ts.Close()
	})

	return &harness{broker: b, server: s, http: ts}
}

func (h *harness) publish(t *testing.T, channel, contentType, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(h.http.URL+"/publish/"+channel, contentType, strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func (h *harness) pollURL(client string, channels ...string) string {
	q := url.Values{}
	if client != "" {
		q.Set("client", client)
	}
	for _, ch := range channels {
		q.Add("channel", ch)
	}
	return h.http.URL + "/poll?" + q.Encode()
}

func (h *harness) poll(t *testing.T, client string, channels ...string) (int, PollResponse) {
	t.Helper()
	resp, err := http.Get(h.pollURL(client, channels...))
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck

	var body PollResponse
	if resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	}
	return resp.StatusCode, body
}

func TestServer_PublishThenPoll(t *testing.T) {
	h := newHarness(t)

	resp := h.publish(t, "jobs", "application/json", `{"n":1}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var ack PublishResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&ack))
	assert.Equal(t, "jobs", ack.Channel)
	assert.NotEmpty(t, ack.ID)

	status, body := h.poll(t, "c1", "jobs")
	require.Equal(t, http.StatusOK, status)
	assert.False(t, body.TimedOut)
	assert.Equal(t, "c1", body.ClientID)
	require.Len(t, body.Messages, 1)

	entry := body.Messages[0]
	assert.Equal(t, ack.ID, entry.ID)
	assert.Equal(t, ack.Sequence, entry.Sequence)
	assert.Equal(t, "application/json", entry.Type)
	assert.JSONEq(t, `{"n":1}`, string(entry.Payload))
}

func TestServer_PollTimesOutEmpty(t *testing.T) {
	h := newHarness(t)

	start := time.Now()
	status, body := h.poll(t, "c1", "quiet")

	require.Equal(t, http.StatusOK, status)
	assert.True(t, body.TimedOut)
	assert.Empty(t, body.Messages)
	assert.GreaterOrEqual(t, time.Since(start), 250*time.Millisecond)
}

func TestServer_PollHeldUntilPublish(t *testing.T) {
	h := newHarnessWith(t, broker.Options{
		BufferTimeout:  10 * time.Millisecond,
		RequestTimeout: 5 * time.Second,
	})

	type result struct {
		status int
		body   PollResponse
	}
	done := make(chan result, 1)
	go func() {
		status, body := h.poll(t, "c1", "jobs")
		done <- result{status, body}
	}()

	require.Eventually(t, func() bool {
		return h.broker.Stats().Pending == 1
	}, time.Second, 5*time.Millisecond)

	h.publish(t, "jobs", "text/plain", "hello")

	select {
	case r := <-done:
		require.Equal(t, http.StatusOK, r.status)
		require.Len(t, r.body.Messages, 1)
		assert.Equal(t, "hello", string(r.body.Messages[0].Bytes()))
		assert.Equal(t, "text/plain", r.body.Messages[0].Type)
	case <-time.After(2 * time.Second):
		t.Fatal("poll did not resolve")
	}
}

func TestServer_PollDoesNotRedeliver(t *testing.T) {
	h := newHarness(t)
	h.publish(t, "jobs", "", "once")

	_, first := h.poll(t, "c1", "jobs")
	require.Len(t, first.Messages, 1)

	_, second := h.poll(t, "c1", "jobs")
	assert.True(t, second.TimedOut)
	assert.Empty(t, second.Messages)

	// Another client still sees it.
	_, other := h.poll(t, "c2", "jobs")
	assert.Len(t, other.Messages, 1)
}

func TestServer_PollDisconnectCancels(t *testing.T) {
	h := newHarnessWith(t, broker.Options{
		BufferTimeout:  10 * time.Millisecond,
		RequestTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.pollURL("c1", "jobs"), nil)
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() {
		resp, err := http.DefaultClient.Do(req)
		if err == nil {
			_ = resp.Body.Close()
		}
		errCh <- err
	}()

	require.Eventually(t, func() bool {
		return h.broker.Stats().Pending == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	require.Error(t, <-errCh)

	require.Eventually(t, func() bool {
		s := h.broker.Stats()
		return s.Cancelled == 1 && s.Pending == 0
	}, time.Second, 5*time.Millisecond)

	// A message published after the disconnect stays available.
	h.publish(t, "jobs", "", "kept")
	_, body := h.poll(t, "c1", "jobs")
	assert.Len(t, body.Messages, 1)
}

func TestServer_BadRequests(t *testing.T) {
	h := newHarness(t)

	tests := []struct {
		name     string
		url      string
		wantCode int
	}{
		{"missing client", h.pollURL("", "jobs"), http.StatusBadRequest},
		{"missing channel", h.pollURL("c1"), http.StatusBadRequest},
		{"glob channel", h.pollURL("c1", "jobs/*"), http.StatusBadRequest},
		{"client with slash", h.pollURL("a/b", "jobs"), http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Get(tt.url)
			require.NoError(t, err)
			defer resp.Body.Close() //nolint:errcheck

			assert.Equal(t, tt.wantCode, resp.StatusCode)

			var body ErrorResponse
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.NotEmpty(t, body.Error)
		})
	}
}

func TestServer_MethodNotAllowed(t *testing.T) {
	h := newHarness(t)

	resp, err := http.Get(h.http.URL + "/publish/jobs")
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck

	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestServer_AllowedChannels(t *testing.T) {
	h := newHarness(t, func(c *config.ServerConfig) {
		c.AllowedChannels = []string{"jobs/**"}
	})

	resp := h.publish(t, "jobs/build/linux", "", "ok")
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	resp = h.publish(t, "secrets", "", "nope")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	status, _ := h.poll(t, "c1", "jobs/build/linux", "secrets")
	assert.Equal(t, http.StatusForbidden, status)
}

func TestServer_PayloadTooLarge(t *testing.T) {
	h := newHarness(t, func(c *config.ServerConfig) {
		c.MaxPayloadBytes = 8
	})

	resp := h.publish(t, "jobs", "", "0123456789")
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
	assert.Equal(t, uint64(0), h.broker.Stats().Published)

	resp = h.publish(t, "jobs", "", "01234567")
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
}

func TestServer_PublishAfterClose(t *testing.T) {
	h := newHarness(t)
	h.broker.Close()

	resp := h.publish(t, "jobs", "", "late")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, uint64(0), h.broker.Stats().Published)
}

func TestServer_TypeQueryOverridesContentType(t *testing.T) {
	h := newHarness(t)

	resp, err := http.Post(h.http.URL+"/publish/jobs?type=build.started", "application/json; charset=utf-8", strings.NewReader(`{}`))
	require.NoError(t, err)
	_ = resp.Body.Close()

	_, body := h.poll(t, "c1", "jobs")
	require.Len(t, body.Messages, 1)
	assert.Equal(t, "build.started", body.Messages[0].Type)
}

func TestServer_ChannelsAndStats(t *testing.T) {
	h := newHarness(t)
	h.publish(t, "a", "", "1")
	h.publish(t, "b", "", "2")
	h.publish(t, "b", "", "3")

	resp, err := http.Get(h.http.URL + "/channels")
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck

	var channels []struct {
		Name     string `json:"name"`
		Messages int    `json:"messages"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&channels))
	require.Len(t, channels, 2)
	assert.Equal(t, "a", channels[0].Name)
	assert.Equal(t, 2, channels[1].Messages)

	resp2, err := http.Get(h.http.URL + "/stats")
	require.NoError(t, err)
	defer resp2.Body.Close() //nolint:errcheck

	var stats broker.Stats
	require.NoError(t, json.NewDecoder(resp2.Body).Decode(&stats))
	assert.Equal(t, uint64(3), stats.Published)
	assert.Equal(t, 3, stats.Messages)
}

func TestServer_EmptyChannelsIsArray(t *testing.T) {
	h := newHarness(t)

	resp, err := http.Get(h.http.URL + "/channels")
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(data))
}

func TestServer_HealthAndMetrics(t *testing.T) {
	h := newHarness(t)
	h.publish(t, "jobs", "", "x")

	resp, err := http.Get(h.http.URL + "/healthz")
	require.NoError(t, err)
	data, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(data))

	resp, err = http.Get(h.http.URL + "/metrics")
	require.NoError(t, err)
	data, _ = io.ReadAll(resp.Body)
	_ = resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(data), "perch_published_total 1")
	assert.Contains(t, string(data), "perch_messages 1")
	assert.Contains(t, string(data), "perch_drained_total 0")
	assert.Contains(t, string(data), "go_goroutines")
}

func TestServer_ServeShutdownAnswersHeldPolls(t *testing.T) {
	b, err := broker.New(broker.Options{RequestTimeout: time.Minute})
	require.NoError(t, err)

	s, err := New(b, config.DefaultConfig().Server, zerolog.Nop())
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- s.Serve(ctx, ln, 5*time.Second) }()

	polled := make(chan int, 1)
	go func() {
		resp, err := http.Get("http://" + ln.Addr().String() + "/poll?client=c1&channel=jobs")
		if err != nil {
			polled <- 0
			return
		}
		_ = resp.Body.Close()
		polled <- resp.StatusCode
	}()

	require.Eventually(t, func() bool {
		return b.Stats().Pending == 1
	}, time.Second, 5*time.Millisecond)

	cancel()

	select {
	case status := <-polled:
		assert.Equal(t, http.StatusOK, status)
	case <-time.After(3 * time.Second):
		t.Fatal("held poll was not answered on shutdown")
	}
	require.NoError(t, <-served)
}
