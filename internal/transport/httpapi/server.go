// Package httpapi exposes a broker over HTTP. Subscribers long-poll
// GET /poll and the connection is held until the broker resolves the
// request; producers POST to /publish/{channel}.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/hay-kot/perch/internal/broker"
	"github.com/hay-kot/perch/internal/core/config"
	"github.com/hay-kot/perch/internal/core/messaging"
	"github.com/hay-kot/perch/internal/core/validate"
)

// Broker is the subset of *broker.Broker the server needs.
type Broker interface {
	Publish(channel, typ string, payload []byte) (messaging.Message, error)
	Wait(ctx context.Context, clientID string, channels []string) (messaging.Response, error)
	Channels() []messaging.ChannelInfo
	Stats() broker.Stats
	Close()
}

// Server serves the HTTP API for a broker.
type Server struct {
	broker     Broker
	acl        *ACL
	maxPayload int64
	log        zerolog.Logger
	handler    http.Handler
}

// New creates a server for b configured by cfg.
func New(b Broker, cfg config.ServerConfig, log zerolog.Logger) (*Server, error) {
	acl, err := NewACL(cfg.AllowedChannels)
	if err != nil {
		return nil, err
	}

	s := &Server{
		broker:     b,
		acl:        acl,
		maxPayload: cfg.MaxPayloadBytes,
		log:        log,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /poll", s.handlePoll)
	mux.HandleFunc("POST /publish/{channel...}", s.handlePublish)
	mux.HandleFunc("GET /channels", s.handleChannels)
	mux.HandleFunc("GET /stats", s.handleStats)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("GET /metrics", promhttp.HandlerFor(newRegistry(b), promhttp.HandlerOpts{}))

	s.handler = s.middleware(mux)
	return s, nil
}

// Handler returns the root handler including request logging.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) middleware(next http.Handler) http.Handler {
	h := hlog.URLHandler("url")(next)
	h = hlog.MethodHandler("method")(h)
	h = hlog.RemoteAddrHandler("remote")(h)
	h = hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		ev := hlog.FromRequest(r).Debug()
		if status >= http.StatusInternalServerError {
			ev = hlog.FromRequest(r).Warn()
		}
		ev.Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("request")
	})(h)
	return hlog.NewHandler(s.log)(h)
}

// Run listens on addr and serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln, shutdownTimeout)
}

// Serve accepts connections on ln until ctx is cancelled, then shuts down
// gracefully. Shutdown closes the broker first so that held polls answer
// with what they have instead of blocking shutdown.
func (s *Server) Serve(ctx context.Context, ln net.Listener, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv.RegisterOnShutdown(s.broker.Close)

	s.log.Info().Str("addr", ln.Addr().String()).Msg("listening")

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.log.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) handlePoll(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	clientID := q.Get("client")
	if err := validate.ClientID(clientID); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	channels := q["channel"]
	if len(channels) == 0 {
		writeError(w, http.StatusBadRequest, broker.ErrNoChannels)
		return
	}
	for _, ch := range channels {
		if status, err := s.checkChannel(ch); err != nil {
			writeError(w, status, err)
			return
		}
	}

	resp, err := s.broker.Wait(r.Context(), clientID, channels)
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		// The subscriber went away; nobody is left to answer.
		hlog.FromRequest(r).Debug().Str("client", clientID).Msg("poll abandoned")
		return
	case errors.Is(err, broker.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, err)
		return
	case err != nil:
		writeError(w, http.StatusBadRequest, err)
		return
	}

	writeJSON(w, http.StatusOK, NewPollResponse(resp))
}

func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	channel := r.PathValue("channel")
	if status, err := s.checkChannel(channel); err != nil {
		writeError(w, status, err)
		return
	}

	defer r.Body.Close() //nolint:errcheck
	body := r.Body
	if s.maxPayload > 0 {
		body = http.MaxBytesReader(w, r.Body, s.maxPayload)
	}

	payload, err := io.ReadAll(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Errorf("payload exceeds %d bytes", tooLarge.Limit))
			return
		}
		writeError(w, http.StatusBadRequest, fmt.Errorf("read payload: %w", err))
		return
	}

	msg, err := s.broker.Publish(channel, payloadType(r), payload)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}

	writeJSON(w, http.StatusAccepted, PublishResponse{
		ID:       msg.ID,
		Channel:  msg.Channel,
		Sequence: msg.Sequence,
	})
}

func (s *Server) handleChannels(w http.ResponseWriter, _ *http.Request) {
	channels := s.broker.Channels()
	if channels == nil {
		channels = []messaging.ChannelInfo{}
	}
	writeJSON(w, http.StatusOK, channels)
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.broker.Stats())
}

// checkChannel validates a channel name and checks it against the ACL.
func (s *Server) checkChannel(channel string) (int, error) {
	if err := validate.ChannelName(channel); err != nil {
		return http.StatusBadRequest, err
	}
	if !s.acl.Allowed(channel) {
		return http.StatusForbidden, fmt.Errorf("channel %q is not allowed", channel)
	}
	return http.StatusOK, nil
}

// payloadType takes the message type from the "type" query parameter,
// falling back to the request's media type.
func payloadType(r *http.Request) string {
	if t := r.URL.Query().Get("type"); t != "" {
		return t
	}
	ct := r.Header.Get("Content-Type")
	if ct == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return ct
	}
	return mediaType
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = encodeJSON(w, payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, ErrorResponse{Error: err.Error()})
}
