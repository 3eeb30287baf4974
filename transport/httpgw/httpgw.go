// Package httpgw implements the HTTP gateway binding: publish and
// channel requests carried over plain HTTP POST, streaming replies
// carried over Server-Sent Events. Per SPEC_FULL.md §4.2, the
// gateway's Server reuses the in-process binding's dispatch behind
// net/http rather than reimplementing delivery; Client is the
// binding a remote process uses to reach it, including the
// reconnect-with-backoff loop SSE subscriptions need.
//
// Grounded on pkg/observability/server.go's http.Server wiring for
// the server half, and on internal/runtime/distributed.go's
// waitForReady polling loop for the shape of Client's reconnect loop
// (generalized from a fixed-interval poll to an exponential backoff
// capped at a configured ceiling).
package httpgw

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/aixgo-dev/agentrt/channel"
	"github.com/aixgo-dev/agentrt/envelope"
	"github.com/aixgo-dev/agentrt/rterr"
	"github.com/aixgo-dev/agentrt/transport"
)

const headerPrefix = "X-Env-"

func writeEnvelope(w http.ResponseWriter, env envelope.Envelope) {
	for k, v := range env.Header {
		w.Header().Set(headerPrefix+k, v)
	}
	_, _ = w.Write(env.Payload)
}

func envelopeFromHTTPHeader(h http.Header) envelope.Header {
	out := envelope.Header{}
	for k, v := range h {
		if strings.HasPrefix(k, headerPrefix) && len(v) > 0 {
			out[strings.ToLower(strings.TrimPrefix(k, headerPrefix))] = v[0]
		}
	}
	return out
}

func writeSSEEvent(w io.Writer, env envelope.Envelope) error {
	header := make([]byte, 0, 64)
	for k, v := range env.Header {
		header = append(header, []byte(k+"="+v+";")...)
	}
	_, err := fmt.Fprintf(w, "data: %s\n\n", encodeSSEData(header, env.Payload))
	return err
}

// encodeSSEData packs a header block and payload into one data line;
// the wire format is "<decimal-header-len>:<header>:<payload>",
// all on one SSE "data:" line since payload may contain newlines.
func encodeSSEData(header, payload []byte) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d:", len(header))
	b.Write(header)
	b.WriteByte(':')
	b.Write(escapeNewlines(payload))
	return b.String()
}

func escapeNewlines(b []byte) []byte {
	return bytes.ReplaceAll(b, []byte("\n"), []byte("\\n"))
}

func unescapeNewlines(b []byte) []byte {
	return bytes.ReplaceAll(b, []byte("\\n"), []byte("\n"))
}

func decodeSSEData(line string) (envelope.Header, []byte, error) {
	sep := strings.IndexByte(line, ':')
	if sep < 0 {
		return nil, nil, fmt.Errorf("httpgw: malformed SSE data line")
	}
	var n int
	if _, err := fmt.Sscanf(line[:sep], "%d", &n); err != nil {
		return nil, nil, err
	}
	rest := line[sep+1:]
	if len(rest) < n+1 {
		return nil, nil, fmt.Errorf("httpgw: truncated SSE data line")
	}
	headerBlock := rest[:n]
	payload := rest[n+1:]

	h := envelope.Header{}
	for _, kv := range strings.Split(headerBlock, ";") {
		if kv == "" {
			continue
		}
		eq := strings.IndexByte(kv, '=')
		if eq < 0 {
			continue
		}
		h[kv[:eq]] = kv[eq+1:]
	}
	return h, unescapeNewlines([]byte(payload)), nil
}

// Server exposes a wrapped transport over HTTP: POST /v1/publish/
// and POST /v1/channel/ (Accept: text/event-stream for a streaming
// reply), each path-suffixed with the target's encoded address.
type Server struct {
	inner      transport.Transport
	httpServer *http.Server
}

// NewServer wraps inner (typically a local.Transport) behind an HTTP
// mux bound to addr.
func NewServer(addr string, inner transport.Transport) *Server {
	s := &Server{inner: inner}
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/publish/", s.handlePublish)
	mux.HandleFunc("/v1/channel/", s.handleChannel)
	mux.HandleFunc("/v1/subscribe/", s.handleSubscribe)
	s.httpServer = &http.Server{Addr: addr, Handler: mux}
	return s
}

func (s *Server) ListenAndServe() error {
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	dest := envelope.ParseAddress(strings.TrimPrefix(r.URL.Path, "/v1/publish/"))
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	env := envelope.Envelope{Header: envelopeFromHTTPHeader(r.Header), Payload: payload}
	if err := s.inner.Publish(r.Context(), dest, env, transport.PublishOptions{}); err != nil {
		http.Error(w, err.Error(), httpStatusFor(err))
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleChannel(w http.ResponseWriter, r *http.Request) {
	dest := envelope.ParseAddress(strings.TrimPrefix(r.URL.Path, "/v1/channel/"))
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	env := envelope.Envelope{Header: envelopeFromHTTPHeader(r.Header), Payload: payload}

	wantsStream := strings.Contains(r.Header.Get("Accept"), "text/event-stream")
	reader, err := s.inner.Channel(r.Context(), dest, env, transport.ChannelOptions{Stream: wantsStream})
	if err != nil {
		http.Error(w, err.Error(), httpStatusFor(err))
		return
	}

	if !wantsStream {
		got, ok, err := reader.Read(r.Context())
		if err != nil {
			http.Error(w, err.Error(), httpStatusFor(err))
			return
		}
		if !ok {
			http.Error(w, "reply channel closed", http.StatusGone)
			return
		}
		writeEnvelope(w, got)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	flusher, _ := w.(http.Flusher)
	for {
		got, ok, err := reader.Read(r.Context())
		if err != nil || !ok {
			return
		}
		if err := writeSSEEvent(w, got); err != nil {
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
		if got.IsTerminate() {
			return
		}
	}
}

// handleSubscribe registers a long-lived handler on the inner
// transport for the path-suffixed pattern and streams every envelope
// it receives back over SSE for as long as the client stays
// connected, unsubscribing on disconnect. This is distinct from
// handleChannel: a channel request sends one envelope and waits for
// its reply, while a subscription receives every future envelope
// some other caller publishes to this pattern, matching what
// transport.Transport.Subscribe promises every other binding.
func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	pattern := envelope.ParseAddress(strings.TrimPrefix(r.URL.Path, "/v1/subscribe/"))

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	events := make(chan envelope.Envelope, 64)
	sub, err := s.inner.Subscribe(r.Context(), pattern, func(_ context.Context, _ envelope.Address, env envelope.Envelope) {
		select {
		case events <- env:
		case <-r.Context().Done():
		}
	})
	if err != nil {
		http.Error(w, err.Error(), httpStatusFor(err))
		return
	}
	defer sub.Unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case env := <-events:
			if err := writeSSEEvent(w, env); err != nil {
				return
			}
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

func httpStatusFor(err error) int {
	switch rterr.Kind(err) {
	case "NoAgent":
		return http.StatusNotFound
	case "Timeout":
		return http.StatusGatewayTimeout
	case "BadEnvelope":
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Client is the Transport implementation a remote process uses to
// reach a Server over HTTP. Subscribe opens a long-lived SSE GET and
// reconnects with exponential backoff (capped at the reconnectCap
// given to NewClient) on disconnect, since nothing else keeps an HTTP connection alive
// across a gateway restart.
type Client struct {
	baseURL          string
	httpClient       *http.Client
	reconnectCap     time.Duration
	reconnectBaseline time.Duration

	mu   sync.Mutex
	subs map[string][]*clientSub
}

type clientSub struct {
	cancel context.CancelFunc
}

func (s *clientSub) Unsubscribe() { s.cancel() }

// NewClient builds a Client talking to a Server at baseURL (e.g.
// "http://gateway:8080"). reconnectCap bounds the SSE reconnect
// backoff; zero uses a 30s default.
func NewClient(baseURL string, reconnectCap time.Duration) *Client {
	if reconnectCap == 0 {
		reconnectCap = 30 * time.Second
	}
	return &Client{
		baseURL:           strings.TrimSuffix(baseURL, "/"),
		httpClient:        &http.Client{},
		reconnectCap:      reconnectCap,
		reconnectBaseline: 100 * time.Millisecond,
		subs:              make(map[string][]*clientSub),
	}
}

func (c *Client) Publish(ctx context.Context, dest envelope.Address, env envelope.Envelope, opts transport.PublishOptions) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/publish/"+dest.String(), bytes.NewReader(env.Payload))
	if err != nil {
		return err
	}
	for k, v := range env.Header {
		req.Header.Set(headerPrefix+k, v)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return rterr.Wrap(rterr.ErrTransportFailure, dest.String(), err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound && opts.Probe {
		return rterr.Wrap(rterr.ErrNoAgent, dest.String(), nil)
	}
	if resp.StatusCode >= 300 {
		return rterr.Wrap(rterr.ErrTransportFailure, dest.String(), fmt.Errorf("httpgw: status %d", resp.StatusCode))
	}
	return nil
}

// Subscribe opens a long-lived SSE GET against the gateway's
// subscribe endpoint for pattern and registers handler for every
// envelope the gateway's inner transport delivers to it, reconnecting
// with exponential backoff on disconnect. Like the in-process binding
// (and unlike the broker, which load-balances across subscribers to
// the same name), every connected Client subscribed to a name
// receives everything published to it.
func (c *Client) Subscribe(ctx context.Context, pattern envelope.Address, handler transport.Handler) (transport.Subscription, error) {
	subCtx, cancel := context.WithCancel(ctx)
	go c.subscribeLoop(subCtx, pattern, handler)
	return &clientSub{cancel: cancel}, nil
}

func (c *Client) subscribeLoop(ctx context.Context, pattern envelope.Address, handler transport.Handler) {
	backoff := c.reconnectBaseline
	for {
		if ctx.Err() != nil {
			return
		}
		err := c.streamOnce(ctx, pattern, handler)
		if ctx.Err() != nil {
			return
		}
		if err == nil {
			backoff = c.reconnectBaseline
			continue
		}
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return
		}
		backoff *= 2
		if backoff > c.reconnectCap {
			backoff = c.reconnectCap
		}
	}
}

func (c *Client) streamOnce(ctx context.Context, pattern envelope.Address, handler transport.Handler) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/subscribe/"+pattern.String(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("httpgw: subscribe status %d", resp.StatusCode)
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		h, payload, err := decodeSSEData(strings.TrimPrefix(line, "data: "))
		if err != nil {
			continue
		}
		handler(ctx, pattern, envelope.Envelope{Header: h, Payload: payload})
	}
	return scanner.Err()
}

func (c *Client) OpenReplyChannel(ctx context.Context) (envelope.Address, *channel.Channel, error) {
	return envelope.Address{}, nil, fmt.Errorf("httpgw: OpenReplyChannel is not meaningful for an HTTP client; use Channel")
}

func (c *Client) Channel(ctx context.Context, dest envelope.Address, env envelope.Envelope, opts transport.ChannelOptions) (*channel.Channel, error) {
	reqCtx := ctx
	var cancel context.CancelFunc
	if opts.Timeout > 0 && !opts.Stream {
		reqCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.baseURL+"/v1/channel/"+dest.String(), bytes.NewReader(env.Payload))
	if err != nil {
		return nil, err
	}
	for k, v := range env.Header {
		req.Header.Set(headerPrefix+k, v)
	}
	if opts.Stream {
		req.Header.Set("Accept", "text/event-stream")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if reqCtx.Err() != nil {
			return nil, rterr.Wrap(rterr.ErrTimeout, dest.String(), err)
		}
		return nil, rterr.Wrap(rterr.ErrTransportFailure, dest.String(), err)
	}

	if !opts.Stream {
		defer resp.Body.Close()
		if resp.StatusCode == http.StatusNotFound {
			return nil, rterr.Wrap(rterr.ErrNoAgent, dest.String(), nil)
		}
		if resp.StatusCode >= 300 {
			return nil, rterr.Wrap(rterr.ErrTransportFailure, dest.String(), fmt.Errorf("httpgw: status %d", resp.StatusCode))
		}
		payload, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		got := envelope.Envelope{Header: envelopeFromHTTPHeader(resp.Header), Payload: payload}
		ch := channel.New(1)
		_ = ch.Write(ctx, got)
		return ch, nil
	}

	ch := channel.NewUnbounded()
	go func() {
		defer ch.Close()
		defer resp.Body.Close()
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			h, payload, err := decodeSSEData(strings.TrimPrefix(line, "data: "))
			if err != nil {
				continue
			}
			got := envelope.Envelope{Header: h, Payload: payload}
			if err := ch.Write(context.Background(), got); err != nil {
				return
			}
			if got.IsTerminate() {
				return
			}
		}
	}()
	return ch, nil
}

func (c *Client) Close() error {
	return nil
}
