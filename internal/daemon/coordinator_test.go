package daemon

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"wisp/internal/cache"
	"wisp/internal/config"
	"wisp/internal/logging"
	"wisp/internal/pool"
	"wisp/internal/protocol"
	"wisp/internal/registry"
	"wisp/internal/store"
	"wisp/internal/symbols"
	"wisp/internal/transport"
)

// echoHandler counts executions so cache behavior is observable.
type echoHandler struct {
	calls atomic.Int64
}

func (h *echoHandler) Validate(params json.RawMessage) (any, error) {
	var p struct {
		Text string `json:"text"`
	}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}
	}
	return p.Text, nil
}

func (h *echoHandler) Execute(ctx context.Context, args any, snap *store.Snapshot) (any, error) {
	h.calls.Add(1)
	return map[string]any{"echo": args, "version": snap.Version()}, nil
}

// stallHandler blocks until cancelled, reporting starts and cancellations.
type stallHandler struct {
	started   chan struct{}
	cancelled chan error
}

func (h *stallHandler) Validate(params json.RawMessage) (any, error) { return nil, nil }

func (h *stallHandler) Execute(ctx context.Context, args any, snap *store.Snapshot) (any, error) {
	h.started <- struct{}{}
	<-ctx.Done()
	h.cancelled <- ctx.Err()
	return nil, ctx.Err()
}

type testConn struct {
	co     *Coordinator
	st     *store.Store
	echo   *echoHandler
	stall  *stallHandler
	fr     *transport.FrameReader
	fw     *transport.FrameWriter
	client transport.Stream
}

func newTestConn(t *testing.T, requireAuth bool) *testConn {
	t.Helper()

	cfg := config.DefaultConfig(t.TempDir())
	cfg.Debounce.WindowMs = 10
	cfg.Pool.TimeoutMs = 2000

	echo := &echoHandler{}
	stall := &stallHandler{
		started:   make(chan struct{}, 4),
		cancelled: make(chan error, 4),
	}
	reg := registry.New()
	reg.Register("echo", echo)
	reg.Register("stall", stall)
	reg.Freeze()

	st := store.New(symbols.NewExtractor(), logging.Discard())
	c := cache.New(cache.Options{Capacity: 32, TTL: time.Minute})
	p := pool.New(2, 8, logging.Discard())
	m := &Metrics{}

	co := NewCoordinator(cfg, reg, st, c, p, m, nil,
		func() Status { return Status{State: "serving", Version: "test"} },
		logging.Discard())

	server, client := transport.Pipe()
	stop := make(chan struct{})
	go co.ServeStream(server, requireAuth, stop)

	t.Cleanup(func() {
		client.Close()
		close(stop)
		p.Stop(time.Second)
		co.Drain()
	})

	return &testConn{
		co:     co,
		st:     st,
		echo:   echo,
		stall:  stall,
		fr:     transport.NewFrameReader(client),
		fw:     transport.NewFrameWriter(client),
		client: client,
	}
}

// attach opens a second connection served by the same coordinator.
func (tc *testConn) attach(t *testing.T) *testConn {
	t.Helper()

	server, client := transport.Pipe()
	stop := make(chan struct{})
	go tc.co.ServeStream(server, false, stop)

	t.Cleanup(func() {
		client.Close()
		close(stop)
	})

	return &testConn{
		co:     tc.co,
		st:     tc.st,
		echo:   tc.echo,
		stall:  tc.stall,
		fr:     transport.NewFrameReader(client),
		fw:     transport.NewFrameWriter(client),
		client: client,
	}
}

func (tc *testConn) request(t *testing.T, id any, method, params string) *protocol.Message {
	t.Helper()
	msg := &protocol.Message{Jsonrpc: "2.0", Id: id, Method: method}
	if params != "" {
		msg.Params = json.RawMessage(params)
	}
	if err := tc.fw.WriteMessage(msg); err != nil {
		t.Fatalf("write request: %v", err)
	}
	resp, err := tc.fr.ReadMessage()
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	return resp
}

func (tc *testConn) notify(t *testing.T, method, params string) {
	t.Helper()
	msg := protocol.NewNotification(method, json.RawMessage(params))
	if err := tc.fw.WriteMessage(msg); err != nil {
		t.Fatalf("write notification: %v", err)
	}
}

func TestRequestResponse(t *testing.T) {
	tc := newTestConn(t, false)

	resp := tc.request(t, 1, "echo", `{"text":"hi"}`)
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
	result, ok := resp.Result.(map[string]any)
	if !ok {
		t.Fatalf("result type %T", resp.Result)
	}
	if result["echo"] != "hi" {
		t.Errorf("echo = %v, want hi", result["echo"])
	}
	if resp.Id != float64(1) {
		t.Errorf("id = %v, want 1", resp.Id)
	}
}

func TestRepeatedRequestServedFromCache(t *testing.T) {
	tc := newTestConn(t, false)

	tc.request(t, 1, "echo", `{"text":"same"}`)
	tc.request(t, 2, "echo", `{"text":"same"}`)

	if got := tc.echo.calls.Load(); got != 1 {
		t.Errorf("handler ran %d times, want 1", got)
	}
}

func TestMutationForcesRecompute(t *testing.T) {
	tc := newTestConn(t, false)

	tc.request(t, 1, "echo", `{"text":"x"}`)

	before := tc.st.Version()
	tc.notify(t, "textDocument/didChange", `{"uri":"file:///a.txt","text":"alpha beta"}`)
	waitForVersion(t, tc.st, before+1)

	resp := tc.request(t, 2, "echo", `{"text":"x"}`)
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
	if got := tc.echo.calls.Load(); got != 2 {
		t.Errorf("handler ran %d times after mutation, want 2", got)
	}
}

func TestHeartbeatRequestGetsReflex(t *testing.T) {
	tc := newTestConn(t, false)

	resp := tc.request(t, 7, "$/heartbeat", "")
	result, ok := resp.Result.(map[string]any)
	if !ok || result["status"] != "ok" {
		t.Errorf("heartbeat result = %v", resp.Result)
	}
}

func TestNoiseNotificationProducesNoFrame(t *testing.T) {
	tc := newTestConn(t, false)

	tc.notify(t, "$/heartbeat", "")
	tc.notify(t, "telemetry/event", `{"kind":"ping"}`)

	// The read loop is serial, so a successful follow-up request proves
	// the noise produced no frames of its own.
	resp := tc.request(t, 1, "echo", `{"text":"after"}`)
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
	if got := tc.co.metrics.NoiseDropped.Load(); got != 2 {
		t.Errorf("noiseDropped = %d, want 2", got)
	}
}

func TestUnknownCommand(t *testing.T) {
	tc := newTestConn(t, false)

	resp := tc.request(t, 1, "no/such/command", `{}`)
	if resp.Error == nil || resp.Error.Code != protocol.CodeMethodNotFound {
		t.Errorf("error = %+v, want code %d", resp.Error, protocol.CodeMethodNotFound)
	}
}

func TestInvalidBodyKeepsStreamAligned(t *testing.T) {
	tc := newTestConn(t, false)

	if err := tc.fw.Write([]byte(`{"jsonrpc":`)); err != nil {
		t.Fatalf("write raw frame: %v", err)
	}
	resp, err := tc.fr.ReadMessage()
	if err != nil {
		t.Fatalf("read error response: %v", err)
	}
	if resp.Error == nil || resp.Error.Code != protocol.CodeParseError {
		t.Errorf("error = %+v, want code %d", resp.Error, protocol.CodeParseError)
	}

	resp = tc.request(t, 2, "echo", `{"text":"still here"}`)
	if resp.Error != nil {
		t.Errorf("request after bad body failed: %+v", resp.Error)
	}
}

func TestAuthGate(t *testing.T) {
	tc := newTestConn(t, true)

	resp := tc.request(t, 1, "echo", `{"text":"nope"}`)
	if resp.Error == nil || resp.Error.Code != protocol.CodeUnauthorized {
		t.Fatalf("error = %+v, want code %d", resp.Error, protocol.CodeUnauthorized)
	}

	// No key store configured: authenticate accepts any session.
	resp = tc.request(t, 2, "session/authenticate", `{}`)
	if resp.Error != nil {
		t.Fatalf("authenticate failed: %+v", resp.Error)
	}

	resp = tc.request(t, 3, "echo", `{"text":"now"}`)
	if resp.Error != nil {
		t.Errorf("request after auth failed: %+v", resp.Error)
	}
}

func TestStatusRequest(t *testing.T) {
	tc := newTestConn(t, false)

	resp := tc.request(t, 1, "daemon/status", "")
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
	result, ok := resp.Result.(map[string]any)
	if !ok {
		t.Fatalf("result type %T", resp.Result)
	}
	if result["state"] != "serving" {
		t.Errorf("state = %v, want serving", result["state"])
	}
}

func TestCancelRequest(t *testing.T) {
	tc := newTestConn(t, false)

	msg := &protocol.Message{Jsonrpc: "2.0", Id: 9, Method: "stall", Params: json.RawMessage(`{}`)}
	if err := tc.fw.WriteMessage(msg); err != nil {
		t.Fatalf("write request: %v", err)
	}
	tc.notify(t, "$/cancelRequest", `{"id":9}`)

	resp, err := tc.fr.ReadMessage()
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	if resp.Error == nil || resp.Error.Code != protocol.CodeCancelled {
		t.Errorf("error = %+v, want code %d", resp.Error, protocol.CodeCancelled)
	}
}

func TestCancelScopedToConnection(t *testing.T) {
	a := newTestConn(t, false)
	b := a.attach(t)

	msg := &protocol.Message{Jsonrpc: "2.0", Id: 9, Method: "stall", Params: json.RawMessage(`{}`)}
	if err := a.fw.WriteMessage(msg); err != nil {
		t.Fatalf("write request: %v", err)
	}
	select {
	case <-a.stall.started:
	case <-time.After(2 * time.Second):
		t.Fatal("stalled request never started")
	}

	// The other connection cancels the same numeric id. That id names one
	// of its own (nonexistent) requests, so nothing may be cancelled.
	b.notify(t, "$/cancelRequest", `{"id":9}`)
	resp := b.request(t, 1, "echo", `{"text":"sync"}`)
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}

	select {
	case err := <-a.stall.cancelled:
		t.Fatalf("another connection's cancel reached this request: %v", err)
	case <-time.After(100 * time.Millisecond):
	}

	// The owning connection's cancel still works.
	a.notify(t, "$/cancelRequest", `{"id":9}`)
	resp, err := a.fr.ReadMessage()
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	if resp.Error == nil || resp.Error.Code != protocol.CodeCancelled {
		t.Errorf("error = %+v, want code %d", resp.Error, protocol.CodeCancelled)
	}
}

func TestReindexValidation(t *testing.T) {
	tc := newTestConn(t, false)

	resp := tc.request(t, 1, "workspace/reindex", `{}`)
	if resp.Error == nil || resp.Error.Code != protocol.CodeInvalidParams {
		t.Errorf("error = %+v, want code %d", resp.Error, protocol.CodeInvalidParams)
	}

	resp = tc.request(t, 2, "workspace/reindex", `{"indexPath":"/no/such/index.scip"}`)
	if resp.Error == nil {
		t.Error("missing index accepted")
	}
	if tc.st.Version() != 0 {
		t.Errorf("version moved to %d on failed reindex", tc.st.Version())
	}
}

func waitForVersion(t *testing.T, st *store.Store, want uint64) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if st.Version() >= want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("store never reached version %d (at %d)", want, st.Version())
}
