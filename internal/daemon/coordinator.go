package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"wisp/internal/auth"
	"wisp/internal/cache"
	"wisp/internal/config"
	"wisp/internal/debounce"
	"wisp/internal/fingerprint"
	"wisp/internal/pool"
	"wisp/internal/protocol"
	"wisp/internal/registry"
	"wisp/internal/store"
	"wisp/internal/transport"
	"wisp/internal/wisperr"
)

// Coordinator drives one connection's request lifecycle: filter, validate,
// consult the cache, dispatch to the pool, respond. It also owns the
// mutation path feeding the store through the debounce controller.
type Coordinator struct {
	cfg      *config.Config
	reg      *registry.Registry
	st       *store.Store
	cache    *cache.Cache
	pool     *pool.Pool
	filter   *transport.Filter
	debounce *debounce.Controller
	metrics  *Metrics
	log      *slog.Logger

	persist *persistentTier
	keys    *auth.KeyStore
	status  func() Status
}

// persistentTier is the optional sqlite fallback behind the memory cache.
type persistentTier struct {
	get func(key string, version uint64) ([]byte, bool, error)
	put func(key string, version uint64, value []byte, ttl time.Duration) error
}

// NewCoordinator wires the request machinery together. keys may be nil when
// socket auth is disabled; status supplies the daemon/status payload.
func NewCoordinator(cfg *config.Config, reg *registry.Registry, st *store.Store,
	c *cache.Cache, p *pool.Pool, m *Metrics, keys *auth.KeyStore,
	status func() Status, log *slog.Logger) *Coordinator {

	co := &Coordinator{
		cfg:     cfg,
		reg:     reg,
		st:      st,
		cache:   c,
		pool:    p,
		filter:  transport.NewFilter(),
		metrics: m,
		log:     log,
		keys:    keys,
		status:  status,
	}
	co.debounce = debounce.New(
		time.Duration(cfg.Debounce.WindowMs)*time.Millisecond,
		co.applyMutation,
	)
	return co
}

// SetPersistentTier attaches the sqlite fallback.
func (co *Coordinator) SetPersistentTier(
	get func(key string, version uint64) ([]byte, bool, error),
	put func(key string, version uint64, value []byte, ttl time.Duration) error,
) {
	co.persist = &persistentTier{get: get, put: put}
}

// session is one connection's state: its writer, its auth standing, and a
// token that keeps request ids from colliding across connections, so a
// $/cancelRequest can only reach the connection's own requests.
type session struct {
	fw     *transport.FrameWriter
	authed bool
	token  string
}

// requestKey scopes a wire id to this connection for the pool's
// cancellation map. JSON numbers decode as float64, so 3 and 3.0 collapse
// to the same key.
func (s *session) requestKey(id any) string {
	return fmt.Sprintf("%s/%v", s.token, id)
}

// ServeStream runs the read loop until EOF, a fatal protocol error, or
// stop closes. requireAuth gates every command behind session/authenticate.
func (co *Coordinator) ServeStream(stream transport.Stream, requireAuth bool, stop <-chan struct{}) error {
	fr := transport.NewFrameReader(stream)
	fw := transport.NewFrameWriter(stream)
	sess := &session{fw: fw, authed: !requireAuth, token: uuid.NewString()}

	for {
		select {
		case <-stop:
			return nil
		default:
		}

		body, err := fr.Read()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			// Framing failure: the stream position is lost, answer once
			// and drop the connection.
			co.metrics.Errors.Add(1)
			fw.WriteMessage(protocol.FromError(nil, err))
			return err
		}

		var msg protocol.Message
		if err := json.Unmarshal(body, &msg); err != nil {
			// The frame boundary held, so the stream is still aligned;
			// report the bad body and keep reading.
			co.metrics.Errors.Add(1)
			fw.WriteMessage(protocol.NewError(nil, protocol.CodeParseError, "invalid JSON body: "+err.Error()))
			continue
		}

		co.handleMessage(&msg, sess)
	}
}

func (co *Coordinator) handleMessage(msg *protocol.Message, sess *session) {
	fw := sess.fw

	if co.filter.IsNoise(msg) {
		co.metrics.NoiseDropped.Add(1)
		return
	}

	// Reflex: heartbeat requests are answered before any gate or queue.
	if msg.IsRequest() && (msg.Method == "$/heartbeat" || msg.Method == "heartbeat") {
		co.respond(fw, protocol.NewResult(msg.Id, map[string]string{"status": "ok"}))
		return
	}

	if msg.IsNotification() {
		co.handleNotification(msg, sess)
		return
	}
	if !msg.IsRequest() {
		co.metrics.Errors.Add(1)
		co.respond(fw, protocol.NewError(nil, protocol.CodeInvalidRequest, "message is neither request nor notification"))
		return
	}

	co.metrics.Requests.Add(1)

	if msg.Method == "session/authenticate" {
		co.authenticate(msg, sess)
		return
	}
	if !sess.authed {
		co.metrics.Errors.Add(1)
		co.respond(fw, protocol.NewError(msg.Id, protocol.CodeUnauthorized, "authenticate first"))
		return
	}
	if msg.Method == "daemon/status" {
		co.respond(fw, protocol.NewResult(msg.Id, co.status()))
		return
	}
	if msg.Method == "workspace/reindex" {
		co.reindex(msg, fw)
		return
	}

	co.dispatch(msg, sess)
}

// dispatch runs the cacheable command path.
func (co *Coordinator) dispatch(msg *protocol.Message, sess *session) {
	fw := sess.fw
	trace := uuid.NewString()
	log := co.log.With("trace", trace, "method", msg.Method)

	handler, err := co.reg.Resolve(msg.Method)
	if err != nil {
		co.fail(fw, msg.Id, log, err)
		return
	}

	args, err := handler.Validate(msg.Params)
	if err != nil {
		co.fail(fw, msg.Id, log, err)
		return
	}

	digest, err := fingerprint.Of(msg.Params)
	if err != nil {
		co.fail(fw, msg.Id, log, wisperr.Wrap(wisperr.ValidationError, "fingerprinting params", err))
		return
	}

	// The snapshot is captured here; a mutation landing after this point
	// serves the next request, not this one.
	snap := co.st.Snapshot()
	version := snap.Version()

	if value, ok := co.cache.Get(msg.Method, digest, version); ok {
		co.metrics.CacheHits.Add(1)
		co.respond(fw, protocol.NewResult(msg.Id, json.RawMessage(value)))
		return
	}
	if co.persist != nil {
		key := fingerprint.Key(msg.Method, digest)
		if value, ok, err := co.persist.get(key, version); err == nil && ok {
			co.metrics.CacheHits.Add(1)
			co.cache.Put(msg.Method, digest, version, value)
			co.respond(fw, protocol.NewResult(msg.Id, json.RawMessage(value)))
			return
		}
	}
	co.metrics.CacheMisses.Add(1)

	task := &pool.Task{
		ID:      sess.requestKey(msg.Id),
		Timeout: time.Duration(co.cfg.Pool.TimeoutMs) * time.Millisecond,
		Run: func(ctx context.Context) (any, error) {
			value, _, err := co.cache.Do(msg.Method, digest, version, func() ([]byte, error) {
				result, err := handler.Execute(ctx, args, snap)
				if err != nil {
					return nil, err
				}
				encoded, err := json.Marshal(result)
				if err != nil {
					return nil, wisperr.Wrap(wisperr.ExecutionError, "encoding result", err)
				}
				if co.persist != nil {
					ttl := time.Duration(co.cfg.Cache.TTLSeconds) * time.Second
					if err := co.persist.put(fingerprint.Key(msg.Method, digest), version, encoded, ttl); err != nil {
						log.Warn("persistent cache write failed", "error", err)
					}
				}
				return encoded, nil
			})
			if err != nil {
				return nil, err
			}
			return json.RawMessage(value), nil
		},
		Done: func(result any, err error) {
			if err != nil {
				co.fail(fw, msg.Id, log, err)
				return
			}
			co.respond(fw, protocol.NewResult(msg.Id, result))
		},
	}

	if err := co.pool.Submit(task); err != nil {
		co.fail(fw, msg.Id, log, err)
	}
}

func (co *Coordinator) handleNotification(msg *protocol.Message, sess *session) {
	switch msg.Method {
	case "$/cancelRequest":
		var p struct {
			Id any `json:"id"`
		}
		if err := json.Unmarshal(msg.Params, &p); err != nil || p.Id == nil {
			co.log.Warn("malformed cancel notification")
			return
		}
		co.metrics.Cancellations.Add(1)
		co.pool.Cancel(sess.requestKey(p.Id))

	case "textDocument/didChange":
		var p struct {
			URI  string `json:"uri"`
			Text string `json:"text"`
		}
		if err := json.Unmarshal(msg.Params, &p); err != nil || p.URI == "" {
			co.log.Warn("malformed didChange notification")
			return
		}
		co.debounce.Trigger(p.URI, store.UpsertDocument{URI: p.URI, Text: p.Text})

	case "textDocument/didClose":
		// Closing does not untrack; the document stays in the model.

	case "workspace/didChangeWatchedFiles":
		var p struct {
			Changes []struct {
				URI     string `json:"uri"`
				Deleted bool   `json:"deleted"`
				Text    string `json:"text"`
			} `json:"changes"`
		}
		if err := json.Unmarshal(msg.Params, &p); err != nil {
			co.log.Warn("malformed didChangeWatchedFiles notification")
			return
		}
		for _, ch := range p.Changes {
			if ch.URI == "" {
				continue
			}
			if ch.Deleted {
				co.debounce.Trigger(ch.URI, store.DeleteDocument{URI: ch.URI})
			} else {
				co.debounce.Trigger(ch.URI, store.UpsertDocument{URI: ch.URI, Text: ch.Text})
			}
		}

	default:
		// Unknown notifications are logged, never answered.
		co.log.Debug("ignoring notification", "method", msg.Method)
	}
}

// OnFileEvent is the watcher bridge: disk changes enter the same debounce
// topics as editor notifications.
func (co *Coordinator) OnFileEvent(uri, path string, removed bool) {
	if removed {
		co.debounce.Trigger(uri, store.DeleteDocument{URI: uri})
		return
	}
	co.debounce.Trigger(uri, fileRead{URI: uri, Path: path})
}

// fileRead defers reading the file until the debounce window fires, so a
// burst of writes costs one read.
type fileRead struct {
	URI  string
	Path string
}

// applyMutation is the debounce callback. Versions advance here and only
// here once the daemon is serving.
func (co *Coordinator) applyMutation(topic string, payload any) {
	ctx := context.Background()

	var m store.Mutation
	switch v := payload.(type) {
	case fileRead:
		data, err := os.ReadFile(v.Path)
		if err != nil {
			// The file may be gone again by the time the window fires.
			m = store.DeleteDocument{URI: v.URI}
		} else {
			m = store.UpsertDocument{URI: v.URI, Text: string(data)}
		}
	case store.Mutation:
		m = v
	default:
		co.log.Error("unknown debounce payload", "topic", topic)
		return
	}

	version, err := co.st.Apply(ctx, m)
	if err != nil {
		if wisperr.Is(err, wisperr.MutationRejected) {
			co.log.Debug("mutation rejected", "topic", topic, "error", err)
		} else {
			co.log.Warn("mutation failed", "topic", topic, "error", err)
		}
		return
	}
	co.metrics.Mutations.Add(1)
	co.log.Debug("workspace updated", "topic", topic, "version", version)
}

// reindex replaces the whole workspace model from a SCIP index on disk. It
// goes through the store's writer path like any mutation, so readers keep
// their snapshots.
func (co *Coordinator) reindex(msg *protocol.Message, fw *transport.FrameWriter) {
	var p struct {
		IndexPath string `json:"indexPath"`
	}
	if err := json.Unmarshal(msg.Params, &p); err != nil || p.IndexPath == "" {
		co.metrics.Errors.Add(1)
		co.respond(fw, protocol.NewError(msg.Id, protocol.CodeInvalidParams, "reindex requires indexPath"))
		return
	}

	version, err := co.st.SeedFromSCIP(context.Background(), p.IndexPath)
	if err != nil {
		co.fail(fw, msg.Id, co.log.With("method", msg.Method), err)
		return
	}
	co.metrics.Mutations.Add(1)
	co.respond(fw, protocol.NewResult(msg.Id, map[string]uint64{"version": version}))
}

func (co *Coordinator) authenticate(msg *protocol.Message, sess *session) {
	fw := sess.fw

	if co.keys == nil {
		sess.authed = true
		co.respond(fw, protocol.NewResult(msg.Id, map[string]bool{"authenticated": true}))
		return
	}

	var p struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(msg.Params, &p); err != nil || p.Token == "" {
		co.metrics.Errors.Add(1)
		co.respond(fw, protocol.NewError(msg.Id, protocol.CodeInvalidParams, "authenticate requires a token"))
		return
	}

	key, ok := co.keys.Verify(p.Token)
	if !ok {
		co.metrics.Errors.Add(1)
		co.respond(fw, protocol.NewError(msg.Id, protocol.CodeUnauthorized, "invalid token"))
		return
	}

	sess.authed = true
	co.log.Info("session authenticated", "key", key.ID, "name", key.Name)
	co.respond(fw, protocol.NewResult(msg.Id, map[string]bool{"authenticated": true}))
}

// Drain flushes pending debounce work so no buffered mutation is lost on
// shutdown.
func (co *Coordinator) Drain() {
	co.debounce.FlushAll()
	co.debounce.Stop()
}

func (co *Coordinator) respond(fw *transport.FrameWriter, msg *protocol.Message) {
	if err := fw.WriteMessage(msg); err != nil {
		co.log.Warn("writing response", "error", err)
		return
	}
	co.metrics.Responses.Add(1)
}

func (co *Coordinator) fail(fw *transport.FrameWriter, id any, log *slog.Logger, err error) {
	co.metrics.Errors.Add(1)
	log.Debug("request failed", "error", err)
	co.respond(fw, protocol.FromError(id, err))
}
