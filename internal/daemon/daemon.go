// Package daemon assembles the serving process: transport, coordinator,
// store, watcher, and the background maintenance loop.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"wisp/internal/auth"
	"wisp/internal/cache"
	"wisp/internal/config"
	"wisp/internal/engines"
	"wisp/internal/pool"
	"wisp/internal/provider"
	"wisp/internal/registry"
	"wisp/internal/storage"
	"wisp/internal/store"
	"wisp/internal/symbols"
	"wisp/internal/transport"
	"wisp/internal/version"
	"wisp/internal/watcher"
)

// State is the daemon lifecycle phase.
type State int32

const (
	StateStarting State = iota
	StateServing
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateServing:
		return "serving"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Status is the payload behind daemon/status and `wisp status`.
type Status struct {
	State     string            `json:"state" yaml:"state"`
	PID       int               `json:"pid" yaml:"pid"`
	Version   string            `json:"version" yaml:"version"`
	StartedAt time.Time         `json:"startedAt" yaml:"startedAt"`
	UptimeSec int64             `json:"uptimeSec" yaml:"uptimeSec"`
	Workspace string            `json:"workspace" yaml:"workspace"`
	Store     StoreStatus       `json:"store" yaml:"store"`
	Pool      PoolStatus        `json:"pool" yaml:"pool"`
	Commands  []string          `json:"commands" yaml:"commands"`
	Counters  map[string]uint64 `json:"counters" yaml:"counters"`
}

// StoreStatus summarizes the workspace model.
type StoreStatus struct {
	Version   uint64 `json:"version" yaml:"version"`
	Documents int    `json:"documents" yaml:"documents"`
	Symbols   int    `json:"symbols" yaml:"symbols"`
}

// PoolStatus summarizes the dispatcher.
type PoolStatus struct {
	Running  int64  `json:"running" yaml:"running"`
	Accepted uint64 `json:"accepted" yaml:"accepted"`
	Rejected uint64 `json:"rejected" yaml:"rejected"`
}

// Daemon is the serving process.
type Daemon struct {
	cfg     *config.Config
	log     *slog.Logger
	coord   *Coordinator
	st      *store.Store
	reg     *registry.Registry
	pool    *pool.Pool
	metrics *Metrics
	db      *storage.DB
	watch   *watcher.Watcher
	pid     *PIDFile

	mu        sync.RWMutex
	state     State
	startedAt time.Time

	connMu  sync.Mutex
	ln      net.Listener
	conns   map[net.Conn]struct{}
	closing bool

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New builds a Daemon from configuration. Nothing is served yet.
func New(cfg *config.Config, log *slog.Logger) (*Daemon, error) {
	d := &Daemon{
		cfg:     cfg,
		log:     log,
		st:      store.New(symbols.NewExtractor(), log),
		reg:     registry.New(),
		metrics: &Metrics{},
		state:   StateStarting,
		conns:   make(map[net.Conn]struct{}),
		stopCh:  make(chan struct{}),
	}

	var emb provider.EmbeddingProvider = provider.NewLocal()
	if cfg.Provider.Backend == "openai" {
		emb = provider.NewOpenAI(cfg.Provider.APIKey, cfg.Provider.BaseURL, cfg.Provider.Model)
	}
	d.log.Debug("embedding provider selected", "name", emb.Name())

	d.reg.Register("completion", engines.NewCompletion())
	d.reg.Register("rename", engines.NewRename())
	d.reg.Register("callHierarchy", engines.NewCallHierarchy())
	d.reg.Register("workspace/symbols", engines.NewWorkspaceSymbols())
	d.reg.Register("workspace/documentSymbols", engines.NewDocumentSymbols())
	d.reg.Register("workspace/search", engines.NewSearch(emb))
	d.reg.Freeze()

	d.pool = pool.New(cfg.Pool.Workers, cfg.Pool.QueueDepth, log)

	responseCache := cache.New(cache.Options{
		Capacity: cfg.Cache.Capacity,
		TTL:      time.Duration(cfg.Cache.TTLSeconds) * time.Second,
	})

	var keys *auth.KeyStore
	if cfg.Cache.Persistent || cfg.Transport.AuthEnabled {
		db, err := storage.Open(cfg.WorkspaceRoot, log)
		if err != nil {
			return nil, err
		}
		d.db = db
		if err := d.metrics.Restore(db); err != nil {
			log.Warn("restoring metrics", "error", err)
		}
		if cfg.Transport.AuthEnabled {
			keys, err = auth.NewKeyStore(db.Conn(), log)
			if err != nil {
				return nil, err
			}
		}
	}

	d.coord = NewCoordinator(cfg, d.reg, d.st, responseCache, d.pool, d.metrics, keys, d.Status, log)
	if d.db != nil && cfg.Cache.Persistent {
		d.coord.SetPersistentTier(d.db.GetResponse, d.db.PutResponse)
	}

	return d, nil
}

// Run serves until the context ends via signal or Stop. It owns the PID
// file for its whole lifetime.
func (d *Daemon) Run() error {
	pidPath := filepath.Join(d.cfg.WorkspaceRoot, ".wisp", "wisp.pid")
	if err := os.MkdirAll(filepath.Dir(pidPath), 0o755); err != nil {
		return fmt.Errorf("creating state dir: %w", err)
	}
	d.pid = NewPIDFile(pidPath)
	if err := d.pid.Acquire(); err != nil {
		return err
	}
	defer d.pid.Release()

	d.startedAt = time.Now()

	if d.cfg.Scip.IndexPath != "" {
		v, err := d.st.SeedFromSCIP(context.Background(), d.cfg.Scip.IndexPath)
		if err != nil {
			d.log.Warn("scip seed failed", "path", d.cfg.Scip.IndexPath, "error", err)
		} else {
			d.log.Info("workspace seeded from scip index", "version", v)
		}
	}

	if d.cfg.Watcher.Enabled {
		w, err := watcher.New(d.cfg.WorkspaceRoot, d.cfg.Watcher.Ignore, d.onFileEvent, d.log)
		if err != nil {
			return err
		}
		if err := w.Start(); err != nil {
			return err
		}
		d.watch = w
	}

	if d.db != nil {
		d.wg.Add(1)
		go d.maintenanceLoop()
	}

	d.setState(StateServing)
	d.log.Info("daemon serving",
		"version", version.Version,
		"transport", d.cfg.Transport.Mode,
		"pid", os.Getpid())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	serveErr := make(chan error, 1)
	switch d.cfg.Transport.Mode {
	case "tcp":
		go func() { serveErr <- d.serveTCP() }()
	default:
		go func() { serveErr <- d.serveStdio() }()
	}

	select {
	case sig := <-sigCh:
		d.log.Info("signal received", "signal", sig.String())
	case err := <-serveErr:
		if err != nil {
			d.log.Error("transport failed", "error", err)
		}
	}

	return d.shutdown()
}

func (d *Daemon) serveStdio() error {
	return d.coord.ServeStream(transport.Stdio(), false, d.stopCh)
}

func (d *Daemon) serveTCP() error {
	ln, err := net.Listen("tcp", d.cfg.Transport.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", d.cfg.Transport.Addr, err)
	}
	defer ln.Close()

	d.connMu.Lock()
	d.ln = ln
	d.connMu.Unlock()

	// Closing the listener alone is not enough: connection read loops block
	// in the frame reader until their conn closes too.
	go func() {
		<-d.stopCh
		ln.Close()
		d.closeConns()
	}()

	d.log.Info("listening", "addr", ln.Addr().String())
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-d.stopCh:
				return nil
			default:
				return err
			}
		}
		if !d.trackConn(conn) {
			continue
		}
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			defer d.untrackConn(conn)
			stream := transport.WrapConn(conn)
			if err := d.coord.ServeStream(stream, d.cfg.Transport.AuthEnabled, d.stopCh); err != nil {
				d.log.Debug("connection closed", "error", err)
			}
		}()
	}
}

// trackConn registers an accepted connection so shutdown can close it. A
// connection that raced shutdown is refused.
func (d *Daemon) trackConn(conn net.Conn) bool {
	d.connMu.Lock()
	defer d.connMu.Unlock()
	if d.closing {
		conn.Close()
		return false
	}
	d.conns[conn] = struct{}{}
	return true
}

func (d *Daemon) untrackConn(conn net.Conn) {
	conn.Close()
	d.connMu.Lock()
	delete(d.conns, conn)
	d.connMu.Unlock()
}

// closeConns unblocks every connection's read loop so shutdown can join
// the serving goroutines.
func (d *Daemon) closeConns() {
	d.connMu.Lock()
	d.closing = true
	for conn := range d.conns {
		conn.Close()
	}
	d.connMu.Unlock()
}

// ListenAddr returns the TCP listener's address, or "" before listening.
func (d *Daemon) ListenAddr() string {
	d.connMu.Lock()
	defer d.connMu.Unlock()
	if d.ln == nil {
		return ""
	}
	return d.ln.Addr().String()
}

func (d *Daemon) onFileEvent(ev watcher.Event) {
	d.coord.OnFileEvent(ev.URI, ev.Path, ev.Op == watcher.OpRemove)
}

// maintenanceLoop periodically sweeps the persistent cache and flushes
// metrics.
func (d *Daemon) maintenanceLoop() {
	defer d.wg.Done()

	interval := time.Duration(d.cfg.Maintenance.IntervalSeconds) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := d.db.SweepExpired(d.st.Version()); err != nil {
				d.log.Warn("maintenance sweep failed", "error", err)
			}
			if err := d.metrics.Persist(d.db); err != nil {
				d.log.Warn("metrics flush failed", "error", err)
			}
		case <-d.stopCh:
			return
		}
	}
}

// shutdown drains in order: stop intake, finish pool work, flush debounce,
// close storage.
func (d *Daemon) shutdown() error {
	d.setState(StateDraining)
	d.log.Info("draining")
	d.stopOnce.Do(func() { close(d.stopCh) })

	if d.watch != nil {
		if err := d.watch.Stop(); err != nil {
			d.log.Warn("watcher stop", "error", err)
		}
	}

	if err := d.pool.Stop(30 * time.Second); err != nil {
		d.log.Warn("pool drain", "error", err)
	}

	d.coord.Drain()
	d.wg.Wait()

	if d.db != nil {
		if err := d.metrics.Persist(d.db); err != nil {
			d.log.Warn("final metrics flush", "error", err)
		}
		if err := d.db.Close(); err != nil {
			d.log.Warn("closing database", "error", err)
		}
	}

	d.setState(StateStopped)
	d.log.Info("stopped")
	return nil
}

// Status assembles the live status payload.
func (d *Daemon) Status() Status {
	d.mu.RLock()
	state := d.state
	started := d.startedAt
	d.mu.RUnlock()

	snap := d.st.Snapshot()
	uptime := int64(0)
	if !started.IsZero() {
		uptime = int64(time.Since(started).Seconds())
	}

	return Status{
		State:     state.String(),
		PID:       os.Getpid(),
		Version:   version.Version,
		StartedAt: started,
		UptimeSec: uptime,
		Workspace: d.cfg.WorkspaceRoot,
		Store: StoreStatus{
			Version:   snap.Version(),
			Documents: snap.DocumentCount(),
			Symbols:   snap.SymbolCount(),
		},
		Pool: PoolStatus{
			Running:  d.pool.Running(),
			Accepted: d.pool.Accepted(),
			Rejected: d.pool.Rejected(),
		},
		Commands: d.reg.Commands(),
		Counters: d.metrics.Snapshot(),
	}
}

// State returns the lifecycle phase.
func (d *Daemon) State() State {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.state
}

func (d *Daemon) setState(s State) {
	d.mu.Lock()
	d.state = s
	d.mu.Unlock()
}

// Store exposes the workspace model for command-line seeding paths.
func (d *Daemon) Store() *store.Store {
	return d.st
}

// Coordinator exposes the request machinery for in-process serving.
func (d *Daemon) Coordinator() *Coordinator {
	return d.coord
}

// Shutdown drains the daemon without waiting for a signal.
func (d *Daemon) Shutdown() error {
	return d.shutdown()
}
