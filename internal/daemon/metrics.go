package daemon

import (
	"sync/atomic"

	"wisp/internal/storage"
)

// Metrics are the daemon's running counters. All fields are updated with
// atomics; Snapshot gives a consistent-enough view for status reporting.
type Metrics struct {
	Requests      atomic.Uint64
	Responses     atomic.Uint64
	Errors        atomic.Uint64
	NoiseDropped  atomic.Uint64
	CacheHits     atomic.Uint64
	CacheMisses   atomic.Uint64
	Mutations     atomic.Uint64
	Cancellations atomic.Uint64
}

// Snapshot returns the counters as a plain map for status output.
func (m *Metrics) Snapshot() map[string]uint64 {
	return map[string]uint64{
		"requests":      m.Requests.Load(),
		"responses":     m.Responses.Load(),
		"errors":        m.Errors.Load(),
		"noiseDropped":  m.NoiseDropped.Load(),
		"cacheHits":     m.CacheHits.Load(),
		"cacheMisses":   m.CacheMisses.Load(),
		"mutations":     m.Mutations.Load(),
		"cancellations": m.Cancellations.Load(),
	}
}

// Persist writes every counter to the metrics table.
func (m *Metrics) Persist(db *storage.DB) error {
	for name, value := range m.Snapshot() {
		if err := db.SaveCounter(name, value); err != nil {
			return err
		}
	}
	return nil
}

// Restore seeds counters from a previous run.
func (m *Metrics) Restore(db *storage.DB) error {
	saved, err := db.LoadCounters()
	if err != nil {
		return err
	}
	m.Requests.Store(saved["requests"])
	m.Responses.Store(saved["responses"])
	m.Errors.Store(saved["errors"])
	m.NoiseDropped.Store(saved["noiseDropped"])
	m.CacheHits.Store(saved["cacheHits"])
	m.CacheMisses.Store(saved["cacheMisses"])
	m.Mutations.Store(saved["mutations"])
	m.Cancellations.Store(saved["cancellations"])
	return nil
}
