package internal

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
)

type Metrics struct {
	activeConns   atomic.Int64
	relayed       atomic.Uint64
	persisted     atomic.Uint64
	storeFailures atomic.Uint64
	throttled     atomic.Uint64

	registry atomic.Pointer[ConnectionRegistry]
	router   atomic.Pointer[RoomRouter]
}

func NewMetrics() *Metrics {
	return &Metrics{}
}

// Track lets the metrics report joined connections and live rooms.
func (m *Metrics) Track(registry *ConnectionRegistry, router *RoomRouter) {
	m.registry.Store(registry)
	m.router.Store(router)
}

func (m *Metrics) IncConn() {
	m.activeConns.Add(1)
}

func (m *Metrics) DecConn() {
	m.activeConns.Add(-1)
}

func (m *Metrics) IncRelayed() {
	m.relayed.Add(1)
}

func (m *Metrics) IncPersisted() {
	m.persisted.Add(1)
}

func (m *Metrics) IncStoreFailure() {
	m.storeFailures.Add(1)
}

func (m *Metrics) IncThrottled() {
	m.throttled.Add(1)
}

// Snapshot returns the current counter values keyed by their JSON names.
func (m *Metrics) Snapshot() map[string]any {
	joined, rooms := 0, 0
	if registry := m.registry.Load(); registry != nil {
		joined = registry.Len()
	}
	if router := m.router.Load(); router != nil {
		rooms = router.RoomCount()
	}
	return map[string]any{
		"active_connections":       m.activeConns.Load(),
		"joined_connections":       joined,
		"rooms":                    rooms,
		"messages_relayed_total":   m.relayed.Load(),
		"messages_persisted_total": m.persisted.Load(),
		"store_failures_total":     m.storeFailures.Load(),
		"throttled_total":          m.throttled.Load(),
		"version":                  Version,
	}
}

func (m *Metrics) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(m.Snapshot())
}
