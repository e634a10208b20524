// Package progress streams HashBisectDiffer node transitions to
// connected websocket clients, adapted from internal/reactive's
// registry/broadcast shape and internal/api/ws.go's per-connection
// send closure: here the "live query" is a running diff instead of a
// SQL subscription, and every event is a node-level progress update
// rather than a row-level refresh.
package progress

import (
	"sync"

	"go.uber.org/zap"

	"github.com/arrowgrid/reladiff-go/internal/differ"
)

// Event is one progress notification, JSON-serialized verbatim to
// every client subscribed to its RunID.
type Event struct {
	RunID    string `json:"runId"`
	Kind     string `json:"kind"` // "started", "resolved", "leaf"
	Level    int    `json:"level"`
	KeyRange string `json:"keyRange"`
	IsDiff   bool   `json:"isDiff,omitempty"`
	Count1   int64  `json:"count1,omitempty"`
	Count2   int64  `json:"count2,omitempty"`
	DiffCount int   `json:"diffCount,omitempty"`
}

// Client is anything that can receive a progress Event; server.go's
// wsClient implements this with conn.WriteJSON.
type Client interface {
	Send(evt Event) error
}

// Registry fans out Events for one run to every subscribed Client,
// single map owned by one struct guarded by one mutex — the same
// ownership discipline as internal/reactive.Registry.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]map[Client]struct{} // runID -> subscribers
	log     *zap.Logger
}

func NewRegistry(opts ...Option) *Registry {
	r := &Registry{clients: map[string]map[Client]struct{}{}, log: zap.L()}
	for _, o := range opts {
		o(r)
	}
	return r
}

type Option func(*Registry)

func WithLogger(l *zap.Logger) Option { return func(r *Registry) { r.log = l } }

func (r *Registry) Subscribe(runID string, c Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.clients[runID]
	if !ok {
		set = map[Client]struct{}{}
		r.clients[runID] = set
	}
	set[c] = struct{}{}
}

func (r *Registry) Unsubscribe(runID string, c Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.clients[runID]
	if !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(r.clients, runID)
	}
}

func (r *Registry) broadcast(runID string, evt Event) {
	r.mu.RLock()
	set := r.clients[runID]
	subscribers := make([]Client, 0, len(set))
	for c := range set {
		subscribers = append(subscribers, c)
	}
	r.mu.RUnlock()

	for _, c := range subscribers {
		if err := c.Send(evt); err != nil {
			r.log.Warn("progress: dropping unresponsive client", zap.String("runId", runID), zap.Error(err))
			r.Unsubscribe(runID, c)
		}
	}
}

// Reporter implements differ.Reporter, broadcasting each callback as
// an Event tagged with a fixed run ID. One Reporter is constructed per
// diff run (see NewReporter).
type Reporter struct {
	runID string
	reg   *Registry
}

var _ differ.Reporter = (*Reporter)(nil)

// NewReporter binds a Registry to one diff run's ID, so HashBisectDiffer
// can be handed a plain differ.Reporter without knowing about websockets
// or the registry's fan-out at all.
func NewReporter(reg *Registry, runID string) *Reporter {
	return &Reporter{runID: runID, reg: reg}
}

func (p *Reporter) NodeStarted(level int, keyRange string) {
	p.reg.broadcast(p.runID, Event{RunID: p.runID, Kind: "started", Level: level, KeyRange: keyRange})
}

func (p *Reporter) NodeResolved(level int, keyRange string, isDiff bool, count1, count2 int64) {
	p.reg.broadcast(p.runID, Event{
		RunID: p.runID, Kind: "resolved", Level: level, KeyRange: keyRange,
		IsDiff: isDiff, Count1: count1, Count2: count2,
	})
}

func (p *Reporter) LeafMaterialized(level int, keyRange string, diffCount int) {
	p.reg.broadcast(p.runID, Event{
		RunID: p.runID, Kind: "leaf", Level: level, KeyRange: keyRange, DiffCount: diffCount,
	})
}
