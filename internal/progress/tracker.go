package progress

import (
	"sync"
	"time"

	"github.com/JakeFAU/legal-corpus-crawler/internal/crawler"
)

// Source reports a live counter snapshot. *crawler.Crawler satisfies it.
type Source interface {
	Stats() crawler.Stats
}

var _ Source = (*crawler.Crawler)(nil)

// Snapshot is the state of a run at one instant.
type Snapshot struct {
	StartedAt time.Time       `json:"started_at"`
	Elapsed   string          `json:"elapsed"`
	Sites     []crawler.Stats `json:"sites"`
	Documents int64           `json:"documents"`
	Done      bool            `json:"done"`
}

// Tracker keeps registered sources in registration order.
type Tracker struct {
	mu      sync.RWMutex
	started time.Time
	sources []Source
	names   map[string]int
	done    bool
	now     func() time.Time
}

// NewTracker returns an empty tracker whose clock starts now.
func NewTracker() *Tracker {
	return newTracker(time.Now)
}

func newTracker(now func() time.Time) *Tracker {
	return &Tracker{started: now(), names: make(map[string]int), now: now}
}

// Register adds a source. Registering a site name again replaces the earlier source.
func (t *Tracker) Register(src Source) {
	if src == nil {
		return
	}
	name := src.Stats().Site
	t.mu.Lock()
	defer t.mu.Unlock()
	if i, ok := t.names[name]; ok {
		t.sources[i] = src
		return
	}
	t.names[name] = len(t.sources)
	t.sources = append(t.sources, src)
}

// MarkDone flags the run as finished.
func (t *Tracker) MarkDone() {
	t.mu.Lock()
	t.done = true
	t.mu.Unlock()
}

// Site returns the stats for one site.
func (t *Tracker) Site(name string) (crawler.Stats, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	i, ok := t.names[name]
	if !ok {
		return crawler.Stats{}, false
	}
	return t.sources[i].Stats(), true
}

// Snapshot collects the stats of every registered source.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	sources := append([]Source(nil), t.sources...)
	snap := Snapshot{
		StartedAt: t.started.UTC(),
		Elapsed:   t.now().Sub(t.started).Round(time.Millisecond).String(),
		Done:      t.done,
		Sites:     make([]crawler.Stats, 0, len(sources)),
	}
	t.mu.RUnlock()

	for _, src := range sources {
		stats := src.Stats()
		snap.Documents += stats.Documents
		snap.Sites = append(snap.Sites, stats)
	}
	return snap
}
