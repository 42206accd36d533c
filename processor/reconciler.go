// Package processor contains the reconciler: the single writer that merges
// one-shot snapshot results and live change events into the feed store under
// the active query parameters.
package processor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"dealspulse/config"
	"dealspulse/feed"
	"dealspulse/geo"
	"dealspulse/logger"
	"dealspulse/models"
)

// SnapshotSource is the consumed snapshot collaborator: one-shot "active
// deals under these covering prefixes" queries against the remote store.
type SnapshotSource interface {
	FetchActive(ctx context.Context, prefixes []string, category *models.DealCategory) ([]models.Deal, error)
}

// Engine states exposed through Status.
const (
	StateOK                = "ok"
	StateNoLocation        = "no_location"
	StateStreamInterrupted = "stream_interrupted"
)

// Status is a point-in-time summary of the engine for the read API.
type Status struct {
	State           string              `json:"state"`
	Params          *models.QueryParams `json:"params,omitempty"`
	Entries         int                 `json:"entries"`
	LastFetchAt     time.Time           `json:"last_fetch_at,omitempty"`
	LastFetchError  string              `json:"last_fetch_error,omitempty"`
	StreamConnected bool                `json:"stream_connected"`
}

type snapshotResult struct {
	generation uint64
	params     models.QueryParams
	deals      []models.Deal
	err        error
}

// Reconciler owns all mutations of the feed store. One sequential loop
// consumes the change event channel, snapshot fetch completions and the
// expiry sweep; readers only ever touch the store through its own read lock.
type Reconciler struct {
	config    *config.Config
	store     *feed.Store
	snapshots SnapshotSource
	events    <-chan models.ChangeEvent

	ctx     context.Context
	wg      *sync.WaitGroup
	mu      sync.RWMutex
	running bool
	log     *logger.Log

	now     func() time.Time
	limiter *rate.Limiter

	// Query parameter state. Location arrives asynchronously and possibly
	// never; until it does the engine stays in the no-location state rather
	// than defaulting to a fabricated coordinate.
	params      models.QueryParams
	hasLocation bool

	// Snapshot request generation: a parameter change bumps the generation
	// and cancels the in-flight fetch, so a late stale response can never
	// overwrite a newer one.
	generation  uint64
	fetchCancel context.CancelFunc
	results     chan snapshotResult

	lastFetchAt  time.Time
	lastFetchErr error

	streamConnected bool
}

func NewReconciler(cfg *config.Config, store *feed.Store, snapshots SnapshotSource, events <-chan models.ChangeEvent) *Reconciler {
	r := &Reconciler{
		config:    cfg,
		store:     store,
		snapshots: snapshots,
		events:    events,
		wg:        &sync.WaitGroup{},
		log:       logger.GetLogger(),
		now:       time.Now,
		limiter:   rate.NewLimiter(rate.Limit(cfg.Feed.RefetchPerSecond), 1),
		results:   make(chan snapshotResult, 1),
		params: models.QueryParams{
			RadiusMiles: cfg.Feed.DefaultRadiusMiles,
		},
	}

	r.log.WithComponent("reconciler").WithFields(logger.Fields{
		"default_radius_miles": cfg.Feed.DefaultRadiusMiles,
		"refetch_per_second":   cfg.Feed.RefetchPerSecond,
	}).Info("reconciler initialized")

	return r
}

// Start launches the single-writer loop. When the configuration carries a
// fixed location the first snapshot fetch is triggered immediately.
func (r *Reconciler) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("reconciler already running")
	}
	r.running = true
	r.ctx = ctx

	if loc := r.config.Feed.Location; loc != nil {
		r.params.CenterLat = loc.Lat
		r.params.CenterLng = loc.Lng
		r.hasLocation = true
	}
	if r.hasLocation {
		r.triggerLocked()
	}
	r.mu.Unlock()

	log := r.log.WithComponent("reconciler").WithFields(logger.Fields{"operation": "start"})
	log.Info("starting reconciler")

	r.wg.Add(1)
	go r.run()

	log.Info("reconciler started successfully")
	return nil
}

// Stop terminates the loop and waits for in-flight work.
func (r *Reconciler) Stop() {
	r.mu.Lock()
	r.running = false
	if r.fetchCancel != nil {
		r.fetchCancel()
	}
	r.mu.Unlock()

	r.log.WithComponent("reconciler").Info("stopping reconciler")
	r.wg.Wait()
	r.log.WithComponent("reconciler").Info("reconciler stopped")
}

// SetLocation feeds a location update into the query parameters. Any actual
// movement of the center invalidates every stored distance, so a
// reconciliation pass is triggered unless the parameters are equivalent.
func (r *Reconciler) SetLocation(lat, lng float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := r.params
	next.CenterLat = lat
	next.CenterLng = lng

	if r.hasLocation && next.Equal(r.params) {
		return
	}

	r.params = next
	r.hasLocation = true
	r.triggerLocked()
}

// SetFilters updates the user-driven radius and category filter. Radius must
// be positive; the category may be nil to clear the filter.
func (r *Reconciler) SetFilters(radiusMiles float64, category *models.DealCategory) error {
	if radiusMiles <= 0 {
		return fmt.Errorf("radius must be positive, got %v", radiusMiles)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	next := r.params
	next.RadiusMiles = radiusMiles
	next.Category = category

	if next.Equal(r.params) {
		return nil
	}

	r.params = next
	r.triggerLocked()
	return nil
}

// Params returns the active query parameters and whether a location has been
// obtained yet.
func (r *Reconciler) Params() (models.QueryParams, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.params, r.hasLocation
}

// SetStreamConnected records the realtime stream state. A closed or failed
// stream means "no live updates until re-subscribed"; it never clears the
// feed.
func (r *Reconciler) SetStreamConnected(connected bool) {
	r.mu.Lock()
	r.streamConnected = connected
	r.mu.Unlock()
}

// Status reports the engine state for the read API.
func (r *Reconciler) Status() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()

	st := Status{
		State:           StateOK,
		Entries:         r.store.Len(),
		LastFetchAt:     r.lastFetchAt,
		StreamConnected: r.streamConnected,
	}

	if !r.hasLocation {
		st.State = StateNoLocation
		return st
	}

	params := r.params
	st.Params = &params
	if r.lastFetchErr != nil {
		st.LastFetchError = r.lastFetchErr.Error()
	}
	if !r.streamConnected {
		st.State = StateStreamInterrupted
	}
	return st
}

// LastFetchError returns the error of the most recent snapshot attempt, nil
// after a success. Fetch failures are surfaced here, not retried internally;
// the feed keeps showing the last known good entries.
func (r *Reconciler) LastFetchError() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastFetchErr
}

// Err maps the engine state onto the error taxonomy: ErrLocationUnavailable
// before any coordinate has arrived, ErrStreamInterrupted while live updates
// are paused, nil when healthy. Fetch failures are reported separately via
// LastFetchError because the feed stays valid through them.
func (r *Reconciler) Err() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.hasLocation {
		return models.ErrLocationUnavailable
	}
	if !r.streamConnected {
		return models.ErrStreamInterrupted
	}
	return nil
}

func (r *Reconciler) run() {
	defer r.wg.Done()

	log := r.log.WithComponent("reconciler").WithFields(logger.Fields{"worker": "writer_loop"})
	log.Info("starting writer loop")

	sweep := time.NewTicker(r.config.Feed.ExpirySweep)
	defer sweep.Stop()

	for {
		select {
		case <-r.ctx.Done():
			log.Info("writer loop shutting down")
			return

		case ev, ok := <-r.events:
			if !ok {
				// Stream channel closed: live updates pause, data stays.
				log.Warn("event channel closed; live updates paused")
				r.events = nil
				continue
			}
			r.handleEvent(ev)

		case res := <-r.results:
			r.applySnapshot(res)

		case <-sweep.C:
			if removed := r.store.Prune(r.now()); removed > 0 {
				log.WithFields(logger.Fields{"removed": removed}).Debug("expiry sweep pruned entries")
			}
		}
	}
}

// handleEvent folds one change event into the store. Each event is judged
// purely against its own payload and the current wall clock, so duplicates
// and reordering are harmless.
func (r *Reconciler) handleEvent(ev models.ChangeEvent) {
	params, hasLocation := r.Params()
	log := r.log.WithComponent("reconciler").WithFields(logger.Fields{
		"deal_id": ev.ID(),
		"type":    string(ev.Type),
	})

	if !hasLocation {
		// No location means no admission decisions can be made yet.
		return
	}

	switch ev.Type {
	case models.ChangeInsert:
		if ev.Deal == nil {
			log.Warn("insert event without record, dropping")
			return
		}
		distance, ok := Admissible(ev.Deal, params, r.now())
		if !ok {
			return
		}
		res := r.store.AdmitOrUpdate(*ev.Deal, distance, true)
		log.WithFields(logger.Fields{"result": res.String()}).Debug("insert applied")

	case models.ChangeUpdate:
		if ev.Deal == nil {
			log.Warn("update event without record, dropping")
			return
		}
		// The decision is driven entirely by the current record; the
		// previous value is informational only. An inadmissible update
		// evicts (status flip, expiry edit, moved out of range), an
		// admissible one admits even if the deal was never present
		// (pending deals newly approved).
		distance, ok := Admissible(ev.Deal, params, r.now())
		if !ok {
			r.store.Evict(ev.Deal.ID)
			return
		}
		res := r.store.AdmitOrUpdate(*ev.Deal, distance, true)
		log.WithFields(logger.Fields{"result": res.String()}).Debug("update applied")

	case models.ChangeDelete:
		id := ev.ID()
		if id == "" {
			log.Warn("delete event without identifier, dropping")
			return
		}
		r.store.Evict(id)

	default:
		log.Warn("unknown change type, dropping")
	}
}

// triggerLocked bumps the request generation, cancels any in-flight fetch
// for the superseded parameters and starts a new one. Callers hold r.mu.
func (r *Reconciler) triggerLocked() {
	if !r.running || !r.hasLocation {
		return
	}

	r.generation++
	gen := r.generation

	if r.fetchCancel != nil {
		r.fetchCancel()
	}
	fetchCtx, cancel := context.WithCancel(r.ctx)
	r.fetchCancel = cancel

	params := r.params
	r.wg.Add(1)
	go r.fetchSnapshot(fetchCtx, gen, params)
}

func (r *Reconciler) fetchSnapshot(ctx context.Context, generation uint64, params models.QueryParams) {
	defer r.wg.Done()

	log := r.log.WithComponent("snapshot_fetch").WithFields(logger.Fields{
		"generation": generation,
		"radius":     params.RadiusMiles,
	})

	// Rapid parameter changes (slider drags, location jitter) are throttled
	// here; a superseding change cancels the wait.
	if err := r.limiter.Wait(ctx); err != nil {
		log.Debug("fetch superseded before start")
		return
	}

	prefixes := geo.CoveringPrefixes(params.CenterLat, params.CenterLng, params.RadiusMiles)
	deals, err := r.snapshots.FetchActive(ctx, prefixes, params.Category)

	if errors.Is(err, context.Canceled) {
		log.Debug("fetch cancelled by newer parameters")
		return
	}

	select {
	case r.results <- snapshotResult{generation: generation, params: params, deals: deals, err: err}:
	case <-r.ctx.Done():
	}
}

// applySnapshot reconciles a completed fetch into the store, unless it has
// been superseded. Admissibility and distance are recomputed for every row
// under the parameters the fetch was issued with: the covering prefixes are
// only a prefilter and the remote store may return extra rows.
func (r *Reconciler) applySnapshot(res snapshotResult) {
	r.mu.Lock()
	if cur := r.generation; res.generation != cur {
		r.mu.Unlock()
		r.log.WithComponent("reconciler").WithFields(logger.Fields{
			"generation": res.generation,
			"current":    cur,
		}).Debug("discarding superseded snapshot result")
		return
	}

	r.lastFetchAt = r.now()
	if res.err != nil {
		r.lastFetchErr = fmt.Errorf("%w: %v", models.ErrFetchFailed, res.err)
		r.mu.Unlock()
		logger.IncrementSnapshotFailure()
		r.log.WithComponent("snapshot_fetch").WithError(res.err).Error("snapshot fetch failed; keeping last known entries")
		return
	}
	r.lastFetchErr = nil
	r.mu.Unlock()

	now := r.now()
	entries := make([]models.FeedEntry, 0, len(res.deals))
	for i := range res.deals {
		deal := res.deals[i]
		distance, ok := Admissible(&deal, res.params, now)
		if !ok {
			continue
		}
		entries = append(entries, models.FeedEntry{Deal: deal, DistanceMiles: distance})
	}

	r.store.ReplaceAll(entries)
	logger.IncrementSnapshotFetch(len(res.deals))

	r.log.WithComponent("reconciler").LogMetric("reconciler", "FeedSize", r.store.Len(), "gauge", logger.Fields{
		"fetched": fmt.Sprintf("%d", len(res.deals)),
	})
}
