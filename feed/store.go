// Package feed holds the authoritative in-memory representation of what the
// user should currently see: a deduplicated, ordered collection of nearby
// deals. All mutations are expected to arrive from a single writer (the
// reconciler); reads may happen concurrently from any goroutine.
package feed

import (
	"sort"
	"sync"
	"time"

	"dealspulse/logger"
	"dealspulse/models"
)

// AdmissionResult reports what AdmitOrUpdate did with a deal.
type AdmissionResult int

const (
	// Rejected: the deal was not admitted; if it was present it has been
	// removed.
	Rejected AdmissionResult = iota
	// Added: the deal was absent and has been inserted.
	Added
	// Replaced: the deal was present and its entry has been replaced.
	Replaced
)

func (r AdmissionResult) String() string {
	switch r {
	case Added:
		return "added"
	case Replaced:
		return "replaced"
	default:
		return "rejected"
	}
}

// Store is the feed state store. Entries are always sorted by ascending
// expiration time, then ascending distance from the query center: the
// product intent is soonest-to-expire first, nearest first among ties. At
// most one entry exists per deal identifier.
type Store struct {
	mu      sync.RWMutex
	entries []models.FeedEntry
	present map[string]struct{}

	subs    map[int]chan struct{}
	nextSub int

	log *logger.Log
}

func NewStore() *Store {
	return &Store{
		present: make(map[string]struct{}),
		subs:    make(map[int]chan struct{}),
		log:     logger.GetLogger(),
	}
}

// Entries returns a copy of the current feed in display order. Safe to call
// at any time; never blocks on the writer beyond the read lock.
func (s *Store) Entries() []models.FeedEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.FeedEntry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Len returns the number of entries currently in the feed.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// ReplaceAll atomically swaps the whole feed content, used after a fresh
// snapshot fetch. Duplicate identifiers in the input collapse to the first
// occurrence.
func (s *Store) ReplaceAll(entries []models.FeedEntry) {
	s.mu.Lock()

	s.entries = s.entries[:0]
	s.present = make(map[string]struct{}, len(entries))
	for _, e := range entries {
		if _, dup := s.present[e.Deal.ID]; dup {
			continue
		}
		s.present[e.Deal.ID] = struct{}{}
		s.entries = append(s.entries, e)
	}
	s.sortLocked()

	count := len(s.entries)
	s.notifyLocked()
	s.mu.Unlock()

	s.log.WithComponent("feed_store").WithFields(logger.Fields{
		"entries": count,
	}).Debug("feed replaced")
}

// AdmitOrUpdate applies an admission verdict for a single deal: inserts if
// absent and admissible, replaces if present and still admissible, removes
// if present but no longer admissible. The caller computes admissibility and
// distance because both depend on the active query parameters.
func (s *Store) AdmitOrUpdate(deal models.Deal, distanceMiles float64, admissible bool) AdmissionResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, exists := s.present[deal.ID]

	if !admissible {
		if exists {
			s.removeLocked(deal.ID)
			s.notifyLocked()
		}
		return Rejected
	}

	entry := models.FeedEntry{Deal: deal, DistanceMiles: distanceMiles}

	if exists {
		for i := range s.entries {
			if s.entries[i].Deal.ID == deal.ID {
				s.entries[i] = entry
				break
			}
		}
		s.sortLocked()
		s.notifyLocked()
		return Replaced
	}

	s.present[deal.ID] = struct{}{}
	s.entries = append(s.entries, entry)
	s.sortLocked()
	s.notifyLocked()
	return Added
}

// Evict removes the entry for the identifier if present. Idempotent: a
// second eviction of the same identifier is a no-op.
func (s *Store) Evict(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.present[id]; !ok {
		return false
	}
	s.removeLocked(id)
	s.notifyLocked()
	return true
}

// Prune drops entries whose expiry has passed. Liveness is also checked on
// admission, but time advances between events; the sweep keeps long-idle
// feeds honest. Returns the number of entries removed.
func (s *Store) Prune(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.entries[:0]
	removed := 0
	for _, e := range s.entries {
		if e.Deal.IsExpired(now) {
			delete(s.present, e.Deal.ID)
			removed++
			continue
		}
		kept = append(kept, e)
	}
	s.entries = kept
	if removed > 0 {
		s.notifyLocked()
	}
	return removed
}

// Subscribe registers for change notifications. The returned channel
// receives a coalesced signal after every mutation that changed the feed;
// call the cancel function to unregister.
func (s *Store) Subscribe() (<-chan struct{}, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSub
	s.nextSub++
	ch := make(chan struct{}, 1)
	s.subs[id] = ch

	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

func (s *Store) removeLocked(id string) {
	delete(s.present, id)
	for i := range s.entries {
		if s.entries[i].Deal.ID == id {
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			return
		}
	}
}

func (s *Store) sortLocked() {
	sort.SliceStable(s.entries, func(i, j int) bool {
		a, b := s.entries[i], s.entries[j]
		if !a.Deal.ExpiresAt.Equal(b.Deal.ExpiresAt) {
			return a.Deal.ExpiresAt.Before(b.Deal.ExpiresAt)
		}
		if a.DistanceMiles != b.DistanceMiles {
			return a.DistanceMiles < b.DistanceMiles
		}
		return a.Deal.ID < b.Deal.ID
	})
}

func (s *Store) notifyLocked() {
	for _, ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
