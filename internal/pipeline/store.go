package pipeline

import (
	"sync"
	"time"
)

// Store is the in-memory job registry: a map plus FIFO insertion order, all
// mutations under a single exclusive lock. Terminal jobs are evicted on every
// read/write once they outlive the TTL, and the FIFO is capped at historyMax
// by dropping terminal entries from the head. Active jobs are never evicted.
type Store struct {
	mu         sync.Mutex
	jobs       map[string]*Job
	order      []string
	ttl        time.Duration
	historyMax int
}

// NewStore creates an empty Store with the given eviction policy.
func NewStore(ttl time.Duration, historyMax int) *Store {
	return &Store{
		jobs:       make(map[string]*Job),
		order:      make([]string, 0, historyMax),
		ttl:        ttl,
		historyMax: historyMax,
	}
}

// Put registers a new job, evicting stale entries first.
func (s *Store) Put(job *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evictLocked()
	s.jobs[job.ID] = job
	s.order = append(s.order, job.ID)
}

// View returns a snapshot of the job, or ok=false if it does not exist.
func (s *Store) View(id string) (View, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evictLocked()
	job, ok := s.jobs[id]
	if !ok {
		return View{}, false
	}
	return job.view(), true
}

// Update runs fn on the job under the store lock and returns a snapshot taken
// after the mutation. fn must not block.
func (s *Store) Update(id string, fn func(*Job)) (View, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evictLocked()
	job, ok := s.jobs[id]
	if !ok {
		return View{}, false
	}
	fn(job)
	return job.view(), true
}

// get returns the live job record. Only the owning worker may touch mutable
// fields outside of Update.
func (s *Store) get(id string) *Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[id]
}

// Len reports the number of registered jobs.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// evictLocked drops terminal jobs older than the TTL, then trims the FIFO to
// historyMax from the head. The head is only dropped while terminal: an
// active job blocks further trimming so it can never be evicted.
func (s *Store) evictLocked() {
	now := time.Now()

	kept := s.order[:0]
	for _, id := range s.order {
		job, ok := s.jobs[id]
		if !ok {
			continue
		}
		if job.terminal() && now.Sub(job.UpdatedAt) > s.ttl {
			delete(s.jobs, id)
			continue
		}
		kept = append(kept, id)
	}
	s.order = kept

	for len(s.order) > s.historyMax {
		oldest := s.order[0]
		job, ok := s.jobs[oldest]
		if ok && !job.terminal() {
			break
		}
		s.order = s.order[1:]
		delete(s.jobs, oldest)
	}
}
