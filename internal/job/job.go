package job

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("job not found")

// Job is one submitted deck. It never changes after submission; lifecycle
// state lives in the ledger.
type Job struct {
	ID          string    `json:"id"`
	Filename    string    `json:"filename"`
	SubmittedAt time.Time `json:"submitted_at"`
	// Document is the storage key of the uploaded payload.
	Document string `json:"document"`
}

func New(filename string) *Job {
	return NewAt(filename, time.Now())
}

func NewAt(filename string, now time.Time) *Job {
	key := NewKey(now, uuid.NewString(), filename)
	return &Job{
		ID:          key.ID,
		Filename:    filename,
		SubmittedAt: key.Timestamp,
		Document:    key.String(),
	}
}

// FromKey rebuilds the job record implied by a storage key.
func FromKey(k Key) *Job {
	return &Job{
		ID:          k.ID,
		Filename:    k.Filename,
		SubmittedAt: k.Timestamp,
		Document:    k.String(),
	}
}

func (j *Job) Key() (Key, error) {
	return ParseKey(j.Document)
}

// MemoryRegistry keeps job records in process memory.
type MemoryRegistry struct {
	mu   sync.RWMutex
	jobs map[string]*Job
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{jobs: make(map[string]*Job)}
}

func (r *MemoryRegistry) Add(j *Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[j.ID]; ok {
		return fmt.Errorf("job already registered: %s", j.ID)
	}
	cp := *j
	r.jobs[j.ID] = &cp
	return nil
}

func (r *MemoryRegistry) Get(id string) (*Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	j, ok := r.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	cp := *j
	return &cp, nil
}

// List returns every job, oldest submission first.
func (r *MemoryRegistry) List() ([]*Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	all := make([]*Job, 0, len(r.jobs))
	for _, j := range r.jobs {
		cp := *j
		all = append(all, &cp)
	}
	SortOldestFirst(all)
	return all, nil
}

// SortOldestFirst orders jobs by submission time, then by ID.
func SortOldestFirst(jobs []*Job) {
	sort.Slice(jobs, func(a, b int) bool {
		if !jobs[a].SubmittedAt.Equal(jobs[b].SubmittedAt) {
			return jobs[a].SubmittedAt.Before(jobs[b].SubmittedAt)
		}
		return jobs[a].ID < jobs[b].ID
	})
}
