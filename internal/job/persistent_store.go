package job

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/slidedeck/explainer/internal/db"
)

// SystemNamespace prefixes every badger key written by the explainer.
const SystemNamespace = "explainer/"

const jobsPrefix = "jobs/"

// PersistentRegistry stores job records in badger under jobs/<id>.
type PersistentRegistry struct {
	dbStore *db.Store
}

func NewPersistentRegistry(dbStore *db.Store) *PersistentRegistry {
	return &PersistentRegistry{dbStore: dbStore}
}

func (r *PersistentRegistry) Add(j *Job) error {
	data, err := json.Marshal(j)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}

	written, err := r.dbStore.SetIfAbsent(SystemNamespace, jobsPrefix+j.ID, data)
	if err != nil {
		return fmt.Errorf("store job: %w", err)
	}
	if !written {
		return fmt.Errorf("job already registered: %s", j.ID)
	}

	return nil
}

func (r *PersistentRegistry) Get(id string) (*Job, error) {
	data, err := r.dbStore.Get(SystemNamespace, jobsPrefix+id)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("get job: %w", err)
	}

	var j Job
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("unmarshal job: %w", err)
	}

	return &j, nil
}

func (r *PersistentRegistry) List() ([]*Job, error) {
	keys, err := r.dbStore.List(SystemNamespace, jobsPrefix, 0)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}

	all := make([]*Job, 0, len(keys))
	for _, key := range keys {
		id := strings.TrimPrefix(key, jobsPrefix)
		if id == "" {
			continue
		}
		j, err := r.Get(id)
		if err != nil {
			continue
		}
		all = append(all, j)
	}

	SortOldestFirst(all)
	return all, nil
}
