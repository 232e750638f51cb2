// Package service implements submission and status queries over the shared
// upload storage, job registry and ledger.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/slidedeck/explainer/internal/extract"
	"github.com/slidedeck/explainer/internal/job"
	"github.com/slidedeck/explainer/internal/ledger"
	"github.com/slidedeck/explainer/internal/storage"
)

var (
	ErrNotFound        = errors.New("UID not found")
	ErrInvalidFilename = errors.New("invalid filename")
	ErrEmptyDocument   = errors.New("empty document")
	ErrNotProcessed    = errors.New("job not processed yet")
)

// maxNameBytes is the file name limit of common filesystems. Both the upload
// and its result record must fit.
const maxNameBytes = 255

const (
	StatusPending = "pending"
	StatusDone    = "done"
)

// Files is the part of the file store the service needs.
type Files interface {
	List(namespace, prefix string) ([]string, error)
	Get(namespace, path string) ([]byte, error)
	Put(namespace, path string, content []byte) error
	Delete(namespace, path string) error
	Exists(namespace, path string) bool
}

// LedgerView reads the current ledger state. Both ledger backends and a
// running worker satisfy it.
type LedgerView interface {
	Load(ctx context.Context) ledger.Snapshot
}

// StatusResponse is the body returned to status pollers. Explanation is the
// persisted record verbatim, or null while the job is pending.
type StatusResponse struct {
	Status      string          `json:"status"`
	Filename    string          `json:"filename"`
	Timestamp   string          `json:"timestamp"`
	Explanation json.RawMessage `json:"explanation"`
}

type Stats struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Processed int `json:"processed"`
}

// JobSummary is one entry of a job listing.
type JobSummary struct {
	UID       string `json:"uid"`
	Filename  string `json:"filename"`
	Timestamp string `json:"timestamp"`
	Status    string `json:"status"`
}

type Service struct {
	files    Files
	registry job.Registry
	ledger   LedgerView
	log      zerolog.Logger
}

func New(files Files, registry job.Registry, view LedgerView, log zerolog.Logger) *Service {
	return &Service{
		files:    files,
		registry: registry,
		ledger:   view,
		log:      log.With().Str("component", "service").Logger(),
	}
}

// Submit stores a new deck and registers its job. The deck becomes visible
// to the worker as soon as the payload is written.
func (s *Service) Submit(ctx context.Context, filename string, data []byte) (*job.Job, error) {
	name, err := cleanFilename(filename)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, ErrEmptyDocument
	}
	if _, err := extract.Detect(name, data); err != nil {
		return nil, err
	}

	j := job.New(name)
	if err := s.files.Put(storage.UploadsNamespace, j.Document, data); err != nil {
		return nil, fmt.Errorf("store upload: %w", err)
	}
	if err := s.registry.Add(j); err != nil {
		if delErr := s.files.Delete(storage.UploadsNamespace, j.Document); delErr != nil {
			s.log.Error().Err(delErr).Str("key", j.Document).Msg("remove orphaned upload")
		}
		return nil, fmt.Errorf("register job: %w", err)
	}

	s.log.Info().
		Str("job_id", j.ID).
		Str("filename", j.Filename).
		Int("bytes", len(data)).
		Msg("job submitted")
	return j, nil
}

// cleanFilename keeps only the base name, whichever separator the client
// used, and rejects names whose stored result would not fit on disk.
func cleanFilename(filename string) (string, error) {
	if i := strings.LastIndexAny(filename, `/\`); i >= 0 {
		filename = filename[i+1:]
	}
	filename = strings.TrimSpace(filename)
	if filename == "" || filename == "." || filename == ".." {
		return "", ErrInvalidFilename
	}
	if job.KeyOverhead+len(storage.ResultName(filename)) > maxNameBytes {
		return "", fmt.Errorf("%w: name longer than %d bytes", ErrInvalidFilename, maxNameBytes-job.KeyOverhead-len(storage.ResultName("")))
	}
	return filename, nil
}

// Resolve finds the job for id. The registry answers first; uploads written
// by another process are found by scanning upload storage.
func (s *Service) Resolve(ctx context.Context, id string) (*job.Job, error) {
	j, err := s.registry.Get(id)
	switch {
	case err == nil:
		if s.files.Exists(storage.UploadsNamespace, j.Document) {
			return j, nil
		}
		return nil, ErrNotFound
	case !errors.Is(err, job.ErrNotFound):
		s.log.Warn().Err(err).Str("job_id", id).Msg("registry lookup failed, scanning storage")
	}

	names, err := s.files.List(storage.UploadsNamespace, "")
	if err != nil {
		return nil, fmt.Errorf("list uploads: %w", err)
	}
	for _, name := range names {
		k, err := job.ParseKey(name)
		if err != nil || k.ID != id {
			continue
		}
		return job.FromKey(k), nil
	}
	return nil, ErrNotFound
}

func (s *Service) Status(ctx context.Context, id string) (*StatusResponse, error) {
	j, err := s.Resolve(ctx, id)
	if err != nil {
		return nil, err
	}
	k, err := j.Key()
	if err != nil {
		return nil, fmt.Errorf("job %s: %w", id, err)
	}

	resp := &StatusResponse{
		Status:    StatusPending,
		Filename:  k.Filename,
		Timestamp: k.TimestampString(),
	}
	if !s.ledger.Load(ctx).IsProcessed(j.Document) {
		return resp, nil
	}

	record, err := s.files.Get(storage.OutputsNamespace, storage.ResultName(j.Document))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.log.Warn().Str("job_id", id).Msg("processed job has no record")
			return resp, nil
		}
		return nil, fmt.Errorf("read record: %w", err)
	}

	resp.Status = StatusDone
	resp.Explanation = json.RawMessage(record)
	return resp, nil
}

// Result returns the persisted explanation record of a processed job.
func (s *Service) Result(ctx context.Context, id string) ([]byte, error) {
	resp, err := s.Status(ctx, id)
	if err != nil {
		return nil, err
	}
	if resp.Status != StatusDone {
		return nil, ErrNotProcessed
	}
	return resp.Explanation, nil
}

func (s *Service) Stats(ctx context.Context) (Stats, error) {
	names, err := s.files.List(storage.UploadsNamespace, "")
	if err != nil {
		return Stats{}, fmt.Errorf("list uploads: %w", err)
	}
	snap := s.ledger.Load(ctx)

	var st Stats
	for _, name := range names {
		if _, err := job.ParseKey(name); err != nil {
			continue
		}
		st.Total++
		if snap.IsProcessed(name) {
			st.Processed++
		} else {
			st.Pending++
		}
	}
	return st, nil
}

// Jobs lists every job in upload storage, oldest first, with its current
// status. It returns the requested page and the total count.
func (s *Service) Jobs(ctx context.Context, limit, offset int) ([]JobSummary, int, error) {
	jobs, err := s.listJobs()
	if err != nil {
		return nil, 0, err
	}
	total := len(jobs)
	if offset > total {
		offset = total
	}
	jobs = jobs[offset:]
	if limit > 0 && limit < len(jobs) {
		jobs = jobs[:limit]
	}

	snap := s.ledger.Load(ctx)
	out := make([]JobSummary, 0, len(jobs))
	for _, j := range jobs {
		status := StatusPending
		if snap.IsProcessed(j.Document) {
			status = StatusDone
		}
		out = append(out, JobSummary{
			UID:       j.ID,
			Filename:  j.Filename,
			Timestamp: j.SubmittedAt.UTC().Format(job.TimestampFormat),
			Status:    status,
		})
	}
	return out, total, nil
}

// listJobs merges registry records with uploads the registry has not seen,
// such as those submitted by another process or before a restart. Registry
// records whose payload is gone are dropped, matching Resolve.
func (s *Service) listJobs() ([]*job.Job, error) {
	names, err := s.files.List(storage.UploadsNamespace, "")
	if err != nil {
		return nil, fmt.Errorf("list uploads: %w", err)
	}
	stored := make(map[string]bool, len(names))
	for _, name := range names {
		stored[name] = true
	}

	registered, err := s.registry.List()
	if err != nil {
		s.log.Warn().Err(err).Msg("registry list failed, using storage only")
	}

	seen := make(map[string]bool, len(names))
	jobs := make([]*job.Job, 0, len(names))
	for _, j := range registered {
		if stored[j.Document] {
			seen[j.ID] = true
			jobs = append(jobs, j)
		}
	}
	for _, name := range names {
		k, err := job.ParseKey(name)
		if err != nil || seen[k.ID] {
			continue
		}
		seen[k.ID] = true
		jobs = append(jobs, job.FromKey(k))
	}

	job.SortOldestFirst(jobs)
	return jobs, nil
}
