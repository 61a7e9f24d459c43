// Package store implements a single file-backed JSON document of every
// known job and its bounded event history, rewritten atomically via
// temp-file + rename. Writes coalesce within a short window except for
// state-terminal updates, which flush synchronously before the caller is
// told the update is durable.
package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/aadk/jobflow/internal/jobsvc/domain"
	"github.com/aadk/jobflow/internal/jobsvc/registry"
	aerr "github.com/aadk/jobflow/pkg/errors"
	"github.com/aadk/jobflow/pkg/logger"
)

const schemaVersion = 1

// Failed writes are retried with exponential backoff before the store
// escalates to a fatal, process-ending error.
const (
	writeRetryLimit     = 5
	writeRetryBaseDelay = 100 * time.Millisecond
)

type document struct {
	SchemaVersion int                                   `json:"schema_version"`
	Jobs          map[domain.JobID]registry.JobSnapshot `json:"jobs"`
}

// FileStore persists job snapshots to a single JSON file.
type FileStore struct {
	path          string
	coalesceDelay time.Duration
	log           *logger.Logger
	fatal         func(error)

	retryLimit     int
	retryBaseDelay time.Duration

	mu        sync.Mutex
	snapshots map[domain.JobID]registry.JobSnapshot
	dirty     bool

	dirtyCh chan struct{}
	closeCh chan struct{}
	wg      sync.WaitGroup
}

// Open loads path (if it exists) and starts the background coalescing
// writer. coalesceDelay is the window non-terminal writes wait to be
// batched together (about 50ms by default).
func Open(path string, coalesceDelay time.Duration) (*FileStore, error) {
	if coalesceDelay <= 0 {
		coalesceDelay = 50 * time.Millisecond
	}

	s := &FileStore{
		path:           path,
		coalesceDelay:  coalesceDelay,
		log:            logger.WithMode("store"),
		fatal:          func(error) { os.Exit(1) },
		retryLimit:     writeRetryLimit,
		retryBaseDelay: writeRetryBaseDelay,
		snapshots:      make(map[domain.JobID]registry.JobSnapshot),
		dirtyCh:        make(chan struct{}, 1),
		closeCh:        make(chan struct{}),
	}

	if err := s.load(); err != nil {
		return nil, err
	}

	s.wg.Add(1)
	go s.processLoop()

	return s, nil
}

func (s *FileStore) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return aerr.NewPersistenceError(s.path, "load", err)
	}
	if len(data) == 0 {
		return nil
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return aerr.WrapPersistenceError(s.path, "load", aerr.ErrCorruptDocument)
	}

	if doc.Jobs != nil {
		s.snapshots = doc.Jobs
	}
	return nil
}

// LoadAll returns a copy of every snapshot loaded at Open time (or written
// since), for JobRegistry's startup recovery.
func (s *FileStore) LoadAll() (map[domain.JobID]registry.JobSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[domain.JobID]registry.JobSnapshot, len(s.snapshots))
	for k, v := range s.snapshots {
		out[k] = v
	}
	return out, nil
}

// Upsert stores snapshot in memory and either schedules a coalesced write
// (flush=false) or writes and fsyncs synchronously before returning
// (flush=true), per terminal-update durability rule.
func (s *FileStore) Upsert(snapshot registry.JobSnapshot, flush bool) error {
	s.mu.Lock()
	s.snapshots[snapshot.Job.JobID] = snapshot
	s.dirty = true
	s.mu.Unlock()

	if flush {
		return s.writeWithRetry()
	}

	select {
	case s.dirtyCh <- struct{}{}:
	default:
	}
	return nil
}

// Remove drops jobID from the in-memory snapshot set and schedules a
// coalesced write; callers that need a synchronous remove (none currently
// do) can follow up with a flushing Upsert of another job.
func (s *FileStore) Remove(jobID domain.JobID) error {
	s.mu.Lock()
	delete(s.snapshots, jobID)
	s.dirty = true
	s.mu.Unlock()

	select {
	case s.dirtyCh <- struct{}{}:
	default:
	}
	return nil
}

func (s *FileStore) processLoop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.closeCh:
			return
		case <-s.dirtyCh:
			timer := time.NewTimer(s.coalesceDelay)
			select {
			case <-timer.C:
			case <-s.closeCh:
				timer.Stop()
				return
			}
			if err := s.writeWithRetry(); err != nil {
				s.log.Error("coalesced write abandoned", "error", err)
			}
		}
	}
}

// writeWithRetry drives writeNow through the backoff schedule. A write
// that still fails after the last attempt is a service-level fatal error:
// it is logged and the process exits non-zero, since continuing to accept
// mutations that can never become durable would silently lose them.
func (s *FileStore) writeWithRetry() error {
	delay := s.retryBaseDelay
	var err error
	for attempt := 1; attempt <= s.retryLimit; attempt++ {
		if err = s.writeNow(); err == nil {
			return nil
		}
		if attempt == s.retryLimit {
			break
		}
		s.log.Warn("store write failed, retrying", "attempt", attempt, "delay", delay.String(), "error", err)
		time.Sleep(delay)
		delay *= 2
	}

	s.log.Error("store write failed after retries, shutting down", "path", s.path, "error", err)
	s.fatal(err)
	return err
}

// writeNow rewrites the whole document via temp-file + atomic rename so a
// crash mid-write never leaves the live file corrupt. The dirty flag is
// cleared optimistically and restored on failure, so a retry after a
// failed write still has something to do.
func (s *FileStore) writeNow() error {
	s.mu.Lock()
	if !s.dirty {
		s.mu.Unlock()
		return nil
	}
	doc := document{SchemaVersion: schemaVersion, Jobs: make(map[domain.JobID]registry.JobSnapshot, len(s.snapshots))}
	for k, v := range s.snapshots {
		doc.Jobs[k] = v
	}
	s.dirty = false
	s.mu.Unlock()

	if err := s.writeDocument(doc); err != nil {
		s.mu.Lock()
		s.dirty = true
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *FileStore) writeDocument(doc document) error {
	data, err := json.MarshalIndent(doc, "", " ")
	if err != nil {
		return aerr.NewPersistenceError(s.path, "marshal", err)
	}

	dir := filepath.Dir(s.path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return aerr.NewPersistenceError(s.path, "mkdir", err)
		}
	}

	tmp, err := os.CreateTemp(dir, ".store-*.tmp")
	if err != nil {
		return aerr.NewPersistenceError(s.path, "create_temp", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return aerr.NewPersistenceError(s.path, "write_temp", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return aerr.NewPersistenceError(s.path, "fsync", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return aerr.NewPersistenceError(s.path, "close_temp", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return aerr.NewPersistenceError(s.path, "rename", err)
	}

	return nil
}

// Close stops the coalescing writer and performs a final synchronous
// flush of any unwritten state.
func (s *FileStore) Close() error {
	close(s.closeCh)
	s.wg.Wait()
	return s.writeWithRetry()
}
