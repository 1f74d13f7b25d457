// Package storage persists inventory reports in bbolt so past runs can be
// listed and re-rendered without re-collecting.
package storage

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/btree"
	"go.etcd.io/bbolt"

	"github.com/yairfalse/kera/report"
)

// Bucket names in bbolt
var (
	bucketReports = []byte("reports")
	bucketRuns    = []byte("runs")
)

// RunMeta is the index entry kept per stored report.
type RunMeta struct {
	RunID     string        `json:"run_id"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Resources int           `json:"resources"`
	Units     int           `json:"units"`
	Failed    int           `json:"failed"`
}

// ReportStore is a bbolt-backed report archive with an in-memory index
// ordered by start time for fast listing.
type ReportStore struct {
	mu    sync.RWMutex
	index *btree.BTreeG[RunMeta]
	db    *bbolt.DB
}

// NewReportStore opens (or creates) the store under dir and loads the
// run index from disk.
func NewReportStore(dir string) (*ReportStore, error) {
	dbPath := filepath.Join(dir, "kera.db")

	db, err := bbolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, bucket := range [][]byte{bucketReports, bucketRuns} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	store := &ReportStore{
		db: db,
		index: btree.NewG[RunMeta](32, func(a, b RunMeta) bool {
			if !a.StartedAt.Equal(b.StartedAt) {
				return a.StartedAt.Before(b.StartedAt)
			}
			return a.RunID < b.RunID
		}),
	}
	if err := store.loadIndex(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *ReportStore) loadIndex() error {
	return s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketRuns).ForEach(func(_, value []byte) error {
			var meta RunMeta
			if err := json.Unmarshal(value, &meta); err != nil {
				return fmt.Errorf("corrupt run index entry: %w", err)
			}
			s.index.ReplaceOrInsert(meta)
			return nil
		})
	})
}

// Save stores one report and indexes its run.
func (s *ReportStore) Save(rpt *report.InventoryReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	meta := RunMeta{
		RunID:     rpt.RunID,
		StartedAt: rpt.StartedAt,
		Duration:  rpt.Duration,
		Resources: rpt.Summary.Resources,
		Units:     rpt.Summary.Units,
		Failed:    rpt.Summary.Failed + rpt.Summary.Timeout,
	}

	reportJSON, err := json.Marshal(rpt)
	if err != nil {
		return fmt.Errorf("failed to marshal report %s: %w", rpt.RunID, err)
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to marshal run meta %s: %w", rpt.RunID, err)
	}

	err = s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(bucketReports).Put([]byte(rpt.RunID), reportJSON); err != nil {
			return err
		}
		return tx.Bucket(bucketRuns).Put(runKey(meta), metaJSON)
	})
	if err != nil {
		return fmt.Errorf("failed to store report %s: %w", rpt.RunID, err)
	}

	s.index.ReplaceOrInsert(meta)
	return nil
}

// List returns up to limit runs, newest first. limit <= 0 means all.
func (s *ReportStore) List(limit int) []RunMeta {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var runs []RunMeta
	s.index.Descend(func(meta RunMeta) bool {
		runs = append(runs, meta)
		return limit <= 0 || len(runs) < limit
	})
	return runs
}

// Get loads one stored report by run ID.
func (s *ReportStore) Get(runID string) (*report.InventoryReport, error) {
	var raw []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		value := tx.Bucket(bucketReports).Get([]byte(runID))
		if value == nil {
			return fmt.Errorf("report %s not found", runID)
		}
		raw = make([]byte, len(value))
		copy(raw, value)
		return nil
	})
	if err != nil {
		return nil, err
	}

	var rpt report.InventoryReport
	if err := json.Unmarshal(raw, &rpt); err != nil {
		return nil, fmt.Errorf("corrupt report %s: %w", runID, err)
	}
	return &rpt, nil
}

// Close closes the underlying database.
func (s *ReportStore) Close() error {
	return s.db.Close()
}

// runKey orders the runs bucket chronologically on disk.
func runKey(meta RunMeta) []byte {
	return []byte(meta.StartedAt.UTC().Format(time.RFC3339Nano) + "/" + meta.RunID)
}
