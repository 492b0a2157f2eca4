package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"EthCast/internal/domain/models"
	"EthCast/internal/domain/repository"
	applogger "EthCast/pkg/logger"
)

// FilePredictionStore implements PredictionStore on a single JSON file, the
// format the prediction history has always lived in. The full history is held
// in memory and flushed atomically (temp file + rename) on every mutation, so
// a crash mid-write never truncates the file.
type FilePredictionStore struct {
	path string
	l    *applogger.Logger

	mu      sync.RWMutex
	records []*models.PredictionRecord
	byID    map[string]*models.PredictionRecord
}

// NewFilePredictionStore creates a file-backed prediction store.
func NewFilePredictionStore(path string, l *applogger.Logger) *FilePredictionStore {
	return &FilePredictionStore{
		path: path,
		l:    l.Named("prediction_store"),
		byID: make(map[string]*models.PredictionRecord),
	}
}

// Init loads the history file, creating its directory if needed. A missing
// file is an empty history, not an error.
func (s *FilePredictionStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create history dir: %w", err)
		}
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.records = make([]*models.PredictionRecord, 0)
			return nil
		}
		return fmt.Errorf("read history: %w", err)
	}

	if len(data) == 0 {
		s.records = make([]*models.PredictionRecord, 0)
		return nil
	}

	var records []*models.PredictionRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return fmt.Errorf("parse history %s: %w", s.path, err)
	}

	s.records = records
	for _, r := range records {
		s.byID[r.ID] = r
	}

	s.l.Info("prediction history loaded",
		applogger.String("path", s.path),
		applogger.Int("records", len(records)))
	return nil
}

// Append adds new PENDING records and persists the file.
func (s *FilePredictionStore) Append(ctx context.Context, records []*models.PredictionRecord) error {
	if len(records) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range records {
		if r.ID == "" {
			return fmt.Errorf("prediction record without id")
		}
		if _, exists := s.byID[r.ID]; exists {
			return fmt.Errorf("duplicate prediction id %s", r.ID)
		}
	}
	for _, r := range records {
		c := cloneRecord(r)
		s.records = append(s.records, c)
		s.byID[c.ID] = c
	}

	return s.persistLocked()
}

// ListPending returns snapshots of PENDING records whose target time has
// passed, oldest first.
func (s *FilePredictionStore) ListPending(ctx context.Context, due time.Time) ([]*models.PredictionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.PredictionRecord, 0)
	for _, r := range s.records {
		if r.Status == models.StatusPending && !r.TargetTime.After(due) {
			out = append(out, cloneRecord(r))
		}
	}
	return out, nil
}

// MarkValidated attaches a realized outcome to a PENDING record. Validating
// an unknown or already validated record is an error; VALIDATED is terminal.
func (s *FilePredictionStore) MarkValidated(ctx context.Context, id string, result *models.ValidationResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.byID[id]
	if !ok {
		return fmt.Errorf("prediction %s not found", id)
	}
	if r.Status == models.StatusValidated {
		return fmt.Errorf("prediction %s already validated", id)
	}

	r.Status = models.StatusValidated
	r.Validation = result
	return s.persistLocked()
}

// ListValidated returns snapshots of VALIDATED records, newest first.
// limit <= 0 returns all.
func (s *FilePredictionStore) ListValidated(ctx context.Context, limit int) ([]*models.PredictionRecord, error) {
	return s.List(ctx, models.StatusValidated, "", limit)
}

// List filters by status and horizon (either may be empty for "any"),
// newest first. limit <= 0 returns all.
func (s *FilePredictionStore) List(ctx context.Context, status models.PredictionStatus, horizon string, limit int) ([]*models.PredictionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.PredictionRecord, 0)
	for _, r := range s.records {
		if status != "" && r.Status != status {
			continue
		}
		if horizon != "" && r.Horizon != horizon {
			continue
		}
		out = append(out, cloneRecord(r))
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Counts reports pending and validated totals.
func (s *FilePredictionStore) Counts(ctx context.Context) (int, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var pending, validated int
	for _, r := range s.records {
		switch r.Status {
		case models.StatusPending:
			pending++
		case models.StatusValidated:
			validated++
		}
	}
	return pending, validated, nil
}

// Health checks that the history directory is reachable.
func (s *FilePredictionStore) Health(ctx context.Context) error {
	_, err := os.Stat(filepath.Dir(s.path))
	return err
}

// Close is a no-op; every mutation already persisted.
func (s *FilePredictionStore) Close() error {
	return nil
}

// persistLocked writes the whole history atomically. Caller holds the lock.
func (s *FilePredictionStore) persistLocked() error {
	data, err := json.MarshalIndent(s.records, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write history: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace history: %w", err)
	}

	s.l.Debug("prediction history persisted",
		applogger.Int("records", len(s.records)),
		applogger.Int("bytes", len(data)))
	return nil
}

// cloneRecord copies a record and its maps so callers never share mutable
// state with the store.
func cloneRecord(r *models.PredictionRecord) *models.PredictionRecord {
	c := *r
	if r.Weights != nil {
		c.Weights = make(map[string]float64, len(r.Weights))
		for k, v := range r.Weights {
			c.Weights[k] = v
		}
	}
	if r.Models != nil {
		c.Models = make(map[string]float64, len(r.Models))
		for k, v := range r.Models {
			c.Models[k] = v
		}
	}
	if r.Validation != nil {
		v := *r.Validation
		if r.Validation.ModelOutcomes != nil {
			v.ModelOutcomes = make(map[string]models.ModelOutcome, len(r.Validation.ModelOutcomes))
			for k, o := range r.Validation.ModelOutcomes {
				v.ModelOutcomes[k] = o
			}
		}
		c.Validation = &v
	}
	return &c
}

var _ repository.PredictionStore = (*FilePredictionStore)(nil)
