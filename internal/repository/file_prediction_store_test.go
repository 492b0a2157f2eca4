package repository

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"EthCast/internal/domain/models"
	"EthCast/pkg/logger"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	l, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "stdout"})
	require.NoError(t, err)
	return l
}

func testRecord(id string, created time.Time, horizon string) *models.PredictionRecord {
	return &models.PredictionRecord{
		ID:         id,
		CycleID:    "cycle-" + id,
		Symbol:     "ETHUSDT",
		CreatedAt:  created,
		TargetTime: created.Add(time.Hour),
		Horizon:    horizon,
		BasePrice:  3000,
		Forecast:   3050,
		Lower:      3010,
		Upper:      3090,
		Confidence: models.ConfidenceHigh,
		Weights:    map[string]float64{"linear": 0.3, "random_forest": 0.7},
		Models:     map[string]float64{"linear": 3040, "random_forest": 3055},
		Status:     models.StatusPending,
	}
}

func openStore(t *testing.T, path string) *FilePredictionStore {
	t.Helper()
	s := NewFilePredictionStore(path, testLogger(t))
	require.NoError(t, s.Init(context.Background()))
	return s
}

func TestFileStoreAppendAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "history.json")
	ctx := context.Background()

	base := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	s := openStore(t, path)
	require.NoError(t, s.Append(ctx, []*models.PredictionRecord{
		testRecord("p1", base, "1h"),
		testRecord("p2", base, "4h"),
	}))

	// A fresh store instance must read the same history back off disk.
	s2 := openStore(t, path)
	pending, validated, err := s2.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, pending)
	assert.Equal(t, 0, validated)

	records, err := s2.List(ctx, "", "", 0)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, map[string]float64{"linear": 0.3, "random_forest": 0.7}, records[0].Weights)
	assert.True(t, records[0].CreatedAt.Equal(base))
}

func TestFileStoreAppendRejectsDuplicateID(t *testing.T) {
	s := openStore(t, filepath.Join(t.TempDir(), "history.json"))
	ctx := context.Background()
	base := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.Append(ctx, []*models.PredictionRecord{testRecord("p1", base, "1h")}))
	err := s.Append(ctx, []*models.PredictionRecord{testRecord("p1", base, "1h")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate prediction id")

	// The failed batch must not have been partially applied.
	pending, _, err := s.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, pending)
}

func TestFileStoreListPendingByDueTime(t *testing.T) {
	s := openStore(t, filepath.Join(t.TempDir(), "history.json"))
	ctx := context.Background()
	base := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)

	early := testRecord("early", base, "1h") // target base+1h
	late := testRecord("late", base, "4h")
	late.TargetTime = base.Add(4 * time.Hour)
	require.NoError(t, s.Append(ctx, []*models.PredictionRecord{early, late}))

	due, err := s.ListPending(ctx, base.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "early", due[0].ID)

	due, err = s.ListPending(ctx, base.Add(5*time.Hour))
	require.NoError(t, err)
	assert.Len(t, due, 2)
}

func TestFileStoreMarkValidated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.json")
	s := openStore(t, path)
	ctx := context.Background()
	base := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.Append(ctx, []*models.PredictionRecord{testRecord("p1", base, "1h")}))

	result := &models.ValidationResult{
		ValidatedAt:      base.Add(time.Hour),
		Realized:         3060,
		SignedError:      -10,
		AbsError:         10,
		PctError:         0.3268,
		DirectionCorrect: true,
	}
	require.NoError(t, s.MarkValidated(ctx, "p1", result))

	validated, err := s.ListValidated(ctx, 0)
	require.NoError(t, err)
	require.Len(t, validated, 1)
	assert.Equal(t, models.StatusValidated, validated[0].Status)
	require.NotNil(t, validated[0].Validation)
	assert.InDelta(t, -10.0, validated[0].Validation.SignedError, 1e-12)

	// VALIDATED is terminal.
	err = s.MarkValidated(ctx, "p1", result)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already validated")

	err = s.MarkValidated(ctx, "ghost", result)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")

	// The validation must survive a reload.
	s2 := openStore(t, path)
	validated, err = s2.ListValidated(ctx, 0)
	require.NoError(t, err)
	require.Len(t, validated, 1)
	assert.True(t, validated[0].Validation.DirectionCorrect)
}

func TestFileStoreListFiltersAndOrder(t *testing.T) {
	s := openStore(t, filepath.Join(t.TempDir(), "history.json"))
	ctx := context.Background()
	base := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)

	var batch []*models.PredictionRecord
	for i := 0; i < 4; i++ {
		horizon := "1h"
		if i%2 == 1 {
			horizon = "4h"
		}
		r := testRecord(string(rune('a'+i)), base.Add(time.Duration(i)*15*time.Minute), horizon)
		batch = append(batch, r)
	}
	require.NoError(t, s.Append(ctx, batch))
	require.NoError(t, s.MarkValidated(ctx, "a", &models.ValidationResult{Realized: 3060}))

	// Newest first.
	all, err := s.List(ctx, "", "", 0)
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "d", all[0].ID)
	assert.Equal(t, "a", all[3].ID)

	pending, err := s.List(ctx, models.StatusPending, "", 0)
	require.NoError(t, err)
	assert.Len(t, pending, 3)

	fourHour, err := s.List(ctx, "", "4h", 0)
	require.NoError(t, err)
	require.Len(t, fourHour, 2)
	assert.Equal(t, "d", fourHour[0].ID)

	limited, err := s.List(ctx, "", "", 2)
	require.NoError(t, err)
	require.Len(t, limited, 2)
	assert.Equal(t, "d", limited[0].ID)
	assert.Equal(t, "c", limited[1].ID)
}

func TestFileStoreReturnsSnapshots(t *testing.T) {
	s := openStore(t, filepath.Join(t.TempDir(), "history.json"))
	ctx := context.Background()
	base := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.Append(ctx, []*models.PredictionRecord{testRecord("p1", base, "1h")}))

	got, err := s.List(ctx, "", "", 0)
	require.NoError(t, err)
	got[0].Forecast = -1
	got[0].Weights["linear"] = 99

	again, err := s.List(ctx, "", "", 0)
	require.NoError(t, err)
	assert.InDelta(t, 3050.0, again[0].Forecast, 1e-12)
	assert.InDelta(t, 0.3, again[0].Weights["linear"], 1e-12)
}

func TestFileStoreEmptyAndMissingFile(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	// Zero-byte file, e.g. from an interrupted first run.
	empty := filepath.Join(dir, "empty.json")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))
	s := openStore(t, empty)
	pending, validated, err := s.Counts(ctx)
	require.NoError(t, err)
	assert.Zero(t, pending)
	assert.Zero(t, validated)

	// Corrupt file must fail Init loudly rather than silently start over.
	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{not json"), 0o644))
	sBad := NewFilePredictionStore(bad, testLogger(t))
	require.Error(t, sBad.Init(ctx))
}
