package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	kafka "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"EthCast/internal/domain/models"
	pkgkafka "EthCast/pkg/kafka"
	"EthCast/pkg/logger"
)

type stubArchive struct {
	mu      sync.Mutex
	reports []*models.CycleReport
	err     error
}

func (s *stubArchive) Init(context.Context) error { return nil }

func (s *stubArchive) Store(_ context.Context, report *models.CycleReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.reports = append(s.reports, report)
	return nil
}

func (s *stubArchive) Recent(context.Context, int) ([]*models.CycleReport, error) {
	return s.reports, nil
}

func (s *stubArchive) Close() error { return nil }

func newTestArchiver(t *testing.T, archive *stubArchive) *ReportArchiver {
	t.Helper()
	log, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "stdout"})
	require.NoError(t, err)
	return NewReportArchiver("ethcast.reports", archive, log)
}

func TestArchiverStoresReport(t *testing.T) {
	archive := &stubArchive{}
	a := newTestArchiver(t, archive)

	assert.Equal(t, "ethcast.reports", a.Topic())

	payload, err := json.Marshal(&models.CycleReport{
		CycleID:     "c-1",
		GeneratedAt: time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC),
		Symbol:      "ETHUSDT",
	})
	require.NoError(t, err)

	require.NoError(t, a.Handle(context.Background(), payload))
	require.Len(t, archive.reports, 1)
	assert.Equal(t, "c-1", archive.reports[0].CycleID)
}

func TestArchiverRejectsBadPayloads(t *testing.T) {
	a := newTestArchiver(t, &stubArchive{})

	err := a.Handle(context.Background(), []byte("{truncated"))
	require.Error(t, err)

	// Valid JSON but not a report.
	err = a.Handle(context.Background(), []byte(`{"foo":"bar"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle_id")
}

func TestArchiverPropagatesStoreErrors(t *testing.T) {
	archive := &stubArchive{err: errors.New("archive down")}
	a := newTestArchiver(t, archive)

	payload, err := json.Marshal(&models.CycleReport{CycleID: "c-1", Symbol: "ETHUSDT"})
	require.NoError(t, err)

	err = a.Handle(context.Background(), payload)
	require.Error(t, err)
}

func TestArchiverHookFailsGarbageFast(t *testing.T) {
	a := newTestArchiver(t, &stubArchive{})
	hook := a.Hook()
	ctx := context.Background()

	_, _, _, err := hook.BeforeHandle(ctx, a.Topic(), kafka.Message{}, []byte("not json"))
	require.Error(t, err)

	var hookErr *pkgkafka.HookError
	require.ErrorAs(t, err, &hookErr)
	assert.Equal(t, "ERR_DECODE", hookErr.Code)

	// Well-formed payloads pass through untouched.
	data := []byte(`{"cycle_id":"c-1"}`)
	_, _, out, err := hook.BeforeHandle(ctx, a.Topic(), kafka.Message{}, data)
	require.NoError(t, err)
	assert.Equal(t, data, out)
}
