package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"EthCast/internal/domain/models"
)

func TestReporterLatestWithoutCycle(t *testing.T) {
	h := newHarness(t)

	_, err := h.reporter.Latest(context.Background())
	assert.ErrorIs(t, err, ErrNoReport)
}

func TestDistributeSurvivesPublisherFailure(t *testing.T) {
	h := newHarness(t)
	h.publisher.err = errors.New("broker unreachable")
	ctx := context.Background()

	report := &models.CycleReport{CycleID: "c-1", Symbol: "ETHUSDT", CurrentPrice: 3100}
	h.reporter.Distribute(ctx, report)

	// The cached snapshot is independent of the publisher outcome.
	cached, err := h.reporter.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, "c-1", cached.CycleID)
	assert.InDelta(t, 3100.0, cached.CurrentPrice, 1e-9)
}
