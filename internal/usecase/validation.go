package usecase

import (
	"context"
	"fmt"
	"time"

	"EthCast/internal/domain/models"
	domsvc "EthCast/internal/domain/service"
	applogger "EthCast/pkg/logger"
)

// RunValidation runs a standalone validation pass over due predictions. It
// takes the cycle lock so it never races a concurrent cycle over the store.
func (f *Forecaster) RunValidation(ctx context.Context) (*domsvc.ValidationReport, error) {
	ok, err := f.locker.TryLock(ctx, cycleLockKey, f.cfg.Scheduler.LockTTL)
	if err != nil {
		return nil, fmt.Errorf("acquire cycle lock: %w", err)
	}
	if !ok {
		return nil, ErrCycleInProgress
	}
	defer func() {
		if err := f.locker.Unlock(context.Background(), cycleLockKey); err != nil {
			f.log.Warn("release cycle lock", applogger.Error(err))
		}
	}()

	candles, err := f.candles.RecentCandles(ctx, f.symbol, f.interval, f.cfg.Market.CandleCount)
	if err != nil {
		return nil, fmt.Errorf("fetch candles: %w", err)
	}
	return f.validatePass(ctx, time.Now().UTC(), candles)
}

func (f *Forecaster) validatePass(ctx context.Context, now time.Time, candles []models.Candle) (*domsvc.ValidationReport, error) {
	input := &domsvc.ValidationInput{
		Now:      now,
		Candles:  candles,
		Interval: f.interval.Duration(),
	}
	if f.ticks != nil {
		input.LatestTick = f.ticks.Fresh(now, f.cfg.Accuracy.PriceTolerance)
	}
	return f.tracker.Validate(ctx, input)
}
