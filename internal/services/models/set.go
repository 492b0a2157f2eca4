package models

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	dommodels "EthCast/internal/domain/models"
	"EthCast/internal/domain/repository"
	domsvc "EthCast/internal/domain/service"
	"EthCast/pkg/config"
	"EthCast/pkg/logger"
)

// Set fits every registered regressor against one shared training set and
// collects their per-horizon forecasts. A model that fails to fit is
// excluded from the cycle rather than failing it; only all models failing
// is an error.
type Set struct {
	regressors []domsvc.Regressor
	log        *logger.Logger
	metrics    repository.Metrics
	parallel   bool
	fitTimeout time.Duration
}

var _ domsvc.ModelSet = (*Set)(nil)

func NewSet(cfg *config.Config, log *logger.Logger, metrics repository.Metrics, regressors ...domsvc.Regressor) *Set {
	return &Set{
		regressors: regressors,
		log:        log.Named("model-set"),
		metrics:    metrics,
		parallel:   cfg.Forecast.ParallelFit,
		fitTimeout: cfg.Forecast.FitTimeout,
	}
}

func (s *Set) Run(ctx context.Context, set *domsvc.TrainingSet) (*domsvc.ModelRun, error) {
	if len(s.regressors) == 0 {
		return nil, fmt.Errorf("no regressors configured")
	}
	if s.fitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.fitTimeout)
		defer cancel()
	}

	run := &domsvc.ModelRun{
		Forecasts: make(map[dommodels.Horizon][]dommodels.ModelForecast, len(set.Horizons)),
		Scores:    make(map[string]float64, len(s.regressors)),
		Excluded:  make(map[string]error),
	}

	var mu sync.Mutex
	fit := func(r domsvc.Regressor) {
		start := time.Now()
		err := r.Fit(ctx, set)
		elapsed := time.Since(start).Seconds()

		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			run.Excluded[r.Name()] = err
			s.metrics.RecordModelFit(r.Name(), elapsed, 0)
			s.log.Warn("model excluded from cycle",
				logger.String("model", r.Name()),
				logger.Error(err))
			return
		}
		run.Scores[r.Name()] = r.Score()
		s.metrics.RecordModelFit(r.Name(), elapsed, r.Score())
		s.log.Debug("model fitted",
			logger.String("model", r.Name()),
			logger.Float64("score", r.Score()),
			logger.Float64("seconds", elapsed))
	}

	if s.parallel {
		var wg sync.WaitGroup
		for _, r := range s.regressors {
			wg.Add(1)
			go func(r domsvc.Regressor) {
				defer wg.Done()
				fit(r)
			}(r)
		}
		wg.Wait()
	} else {
		for _, r := range s.regressors {
			fit(r)
		}
	}

	if len(run.Scores) == 0 {
		names := make([]string, 0, len(run.Excluded))
		for name := range run.Excluded {
			names = append(names, name)
		}
		sort.Strings(names)
		return nil, fmt.Errorf("all models failed to fit: %s", strings.Join(names, ", "))
	}

	for _, horizon := range set.Horizons {
		steps := horizon.Steps(set.Interval)
		for _, r := range s.regressors {
			score, ok := run.Scores[r.Name()]
			if !ok {
				continue
			}
			point, err := r.Forecast(steps)
			if err != nil {
				s.log.Warn("model forecast failed",
					logger.String("model", r.Name()),
					logger.String("horizon", horizon.Label()),
					logger.Error(err))
				continue
			}
			run.Forecasts[horizon] = append(run.Forecasts[horizon], dommodels.ModelForecast{
				Model:   r.Name(),
				Horizon: horizon,
				Point:   point,
				Score:   score,
			})
		}
	}
	return run, nil
}
