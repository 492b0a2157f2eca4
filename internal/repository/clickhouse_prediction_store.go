package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"EthCast/internal/domain/models"
	"EthCast/internal/domain/repository"
	pkgch "EthCast/pkg/clickhouse"
	applogger "EthCast/pkg/logger"
)

// CHPredictionStore implements PredictionStore on ClickHouse. Validation is
// modeled as a row version: MarkValidated inserts the updated record into a
// ReplacingMergeTree keyed by updated_at and reads go through FINAL, so the
// store stays append-only on the wire while presenting one row per id.
type CHPredictionStore struct {
	ch    *pkgch.Client
	db    *sql.DB
	table string
	l     *applogger.Logger
}

// NewCHPredictionStore creates a ClickHouse-backed prediction store.
func NewCHPredictionStore(ch *pkgch.Client, table string, l *applogger.Logger) *CHPredictionStore {
	if table == "" {
		table = "predictions"
	}
	return &CHPredictionStore{ch: ch, db: ch.DB(), table: table, l: l.Named("prediction_store")}
}

const chPredDDL = `
CREATE TABLE IF NOT EXISTS %s (
    id String,
    cycle_id String,
    symbol String,
    created_at DateTime64(3, 'UTC'),
    target_time DateTime64(3, 'UTC'),
    horizon String,
    base_price Float64,
    forecast Float64,
    band_lower Float64,
    band_upper Float64,
    confidence String,
    condition String,
    weights String,
    model_points String,
    status String,
    validation String,
    updated_at DateTime64(3, 'UTC')
) ENGINE = ReplacingMergeTree(updated_at)
ORDER BY (symbol, created_at, id)
`

const chPredCols = "id, cycle_id, symbol, created_at, target_time, horizon, base_price, forecast, band_lower, band_upper, confidence, condition, weights, model_points, status, validation"

func (s *CHPredictionStore) Init(ctx context.Context) error {
	return s.ch.InitSchema(ctx, []string{fmt.Sprintf(chPredDDL, s.table)})
}

func (s *CHPredictionStore) Append(ctx context.Context, records []*models.PredictionRecord) error {
	if len(records) == 0 {
		return nil
	}
	for _, r := range records {
		if r.ID == "" {
			return fmt.Errorf("prediction record without id")
		}
	}
	if err := s.insertRecords(ctx, records); err != nil {
		return fmt.Errorf("append predictions: %w", err)
	}
	return nil
}

func (s *CHPredictionStore) ListPending(ctx context.Context, due time.Time) ([]*models.PredictionRecord, error) {
	q := fmt.Sprintf(
		"SELECT %s FROM %s FINAL WHERE status = ? AND target_time <= ? ORDER BY created_at ASC, id ASC",
		chPredCols, s.table,
	)
	return s.queryRecords(ctx, q, string(models.StatusPending), due.UTC())
}

func (s *CHPredictionStore) MarkValidated(ctx context.Context, id string, result *models.ValidationResult) error {
	q := fmt.Sprintf("SELECT %s FROM %s FINAL WHERE id = ? LIMIT 1", chPredCols, s.table)
	records, err := s.queryRecords(ctx, q, id)
	if err != nil {
		return fmt.Errorf("load prediction %s: %w", id, err)
	}
	if len(records) == 0 {
		return fmt.Errorf("prediction %s not found", id)
	}

	r := records[0]
	if r.Status == models.StatusValidated {
		return fmt.Errorf("prediction %s already validated", id)
	}

	r.Status = models.StatusValidated
	r.Validation = result
	if err := s.insertRecords(ctx, []*models.PredictionRecord{r}); err != nil {
		return fmt.Errorf("mark validated %s: %w", id, err)
	}
	return nil
}

func (s *CHPredictionStore) ListValidated(ctx context.Context, limit int) ([]*models.PredictionRecord, error) {
	return s.List(ctx, models.StatusValidated, "", limit)
}

func (s *CHPredictionStore) List(ctx context.Context, status models.PredictionStatus, horizon string, limit int) ([]*models.PredictionRecord, error) {
	q := fmt.Sprintf("SELECT %s FROM %s FINAL", chPredCols, s.table)

	var conds []string
	var args []interface{}
	if status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(status))
	}
	if horizon != "" {
		conds = append(conds, "horizon = ?")
		args = append(args, horizon)
	}
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY created_at DESC, id DESC"
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}

	return s.queryRecords(ctx, q, args...)
}

func (s *CHPredictionStore) Counts(ctx context.Context) (int, int, error) {
	q := fmt.Sprintf(
		"SELECT countIf(status = ?), countIf(status = ?) FROM %s FINAL",
		s.table,
	)
	var pending, validated uint64
	err := s.db.QueryRowContext(ctx, q, string(models.StatusPending), string(models.StatusValidated)).
		Scan(&pending, &validated)
	if err != nil {
		return 0, 0, fmt.Errorf("count predictions: %w", err)
	}
	return int(pending), int(validated), nil
}

func (s *CHPredictionStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *CHPredictionStore) Close() error {
	return nil // pool managed by pkg
}

// insertRecords writes one row version per record, multi-row VALUES like the
// rest of the ClickHouse writes here.
func (s *CHPredictionStore) insertRecords(ctx context.Context, records []*models.PredictionRecord) error {
	now := time.Now().UTC()

	values := make([]string, 0, len(records))
	args := make([]interface{}, 0, len(records)*17)
	for _, r := range records {
		values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
		args = append(args,
			r.ID,
			r.CycleID,
			r.Symbol,
			r.CreatedAt.UTC(),
			r.TargetTime.UTC(),
			r.Horizon,
			r.BasePrice,
			r.Forecast,
			r.Lower,
			r.Upper,
			string(r.Confidence),
			r.Condition,
			marshalField(r.Weights),
			marshalField(r.Models),
			string(r.Status),
			marshalField(r.Validation),
			now,
		)
	}

	q := fmt.Sprintf(
		"INSERT INTO %s (%s, updated_at) VALUES %s",
		s.table, chPredCols, strings.Join(values, ","),
	)
	_, err := s.db.ExecContext(ctx, q, args...)
	return err
}

func (s *CHPredictionStore) queryRecords(ctx context.Context, q string, args ...interface{}) ([]*models.PredictionRecord, error) {
	start := time.Now()
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		s.l.Error("clickhouse prediction query error", applogger.Error(err))
		return nil, fmt.Errorf("query predictions: %w", err)
	}
	defer rows.Close()

	out := make([]*models.PredictionRecord, 0)
	for rows.Next() {
		r, err := scanPrediction(rows)
		if err != nil {
			s.l.Error("clickhouse prediction scan error", applogger.Error(err))
			return nil, fmt.Errorf("scan prediction: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}

	s.l.Debug("clickhouse predictions read",
		applogger.Int("rows", len(out)),
		applogger.Duration("duration_ms", time.Since(start)))
	return out, nil
}

func scanPrediction(rows *sql.Rows) (*models.PredictionRecord, error) {
	var (
		r                           models.PredictionRecord
		confidence, status          string
		weights, points, validation string
	)
	if err := rows.Scan(
		&r.ID, &r.CycleID, &r.Symbol, &r.CreatedAt, &r.TargetTime, &r.Horizon,
		&r.BasePrice, &r.Forecast, &r.Lower, &r.Upper,
		&confidence, &r.Condition, &weights, &points, &status, &validation,
	); err != nil {
		return nil, err
	}

	r.CreatedAt = r.CreatedAt.UTC()
	r.TargetTime = r.TargetTime.UTC()
	r.Confidence = models.ConfidenceLabel(confidence)
	r.Status = models.PredictionStatus(status)

	if err := unmarshalField(weights, &r.Weights); err != nil {
		return nil, fmt.Errorf("weights: %w", err)
	}
	if err := unmarshalField(points, &r.Models); err != nil {
		return nil, fmt.Errorf("model_points: %w", err)
	}
	if validation != "" {
		r.Validation = &models.ValidationResult{}
		if err := json.Unmarshal([]byte(validation), r.Validation); err != nil {
			return nil, fmt.Errorf("validation: %w", err)
		}
	}
	return &r, nil
}

// marshalField stores optional structured fields as JSON text columns; nil
// becomes the empty string.
func marshalField(v interface{}) string {
	switch x := v.(type) {
	case map[string]float64:
		if len(x) == 0 {
			return ""
		}
	case *models.ValidationResult:
		if x == nil {
			return ""
		}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}

func unmarshalField(s string, dest interface{}) error {
	if s == "" {
		return nil
	}
	return json.Unmarshal([]byte(s), dest)
}

var _ repository.PredictionStore = (*CHPredictionStore)(nil)
