package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"EthCast/internal/domain/models"
	"EthCast/internal/domain/repository"
	pkgch "EthCast/pkg/clickhouse"
	applogger "EthCast/pkg/logger"
)

// CHReportArchive implements ReportArchive on ClickHouse. Reports are stored
// whole as JSON payloads; the columns outside the payload exist for ordering
// and symbol filtering, nothing queries into the document itself.
type CHReportArchive struct {
	ch    *pkgch.Client
	db    *sql.DB
	table string
	l     *applogger.Logger
}

// NewCHReportArchive creates a ClickHouse-backed report archive.
func NewCHReportArchive(ch *pkgch.Client, table string, l *applogger.Logger) *CHReportArchive {
	if table == "" {
		table = "cycle_reports"
	}
	return &CHReportArchive{ch: ch, db: ch.DB(), table: table, l: l.Named("report_archive")}
}

const chReportDDL = `
CREATE TABLE IF NOT EXISTS %s (
    cycle_id String,
    symbol String,
    generated_at DateTime64(3, 'UTC'),
    payload String
) ENGINE = MergeTree
ORDER BY (symbol, generated_at)
`

func (a *CHReportArchive) Init(ctx context.Context) error {
	return a.ch.InitSchema(ctx, []string{fmt.Sprintf(chReportDDL, a.table)})
}

func (a *CHReportArchive) Store(ctx context.Context, report *models.CycleReport) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	q := fmt.Sprintf("INSERT INTO %s (cycle_id, symbol, generated_at, payload) VALUES (?, ?, ?, ?)", a.table)
	if _, err := a.db.ExecContext(ctx, q,
		report.CycleID,
		report.Symbol,
		report.GeneratedAt.UTC(),
		string(payload),
	); err != nil {
		return fmt.Errorf("store report: %w", err)
	}

	a.l.Debug("report archived",
		applogger.String("cycle_id", report.CycleID),
		applogger.Int("bytes", len(payload)))
	return nil
}

func (a *CHReportArchive) Recent(ctx context.Context, limit int) ([]*models.CycleReport, error) {
	if limit <= 0 {
		limit = 10
	}

	q := fmt.Sprintf("SELECT payload FROM %s ORDER BY generated_at DESC LIMIT ?", a.table)
	rows, err := a.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("query reports: %w", err)
	}
	defer rows.Close()

	out := make([]*models.CycleReport, 0, limit)
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		var report models.CycleReport
		if err := json.Unmarshal([]byte(payload), &report); err != nil {
			return nil, fmt.Errorf("parse report payload: %w", err)
		}
		out = append(out, &report)
	}
	return out, rows.Err()
}

func (a *CHReportArchive) Close() error {
	return nil // pool managed by pkg
}

var _ repository.ReportArchive = (*CHReportArchive)(nil)
