package usecase

import (
	"context"
	"encoding/json"
	"fmt"

	kafka "github.com/segmentio/kafka-go"

	"EthCast/internal/domain/models"
	"EthCast/internal/domain/repository"
	pkgkafka "EthCast/pkg/kafka"
	applogger "EthCast/pkg/logger"
)

// ReportArchiver consumes the published report stream into the durable
// archive. It implements kafka.MessageHandler and is registered with the
// consumer only when archiving is enabled.
type ReportArchiver struct {
	topic   string
	archive repository.ReportArchive
	log     *applogger.Logger
}

var _ pkgkafka.MessageHandler = (*ReportArchiver)(nil)

func NewReportArchiver(topic string, archive repository.ReportArchive, log *applogger.Logger) *ReportArchiver {
	return &ReportArchiver{
		topic:   topic,
		archive: archive,
		log:     log.Named("archiver"),
	}
}

func (a *ReportArchiver) Topic() string { return a.topic }

func (a *ReportArchiver) Handle(ctx context.Context, data []byte) error {
	var report models.CycleReport
	if err := json.Unmarshal(data, &report); err != nil {
		return fmt.Errorf("parse report: %w", err)
	}
	if report.CycleID == "" {
		return fmt.Errorf("report missing cycle_id")
	}
	if err := a.archive.Store(ctx, &report); err != nil {
		return fmt.Errorf("archive report: %w", err)
	}
	a.log.Debug("report archived",
		applogger.String("cycle_id", report.CycleID),
		applogger.String("symbol", report.Symbol))
	return nil
}

// Hook assembles the consumer lifecycle hooks for the archive stream: a
// decode gate that fails malformed payloads straight to the DLQ without
// burning retries, and error logging with the stream position.
func (a *ReportArchiver) Hook() pkgkafka.ConsumerHook {
	decode := pkgkafka.HookFuncs{
		Before: func(ctx context.Context, topic string, km kafka.Message, data []byte) (context.Context, kafka.Message, []byte, error) {
			if !json.Valid(data) {
				return ctx, km, data, &pkgkafka.HookError{
					Code: "ERR_DECODE",
					Err:  fmt.Errorf("payload is not valid JSON"),
				}
			}
			return ctx, km, data, nil
		},
	}
	logging := pkgkafka.HookFuncs{
		Err: func(ctx context.Context, topic string, km kafka.Message, data []byte, err error) {
			a.log.Warn("archive stream error",
				applogger.String("topic", topic),
				applogger.Int("partition", km.Partition),
				applogger.Int64("offset", km.Offset),
				applogger.Error(err))
		},
	}
	return pkgkafka.NewHookChain(decode, logging)
}
