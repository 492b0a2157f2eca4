package repository

import (
	"context"

	"EthCast/internal/domain/models"
	"EthCast/internal/domain/repository"
	pkgkafka "EthCast/pkg/kafka"
	applogger "EthCast/pkg/logger"
)

// KafkaReportPublisher implements ReportPublisher over a Kafka topic.
// Messages are keyed by symbol so a hash balancer keeps per-symbol order.
type KafkaReportPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

// NewKafkaReportPublisher creates a Kafka report publisher.
func NewKafkaReportPublisher(producer *pkgkafka.Producer, topic string) repository.ReportPublisher {
	return &KafkaReportPublisher{producer: producer, topic: topic}
}

func (p *KafkaReportPublisher) Publish(ctx context.Context, report *models.CycleReport) error {
	return p.producer.Publish(ctx, p.topic, []byte(report.Symbol), report)
}

func (p *KafkaReportPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

// LogReportPublisher implements ReportPublisher by logging a report summary.
// It is the sink when Kafka is disabled, so a cycle always lands somewhere
// visible.
type LogReportPublisher struct {
	l *applogger.Logger
}

// NewLogReportPublisher creates a log-backed report publisher.
func NewLogReportPublisher(l *applogger.Logger) repository.ReportPublisher {
	return &LogReportPublisher{l: l.Named("report")}
}

func (p *LogReportPublisher) Publish(ctx context.Context, report *models.CycleReport) error {
	fields := []applogger.Field{
		applogger.String("cycle_id", report.CycleID),
		applogger.String("symbol", report.Symbol),
		applogger.Float64("price", report.CurrentPrice),
		applogger.Int("horizons", len(report.Predictions)),
		applogger.String("action", string(report.Signal.Action)),
		applogger.String("trend", string(report.Trend.Label)),
		applogger.String("retrain", string(report.Retrain)),
	}
	if report.Accuracy != nil {
		fields = append(fields, applogger.Float64("rolling_accuracy", report.Accuracy.RollingAccuracy))
	}
	p.l.Info("cycle report", fields...)
	return nil
}

func (p *LogReportPublisher) Close() error {
	return nil
}
