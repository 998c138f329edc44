package report

import (
	"context"
	"errors"
	"log/slog"

	"github.com/IBM/sarama"
	"github.com/bytedance/sonic"
	"github.com/lucasjahn/simplyOrg-connector/internal/config"
	"github.com/lucasjahn/simplyOrg-connector/internal/domain"
	"github.com/lucasjahn/simplyOrg-connector/internal/metrics"
)

// Producer publishes finished sync reports to Kafka for downstream
// consumers (dashboards, alerting). Publishing is fire-and-forget from the
// sync pass's point of view.
type Producer struct {
	producer sarama.AsyncProducer
	log      *slog.Logger
	topic    string
}

func NewProducer(cfg config.Kafka, log *slog.Logger) (*Producer, error) {
	if len(cfg.Brokers) == 0 {
		err := errors.New("kafka brokers list is empty")
		log.Error("invalid configuration", slog.String("error", err.Error()))
		return nil, err
	}
	if cfg.ReportTopic == "" {
		err := errors.New("kafka report topic is empty")
		log.Error("invalid configuration", slog.String("error", err.Error()))
		return nil, err
	}

	version, err := sarama.ParseKafkaVersion(cfg.Version)
	if err != nil {
		log.Error("error parsing kafka version", slog.Any("error", err))
		return nil, err
	}

	kafkaConfig := createSaramaConfig(version)
	producer, err := sarama.NewAsyncProducer(cfg.Brokers, kafkaConfig)
	if err != nil {
		log.Error("failed to create kafka producer", slog.Any("error", err))
		return nil, err
	}

	// both channels must be drained or the producer stalls; they close on Close()
	go func() {
		for range producer.Successes() {
		}
	}()
	go func() {
		for perr := range producer.Errors() {
			log.Error("failed to publish sync report", slog.Any("error", perr.Err))
		}
	}()

	return &Producer{
		producer: producer,
		log:      log,
		topic:    cfg.ReportTopic,
	}, nil
}

func (p *Producer) Publish(ctx context.Context, report domain.SyncReport) error {
	payload, err := sonic.Marshal(report)
	if err != nil {
		p.log.Error("failed to encode sync report", slog.Any("error", err))
		return err
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(report.RunID.String()),
		Value: sarama.ByteEncoder(payload),
		Headers: []sarama.RecordHeader{
			{Key: []byte("Trigger"), Value: []byte(report.Trigger)},
		},
	}

	select {
	case p.producer.Input() <- msg:
		metrics.ReportsPublished.Inc()
		return nil
	case <-ctx.Done():
		p.log.Warn("context cancelled before publishing sync report",
			slog.Any("error", ctx.Err()),
			slog.String("run_id", report.RunID.String()),
		)
		return ctx.Err()
	}
}

func (p *Producer) Close() error {
	p.log.Info("closing Kafka producer")
	err := p.producer.Close()
	if err != nil {
		p.log.Error("failed to close Kafka producer", slog.Any("error", err))
	}
	return err
}

func createSaramaConfig(ver sarama.KafkaVersion) *sarama.Config {
	config := sarama.NewConfig()
	config.Version = ver
	config.Producer.Return.Successes = true
	config.Producer.Compression = sarama.CompressionSnappy
	return config
}
