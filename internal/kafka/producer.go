package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"shop-insights/internal/config"
	"shop-insights/internal/logger"
	"shop-insights/internal/models"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
)

// Producer публикует события об обновлении инсайтов
type Producer struct {
	producer sarama.SyncProducer
	log      *logger.Logger
	topics   *config.Topics
}

// NewProducer создает синхронного продюсера Kafka
func NewProducer(cfg *config.KafkaConfig, log *logger.Logger) (*Producer, error) {
	saramaCfg := sarama.NewConfig()
	saramaCfg.Producer.RequiredAcks = sarama.WaitForAll
	saramaCfg.Producer.Retry.Max = 3
	saramaCfg.Producer.Return.Successes = true
	saramaCfg.Producer.Compression = sarama.CompressionSnappy
	saramaCfg.Net.DialTimeout = 5 * time.Second

	producer, err := sarama.NewSyncProducer(cfg.Brokers, saramaCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	log.WithField("brokers", cfg.Brokers).Info("Kafka producer created")

	return &Producer{
		producer: producer,
		log:      log,
		topics:   &cfg.Topics,
	}, nil
}

// PublishInsightsRefreshed публикует сводку после пересчета инсайтов
func (p *Producer) PublishInsightsRefreshed(byCategory map[models.InsightCategory][]models.Insight, generatedAt time.Time) error {
	data := models.InsightsRefreshedData{
		Counts:      make(map[models.InsightCategory]int, len(byCategory)),
		GeneratedAt: generatedAt,
	}
	for _, c := range models.AllCategories() {
		n := len(byCategory[c])
		data.Counts[c] = n
		data.Total += n
	}

	return p.publishEvent(p.topics.Insights, models.Event{
		ID:        uuid.New(),
		Type:      models.EventTypeInsightsRefreshed,
		Timestamp: generatedAt,
		Data:      data,
	})
}

// PublishInsightAlert публикует отдельный важный инсайт
func (p *Producer) PublishInsightAlert(insight models.Insight) error {
	return p.publishEvent(p.topics.Insights, models.Event{
		ID:        uuid.New(),
		Type:      models.EventTypeInsightAlert,
		Timestamp: time.Now().UTC(),
		Data:      models.InsightAlertData{Insight: insight},
	})
}

func (p *Producer) publishEvent(topic string, event models.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic:     topic,
		Key:       sarama.StringEncoder(event.Type),
		Value:     sarama.ByteEncoder(payload),
		Timestamp: event.Timestamp,
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		p.log.WithError(err).WithFields(map[string]interface{}{
			"topic":      topic,
			"event_type": event.Type,
		}).Error("Failed to publish event")
		return fmt.Errorf("failed to publish event %s: %w", event.Type, err)
	}

	p.log.WithFields(map[string]interface{}{
		"topic":      topic,
		"event_id":   event.ID,
		"event_type": event.Type,
		"partition":  partition,
		"offset":     offset,
	}).Debug("Event published")
	return nil
}

// Close закрывает продюсера
func (p *Producer) Close() error {
	if p == nil || p.producer == nil {
		return nil
	}
	return p.producer.Close()
}
