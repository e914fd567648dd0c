package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"shop-insights/internal/config"
	"shop-insights/internal/logger"
	"shop-insights/internal/models"

	"github.com/IBM/sarama"
)

// EventHandler обрабатывает событие из шины
type EventHandler func(ctx context.Context, event *models.Event) error

// Consumer читает события визитов и передает их зарегистрированным обработчикам
type Consumer struct {
	consumer sarama.ConsumerGroup
	log      *logger.Logger
	handlers map[models.EventType]EventHandler
	mu       sync.RWMutex
	topics   []string
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewConsumer создает consumer group для топика визитов
func NewConsumer(cfg *config.KafkaConfig, log *logger.Logger) (*Consumer, error) {
	saramaCfg := sarama.NewConfig()
	saramaCfg.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	saramaCfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	saramaCfg.Consumer.Return.Errors = true
	saramaCfg.Net.DialTimeout = 5 * time.Second

	group, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, saramaCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka consumer group: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	log.WithFields(map[string]interface{}{
		"brokers":  cfg.Brokers,
		"group_id": cfg.GroupID,
		"topic":    cfg.Topics.Visits,
	}).Info("Kafka consumer created")

	return &Consumer{
		consumer: group,
		log:      log,
		handlers: make(map[models.EventType]EventHandler),
		topics:   []string{cfg.Topics.Visits},
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// NewTestConsumer создает consumer поверх готовой группы
func NewTestConsumer(group sarama.ConsumerGroup, log *logger.Logger) *Consumer {
	ctx, cancel := context.WithCancel(context.Background())
	return &Consumer{
		consumer: group,
		log:      log,
		handlers: make(map[models.EventType]EventHandler),
		topics:   []string{"visits"},
		ctx:      ctx,
		cancel:   cancel,
	}
}

// RegisterHandler регистрирует обработчик для типа события
func (c *Consumer) RegisterHandler(eventType models.EventType, handler EventHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[eventType] = handler
}

// Handler возвращает обработчик типа события
func (c *Consumer) Handler(eventType models.EventType) EventHandler {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.handlers[eventType]
}

// HandlerCount возвращает количество обработчиков
func (c *Consumer) HandlerCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.handlers)
}

// Start запускает чтение в фоне
func (c *Consumer) Start() error {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			if err := c.consumer.Consume(c.ctx, c.topics, c); err != nil {
				if errors.Is(err, sarama.ErrClosedConsumerGroup) || errors.Is(err, context.Canceled) {
					return
				}
				c.log.WithError(err).Error("Kafka consume failed")
			}
			if c.ctx.Err() != nil {
				return
			}
		}
	}()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for err := range c.consumer.Errors() {
			c.log.WithError(err).Warn("Kafka consumer error")
		}
	}()

	c.log.WithField("topics", c.topics).Info("Kafka consumer started")
	return nil
}

// Stop останавливает чтение и закрывает группу
func (c *Consumer) Stop() error {
	if c.cancel != nil {
		c.cancel()
	}
	err := c.consumer.Close()
	c.wg.Wait()
	c.log.Info("Kafka consumer stopped")
	return err
}

// Setup вызывается sarama перед началом сессии
func (c *Consumer) Setup(sarama.ConsumerGroupSession) error { return nil }

// Cleanup вызывается sarama после завершения сессии
func (c *Consumer) Cleanup(sarama.ConsumerGroupSession) error { return nil }

// ConsumeClaim читает сообщения партиции
func (c *Consumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			if err := c.processMessage(msg); err != nil {
				c.log.WithError(err).WithFields(map[string]interface{}{
					"topic":     msg.Topic,
					"partition": msg.Partition,
					"offset":    msg.Offset,
				}).Error("Failed to process message")
			}
			session.MarkMessage(msg, "")
		case <-session.Context().Done():
			return nil
		}
	}
}

func (c *Consumer) processMessage(msg *sarama.ConsumerMessage) error {
	var event models.Event
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return fmt.Errorf("failed to unmarshal event: %w", err)
	}

	handler := c.Handler(event.Type)
	if handler == nil {
		c.log.WithField("event_type", event.Type).Debug("No handler for event type")
		return nil
	}

	ctx := c.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	if err := handler(ctx, &event); err != nil {
		return fmt.Errorf("handler for %s failed: %w", event.Type, err)
	}

	c.log.WithFields(map[string]interface{}{
		"event_id":   event.ID,
		"event_type": event.Type,
	}).Debug("Event processed")
	return nil
}

// ParseVisitEvent извлекает данные визита из события
func ParseVisitEvent(event *models.Event) (*models.VisitEventData, error) {
	raw, err := json.Marshal(event.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to encode event data: %w", err)
	}
	var data models.VisitEventData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("failed to decode visit event data: %w", err)
	}
	return &data, nil
}
