package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"

	"github.com/brightspin-gaming/slot-engine/game"
)

const defaultWorkerNum = 10

// Topics published by the engine.
const (
	TopicSpinResults = "slotengine.spin-results"
	TopicJackpotWins = "slotengine.jackpot-wins"
	TopicPoolUpdates = "slotengine.pool-updates"
)

// PoolUpdateEvent mirrors jackpot pool changes onto the wire so sibling
// instances serving the same game can track the shared pool.
type PoolUpdateEvent struct {
	GameID    string          `json:"game_id"`
	Amount    decimal.Decimal `json:"amount"`
	Award     decimal.Decimal `json:"award"`
	SpinID    string          `json:"spin_id,omitempty"`
	UpdatedAt time.Time       `json:"timestamp"`
}

// Producer publishes engine events through a worker pool so the spin path
// never blocks on the broker.
type Producer struct {
	writer    *kafka.Writer
	logger    zerolog.Logger
	jobs      chan kafka.Message
	workerNum int
	wg        sync.WaitGroup
}

// ProducerConfig holds configuration for the Kafka producer
type ProducerConfig struct {
	Brokers   []string
	Logger    zerolog.Logger
	WorkerNum int
}

// NewProducer creates a producer; an empty broker list yields nil, which
// callers treat as events disabled.
func NewProducer(config ProducerConfig) *Producer {
	if len(config.Brokers) == 0 {
		return nil
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(config.Brokers...),
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireAll,
		MaxAttempts:  3,
		WriteTimeout: 10 * time.Second,
		ReadTimeout:  10 * time.Second,
	}

	workerNum := config.WorkerNum
	if workerNum <= 0 {
		workerNum = defaultWorkerNum
	}

	p := &Producer{
		writer:    writer,
		logger:    config.Logger.With().Str("component", "kafka-producer").Logger(),
		jobs:      make(chan kafka.Message, 100),
		workerNum: workerNum,
	}

	for i := 0; i < workerNum; i++ {
		p.wg.Add(1)
		go p.worker()
	}

	return p
}

func (p *Producer) worker() {
	defer p.wg.Done()
	for msg := range p.jobs {
		func() {
			defer p.recover()
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			if err := p.writer.WriteMessages(ctx, msg); err != nil {
				p.logger.Error().
					Err(err).
					Str("topic", msg.Topic).
					Str("key", string(msg.Key)).
					Msg("failed to send message to Kafka")
			}
		}()
	}
}

// PublishSpin emits a settled spin result, keyed by session for ordering.
func (p *Producer) PublishSpin(_ context.Context, result *game.SpinResult) {
	p.send(TopicSpinResults, result.SessionID, result)
}

// PublishJackpotWin emits a jackpot hit, keyed by game.
func (p *Producer) PublishJackpotWin(_ context.Context, result *game.SpinResult) {
	p.send(TopicJackpotWins, result.GameID, result)
}

// PublishPoolUpdate mirrors a pool change for sibling instances.
func (p *Producer) PublishPoolUpdate(event PoolUpdateEvent) {
	p.send(TopicPoolUpdates, event.GameID, event)
}

func (p *Producer) send(topic, key string, value interface{}) {
	eventBytes, err := json.Marshal(value)
	if err != nil {
		p.logger.Error().Err(err).Str("topic", topic).Msg("failed to marshal event")
		return
	}

	msg := kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: eventBytes,
		Time:  time.Now(),
	}

	// Fire-and-forget: drop rather than stall a spin when the pool backs up.
	select {
	case p.jobs <- msg:
	default:
		p.logger.Warn().Str("topic", topic).Msg("event queue full, dropping event")
	}
}

// Close drains the worker pool and closes the writer.
func (p *Producer) Close() error {
	close(p.jobs)
	p.wg.Wait()
	if err := p.writer.Close(); err != nil {
		p.logger.Error().Err(err).Msg("error closing Kafka producer")
		return err
	}
	return nil
}

func (p *Producer) recover() {
	if r := recover(); r != nil {
		p.logger.Error().
			Str("panic", fmt.Sprintf("%v", r)).
			Str("stack_trace", string(debug.Stack())).
			Msg("panic recovered in Kafka worker")
	}
}
