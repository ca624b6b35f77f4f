package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"storefront/metrics"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

var (
	ErrPublisherClosed = errors.New("事件發佈器已關閉")
	ErrBufferFull      = errors.New("事件佇列已滿，捨棄事件")
)

const writeTimeout = 10 * time.Second

// MessageWriter 為kafka.Writer的子集合
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher 以單一背景goroutine寫入Kafka，Publish不會阻塞請求
type KafkaPublisher struct {
	writer MessageWriter
	queue  chan Event
	done   chan struct{}
	log    zerolog.Logger

	mu     sync.RWMutex
	closed bool
}

func NewKafkaPublisher(writer MessageWriter, buffer int, log zerolog.Logger) *KafkaPublisher {
	if buffer <= 0 {
		buffer = 1
	}
	p := &KafkaPublisher{
		writer: writer,
		queue:  make(chan Event, buffer),
		done:   make(chan struct{}),
		log:    log.With().Str("component", "events").Logger(),
	}
	go p.run()
	return p
}

func (p *KafkaPublisher) Publish(_ context.Context, event Event) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPublisherClosed
	}

	select {
	case p.queue <- event:
		return nil
	default:
		metrics.RecordEventDropped()
		p.log.Warn().Str("event", event.Type).Uint("orderID", event.OrderID).Msg("事件佇列已滿，捨棄事件")
		return ErrBufferFull
	}
}

func (p *KafkaPublisher) run() {
	defer close(p.done)
	for event := range p.queue {
		p.write(event)
	}
}

func (p *KafkaPublisher) write(event Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		p.log.Error().Err(err).Str("event", event.Type).Msg("無法序列化事件")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.Key()),
		Value: payload,
		Time:  event.Timestamp,
	})
	if err != nil {
		p.log.Error().Err(err).Str("event", event.Type).Uint("orderID", event.OrderID).Msg("寫入Kafka失敗")
		return
	}
	p.log.Debug().Str("event", event.Type).Uint("orderID", event.OrderID).Msg("已發佈事件")
}

// Close 送出佇列中剩餘事件後關閉writer
func (p *KafkaPublisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	<-p.done
	return p.writer.Close()
}
