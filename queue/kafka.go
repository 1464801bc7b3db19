package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/IBM/sarama"
)

var ErrConsumerDisabled = errors.New("kafka queue has no consumer group")

type KafkaConfig struct {
	Brokers []string
	Topic   string
	// GroupID enables Pop. The API only pushes and leaves it empty.
	GroupID string
}

// delivery hands one message to Pop. The consumer waits on done for true
// (Ack) or false (Release).
type delivery struct {
	id   string
	done chan bool
}

// KafkaQueue publishes job ids to a topic and consumes them through a
// consumer group. An offset is marked only after Ack; a released id is
// handed to the next Pop again before the partition moves on.
type KafkaQueue struct {
	producer sarama.SyncProducer
	group    sarama.ConsumerGroup
	topic    string

	deliveries chan delivery

	mu       sync.Mutex
	inflight map[string]chan bool

	startOnce sync.Once
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

func NewKafkaQueue(cfg KafkaConfig) (*KafkaQueue, error) {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true
	config.Consumer.Group.Rebalance.Strategy = sarama.BalanceStrategyRoundRobin
	config.Consumer.Offsets.Initial = sarama.OffsetOldest

	p, err := sarama.NewSyncProducer(cfg.Brokers, config)
	if err != nil {
		return nil, unavailable("create kafka producer", err)
	}

	var group sarama.ConsumerGroup
	if cfg.GroupID != "" {
		group, err = sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, config)
		if err != nil {
			p.Close()
			return nil, unavailable("create kafka consumer group", err)
		}
	}

	return newKafkaQueue(p, group, cfg.Topic), nil
}

func newKafkaQueue(producer sarama.SyncProducer, group sarama.ConsumerGroup, topic string) *KafkaQueue {
	ctx, cancel := context.WithCancel(context.Background())
	return &KafkaQueue{
		producer:   producer,
		group:      group,
		topic:      topic,
		deliveries: make(chan delivery),
		inflight:   make(map[string]chan bool),
		ctx:        ctx,
		cancel:     cancel,
	}
}

func (q *KafkaQueue) Push(ctx context.Context, id string) error {
	msg := &sarama.ProducerMessage{
		Topic: q.topic,
		Key:   sarama.StringEncoder(id),
		Value: sarama.StringEncoder(id),
	}
	if _, _, err := q.producer.SendMessage(msg); err != nil {
		return unavailable("push "+id, err)
	}
	return nil
}

func (q *KafkaQueue) Pop(ctx context.Context) (string, error) {
	if q.group == nil {
		return "", ErrConsumerDisabled
	}
	q.startOnce.Do(q.consume)

	select {
	case d := <-q.deliveries:
		q.mu.Lock()
		q.inflight[d.id] = d.done
		q.mu.Unlock()
		return d.id, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (q *KafkaQueue) consume() {
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		h := &consumerHandler{deliveries: q.deliveries}
		for {
			// Consume returns on every rebalance and must be called again.
			if err := q.group.Consume(q.ctx, []string{q.topic}, h); err != nil {
				if errors.Is(err, sarama.ErrClosedConsumerGroup) {
					return
				}
				select {
				case <-time.After(time.Second):
				case <-q.ctx.Done():
				}
			}
			if q.ctx.Err() != nil {
				return
			}
		}
	}()
}

func (q *KafkaQueue) Ack(ctx context.Context, id string) error {
	q.settle(id, true)
	return nil
}

func (q *KafkaQueue) Release(ctx context.Context, id string) error {
	q.settle(id, false)
	return nil
}

func (q *KafkaQueue) settle(id string, acked bool) {
	q.mu.Lock()
	done, ok := q.inflight[id]
	delete(q.inflight, id)
	q.mu.Unlock()
	if ok {
		done <- acked
	}
}

// Extend is a no-op: the broker tracks liveness through the session.
func (q *KafkaQueue) Extend(ctx context.Context, id string) error {
	return nil
}

// Reap is a no-op: unmarked offsets are redelivered by the broker.
func (q *KafkaQueue) Reap(ctx context.Context) (int, error) {
	return 0, nil
}

func (q *KafkaQueue) Close() error {
	q.cancel()
	var errs []error
	if q.group != nil {
		errs = append(errs, q.group.Close())
	}
	q.wg.Wait()
	errs = append(errs, q.producer.Close())
	return errors.Join(errs...)
}

type consumerHandler struct {
	deliveries chan<- delivery
}

func (h *consumerHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *consumerHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *consumerHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for msg := range claim.Messages() {
		if !h.deliver(session, msg) {
			return nil
		}
		session.MarkMessage(msg, "")
	}
	return nil
}

// deliver offers msg to Pop until it is acked. It reports false when the
// session ends first.
func (h *consumerHandler) deliver(session sarama.ConsumerGroupSession, msg *sarama.ConsumerMessage) bool {
	for {
		d := delivery{id: string(msg.Value), done: make(chan bool, 1)}
		select {
		case h.deliveries <- d:
		case <-session.Context().Done():
			return false
		}
		select {
		case acked := <-d.done:
			if acked {
				return true
			}
		case <-session.Context().Done():
			return false
		}
	}
}
