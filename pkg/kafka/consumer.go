package kafka

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math/rand"
	"sync"
	"time"

	applogger "CandleCast/pkg/logger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"
)

// MessageHandler handles messages from a specific topic.
type MessageHandler interface {
	Topic() string
	Handle(context.Context, []byte) error
}

// Reader is the part of kafka.Reader the consumer needs.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads registered topics and hands records to a worker pool.
// Records with the same key always land on the same worker, so per-pair
// order from a partition is preserved.
type Consumer struct {
	cfg      *ConsumerConfig
	log      *applogger.Logger
	readers  map[string]Reader
	handlers map[string]MessageHandler
	stopChan chan struct{}
	stopOnce sync.Once
	readWg   sync.WaitGroup
	workWg   sync.WaitGroup
	lanes    []chan *message
	dlq      Writer
	hook     ConsumerHook
}

type message struct {
	topic string
	km    kafka.Message
}

// NewConsumer creates a new Kafka consumer.
func NewConsumer(opts ...ConsumerOption) (*Consumer, error) {
	cfg := &ConsumerConfig{
		GroupID:     "candlecast",
		StartOffset: "earliest",
		WorkerCount: 4,
		BufferSize:  256,
		RetryMax:    3,
		BackoffMin:  50 * time.Millisecond,
		BackoffMax:  2 * time.Second,
		MinBytes:    1,
		MaxBytes:    10e6,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka consumer: brokers are required")
	}

	c := newConsumer(cfg)
	if cfg.DLQTopic != "" {
		c.dlq = &kafka.Writer{Addr: kafka.TCP(cfg.Brokers...), Balancer: &kafka.Hash{}}
	}
	return c, nil
}

func newConsumer(cfg *ConsumerConfig) *Consumer {
	l := cfg.Logger
	if l == nil {
		l = applogger.NewNop()
	}
	c := &Consumer{
		cfg:      cfg,
		log:      l.With(applogger.String("component", "kafka-consumer")),
		readers:  make(map[string]Reader),
		handlers: make(map[string]MessageHandler),
		stopChan: make(chan struct{}),
		lanes:    make([]chan *message, cfg.WorkerCount),
		hook:     NoopHook{},
	}
	for i := range c.lanes {
		c.lanes[i] = make(chan *message, cfg.BufferSize)
	}
	initConsumerMetricsOnce()
	return c
}

// WithConsumerHook installs a hook; several hooks can be combined with NewHookChain.
func (c *Consumer) WithConsumerHook(h ConsumerHook) *Consumer {
	if h != nil {
		c.hook = h
	}
	return c
}

// RegisterHandler registers a message handler for a specific topic.
func (c *Consumer) RegisterHandler(handler MessageHandler) {
	topic := handler.Topic()
	if _, ok := c.handlers[topic]; ok {
		c.log.Warn("handler already registered", applogger.String("topic", topic))
		return
	}
	c.handlers[topic] = handler
}

// Start opens one reader per registered topic and launches the workers.
func (c *Consumer) Start() error {
	if len(c.handlers) == 0 {
		return errors.New("kafka consumer: no handlers registered")
	}
	start := kafka.FirstOffset
	if c.cfg.StartOffset == "latest" {
		start = kafka.LastOffset
	}
	for topic := range c.handlers {
		if _, ok := c.readers[topic]; ok {
			continue
		}
		c.readers[topic] = kafka.NewReader(kafka.ReaderConfig{
			Brokers:     c.cfg.Brokers,
			Topic:       topic,
			GroupID:     c.cfg.GroupID,
			MinBytes:    c.cfg.MinBytes,
			MaxBytes:    c.cfg.MaxBytes,
			StartOffset: start,
		})
	}

	c.startWorkers()
	for topic, reader := range c.readers {
		c.readWg.Add(1)
		go c.consume(topic, reader)
	}
	c.log.Info("kafka consumer started",
		applogger.Int("workers", len(c.lanes)),
		applogger.Int("topics", len(c.readers)))
	return nil
}

func (c *Consumer) startWorkers() {
	for i := range c.lanes {
		c.workWg.Add(1)
		go c.worker(c.lanes[i])
	}
}

// Stop stops reading, lets the workers finish queued records and closes readers.
func (c *Consumer) Stop(ctx context.Context) error {
	var stopErr error
	c.stopOnce.Do(func() {
		close(c.stopChan)
		stopErr = waitFor(ctx, &c.readWg)
		for _, lane := range c.lanes {
			close(lane)
		}
		if err := waitFor(ctx, &c.workWg); err != nil && stopErr == nil {
			stopErr = err
		}
		for topic, reader := range c.readers {
			if err := reader.Close(); err != nil {
				c.log.Warn("close reader", applogger.String("topic", topic), applogger.Error(err))
			}
		}
		if c.dlq != nil {
			if err := c.dlq.Close(); err != nil {
				c.log.Warn("close dlq writer", applogger.Error(err))
			}
		}
		c.log.Info("kafka consumer stopped")
	})
	return stopErr
}

func waitFor(ctx context.Context, wg *sync.WaitGroup) error {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return fmt.Errorf("timeout waiting for consumer to stop: %w", ctx.Err())
	case <-done:
		return nil
	}
}

func (c *Consumer) consume(topic string, reader Reader) {
	defer c.readWg.Done()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-c.stopChan
		cancel()
	}()

	for {
		km, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.log.Warn("fetch message", applogger.String("topic", topic), applogger.Error(err))
			select {
			case <-time.After(c.cfg.BackoffMin):
			case <-c.stopChan:
				return
			}
			continue
		}
		lane := c.lanes[c.laneFor(km.Key)]
		select {
		case lane <- &message{topic: topic, km: km}:
			consumerQueueDepth.WithLabelValues(topic).Set(float64(len(lane)))
		case <-c.stopChan:
			return
		}
	}
}

// laneFor maps a record key onto a worker index.
func (c *Consumer) laneFor(key []byte) int {
	if len(key) == 0 || len(c.lanes) == 1 {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write(key)
	return int(h.Sum32() % uint32(len(c.lanes)))
}

func (c *Consumer) worker(in <-chan *message) {
	defer c.workWg.Done()
	for msg := range in {
		handler, ok := c.handlers[msg.topic]
		if !ok {
			continue
		}
		start := time.Now()
		err := c.process(handler, msg)
		if err != nil {
			c.deadLetter(msg, err)
		}
		if err == nil || c.dlq != nil || IsPermanent(err) {
			if reader := c.readers[msg.topic]; reader != nil {
				if cerr := c.commitWithRetry(reader, msg.km, 3); cerr != nil {
					c.log.Warn("commit offset", applogger.String("topic", msg.topic), applogger.Error(cerr))
				}
			}
		}
		consumerHandleLatency.WithLabelValues(msg.topic).Observe(time.Since(start).Seconds())
	}
}

// process runs the handler with hooks, retrying transient failures.
func (c *Consumer) process(handler MessageHandler, msg *message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = Permanent(fmt.Errorf("panic in handler for %s: %v", msg.topic, r))
		}
	}()

	for attempt := 1; ; attempt++ {
		ctx := WithTraceID(WithStartTime(context.Background(), time.Now()), ExtractTraceID(msg.km))
		hctx, hmsg, data, berr := c.hook.BeforeHandle(ctx, msg.topic, msg.km, msg.km.Value)
		if berr != nil {
			return Permanent(berr)
		}
		err = handler.Handle(hctx, data)
		c.hook.AfterHandle(hctx, msg.topic, hmsg, data, err)
		if err == nil {
			consumerMessages.WithLabelValues(msg.topic, "ok").Inc()
			return nil
		}
		c.hook.OnError(hctx, msg.topic, hmsg, data, err)
		if IsPermanent(err) || attempt > c.cfg.RetryMax {
			consumerMessages.WithLabelValues(msg.topic, "failed").Inc()
			return err
		}
		consumerMessages.WithLabelValues(msg.topic, "retry").Inc()
		select {
		case <-time.After(backoffWithJitter(c.cfg.BackoffMin, c.cfg.BackoffMax, attempt)):
		case <-c.stopChan:
			return err
		}
	}
}

func (c *Consumer) deadLetter(msg *message, cause error) {
	c.log.Warn("message rejected",
		applogger.String("topic", msg.topic),
		applogger.Int64("offset", msg.km.Offset),
		applogger.Bool("permanent", IsPermanent(cause)),
		applogger.Error(cause))
	if c.dlq == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := c.dlq.WriteMessages(ctx, kafka.Message{
		Topic: c.cfg.DLQTopic,
		Key:   msg.km.Key,
		Value: msg.km.Value,
		Time:  time.Now(),
		Headers: []kafka.Header{
			{Key: "source_topic", Value: []byte(msg.topic)},
			{Key: "error", Value: []byte(cause.Error())},
		},
	})
	if err != nil {
		c.log.Error("write dlq", applogger.String("topic", c.cfg.DLQTopic), applogger.Error(err))
		return
	}
	consumerDLQ.WithLabelValues(msg.topic).Inc()
}

// commitWithRetry commits a single message offset with bounded retries.
func (c *Consumer) commitWithRetry(reader Reader, km kafka.Message, max int) error {
	if max <= 0 {
		max = 1
	}
	var err error
	for attempt := 1; attempt <= max; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err = reader.CommitMessages(ctx, km)
		cancel()
		if err == nil {
			return nil
		}
		time.Sleep(backoffWithJitter(c.cfg.BackoffMin, c.cfg.BackoffMax, attempt))
	}
	return err
}

func backoffWithJitter(min, max time.Duration, attempt int) time.Duration {
	if min <= 0 {
		min = 10 * time.Millisecond
	}
	if max < min {
		max = min
	}
	d := min << uint(attempt-1)
	if d <= 0 || d > max {
		d = max
	}
	half := int64(d) / 2
	if half <= 0 {
		return d
	}
	return time.Duration(half + rand.Int63n(half+1))
}

var (
	consumerMetricsOnce   sync.Once
	consumerMessages      *prometheus.CounterVec
	consumerDLQ           *prometheus.CounterVec
	consumerQueueDepth    *prometheus.GaugeVec
	consumerHandleLatency *prometheus.HistogramVec
)

func initConsumerMetricsOnce() {
	consumerMetricsOnce.Do(func() {
		consumerMessages = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "candlecast_kafka_consumer_messages_total",
			Help: "Handled records by outcome",
		}, []string{"topic", "result"})
		consumerDLQ = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "candlecast_kafka_consumer_dlq_total",
			Help: "Records sent to the dead letter topic",
		}, []string{"topic"})
		consumerQueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "candlecast_kafka_consumer_queue_depth",
			Help: "Records waiting in the worker lane",
		}, []string{"topic"})
		consumerHandleLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "candlecast_kafka_consumer_handle_seconds",
			Help:    "Handler latency including retries",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		}, []string{"topic"})
	})
}
