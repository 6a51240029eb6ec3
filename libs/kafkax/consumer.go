package kafkax

import (
	"context"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type MessageHandler func(ctx context.Context, msg kafka.Message) error

// Reader is the part of *kafka.Reader the consumer needs.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Inbox deduplicates events by id. A nil Inbox leaves deduplication to the handler.
type Inbox interface {
	Record(ctx context.Context, eventID string, eventType string) (bool, error)
	Forget(ctx context.Context, eventID string) error
}

type Consumer struct {
	reader  Reader
	logger  *slog.Logger
	inbox   Inbox
	handler MessageHandler

	maxAttempts int
	backoff     time.Duration
	sleep       func(ctx context.Context, d time.Duration)
}

type ConsumerConfig struct {
	Brokers string
	GroupID string
	Topics  []string
	// MaxAttempts bounds handler retries per message. Default 3.
	MaxAttempts  int
	RetryBackoff time.Duration
}

func NewConsumer(logger *slog.Logger, inboxRepo Inbox, cfg ConsumerConfig, handler MessageHandler) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     SplitBrokers(cfg.Brokers),
		GroupID:     cfg.GroupID,
		GroupTopics: cfg.Topics,
		MinBytes:    1,
		MaxBytes:    10e6,
	})
	return NewConsumerWithReader(logger, inboxRepo, reader, cfg, handler)
}

func NewConsumerWithReader(logger *slog.Logger, inboxRepo Inbox, reader Reader, cfg ConsumerConfig, handler MessageHandler) *Consumer {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = time.Second
	}
	return &Consumer{
		reader:      reader,
		logger:      logger,
		inbox:       inboxRepo,
		handler:     handler,
		maxAttempts: cfg.MaxAttempts,
		backoff:     cfg.RetryBackoff,
		sleep:       sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func (c *Consumer) Run(ctx context.Context) {
	defer c.reader.Close()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("kafka read error", "err", err)
			c.sleep(ctx, time.Second)
			continue
		}

		c.process(ctx, msg)

		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.Error("kafka commit failed", "err", err, "topic", msg.Topic, "offset", msg.Offset)
		}
	}
}

// process handles one message at most once per event id when an inbox is set. A handler that
// keeps failing gets its inbox record released so a replay of the topic delivers it again.
func (c *Consumer) process(ctx context.Context, msg kafka.Message) {
	ctxMsg := ExtractTraceContext(ctx, msg)
	ctxSpan, span := otel.Tracer("kafka").Start(ctxMsg, "kafka.consume",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination", msg.Topic),
		),
	)
	defer span.End()

	meta := ExtractEventMeta(msg)
	log := c.logger.With("event_id", meta.EventID, "event_type", meta.EventType)

	if c.inbox != nil {
		ok, err := c.inbox.Record(ctxSpan, meta.EventID, meta.EventType)
		if err != nil {
			log.Error("inbox record failed", "err", err)
			span.RecordError(err)
			span.SetStatus(codes.Error, "inbox")
			return
		}
		if !ok {
			log.Info("duplicate event ignored")
			return
		}
	}

	var err error
	backoff := c.backoff
	for attempt := 1; ; attempt++ {
		err = c.handler(ctxSpan, msg)
		if err == nil {
			return
		}
		span.RecordError(err)
		if attempt >= c.maxAttempts || ctx.Err() != nil {
			break
		}
		log.Warn("handler error; retrying", "err", err, "attempt", attempt)
		c.sleep(ctx, backoff)
		backoff *= 2
	}

	log.Error("handler failed; giving up", "err", err, "attempts", c.maxAttempts)
	span.SetStatus(codes.Error, "handler")
	if c.inbox == nil {
		return
	}
	if ferr := c.inbox.Forget(context.WithoutCancel(ctxSpan), meta.EventID); ferr != nil {
		log.Error("inbox release failed", "err", ferr)
	}
}
