package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/spigell/jobhound/internal/jobs"
	"github.com/spigell/jobhound/internal/match"
)

const (
	DefaultExchange = "jobhound"

	RoutingKeyMatch   = "job.match"
	RoutingKeySummary = "run.summary"

	publishTimeout = 5 * time.Second
)

type publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQP publishes notifications as JSON events to a topic exchange.
type AMQP struct {
	conn     *amqp.Connection
	channel  publisher
	exchange string
	logger   *zap.Logger
	now      func() time.Time
}

// DialAMQP connects to the broker and declares a durable topic exchange.
func DialAMQP(url, exchange string, logger *zap.Logger) (*AMQP, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if exchange = strings.TrimSpace(exchange); exchange == "" {
		exchange = DefaultExchange
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connecting to amqp broker: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("opening amqp channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		exchange, // name
		"topic",  // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declaring exchange %q: %w", exchange, err)
	}

	logger.Info("amqp notifier initialized", zap.String("exchange", exchange))

	return &AMQP{conn: conn, channel: ch, exchange: exchange, logger: logger, now: time.Now}, nil
}

func (a *AMQP) Close() error {
	if a == nil || a.conn == nil {
		return nil
	}
	return a.conn.Close()
}

type matchEvent struct {
	Posting *jobs.Posting `json:"posting"`
	Match   *match.Result `json:"match"`
}

func (a *AMQP) NotifyMatch(ctx context.Context, posting *jobs.Posting, result *match.Result) Status {
	return a.publish(ctx, RoutingKeyMatch, matchEvent{Posting: posting, Match: result})
}

func (a *AMQP) NotifySummary(ctx context.Context, summary *RunSummary) Status {
	return a.publish(ctx, RoutingKeySummary, summary)
}

func (a *AMQP) publish(ctx context.Context, key string, event any) Status {
	body, err := json.Marshal(event)
	if err != nil {
		a.logger.Error("failed to encode amqp event", zap.String("routing_key", key), zap.Error(err))
		return StatusErrorSendFailed
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err = a.channel.PublishWithContext(
		ctx,
		a.exchange, // exchange
		key,        // routing key
		false,      // mandatory
		false,      // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    a.now(),
		},
	)
	if err != nil {
		a.logger.Error("failed to publish amqp event", zap.String("routing_key", key), zap.Error(err))
		return StatusErrorSendFailed
	}

	a.logger.Debug("published amqp event", zap.String("routing_key", key), zap.Int("size", len(body)))
	return StatusSuccess
}
