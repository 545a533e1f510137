package network

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// Bus owns one AMQP connection and channel and keeps them alive across
// broker restarts. It is the transport every RPCClient call and
// subscription goes through; callers never dial amqp directly.
type Bus struct {
	url  string
	conn connection
	log  *logrus.Entry

	declaredMu        sync.Mutex
	declaredExchanges map[string]struct{}
}

// NewBus wraps url in a Bus backed by conn. Passing in the connection
// lets tests substitute a fake without dialing a real broker.
func NewBus(url string, conn connection, log *logrus.Entry) *Bus {
	return &Bus{url: url, conn: conn, log: log, declaredExchanges: make(map[string]struct{})}
}

// Start dials the broker, retrying with exponential backoff, then
// arms reconnection-on-close in the background.
func (b *Bus) Start() error {
	if err := backoff.Retry(b.dial, backoff.NewExponentialBackOff()); err != nil {
		return err
	}
	go b.reconnectOnClose()
	return nil
}

// Stop closes the channel and then the connection. It dereferences
// both, so it is only safe to call after Start has succeeded.
func (b *Bus) Stop() error {
	if err := b.conn.closeChannel(); err != nil {
		b.log.WithError(err).Debug("closing channel")
	}
	return b.conn.close()
}

func (b *Bus) dial() error {
	if err := b.conn.connect(); err != nil {
		return err
	}
	return b.conn.createChannel()
}

func (b *Bus) reconnectOnClose() {
	closed := b.conn.notifyClose(make(chan *amqp.Error))
	reason := <-closed
	if reason == nil {
		return
	}
	b.log.WithError(reason).Warn("amqp connection closed, reconnecting")

	retry := backoff.NewExponentialBackOff()
	retry.InitialInterval = 2 * time.Second
	retry.MaxInterval = 5 * time.Minute
	retry.Multiplier = 1.7
	retry.MaxElapsedTime = 0 // never give up

	if err := backoff.Retry(b.dial, retry); err != nil {
		b.log.WithError(err).Error("reconnect abandoned")
		return
	}
	b.log.Info("amqp reconnected")

	b.declaredMu.Lock()
	b.declaredExchanges = make(map[string]struct{})
	b.declaredMu.Unlock()

	go b.reconnectOnClose()
}

func (b *Bus) ensureExchange(name string) error {
	b.declaredMu.Lock()
	_, done := b.declaredExchanges[name]
	b.declaredMu.Unlock()
	if done {
		return nil
	}

	if err := b.conn.exchangeDeclare(name, exchangeTypeDirect); err != nil {
		return fmt.Errorf("knot: network: declare exchange %q: %w", name, err)
	}

	b.declaredMu.Lock()
	b.declaredExchanges[name] = struct{}{}
	b.declaredMu.Unlock()
	return nil
}

// DeclareQueue declares and binds a queue to key on exchange, returning
// its name so the caller can start consuming.
func (b *Bus) DeclareQueue(name, exchange, key string) error {
	if err := b.ensureExchange(exchange); err != nil {
		return err
	}
	if err := b.conn.queueDeclare(name); err != nil {
		return fmt.Errorf("knot: network: declare queue %q: %w", name, err)
	}
	if err := b.conn.queueBind(name, key, exchange, noWait, nil); err != nil {
		return fmt.Errorf("knot: network: bind queue %q: %w", name, err)
	}
	return nil
}

// Consume starts delivering messages bound to queue into a channel of
// InMsg, converting each amqp.Delivery as it arrives.
func (b *Bus) Consume(queue string) (<-chan InMsg, error) {
	deliveries, err := b.conn.consume(queue, consumerTag, noAck, exclusive, noLocal, noWait, nil)
	if err != nil {
		return nil, fmt.Errorf("knot: network: consume %q: %w", queue, err)
	}

	out := make(chan InMsg)
	go func() {
		defer close(out)
		for d := range deliveries {
			out <- InMsg{
				Exchange:      d.Exchange,
				RoutingKey:    d.RoutingKey,
				ReplyTo:       d.ReplyTo,
				CorrelationID: d.CorrelationId,
				Headers:       d.Headers,
				Body:          d.Body,
			}
		}
	}()
	return out, nil
}

// Publish JSON-encodes payload and sends it to exchange under key,
// applying opts (correlation id, reply-to, expiration) if given.
func (b *Bus) Publish(exchange, key string, payload interface{}, opts *MessageOptions) error {
	if err := b.ensureExchange(exchange); err != nil {
		return err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("knot: network: encode message: %w", err)
	}

	return b.conn.publish(exchange, key, false, false, json.RawMessage(body), opts)
}
