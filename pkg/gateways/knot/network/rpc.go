package network

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// RPCClient turns Bus's fire-and-forget publish/consume into
// synchronous request/reply calls, matching replies to requests by
// AMQP correlation id. One reply queue is shared by every in-flight
// call; a background goroutine demuxes deliveries to whichever call()
// is waiting on that correlation id.
type RPCClient struct {
	bus              *Bus
	requestExchange  string
	responseExchange string
	replyQueue       string

	nextID int64

	mu      sync.Mutex
	waiters map[string]chan InMsg

	log *logrus.Entry
}

// NewRPCClient declares replyQueue bound to responseExchange and
// starts demuxing its deliveries. requestExchange is where outbound
// calls are published.
func NewRPCClient(bus *Bus, requestExchange, responseExchange, replyQueue string, log *logrus.Entry) (*RPCClient, error) {
	if err := bus.DeclareQueue(replyQueue, responseExchange, replyQueue); err != nil {
		return nil, errors.Wrap(err, "rpc client setup")
	}

	deliveries, err := bus.Consume(replyQueue)
	if err != nil {
		return nil, errors.Wrap(err, "rpc client consume")
	}

	c := &RPCClient{
		bus:              bus,
		requestExchange:  requestExchange,
		responseExchange: responseExchange,
		replyQueue:       replyQueue,
		waiters:          make(map[string]chan InMsg),
		log:              log,
	}
	go c.demux(deliveries)
	return c, nil
}

func (c *RPCClient) demux(deliveries <-chan InMsg) {
	for msg := range deliveries {
		c.mu.Lock()
		ch, ok := c.waiters[msg.CorrelationID]
		if ok {
			delete(c.waiters, msg.CorrelationID)
		}
		c.mu.Unlock()

		if !ok {
			c.log.WithField("correlation_id", msg.CorrelationID).Debug("rpc: reply for unknown or timed-out call")
			continue
		}
		ch <- msg
		close(ch)
	}
}

// call publishes req under key, blocks until the correlated reply
// arrives or ctx is done, and unmarshals the reply body into resp.
func (c *RPCClient) call(ctx context.Context, key string, req, resp interface{}) error {
	corrID := strconv.FormatInt(atomic.AddInt64(&c.nextID, 1), 10)

	ch := make(chan InMsg, 1)
	c.mu.Lock()
	c.waiters[corrID] = ch
	c.mu.Unlock()

	opts := &MessageOptions{CorrelationID: corrID, ReplyTo: c.replyQueue}
	if err := c.bus.Publish(c.requestExchange, key, req, opts); err != nil {
		c.mu.Lock()
		delete(c.waiters, corrID)
		c.mu.Unlock()
		return fmt.Errorf("knot: network: rpc call %q: %w", key, err)
	}

	select {
	case msg := <-ch:
		return json.Unmarshal(msg.Body, resp)
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.waiters, corrID)
		c.mu.Unlock()
		return ctx.Err()
	}
}
