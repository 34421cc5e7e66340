// Package stream provides the Stream Client: publish/consume of stream
// events over Redis Streams with a competing consumer group, delivering
// at-least-once semantics via XREADGROUP/XACK/XAUTOCLAIM.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/smilemakc/workflowcore/pkg/streamevent"
)

// Handler processes one decoded Stream Event. A returned error leaves the
// message unacked in the group's pending list; a nil error triggers XACK.
type Handler func(ctx context.Context, event streamevent.Event, messageID string) error

// Client is the stream client component.
type Client struct {
	rdb *redis.Client

	mu            sync.Mutex
	groupsEnsured map[string]bool

	consumerCancel context.CancelFunc
	consumerDone   chan struct{}
}

// NewClient wraps an existing Redis client as a stream client. It performs
// no connection setup beyond what its caller already did when dialing Redis.
func NewClient(rdb *redis.Client) *Client {
	return &Client{rdb: rdb, groupsEnsured: make(map[string]bool)}
}

// StreamName returns the canonical stream name for a named event channel,
// e.g. "global" -> "workflow:events:global".
func StreamName(name string) string {
	return "workflow:events:" + name
}

// GlobalStream is the single global stream every worker subscribes to.
const GlobalStream = "workflow:events:global"

// GlobalGroup is the shared competing consumer group.
const GlobalGroup = "workflow-workers"

// EnsureConsumerGroup creates the group with MKSTREAM, treating "already
// exists" as success. The result is memoized per-process to avoid a repeat
// RPC on every publish/consume.
func (c *Client) EnsureConsumerGroup(ctx context.Context, stream, group string) error {
	key := stream + "|" + group

	c.mu.Lock()
	if c.groupsEnsured[key] {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	err := c.rdb.XGroupCreateMkStream(ctx, stream, group, "$").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("ensure consumer group %s/%s: %w", stream, group, err)
	}

	c.mu.Lock()
	c.groupsEnsured[key] = true
	c.mu.Unlock()
	return nil
}

// Publish XADDs the Stream Event to its named stream and returns the
// broker-assigned message id.
func (c *Client) Publish(ctx context.Context, streamName string, event streamevent.Event) (string, error) {
	body, err := json.Marshal(event)
	if err != nil {
		return "", fmt.Errorf("marshal stream event: %w", err)
	}

	id, err := c.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: streamName,
		Values: map[string]interface{}{"body": body},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("publish to %s: %w", streamName, err)
	}
	return id, nil
}

// RegisterConsumer starts a background loop XREADGROUP-ing from streamName
// with the given group and consumer id, blocking up to ~5s per call. The
// loop runs until ctx is cancelled or StopConsumer is called. Handler
// success triggers XACK; handler error leaves the message pending. The loop
// reads only new entries (">"), so it does not redeliver pending messages
// itself; ReclaimStale can reassign them, and nothing in this package calls
// it automatically.
func (c *Client) RegisterConsumer(ctx context.Context, streamName, group, consumer string, handler Handler) error {
	if err := c.EnsureConsumerGroup(ctx, streamName, group); err != nil {
		return err
	}

	consumerCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.consumerCancel = cancel
	c.consumerDone = make(chan struct{})
	done := c.consumerDone
	c.mu.Unlock()

	go c.consumeLoop(consumerCtx, streamName, group, consumer, handler, done)
	return nil
}

func (c *Client) consumeLoop(ctx context.Context, streamName, group, consumer string, handler Handler, done chan struct{}) {
	defer close(done)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		streams, err := c.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    group,
			Consumer: consumer,
			Streams:  []string{streamName, ">"},
			Count:    10,
			Block:    5 * time.Second,
		}).Result()

		if err != nil {
			if errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled) {
				continue
			}
			// Transient broker hiccup; brief pause before the next poll.
			time.Sleep(200 * time.Millisecond)
			continue
		}

		for _, s := range streams {
			for _, msg := range s.Messages {
				c.dispatch(ctx, streamName, group, msg, handler)
			}
		}
	}
}

func (c *Client) dispatch(ctx context.Context, streamName, group string, msg redis.XMessage, handler Handler) {
	raw, _ := msg.Values["body"].(string)

	var event streamevent.Event
	if err := json.Unmarshal([]byte(raw), &event); err != nil {
		// Invalid envelope: drop (no ack failure), but still ack so the
		// poison message does not loop forever.
		_ = c.rdb.XAck(ctx, streamName, group, msg.ID).Err()
		return
	}

	if err := streamevent.Validate(event); err != nil {
		_ = c.rdb.XAck(ctx, streamName, group, msg.ID).Err()
		return
	}

	if err := handler(ctx, event, msg.ID); err != nil {
		return
	}
	_ = c.rdb.XAck(ctx, streamName, group, msg.ID).Err()
}

// ReclaimStale uses XAUTOCLAIM to reassign messages pending longer than
// minIdle to the given consumer, returning the reclaimed message ids.
func (c *Client) ReclaimStale(ctx context.Context, streamName, group, consumer string, minIdle time.Duration) ([]string, error) {
	_, messages, err := c.rdb.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   streamName,
		Group:    group,
		Consumer: consumer,
		MinIdle:  minIdle,
		Start:    "0-0",
		Count:    50,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("reclaim stale messages on %s: %w", streamName, err)
	}

	ids := make([]string, 0, len(messages))
	for _, m := range messages {
		ids = append(ids, m.ID)
	}
	return ids, nil
}

// StopConsumer cancels the background consume loop and waits for it to
// return.
func (c *Client) StopConsumer() {
	c.mu.Lock()
	cancel := c.consumerCancel
	done := c.consumerDone
	c.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	if done != nil {
		<-done
	}
}

// Close does not release the underlying Redis client. The client is owned by
// the caller that dialed it (e.g. cache.RedisCache), so Close is a no-op here
// by design; callers close the shared *redis.Client exactly once.
func (c *Client) Close() error {
	return nil
}
