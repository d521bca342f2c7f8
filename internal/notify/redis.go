// Package notify publishes committed inventory changes so that clients polling
// a sold-out ticket type can be told when a unit frees up.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cimillas/ticket-inventory/internal/clock"
)

const (
	EventUnitReleased = "unit_released"
	EventUnitSold     = "unit_sold"

	channelPrefix = "inventory:"
)

// Event is the JSON message published for every inventory change.
type Event struct {
	Type         string    `json:"type"`
	TicketTypeID string    `json:"ticket_type_id"`
	UnitID       string    `json:"unit_id"`
	At           time.Time `json:"at"`
}

// Channel is the pub/sub channel carrying events for one ticket type.
func Channel(ticketTypeID string) string {
	return channelPrefix + ticketTypeID
}

// RedisNotifier publishes events on Redis pub/sub. Delivery is best effort:
// subscribers that are offline miss the message and fall back to polling
// inventory status.
type RedisNotifier struct {
	client *redis.Client
	clock  clock.Clock
}

func NewRedisNotifier(client *redis.Client, clk clock.Clock) *RedisNotifier {
	return &RedisNotifier{client: client, clock: clk}
}

func (n *RedisNotifier) UnitReleased(ctx context.Context, ticketTypeID, unitID string) error {
	return n.publish(ctx, EventUnitReleased, ticketTypeID, unitID)
}

func (n *RedisNotifier) UnitSold(ctx context.Context, ticketTypeID, unitID string) error {
	return n.publish(ctx, EventUnitSold, ticketTypeID, unitID)
}

func (n *RedisNotifier) publish(ctx context.Context, eventType, ticketTypeID, unitID string) error {
	payload, err := json.Marshal(Event{
		Type:         eventType,
		TicketTypeID: ticketTypeID,
		UnitID:       unitID,
		At:           n.clock.Now(),
	})
	if err != nil {
		return fmt.Errorf("encode %s event: %w", eventType, err)
	}
	if err := n.client.Publish(ctx, Channel(ticketTypeID), payload).Err(); err != nil {
		return fmt.Errorf("publish %s event: %w", eventType, err)
	}
	return nil
}

// Ping checks the Redis connection.
func (n *RedisNotifier) Ping(ctx context.Context) error {
	return n.client.Ping(ctx).Err()
}
