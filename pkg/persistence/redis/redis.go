// Package redis provides Redis persistence implementation for shipments.
package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/courierlab/shipline/pkg/persistence"
)

// Persistence implements the persistence layer on top of Redis. Shipments are
// JSON values under shipline:shipments:<id>, with a set keeping the ID index.
type Persistence struct {
	client       redis.UniversalClient
	logger       *slog.Logger
	shipmentRepo *ShipmentRepository
}

// NewPersistence creates a Redis persistence layer and verifies connectivity.
func NewPersistence(ctx context.Context, logger *slog.Logger, redisURL string) (*Persistence, error) {
	options, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(options)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err = client.Ping(pingCtx).Err()
	if err != nil {
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	return &Persistence{
		client:       client,
		logger:       logger,
		shipmentRepo: NewShipmentRepository(client),
	}, nil
}

// Close closes the Redis connection.
func (p *Persistence) Close(_ context.Context) error {
	err := p.client.Close()
	if err != nil {
		return fmt.Errorf("failed to close Redis connection: %w", err)
	}

	return nil
}

// HealthCheck verifies the Redis connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.client.Ping(ctx).Err()
	if err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}

	return nil
}

// ShipmentRepository returns the shipment repository implementation for Redis.
func (p *Persistence) ShipmentRepository() persistence.ShipmentRepository {
	return p.shipmentRepo
}
