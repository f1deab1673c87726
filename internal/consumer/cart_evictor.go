package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/fjod/go_shop/internal/cache"
	"github.com/fjod/go_shop/internal/domain"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// CartEvictor drops the cached cart of every user named in a checkout event.
// It covers checkouts finished by the reconciler, whose original request may
// have died before invalidating the cache.
type CartEvictor struct {
	reader messageReader
	cache  cache.CartCache
	logger *zap.Logger
}

func NewCartEvictor(cartCache cache.CartCache, logger *zap.Logger, topic, groupID string, brokers ...string) *CartEvictor {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MaxBytes: 10e6, // 10MB
	})
	return &CartEvictor{reader: reader, cache: cartCache, logger: logger}
}

func (e *CartEvictor) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		e.evictNext(ctx)
	}
}

func (e *CartEvictor) Close() {
	if err := e.reader.Close(); err != nil {
		e.logger.Warn("error closing reader", zap.Error(err))
	}
}

func (e *CartEvictor) evictNext(ctx context.Context) {
	m, err := e.reader.ReadMessage(ctx)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			e.logger.Warn("error reading message", zap.Error(err))
			// avoid spinning while the broker is unreachable
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
			}
		}
		return
	}

	var event domain.CheckoutEvent
	if err := json.Unmarshal(m.Value, &event); err != nil {
		e.logger.Warn("error parsing message", zap.Error(err))
		return
	}
	if event.UserID == "" {
		e.logger.Warn("checkout event without user id", zap.String("checkout_id", event.CheckoutID))
		return
	}

	if err := e.cache.Delete(ctx, event.UserID); err != nil {
		e.logger.Warn("failed to delete cached cart", zap.String("user_id", event.UserID), zap.Error(err))
	}
}
