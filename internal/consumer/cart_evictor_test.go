package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	c "github.com/fjod/go_shop/internal/cache"
	"github.com/fjod/go_shop/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
	"gotest.tools/v3/assert"
	"gotest.tools/v3/poll"
)

// channelReader serves queued messages, then blocks until the context ends.
type channelReader struct {
	messages chan kafka.Message
	closed   bool
	m        sync.Mutex
}

func (r *channelReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case msg := <-r.messages:
		return msg, nil
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	}
}

func (r *channelReader) Close() error {
	r.m.Lock()
	defer r.m.Unlock()
	r.closed = true
	return nil
}

func setupTestRedis(t *testing.T) *c.RedisCache {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return c.NewRedisCache(client, time.Minute)
}

func eventMessage(t *testing.T, event domain.CheckoutEvent) kafka.Message {
	payload, err := json.Marshal(event)
	assert.NilError(t, err)
	return kafka.Message{Key: []byte(event.CheckoutID), Value: payload}
}

func TestCartEvictor_DeletesCachedCart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cache := setupTestRedis(t)

	assert.NilError(t, cache.Set(ctx, "u1", &domain.CartDetail{Cart: []domain.CartLine{{ProductID: "p1", Quantity: 1}}}))
	assert.NilError(t, cache.Set(ctx, "u2", &domain.CartDetail{}))

	reader := &channelReader{messages: make(chan kafka.Message, 3)}
	reader.messages <- kafka.Message{Value: []byte("not json")}
	reader.messages <- eventMessage(t, domain.CheckoutEvent{CheckoutID: "c0"})
	reader.messages <- eventMessage(t, domain.CheckoutEvent{CheckoutID: "c1", UserID: "u1"})
	evictor := &CartEvictor{reader: reader, cache: cache, logger: zap.NewNop()}

	go evictor.Run(ctx)

	poll.WaitOn(t, func(poll.LogT) poll.Result {
		if _, err := cache.Get(ctx, "u1"); errors.Is(err, c.ErrCacheMiss) {
			return poll.Success()
		}
		return poll.Continue("cart of u1 still cached")
	}, poll.WithTimeout(2*time.Second), poll.WithDelay(10*time.Millisecond))

	_, err := cache.Get(ctx, "u2")
	assert.NilError(t, err)
}

func TestCartEvictor_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	reader := &channelReader{messages: make(chan kafka.Message)}
	evictor := &CartEvictor{reader: reader, cache: setupTestRedis(t), logger: zap.NewNop()}

	done := make(chan struct{})
	go func() {
		evictor.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("evictor did not stop")
	}

	evictor.Close()
	assert.Assert(t, reader.closed)
}
