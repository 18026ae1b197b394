package repository

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"storefront/internal/domain"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// SessionCartRepository keeps guest carts in Redis, one hash per session.
// Hash fields are product ids and values are quantities, so HINCRBY gives
// the same one-line-per-product guarantee as the account cart's unique constraint.
// The reserved generationField holds the cart's generation token. Every write
// refreshes the session TTL.
type SessionCartRepository struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSessionCartRepository creates a Redis backed guest cart store
func NewSessionCartRepository(client *redis.Client, ttl time.Duration) *SessionCartRepository {
	return &SessionCartRepository{client: client, ttl: ttl}
}

const generationField = "_gen"

// GuestSnapshot is a guest cart read at one instant. Generation changes every
// time merged lines are drained or the cart is cleared, so two snapshots with
// equal lines but different generations are different carts.
type GuestSnapshot struct {
	Generation string
	Lines      []domain.CartLine
}

// drainScript subtracts merged quantities only while the cart still carries
// the generation they were read under. Fields that reach zero are removed and
// the survivors get a new generation.
var drainScript = redis.NewScript(`
local current = redis.call("HGET", KEYS[1], ARGV[1]) or ""
if current ~= ARGV[2] then
	return 0
end
for i = 4, #ARGV, 2 do
	local left = redis.call("HINCRBY", KEYS[1], ARGV[i], -tonumber(ARGV[i + 1]))
	if left <= 0 then
		redis.call("HDEL", KEYS[1], ARGV[i])
	end
end
redis.call("HDEL", KEYS[1], ARGV[1])
if redis.call("HLEN", KEYS[1]) > 0 then
	redis.call("HSET", KEYS[1], ARGV[1], ARGV[3])
end
return 1
`)

func sessionCartKey(sessionID string) string {
	return fmt.Sprintf("cart:session:%s", sessionID)
}

func (r *SessionCartRepository) Lines(ctx context.Context, sessionID string) ([]domain.CartLine, error) {
	snapshot, err := r.Snapshot(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return snapshot.Lines, nil
}

// Snapshot reads lines and generation with one HGETALL.
func (r *SessionCartRepository) Snapshot(ctx context.Context, sessionID string) (GuestSnapshot, error) {
	values, err := r.client.HGetAll(ctx, sessionCartKey(sessionID)).Result()
	if err != nil {
		return GuestSnapshot{}, fmt.Errorf("redis hgetall failed: %w", err)
	}

	lines, err := parseSessionCart(values)
	if err != nil {
		return GuestSnapshot{}, err
	}
	return GuestSnapshot{Generation: values[generationField], Lines: lines}, nil
}

// Drain removes the merged quantities of snapshot from the cart. Lines added
// after the snapshot was read stay behind. A cart whose generation moved on
// is left alone and Drain reports false.
func (r *SessionCartRepository) Drain(ctx context.Context, sessionID string, snapshot GuestSnapshot) (bool, error) {
	args := make([]interface{}, 0, 3+2*len(snapshot.Lines))
	args = append(args, generationField, snapshot.Generation, uuid.NewString())
	for _, line := range snapshot.Lines {
		args = append(args, line.ProductID.String(), line.Quantity)
	}

	drained, err := drainScript.Run(ctx, r.client, []string{sessionCartKey(sessionID)}, args...).Int()
	if err != nil {
		return false, fmt.Errorf("redis drain failed: %w", err)
	}
	return drained == 1, nil
}

func parseSessionCart(values map[string]string) ([]domain.CartLine, error) {
	lines := make([]domain.CartLine, 0, len(values))
	for field, raw := range values {
		if field == generationField {
			continue
		}
		productID, err := uuid.Parse(field)
		if err != nil {
			return nil, fmt.Errorf("corrupt cart field %q: %w", field, err)
		}
		quantity, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("corrupt quantity for product %s: %w", productID, err)
		}
		if quantity < 1 {
			continue
		}
		lines = append(lines, domain.CartLine{ProductID: productID, Quantity: quantity})
	}
	domain.SortLines(lines)

	return lines, nil
}

func (r *SessionCartRepository) Increment(ctx context.Context, sessionID string, productID uuid.UUID, delta int) (int, error) {
	key := sessionCartKey(sessionID)

	var incr *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSetNX(ctx, key, generationField, uuid.NewString())
		incr = pipe.HIncrBy(ctx, key, productID.String(), int64(delta))
		pipe.Expire(ctx, key, r.ttl)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("redis hincrby failed: %w", err)
	}

	return int(incr.Val()), nil
}

func (r *SessionCartRepository) SetQuantity(ctx context.Context, sessionID string, productID uuid.UUID, quantity int) error {
	key := sessionCartKey(sessionID)

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSetNX(ctx, key, generationField, uuid.NewString())
		pipe.HSet(ctx, key, productID.String(), quantity)
		pipe.Expire(ctx, key, r.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis hset failed: %w", err)
	}

	return nil
}

func (r *SessionCartRepository) Remove(ctx context.Context, sessionID string, productID uuid.UUID) error {
	if err := r.client.HDel(ctx, sessionCartKey(sessionID), productID.String()).Err(); err != nil {
		return fmt.Errorf("redis hdel failed: %w", err)
	}
	return nil
}

func (r *SessionCartRepository) Clear(ctx context.Context, sessionID string) error {
	if err := r.client.Del(ctx, sessionCartKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}
