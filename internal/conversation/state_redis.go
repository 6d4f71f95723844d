package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/salon-concierge/internal/events"
	"github.com/wolfman30/salon-concierge/pkg/clock"
	"github.com/wolfman30/salon-concierge/pkg/logging"
)

var errUndecodableState = errors.New("conversation: undecodable state")

// RedisStateStore keeps conversation state in Redis with a per-key TTL.
// Put uses WATCH/MULTI so a concurrent writer on another node loses with
// ErrStateConflict instead of silently overwriting.
type RedisStateStore struct {
	redis  *redis.Client
	tracer trace.Tracer
	clock  clock.Clock
	logger *logging.Logger
}

func NewRedisStateStore(client *redis.Client, tracer trace.Tracer, c clock.Clock) *RedisStateStore {
	if client == nil {
		panic("conversation: redis client cannot be nil")
	}
	if tracer == nil {
		tracer = otel.Tracer("salon.internal.conversation.state")
	}
	if c == nil {
		c = clock.New()
	}
	return &RedisStateStore{redis: client, tracer: tracer, clock: c, logger: logging.Default()}
}

// WithLogger sets the logger used for discarded state.
func (s *RedisStateStore) WithLogger(logger *logging.Logger) *RedisStateStore {
	if logger != nil {
		s.logger = logger
	}
	return s
}

func stateKey(key events.ConversationKey) string {
	return fmt.Sprintf("booking_state:%s", key.String())
}

func (s *RedisStateStore) Get(ctx context.Context, key events.ConversationKey) (*State, error) {
	ctx, span := s.tracer.Start(ctx, "conversation.load_state")
	defer span.End()

	k := stateKey(key)
	st, err := readState(ctx, s.redis, k)
	if errors.Is(err, errUndecodableState) {
		// State is disposable: drop it and let the conversation start over.
		span.RecordError(err)
		s.logger.Warn("discarding undecodable conversation state", "error", err, "salon_id", key.SalonID)
		if delErr := s.redis.Del(ctx, k).Err(); delErr != nil {
			return nil, fmt.Errorf("%w: delete undecodable state: %v", ErrStorageUnavailable, delErr)
		}
		return nil, nil
	}
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return st, nil
}

func (s *RedisStateStore) Put(ctx context.Context, st *State, ttl time.Duration) error {
	ctx, span := s.tracer.Start(ctx, "conversation.save_state")
	defer span.End()

	if ttl <= 0 {
		ttl = DefaultStateTTL
	}
	k := stateKey(st.Key)

	err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
		existing, err := readState(ctx, tx, k)
		if err != nil && !errors.Is(err, errUndecodableState) {
			return err
		}
		var current int64
		if existing != nil {
			current = existing.Version
		}
		if current != st.Version {
			return ErrStateConflict
		}

		next := st.Clone()
		now := s.clock.Now()
		next.Version++
		if next.CreatedAt.IsZero() {
			next.CreatedAt = now
		}
		next.UpdatedAt = now
		next.ExpiresAt = now.Add(ttl)
		data, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("conversation: failed to marshal state: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, k, data, ttl)
			return nil
		})
		if err != nil {
			return err
		}
		*st = *next
		return nil
	}, k)

	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrStateConflict), errors.Is(err, redis.TxFailedErr):
		span.RecordError(ErrStateConflict)
		return ErrStateConflict
	default:
		span.RecordError(err)
		if errors.Is(err, ErrStorageUnavailable) {
			return err
		}
		return fmt.Errorf("%w: save state: %v", ErrStorageUnavailable, err)
	}
}

func (s *RedisStateStore) Delete(ctx context.Context, key events.ConversationKey) error {
	ctx, span := s.tracer.Start(ctx, "conversation.delete_state")
	defer span.End()

	if err := s.redis.Del(ctx, stateKey(key)).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("%w: delete state: %v", ErrStorageUnavailable, err)
	}
	return nil
}

func readState(ctx context.Context, r redis.Cmdable, k string) (*State, error) {
	data, err := r.Get(ctx, k).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: load state: %v", ErrStorageUnavailable, err)
	}
	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("%w: %v", errUndecodableState, err)
	}
	return &st, nil
}
