package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/suPer8Hu/anthem-ai/internal/anthem"
)

const defaultEventTTL = time.Hour

// Store carries run progress events between the worker and the API over
// Redis pub/sub, and keeps the last event of each run for late subscribers.
type Store struct {
	rdb      *redis.Client
	eventTTL time.Duration
}

func New(addr, password string, db int) *Store {
	return NewFromClient(redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	}))
}

func NewFromClient(rdb *redis.Client) *Store {
	return &Store{rdb: rdb, eventTTL: defaultEventTTL}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *Store) Close() error {
	return s.rdb.Close()
}

func EventsChannel(runID string) string { return "anthem:events:" + runID }

func lastEventKey(runID string) string { return "anthem:last_event:" + runID }

// Publish implements anthem.EventSink.
func (s *Store) Publish(ctx context.Context, ev anthem.Event) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, lastEventKey(ev.RunID), b, s.eventTTL)
	pipe.Publish(ctx, EventsChannel(ev.RunID), b)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redisstore: publish event: %w", err)
	}
	return nil
}

// LastEvent returns the most recent event of a run, or nil if none is cached.
func (s *Store) LastEvent(ctx context.Context, runID string) (*anthem.Event, error) {
	b, err := s.rdb.Get(ctx, lastEventKey(runID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	ev, err := decodeEvent(b)
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

// Subscribe streams the run's events until ctx is done. The channel is
// closed when the subscription ends.
func (s *Store) Subscribe(ctx context.Context, runID string) (<-chan anthem.Event, error) {
	ps := s.rdb.Subscribe(ctx, EventsChannel(runID))
	// wait for the confirmation so no event published after we return is lost
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("redisstore: subscribe: %w", err)
	}

	out := make(chan anthem.Event, 16)
	go func() {
		defer close(out)
		defer ps.Close()

		msgs := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-msgs:
				if !ok {
					return
				}
				ev, err := decodeEvent([]byte(m.Payload))
				if err != nil {
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func decodeEvent(b []byte) (anthem.Event, error) {
	var ev anthem.Event
	if err := json.Unmarshal(b, &ev); err != nil {
		return anthem.Event{}, fmt.Errorf("redisstore: decode event: %w", err)
	}
	return ev, nil
}
