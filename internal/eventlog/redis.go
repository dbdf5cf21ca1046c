package eventlog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"rapidphoto/internal/config"
	"rapidphoto/internal/model"
)

// EventLog persists the sequence-stamped progress events for a job so a
// subscriber that reconnects can detect gaps and replay what it missed.
// The broker stays purely live; this is the durable side channel.
type EventLog interface {
	// Append stores an event in the job's history
	Append(ctx context.Context, jobID string, event model.ProgressEvent) error

	// Recent returns up to limit most recent events for a job, oldest first
	Recent(ctx context.Context, jobID string, limit int) ([]model.ProgressEvent, error)

	// Drop discards a job's history
	Drop(ctx context.Context, jobID string) error

	// Ping tests the connection to the backing store
	Ping(ctx context.Context) error

	// Close releases resources
	Close() error
}

// RedisEventLog implements EventLog on Redis lists, one list per job
type RedisEventLog struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	limit  int
}

// NewRedisEventLog creates a new Redis-backed event log
func NewRedisEventLog(config config.RedisConfig) (*RedisEventLog, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     config.Address,
		Password: config.Password,
		DB:       config.DB,
	})

	// Verify the connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		log.Error().Err(err).Msg("Failed to connect to Redis")
		return nil, err
	}

	log.Info().
		Str("address", config.Address).
		Str("prefix", config.Prefix).
		Int("db", config.DB).
		Msg("Redis event log initialized successfully")

	return &RedisEventLog{
		client: client,
		prefix: config.Prefix,
		ttl:    time.Duration(config.EventTTLMinutes) * time.Minute,
		limit:  config.EventLimit,
	}, nil
}

func (l *RedisEventLog) formatKey(jobID string) string {
	return l.prefix + ":events:" + jobID
}

// Append stores an event at the tail of the job's history list, trims the
// list to the retention cap and refreshes the TTL
func (l *RedisEventLog) Append(ctx context.Context, jobID string, event model.ProgressEvent) error {
	key := l.formatKey(jobID)

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	start := time.Now()
	pipe := l.client.TxPipeline()
	pipe.RPush(ctx, key, payload)
	pipe.LTrim(ctx, key, int64(-l.limit), -1)
	pipe.Expire(ctx, key, l.ttl)
	_, err = pipe.Exec(ctx)
	duration := time.Since(start)

	if err != nil {
		log.Error().
			Err(err).
			Str("key", key).
			Uint64("sequence", event.Sequence).
			Dur("duration", duration).
			Msg("Error appending event to Redis")
		return err
	}

	log.Debug().
		Str("key", key).
		Str("type", string(event.Type)).
		Uint64("sequence", event.Sequence).
		Dur("duration", duration).
		Msg("Appended progress event")

	return nil
}

// Recent returns up to limit most recent events for a job, oldest first
func (l *RedisEventLog) Recent(ctx context.Context, jobID string, limit int) ([]model.ProgressEvent, error) {
	key := l.formatKey(jobID)
	if limit <= 0 || limit > l.limit {
		limit = l.limit
	}

	start := time.Now()
	raw, err := l.client.LRange(ctx, key, int64(-limit), -1).Result()
	duration := time.Since(start)

	if err != nil {
		log.Error().
			Err(err).
			Str("key", key).
			Dur("duration", duration).
			Msg("Error reading events from Redis")
		return nil, err
	}

	events := make([]model.ProgressEvent, 0, len(raw))
	for _, item := range raw {
		var event model.ProgressEvent
		if err := json.Unmarshal([]byte(item), &event); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("Skipping undecodable event")
			continue
		}
		events = append(events, event)
	}

	log.Debug().
		Str("key", key).
		Int("count", len(events)).
		Dur("duration", duration).
		Msg("Read progress events")

	return events, nil
}

// Drop discards a job's history
func (l *RedisEventLog) Drop(ctx context.Context, jobID string) error {
	key := l.formatKey(jobID)

	err := l.client.Del(ctx, key).Err()
	if err != nil {
		log.Error().Err(err).Str("key", key).Msg("Error dropping event history")
		return err
	}

	log.Debug().Str("key", key).Msg("Dropped event history")
	return nil
}

// Ping tests the connection to Redis
func (l *RedisEventLog) Ping(ctx context.Context) error {
	err := l.client.Ping(ctx).Err()
	if err != nil {
		log.Error().Err(err).Msg("Error pinging Redis")
		return err
	}

	return nil
}

// Close releases resources used by the event log
func (l *RedisEventLog) Close() error {
	log.Info().Msg("Closing Redis event log connection")
	return l.client.Close()
}
