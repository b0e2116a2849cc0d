package outcomes

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/e-kose/FT-PINPON-sub000/domain"
	"github.com/redis/go-redis/v9"
)

const (
	EventMatchFinished      = "match_finished"
	EventTournamentFinished = "tournament_finished"
)

// Event is the message published for every outcome.
type Event struct {
	Type       string                    `json:"type"`
	Match      *domain.MatchOutcome      `json:"match,omitempty"`
	Tournament *domain.TournamentOutcome `json:"tournament,omitempty"`
}

// RedisPublisher publishes outcomes on a channel for the stats service and keeps
// win counters in sorted sets.
type RedisPublisher struct {
	client  *redis.Client
	channel string
}

// NewRedisPublisher connects to url and verifies the connection.
func NewRedisPublisher(url, channel string) (*RedisPublisher, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %w", domain.UnexpectedPublishError, err)
	}
	return NewRedisPublisherWithClient(client, channel), nil
}

// NewRedisPublisherWithClient wraps an existing client (for testing)
func NewRedisPublisherWithClient(client *redis.Client, channel string) *RedisPublisher {
	return &RedisPublisher{client: client, channel: channel}
}

func (p *RedisPublisher) Ping(ctx context.Context) error {
	if err := p.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %w", domain.UnexpectedPublishError, err)
	}
	return nil
}

func (p *RedisPublisher) Close() error {
	return p.client.Close()
}

func (p *RedisPublisher) matchWinsKey() string {
	return p.channel + ":wins:match"
}

func (p *RedisPublisher) tournamentWinsKey() string {
	return p.channel + ":wins:tournament"
}

func (p *RedisPublisher) RecordMatch(ctx context.Context, o domain.MatchOutcome) error {
	data, err := json.Marshal(Event{Type: EventMatchFinished, Match: &o})
	if err != nil {
		return fmt.Errorf("%w: %w", domain.UnexpectedPublishError, err)
	}

	pipe := p.client.TxPipeline()
	pipe.ZIncrBy(ctx, p.matchWinsKey(), 1, o.WinnerId)
	pipe.Publish(ctx, p.channel, data)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %w", domain.UnexpectedPublishError, err)
	}
	return nil
}

func (p *RedisPublisher) RecordTournament(ctx context.Context, o domain.TournamentOutcome) error {
	data, err := json.Marshal(Event{Type: EventTournamentFinished, Tournament: &o})
	if err != nil {
		return fmt.Errorf("%w: %w", domain.UnexpectedPublishError, err)
	}

	pipe := p.client.TxPipeline()
	pipe.ZIncrBy(ctx, p.tournamentWinsKey(), 1, o.ChampionId)
	pipe.Publish(ctx, p.channel, data)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %w", domain.UnexpectedPublishError, err)
	}
	return nil
}
