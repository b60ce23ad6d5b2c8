package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"

	"leasing/risk-engine/internal/domain"
)

// Key layout: risk:assessment:{request_id} → JSON-encoded domain.Assessment.
const assessmentKeyPrefix = "risk:assessment:"

// Redis keeps assessments as JSON blobs with a TTL. It covers the replay
// window only; the Postgres table is the permanent audit record.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis creates a store on client. A non-positive ttl keeps keys forever.
func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	return &Redis{client: client, ttl: ttl}
}

// ConnectRedis parses a redis:// URL and verifies the connection.
func ConnectRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, eris.Wrap(err, "store: parse redis url")
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, eris.Wrap(err, "store: ping redis")
	}
	return client, nil
}

func assessmentKey(requestID string) string {
	return assessmentKeyPrefix + requestID
}

// Save writes the assessment with SET NX so the first writer wins.
func (r *Redis) Save(ctx context.Context, a *domain.Assessment) error {
	data, err := json.Marshal(a)
	if err != nil {
		return eris.Wrap(err, "store: marshal assessment")
	}
	ttl := r.ttl
	if ttl < 0 {
		ttl = 0
	}
	ok, err := r.client.SetNX(ctx, assessmentKey(a.Request.RequestID), data, ttl).Result()
	if err != nil {
		return eris.Wrapf(err, "store: save assessment %s", a.Request.RequestID)
	}
	if !ok {
		return ErrDuplicateRequest
	}
	return nil
}

// Get returns the cached assessment for requestID.
func (r *Redis) Get(ctx context.Context, requestID string) (*domain.Assessment, error) {
	data, err := r.client.Get(ctx, assessmentKey(requestID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "store: get assessment %s", requestID)
	}
	var a domain.Assessment
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, eris.Wrapf(err, "store: decode assessment %s", requestID)
	}
	return &a, nil
}
