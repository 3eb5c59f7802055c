package auth

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/loaninneed/attribution/internal/util"
	"github.com/redis/go-redis/v9"
)

var ErrInvalidToken = errors.New("invalid session token")

// TokenIssuer mints a customer session token after OTP verification.
type TokenIssuer interface {
	Issue(ctx context.Context, userID int64) (string, error)
}

// TokenVerifier resolves a bearer token to a customer id.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (int64, error)
}

// RedisSessionStore keeps opaque session tokens in Redis with a TTL.
// JWT issuance is owned by the platform auth service; this store is the
// session-side stand-in this subsystem needs to recognize customers.
type RedisSessionStore struct {
	rds    *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisSessionStore(rds *redis.Client, ttl time.Duration) *RedisSessionStore {
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &RedisSessionStore{rds: rds, prefix: "sess:", ttl: ttl}
}

func (s *RedisSessionStore) Issue(ctx context.Context, userID int64) (string, error) {
	token := util.NewULID()
	if err := s.rds.Set(ctx, s.prefix+token, userID, s.ttl).Err(); err != nil {
		return "", err
	}
	return token, nil
}

func (s *RedisSessionStore) Verify(ctx context.Context, token string) (int64, error) {
	v, err := s.rds.Get(ctx, s.prefix+token).Result()
	if err == redis.Nil {
		return 0, ErrInvalidToken
	}
	if err != nil {
		return 0, err
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil || id <= 0 {
		return 0, ErrInvalidToken
	}
	return id, nil
}
