package auth

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// OTPVerifier checks a one-time code previously delivered to the phone.
// Delivery and storage of codes belong to the platform OTP service.
type OTPVerifier interface {
	Verify(ctx context.Context, phone, code string) (bool, error)
}

// RedisOTPVerifier validates against codes the OTP service parks in Redis
// under "otp:<phone>". The code is consumed on first successful match.
type RedisOTPVerifier struct {
	store *RedisSessionStore
}

func NewRedisOTPVerifier(store *RedisSessionStore) *RedisOTPVerifier {
	return &RedisOTPVerifier{store: store}
}

func (v *RedisOTPVerifier) Verify(ctx context.Context, phone, code string) (bool, error) {
	key := "otp:" + phone
	stored, err := v.store.rds.Get(ctx, key).Result()
	if err == redis.Nil {
		return false, nil // missing or expired code
	}
	if err != nil {
		return false, err
	}
	if stored != code {
		return false, nil
	}
	_ = v.store.rds.Del(ctx, key).Err()
	return true, nil
}
