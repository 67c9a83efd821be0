package authapi

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"

	"github.com/sven3270350/Home-Entergy-Test/internal/users"
)

var ErrRefreshUnavailable = errors.New("refresh token store not configured")

// TokenService signs access tokens with the process-wide shared secret and
// keeps rotating refresh tokens in redis. Rotating the secret invalidates
// every outstanding access token at once.
type TokenService struct {
	secret          string
	accessTokenTTL  time.Duration
	refreshTokenTTL time.Duration
	redisClient     *redis.Client
}

func NewTokenService(secret string, accessTTL, refreshTTL time.Duration, redisClient *redis.Client) *TokenService {
	return &TokenService{
		secret:          secret,
		accessTokenTTL:  accessTTL,
		refreshTokenTTL: refreshTTL,
		redisClient:     redisClient,
	}
}

func (s *TokenService) IssueAccessToken(user *users.User) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":       user.Email,
		"user_id":   user.ID,
		"full_name": user.FullName,
		"exp":       now.Add(s.accessTokenTTL).Unix(),
		"iat":       now.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.secret))
}

func (s *TokenService) IssueRefreshToken(ctx context.Context, email string) (string, error) {
	if s.redisClient == nil {
		return "", ErrRefreshUnavailable
	}
	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", fmt.Errorf("failed to generate random token: %w", err)
	}
	tokenID := base64.URLEncoding.EncodeToString(tokenBytes)

	key := "refresh_token:" + tokenID
	if err := s.redisClient.Set(ctx, key, email, s.refreshTokenTTL).Err(); err != nil {
		return "", err
	}
	return tokenID, nil
}

// RotateRefreshToken validates and consumes a refresh token, returning the
// account email it was issued for.
func (s *TokenService) RotateRefreshToken(ctx context.Context, token string) (string, error) {
	if s.redisClient == nil {
		return "", ErrRefreshUnavailable
	}
	key := "refresh_token:" + token
	email, err := s.redisClient.Get(ctx, key).Result()
	if err != nil {
		return "", errors.New("invalid or expired refresh token")
	}
	_ = s.redisClient.Del(ctx, key).Err()
	return email, nil
}
