// Package middleware provides authentication and authorization middleware for the application.
package middleware

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"kindred/internal/config"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var cfg *config.Config

var ticketStore *redis.Client

// InitMiddleware initializes authentication middleware with the given config.
func InitMiddleware(c *config.Config) {
	cfg = c
}

// SetTicketStore installs the Redis client used for websocket tickets.
func SetTicketStore(rdb *redis.Client) {
	ticketStore = rdb
}

const (
	wsTicketPrefix = "ws_ticket:"
	wsTicketTTL    = 60 * time.Second
)

// ErrInvalidToken is returned for any token that fails validation.
var ErrInvalidToken = errors.New("invalid or expired token")

// IssueToken signs an access token for userID. Accounts are provisioned
// outside this service; this is used by seed tooling and tests.
func IssueToken(userID uint, ttl time.Duration) (string, error) {
	if cfg == nil {
		return "", errors.New("middleware not initialized")
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatUint(uint64(userID), 10),
		Issuer:    cfg.JWTIssuer,
		Audience:  jwt.ClaimStrings{cfg.JWTAudience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		ID:        uuid.NewString(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.JWTSecret))
}

// ParseToken validates a bearer token and returns the user id in its subject.
func ParseToken(tokenString string) (uint, error) {
	if cfg == nil {
		return 0, errors.New("middleware not initialized")
	}
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if cfg.JWTIssuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.JWTIssuer))
	}
	if cfg.JWTAudience != "" {
		opts = append(opts, jwt.WithAudience(cfg.JWTAudience))
	}

	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return []byte(cfg.JWTSecret), nil
	}, opts...)
	if err != nil || !token.Valid {
		return 0, ErrInvalidToken
	}

	userID, err := strconv.ParseUint(claims.Subject, 10, 32)
	if err != nil || userID == 0 {
		return 0, ErrInvalidToken
	}
	return uint(userID), nil
}

func bearerToken(c *fiber.Ctx) (string, error) {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return "", errors.New("Authorization header required")
	}
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", errors.New("Invalid authorization header format")
	}
	return parts[1], nil
}

func unauthorized(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
		"error": msg,
		"code":  "UNAUTHORIZED",
	})
}

// AuthRequired is a middleware that enforces authentication for protected routes.
func AuthRequired(c *fiber.Ctx) error {
	tokenString, err := bearerToken(c)
	if err != nil {
		return unauthorized(c, err.Error())
	}

	userID, err := ParseToken(tokenString)
	if err != nil {
		return unauthorized(c, "Invalid or expired token")
	}

	c.Locals("userID", userID)
	return c.Next()
}

// IssueWSTicket stores a single-use websocket ticket for userID.
func IssueWSTicket(ctx context.Context, userID uint) (string, error) {
	if ticketStore == nil {
		return "", errors.New("ticket store unavailable")
	}
	ticket := uuid.NewString()
	if err := ticketStore.Set(ctx, wsTicketPrefix+ticket, userID, wsTicketTTL).Err(); err != nil {
		return "", fmt.Errorf("store ws ticket: %w", err)
	}
	return ticket, nil
}

func redeemWSTicket(ctx context.Context, ticket string) (uint, error) {
	if ticketStore == nil {
		return 0, errors.New("ticket store unavailable")
	}
	val, err := ticketStore.GetDel(ctx, wsTicketPrefix+ticket).Result()
	if err != nil {
		return 0, err
	}
	id, err := strconv.ParseUint(val, 10, 32)
	if err != nil {
		return 0, err
	}
	return uint(id), nil
}

// WebSocketAuthRequired authenticates upgrade requests. A single-use ticket in
// the query takes precedence, then a token query parameter, then the header.
func WebSocketAuthRequired(c *fiber.Ctx) error {
	if ticket := c.Query("ticket"); ticket != "" {
		userID, err := redeemWSTicket(c.UserContext(), ticket)
		if err != nil {
			return unauthorized(c, "Invalid or expired ticket")
		}
		c.Locals("userID", userID)
		return c.Next()
	}

	tokenString := c.Query("token")
	if tokenString == "" {
		var err error
		if tokenString, err = bearerToken(c); err != nil {
			return unauthorized(c, "Token required")
		}
	}

	userID, err := ParseToken(tokenString)
	if err != nil {
		return unauthorized(c, "Invalid or expired token")
	}
	c.Locals("userID", userID)
	return c.Next()
}
