package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"kindred/internal/config"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key-12345678901234567890123456789012"

func initTestAuth() {
	InitMiddleware(&config.Config{
		JWTSecret:   testSecret,
		JWTIssuer:   "kindred-api",
		JWTAudience: "kindred-app",
	})
}

func TestAuthRequired(t *testing.T) {
	initTestAuth()
	app := fiber.New()
	app.Get("/test", AuthRequired, func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"userID": c.Locals("userID")})
	})

	valid, err := IssueToken(123, time.Hour)
	require.NoError(t, err)
	expired, err := IssueToken(123, -time.Hour)
	require.NoError(t, err)

	wrongAudience := func() string {
		claims := jwt.RegisteredClaims{
			Subject:   strconv.Itoa(123),
			Issuer:    "kindred-api",
			Audience:  jwt.ClaimStrings{"someone-else"},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		}
		s, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
		return s
	}()

	tests := []struct {
		name           string
		authHeader     string
		expectedStatus int
	}{
		{"Happy Path", "Bearer " + valid, http.StatusOK},
		{"Missing Header", "", http.StatusUnauthorized},
		{"Invalid Format", "Basic dXNlcjpwYXNz", http.StatusUnauthorized},
		{"Malformed Token", "Bearer malformed.token.here", http.StatusUnauthorized},
		{"Expired Token", "Bearer " + expired, http.StatusUnauthorized},
		{"Wrong Audience", "Bearer " + wrongAudience, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}

			resp, err := app.Test(req)
			require.NoError(t, err)
			defer func() { _ = resp.Body.Close() }()
			assert.Equal(t, tt.expectedStatus, resp.StatusCode)

			if tt.expectedStatus == http.StatusOK {
				var body map[string]interface{}
				require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
				assert.Equal(t, float64(123), body["userID"])
			}
		})
	}
}

func TestWebSocketAuthRequired(t *testing.T) {
	initTestAuth()
	_, rdb := newTestRedis(t)
	SetTicketStore(rdb)
	defer SetTicketStore(nil)

	app := fiber.New()
	app.Get("/ws-test", WebSocketAuthRequired, func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	token, err := IssueToken(1, time.Hour)
	require.NoError(t, err)
	ticket, err := IssueWSTicket(context.Background(), 1)
	require.NoError(t, err)

	tests := []struct {
		name           string
		query          string
		authHeader     string
		expectedStatus int
	}{
		{"Ticket", "?ticket=" + ticket, "", http.StatusOK},
		{"Ticket is single use", "?ticket=" + ticket, "", http.StatusUnauthorized},
		{"Token via Query Param", "?token=" + token, "", http.StatusOK},
		{"Token via Header", "", "Bearer " + token, http.StatusOK},
		{"Missing Token", "", "", http.StatusUnauthorized},
		{"Invalid Token", "?token=invalid-token", "", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/ws-test"+tt.query, nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}

			resp, err := app.Test(req)
			require.NoError(t, err)
			defer func() { _ = resp.Body.Close() }()
			assert.Equal(t, tt.expectedStatus, resp.StatusCode)
		})
	}
}
