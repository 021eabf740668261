// Package rtc mints short-lived tokens that let a matched pair join a call channel.
package rtc

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Minter issues a token for uid on channel.
type Minter interface {
	Mint(channel string, uid uint) (string, error)
}

// Claims carried by a call token.
type Claims struct {
	AppID   string `json:"app_id"`
	Channel string `json:"channel"`
	UID     uint   `json:"uid"`
	jwt.RegisteredClaims
}

// JWTMinter signs HS256 call tokens.
type JWTMinter struct {
	appID  string
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewJWTMinter creates a minter. A zero ttl defaults to one hour.
func NewJWTMinter(appID, secret string, ttl time.Duration) (*JWTMinter, error) {
	if secret == "" {
		return nil, errors.New("rtc secret is required")
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &JWTMinter{appID: appID, secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

func (m *JWTMinter) Mint(channel string, uid uint) (string, error) {
	if channel == "" || uid == 0 {
		return "", fmt.Errorf("channel and uid are required")
	}
	now := m.now()
	claims := Claims{
		AppID:   m.appID,
		Channel: channel,
		UID:     uid,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   fmt.Sprintf("%d", uid),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

// Verify parses a token minted by m.
func (m *JWTMinter) Verify(token string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return m.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(m.now))
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// ChannelForMatch names the call channel of a match.
func ChannelForMatch(matchID uint) string {
	return fmt.Sprintf("match-%d", matchID)
}
