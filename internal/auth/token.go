// Package auth issues the seat tokens players present to reclaim their seat
// after a reconnect.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var ErrInvalidToken = errors.New("invalid seat token")

// Claims binds a token to one player in one room.
type Claims struct {
	RoomID   string    `json:"room"`
	PlayerID uuid.UUID `json:"player"`
	jwt.RegisteredClaims
}

// Signer signs and verifies HS256 seat tokens.
type Signer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSigner returns a signer. A zero ttl issues tokens that never expire.
func NewSigner(secret string, ttl time.Duration) (*Signer, error) {
	if secret == "" {
		return nil, errors.New("jwt secret must not be empty")
	}
	return &Signer{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

func (s *Signer) Issue(roomID string, playerID uuid.UUID) (string, error) {
	now := s.now()
	claims := Claims{
		RoomID:   roomID,
		PlayerID: playerID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(now),
			Subject:  playerID.String(),
		},
	}
	if s.ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(s.ttl))
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign seat token: %w", err)
	}
	return tok, nil
}

func (s *Signer) Verify(token string) (Claims, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.RoomID == "" || claims.PlayerID == uuid.Nil {
		return Claims{}, ErrInvalidToken
	}
	return claims, nil
}
