package auth

import (
	"errors"
	"fmt"

	"wallpanel/internal/config"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// Domain errors for pairing flows.
var (
	ErrInvalidCode   = errors.New("invalid pairing code")
	ErrInvalidToken  = errors.New("invalid token")
	ErrNotConfigured = errors.New("pairing is not configured")
)

// Claims defines the device token claims.
type Claims struct {
	jwt.RegisteredClaims
	DeviceID string `json:"device_id"`
}

// PairingService exchanges the wall display's shared pairing code for a
// signed device token. There are no user accounts: anything on the family
// LAN that knows the code may drive the panel.
type PairingService struct {
	cfg   config.Auth
	clock clockwork.Clock
}

func NewPairingService(cfg config.Auth, clock clockwork.Clock) *PairingService {
	return &PairingService{cfg: cfg, clock: clock}
}

// Pair validates the code and issues a device token with a fresh device ID.
func (s *PairingService) Pair(code string) (token, deviceID string, err error) {
	if s.cfg.PairingCode == "" || s.cfg.SigningKey == "" {
		return "", "", ErrNotConfigured
	}
	if code != s.cfg.PairingCode {
		return "", "", ErrInvalidCode
	}

	deviceID = uuid.NewString()
	now := s.clock.Now()
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.TokenTTL())),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		DeviceID: deviceID,
	})
	token, err = t.SignedString([]byte(s.cfg.SigningKey))
	if err != nil {
		return "", "", fmt.Errorf("sign device token: %w", err)
	}
	return token, deviceID, nil
}

// ParseToken verifies a device token and returns its device ID.
func (s *PairingService) ParseToken(accessToken string) (string, error) {
	token, err := jwt.ParseWithClaims(accessToken, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.cfg.SigningKey), nil
	}, jwt.WithTimeFunc(s.clock.Now))
	if err != nil {
		return "", err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.DeviceID == "" {
		return "", ErrInvalidToken
	}
	return claims.DeviceID, nil
}
