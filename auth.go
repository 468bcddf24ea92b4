package main

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
)

const (
	pairRateWindow  = 60 * time.Second
	maxPairAttempts = 10
	secretSetting   = "pairing_secret"
)

var (
	ErrPairRate     = errors.New("too many pairing attempts, try again later")
	ErrInvalidToken = errors.New("invalid pairing token")
)

// Auth issues and checks gamepad pairing tokens. A token binds a controller
// to one player colour.
type Auth struct {
	secret []byte
	log    zerolog.Logger

	// IP -> attempts
	rateMu  sync.Mutex
	rateMap map[string]*rateEntry
}

type rateEntry struct {
	Count   int
	ResetAt time.Time
}

// NewAuth creates an Auth whose secret is persisted in db. A nil db gives
// a process-local secret.
func NewAuth(db *DB, log zerolog.Logger) *Auth {
	return &Auth{
		secret:  loadOrCreateSecret(db, log),
		log:     log,
		rateMap: make(map[string]*rateEntry),
	}
}

// loadOrCreateSecret loads the signing secret from the database, or generates
// and persists a new one if none exists.
func loadOrCreateSecret(db *DB, log zerolog.Logger) []byte {
	if db != nil {
		if h := db.GetSetting(secretSetting); h != "" {
			if b, err := hex.DecodeString(h); err == nil && len(b) == 32 {
				return b
			}
		}
	}
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		panic("failed to generate pairing secret: " + err.Error())
	}
	if db != nil {
		if err := db.SetSetting(secretSetting, hex.EncodeToString(secret)); err != nil {
			log.Warn().Err(err).Msg("could not persist pairing secret")
		}
	}
	return secret
}

// IssuePairing signs a token for colour c valid for ttl
func (a *Auth) IssuePairing(c Color, ttl time.Duration) (string, error) {
	if c == Neutral {
		return "", fmt.Errorf("cannot pair a %s controller", c)
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"col": c.String(),
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

// ValidatePairing checks tokenStr and returns the colour it pairs with
func (a *Auth) ValidatePairing(tokenStr string) (Color, error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return Neutral, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return Neutral, ErrInvalidToken
	}
	name, ok := claims["col"].(string)
	if !ok {
		return Neutral, fmt.Errorf("%w: missing colour", ErrInvalidToken)
	}
	c, err := ParseColor(name)
	if err != nil || c == Neutral {
		return Neutral, fmt.Errorf("%w: bad colour %q", ErrInvalidToken, name)
	}
	return c, nil
}

// Pair validates a token presented from ip. Only failures count against the
// per-IP budget; once it is spent every attempt waits out the window.
func (a *Auth) Pair(tokenStr, ip string) (Color, error) {
	if a.rateLimited(ip) {
		return Neutral, ErrPairRate
	}
	c, err := a.ValidatePairing(tokenStr)
	if err != nil {
		a.recordFailure(ip)
	}
	return c, err
}

func (a *Auth) rateLimited(ip string) bool {
	a.rateMu.Lock()
	defer a.rateMu.Unlock()
	entry, ok := a.rateMap[ip]
	if !ok || time.Now().After(entry.ResetAt) {
		return false
	}
	return entry.Count >= maxPairAttempts
}

func (a *Auth) recordFailure(ip string) {
	a.rateMu.Lock()
	defer a.rateMu.Unlock()

	now := time.Now()
	entry, ok := a.rateMap[ip]
	if !ok || now.After(entry.ResetAt) {
		a.rateMap[ip] = &rateEntry{Count: 1, ResetAt: now.Add(pairRateWindow)}
		return
	}
	entry.Count++
}
