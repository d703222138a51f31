// Package challenge implements the proof-of-possession protocol for card
// activation and tap-to-pay. A challenge is a random 16-byte value issued
// against the hash of a card UID, valid for a short TTL and usable exactly
// once. The expected response is HMAC-SHA-256 over the challenge under a
// per-card key derived from a master key:
//
//	K_card  = HMAC-SHA-256(masterKey, "card-key:" || uidHash)
//	expect  = HMAC-SHA-256(K_card, challengeBytes)
//
// The master key stands in for HSM-resident material; it never leaves this
// package.
package challenge

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"nfcpay/internal/errors"
)

const challengeBytes = 16

// Validator is the consumer-facing half of the service; the tap-to-pay
// processor depends on this interface only.
type Validator interface {
	Validate(ctx context.Context, cardUID, challenge, response string) error
}

// Service issues and validates single-use challenges.
type Service struct {
	store     Store
	masterKey []byte
	ttl       time.Duration
}

// NewService creates a challenge service.
func NewService(store Store, masterKey string, ttl time.Duration) *Service {
	return &Service{
		store:     store,
		masterKey: []byte(masterKey),
		ttl:       ttl,
	}
}

// TTL returns the validity window of issued challenges.
func (s *Service) TTL() time.Duration {
	return s.ttl
}

// HashUID returns the hex SHA-256 hash of a raw card UID. Raw UIDs are
// never persisted; everything downstream keys on this hash.
func HashUID(cardUID string) string {
	sum := sha256.Sum256([]byte(cardUID))
	return hex.EncodeToString(sum[:])
}

// Issue generates a fresh challenge for the card and stores it keyed by
// the UID hash. Any outstanding challenge for the card is replaced.
func (s *Service) Issue(ctx context.Context, cardUID string) (string, error) {
	buf := make([]byte, challengeBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate challenge: %w", err)
	}
	value := hex.EncodeToString(buf)
	now := time.Now()
	rec := Record{
		Value:     value,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.ttl),
	}
	// Retained past expiry so a late response reports ChallengeExpired
	// rather than ChallengeNotFound.
	if err := s.store.Put(ctx, HashUID(cardUID), rec, 2*s.ttl); err != nil {
		return "", err
	}
	return value, nil
}

// Validate consumes the card's outstanding challenge and checks the
// response. The challenge is consumed regardless of outcome, so a reused
// value can never succeed twice, even under concurrent validation.
func (s *Service) Validate(ctx context.Context, cardUID, challenge, response string) error {
	rec, used, err := s.store.Consume(ctx, HashUID(cardUID))
	if err != nil {
		return err
	}
	if rec == nil {
		return errors.ErrChallengeNotFound
	}
	if used {
		return errors.ErrChallengeAlreadyUsed
	}
	if time.Now().After(rec.ExpiresAt) {
		return errors.ErrChallengeExpired
	}
	if rec.Value != challenge {
		return errors.ErrCryptoValidationFailed
	}

	expected, err := s.expectedResponse(HashUID(cardUID), rec.Value)
	if err != nil {
		return err
	}
	got, err := hex.DecodeString(response)
	if err != nil {
		return errors.ErrCryptoValidationFailed
	}
	if !hmac.Equal(expected, got) {
		return errors.ErrCryptoValidationFailed
	}
	return nil
}

// ComputeResponse performs the card-side computation. It exists for the
// seed tool and tests, which simulate the chip.
func (s *Service) ComputeResponse(cardUID, challenge string) (string, error) {
	expected, err := s.expectedResponse(HashUID(cardUID), challenge)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(expected), nil
}

func (s *Service) expectedResponse(uidHash, challenge string) ([]byte, error) {
	raw, err := hex.DecodeString(challenge)
	if err != nil {
		return nil, errors.ErrCryptoValidationFailed
	}
	cardKey := s.cardKey(uidHash)
	mac := hmac.New(sha256.New, cardKey)
	mac.Write(raw)
	return mac.Sum(nil), nil
}

func (s *Service) cardKey(uidHash string) []byte {
	mac := hmac.New(sha256.New, s.masterKey)
	mac.Write([]byte("card-key:" + uidHash))
	return mac.Sum(nil)
}
