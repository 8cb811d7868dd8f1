package redis

import (
	"context"
	"errors"
	"log"
	"time"

	goredis "github.com/go-redis/redis/v8"
)

const catalogueKeyPrefix = "samco:scripmaster:"

// CatalogueStore shares the downloaded scrip master between processes, one
// key per cutoff day. Calls go through a circuit breaker so a Redis outage
// costs one failed call per reset window instead of one per refresh.
type CatalogueStore struct {
	client *goredis.Client
	cb     *CircuitBreaker
}

// NewCatalogueStore wraps client with cb. cb may be nil.
func NewCatalogueStore(client *goredis.Client, cb *CircuitBreaker) *CatalogueStore {
	if cb == nil {
		cb = NewCircuitBreaker("catalogue", 3, 30*time.Second)
	}
	return &CatalogueStore{client: client, cb: cb}
}

// CatalogueKey names the key holding the catalogue for day.
func CatalogueKey(day string) string {
	return catalogueKeyPrefix + day
}

// LoadCatalogue returns the stored CSV for day, or nil when none is stored.
func (s *CatalogueStore) LoadCatalogue(ctx context.Context, day string) ([]byte, error) {
	var out []byte
	err := s.cb.Execute(func() error {
		b, err := s.client.Get(ctx, CatalogueKey(day)).Bytes()
		if errors.Is(err, goredis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}
		out = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SaveCatalogue stores csv for day, expiring after ttl.
func (s *CatalogueStore) SaveCatalogue(ctx context.Context, day string, csv []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return s.cb.Execute(func() error {
		if err := s.client.Set(ctx, CatalogueKey(day), csv, ttl).Err(); err != nil {
			return err
		}
		log.Printf("[redis] stored scrip master for %s (%d bytes, ttl %v)", day, len(csv), ttl.Round(time.Second))
		return nil
	})
}

// DeleteCatalogue removes the CSV stored for day. Deleting a missing key is not an error.
func (s *CatalogueStore) DeleteCatalogue(ctx context.Context, day string) error {
	return s.cb.Execute(func() error {
		if err := s.client.Del(ctx, CatalogueKey(day)).Err(); err != nil {
			return err
		}
		log.Printf("[redis] discarded scrip master for %s", day)
		return nil
	})
}

// Breaker returns the store's circuit breaker.
func (s *CatalogueStore) Breaker() *CircuitBreaker { return s.cb }
