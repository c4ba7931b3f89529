package directory

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
)

// Cache stores raw lookups. store.RedisStore implements it.
type Cache interface {
	GetCached(ctx context.Context, key string) ([]byte, error)
	SetCached(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// CachedDirectory serves person lookups from a cache before asking the
// platform. Room profiles and memberships always go to the platform, since
// the resync depends on them being current.
type CachedDirectory struct {
	Directory
	cache  Cache
	ttl    time.Duration
	logger zerolog.Logger
}

// NewCachedDirectory wraps next with cache.
func NewCachedDirectory(next Directory, cache Cache, ttl time.Duration, logger zerolog.Logger) *CachedDirectory {
	return &CachedDirectory{Directory: next, cache: cache, ttl: ttl, logger: logger}
}

// GetPerson returns the cached person or fetches and caches it. Cache
// failures fall through to the platform.
func (d *CachedDirectory) GetPerson(ctx context.Context, personID string) (*Person, error) {
	key := "person:" + personID
	if raw, err := d.cache.GetCached(ctx, key); err == nil {
		var person Person
		if err := json.Unmarshal(raw, &person); err == nil {
			return &person, nil
		}
	}

	person, err := d.Directory.GetPerson(ctx, personID)
	if err != nil {
		return nil, err
	}

	if raw, err := json.Marshal(person); err == nil {
		if err := d.cache.SetCached(ctx, key, raw, d.ttl); err != nil {
			d.logger.Debug().Err(err).Str("person_id", personID).Msg("person cache write failed")
		}
	}
	return person, nil
}
