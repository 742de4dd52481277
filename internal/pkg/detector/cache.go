package detector

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"deepfake/internal/pkg/hash"
	"deepfake/internal/pkg/media"
	"deepfake/internal/pkg/redis"

	"github.com/go-kratos/kratos/v2/log"
)

// HotCache is the short-lived key/value layer of the assessment cache.
type HotCache interface {
	GetString(ctx context.Context, key string) (string, error)
	SetString(ctx context.Context, key, value string, exp time.Duration) error
}

// MembershipFilter answers "possibly seen" for content hashes.
type MembershipFilter interface {
	MayContain(ctx context.Context, key string) (bool, error)
	Add(ctx context.Context, key string) error
}

// AssessmentStore persists assessments by content hash.
type AssessmentStore interface {
	// FindAssessment returns nil without error when nothing is stored.
	FindAssessment(ctx context.Context, contentHash string) (*Assessment, error)
	SaveAssessment(ctx context.Context, contentHash, mimeType string, assessment Assessment) error
}

// CacheConfig holds configuration for the assessment cache.
type CacheConfig struct {
	TTL            time.Duration // hot cache expiry
	KeyPrefix      string        // hot cache key prefix
	BloomBits      uint          // Bloom filter size in bits
	BloomHashFuncs uint          // Number of hash functions for Bloom filter
	BloomKey       string        // Redis key for the content Bloom filter
}

// DefaultCacheConfig returns default configuration.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		TTL:            24 * time.Hour,
		KeyPrefix:      "deepfake:assessment:",
		BloomBits:      1 << 20, // ~1M bits = 128KB
		BloomHashFuncs: 7,
		BloomKey:       "deepfake:bloom:assessment",
	}
}

// CachedAssessor memoizes assessments of identical payloads.
// Lookup order: hot cache, then Bloom filter guarding the store.
// Any layer may be nil. Cache failures are logged and never fail an assessment.
type CachedAssessor struct {
	next   Assessor
	hot    HotCache
	filter MembershipFilter
	store  AssessmentStore
	config CacheConfig
	log    *log.Helper
}

// NewCachedAssessor wraps next with the cache layers.
func NewCachedAssessor(next Assessor, hot HotCache, filter MembershipFilter, store AssessmentStore, config CacheConfig, logger log.Logger) *CachedAssessor {
	return &CachedAssessor{
		next:   next,
		hot:    hot,
		filter: filter,
		store:  store,
		config: config,
		log:    log.NewHelper(logger),
	}
}

// Assess implements Assessor.
// 1. Hot cache lookup
// 2. Bloom filter check
// 3. If Bloom hit -> store lookup, refill hot cache
// 4. Otherwise call the model and populate every layer
func (c *CachedAssessor) Assess(ctx context.Context, blob media.Blob) (Assessment, error) {
	key := hash.HashBlobSha256(blob.MIMEType, blob.Data)

	if cached, ok := c.lookupHot(ctx, key); ok {
		c.log.Debugf("assessment hot cache hit: %s", key)
		return cached, nil
	}

	if c.filter != nil && c.store != nil {
		maybeExists, err := c.filter.MayContain(ctx, key)
		if err != nil {
			c.log.Warnf("Bloom filter check failed: %v", err)
		}
		if maybeExists {
			stored, err := c.store.FindAssessment(ctx, key)
			if err != nil {
				c.log.Warnf("assessment store lookup failed: %v", err)
			}
			if stored != nil {
				c.log.Debugf("assessment store hit: %s", key)
				c.saveHot(ctx, key, *stored)
				return *stored, nil
			}
		}
	}

	result, err := c.next.Assess(ctx, blob)
	if err != nil {
		return Assessment{}, err
	}
	c.remember(ctx, key, blob.MIMEType, result)
	return result, nil
}

func (c *CachedAssessor) lookupHot(ctx context.Context, key string) (Assessment, bool) {
	if c.hot == nil {
		return Assessment{}, false
	}
	raw, err := c.hot.GetString(ctx, c.config.KeyPrefix+key)
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warnf("assessment hot cache get failed: %v", err)
		}
		return Assessment{}, false
	}
	var cached Assessment
	if err := json.Unmarshal([]byte(raw), &cached); err != nil {
		c.log.Warnf("assessment hot cache entry corrupt: %v", err)
		return Assessment{}, false
	}
	return cached, true
}

func (c *CachedAssessor) saveHot(ctx context.Context, key string, a Assessment) {
	if c.hot == nil {
		return
	}
	raw, err := json.Marshal(a)
	if err != nil {
		return
	}
	if err := c.hot.SetString(ctx, c.config.KeyPrefix+key, string(raw), c.config.TTL); err != nil {
		c.log.Warnf("assessment hot cache set failed: %v", err)
	}
}

func (c *CachedAssessor) remember(ctx context.Context, key, mimeType string, a Assessment) {
	c.saveHot(ctx, key, a)
	if c.store == nil {
		return
	}
	if err := c.store.SaveAssessment(ctx, key, mimeType, a); err != nil {
		c.log.Warnf("assessment store save failed: %v", err)
		return
	}
	if c.filter != nil {
		if err := c.filter.Add(ctx, key); err != nil {
			c.log.Warnf("Bloom filter add failed: %v", err)
		}
	}
}
