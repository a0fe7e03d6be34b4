// API-key authentication for the glimmer gateway, with a process-local
// cache so the hot path does not hit the store on every request.
package apikey

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"gorm.io/gorm"
)

var ErrUnknownKey = errors.New("unknown api key")

// Key is one issued API key. Only the SHA-256 of the secret is stored;
// neither the store nor the cache ever holds a raw key.
type Key struct {
	ID        uint   `gorm:"primarykey"`
	KeyHash   string `gorm:"uniqueIndex"`
	DiscordID string `gorm:"index"`
	Label     string
	Disabled  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// HashKey returns the hex SHA-256 digest used as both the store column and
// the cache key.
func HashKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// Checker resolves raw API keys to their owning user, memoizing successful
// lookups in an expiring LRU.
type Checker struct {
	db    *gorm.DB
	cache *expirable.LRU[string, *Key]
}

func NewChecker(db *gorm.DB, size int, ttl time.Duration) (*Checker, error) {
	if err := db.AutoMigrate(&Key{}); err != nil {
		return nil, fmt.Errorf("migrating api key table: %w", err)
	}
	return &Checker{
		db:    db,
		cache: expirable.NewLRU[string, *Key](size, nil, ttl),
	}, nil
}

// Check resolves raw to its key record. Disabled and unknown keys both
// return ErrUnknownKey; callers get no signal about which it was.
func (c *Checker) Check(ctx context.Context, raw string) (*Key, error) {
	hash := HashKey(raw)
	if k, ok := c.cache.Get(hash); ok {
		checkHits.Inc()
		return k, nil
	}
	checkMisses.Inc()

	var k Key
	err := c.db.WithContext(ctx).Where("key_hash = ? AND disabled = ?", hash, false).First(&k).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUnknownKey
	}
	if err != nil {
		return nil, err
	}
	c.cache.Add(hash, &k)
	return &k, nil
}

// Issue stores a new key for the given user. The raw secret is the caller's
// to generate and show exactly once.
func (c *Checker) Issue(ctx context.Context, raw, discordID, label string) (*Key, error) {
	k := Key{KeyHash: HashKey(raw), DiscordID: discordID, Label: label}
	if err := c.db.WithContext(ctx).Create(&k).Error; err != nil {
		return nil, err
	}
	return &k, nil
}

// Disable marks every key belonging to discordID disabled. Publishing the
// invalidation event is the caller's job.
func (c *Checker) Disable(ctx context.Context, discordID string) error {
	return c.db.WithContext(ctx).Model(&Key{}).
		Where("discord_id = ?", discordID).
		Update("disabled", true).Error
}

// InvalidateUser evicts every cached key owned by discordID.
func (c *Checker) InvalidateUser(discordID string) {
	for _, hash := range c.cache.Keys() {
		if k, ok := c.cache.Peek(hash); ok && k.DiscordID == discordID {
			c.cache.Remove(hash)
		}
	}
}

// Reset drops the whole cache.
func (c *Checker) Reset() {
	c.cache.Purge()
}
