// Channel-activation tracking: which Discord channels the bot responds in
// without being addressed directly. The bot client checks this on every
// incoming message, so lookups are cached per process.
package activation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"gorm.io/gorm"
)

// ActivatedChannel marks one channel as active, optionally pinned to a
// specific personality.
type ActivatedChannel struct {
	ID            uint   `gorm:"primarykey"`
	ChannelID     string `gorm:"uniqueIndex"`
	GuildID       string `gorm:"index"`
	PersonalityID string
	ActivatedBy   string
	CreatedAt     time.Time
}

// Status is the cached answer for one channel.
type Status struct {
	Active        bool
	PersonalityID string
}

// Cache answers "is the bot active in this channel" from an expiring LRU,
// falling back to the store. Negative answers are cached too: most channels
// are not activated and that is the hot case.
type Cache struct {
	db  *gorm.DB
	lru *expirable.LRU[string, Status]
}

func NewCache(db *gorm.DB, size int, ttl time.Duration) (*Cache, error) {
	if err := db.AutoMigrate(&ActivatedChannel{}); err != nil {
		return nil, fmt.Errorf("migrating activation table: %w", err)
	}
	return &Cache{
		db:  db,
		lru: expirable.NewLRU[string, Status](size, nil, ttl),
	}, nil
}

func (c *Cache) Lookup(ctx context.Context, channelID string) (Status, error) {
	if st, ok := c.lru.Get(channelID); ok {
		lookupHits.Inc()
		return st, nil
	}
	lookupMisses.Inc()

	var row ActivatedChannel
	err := c.db.WithContext(ctx).Where("channel_id = ?", channelID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		st := Status{}
		c.lru.Add(channelID, st)
		return st, nil
	}
	if err != nil {
		return Status{}, err
	}
	st := Status{Active: true, PersonalityID: row.PersonalityID}
	c.lru.Add(channelID, st)
	return st, nil
}

// Activate persists the activation row. Publishing the invalidation event is
// the caller's job.
func (c *Cache) Activate(ctx context.Context, channelID, guildID, personalityID, activatedBy string) error {
	row := ActivatedChannel{
		ChannelID:     channelID,
		GuildID:       guildID,
		PersonalityID: personalityID,
		ActivatedBy:   activatedBy,
	}
	err := c.db.WithContext(ctx).Where("channel_id = ?", channelID).
		Assign(map[string]any{"personality_id": personalityID, "activated_by": activatedBy, "guild_id": guildID}).
		FirstOrCreate(&row).Error
	if err != nil {
		return err
	}
	c.Invalidate(channelID)
	return nil
}

func (c *Cache) Deactivate(ctx context.Context, channelID string) error {
	err := c.db.WithContext(ctx).Where("channel_id = ?", channelID).Delete(&ActivatedChannel{}).Error
	if err != nil {
		return err
	}
	c.Invalidate(channelID)
	return nil
}

// Invalidate evicts one channel's cached status.
func (c *Cache) Invalidate(channelID string) {
	c.lru.Remove(channelID)
}

// Reset drops the whole cache.
func (c *Cache) Reset() {
	c.lru.Purge()
}
