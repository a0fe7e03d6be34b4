// Persona directory for the glimmer platform: the AI personalities users
// talk to, stored relationally and served through a caching wrapper so the
// bot client and AI workers do not hit the store on every message.
package persona

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var ErrNotFound = errors.New("personality not found")

// Personality is one configured AI personality. Name is the stable handle
// users address it by; ID is a UUID.
type Personality struct {
	ID          string    `gorm:"primarykey" json:"id"`
	Name        string    `gorm:"uniqueIndex" json:"name"`
	OwnerID     string    `gorm:"index" json:"ownerId"`
	DisplayName string    `json:"displayName"`
	Prompt      string    `json:"prompt"`
	Model       string    `json:"model"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"maxTokens"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Directory resolves personalities by name or owner.
type Directory interface {
	Lookup(ctx context.Context, name string) (*Personality, error)
	ForUser(ctx context.Context, discordID string) ([]Personality, error)
}

// StoreDirectory serves personalities straight from the relational store.
type StoreDirectory struct {
	db *gorm.DB
}

var _ Directory = (*StoreDirectory)(nil)

func NewStoreDirectory(db *gorm.DB) (*StoreDirectory, error) {
	if err := db.AutoMigrate(&Personality{}); err != nil {
		return nil, fmt.Errorf("migrating personality table: %w", err)
	}
	return &StoreDirectory{db: db}, nil
}

func (d *StoreDirectory) Lookup(ctx context.Context, name string) (*Personality, error) {
	var p Personality
	err := d.db.WithContext(ctx).Where("name = ?", name).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (d *StoreDirectory) ForUser(ctx context.Context, discordID string) ([]Personality, error) {
	var out []Personality
	err := d.db.WithContext(ctx).Where("owner_id = ?", discordID).Order("name").Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Save upserts a personality and returns it. Publishing the matching
// invalidation event is the caller's job.
func (d *StoreDirectory) Save(ctx context.Context, p *Personality) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return d.db.WithContext(ctx).Save(p).Error
}
