package configcascade

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// adminConfigID is the fixed primary key of the singleton platform row.
const adminConfigID = 1

// AdminConfig is the singleton platform-defaults row.
type AdminConfig struct {
	ID        uint   `gorm:"primarykey"`
	Overrides string `gorm:"type:jsonb"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// PersonalityConfig holds the defaults a personality's author set.
type PersonalityConfig struct {
	ID            uint   `gorm:"primarykey"`
	PersonalityID string `gorm:"uniqueIndex"`
	Overrides     string `gorm:"type:jsonb"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ChannelConfig holds per-Discord-channel overrides.
type ChannelConfig struct {
	ID        uint   `gorm:"primarykey"`
	ChannelID string `gorm:"uniqueIndex"`
	Overrides string `gorm:"type:jsonb"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// UserConfig holds a user's overrides; PersonalityID is empty for the user's
// global defaults and set for per-personality overrides.
type UserConfig struct {
	ID            uint   `gorm:"primarykey"`
	DiscordID     string `gorm:"index:idx_userconfig_scope,unique"`
	PersonalityID string `gorm:"index:idx_userconfig_scope,unique"`
	Overrides     string `gorm:"type:jsonb"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// GormStore is the gorm-backed OverrideStore, shared by every daemon that
// talks to the relational store.
type GormStore struct {
	db *gorm.DB
}

var _ OverrideStore = (*GormStore)(nil)

func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&AdminConfig{}, &PersonalityConfig{}, &ChannelConfig{}, &UserConfig{}); err != nil {
		return nil, fmt.Errorf("migrating override tables: %w", err)
	}
	return &GormStore{db: db}, nil
}

func (s *GormStore) AdminOverrides(ctx context.Context) (json.RawMessage, error) {
	var row AdminConfig
	err := s.db.WithContext(ctx).First(&row, adminConfigID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return json.RawMessage(row.Overrides), nil
}

func (s *GormStore) PersonalityOverrides(ctx context.Context, personalityID string) (json.RawMessage, error) {
	var row PersonalityConfig
	err := s.db.WithContext(ctx).Where("personality_id = ?", personalityID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return json.RawMessage(row.Overrides), nil
}

func (s *GormStore) ChannelOverrides(ctx context.Context, channelID string) (json.RawMessage, error) {
	var row ChannelConfig
	err := s.db.WithContext(ctx).Where("channel_id = ?", channelID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return json.RawMessage(row.Overrides), nil
}

func (s *GormStore) UserOverrides(ctx context.Context, discordID, personalityID string) (UserOverrideRows, error) {
	var rows []UserConfig
	err := s.db.WithContext(ctx).
		Where("discord_id = ? AND personality_id IN ?", discordID, []string{"", personalityID}).
		Find(&rows).Error
	if err != nil {
		return UserOverrideRows{}, err
	}
	var out UserOverrideRows
	for _, row := range rows {
		if row.PersonalityID == "" {
			out.Default = json.RawMessage(row.Overrides)
		} else {
			out.Personality = json.RawMessage(row.Overrides)
		}
	}
	return out, nil
}

// Write path, used by the admin API. Each setter persists the tier wholesale;
// publishing the matching invalidation event is the caller's job.

func (s *GormStore) SetAdminOverrides(ctx context.Context, o Overrides) error {
	blob, err := json.Marshal(o)
	if err != nil {
		return err
	}
	row := AdminConfig{ID: adminConfigID, Overrides: string(blob)}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"overrides", "updated_at"}),
	}).Create(&row).Error
}

func (s *GormStore) SetPersonalityOverrides(ctx context.Context, personalityID string, o Overrides) error {
	blob, err := json.Marshal(o)
	if err != nil {
		return err
	}
	row := PersonalityConfig{PersonalityID: personalityID, Overrides: string(blob)}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "personality_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"overrides", "updated_at"}),
	}).Create(&row).Error
}

func (s *GormStore) SetChannelOverrides(ctx context.Context, channelID string, o Overrides) error {
	blob, err := json.Marshal(o)
	if err != nil {
		return err
	}
	row := ChannelConfig{ChannelID: channelID, Overrides: string(blob)}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "channel_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"overrides", "updated_at"}),
	}).Create(&row).Error
}

func (s *GormStore) SetUserOverrides(ctx context.Context, discordID, personalityID string, o Overrides) error {
	blob, err := json.Marshal(o)
	if err != nil {
		return err
	}
	row := UserConfig{DiscordID: discordID, PersonalityID: personalityID, Overrides: string(blob)}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "discord_id"}, {Name: "personality_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"overrides", "updated_at"}),
	}).Create(&row).Error
}
