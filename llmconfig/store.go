package llmconfig

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Row is one stored override row: its id (for targeted invalidation) and
// the raw blob, validated strictly before use.
type Row struct {
	ConfigID  string
	Overrides json.RawMessage
}

// Rows is the combined fetch result; either row may be nil.
type Rows struct {
	Default     *Row
	Personality *Row
}

// Store is the relational boundary for LLM override rows.
type Store interface {
	// Overrides reads the user-default row and the user/personality row in
	// one combined query.
	Overrides(ctx context.Context, discordID, personaName string) (Rows, error)
}

// UserLLMConfig backs the store: PersonaName is empty for the user's global
// defaults and set for per-personality overrides.
type UserLLMConfig struct {
	ID          uint   `gorm:"primarykey"`
	DiscordID   string `gorm:"index:idx_llmconfig_scope,unique"`
	PersonaName string `gorm:"index:idx_llmconfig_scope,unique"`
	Overrides   string `gorm:"type:jsonb"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type GormStore struct {
	db *gorm.DB
}

var _ Store = (*GormStore)(nil)

func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&UserLLMConfig{}); err != nil {
		return nil, fmt.Errorf("migrating llm config table: %w", err)
	}
	return &GormStore{db: db}, nil
}

func (s *GormStore) Overrides(ctx context.Context, discordID, personaName string) (Rows, error) {
	var rows []UserLLMConfig
	err := s.db.WithContext(ctx).
		Where("discord_id = ? AND persona_name IN ?", discordID, []string{"", personaName}).
		Find(&rows).Error
	if err != nil {
		return Rows{}, err
	}
	var out Rows
	for _, row := range rows {
		r := &Row{ConfigID: strconv.FormatUint(uint64(row.ID), 10), Overrides: json.RawMessage(row.Overrides)}
		if row.PersonaName == "" {
			out.Default = r
		} else {
			out.Personality = r
		}
	}
	return out, nil
}

// SetOverrides upserts one row and returns its config id for the
// invalidation event.
func (s *GormStore) SetOverrides(ctx context.Context, discordID, personaName string, o Overrides) (string, error) {
	blob, err := json.Marshal(o)
	if err != nil {
		return "", err
	}
	row := UserLLMConfig{DiscordID: discordID, PersonaName: personaName, Overrides: string(blob)}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "discord_id"}, {Name: "persona_name"}},
		DoUpdates: clause.AssignmentColumns([]string{"overrides", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return "", err
	}
	if row.ID == 0 {
		// conflict path: re-read the surviving row's id
		var existing UserLLMConfig
		if err := s.db.WithContext(ctx).
			Where("discord_id = ? AND persona_name = ?", discordID, personaName).
			First(&existing).Error; err != nil {
			return "", err
		}
		row.ID = existing.ID
	}
	return strconv.FormatUint(uint64(row.ID), 10), nil
}

// decodeOverrides strictly decodes one override blob; any unrecognized key
// or mistyped value rejects the entire row.
func decodeOverrides(raw json.RawMessage) (Overrides, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	var o Overrides
	if err := dec.Decode(&o); err != nil {
		return Overrides{}, fmt.Errorf("invalid llm override payload: %w", err)
	}
	if dec.More() {
		return Overrides{}, fmt.Errorf("invalid llm override payload: trailing data")
	}
	return o, nil
}
