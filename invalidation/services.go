package invalidation

import (
	"context"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// Broker topic per cache domain. Fixed names, shared by every process.
const (
	TopicConfigCascade     = "glimmer:inval:config-cascade"
	TopicPersona           = "glimmer:inval:persona"
	TopicAPIKey            = "glimmer:inval:api-key"
	TopicChannelActivation = "glimmer:inval:channel-activation"
	TopicLLMConfig         = "glimmer:inval:llm-config"
)

// Payload field names used on the wire.
const (
	FieldDiscordID     = "discordId"
	FieldPersonalityID = "personalityId"
	FieldChannelID     = "channelId"
	FieldConfigID      = "configId"
)

// Event variant tags.
const (
	EventAll         = "all"
	EventAdmin       = "admin"
	EventUser        = "user"
	EventPersonality = "personality"
	EventChannel     = "channel"
	EventConfig      = "config"
)

// CascadeService announces staleness of config-cascade resolutions.
type CascadeService struct {
	*Channel
}

var cascadeSchema = Schema{
	EventAll:         nil,
	EventAdmin:       nil,
	EventUser:        {FieldDiscordID},
	EventPersonality: {FieldPersonalityID},
	EventChannel:     {FieldChannelID},
}

func NewCascadeService(client *redis.Client, logger *slog.Logger) *CascadeService {
	return &CascadeService{NewChannel(client, TopicConfigCascade, cascadeSchema, logger)}
}

func (s *CascadeService) InvalidateAll(ctx context.Context) error {
	return s.Publish(ctx, Event{Type: EventAll})
}

func (s *CascadeService) InvalidateAdmin(ctx context.Context) error {
	return s.Publish(ctx, Event{Type: EventAdmin})
}

func (s *CascadeService) InvalidateUser(ctx context.Context, discordID string) error {
	return s.Publish(ctx, Event{Type: EventUser, Fields: map[string]string{FieldDiscordID: discordID}})
}

func (s *CascadeService) InvalidatePersonality(ctx context.Context, personalityID string) error {
	return s.Publish(ctx, Event{Type: EventPersonality, Fields: map[string]string{FieldPersonalityID: personalityID}})
}

func (s *CascadeService) InvalidateChannel(ctx context.Context, channelID string) error {
	return s.Publish(ctx, Event{Type: EventChannel, Fields: map[string]string{FieldChannelID: channelID}})
}

// PersonaService announces staleness of cached personas.
type PersonaService struct {
	*Channel
}

var personaSchema = Schema{
	EventAll:  nil,
	EventUser: {FieldDiscordID},
}

func NewPersonaService(client *redis.Client, logger *slog.Logger) *PersonaService {
	return &PersonaService{NewChannel(client, TopicPersona, personaSchema, logger)}
}

func (s *PersonaService) InvalidateAll(ctx context.Context) error {
	return s.Publish(ctx, Event{Type: EventAll})
}

func (s *PersonaService) InvalidateUser(ctx context.Context, discordID string) error {
	return s.Publish(ctx, Event{Type: EventUser, Fields: map[string]string{FieldDiscordID: discordID}})
}

// APIKeyService announces staleness of cached API-key lookups.
type APIKeyService struct {
	*Channel
}

var apiKeySchema = Schema{
	EventAll:  nil,
	EventUser: {FieldDiscordID},
}

func NewAPIKeyService(client *redis.Client, logger *slog.Logger) *APIKeyService {
	return &APIKeyService{NewChannel(client, TopicAPIKey, apiKeySchema, logger)}
}

func (s *APIKeyService) InvalidateAll(ctx context.Context) error {
	return s.Publish(ctx, Event{Type: EventAll})
}

func (s *APIKeyService) InvalidateUser(ctx context.Context, discordID string) error {
	return s.Publish(ctx, Event{Type: EventUser, Fields: map[string]string{FieldDiscordID: discordID}})
}

// ActivationService announces changes to which channels the bot is active in.
type ActivationService struct {
	*Channel
}

var activationSchema = Schema{
	EventAll:     nil,
	EventChannel: {FieldChannelID},
}

func NewActivationService(client *redis.Client, logger *slog.Logger) *ActivationService {
	return &ActivationService{NewChannel(client, TopicChannelActivation, activationSchema, logger)}
}

func (s *ActivationService) InvalidateAll(ctx context.Context) error {
	return s.Publish(ctx, Event{Type: EventAll})
}

func (s *ActivationService) InvalidateChannel(ctx context.Context, channelID string) error {
	return s.Publish(ctx, Event{Type: EventChannel, Fields: map[string]string{FieldChannelID: channelID}})
}

// LLMConfigService announces staleness of resolved LLM configs.
type LLMConfigService struct {
	*Channel
}

var llmConfigSchema = Schema{
	EventAll:    nil,
	EventUser:   {FieldDiscordID},
	EventConfig: {FieldConfigID},
}

func NewLLMConfigService(client *redis.Client, logger *slog.Logger) *LLMConfigService {
	return &LLMConfigService{NewChannel(client, TopicLLMConfig, llmConfigSchema, logger)}
}

func (s *LLMConfigService) InvalidateAll(ctx context.Context) error {
	return s.Publish(ctx, Event{Type: EventAll})
}

func (s *LLMConfigService) InvalidateUser(ctx context.Context, discordID string) error {
	return s.Publish(ctx, Event{Type: EventUser, Fields: map[string]string{FieldDiscordID: discordID}})
}

func (s *LLMConfigService) InvalidateConfig(ctx context.Context, configID string) error {
	return s.Publish(ctx, Event{Type: EventConfig, Fields: map[string]string{FieldConfigID: configID}})
}
