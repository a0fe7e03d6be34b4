package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/glimmerbot/glimmer/activation"
	"github.com/glimmerbot/glimmer/apikey"
	"github.com/glimmerbot/glimmer/configcascade"
	"github.com/glimmerbot/glimmer/invalidation"
	"github.com/glimmerbot/glimmer/llmconfig"
	"github.com/glimmerbot/glimmer/persona"
	"github.com/glimmerbot/glimmer/util/cliutil"

	"github.com/carlmjohnson/versioninfo"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	slogecho "github.com/samber/slog-echo"
	cli "github.com/urfave/cli/v2"
)

type Server struct {
	logger *slog.Logger
	echo   *echo.Echo

	cascadeStore *configcascade.GormStore
	resolver     *configcascade.Resolver
	llmStore     *llmconfig.GormStore
	llmResolver  *llmconfig.Resolver
	personaStore *persona.StoreDirectory
	personaDir   *persona.CachedDirectory
	apikeys      *apikey.Checker
	channels     *activation.Cache

	cascadeSvc    *invalidation.CascadeService
	personaSvc    *invalidation.PersonaService
	apikeySvc     *invalidation.APIKeyService
	activationSvc *invalidation.ActivationService
	llmSvc        *invalidation.LLMConfigService
}

func NewServer(cctx *cli.Context, logger *slog.Logger) (*Server, error) {
	ctx := cctx.Context

	db, err := cliutil.SetupDatabase(cctx.String("database-url"), cctx.Int("max-db-connections"))
	if err != nil {
		return nil, err
	}
	rdb, err := cliutil.SetupRedis(ctx, cctx.String("redis-url"))
	if err != nil {
		return nil, err
	}

	cascadeStore, err := configcascade.NewGormStore(db)
	if err != nil {
		return nil, err
	}
	llmStore, err := llmconfig.NewGormStore(db)
	if err != nil {
		return nil, err
	}
	personaStore, err := persona.NewStoreDirectory(db)
	if err != nil {
		return nil, err
	}
	checker, err := apikey.NewChecker(db, 10_000, cctx.Duration("config-cache-ttl"))
	if err != nil {
		return nil, err
	}
	channels, err := activation.NewCache(db, 10_000, cctx.Duration("config-cache-ttl"))
	if err != nil {
		return nil, err
	}

	srv := &Server{
		logger:       logger,
		cascadeStore: cascadeStore,
		resolver:     configcascade.NewResolver(cascadeStore, logger, cctx.Duration("config-cache-ttl")),
		llmStore:     llmStore,
		llmResolver:  llmconfig.NewResolver(llmStore, logger, cctx.Duration("config-cache-ttl")),
		personaStore: personaStore,
		personaDir: persona.NewCachedDirectory(personaStore, rdb, logger,
			cctx.Duration("persona-cache-ttl"), cctx.Duration("persona-cache-ttl")/6, 10_000),
		apikeys:  checker,
		channels: channels,

		cascadeSvc:    invalidation.NewCascadeService(rdb, logger),
		personaSvc:    invalidation.NewPersonaService(rdb, logger),
		apikeySvc:     invalidation.NewAPIKeyService(rdb, logger),
		activationSvc: invalidation.NewActivationService(rdb, logger),
		llmSvc:        invalidation.NewLLMConfigService(rdb, logger),
	}

	// glimmerd holds caches of its own, so it subscribes to the same
	// invalidation topics it publishes on.
	if err := configcascade.Bind(ctx, srv.cascadeSvc, srv.resolver); err != nil {
		return nil, err
	}
	if err := persona.Bind(ctx, srv.personaSvc, srv.personaDir); err != nil {
		return nil, err
	}
	if err := apikey.Bind(ctx, srv.apikeySvc, srv.apikeys); err != nil {
		return nil, err
	}
	if err := activation.Bind(ctx, srv.activationSvc, srv.channels); err != nil {
		return nil, err
	}
	if err := llmconfig.Bind(ctx, srv.llmSvc, srv.llmResolver); err != nil {
		return nil, err
	}

	return srv, nil
}

func (srv *Server) RunAPI(bind string) error {
	e := echo.New()
	e.HideBanner = true
	e.Use(slogecho.New(srv.logger))
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit("1M"))
	e.HTTPErrorHandler = srv.errorHandler

	e.GET("/_health", srv.handleHealthCheck)
	e.GET("/admin/config/effective", srv.handleGetEffective)
	e.PUT("/admin/config/admin", srv.handlePutAdminConfig)
	e.PUT("/admin/config/personality/:id", srv.handlePutPersonalityConfig)
	e.PUT("/admin/config/channel/:id", srv.handlePutChannelConfig)
	e.PUT("/admin/config/user/:did", srv.handlePutUserConfig)
	e.PUT("/admin/llmconfig/:did/:persona", srv.handlePutLLMConfig)
	e.POST("/admin/personas", srv.handlePutPersona)
	e.POST("/admin/channels/:id/activate", srv.handleActivateChannel)
	e.POST("/admin/channels/:id/deactivate", srv.handleDeactivateChannel)
	e.POST("/admin/invalidate/:domain", srv.handleInvalidateDomain)

	srv.echo = e
	srv.logger.Info("starting admin API", "bind", bind)
	return e.Start(bind)
}

func (srv *Server) ShutdownAPI(ctx context.Context) error {
	if srv.echo == nil {
		return nil
	}
	return srv.echo.Shutdown(ctx)
}

// Shutdown tears down pub/sub subscriptions and cache sweepers. Safe to
// call after (or without) ShutdownAPI.
func (srv *Server) Shutdown() {
	if err := srv.cascadeSvc.Unsubscribe(); err != nil {
		srv.logger.Warn("unsubscribe failed", "topic", "config-cascade", "err", err)
	}
	if err := srv.personaSvc.Unsubscribe(); err != nil {
		srv.logger.Warn("unsubscribe failed", "topic", "persona", "err", err)
	}
	if err := srv.apikeySvc.Unsubscribe(); err != nil {
		srv.logger.Warn("unsubscribe failed", "topic", "api-key", "err", err)
	}
	if err := srv.activationSvc.Unsubscribe(); err != nil {
		srv.logger.Warn("unsubscribe failed", "topic", "channel-activation", "err", err)
	}
	if err := srv.llmSvc.Unsubscribe(); err != nil {
		srv.logger.Warn("unsubscribe failed", "topic", "llm-config", "err", err)
	}
	srv.resolver.StopCleanup()
	srv.llmResolver.StopCleanup()
}

type GenericError struct {
	Error string `json:"error"`
}

func (srv *Server) errorHandler(err error, c echo.Context) {
	code := http.StatusInternalServerError
	if he, ok := err.(*echo.HTTPError); ok {
		code = he.Code
	}
	if code >= 500 {
		srv.logger.Warn("glimmerd-http-internal-error", "err", err)
	}
	if !c.Response().Committed {
		c.JSON(code, GenericError{Error: fmt.Sprintf("%s", err)})
	}
}

func (srv *Server) handleHealthCheck(c echo.Context) error {
	return c.JSON(200, map[string]string{"status": "ok", "version": versioninfo.Short()})
}

func (srv *Server) handleGetEffective(c echo.Context) error {
	resolved := srv.resolver.Resolve(
		c.Request().Context(),
		c.QueryParam("user"),
		c.QueryParam("personality"),
		c.QueryParam("channel"),
	)
	return c.JSON(200, resolved)
}

// decodeOverrideBody parses a request body into an override set, rejecting
// unknown fields so typos never silently persist as no-ops.
func decodeOverrideBody[T any](c echo.Context, out *T) error {
	dec := json.NewDecoder(c.Request().Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("invalid override body: %s", err))
	}
	return nil
}

func (srv *Server) handlePutAdminConfig(c echo.Context) error {
	ctx := c.Request().Context()
	var o configcascade.Overrides
	if err := decodeOverrideBody(c, &o); err != nil {
		return err
	}
	if err := srv.cascadeStore.SetAdminOverrides(ctx, o); err != nil {
		return fmt.Errorf("persisting admin overrides: %w", err)
	}
	if err := srv.cascadeSvc.InvalidateAdmin(ctx); err != nil {
		return fmt.Errorf("publishing invalidation: %w", err)
	}
	return c.JSON(200, map[string]string{"status": "ok"})
}

func (srv *Server) handlePutPersonalityConfig(c echo.Context) error {
	ctx := c.Request().Context()
	personalityID := c.Param("id")
	var o configcascade.Overrides
	if err := decodeOverrideBody(c, &o); err != nil {
		return err
	}
	if err := srv.cascadeStore.SetPersonalityOverrides(ctx, personalityID, o); err != nil {
		return fmt.Errorf("persisting personality overrides: %w", err)
	}
	if err := srv.cascadeSvc.InvalidatePersonality(ctx, personalityID); err != nil {
		return fmt.Errorf("publishing invalidation: %w", err)
	}
	return c.JSON(200, map[string]string{"status": "ok"})
}

func (srv *Server) handlePutChannelConfig(c echo.Context) error {
	ctx := c.Request().Context()
	channelID := c.Param("id")
	var o configcascade.Overrides
	if err := decodeOverrideBody(c, &o); err != nil {
		return err
	}
	if err := srv.cascadeStore.SetChannelOverrides(ctx, channelID, o); err != nil {
		return fmt.Errorf("persisting channel overrides: %w", err)
	}
	if err := srv.cascadeSvc.InvalidateChannel(ctx, channelID); err != nil {
		return fmt.Errorf("publishing invalidation: %w", err)
	}
	return c.JSON(200, map[string]string{"status": "ok"})
}

func (srv *Server) handlePutUserConfig(c echo.Context) error {
	ctx := c.Request().Context()
	did := c.Param("did")
	// empty personality means the user-wide default tier
	personalityID := c.QueryParam("personality")
	var o configcascade.Overrides
	if err := decodeOverrideBody(c, &o); err != nil {
		return err
	}
	if err := srv.cascadeStore.SetUserOverrides(ctx, did, personalityID, o); err != nil {
		return fmt.Errorf("persisting user overrides: %w", err)
	}
	if err := srv.cascadeSvc.InvalidateUser(ctx, did); err != nil {
		return fmt.Errorf("publishing invalidation: %w", err)
	}
	return c.JSON(200, map[string]string{"status": "ok"})
}

func (srv *Server) handlePutLLMConfig(c echo.Context) error {
	ctx := c.Request().Context()
	did := c.Param("did")
	personaName := c.Param("persona")
	var o llmconfig.Overrides
	if err := decodeOverrideBody(c, &o); err != nil {
		return err
	}
	configID, err := srv.llmStore.SetOverrides(ctx, did, personaName, o)
	if err != nil {
		return fmt.Errorf("persisting llm overrides: %w", err)
	}
	if err := srv.llmSvc.InvalidateConfig(ctx, configID); err != nil {
		return fmt.Errorf("publishing invalidation: %w", err)
	}
	return c.JSON(200, map[string]string{"status": "ok", "configId": configID})
}

func (srv *Server) handlePutPersona(c echo.Context) error {
	ctx := c.Request().Context()
	var p persona.Personality
	if err := decodeOverrideBody(c, &p); err != nil {
		return err
	}
	if p.Name == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "persona name is required")
	}
	if err := srv.personaStore.Save(ctx, &p); err != nil {
		return fmt.Errorf("saving persona: %w", err)
	}
	if err := srv.personaSvc.InvalidateUser(ctx, p.OwnerID); err != nil {
		return fmt.Errorf("publishing invalidation: %w", err)
	}
	return c.JSON(200, p)
}

type activateChannelBody struct {
	GuildID       string `json:"guildId"`
	PersonalityID string `json:"personalityId"`
	ActivatedBy   string `json:"activatedBy"`
}

func (srv *Server) handleActivateChannel(c echo.Context) error {
	ctx := c.Request().Context()
	channelID := c.Param("id")
	var body activateChannelBody
	if err := decodeOverrideBody(c, &body); err != nil {
		return err
	}
	if err := srv.channels.Activate(ctx, channelID, body.GuildID, body.PersonalityID, body.ActivatedBy); err != nil {
		return fmt.Errorf("activating channel: %w", err)
	}
	if err := srv.activationSvc.InvalidateChannel(ctx, channelID); err != nil {
		return fmt.Errorf("publishing invalidation: %w", err)
	}
	return c.JSON(200, map[string]string{"status": "ok"})
}

func (srv *Server) handleDeactivateChannel(c echo.Context) error {
	ctx := c.Request().Context()
	channelID := c.Param("id")
	if err := srv.channels.Deactivate(ctx, channelID); err != nil {
		return fmt.Errorf("deactivating channel: %w", err)
	}
	if err := srv.activationSvc.InvalidateChannel(ctx, channelID); err != nil {
		return fmt.Errorf("publishing invalidation: %w", err)
	}
	return c.JSON(200, map[string]string{"status": "ok"})
}

func (srv *Server) handleInvalidateDomain(c echo.Context) error {
	ctx := c.Request().Context()
	var err error
	switch domain := c.Param("domain"); domain {
	case "config-cascade":
		err = srv.cascadeSvc.InvalidateAll(ctx)
	case "persona":
		err = srv.personaSvc.InvalidateAll(ctx)
	case "api-key":
		err = srv.apikeySvc.InvalidateAll(ctx)
	case "channel-activation":
		err = srv.activationSvc.InvalidateAll(ctx)
	case "llm-config":
		err = srv.llmSvc.InvalidateAll(ctx)
	default:
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("unknown invalidation domain: %q", domain))
	}
	if err != nil {
		return fmt.Errorf("publishing invalidation: %w", err)
	}
	return c.JSON(200, map[string]string{"status": "ok"})
}
