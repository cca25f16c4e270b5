// Package container provides dependency injection for all singleton services
package container

import (
	"fmt"

	"github.com/aegisx/aegisgate-go/internal/application/services"
	domainservices "github.com/aegisx/aegisgate-go/internal/domain/services"
	"github.com/aegisx/aegisgate-go/internal/infrastructure/email"
	"github.com/aegisx/aegisgate-go/internal/infrastructure/engine/remote"
	"github.com/aegisx/aegisgate-go/internal/infrastructure/engine/risk"
	"github.com/aegisx/aegisgate-go/internal/infrastructure/messaging"
	"github.com/aegisx/aegisgate-go/internal/infrastructure/observability/logging"
	"github.com/aegisx/aegisgate-go/internal/infrastructure/observability/performance"
	"github.com/aegisx/aegisgate-go/internal/infrastructure/persistence/database"
	persistence "github.com/aegisx/aegisgate-go/internal/infrastructure/persistence/verification"
	"github.com/aegisx/aegisgate-go/pkg/config"
)

// Container holds all singleton services and infrastructure dependencies
type Container struct {
	// Application services
	SessionService    *services.SessionService
	ResolutionService *services.ResolutionService
	AdminService      *services.AdminService
	AuthService       *services.AuthService

	// Infrastructure
	DB          *database.DB
	Logger      *logging.ChanneledLogger
	PerfTracker *performance.Tracker
	Broadcaster *messaging.ActionBroadcaster
	Engine      domainservices.DecisionEngine
}

// NewContainer creates and wires all singleton services against an open
// database connection.
func NewContainer(db *database.DB, logger *logging.ChanneledLogger, perfTracker *performance.Tracker) (*Container, error) {
	sessionRepo := persistence.NewSQLSessionRepository(db)
	evidenceRepo := persistence.NewSQLEvidenceRepository(db)
	profileRepo := persistence.NewSQLProfileRepository(db)
	actionRepo := persistence.NewSQLActionRepository(db)
	quarantineRepo := persistence.NewSQLQuarantineRepository(db)
	linkRepo := persistence.NewSQLLinkRepository(db)

	engine, err := buildEngine(logger)
	if err != nil {
		return nil, err
	}

	var mailer email.Service
	if config.ResendAPIKey != "" {
		mailer, err = email.NewService(config.ResendAPIKey, config.AlertFrom, config.AlertTo)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize email service: %w", err)
		}
	}

	broadcaster := messaging.NewActionBroadcaster(logger)

	resolutionService := services.NewResolutionService(
		sessionRepo, evidenceRepo, profileRepo, actionRepo, quarantineRepo, linkRepo,
		mailer, broadcaster, logger,
		config.QuarantineHours, config.ProfileHistoryCap,
	)

	surge := services.NewSurgeTracker(config.SurgeWindow, config.SurgeThreshold)
	sessionService := services.NewSessionService(
		sessionRepo, evidenceRepo, profileRepo, actionRepo,
		engine, resolutionService, surge, logger,
		config.TokenTTL, config.EngineTimeout,
	)

	adminService := services.NewAdminService(sessionRepo, actionRepo, quarantineRepo, linkRepo, logger)
	authService := services.NewAuthService(config.AdminPasswordHash, config.JWTSecret, logger)

	return &Container{
		SessionService:    sessionService,
		ResolutionService: resolutionService,
		AdminService:      adminService,
		AuthService:       authService,
		DB:                db,
		Logger:            logger,
		PerfTracker:       perfTracker,
		Broadcaster:       broadcaster,
		Engine:            engine,
	}, nil
}

func buildEngine(logger *logging.ChanneledLogger) (domainservices.DecisionEngine, error) {
	switch config.EngineMode {
	case "remote":
		if config.EngineURL == "" {
			return nil, fmt.Errorf("ENGINE_URL is required when ENGINE_MODE=remote")
		}
		logger.Startup().Info("Using remote decision engine", "url", config.EngineURL)
		return remote.New(config.EngineURL, config.VerifySecret, config.EngineTimeout), nil
	case "local", "":
		cfg := risk.DefaultConfig()
		cfg.QuarantineThreshold = config.QuarantineThreshold
		cfg.AutoBan = config.AutoBan
		cfg.AutoBanThreshold = config.AutoBanThreshold
		logger.Startup().Info("Using local risk engine",
			"quarantineThreshold", cfg.QuarantineThreshold,
			"autoBan", cfg.AutoBan)
		return risk.New(cfg), nil
	default:
		return nil, fmt.Errorf("unknown ENGINE_MODE %q", config.EngineMode)
	}
}
