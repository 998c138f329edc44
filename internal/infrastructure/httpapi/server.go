package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bytedance/sonic"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/lucasjahn/simplyOrg-connector/internal/config"
	"github.com/lucasjahn/simplyOrg-connector/internal/domain"
	"github.com/lucasjahn/simplyOrg-connector/internal/service"
	"github.com/lucasjahn/simplyOrg-connector/internal/service/serverrors"
)

// SyncRunner triggers sync passes and exposes their state.
type SyncRunner interface {
	Run(ctx context.Context, params service.RunParams) (domain.SyncReport, error)
	Running() bool
	LastReport() (domain.SyncReport, bool)
}

// StorePinger checks content store connectivity for the health endpoint.
type StorePinger interface {
	Ping(ctx context.Context) error
}

type Server struct {
	app      *fiber.App
	runner   SyncRunner
	store    StorePinger
	log      *slog.Logger
	validate *validator.Validate
	addr     string
	apiKey   string
}

type runRequest struct {
	Start string `query:"start" validate:"omitempty,datetime=2006-01-02,required_with=End"`
	End   string `query:"end" validate:"omitempty,datetime=2006-01-02,required_with=Start"`
	Limit int    `query:"limit" validate:"omitempty,min=1"`
}

type statusResponse struct {
	Running    bool               `json:"running"`
	LastReport *domain.SyncReport `json:"last_report"`
}

func NewServer(cfg config.HTTPServer, runner SyncRunner, store StorePinger, log *slog.Logger) *Server {
	app := fiber.New(fiber.Config{
		AppName:               "simplyorg-connector",
		JSONEncoder:           sonic.Marshal,
		JSONDecoder:           sonic.Unmarshal,
		ReadTimeout:           cfg.ReadTimeout,
		WriteTimeout:          cfg.WriteTimeout,
		IdleTimeout:           cfg.IdleTimeout,
		DisableStartupMessage: true,
	})

	s := &Server{
		app:      app,
		runner:   runner,
		store:    store,
		log:      log.With(slog.String("component", "http_server")),
		validate: validator.New(),
		addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		apiKey:   cfg.APIKey,
	}

	app.Get("/health", s.handleHealth)

	api := app.Group("/api", s.requireAPIKey)
	api.Post("/sync/run", s.handleRun)
	api.Get("/sync/status", s.handleStatus)

	return s
}

// Listen blocks serving the admin API until Shutdown is called.
func (s *Server) Listen() error {
	s.log.Info("starting admin API", slog.String("address", s.addr))
	return s.app.Listen(s.addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

// requireAPIKey guards the API group when a key is configured.
func (s *Server) requireAPIKey(c *fiber.Ctx) error {
	if s.apiKey == "" {
		return c.Next()
	}
	if c.Get("X-API-Key") != s.apiKey {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "invalid or missing API key",
		})
	}
	return c.Next()
}

func (s *Server) handleRun(c *fiber.Ctx) error {
	var req runRequest
	if err := c.QueryParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid query parameters",
		})
	}
	if err := s.validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	report, err := s.runner.Run(c.Context(), service.RunParams{
		Start:   req.Start,
		End:     req.End,
		Limit:   req.Limit,
		Trigger: domain.TriggerAPI,
	})
	if err != nil {
		if errors.Is(err, serverrors.ErrSyncAlreadyRunning) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error": err.Error(),
			})
		}
		s.log.Error("sync pass failed", slog.Any("error", err))
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.JSON(report)
}

func (s *Server) handleStatus(c *fiber.Ctx) error {
	resp := statusResponse{Running: s.runner.Running()}
	if report, ok := s.runner.LastReport(); ok {
		resp.LastReport = &report
	}
	return c.JSON(resp)
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	if err := s.store.Ping(c.Context()); err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status": "degraded",
			"error":  err.Error(),
		})
	}
	return c.JSON(fiber.Map{"status": "ok"})
}
