package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/chalarca/jwtauth/internal/config"
	"github.com/chalarca/jwtauth/internal/events"
	"github.com/chalarca/jwtauth/internal/httpserver"
	"github.com/chalarca/jwtauth/internal/identity"
	"github.com/chalarca/jwtauth/internal/logging"
	"github.com/chalarca/jwtauth/internal/refresh"
	"github.com/chalarca/jwtauth/internal/repo"
	"github.com/chalarca/jwtauth/internal/service"
	"github.com/chalarca/jwtauth/internal/token"
)

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger := logging.New(cfg.LogLevel)
	slog.SetDefault(logger)

	initCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	db, err := config.OpenDB(initCtx, cfg.DatabaseURL)
	cancel()
	if err != nil {
		log.Fatalf("db init error: %v", err)
	}

	svc := &service.AuthService{
		Identity: &identity.GormSource{
			DB:              db,
			MaxFailedLogins: cfg.LockoutMaxAttempts,
			LockoutWindow:   cfg.LockoutWindow,
		},
		Signer: &token.Signer{
			Key:      cfg.SigningKey,
			Issuer:   cfg.Issuer,
			Audience: cfg.Audience,
			TTL:      cfg.AccessTTL(),
		},
		Refresh: &refresh.Manager{
			Store: &repo.GormRefreshStore{DB: db},
			TTL:   cfg.RefreshTTL(),
		},
	}

	if len(cfg.KafkaBrokers) > 0 {
		producer := events.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer producer.Close()
		svc.Events = producer
	}

	e := echo.New()
	e.HideBanner = true
	e.Server.ReadTimeout = 10 * time.Second
	e.Server.WriteTimeout = 15 * time.Second
	e.Server.ReadHeaderTimeout = 3 * time.Second
	e.Use(echomw.Recover())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := logging.IntoContext(c.Request().Context(), logger)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	})

	httpserver.Register(e, &httpserver.Deps{
		AuthHandler: &httpserver.AuthHTTP{Svc: svc},
	})

	go func() {
		if err := e.Start(cfg.Addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("echo start: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	<-stop

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Printf("echo shutdown: %v", err)
	}
}
