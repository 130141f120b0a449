package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"collabspace-sync-server/internal/config"
	"collabspace-sync-server/internal/handler"
	"collabspace-sync-server/internal/logger"
	"collabspace-sync-server/internal/middleware"
	"collabspace-sync-server/internal/relay"
	"collabspace-sync-server/internal/repository"

	_ "github.com/go-kivik/kivik/v4/couchdb"

	"github.com/go-kivik/kivik/v4"
	"github.com/gorilla/mux"
	zlog "github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		zlog.Fatal().Err(err).Msg("failed to load configuration")
	}

	log := logger.New("collabspace-sync", cfg.Logging.Level)
	zlog.Logger = log

	repo, err := buildSnapshotRepository(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up snapshot store")
	}

	registry := relay.NewRegistry(relay.Config{
		WriteWait:      cfg.WebSocket.WriteWait,
		PongWait:       cfg.WebSocket.PongWait,
		PingPeriod:     cfg.WebSocket.PingPeriod,
		MaxMessageSize: cfg.WebSocket.MaxMessageSize,
	}, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go registry.Run(ctx)

	wsHandler := handler.NewWebSocketHandler(registry, cfg.WebSocket.ReadBufferSize, cfg.WebSocket.WriteBufferSize, log)
	roomHandler := handler.NewRoomHandler(registry)
	snapshotHandler := handler.NewSnapshotHandler(repo, log)
	configHandler := handler.NewClientConfigHandler(
		cfg.Server.BaseURL,
		cfg.Sync.SettleWindow,
		cfg.Sync.MinSnapshotSize,
	)

	r := mux.NewRouter()
	r.Use(middleware.LoggerMiddleware(log))
	r.Use(middleware.CORSMiddleware(
		cfg.CORS.AllowedOrigins,
		cfg.CORS.AllowedMethods,
		cfg.CORS.AllowedHeaders,
	))

	r.HandleFunc("/room/{id}", wsHandler.HandleConnection)
	r.HandleFunc("/room", wsHandler.HandleConnection)
	r.HandleFunc("/room/", wsHandler.HandleConnection)

	r.HandleFunc("/rooms/{id}", roomHandler.GetRoomInfo).Methods("GET", "OPTIONS")
	r.HandleFunc("/stats", roomHandler.GetStats).Methods("GET", "OPTIONS")

	r.HandleFunc("/documents/{id}/snapshot", snapshotHandler.Get).Methods("GET", "OPTIONS")
	r.HandleFunc("/documents/{id}/snapshot", snapshotHandler.Put).Methods("PUT", "OPTIONS")

	r.HandleFunc("/config", configHandler.Get).Methods("GET", "OPTIONS")

	r.HandleFunc("/health", healthHandler).Methods("GET")

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)

	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", addr).Str("env", cfg.Server.Env).Msg("starting relay server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down relay server")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped gracefully")
}

func buildSnapshotRepository(cfg *config.Config) (repository.SnapshotRepository, error) {
	switch cfg.Database.Driver {
	case "couch":
		couchURL := fmt.Sprintf("http://%s:%s@%s:%s",
			cfg.Database.User,
			cfg.Database.Password,
			cfg.Database.Host,
			cfg.Database.Port,
		)
		client, err := kivik.New("couch", couchURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to CouchDB: %w", err)
		}
		exists, err := client.DBExists(context.Background(), cfg.Database.Name)
		if err != nil {
			return nil, fmt.Errorf("failed to check database existence: %w", err)
		}
		if !exists {
			if err := client.CreateDB(context.Background(), cfg.Database.Name); err != nil {
				return nil, fmt.Errorf("failed to create database: %w", err)
			}
		}
		return repository.NewCouchSnapshotRepository(client, cfg.Database.Name), nil

	default:
		db, err := repository.OpenSQLite(cfg.Database.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite database: %w", err)
		}
		return repository.NewSQLiteSnapshotRepository(db)
	}
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy","service":"collabspace-sync-server"}`))
}
