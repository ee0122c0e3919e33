package main

import (
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/snipdrop/pkg/snipdrop/auth"
	"github.com/mikepea/snipdrop/pkg/snipdrop/database"
	"github.com/mikepea/snipdrop/pkg/snipdrop/events"
	"github.com/mikepea/snipdrop/pkg/snipdrop/items"
	"github.com/mikepea/snipdrop/pkg/snipdrop/models"
	"github.com/mikepea/snipdrop/pkg/snipdrop/ordering"
	"github.com/mikepea/snipdrop/pkg/snipdrop/shares"
	"github.com/mikepea/snipdrop/pkg/snipdrop/storage"
	"github.com/sirupsen/logrus"
)

// @title snipdrop API
// @version 1.0
// @description Self-hosted clipboard relay: push text/image/file snippets, read them back anywhere, share them through expiring links.

// @license.name MIT

// @host localhost:8080
// @BasePath /api

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Session token from /auth/verify. Format: "Bearer {token}"

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	dataDir := os.Getenv("SNIPDROP_DATA_DIR")
	if dataDir == "" {
		dataDir = "data"
	}
	dbPath := os.Getenv("SNIPDROP_DB_PATH")
	if dbPath == "" {
		dbPath = filepath.Join(dataDir, "snipdrop.db")
	}
	baseURL := os.Getenv("SNIPDROP_BASE_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		log.WithError(err).Fatal("Failed to create data directory")
	}

	// Connect to database
	db, err := database.Connect(dbPath)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to database")
	}

	// Run auto-migrations
	if err := models.AutoMigrate(db); err != nil {
		log.WithError(err).Fatal("Failed to run migrations")
	}
	log.Info("Database migrations completed")

	// Core components. The hub is constructed here and injected everywhere
	// that publishes; it has no global fallback.
	hub := events.NewHub(events.DefaultKeepAliveInterval, log)
	defer hub.Close()

	itemRepo := storage.NewItemRepository(db)
	linkRepo := storage.NewShareLinkRepository(db)

	store, err := storage.NewStore(itemRepo, storage.Config{DataDir: dataDir}, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize storage")
	}
	index := ordering.NewIndex(itemRepo)
	manager := shares.NewManager(linkRepo, store, log)

	gate, err := auth.NewGate(os.Getenv("SNIPDROP_PASSWORD"))
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize password gate")
	}
	if !gate.Enabled() {
		log.Warn("SNIPDROP_PASSWORD not set - running without authentication")
	}

	// Set up Gin router
	r := gin.Default()

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Public API: auth plus the token-gated share endpoints
	public := r.Group("/api")
	{
		authHandler := auth.NewHandler(gate)
		authHandler.RegisterRoutes(public.Group("/auth"))

		sharesHandler := shares.NewHandler(manager, baseURL, log)
		sharesHandler.RegisterPublicRoutes(public)

		// Protected API: everything else sits behind the password gate
		protected := r.Group("/api")
		protected.Use(gate.Middleware())

		itemsHandler := items.NewHandler(store, index, hub, log)
		itemsHandler.RegisterRoutes(protected)

		sharesHandler.RegisterRoutes(protected)

		eventsHandler := events.NewHandler(hub)
		eventsHandler.RegisterRoutes(protected)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	log.WithField("port", port).Info("Starting snipdrop server")
	if err := r.Run(":" + port); err != nil {
		log.WithError(err).Fatal("Failed to start server")
	}
}
