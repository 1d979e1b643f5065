package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/parisxmas/OxiDB/OxiAudit/internal/config"
	"github.com/parisxmas/OxiDB/OxiAudit/internal/db"
	"github.com/parisxmas/OxiDB/OxiAudit/internal/gelf"
	"github.com/parisxmas/OxiDB/OxiAudit/internal/handler"
	"github.com/parisxmas/OxiDB/OxiAudit/internal/repository"
	"github.com/parisxmas/OxiDB/OxiAudit/internal/router"
	"github.com/parisxmas/OxiDB/OxiAudit/internal/service"
	"github.com/parisxmas/OxiDB/OxiAudit/internal/uploads"
	"github.com/parisxmas/OxiDB/OxiAudit/internal/workflow"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	// GELF UDP logging
	if cfg.GelfAddr != "" {
		gelfWriter, err := gelf.New(cfg.GelfAddr, "oxiaudit")
		if err != nil {
			log.Printf("Warning: GELF init failed: %v", err)
		} else {
			defer gelfWriter.Close()
			log.SetOutput(io.MultiWriter(os.Stderr, gelfWriter))
			log.Printf("GELF logging: enabled (%s)", cfg.GelfAddr)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Connect to OxiDB
	pool, err := db.NewPool(ctx, cfg.OxiDBAddr(), cfg.PoolSize, cfg.DBTimeout)
	if err != nil {
		return fmt.Errorf("connect to OxiDB: %w", err)
	}
	defer pool.Close()
	log.Printf("Connected to OxiDB at %s (pool size: %d)", cfg.OxiDBAddr(), cfg.PoolSize)

	// Repositories
	userRepo := repository.NewUserRepo(pool)
	docRepo := repository.NewDocumentRepo(pool)

	var sections service.SectionRepository
	var oxiSections *repository.SectionRepo
	switch cfg.SectionBackend {
	case "sqlite":
		lite, err := repository.OpenSQLiteSectionRepo(cfg.SQLitePath)
		if err != nil {
			return err
		}
		defer lite.Close()
		sections = lite
		log.Printf("Sections stored in SQLite at %s", cfg.SQLitePath)
	default:
		oxiSections = repository.NewSectionRepo(pool)
		sections = oxiSections
	}

	// Services
	hub := uploads.NewHub()
	authSvc := service.NewAuthService(userRepo, cfg.JWTSecret)
	docSvc := service.NewDocumentService(docRepo, hub, cfg.AcceptedTypes, cfg.MaxUploadBytes())
	searchSvc := service.NewSearchService(pool)
	store := service.NewTemplateStore(sections, cfg.TemplatesDir)
	registry := workflow.NewRegistry(store, workflow.Options{
		Uploader:    docSvc,
		Hub:         hub,
		SaveTimeout: cfg.AutosaveTimeout,
		StrictIDs:   cfg.StrictIDs,
		UploadedBy:  "system",
	}, workflow.WithCrossSections(cfg.CrossSections))
	sectionSvc := service.NewSectionService(store, registry, docSvc, cfg.CrossSections)

	// Router
	r := router.New(cfg.JWTSecret, router.Handlers{
		Auth:      handler.NewAuthHandler(authSvc),
		Sections:  handler.NewSectionHandler(sectionSvc, docSvc, cfg.MaxUploadBytes()),
		Documents: handler.NewDocumentHandler(docSvc, cfg.MaxUploadBytes()),
		Search:    handler.NewSearchHandler(searchSvc),
		Dashboard: handler.NewDashboardHandler(sectionSvc, docSvc),
		Admin:     handler.NewAdminHandler(sectionSvc),
		Events:    handler.NewEventsHandler(hub),
	})

	// Index creation and admin seeding run in the background so the HTTP
	// server is up immediately.
	go backgroundInit(ctx, pool, cfg, oxiSections)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r}
	errc := make(chan error, 1)
	go func() {
		log.Printf("OxiAudit server starting on %s", cfg.HTTPAddr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
		log.Printf("Shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Warning: http shutdown: %v", err)
	}
	if err := registry.Close(); err != nil {
		log.Printf("Warning: flushing sections: %v", err)
	}
	return nil
}

func backgroundInit(ctx context.Context, pool *db.Pool, cfg *config.Config, sections *repository.SectionRepo) {
	log.Printf("Background init: starting")
	userRepo := repository.NewUserRepo(pool)
	docRepo := repository.NewDocumentRepo(pool)
	authSvc := service.NewAuthService(userRepo, cfg.JWTSecret)

	log.Printf("Background init: creating user indexes...")
	if err := userRepo.EnsureIndexes(ctx); err != nil {
		log.Printf("Warning: user index creation failed: %v", err)
	}
	log.Printf("Background init: creating document indexes...")
	if err := docRepo.EnsureIndexes(ctx); err != nil {
		log.Printf("Warning: document index creation failed: %v", err)
	}
	log.Printf("Background init: ensuring blob bucket...")
	if err := docRepo.EnsureBucket(ctx); err != nil {
		log.Printf("Warning: blob bucket: %v", err)
	}
	if sections != nil {
		log.Printf("Background init: creating section indexes...")
		if err := sections.EnsureIndexes(ctx); err != nil {
			log.Printf("Warning: section index creation failed: %v", err)
		}
	}

	// Seed admin (needs the unique email index)
	log.Printf("Background init: seeding admin user...")
	if err := authSvc.SeedAdmin(ctx, cfg.AdminEmail, cfg.AdminPass); err != nil {
		log.Printf("Warning: failed to seed admin: %v", err)
	}
	log.Printf("Background init: all done")
}
