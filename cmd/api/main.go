package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"mediastore/internal/config"
	"mediastore/internal/database"
	"mediastore/internal/domain/account"
	"mediastore/internal/domain/chunked"
	"mediastore/internal/domain/dav"
	"mediastore/internal/domain/gc"
	"mediastore/internal/domain/ingest"
	"mediastore/internal/domain/ledger"
	"mediastore/internal/domain/media"
	"mediastore/internal/domain/registry"
	"mediastore/internal/middleware"
	jwtsvc "mediastore/internal/pkg/jwt"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal(err)
	}
	if err := db.AutoMigrate(
		&registry.HashRecord{},
		&ledger.OwnershipRecord{},
		&chunked.UploadSession{},
		&chunked.ChunkRecord{},
		&account.Account{},
	); err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registryRepo := registry.NewRepository(db)
	ledgerRepo := ledger.NewRepository(db)
	chunkedRepo := chunked.NewRepository(db)
	accounts := account.NewResolver(db)

	gcWorker := gc.NewWorker(registryRepo, cfg.MediaRoot, cfg.GCWorkers, cfg.GCSweepInterval)
	gcWorker.Start(ctx)

	ingestService := ingest.NewService(registryRepo, ledgerRepo, cfg.MediaRoot, cfg.MaxUploadSize, nil)
	chunkedService := chunked.NewService(chunkedRepo, ingestService, registryRepo, cfg.MediaRoot, cfg.MaxUploadSize)
	chunkedService.StartReaper(ctx, cfg.SessionTTL/4, cfg.SessionTTL)

	codec := media.NewCommandCodec("")
	mediaService := media.NewService(ingestService, ledgerRepo, registryRepo, gcWorker, cfg.MediaRoot, cfg.ThumbnailDir, codec)

	j := jwtsvc.New(cfg.JWTSecret, cfg.JWTTTL)

	mediaHandler := media.NewHandler(mediaService)
	chunkedHandler := chunked.NewHandler(chunkedService)
	chunkedWS := chunked.NewWSHandler(chunkedService, j)
	davHandler := dav.NewHandler(accounts, ledgerRepo, registryRepo, ingestService)

	r := gin.Default()
	r.Use(middleware.ErrorLogger())
	r.Use(middleware.CORS())

	root := r.Group("/")
	{
		// public: shared links, thumbnails, websocket progress
		media.RegisterPublicRoutes(root, mediaHandler)
		chunked.RegisterWSRoutes(root, chunkedWS)

		protected := root.Group("/")
		protected.Use(middleware.Auth(j))
		{
			media.RegisterRoutes(protected, mediaHandler)
			chunked.RegisterRoutes(protected, chunkedHandler)
		}
	}

	dav.RegisterRoutes(r, davHandler)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()
	log.Printf("media store listening on :%s", cfg.Port)

	<-ctx.Done()
	log.Println("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("server shutdown: %v", err)
	}
	gcWorker.Wait()
}
