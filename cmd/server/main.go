package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/iliyamo/document-access-gate/internal/access"
	"github.com/iliyamo/document-access-gate/internal/admission"
	"github.com/iliyamo/document-access-gate/internal/config"
	"github.com/iliyamo/document-access-gate/internal/database"
	"github.com/iliyamo/document-access-gate/internal/handler"
	"github.com/iliyamo/document-access-gate/internal/links"
	"github.com/iliyamo/document-access-gate/internal/mail"
	"github.com/iliyamo/document-access-gate/internal/middleware"
	"github.com/iliyamo/document-access-gate/internal/model"
	"github.com/iliyamo/document-access-gate/internal/notify"
	"github.com/iliyamo/document-access-gate/internal/queue"
	"github.com/iliyamo/document-access-gate/internal/repository"
	"github.com/iliyamo/document-access-gate/internal/router"
	"github.com/iliyamo/document-access-gate/internal/token"
	"github.com/iliyamo/document-access-gate/internal/workflow"
)

func main() {
	cfg := config.Load()
	wf := config.LoadWorkflowConfig()
	qc := config.LoadQueueConfig()

	logger := log.New("server")
	if cfg.Env == "dev" {
		log.SetLevel(log.DEBUG)
		logger.SetLevel(log.DEBUG)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	secret, err := config.LoadActionSecret(cfg)
	if err != nil {
		logger.Fatalf("action secret: %v", err)
	}

	db, err := database.Open(cfg)
	if err != nil {
		logger.Fatalf("database: %v", err)
	}
	defer db.Close()
	if err := database.Migrate(ctx, db); err != nil {
		logger.Fatalf("migrate: %v", err)
	}

	requests := repository.NewAccessRequestRepo(db)
	documents := repository.NewDocumentRepo(db)
	usedTokens := repository.NewUsedTokenRepo(db)
	accessLog := repository.NewAccessLogRepo(db)

	rdb := config.NewRedisClient(config.LoadRedisConfig())
	var marker token.Marker = usedTokens
	if rdb != nil {
		defer rdb.Close()
		marker = token.NewRedisMarker(rdb, "")
	} else {
		logger.Warn("redis unavailable: used action tokens tracked in MySQL, cache and rate limits disabled")
	}

	urls := links.NewBuilder(cfg.BaseURL)
	actionTokens := token.NewActionTokens(secret, wf.ActionTokenTTL, wf.UsedMarkerGrace, marker, urls)
	fileTokens := token.NewFileTokens(cfg.JWTSecret, time.Duration(cfg.FileTokenTTLMin)*time.Minute)

	dispatcher := notify.NewDispatcher(notify.DispatcherDeps{
		Mailer:       mail.NewSMTPMailer(config.LoadMailConfig()),
		Requests:     requests,
		Documents:    documents,
		FileTokens:   fileTokens,
		ActionTokens: actionTokens,
		Links:        urls,
		Admins:       cfg.AdminNotifyEmails,
		AutoResponse: cfg.AutoResponse,
		Logger:       log.New("notify"),
	})

	var notifier notify.Notifier = dispatcher
	if qc.Mode == "queue" {
		notifier = queue.NewPublisher(qc.URL, qc.QueueName, log.New("queue"))
		go func() {
			err := queue.StartConsumer(ctx, qc.URL, qc.QueueName, dispatcher, log.New("notify-consumer"))
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Errorf("notification consumer stopped: %v", err)
			}
		}()
	}

	initial, err := model.ParseStatus(wf.InitialStatus)
	if err != nil {
		logger.Fatalf("INITIAL_REQUEST_STATUS: %v", err)
	}
	restore, err := workflow.ParseRestorePolicy(wf.RestoreFallback)
	if err != nil {
		logger.Fatalf("RESTORE_FALLBACK: %v", err)
	}
	machine := workflow.NewMachine(requests, notifier, workflow.Options{
		InitialStatus: initial,
		Restore:       restore,
		Logger:        log.New("workflow"),
	})
	pipeline := access.NewPipeline(requests, documents, fileTokens, accessLog, cfg.StorageDir, log.New("access"))
	gate := admission.New(config.LoadAdmissionConfig(), rdb, log.New("admission"))

	go purgeUsedTokens(ctx, usedTokens, logger)

	e := echo.New()
	e.HideBanner = true
	e.Logger.SetLevel(logger.Level())
	e.Use(echomw.RequestID())
	e.Use(echomw.Logger())
	e.Use(echomw.Recover())

	limit := middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb)
	cache := middleware.NewRedisCache(config.LoadCacheConfig(), rdb)

	docHandler := handler.NewDocumentHandler(documents, machine, gate)
	router.RegisterRoutes(e)
	router.RegisterVisitor(e, handler.NewVisitorHandler(pipeline, machine, actionTokens, fileTokens, urls), limit)
	router.RegisterPublic(e, docHandler, cache, limit)
	router.RegisterAdmin(e, handler.NewAuthHandler(cfg),
		handler.NewAdminRequestHandler(requests, machine, actionTokens),
		docHandler, cfg.JWTSecret, limit)

	addr := ":" + cfg.Port
	go func() {
		logger.Infof("listening on %s (env=%s, notify=%s)", addr, cfg.Env, qc.Mode)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal(err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("shutdown: %v", err)
	}
}

// purgeUsedTokens drops expired MySQL used-token rows once an hour.
func purgeUsedTokens(ctx context.Context, repo *repository.UsedTokenRepo, logger *log.Logger) {
	t := time.NewTicker(time.Hour)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := repo.PurgeExpired(ctx)
			if err != nil {
				logger.Warnf("purge used tokens: %v", err)
				continue
			}
			if n > 0 {
				logger.Debugf("purged %d expired used-token rows", n)
			}
		}
	}
}
