package main

import (
	"context"
	"log"
	"net/http"
	"time"

	api "github.com/prepworks/prepworks-engine/internal/api/http"
	auth "github.com/prepworks/prepworks-engine/internal/auth/middleware"
	"github.com/prepworks/prepworks-engine/internal/catalog"
	"github.com/prepworks/prepworks-engine/internal/config"
	"github.com/prepworks/prepworks-engine/internal/db"
	"github.com/prepworks/prepworks-engine/internal/delivery"
	"github.com/prepworks/prepworks-engine/internal/notify"
	rbac "github.com/prepworks/prepworks-engine/internal/rbac"
	syncx "github.com/prepworks/prepworks-engine/internal/sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

func main() {
	cfg := config.FromEnv()

	// --- DB ---
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dbh, err := db.Open(ctx, db.Driver(cfg.DBDriver), cfg.DBDSN)
	if err != nil {
		log.Fatalf("db open failed: %v", err)
	}
	cat := catalog.NewSQLStore(dbh, cfg.DBDriver)
	store := delivery.NewSQLStore(dbh, cfg.DBDriver)
	events := syncx.NewEventRepo(dbh)

	// Preload composite score tables into the registry.
	if rows, err := cat.CombinedScores(ctx); err != nil {
		log.Printf("combined scores load: %v", err)
	} else {
		delivery.LoadCompositeTables(rows)
	}

	// --- Notifications (optional AMQP fanout) ---
	var notifier notify.Notifier = notify.Noop{}
	if cfg.AMQPURL != "" {
		pub, err := notify.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			log.Fatalf("amqp connect: %v", err)
		}
		defer pub.Close()
		notifier = pub
	}

	svc := delivery.NewService(store, cat,
		delivery.WithNotifier(notifier),
		delivery.WithEvents(events),
	)

	// --- Auth ---
	authSvc := auth.NewAuthService(cfg.AuthSecret)

	// --- Router ---
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	origins := cfg.CORSOriginsOffline
	if cfg.Mode == config.ModeOnline {
		origins = cfg.CORSOriginsOnline
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Post("/auth/login", auth.LoginHandler(authSvc, dbh, cfg.AdminUser, cfg.AdminPassHash))

	// Protected API (JWT → role in context → RBAC)
	r.Group(func(pr chi.Router) {
		pr.Use(auth.JWTMiddleware(authSvc))
		pr.Use(auth.AttachRoleFromDB(dbh, cfg.Mode == config.ModeOffline))

		// Content management
		pr.With(rbac.Require("question:create")).
			Post("/questions", api.PutQuestionHandler(cat))
		pr.With(rbac.Require("test:view")).
			Get("/questions/{questionID}", api.GetQuestionHandler(cat))
		pr.With(rbac.Require("test:create")).
			Post("/tests", api.CreateTestHandler(cat))
		pr.With(rbac.Require("test:view")).
			Get("/tests/{testID}", api.GetTestHandler(cat))
		pr.With(rbac.Require("test:curate")).
			Put("/tests/{testID}/questions", api.SetLinearQuestionsHandler(cat))
		pr.With(rbac.Require("test:create")).
			Post("/subjects", api.PutSubjectHandler(cat))
		pr.With(rbac.Require("test:create")).
			Post("/combined-scores", api.PutCombinedScoresHandler(cat))

		// Assignment (mentor/faculty/admin)
		pr.With(rbac.Require("submission:assign")).
			Post("/submissions", api.AssignTestHandler(svc))
		pr.With(rbac.Require("submission:reassign")).
			Post("/submissions/{submissionID}/reassign", api.ReassignHandler(svc))

		// Student flow
		pr.With(rbac.Require("submission:take")).
			Post("/submissions/{submissionID}/answers", api.TakeTestHandler(svc))
		pr.With(rbac.Require("submission:skip-section")).
			Post("/submissions/{submissionID}/skip-section", api.SkipSectionHandler(svc))
		pr.With(rbac.Require("submission:questions")).
			Get("/submissions/{submissionID}/questions", api.SectionQuestionsHandler(svc))
		pr.With(rbac.Require("submission:progress")).
			Get("/submissions/{submissionID}/progress", api.ProgressHandler(svc))
		pr.With(rbac.RequireAny("submission:report-own", "submission:report")).
			Get("/submissions/{submissionID}/report", api.ReportHandler(svc))

		// Self practice
		pr.With(rbac.Require("practice:start")).
			Post("/practices", api.StartPracticeHandler(svc))
		pr.With(rbac.Require("practice:take")).
			Post("/practices/{practiceID}/answers", api.TakePracticeHandler(svc))
		pr.With(rbac.Require("practice:report")).
			Get("/practices/{practiceID}/report", api.PracticeReportHandler(svc))

		// Users (admin)
		pr.With(rbac.Require("users:bulk_upsert")).
			Post("/users/bulk", api.BulkUpsertUsersHandler(dbh))
		pr.With(rbac.Require("users:list")).
			Get("/users", api.ListUsersHandler(dbh))
		pr.With(rbac.Require("user:change_password")).
			Post("/users/change-password", api.ChangePasswordHandler(dbh))
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })

	// In-process expiration sweeper; run sweeperd instead when scaling out.
	sweeper := delivery.NewSweeper(store, cfg.SweepInterval, delivery.SweepEvents(events))
	go sweeper.Run(context.Background())

	log.Printf("listening on %s (mode=%s, db=%s)", cfg.HTTPAddr, cfg.Mode, cfg.DBDriver)
	log.Fatal(http.ListenAndServe(cfg.HTTPAddr, r))
}
