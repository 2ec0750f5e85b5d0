package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"feedback-collector/backend/internal/audit"
	auditrepo "feedback-collector/backend/internal/audit/repository"
	"feedback-collector/backend/internal/config"
	"feedback-collector/backend/internal/db"
	"feedback-collector/backend/internal/db/migrate"
	"feedback-collector/backend/internal/email"
	"feedback-collector/backend/internal/notify"
	"feedback-collector/backend/internal/policy/engine"
	"feedback-collector/backend/internal/security"
	"feedback-collector/backend/internal/session/repository"
	"feedback-collector/backend/internal/session/service"
	"feedback-collector/backend/internal/telemetry"
	telemetryotel "feedback-collector/backend/internal/telemetry/otel"
	"feedback-collector/backend/internal/telemetry/producer"
)

// App holds the wired session service and the resources it owns.
type App struct {
	Service *service.SessionService
	Audit   auditrepo.Repository

	conn      *sql.DB
	providers *telemetryotel.Providers
	kafka     *producer.KafkaProducer
	drain     bool
}

// NewApp connects to the configured datastore and wires every collaborator of the session
// service. SQLite databases are migrated on open; Postgres expects cmd/migrate to have run.
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
	}
	dialect, err := db.ParseDialect(cfg.DatabaseDriver)
	if err != nil {
		return nil, err
	}
	conn, err := db.Open(dialect, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("db: %w", err)
	}
	if dialect == db.SQLite {
		if err := migrate.Apply(conn); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}

	policy, err := newPolicy(ctx, cfg.AccessPolicyFile)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	sender, err := email.NewSender(email.Config{
		PostmarkServerToken:  cfg.PostmarkServerToken,
		PostmarkAccountToken: cfg.PostmarkAccountToken,
		SenderEmail:          cfg.SenderEmail,
		SupportEmail:         cfg.SupportEmail,
		DevDir:               cfg.MailDevDir,
	})
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	providers, err := telemetryotel.NewProviders(ctx, cfg.OTLPEndpoint, cfg.ServiceName, cfg.OTLPInsecure)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("otel: %w", err)
	}
	providers.SetGlobal()

	dispatcher, err := notify.NewDispatcher(sender, cfg.AppBaseURL, providers.MeterProvider.Meter("feedback-collector/notify"))
	if err != nil {
		_ = providers.Shutdown(ctx)
		_ = conn.Close()
		return nil, err
	}

	emitters := []telemetry.EventEmitter{telemetryotel.NewEventEmitter(providers.LoggerProvider)}
	kafka := producer.NewKafkaProducer(cfg.TelemetryKafkaBrokersList(), cfg.TelemetryKafkaTopic)
	if kafka != nil {
		emitters = append(emitters, kafka)
	}

	auditRepo := auditrepo.NewSQLRepository(conn, dialect, cfg.AuditTable)
	store := repository.NewSQLRepository(conn, dialect, repository.Tables{
		Sessions: cfg.SessionsTable,
		Feedback: cfg.FeedbackTable,
	})
	svc := service.NewSessionService(
		store,
		security.NewPINService(security.NewHasher(cfg.BcryptCost), cfg.OverridePINHash),
		policy,
		dispatcher,
		service.Options{
			Timeout:  cfg.Timeout(),
			Cooldown: cfg.Cooldown(),
			Audit:    audit.NewLogger(auditRepo, nil),
			Emitter:  telemetry.Multi(emitters...),
			Tracer:   providers.TracerProvider.Tracer("feedback-collector/session"),
		},
	)
	return &App{
		Service:   svc,
		Audit:     auditRepo,
		conn:      conn,
		providers: providers,
		kafka:     kafka,
		drain:     cfg.OTLPEndpoint != "" || kafka != nil,
	}, nil
}

func newPolicy(ctx context.Context, path string) (*engine.OPAEvaluator, error) {
	var (
		p   *engine.OPAEvaluator
		err error
	)
	if path != "" {
		p, err = engine.NewOPAEvaluatorFromFile(ctx, path)
	} else {
		p, err = engine.NewOPAEvaluator(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("policy: %w", err)
	}
	if err := p.HealthCheck(ctx); err != nil {
		return nil, fmt.Errorf("policy: %w", err)
	}
	return p, nil
}

// Close flushes telemetry and closes the database. When an exporter or Kafka is configured it
// first waits for in-flight async emits.
func (a *App) Close(ctx context.Context) {
	if a.drain {
		time.Sleep(telemetry.ShutdownDrainDuration)
	}
	if err := a.kafka.Close(); err != nil {
		log.Printf("telemetry: kafka close: %v", err)
	}
	if a.providers != nil {
		if err := a.providers.Shutdown(ctx); err != nil {
			log.Printf("otel: shutdown: %v", err)
		}
	}
	if a.conn != nil {
		if err := a.conn.Close(); err != nil {
			log.Printf("db: close: %v", err)
		}
	}
}
