package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	api "mailagent-backend/cmd/api"
	"mailagent-backend/internal/agent"
	authdomain "mailagent-backend/internal/auth/domain"
	authdto "mailagent-backend/internal/auth/dto"
	authRepo "mailagent-backend/internal/auth/repository"
	authUsecase "mailagent-backend/internal/auth/usecase"
	"mailagent-backend/internal/credential"
	"mailagent-backend/internal/dispatch"
	emaildomain "mailagent-backend/internal/email/domain"
	"mailagent-backend/internal/email/listener"
	emailRepo "mailagent-backend/internal/email/repository"
	"mailagent-backend/internal/email/sweeper"
	emailUsecase "mailagent-backend/internal/email/usecase"
	meetingdomain "mailagent-backend/internal/meeting/domain"
	meetingRepo "mailagent-backend/internal/meeting/repository"
	meetingUsecase "mailagent-backend/internal/meeting/usecase"
	"mailagent-backend/internal/notification"
	taskdomain "mailagent-backend/internal/task/domain"
	taskRepo "mailagent-backend/internal/task/repository"
	"mailagent-backend/internal/task/scheduler"
	taskUsecase "mailagent-backend/internal/task/usecase"
	"mailagent-backend/pkg/ai"
	"mailagent-backend/pkg/config"
	"mailagent-backend/pkg/database"
	"mailagent-backend/pkg/fcm"
	"mailagent-backend/pkg/gmail"
	"mailagent-backend/pkg/imap"

	"golang.org/x/sync/errgroup"
)

const (
	shutdownTimeout = 30 * time.Second
	// Gmail watches expire after seven days
	watchRenewInterval = 24 * time.Hour
)

func main() {
	// Load configuration
	cfg := config.Load()

	if len(os.Args) > 1 && os.Args[1] == "issue-token" {
		if err := issueToken(cfg, os.Args[2:]); err != nil {
			log.Fatal("Failed to issue token:", err)
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize database
	db, err := database.NewConnection(cfg)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	// Auto-migrate database schemas
	if err := db.AutoMigrate(
		&emaildomain.ProcessedMessage{},
		&emaildomain.SyncCursor{},
		&emaildomain.Sentiment{},
		&meetingdomain.Meeting{},
		&meetingdomain.Feedback{},
		&taskdomain.Task{},
		&authdomain.FCMToken{},
	); err != nil {
		log.Fatal("Failed to migrate database:", err)
	}

	// Initialize repositories (dependency injection)
	ledger := emailRepo.NewProcessedMessageRepository(db)
	cursorRepo := emailRepo.NewCursorRepository(db)
	sentimentRepo := emailRepo.NewSentimentRepository(db)
	meetingRepository := meetingRepo.NewGormMeetingRepository(db)
	taskRepository := taskRepo.NewGormTaskRepository(db)
	fcmTokenRepo := authRepo.NewFCMTokenRepository(db)

	for _, token := range cfg.OperatorFCMTokens {
		if err := fcmTokenRepo.SaveToken(token, "OPERATOR_FCM_TOKENS"); err != nil {
			log.Printf("[WARN] Failed to register operator device from env: %v", err)
		}
	}

	// Mail provider and, for Gmail, the credential guard every call goes through
	var (
		provider     emaildomain.MailProvider
		gmailService *gmail.Service
		guard        *credential.Guard
	)
	switch cfg.MailProvider {
	case "imap":
		provider = imap.NewService(imap.Config{
			Host:     cfg.IMAPHost,
			Port:     cfg.IMAPPort,
			Username: cfg.IMAPUsername,
			Password: cfg.IMAPPassword,
			Mailbox:  cfg.IMAPMailbox,
			TLS:      cfg.IMAPTLS,
		})
		log.Printf("[Mail] Using IMAP provider %s:%s", cfg.IMAPHost, cfg.IMAPPort)

	case "gmail", "":
		store, err := newCredentialStore(cfg)
		if err != nil {
			log.Fatal("Failed to open credential store:", err)
		}
		guard = credential.NewGuard(store, credential.NewOAuthRefresher(cfg.GoogleClientID, cfg.GoogleClientSecret))
		gmailService, err = gmail.NewService(ctx, guard, cfg.GmailLabel, cfg.SweepWindow)
		if err != nil {
			log.Fatal("Failed to initialize Gmail service:", err)
		}
		provider = gmailService
		log.Printf("[Mail] Using Gmail provider on label %s", cfg.GmailLabel)

	default:
		log.Fatalf("Unsupported MAIL_PROVIDER %q", cfg.MailProvider)
	}

	// AI analyzer; the Ollama client is shared with the settings API
	ollama := ai.NewOllamaService(cfg.OllamaBaseURL, cfg.OllamaModel)
	analyzer, closeAI, err := ai.NewAnalyzer(ctx, ai.Config{
		Provider:     ai.ProviderType(cfg.AIProvider),
		GeminiAPIKey: cfg.GeminiApiKey,
		GeminiModel:  cfg.GeminiModel,
		Ollama:       ollama,
	})
	if err != nil {
		log.Fatal("Failed to initialize AI service:", err)
	}
	defer closeAI()
	log.Printf("AI service initialized with provider: %s", cfg.AIProvider)

	// Operator alerts (FCM optional, log-only otherwise)
	var sender notification.Sender
	if cfg.FirebaseCredentials != "" {
		fcmClient, err := fcm.NewClient(ctx, cfg.FirebaseCredentials)
		if err != nil {
			log.Printf("[WARN] Failed to initialize FCM client (push alerts disabled): %v", err)
		} else {
			sender = fcmClient
		}
	} else {
		log.Printf("[WARN] No Firebase credentials configured, alerts are logged only")
	}
	alerter := notification.NewAlerter(sender, fcmTokenRepo)

	// Dispatcher and worker agents
	agents := agent.NewRegistry(analyzer, meetingRepository, agent.Options{Organizer: cfg.OrganizerEmail})
	writer := dispatch.NewStoreWriter(meetingRepository, taskRepository, sentimentRepo)
	dispatcher := dispatch.New(ledger, writer, agents, alerter, dispatch.Config{
		Workers:       cfg.DispatchWorkers,
		MaxRetries:    cfg.DispatchMaxRetries,
		RatePerSecond: cfg.DispatchRate,
	})
	dispatcher.Start()

	// Background loops
	var credentialGuard listener.CredentialGuard
	if guard != nil {
		credentialGuard = guard
	}
	mailListener := listener.New(provider, cursorRepo, dispatcher, credentialGuard, alerter, listener.Config{
		Interval:   cfg.PollInterval,
		MaxBackoff: cfg.PollMaxBackoff,
	})
	var sweeperOpts []sweeper.Option
	if guard != nil {
		// The sweep keeps resuming ledger rows but stops listing the inbox
		// while the credential is expired
		sweeperOpts = append(sweeperOpts, sweeper.WithGuard(guard))
	}
	periodic := sweeper.New(provider, ledger, dispatcher, sweeper.Config{
		Interval: cfg.SweepInterval,
		Limit:    cfg.SweepLimit,
	}, sweeperOpts...)
	reminders := scheduler.NewTaskReminderScheduler(taskRepository, alerter, cfg.ReminderInterval)

	// Initialize use cases (dependency injection)
	var authUc authUsecase.AuthUsecase
	if cfg.APIJWTSecret != "" {
		authUc = authUsecase.NewAuthUsecase(cfg.APIJWTSecret)
	} else {
		log.Printf("[WARN] API_JWT_SECRET not set, API is unauthenticated")
	}
	requester := cfg.OrganizerEmail
	if requester == "" {
		requester = "api@localhost"
	}

	health := api.HealthSources{
		Listener:   mailListener.Status,
		Dispatcher: dispatcher.Stats,
	}
	if guard != nil {
		health.Credential = guard.Status
	}

	// Initialize HTTP handler
	handler := api.NewHandler(api.Deps{
		AuthUsecase:    authUc,
		EmailUsecase:   emailUsecase.NewEmailUsecase(periodic, dispatcher, sentimentRepo, ledger),
		MeetingUsecase: meetingUsecase.NewMeetingUsecase(meetingRepository, dispatcher, requester),
		TaskUsecase:    taskUsecase.NewTaskUsecase(taskRepository),
		Devices:        fcmTokenRepo,
		Ollama:         ollama,
		Health:         health,
	})
	server := handler.Server(":" + cfg.Port)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Printf("Server starting on port %s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		// An expired credential stops ingestion but keeps the API up so
		// /health can report it
		if err := mailListener.Run(gctx); err != nil {
			log.Printf("[ERROR] Mail ingestion stopped until re-authorization: %v", err)
		}
		return nil
	})
	g.Go(func() error {
		return periodic.Run(gctx)
	})
	g.Go(func() error {
		return reminders.Run(gctx)
	})

	// Push trigger (Pub/Sub) wakes the listener on Gmail watch notifications
	if gmailService != nil && cfg.GoogleProjectID != "" {
		trigger, err := notification.NewPushTrigger(ctx, cfg.GoogleProjectID, cfg.GooglePubSubSubscription, cfg.GoogleCredentials, cfg.GmailAddress, mailListener)
		if err != nil {
			log.Printf("[ERROR] Failed to initialize push trigger: %v", err)
		} else {
			defer trigger.Close()
			g.Go(func() error {
				return trigger.Start(gctx)
			})
		}
		if cfg.GooglePubSubTopic != "" {
			g.Go(func() error {
				renewWatch(gctx, gmailService, cfg.GooglePubSubTopic)
				return nil
			})
		}
	} else {
		log.Printf("[WARN] GoogleProjectID not configured, push trigger disabled")
	}

	runErr := g.Wait()

	// Loops have stopped submitting; drain in-flight work before closing the store
	drainCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := dispatcher.Stop(drainCtx); err != nil {
		log.Printf("[WARN] Dispatcher did not drain cleanly: %v", err)
	}
	if err := database.Close(db); err != nil {
		log.Printf("[WARN] Failed to close database: %v", err)
	}

	if runErr != nil {
		log.Fatal("Server stopped with error:", runErr)
	}
	log.Println("Shutdown complete")
}

func newCredentialStore(cfg *config.Config) (credential.Store, error) {
	switch strings.ToLower(cfg.CredentialStore) {
	case "keyring":
		return credential.OpenKeyringStore(cfg.KeyringDir, cfg.KeyringPassword)
	case "file", "":
		return credential.NewFileStore(cfg.CredentialFile), nil
	}
	return nil, fmt.Errorf("unsupported CREDENTIAL_STORE %q", cfg.CredentialStore)
}

// renewWatch keeps the Gmail watch alive while ctx is running
func renewWatch(ctx context.Context, svc *gmail.Service, topic string) {
	ticker := time.NewTicker(watchRenewInterval)
	defer ticker.Stop()

	for {
		if _, expires, err := svc.Watch(ctx, topic); err != nil {
			log.Printf("[Gmail] Failed to renew watch: %v", err)
		} else {
			log.Printf("[Gmail] Watch renewed until %s", expires.Format(time.RFC3339))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// issueToken prints a signed API token: issue-token <subject> [ttl]
func issueToken(cfg *config.Config, args []string) error {
	if cfg.APIJWTSecret == "" {
		return errors.New("API_JWT_SECRET is not set")
	}
	if len(args) < 1 {
		return errors.New("usage: issue-token <subject> [ttl]")
	}
	ttl := 24 * time.Hour
	if len(args) > 1 {
		parsed, err := time.ParseDuration(args[1])
		if err != nil {
			return fmt.Errorf("invalid ttl: %w", err)
		}
		ttl = parsed
	}

	token, err := authUsecase.NewAuthUsecase(cfg.APIJWTSecret).IssueToken(args[0], ttl)
	if err != nil {
		return err
	}
	return json.NewEncoder(os.Stdout).Encode(authdto.IssueTokenResponse{
		AccessToken: token,
		ExpiresIn:   int64(ttl.Seconds()),
	})
}
