package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"rfp-mail-ingest/internal/attachment"
	"rfp-mail-ingest/internal/config"
	"rfp-mail-ingest/internal/dedup"
	"rfp-mail-ingest/internal/extraction"
	"rfp-mail-ingest/internal/gmail"
	imapclient "rfp-mail-ingest/internal/imap"
	"rfp-mail-ingest/internal/ingest"
	"rfp-mail-ingest/internal/llm"
	"rfp-mail-ingest/internal/logging"
	"rfp-mail-ingest/internal/mailbox"
	"rfp-mail-ingest/internal/models"
	"rfp-mail-ingest/internal/pubsub"
	"rfp-mail-ingest/internal/store"
	"rfp-mail-ingest/internal/watermark"
	"rfp-mail-ingest/internal/webhook"

	"google.golang.org/api/option"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logging.Log.Fatalf("Error reading configuration file: %v", err)
	}
	if err := logging.SetLevel(cfg.Log.Level); err != nil {
		logging.Log.Warnf("Unknown log level %q, keeping info", cfg.Log.Level)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := store.New(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		logging.Log.Fatalf("Error opening database: %v", err)
	}
	defer db.Close()

	var marks watermark.Store = db
	if cfg.Watermark.Backend == "file" {
		marks = watermark.NewFileStore(cfg.Watermark.Path)
	}

	registry := mailbox.NewRegistry()
	var gmailClient *gmail.Client
	if cfg.Gmail.Enabled {
		gmailClient = newGmailClient(ctx, cfg)
		if cfg.Gmail.EmailAddress != "" {
			registry.Register(cfg.Gmail.EmailAddress, gmailClient)
		} else {
			registry.SetFallback(gmailClient)
		}
	}

	var imapProvider *imapclient.Provider
	if cfg.Email.Enabled {
		imapProvider = imapclient.NewProvider(cfg.Email, nil)
		defer imapProvider.Close()
		registry.Register(cfg.Email.Login, imapProvider)
	}

	extractor, err := extraction.NewAdapter(llm.NewOpenAI(llm.OpenAIConfig{
		APIKey:  cfg.LLM.APIKey,
		BaseURL: cfg.LLM.BaseURL,
		Model:   cfg.LLM.Model,
		Timeout: cfg.LLM.Timeout,
	}), cfg.LLM.Model)
	if err != nil {
		logging.Log.Fatalf("Error creating extraction adapter: %v", err)
	}

	guard := dedup.NewGuard(cfg.Ingest.DedupMax, cfg.Ingest.DedupKeep)
	recent, err := db.RecentProviderMessageIDs(ctx, cfg.Ingest.DedupKeep)
	if err != nil {
		logging.Log.Warnf("Could not seed dedup guard: %v", err)
	}
	guard.Seed(recent)

	orch, err := ingest.New(ingest.Options{
		Resolver:   registry,
		Watermarks: marks,
		Repository: db,
		Extractor:  extractor,
		Renderer:   attachment.NewRenderer(cfg.Attachments.TempDir, cfg.Attachments.MaxBytes),
		Guard:      guard,
		Workers:    cfg.Ingest.Workers,
		Timeout:    cfg.Ingest.Timeout,
	})
	if err != nil {
		logging.Log.Fatalf("Error creating orchestrator: %v", err)
	}

	var wg sync.WaitGroup
	run := func(fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn()
		}()
	}

	run(func() { guard.Run(ctx, cfg.Ingest.DedupInterval) })

	if gmailClient != nil && cfg.Gmail.WatchTopic != "" {
		run(func() { gmailClient.RunWatch(ctx, cfg.Gmail.WatchTopic, cfg.Gmail.WatchLabels, cfg.Gmail.WatchRenew) })
	}

	if cfg.PubSub.Subscription != "" {
		sub, err := pubsub.NewSubscriber(ctx, cfg.PubSub, orch)
		if err != nil {
			logging.Log.Fatalf("Error creating Pub/Sub subscriber: %v", err)
		}
		defer sub.Close()
		run(func() { sub.Run(ctx) })
	}

	if imapProvider != nil {
		poller := imapclient.NewPoller(imapProvider, func(ctx context.Context, n models.Notification) error {
			_, err := orch.Process(ctx, n)
			return err
		})
		run(func() { poller.Run(ctx) })
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           webhook.NewServer(cfg.Server, orch),
		ReadHeaderTimeout: 10 * time.Second,
	}
	run(func() {
		logging.Log.Infof("Listening for Gmail push notifications on %s%s", cfg.Server.Addr, cfg.Server.WebhookPath)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Log.Errorf("HTTP server error: %v", err)
			stop()
		}
	})

	<-ctx.Done()
	logging.Log.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Log.Errorf("HTTP shutdown error: %v", err)
	}
	wg.Wait()
}

// newGmailClient builds the credential provider once and hands its token source to the Gmail client
func newGmailClient(ctx context.Context, cfg *models.Config) *gmail.Client {
	creds, err := gmail.NewCredentialProvider(cfg.Gmail)
	if err != nil {
		logging.Log.Fatalf("Error loading Gmail credentials: %v", err)
	}
	client, err := gmail.New(ctx, cfg.Gmail.Retry, option.WithTokenSource(creds.TokenSource(ctx)))
	if err != nil {
		logging.Log.Fatalf("Error creating Gmail client: %v", err)
	}
	return client
}
