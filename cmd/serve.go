package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sendloop/sendloop/internal/agent"
	"github.com/sendloop/sendloop/internal/assist"
	"github.com/sendloop/sendloop/internal/bridge"
	"github.com/sendloop/sendloop/internal/config"
	"github.com/sendloop/sendloop/internal/credit"
	"github.com/sendloop/sendloop/internal/dispatch"
	"github.com/sendloop/sendloop/internal/graphapi"
	"github.com/sendloop/sendloop/internal/integrations"
	"github.com/sendloop/sendloop/internal/providers"
	"github.com/sendloop/sendloop/internal/server"
	"github.com/sendloop/sendloop/internal/store"
	"github.com/sendloop/sendloop/internal/store/memory"
	"github.com/sendloop/sendloop/internal/store/pg"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the messaging core",
		Run: func(cmd *cobra.Command, args []string) {
			runServe()
		},
	}
}

func runServe() {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	setupLogging(cfg.Logging.Level, cfg.Logging.Format)

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stores, cleanup, err := buildStores(cfg)
	if err != nil {
		slog.Error("store setup failed", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	gateway, templates, err := buildGateway(ctx, cfg)
	if err != nil {
		slog.Error("gateway setup failed", "error", err)
		os.Exit(1)
	}

	engine := dispatch.NewEngine(dispatch.EngineConfig{
		Chats:       stores.Chats,
		Messages:    stores.Messages,
		Gateway:     gateway,
		Templates:   templates,
		MaxParallel: cfg.Dispatch.MaxParallel,
	})

	ledger := credit.NewLedger(stores.Wallets, credit.WithAllowance(cfg.Credits.MonthlyAllowance))
	binder := integrations.NewBinder(integrations.DefaultRegistry(), stores.Integrations)

	var runner assist.Runner
	if cfg.Assistant.Enabled {
		provider := providers.NewOpenAIProvider("openai", cfg.Provider.APIKey, cfg.Provider.APIBase, cfg.Provider.Model)
		runner = agent.NewLoop(provider, cfg.Provider.Model,
			agent.WithMaxSteps(cfg.Assistant.MaxSteps),
			agent.WithMaxTokens(cfg.Provider.MaxTokens))
	} else {
		runner = disabledRunner{}
	}

	service := assist.NewService(assist.Config{
		Enabled:      cfg.Assistant.Enabled,
		Prompt:       cfg.Assistant.Prompt,
		HistoryLimit: cfg.Assistant.HistoryLimit,
	}, ledger, binder, runner, engine, stores.Chats, stores.Messages)

	account := dispatch.AccountCreds{
		AccountID:     cfg.WhatsApp.AccountID,
		PhoneNumberID: cfg.WhatsApp.PhoneNumberID,
		BusinessID:    cfg.WhatsApp.BusinessID,
		AccessToken:   cfg.WhatsApp.AccessToken,
	}

	srv := server.New(cfg.Server.Host, cfg.Server.Port, service, account)
	go func() {
		<-ctx.Done()
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func buildStores(cfg *config.Config) (*store.Stores, func(), error) {
	if cfg.Database.PostgresDSN == "" {
		slog.Warn("no SENDLOOP_POSTGRES_DSN set, using in-memory stores")
		return memory.NewStores(), func() {}, nil
	}
	db, err := pg.OpenDB(cfg.Database.PostgresDSN)
	if err != nil {
		return nil, nil, err
	}
	return pg.NewPGStores(db), func() { _ = db.Close() }, nil
}

// buildGateway returns the send gateway and, for cloud mode, the template
// store backing it. Bridge mode has no server-side templates.
func buildGateway(ctx context.Context, cfg *config.Config) (dispatch.Gateway, dispatch.TemplateStore, error) {
	switch cfg.WhatsApp.Mode {
	case "cloud":
		client := graphapi.NewClient(graphapi.ClientConfig{
			BaseURL:    cfg.WhatsApp.APIBase,
			APIVersion: cfg.WhatsApp.APIVersion,
		})
		return client, client, nil
	case "bridge":
		gw, err := bridge.New(ctx, cfg.WhatsApp.BridgeURL)
		if err != nil {
			return nil, nil, err
		}
		return gw, noTemplates{}, nil
	}
	return nil, nil, fmt.Errorf("unknown whatsapp mode %q", cfg.WhatsApp.Mode)
}

// noTemplates rejects template sends on gateways without template support.
type noTemplates struct{}

func (noTemplates) GetTemplateByName(ctx context.Context, account dispatch.AccountCreds, name string) (*dispatch.TemplateDefinition, error) {
	return nil, fmt.Errorf("template %q: templates are not supported on the bridge gateway", name)
}

// disabledRunner backs the pipeline when the assistant is off; the service
// never invokes it in that state.
type disabledRunner struct{}

func (disabledRunner) Run(ctx context.Context, req agent.RunRequest) (*agent.RunResult, error) {
	return nil, fmt.Errorf("assistant is disabled")
}
