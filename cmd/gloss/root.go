package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hyperengineering/gloss"
	"github.com/hyperengineering/gloss/internal/cloudsync"
)

var (
	cfgDBPath   string
	cfgCloudURL string
	cfgAPIKey   string
	cfgCloudDSN string
	cfgAccount  string
	cfgDebug    bool
	outputJSON  bool
)

var rootCmd = &cobra.Command{
	Use:   "gloss",
	Short: "Gloss - scripture annotation sync CLI",
	Long: `Gloss keeps your bookmarks, highlights, notes and reading plan progress
in a local store and syncs them with a shared cloud store per account.

Every change is saved locally first. When a cloud store is configured and
the store is bound to an account (see 'gloss sync'), changes are also
written to the cloud in the background.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgDBPath, "db-path", "", "Path to local database (default: ~/.gloss/gloss.db)")
	pf.StringVar(&cfgCloudURL, "cloud-url", "", "Base URL of the cloud row API")
	pf.StringVar(&cfgAPIKey, "api-key", "", "Project API key for the cloud row API")
	pf.StringVar(&cfgCloudDSN, "cloud-dsn", "", "Postgres DSN of the cloud store (instead of --cloud-url)")
	pf.StringVar(&cfgAccount, "account", "", "Account id the local store is bound to")
	pf.BoolVar(&cfgDebug, "debug", false, "Enable debug logging")
	pf.BoolVar(&outputJSON, "json", false, "Output as JSON")
}

// loadConfig reads GLOSS_* environment variables (and .env), then applies
// flags on top.
func loadConfig() (gloss.Config, error) {
	cfg, err := gloss.ConfigFromEnv()
	if err != nil {
		return gloss.Config{}, err
	}

	if cfgDBPath != "" {
		cfg.LocalPath = cfgDBPath
	}
	if cfgCloudURL != "" {
		cfg.CloudURL = cfgCloudURL
	}
	if cfgAPIKey != "" {
		cfg.CloudAPIKey = cfgAPIKey
	}
	if cfgCloudDSN != "" {
		cfg.CloudDSN = cfgCloudDSN
	}
	if cfgAccount != "" {
		cfg.AccountID = cfgAccount
	}
	if cfgDebug {
		cfg.Debug = true
	}

	return cfg.WithDefaults(), nil
}

// loadAndValidateConfig loads config and reports invalid fields with the
// environment variable that sets them.
func loadAndValidateConfig() (gloss.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return gloss.Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return gloss.Config{}, fmt.Errorf("%w (set %s or the matching flag)", err, envHint(err))
	}
	return cfg, nil
}

func envHint(err error) string {
	switch {
	case isField(err, "LocalPath"):
		return "GLOSS_DB_PATH"
	case isField(err, "CloudURL"):
		return "GLOSS_CLOUD_URL"
	case isField(err, "CloudAPIKey"):
		return "GLOSS_CLOUD_API_KEY"
	case isField(err, "CloudDSN"):
		return "GLOSS_CLOUD_DSN"
	default:
		return "GLOSS_* variables"
	}
}

// app is an open client plus whatever its cloud transport holds open.
type app struct {
	cfg     gloss.Config
	client  *gloss.Client
	adapter *cloudsync.Adapter
	logger  *gloss.Logger
	closers []func()
}

// openApp builds the client. The cloud adapter is attached only when a cloud
// store is configured and its transport can be built; otherwise the client
// runs local-only so annotation commands keep working.
func openApp(ctx context.Context) (*app, error) {
	cfg, err := loadAndValidateConfig()
	if err != nil {
		return nil, err
	}

	logger, err := gloss.NewLogger(cfg.Debug, cfg.DebugLogPath)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: logger}

	opts := []gloss.Option{gloss.WithLogger(logger)}
	if !cfg.IsOffline() {
		tr, closeTransport, err := newTransport(ctx, cfg, logger)
		if err != nil {
			cliLog := logger.Component("cli")
			cliLog.Warn().Err(err).Msg("cloud store unavailable, continuing offline")
		} else {
			a.closers = append(a.closers, closeTransport)
			a.adapter = cloudsync.New(tr, cloudsync.WithLogger(logger.Component("cloudsync")))
			opts = append(opts, gloss.WithCloud(a.adapter))
		}
	}

	client, err := gloss.New(cfg, opts...)
	if err != nil {
		a.runClosers()
		_ = logger.Close()
		return nil, fmt.Errorf("initialize client: %w", err)
	}
	a.client = client
	return a, nil
}

// Close waits for background cloud writes, then releases the transport.
func (a *app) Close() {
	_ = a.client.Close()
	a.runClosers()
	_ = a.logger.Close()
}

func (a *app) runClosers() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}
