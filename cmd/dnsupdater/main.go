package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-logr/logr"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/Travis-Britz/dnsupdater"
	"github.com/Travis-Britz/dnsupdater/internal/config"
)

type options struct {
	EnvFile string
	IP      string
	Verbose bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:          "dnsupdater",
		Short:        "Keep a DNS A record pointed at this host's public IPv4 address",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpdater(cmd.Context(), opts)
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&opts.EnvFile, "env-file", "e", ".env", "Path to an env file holding DNSU_* settings")
	flags.StringVar(&opts.IP, "ip", "", "Use this IPv4 address instead of looking it up")
	flags.BoolVarP(&opts.Verbose, "verbose", "v", false, "Enable verbose logging")

	cmd.AddCommand(newRunCommand(&opts))
	cmd.AddCommand(newResolveCommand(&opts))
	cmd.AddCommand(newSetupCommand(&opts))

	return cmd
}

func newRunCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Correct drift once, then poll until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpdater(cmd.Context(), *opts)
		},
	}
}

func newResolveCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve",
		Short: "Print the public IPv4 address found by the configured resolvers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResolve(cmd.Context(), *opts, cmd.OutOrStdout())
		},
	}
}

func runUpdater(ctx context.Context, opts options) error {
	env, err := prepare(opts)
	if err != nil {
		return err
	}
	defer env.close()

	client, err := ddns.New(env.cfg.Domain, env.cfg.SubDomain, env.clientOptions...)
	if err != nil {
		env.logger.Error(err, "error creating ddns client")
		return err
	}
	env.logger.V(1).Info("configuration loaded", "provider", env.cfg.Provider, "interval", env.cfg.Interval(), "nameserver", env.cfg.Nameserver)

	err = client.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		env.logger.Error(err, "updater stopped")
		return err
	}
	env.logger.Info("updater stopped", "state", client.State())
	return nil
}

func runResolve(ctx context.Context, opts options, out io.Writer) error {
	env, err := prepare(opts)
	if err != nil {
		return err
	}
	defer env.close()

	client, err := ddns.New(env.cfg.Domain, env.cfg.SubDomain, env.clientOptions...)
	if err != nil {
		return err
	}
	ip, err := client.Resolve(ctx)
	if err != nil {
		env.logger.Error(err, "public address unavailable")
		return err
	}
	fmt.Fprintln(out, ip)
	return nil
}

type environment struct {
	cfg           *config.Config
	logger        logr.Logger
	clientOptions []ddns.Option
	close         func()
}

// prepare loads the env file and configuration and builds everything a command needs to create a client.
func prepare(opts options) (*environment, error) {
	loaded, err := loadEnvFile(opts.EnvFile)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("error loading configuration: %w", err)
	}
	if opts.Verbose {
		cfg.Verbose = &opts.Verbose
	}

	logger, closeLogs, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}
	if !loaded {
		logger.Info("env file not found; using the process environment only", "path", opts.EnvFile)
	}
	if err := cfg.Validate(); err != nil {
		logger.Error(err, "invalid configuration")
		closeLogs()
		return nil, err
	}

	clientOptions, err := clientOptions(cfg, opts.IP, logger)
	if err != nil {
		logger.Error(err, "invalid configuration")
		closeLogs()
		return nil, err
	}
	return &environment{cfg: cfg, logger: logger, clientOptions: clientOptions, close: closeLogs}, nil
}

// loadEnvFile adds the variables in path to the environment without overriding ones already set.
// A missing file is not an error.
func loadEnvFile(path string) (bool, error) {
	if path == "" {
		return false, nil
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err := verifyPermissions(path); err != nil {
		return false, err
	}
	if err := godotenv.Load(path); err != nil {
		return false, fmt.Errorf("error loading env file: %w", err)
	}
	return true, nil
}

func clientOptions(cfg *config.Config, ip string, logger logr.Logger) ([]ddns.Option, error) {
	resolver, err := newResolver(cfg, ip)
	if err != nil {
		return nil, err
	}
	opts := []ddns.Option{
		ddns.UsingResolver(resolver),
		ddns.UsingHTTPTimeout(cfg.HTTPTimeout),
		ddns.WithLogger(logger),
		ddns.WithStartupTTL(cfg.SubdomainTTL),
		ddns.WithLoopTTL(cfg.LoopTTL),
		ddns.WithInterval(cfg.Interval()),
		ddns.WithVerifyDelay(cfg.VerifyDelay),
		ddns.WithRetryFailedUpdates(cfg.Retry()),
	}
	switch cfg.Provider {
	case config.ProviderOVH:
		opts = append(opts, ddns.UsingOVH(cfg.Endpoint, cfg.AppKey, cfg.AppSecret, cfg.ConsumerKey))
	case config.ProviderCloudflare:
		opts = append(opts, ddns.UsingCloudflare(cfg.CloudflareToken))
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
	if cfg.Nameserver != "" {
		opts = append(opts, ddns.WithNameserverCheck(cfg.Nameserver))
	}
	return opts, nil
}

// newResolver prefers a fixed address, then public addresses on the configured interfaces, then the web services.
func newResolver(cfg *config.Config, ip string) (ddns.Resolver, error) {
	if ip != "" {
		return ddns.FromString(ip)
	}
	web, err := ddns.WebResolver(cfg.IPServices...)
	if err != nil {
		return nil, err
	}
	if len(cfg.Interface) == 0 {
		return web, nil
	}
	return ddns.FirstOf(ddns.InterfaceResolver(cfg.Interface...), web), nil
}

func verifyPermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("error checking env file permissions: %w", err)
	}

	perms := info.Mode().Perm()
	// Error messages will state that we want 0600,
	// but we'll also accept 0400 which is even more restricted.
	// The file might be provided by some secrets managing software as readonly.
	if perms != 0600 && perms != 0400 {
		return fmt.Errorf("invalid permissions for \"%s\": expected file permissions \"-rw-------\"; found \"%s\"", path, fs.FileMode(perms))
	}
	return nil
}
