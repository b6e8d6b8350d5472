package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Travis-Britz/dnsupdater"
	"github.com/Travis-Britz/dnsupdater/internal/config"
)

func newSetupCommand(opts *options) *cobra.Command {
	var provider string

	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Prompt for provider credentials, check them and write the env file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSetup(cmd.Context(), opts.EnvFile, provider, cmd.InOrStdin(), cmd.ErrOrStderr())
		},
	}
	cmd.Flags().StringVarP(&provider, "provider", "p", config.ProviderOVH, "DNS provider: ovh or cloudflare")
	return cmd
}

// prompter reads plain answers from in and secrets from the terminal without echo.
type prompter struct {
	in  *bufio.Reader
	out io.Writer
	// secret is replaced in tests
	secret func() (string, error)
}

func newPrompter(in io.Reader, out io.Writer) *prompter {
	return &prompter{
		in:  bufio.NewReader(in),
		out: out,
		secret: func() (string, error) {
			b, err := term.ReadPassword(int(os.Stdin.Fd()))
			return string(b), err
		},
	}
}

func (p *prompter) line(label string) (string, error) {
	fmt.Fprintf(p.out, "%s: ", label)
	s, err := p.in.ReadString('\n')
	if err != nil && s == "" {
		return "", fmt.Errorf("error reading %s: %w", label, err)
	}
	return strings.TrimSpace(s), nil
}

func (p *prompter) password(label string) (string, error) {
	fmt.Fprintf(p.out, "%s: ", label)
	s, err := p.secret()
	fmt.Fprintln(p.out)
	if err != nil {
		return "", fmt.Errorf("error reading %s: %w", label, err)
	}
	return strings.TrimSpace(s), nil
}

func runSetup(ctx context.Context, path, provider string, in io.Reader, out io.Writer) error {
	return setupWith(ctx, path, provider, newPrompter(in, out), verifyCredentials)
}

// setupWith collects the settings, verifies them and only then creates the env file.
func setupWith(ctx context.Context, path, provider string, p *prompter, verify func(context.Context, *config.Config) error) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("\"%s\" already exists; remove it first to run setup again", path)
	}

	cfg := config.Defaults()
	cfg.Provider = provider

	var err error
	if cfg.Domain, err = p.line("Domain (zone name)"); err != nil {
		return err
	}
	if cfg.SubDomain, err = p.line("Subdomain (empty for the zone apex)"); err != nil {
		return err
	}
	env := map[string]string{
		config.Prefix + "_PROVIDER":  cfg.Provider,
		config.Prefix + "_DOMAIN":    cfg.Domain,
		config.Prefix + "_SUBDOMAIN": cfg.SubDomain,
	}

	switch provider {
	case config.ProviderOVH:
		if cfg.Endpoint, err = p.line("OVH endpoint (ovh-eu, ovh-ca, ovh-us)"); err != nil {
			return err
		}
		if cfg.Endpoint == "" {
			cfg.Endpoint = "ovh-eu"
		}
		if cfg.AppKey, err = p.password("OVH application key"); err != nil {
			return err
		}
		if cfg.AppSecret, err = p.password("OVH application secret"); err != nil {
			return err
		}
		if cfg.ConsumerKey, err = p.password("OVH consumer key"); err != nil {
			return err
		}
		env[config.Prefix+"_ENDPOINT"] = cfg.Endpoint
		env[config.Prefix+"_APP_KEY"] = cfg.AppKey
		env[config.Prefix+"_APP_SECRET"] = cfg.AppSecret
		env[config.Prefix+"_CONSUMER_KEY"] = cfg.ConsumerKey
	case config.ProviderCloudflare:
		if cfg.CloudflareToken, err = p.password("Cloudflare API token"); err != nil {
			return err
		}
		env[config.Prefix+"_CLOUDFLARE_TOKEN"] = cfg.CloudflareToken
	default:
		return fmt.Errorf("unknown provider %q", provider)
	}

	if err := cfg.Validate(); err != nil {
		return err
	}
	fmt.Fprintln(p.out, "verifying credentials...")
	if err := verify(ctx, &cfg); err != nil {
		return err
	}
	fmt.Fprintln(p.out, "credentials verified successfully")

	content, err := godotenv.Marshal(env)
	if err != nil {
		return fmt.Errorf("error encoding env file: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("unable to create \"%s\": %w", path, err)
	}
	defer f.Close()
	if _, err := fmt.Fprintln(f, content); err != nil {
		return fmt.Errorf("error writing \"%s\": %w", path, err)
	}
	fmt.Fprintf(p.out, "settings written to \"%s\"\n", path)
	return nil
}

// verifyCredentials checks that the provider accepts the credentials and owns the domain.
func verifyCredentials(ctx context.Context, cfg *config.Config) error {
	opts := []ddns.Option{ddns.UsingCloudflare(cfg.CloudflareToken)}
	if cfg.Provider == config.ProviderOVH {
		opts = []ddns.Option{ddns.UsingOVH(cfg.Endpoint, cfg.AppKey, cfg.AppSecret, cfg.ConsumerKey)}
	}
	client, err := ddns.New(cfg.Domain, cfg.SubDomain, opts...)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	owned, err := client.ZoneExists(ctx, cfg.Domain)
	if err != nil {
		return fmt.Errorf("unable to verify credentials: %w", err)
	}
	if !owned {
		return fmt.Errorf("%w: %s", ddns.ErrZoneNotOwned, cfg.Domain)
	}
	return nil
}
