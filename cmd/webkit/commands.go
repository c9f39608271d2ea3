package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/giantswarm/webkit"
	"github.com/giantswarm/webkit/config"
	"github.com/giantswarm/webkit/security"
	"github.com/giantswarm/webkit/server"
)

type rootOptions struct {
	configFile string
	envFile    string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "webkit",
		Short:         "Session-backed OAuth 2.0 authorization server",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       Version,
	}
	root.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "", "YAML file with toolkit properties (overrides WEBKIT_CONFIG_FILE)")
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", "", "dotenv file with toolkit properties")

	root.AddCommand(
		newServeCmd(opts),
		newCreateClientCmd(opts),
		newCreateUserCmd(opts),
		newGenKeyCmd(),
	)
	return root
}

// setup loads the process settings, builds the logger and reads the toolkit
// configuration from the environment, the dotenv file and the YAML file, in
// that order of precedence.
func setup(opts *rootOptions) (*config.Process, *slog.Logger, webkit.Config, error) {
	proc, err := config.LoadProcess()
	if err != nil {
		return nil, nil, webkit.Config{}, err
	}
	if opts.configFile != "" {
		proc.ConfigFile = opts.configFile
	}

	logger, err := newLogger(proc.LogLevel, proc.LogFormat)
	if err != nil {
		return nil, nil, webkit.Config{}, err
	}
	slog.SetDefault(logger)

	providers := config.Chain{config.NewEnv(proc.EnvPrefix)}
	if opts.envFile != "" {
		dotenv, err := config.LoadDotenv(proc.EnvPrefix, opts.envFile)
		if err != nil {
			return nil, nil, webkit.Config{}, fmt.Errorf("loading env file: %w", err)
		}
		providers = append(providers, dotenv)
	}
	if proc.ConfigFile != "" {
		file, err := config.LoadYAML(proc.ConfigFile)
		if err != nil {
			return nil, nil, webkit.Config{}, err
		}
		providers = append(providers, file)
	}

	cfg, err := webkit.ConfigFromProvider(providers)
	if err != nil {
		return nil, nil, webkit.Config{}, err
	}
	cfg.Logger = logger
	return proc, logger, cfg, nil
}

func newLogger(level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	hopts := &slog.HandlerOptions{Level: lvl}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, hopts)), nil
	}
	return slog.New(slog.NewTextHandler(os.Stderr, hopts)), nil
}

func newCreateClientCmd(opts *rootOptions) *cobra.Command {
	var (
		reg          server.ClientRegistration
		redirectURIs []string
		roles        []string
	)
	cmd := &cobra.Command{
		Use:   "create-client",
		Short: "Register an OAuth 2.0 client and print its id and secret",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, _, cfg, err := setup(opts)
			if err != nil {
				return err
			}
			tk, err := webkit.New(cmd.Context(), cfg, webkit.Options{})
			if err != nil {
				return err
			}
			defer tk.Close()

			reg.RedirectURIs = redirectURIs
			reg.Roles = roles
			client, secret, err := tk.Server().Clients().Create(cmd.Context(), reg)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "client_id=%s\nclient_secret=%s\n", client.ID, secret)
			return nil
		},
	}
	cmd.Flags().StringVar(&reg.Type, "type", server.ClientTypeConfidential, "client type: public or confidential")
	cmd.Flags().StringVar(&reg.ApplicationName, "name", "", "application name shown to users")
	cmd.Flags().StringSliceVar(&redirectURIs, "redirect-uri", nil, "allowed redirect URI; the first one is the default (repeatable)")
	cmd.Flags().StringSliceVar(&roles, "role", nil, "role the client may request (repeatable)")
	return cmd
}

func newCreateUserCmd(opts *rootOptions) *cobra.Command {
	var (
		username   string
		password   string
		roles      []string
		properties []string
	)
	cmd := &cobra.Command{
		Use:   "create-user",
		Short: "Create a resource owner",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if password == "" {
				password = os.Getenv("WEBKIT_USER_PASSWORD")
			}
			if username == "" || password == "" {
				return fmt.Errorf("--username and --password (or WEBKIT_USER_PASSWORD) are required")
			}
			userRoles, err := parseRoles(roles, properties)
			if err != nil {
				return err
			}

			_, _, cfg, err := setup(opts)
			if err != nil {
				return err
			}
			tk, err := webkit.New(cmd.Context(), cfg, webkit.Options{})
			if err != nil {
				return err
			}
			defer tk.Close()

			if _, err := tk.Server().Users().Create(cmd.Context(), username, password, userRoles); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created user %s\n", username)
			return nil
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "user name")
	cmd.Flags().StringVar(&password, "password", "", "password (prefer WEBKIT_USER_PASSWORD)")
	cmd.Flags().StringSliceVar(&roles, "role", nil, "role held by the user (repeatable)")
	cmd.Flags().StringArrayVar(&properties, "property", nil, "role property as ROLE.key=value (repeatable)")
	return cmd
}

// parseRoles builds the role map of a user from role names and ROLE.key=value
// properties. A property names its role implicitly.
func parseRoles(roles, properties []string) (map[string]map[string]string, error) {
	out := make(map[string]map[string]string, len(roles))
	for _, role := range roles {
		if _, ok := out[role]; !ok {
			out[role] = map[string]string{}
		}
	}
	for _, prop := range properties {
		path, value, ok := strings.Cut(prop, "=")
		if !ok {
			return nil, fmt.Errorf("invalid property %q, want ROLE.key=value", prop)
		}
		role, key, ok := strings.Cut(path, ".")
		if !ok || role == "" || key == "" {
			return nil, fmt.Errorf("invalid property %q, want ROLE.key=value", prop)
		}
		if _, ok := out[role]; !ok {
			out[role] = map[string]string{}
		}
		out[role][key] = value
	}
	return out, nil
}

func newGenKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gen-key",
		Short: "Print a random base64 key for session_encryption_key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			key, err := security.GenerateKey()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), security.KeyToBase64(key))
			return nil
		},
	}
}
