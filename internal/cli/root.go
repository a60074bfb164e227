// Package cli implements heraldctl, the operator CLI for herald.
package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"frameworks/herald/pkg/clients/herald"
)

type rootOptions struct {
	cfgFile string
	url     string
	token   string
	output  string
}

// config resolves the effective config: file, then env, then flags.
func (o *rootOptions) config() (Config, string, error) {
	path := o.cfgFile
	if path == "" {
		var err error
		if path, err = ConfigPath(); err != nil {
			return Config{}, "", err
		}
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		return Config{}, path, err
	}
	if o.url != "" {
		cfg.URL = o.url
	}
	if o.token != "" {
		cfg.Token = o.token
	}
	return cfg, path, nil
}

func (o *rootOptions) client() (*herald.Client, error) {
	cfg, _, err := o.config()
	if err != nil {
		return nil, err
	}
	return herald.NewClient(cfg.URL, cfg.Token), nil
}

func (o *rootOptions) jsonOutput() bool { return o.output == "json" }

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// NewRootCmd returns the root command for heraldctl.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}
	rootCmd := &cobra.Command{
		Use:           "heraldctl",
		Short:         "Herald operator CLI",
		Long:          "heraldctl controls the herald system mode and inspects content and audit history.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVar(&opts.cfgFile, "config", "", "config file (default is $HOME/.herald/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&opts.url, "url", "", "herald API base URL")
	rootCmd.PersistentFlags().StringVar(&opts.token, "token", "", "bearer token")
	rootCmd.PersistentFlags().StringVarP(&opts.output, "output", "o", "text", "output format: json|text")

	rootCmd.AddCommand(newModeCmd(opts))
	rootCmd.AddCommand(newContentCmd(opts))
	rootCmd.AddCommand(newAuditCmd(opts))
	rootCmd.AddCommand(newAnalyticsCmd(opts))
	rootCmd.AddCommand(newTokenCmd())
	rootCmd.AddCommand(newConfigCmd(opts))
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

func newConfigCmd(opts *rootOptions) *cobra.Command {
	cfgCmd := &cobra.Command{Use: "config", Short: "Show or change the CLI config"}
	cfgCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, err := opts.config()
			if err != nil {
				return err
			}
			token := "(none)"
			if cfg.Token != "" {
				token = "(set)"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "config: %s\nurl:    %s\ntoken:  %s\n", path, cfg.URL, token)
			return nil
		},
	})
	cfgCmd.AddCommand(&cobra.Command{
		Use:   "set <url|token> <value>",
		Short: "Persist a config value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := opts.cfgFile
			if path == "" {
				var err error
				if path, err = ConfigPath(); err != nil {
					return err
				}
			}
			cfg, err := LoadConfig(path)
			if err != nil {
				return err
			}
			switch args[0] {
			case "url":
				cfg.URL = args[1]
			case "token":
				cfg.Token = args[1]
			default:
				return fmt.Errorf("unknown config key: %s", args[0])
			}
			if err := SaveConfig(cfg, path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved %s to %s\n", args[0], path)
			return nil
		},
	})
	return cfgCmd
}
