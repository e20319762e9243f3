package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Enriquefft/webhook-funnel/internal/config"
	"github.com/Enriquefft/webhook-funnel/internal/gateway"
	"github.com/Enriquefft/webhook-funnel/internal/message"
	"github.com/Enriquefft/webhook-funnel/internal/parser"
)

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a barebones config file if none exists",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, _ := cmd.Flags().GetString("config")
			if path == "" {
				path = config.DefaultFileName
			}
			created, err := config.WriteTemplate(path)
			if err != nil {
				return withCode(exitConfig, err)
			}
			if created {
				fmt.Fprintf(cmd.OutOrStdout(), "created %s, edit it and run `webhook-funnel serve`\n", path)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "%s already exists\n", path)
			}
			return nil
		},
	}
}

func newParseCmd() *cobra.Command {
	var source string

	cmd := &cobra.Command{
		Use:   "parse [file]",
		Short: "Translate a payload file (or stdin) and print the messages",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			raw, err := io.ReadAll(in)
			if err != nil {
				return fmt.Errorf("read payload: %w", err)
			}
			return printParsed(cmd.OutOrStdout(), parser.Default(nil), string(raw), source)
		},
	}
	cmd.Flags().StringVar(&source, "source", "", "only try the named parser")
	return cmd
}

// printParsed writes one line per message, or the raw fallback notice.
func printParsed(w io.Writer, registry *parser.Registry, raw, source string) error {
	var (
		msgs []message.Message
		ok   bool
	)
	if source != "" {
		if !registry.Has(source) {
			return fmt.Errorf("unknown parser %q (have %s)", source, strings.Join(registry.Names(), ", "))
		}
		msgs, ok = registry.DispatchNamed(raw, source)
	} else {
		msgs, ok = registry.DispatchAny(raw)
	}

	if !ok {
		fmt.Fprintln(w, "no parser matched; the payload would be forwarded verbatim")
		return nil
	}
	for _, m := range msgs {
		fmt.Fprintln(w, m.String())
	}
	return nil
}

func newSendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "send <text>",
		Short: "Send one text message to the configured chat",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("config")
			cfg, err := loadConfig(path)
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()

			gw := gateway.NewClient(cfg.Gateway.URL, cfg.Gateway.Token, logger)
			if err := gw.Connect(ctx); err != nil {
				return withCode(exitChat, err)
			}
			defer gw.Close()

			text := strings.Join(args, " ")
			if err := gw.Send(ctx, cfg.Chat.Ship, cfg.Chat.Name, message.TextMessage(text)); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "sent")
			return nil
		},
	}
}

func newStatusCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Check webhook server health",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if addr == "" {
				addr = os.Getenv("FUNNEL_STATUS_URL")
			}
			if addr == "" {
				addr = "http://localhost:9000"
			}
			client := &http.Client{Timeout: 5 * time.Second}
			resp, err := client.Get(strings.TrimSuffix(addr, "/") + "/health")
			if err != nil {
				return fmt.Errorf("webhook server unreachable: %w", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("webhook server: unhealthy (status %d)", resp.StatusCode)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "webhook server: ok")
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "webhook server base URL (default $FUNNEL_STATUS_URL or http://localhost:9000)")
	return cmd
}
