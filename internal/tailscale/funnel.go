package tailscale

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"strings"

	"github.com/Enriquefft/webhook-funnel/internal/jsoncodec"
	"github.com/Enriquefft/webhook-funnel/internal/logging"
)

// tsStatus is a minimal subset of `tailscale status --json` output.
type tsStatus struct {
	Self struct {
		DNSName string `json:"DNSName"`
	} `json:"Self"`
}

// EnsureInstalled checks that the tailscale CLI is available.
func EnsureInstalled() error {
	if _, err := exec.LookPath("tailscale"); err != nil {
		return fmt.Errorf("tailscale CLI not found in PATH (install from https://tailscale.com/download)")
	}
	return nil
}

// PublicURL returns the deterministic HTTPS URL for a funnelled port,
// e.g. "https://machine.tailnet.ts.net".
func PublicURL(ctx context.Context) (string, error) {
	out, err := exec.CommandContext(ctx, "tailscale", "status", "--json").Output()
	if err != nil {
		return "", fmt.Errorf("tailscale status: %w (is tailscale running?)", err)
	}
	return publicURLFromStatus(out)
}

func publicURLFromStatus(out []byte) (string, error) {
	var status tsStatus
	if err := jsoncodec.Unmarshal(out, &status); err != nil {
		return "", fmt.Errorf("parse tailscale status: %w", err)
	}

	dns := strings.TrimSuffix(status.Self.DNSName, ".")
	if dns == "" {
		return "", fmt.Errorf("tailscale: empty DNS name, is the node connected?")
	}

	return "https://" + dns, nil
}

// Port extracts the port from a listen address such as ":9000" or
// "0.0.0.0:9000".
func Port(addr string) (string, error) {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "", fmt.Errorf("listen address %q: %w", addr, err)
	}
	if port == "" {
		return "", fmt.Errorf("listen address %q has no port", addr)
	}
	return port, nil
}

// StartFunnel runs `tailscale funnel <port>` in the background and returns
// the public webhook URL (https://<machine>.<tailnet>.ts.net/webhook).
// The process is killed when ctx is cancelled.
func StartFunnel(ctx context.Context, port string, logger *slog.Logger) (string, error) {
	logger = logging.Default(logger).With("component", "tailscale")

	if err := EnsureInstalled(); err != nil {
		return "", err
	}

	baseURL, err := PublicURL(ctx)
	if err != nil {
		return "", err
	}

	cmd := exec.CommandContext(ctx, "tailscale", "funnel", port)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("start tailscale funnel: %w", err)
	}
	go func() {
		if err := cmd.Wait(); err != nil && ctx.Err() == nil {
			logger.Error("tailscale funnel exited", "error", err)
		}
	}()

	webhookURL := baseURL + "/webhook"
	logger.Info("tailscale funnel started", "port", port, "url", webhookURL)
	return webhookURL, nil
}
