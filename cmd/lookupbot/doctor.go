package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"lookupbot/internal/config"
	"lookupbot/internal/storage"
)

type doctorCheck struct {
	Name    string `json:"name"`
	Status  string `json:"status"`
	Message string `json:"message"`
	Fix     string `json:"fix,omitempty"`
}

func newDoctorCommand(cfgPath, baseURL *string, asJSON *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Diagnose config, storage and server reachability",
		RunE: func(cmd *cobra.Command, args []string) error {
			checks := runDoctor(*cfgPath, *baseURL)
			if *asJSON {
				return printJSON(cmd.OutOrStdout(), map[string]any{"checks": checks})
			}
			for _, c := range checks {
				fmt.Fprintf(cmd.OutOrStdout(), "[%s] %s: %s\n", strings.ToUpper(c.Status), c.Name, c.Message)
				if c.Fix != "" {
					fmt.Fprintf(cmd.OutOrStdout(), "  fix: %s\n", c.Fix)
				}
			}
			return nil
		},
	}
}

func runDoctor(cfgPath, baseURL string) []doctorCheck {
	out := []doctorCheck{}

	if _, err := os.Stat(cfgPath); err != nil {
		out = append(out, doctorCheck{Name: "config", Status: "warn", Message: "config missing, using defaults", Fix: "run `lookupbot init`"})
	} else {
		out = append(out, doctorCheck{Name: "config", Status: "ok", Message: "config present"})
	}

	cfg, err := loadConfigMaybe(cfgPath)
	if err != nil {
		out = append(out, doctorCheck{Name: "config_parse", Status: "fail", Message: err.Error()})
		return out
	}
	out = append(out, doctorCheck{Name: "config_parse", Status: "ok", Message: "config parsed"})

	if cfg.Telegram.Enabled && strings.TrimSpace(cfg.Telegram.Token) == "" {
		out = append(out, doctorCheck{Name: "telegram_token", Status: "fail", Message: "no bot token configured", Fix: "export BOT_TOKEN=<token from @BotFather>"})
	} else {
		out = append(out, doctorCheck{Name: "telegram_token", Status: "ok", Message: "token configured"})
	}

	out = append(out, checkStorage(cfg))

	if isServerHealthy(baseURL) {
		out = append(out, doctorCheck{Name: "server_health", Status: "ok", Message: "server healthy"})
	} else {
		out = append(out, doctorCheck{Name: "server_health", Status: "warn", Message: "server not reachable at " + baseURL, Fix: "run `lookupbot serve`"})
	}
	return out
}

func checkStorage(cfg config.Config) doctorCheck {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	backend, err := storage.Open(ctx, cfg)
	if err != nil {
		return doctorCheck{Name: "storage", Status: "fail", Message: err.Error()}
	}
	defer backend.Close()
	entries, err := backend.Load(ctx)
	if err != nil {
		return doctorCheck{Name: "storage", Status: "fail", Message: err.Error()}
	}
	return doctorCheck{Name: "storage", Status: "ok", Message: fmt.Sprintf("%s readable, %d entries", storage.Describe(cfg), len(entries))}
}

func isServerHealthy(baseURL string) bool {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return false
	}
	client := &http.Client{Timeout: 900 * time.Millisecond}
	resp, err := client.Get(baseURL + "/healthz")
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}
