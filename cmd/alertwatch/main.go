// Command alertwatch shows a user's wildlife alerts in the terminal
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/NarenCandy/wild-animal-detection/internal/config"
	"github.com/NarenCandy/wild-animal-detection/internal/tui"
)

func main() {
	var (
		configF  = flag.String("config", os.Getenv("WILDWATCH_CONFIG"), "Path to a YAML or TOML config file")
		limitF   = flag.Int("limit", 100, "Number of alerts to show")
		timeoutF = flag.Int("timeout", 15, "Request timeout in seconds")
		dbgF     = flag.Bool("debug", false, "Print API requests and responses on exit")
	)
	flag.Parse()

	if err := run(*configF, *limitF, *timeoutF, *dbgF); err != nil {
		fmt.Fprintf(os.Stderr, "alertwatch: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, limit, timeout int, debug bool) error {
	loaded, err := config.Load(configPath)
	if err != nil {
		return err
	}
	cfg := loaded.Config.API

	c, debugger, err := newClient(cfg.BaseURL, timeout, debug)
	if err != nil {
		return err
	}
	if debugger != nil {
		defer debugger.Fprint(os.Stderr)
	}
	switch {
	case cfg.Token != "":
		c.SetToken(cfg.Token)
	case cfg.Email != "" && cfg.Password != "":
		if _, err := c.Login(context.Background(), cfg.Email, cfg.Password); err != nil {
			return fmt.Errorf("login failed: %w", err)
		}
	default:
		return fmt.Errorf("set API_TOKEN, or API_EMAIL and API_PASSWORD")
	}

	model := tui.NewModel(c, tui.WithRefresh(cfg.PollInterval), tui.WithLimit(limit))
	_, err = tea.NewProgram(model, tea.WithAltScreen()).Run()
	return err
}
