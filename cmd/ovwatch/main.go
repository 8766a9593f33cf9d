// Command ovwatch watches configured public transport routes in the
// Netherlands and publishes departure reminders, delay and disruption
// notifications.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"ovwatch.transit.nl/internal/appconf"
	"ovwatch.transit.nl/internal/logging"
)

func main() {
	var (
		configPath string
		envFile    string
		port       int
		apiKeys    string
	)
	flag.StringVar(&configPath, "config", "config.yaml", "path to the YAML route configuration")
	flag.StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	flag.IntVar(&port, "port", 0, "HTTP port, overrides the config file and PORT")
	flag.StringVar(&apiKeys, "api-keys", "", "comma separated API keys, overrides the config file")
	flag.Parse()

	if err := appconf.LoadDotEnv(envFile); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	file, err := appconf.LoadFromFile(configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	cfg := file.ToAppConfig()
	if err := appconf.ApplyEnv(&cfg, os.Getenv); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if port > 0 {
		cfg.Port = port
	}
	if apiKeys != "" {
		cfg.APIKeys = ParseAPIKeys(apiKeys)
	}

	coreApp, err := BuildApplication(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, api := CreateServer(coreApp, cfg)
	if err := Run(ctx, srv, coreApp, api); err != nil {
		logging.LogError(coreApp.Logger, "ovwatch exited with error", err)
		os.Exit(1)
	}
}
