package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/computer-anything/blog-backend/internal/app"
	"github.com/computer-anything/blog-backend/internal/config"
)

// main runs the CLI entrypoint and exits on unrecoverable command errors.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if errRun := run(ctx, os.Args[1:]); errRun != nil {
		log.WithError(errRun).Error("command failed")
		stop()
		os.Exit(1)
	}
}

// run parses flags, loads config, and either migrates or starts the server.
func run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("blog", flag.ContinueOnError)
	cfgPath := fs.String("config", "", "config file path (or env CONFIG_PATH)")
	portRaw := fs.String("port", "", "server port, overrides the config file")
	migrateOnly := fs.Bool("migrate", false, "run database migrations and exit")
	if errParse := fs.Parse(args); errParse != nil {
		return errParse
	}

	var port int
	if strings.TrimSpace(*portRaw) != "" {
		parsed, errPort := config.ParsePort(*portRaw)
		if errPort != nil {
			return errPort
		}
		port = parsed
	}

	appCfg, err := config.LoadFromEnv()
	if err != nil {
		return err
	}
	if strings.TrimSpace(*cfgPath) != "" {
		appCfg.ConfigPath = config.ResolveConfigPath(*cfgPath)
	}
	if !app.ConfigExists(appCfg.ConfigPath) {
		log.Infof("config %s not found, using defaults and environment", appCfg.ConfigPath)
	}

	if *migrateOnly {
		if errMigrate := app.Migrate(ctx, appCfg); errMigrate != nil {
			return errMigrate
		}
		log.Info("migrations applied")
		return nil
	}
	return app.RunServer(ctx, appCfg, port)
}
