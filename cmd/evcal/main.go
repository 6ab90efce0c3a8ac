package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"evcal/internal/backup"
	"evcal/internal/config"
	appLog "evcal/internal/log"
	"evcal/internal/persist"
	"evcal/internal/store"
	"evcal/internal/web"
)

const version = "0.1.0"

func main() {
	if err := newApp().Run(os.Args); err != nil {
		appLog.Error("evcal failed", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "evcal",
		Usage:   "Personal calendar with recurring events.",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Value:   "./evcal.yaml",
				Usage:   "Path to config file",
				EnvVars: []string{"EVCAL_CONFIG"},
			},
		},
		Commands: []*cli.Command{
			serveCommand(),
			dayCommand(),
			monthCommand(),
			searchCommand(),
			addCommand(),
			moveCommand(),
			deleteCommand(),
			conflictCommand(),
			exportCommand(),
			importCommand(),
			backupCommand(),
		},
	}
}

// calendar is what every command needs: effective config and an opened store.
type calendar struct {
	cfg    *config.Config
	store  *store.Store
	closer io.Closer
}

func (r *calendar) Close() {
	if err := r.closer.Close(); err != nil {
		appLog.Error("close storage failed", err)
	}
}

// open loads config, applies the log level and seeds the store from the
// configured blob store.
func open(c *cli.Context) (*calendar, error) {
	path := c.String("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	appLog.SetLevel(appLog.ParseLevel(cfg.LogLevel))

	blobs, closer, err := persist.OpenStore(cfg.Storage.Driver, cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	if cfg.Storage.Driver == persist.DriverMemory {
		appLog.Warn("memory storage selected; events are not kept across runs")
	}

	st := store.Open(c.Context, persist.NewAdapter(blobs, cfg.Storage.Key))
	return &calendar{cfg: cfg, store: st, closer: closer}, nil
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the HTTP API and run scheduled backups.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "listen", Usage: "HTTP listen address (overrides config if set)"},
		},
		Action: func(c *cli.Context) error {
			cal, err := open(c)
			if err != nil {
				return err
			}
			defer cal.Close()

			if v := c.String("listen"); v != "" {
				cal.cfg.Listen = v
			}

			appLog.Info("effective config",
				"listen", cal.cfg.Listen,
				"storage_driver", cal.cfg.Storage.Driver,
				"storage_path", cal.cfg.Storage.Path,
				"week_start", cal.cfg.WeekStart,
				"backup_cron", cal.cfg.Backup.Cron,
				"events", cal.store.Len(),
			)

			// Root context with cancellation on SIGINT/SIGTERM.
			ctx, cancel := context.WithCancel(c.Context)
			defer cancel()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(sigCh)

			go func() {
				select {
				case sig := <-sigCh:
					appLog.Info("signal received, shutting down", "signal", sig.String())
					cancel()
				case <-ctx.Done():
				}
			}()

			if cal.cfg.Backup.Cron != "" {
				snap := backup.NewSnapshotter(cal.store, cal.cfg.Backup.Dir, cal.cfg.Backup.Keep)
				sched, err := backup.Start(cal.cfg.Backup.Cron, snap)
				if err != nil {
					return err
				}
				defer func() {
					stopCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
					defer stop()
					sched.Stop(stopCtx)
				}()
			}

			srv := web.NewServer(cal.cfg, cal.store)
			if err := srv.ListenAndServe(ctx); err != nil {
				return fmt.Errorf("http server: %w", err)
			}
			appLog.Info("evcal exiting")
			return nil
		},
	}
}

func backupCommand() *cli.Command {
	return &cli.Command{
		Name:  "backup",
		Usage: "Write one snapshot of the events to the backup directory.",
		Action: func(c *cli.Context) error {
			cal, err := open(c)
			if err != nil {
				return err
			}
			defer cal.Close()

			path, err := backup.NewSnapshotter(cal.store, cal.cfg.Backup.Dir, cal.cfg.Backup.Keep).Snapshot()
			if err != nil {
				return err
			}
			fmt.Fprintln(c.App.Writer, path)
			return nil
		},
	}
}
