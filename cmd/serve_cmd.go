package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kebairia/dbsnap/internal/api"
	"github.com/kebairia/dbsnap/internal/operations"
	"github.com/kebairia/dbsnap/internal/scheduler"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Back up now, then on schedule, and serve the statistics API",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return serve(ctx)
	},
}

func serve(ctx context.Context) error {
	db, err := openDatabase(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Warn("closing database", "error", err)
		}
		log.Info("database pool closed")
	}()

	o := operations.NewOrchestrator(db,
		operations.WithConfig(cfg.Backup),
		operations.WithFs(afero.NewOsFs()),
		operations.WithLogger(log),
	)
	sched := scheduler.New(o,
		scheduler.WithDaily(cfg.Schedule.Daily),
		scheduler.WithWeekly(cfg.Schedule.Weekly),
		scheduler.WithLocation(location()),
		scheduler.WithLogger(log),
	)

	sched.RunInitial(ctx)
	if err := sched.Start(); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	if cfg.API.Enabled {
		srv := api.NewServer(db,
			api.WithArchives(o.Fs(), o.OutputDir()),
			api.WithCORSOrigins(cfg.API.CORSOrigins),
			api.WithServices(cfg.API.Services),
			api.WithLogger(log),
		)
		g.Go(func() error { return srv.ListenAndServe(gctx, cfg.API.Address) })
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		<-sched.Stop().Done()
		log.Info("backup scheduler stopped")
		return nil
	})
	return g.Wait()
}
