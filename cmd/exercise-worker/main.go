// Command exercise-worker runs one ExercisePipeline per configured
// camera, turning perception events into rep-counted/form-alert
// stream events and durable rows. Grounded on
// original_source/services/exercise/src/exercise/main.py, with the
// flag-parsing/signal-handling shape taken from the teacher's
// cmd/miface/main.go (MiFaceDEV/miface) and the multi-worker
// signal.NotifyContext lifecycle from banshee-data-velocity.report's
// cmd/radar/radar.go.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gymcore/exercise/internal/config"
	"github.com/gymcore/exercise/pkg/pipeline"
	"github.com/gymcore/exercise/pkg/registry"
	"github.com/gymcore/exercise/pkg/store"
	"github.com/gymcore/exercise/pkg/streambus"
)

var version = "0.1.0"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	var verbose bool

	cmd := &cobra.Command{
		Use:     "exercise-worker",
		Short:   "Classify exercises, count reps, and detect form issues from pose streams",
		Version: version,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(v, verbose)
		},
	}

	flags := cmd.Flags()
	flags.String("camera-ids", "", "Comma-separated camera IDs to launch pipelines for (overrides GYM_CAMERA_IDS)")
	flags.String("redis-url", "", "Redis stream bus URL (overrides GYM_REDIS_URL)")
	flags.String("database-url", "", "Postgres durable store URL (overrides GYM_DATABASE_URL)")
	flags.String("exercises-yaml", "", "Path to the exercise-definition YAML file (overrides GYM_EXERCISES_YAML)")
	flags.String("consumer-group", "", "Stream consumer group name (overrides GYM_CONSUMER_GROUP)")
	flags.String("consumer-name", "", "Stream consumer name; must be unique per process (overrides GYM_CONSUMER_NAME)")
	flags.BoolVar(&verbose, "verbose", false, "Enable debug-level logging")

	for _, name := range []string{"camera-ids", "redis-url", "database-url", "exercises-yaml", "consumer-group", "consumer-name"} {
		key := flagToConfigKey(name)
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			panic(fmt.Sprintf("binding flag %s: %v", name, err))
		}
	}

	return cmd
}

func flagToConfigKey(flag string) string {
	out := make([]rune, 0, len(flag))
	for _, r := range flag {
		if r == '-' {
			out = append(out, '_')
			continue
		}
		out = append(out, r)
	}
	return string(out)
}

func run(v *viper.Viper, verbose bool) error {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load(v)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	reg, err := registry.Load(cfg.ExercisesYAML)
	if err != nil {
		return fmt.Errorf("loading exercise registry: %w", err)
	}
	log.Info().Strs("exercises", reg.List()).Msg("exercise_worker_registry_loaded")

	bus, err := streambus.New(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connecting to stream bus: %w", err)
	}
	defer bus.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to durable store: %w", err)
	}
	defer db.Close()

	pipelineCfg := pipeline.Config{
		ConsumerGroup:  cfg.ConsumerGroup,
		ConsumerName:   cfg.ConsumerName,
		ReadBatch:      cfg.ReadBatch,
		BlockMs:        cfg.BlockMs,
		SetIdleTimeout: cfg.SetIdleTimeout,
	}

	log.Info().
		Strs("camera_ids", cfg.CameraIDs).
		Str("consumer_group", cfg.ConsumerGroup).
		Str("consumer_name", cfg.ConsumerName).
		Msg("exercise_worker_starting")

	var wg sync.WaitGroup
	for _, cameraID := range cfg.CameraIDs {
		p := pipeline.New(cameraID, pipelineCfg, reg, bus, db)
		wg.Add(1)
		go func(cameraID string) {
			defer wg.Done()
			if err := p.Run(ctx); err != nil {
				log.Error().Err(err).Str("camera_id", cameraID).Msg("exercise_pipeline_exited")
			}
		}(cameraID)
	}

	wg.Wait()
	log.Info().Msg("exercise_worker_shutdown_complete")
	return nil
}
