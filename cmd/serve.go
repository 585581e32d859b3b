package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/facemark/facemark/internal/camera"
	"github.com/facemark/facemark/internal/checkin"
	"github.com/facemark/facemark/internal/config"
	"github.com/facemark/facemark/internal/database"
	"github.com/facemark/facemark/internal/database/mariadb"
	"github.com/facemark/facemark/internal/database/postgres"
	"github.com/facemark/facemark/internal/faceid"
	"github.com/facemark/facemark/internal/liveness"
	"github.com/facemark/facemark/internal/web"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the check-in server",
	Long: `Start the Facemark check-in server.
The server exposes the kiosk API: flash-pattern check-in sessions with
live progress events, enrollment, the identity registry and the
attendance log.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "Port to listen on (overrides PORT)")
}

// initIdentityHNSW builds or loads the identity HNSW index for fast matching.
func initIdentityHNSW(ctx context.Context, repo *postgres.IdentityRepository, indexPath string) {
	if indexPath != "" {
		fmt.Printf("Loading identity HNSW index from %s...\n", indexPath)
	} else {
		fmt.Printf("Building in-memory HNSW index for identity matching...\n")
	}
	if err := repo.EnableHNSW(ctx, indexPath); err != nil {
		fmt.Printf("Warning: Failed to build identity HNSW index: %v\n", err)
		fmt.Printf("Identity matching will use PostgreSQL queries (slower)\n")
	} else if indexPath != "" {
		fmt.Printf("Identity HNSW index ready with %d identities (persisted to %s)\n", repo.HNSWCount(), indexPath)
	} else {
		fmt.Printf("Identity HNSW index built with %d identities (in-memory only)\n", repo.HNSWCount())
	}
}

// initMirror connects the optional MariaDB attendance mirror.
func initMirror(ctx context.Context, dsn string) (*mariadb.Pool, error) {
	if dsn == "" {
		return nil, nil
	}
	pool, err := mariadb.NewPool(dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to attendance mirror: %w", err)
	}
	if err := pool.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("preparing attendance mirror schema: %w", err)
	}
	fmt.Println("Attendance mirror enabled (MariaDB)")
	return pool, nil
}

// saveHNSWIndex saves the identity HNSW index to disk during shutdown.
func saveHNSWIndex() {
	rebuilder := database.GetIdentityHNSWRebuilder()
	if rebuilder == nil || !rebuilder.IsHNSWEnabled() {
		return
	}
	if err := rebuilder.SaveHNSWIndex(); err != nil {
		fmt.Printf("Warning: failed to save identity HNSW index: %v\n", err)
	} else {
		fmt.Println("Identity HNSW index saved to disk")
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	if cfg.Database.URL == "" {
		return errors.New("DATABASE_URL environment variable is required")
	}
	if cfg.Camera.SnapshotURL == "" {
		return errors.New("CAMERA_SNAPSHOT_URL environment variable is required")
	}
	if cfg.FaceService.URL == "" {
		return errors.New("FACE_SERVICE_URL environment variable is required")
	}
	if port := mustGetInt(cmd, "port"); port > 0 {
		cfg.Web.Port = port
	}

	fmt.Printf("Connecting to PostgreSQL database...\n")
	if err := postgres.Initialize(&cfg.Database); err != nil {
		return fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}

	ctx := context.Background()

	identities, err := database.GetIdentityWriter(ctx)
	if err != nil {
		return err
	}
	attendance, err := database.GetAttendanceWriter(ctx)
	if err != nil {
		return err
	}

	if repo, ok := identities.(*postgres.IdentityRepository); ok {
		initIdentityHNSW(ctx, repo, cfg.Database.HNSWIndexPath)
	}

	mirror, err := initMirror(ctx, cfg.Mirror.DSN)
	if err != nil {
		return err
	}
	if mirror != nil {
		defer mirror.Close()
	}

	cam, err := camera.NewSnapshotClient(cfg.Camera.SnapshotURL, cfg.Camera.Timeout)
	if err != nil {
		return fmt.Errorf("configuring camera: %w", err)
	}
	faces := faceid.NewClient(cfg.FaceService.URL, cfg.FaceService.Timeout)

	evaluator, err := liveness.NewEvaluator(cfg.Liveness.Thresholds, nil)
	if err != nil {
		return fmt.Errorf("configuring liveness evaluator: %w", err)
	}
	pattern, err := cfg.Liveness.Pattern()
	if err != nil {
		return fmt.Errorf("loading flash pattern: %w", err)
	}

	orchOpts := checkin.Options{
		Camera:         cam,
		Faces:          faces,
		Identities:     identities,
		Attendance:     attendance,
		Evaluator:      evaluator,
		TopK:           cfg.Matching.TopK,
		MaxDistance:    cfg.Matching.Threshold,
		CaptureTimeout: cfg.Liveness.CaptureTimeout,
		GracePeriod:    cfg.Liveness.GracePeriod,
	}
	if mirror != nil {
		orchOpts.Mirror = mirror
	}
	orchestrator, err := checkin.NewOrchestrator(orchOpts)
	if err != nil {
		return fmt.Errorf("configuring check-in orchestrator: %w", err)
	}

	server := web.NewServer(web.Options{
		Config:       cfg,
		Orchestrator: orchestrator,
		Identities:   identities,
		Attendance:   attendance,
		Faces:        faces,
		Pattern:      func() liveness.Pattern { return pattern },
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")
		saveHNSWIndex()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
	}()

	fmt.Printf("Starting Facemark check-in server on http://localhost:%d\n", cfg.Web.Port)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
