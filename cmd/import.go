package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/facemark/facemark/internal/config"
	"github.com/facemark/facemark/internal/database"
	"github.com/facemark/facemark/internal/database/postgres"
	"github.com/facemark/facemark/internal/faceid"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var importCmd = &cobra.Command{
	Use:   "import <directory>",
	Short: "Bulk-enroll people from a directory of reference photos",
	Long: `Bulk-enroll people from a directory of reference photos. Each file
must be named <roll>_<name>.jpg, for example "R-042_Jana Novakova.jpg".
Underscores after the first one are kept as part of the name. Files that
fail (no face detected, unreadable image) are reported and skipped.`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().String("class", "", "Class or group name applied to every imported person")
}

var importImageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
}

// parseImportFilename splits "R-042_Jana Novakova.jpg" into roll and name.
func parseImportFilename(filename string) (roll, name string, err error) {
	base := strings.TrimSuffix(filename, filepath.Ext(filename))
	roll, name, found := strings.Cut(base, "_")
	if !found || roll == "" || name == "" {
		return "", "", fmt.Errorf("filename %q does not match <roll>_<name>.<ext>", filename)
	}
	return roll, name, nil
}

func runImport(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	if cfg.Database.URL == "" {
		return errors.New("DATABASE_URL environment variable is required")
	}
	if cfg.FaceService.URL == "" {
		return errors.New("FACE_SERVICE_URL environment variable is required")
	}

	entries, err := os.ReadDir(args[0])
	if err != nil {
		return fmt.Errorf("reading directory %s: %w", args[0], err)
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if importImageExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			files = append(files, entry.Name())
		}
	}
	if len(files) == 0 {
		return fmt.Errorf("no image files found in %s", args[0])
	}

	if err := postgres.Initialize(&cfg.Database); err != nil {
		return fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}

	ctx := context.Background()
	identities, err := database.GetIdentityWriter(ctx)
	if err != nil {
		return err
	}
	faces := faceid.NewClient(cfg.FaceService.URL, cfg.FaceService.Timeout)
	class := mustGetString(cmd, "class")

	bar := progressbar.NewOptions(len(files),
		progressbar.OptionSetDescription("Enrolling"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("photos"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)

	var enrolled, replaced int
	var failures []string
	for _, filename := range files {
		roll, name, err := parseImportFilename(filename)
		if err != nil {
			failures = append(failures, err.Error())
			_ = bar.Add(1)
			continue
		}

		wasReplaced, err := enrollImageFile(ctx, faces, identities, filepath.Join(args[0], filename), name, roll, class)
		if err != nil {
			failures = append(failures, err.Error())
			_ = bar.Add(1)
			continue
		}
		if wasReplaced {
			replaced++
		} else {
			enrolled++
		}
		_ = bar.Add(1)
	}
	fmt.Println()

	fmt.Printf("Enrolled %d new, updated %d existing\n", enrolled, replaced)
	if len(failures) > 0 {
		fmt.Printf("Skipped %d files:\n", len(failures))
		for _, f := range failures {
			fmt.Printf("  - %s\n", f)
		}
	}
	return nil
}
