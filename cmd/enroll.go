package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/facemark/facemark/internal/config"
	"github.com/facemark/facemark/internal/constants"
	"github.com/facemark/facemark/internal/database"
	"github.com/facemark/facemark/internal/database/postgres"
	"github.com/facemark/facemark/internal/faceid"
	"github.com/spf13/cobra"
)

var enrollCmd = &cobra.Command{
	Use:   "enroll <image>",
	Short: "Enroll a person from a reference photo",
	Long: `Enroll a person into the identity registry from a single reference
photo. The photo is sent to the face service for embedding extraction;
only the embedding is stored, never the image itself. Re-enrolling an
existing roll number replaces the stored embedding.`,
	Args: cobra.ExactArgs(1),
	RunE: runEnroll,
}

func init() {
	rootCmd.AddCommand(enrollCmd)

	enrollCmd.Flags().String("name", "", "Person's display name (required)")
	enrollCmd.Flags().String("roll", "", "Roll number, unique per deployment (required)")
	enrollCmd.Flags().String("class", "", "Class or group name")
	_ = enrollCmd.MarkFlagRequired("name")
	_ = enrollCmd.MarkFlagRequired("roll")
}

// enrollImageFile extracts the primary face from an image file and stores
// the identity. Returns true when an existing roll number was replaced.
func enrollImageFile(
	ctx context.Context,
	faces *faceid.Client,
	identities database.IdentityWriter,
	path, name, roll, class string,
) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return false, fmt.Errorf("reading %s: %w", path, err)
	}
	resized, err := faceid.ResizeImage(data, constants.MaxEnrollImageSize)
	if err != nil {
		return false, fmt.Errorf("decoding %s: %w", path, err)
	}

	face, err := faces.PrimaryFace(ctx, resized)
	if err != nil {
		return false, fmt.Errorf("extracting face from %s: %w", path, err)
	}

	existing, err := identities.GetByRollNumber(ctx, roll)
	if err != nil {
		return false, fmt.Errorf("checking roll number %s: %w", roll, err)
	}

	identity := &database.StoredIdentity{
		Name:           name,
		NormalizedName: faceid.NormalizePersonName(name),
		RollNumber:     roll,
		ClassName:      class,
		Embedding:      face.Embedding,
		Model:          face.Model,
		Dim:            face.Dim,
	}
	if _, err := identities.Save(ctx, identity); err != nil {
		return false, fmt.Errorf("storing identity: %w", err)
	}
	return existing != nil, nil
}

func runEnroll(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	if cfg.Database.URL == "" {
		return errors.New("DATABASE_URL environment variable is required")
	}
	if cfg.FaceService.URL == "" {
		return errors.New("FACE_SERVICE_URL environment variable is required")
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

	name := mustGetString(cmd, "name")
	roll := mustGetString(cmd, "roll")
	class := mustGetString(cmd, "class")

	replaced, err := enrollImageFile(ctx, faces, identities, args[0], name, roll, class)
	if err != nil {
		return err
	}

	if replaced {
		fmt.Printf("Updated %s (%s) with a new reference embedding\n", name, roll)
	} else {
		fmt.Printf("Enrolled %s (%s)\n", name, roll)
	}
	return nil
}
