package qtforge

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

const recipeKeyPrefix = "recipes/"

// recipeKey is the bucket key of a packed recipe archive.
func recipeKey(archivePath string) string {
	return path.Join(recipeKeyPrefix, filepath.Base(archivePath))
}

// handleUploadCommand implements 'qtforge upload'.
func handleUploadCommand(ctx context.Context, args []string, s *Settings) error {
	uploadCmd := flag.NewFlagSet("upload", flag.ContinueOnError)
	list := uploadCmd.Bool("list", false, "List recipe archives in the bucket instead of uploading.")
	uploadCmd.BoolVar(&s.Debug, "debug", s.Debug, "print debug output")
	if err := uploadCmd.Parse(args); err != nil {
		return err
	}

	r2, err := NewR2Client(ctx, s)
	if err != nil {
		return err
	}

	if *list {
		objects, err := r2.ListObjects(ctx, recipeKeyPrefix)
		if err != nil {
			return fmt.Errorf("failed to list recipes: %w", err)
		}
		if len(objects) == 0 {
			colWarn.Println("No recipe archives in bucket.")
			return nil
		}
		for _, obj := range objects {
			fmt.Printf("%-60s %10s\n", strings.TrimPrefix(obj.Key, recipeKeyPrefix), humanReadableSize(obj.Size))
		}
		return nil
	}

	archives := uploadCmd.Args()
	if len(archives) == 0 {
		return errNoArchives
	}

	for _, archive := range archives {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		sum, err := b3sum(archive, make([]byte, 64*1024))
		if err != nil {
			return fmt.Errorf("failed to hash %s: %w", archive, err)
		}
		key := recipeKey(archive)
		stepf("Uploading %s to %s", archive, key)
		if err := r2.UploadLocalFile(ctx, key, archive, map[string]string{"b3sum": sum}, os.Stderr); err != nil {
			return fmt.Errorf("failed to upload %s: %w", archive, err)
		}
		s.debugf("b3sum %s\n", sum)
	}

	colArrow.Print("-> ")
	colSuccess.Printf("Uploaded %d recipe archive(s).\n", len(archives))
	return nil
}
