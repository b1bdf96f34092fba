package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wordpadbot/wordpadbot/internal/core"
	"github.com/wordpadbot/wordpadbot/internal/core/engine"
	"github.com/wordpadbot/wordpadbot/internal/imaging"
	"github.com/wordpadbot/wordpadbot/internal/observability"
)

var imageWordpadCmd = &cobra.Command{
	Use:   "wordpad [files...]",
	Short: "Open and save local images in WordPad",
	Long: `Apply the bot's image transform to local files, the same way a reply
image is produced. Inputs are the given files, or every png/jpeg/gif/webp in
--in-dir. Results are written as name.<suffix>.jpg.`,
	RunE: runImageWordpad,
}

func init() {
	imageCmd.AddCommand(imageWordpadCmd)

	imageWordpadCmd.Flags().String("in-dir", "", "Input directory containing images")
	imageWordpadCmd.Flags().String("out-dir", "", "Output directory (defaults to the input file's directory)")
	imageWordpadCmd.Flags().Int("max-size", engine.DefaultMaxImageSize, "Max output dimension (64-4096)")
	imageWordpadCmd.Flags().Bool("rotate", false, "Rotate before the transform so the smear runs vertically")
	imageWordpadCmd.Flags().Int("jpeg-quality", imaging.DefaultJPEGQuality, "JPEG quality (1-100)")
	imageWordpadCmd.Flags().String("suffix", "wordpad", "Filename suffix (e.g. 'wordpad' -> name.wordpad.jpg)")
}

var wordpadInputExts = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".webp": true,
}

func runImageWordpad(cmd *cobra.Command, args []string) error {
	inDir, _ := cmd.Flags().GetString("in-dir")
	outDir, _ := cmd.Flags().GetString("out-dir")
	maxSize, _ := cmd.Flags().GetInt("max-size")
	rotate, _ := cmd.Flags().GetBool("rotate")
	jpegQuality, _ := cmd.Flags().GetInt("jpeg-quality")
	suffix, _ := cmd.Flags().GetString("suffix")

	inDir = strings.TrimSpace(inDir)
	outDir = strings.TrimSpace(outDir)
	suffix = strings.TrimSpace(suffix)
	if suffix == "" {
		suffix = "wordpad"
	}
	if maxSize < 64 || maxSize > 4096 {
		return errors.New("--max-size must be between 64 and 4096")
	}
	if inDir == "" && len(args) == 0 {
		return errors.New("pass image files or --in-dir")
	}

	inputs, err := wordpadInputs(inDir, args, suffix)
	if err != nil {
		return err
	}

	if outDir != "" {
		if outDir, err = ensureOutDir(outDir); err != nil {
			return err
		}
		if err := verifyDirWritable(outDir); err != nil {
			return err
		}
	}

	transformer := imaging.Transformer{JPEGQuality: jpegQuality}
	params := core.TransformParams{MaxWidth: maxSize, MaxHeight: maxSize, Rotate: rotate}
	for _, inPath := range inputs {
		dir := outDir
		if dir == "" {
			dir = filepath.Dir(inPath)
		}
		outPath := wordpadPath(dir, filepath.Base(inPath), suffix)
		if err := writeWordpad(transformer, inPath, outPath, params); err != nil {
			return fmt.Errorf("wordpad %s: %w", filepath.Base(inPath), err)
		}
		if observability.CLILogger != nil {
			observability.CLILogger.Info("Saved in WordPad", zap.String("in", inPath), zap.String("out", outPath))
		}
	}
	return nil
}

// wordpadInputs lists the explicit files followed by the images of inDir,
// skipping earlier outputs that carry the suffix.
func wordpadInputs(inDir string, files []string, suffix string) ([]string, error) {
	inputs := append([]string{}, files...)
	if inDir == "" {
		return inputs, nil
	}

	entries, err := os.ReadDir(inDir)
	if err != nil {
		return nil, err
	}
	marker := "." + strings.ToLower(suffix) + "."
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		lower := strings.ToLower(name)
		if !wordpadInputExts[filepath.Ext(lower)] || strings.Contains(lower, marker) {
			continue
		}
		inputs = append(inputs, filepath.Join(inDir, name))
	}
	return inputs, nil
}

func wordpadPath(outDir, filename, suffix string) string {
	base := strings.TrimSuffix(filename, filepath.Ext(filename))
	return filepath.Join(outDir, fmt.Sprintf("%s.%s.jpg", base, suffix))
}

func writeWordpad(transformer imaging.Transformer, inPath, outPath string, params core.TransformParams) error {
	data, err := os.ReadFile(inPath)
	if err != nil {
		return err
	}
	out, err := transformer.Transform(data, params)
	if err != nil {
		return err
	}
	return os.WriteFile(outPath, out, 0644)
}
