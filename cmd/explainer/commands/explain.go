package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/slidedeck/explainer/internal/explain"
	"github.com/slidedeck/explainer/internal/extract"
)

var explainCmd = &cobra.Command{
	Use:   "explain <file>",
	Short: "Explain one deck locally and write <file>.json next to it",
	Args:  cobra.ExactArgs(1),
	RunE:  runExplain,
}

func init() {
	rootCmd.AddCommand(explainCmd)
}

func runExplain(cmd *cobra.Command, args []string) error {
	path := args[0]
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	ctx, stop := signalContext()
	defer stop()

	texts, err := extract.NewDetecting().Extract(ctx, filepath.Base(path), data)
	if err != nil {
		return fmt.Errorf("extract %s: %w", path, err)
	}

	explanations := newEngine(cfg, logger).FanOut(ctx, texts)
	if err := ctx.Err(); err != nil {
		return err
	}

	out, err := json.MarshalIndent(explanations, "", "    ")
	if err != nil {
		return err
	}
	outPath := strings.TrimSuffix(path, filepath.Ext(path)) + ".json"
	if err := os.WriteFile(outPath, out, 0644); err != nil {
		return fmt.Errorf("write %s: %w", outPath, err)
	}

	failed := 0
	for _, e := range explanations {
		if explain.IsPlaceholder(e) {
			failed++
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Explanations saved to %s (%d slides, %d failed)\n", outPath, len(explanations), failed)
	return nil
}
