package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/adverant/nexus/prospect-worker/internal/logging"
	"github.com/adverant/nexus/prospect-worker/internal/model"
	"github.com/adverant/nexus/prospect-worker/internal/pipeline"
	"github.com/adverant/nexus/prospect-worker/internal/processor"
	"github.com/adverant/nexus/prospect-worker/internal/storage"
)

var (
	scanLexicon        string
	scanRecognitionURL string
	scanLanguages      []string
	scanMinConfidence  float64
	scanConcurrency    int
	scanID             string
	scanVerbose        bool
	scanJSON           bool
)

var (
	colorHot  = color.New(color.FgGreen, color.Bold)
	colorWarm = color.New(color.FgYellow)
	colorCold = color.New(color.FgWhite)
	colorFail = color.New(color.FgRed, color.Bold)
)

// newRecognizer is swapped out by tests
var newRecognizer = pipeline.NewRecognizer

var scanCmd = &cobra.Command{
	Use:   "scan [files...]",
	Short: "Scan screenshots for prospects",
	Long: `Runs every screenshot through recognition, parsing, enrichment and
scoring, and prints the ranked prospects (or the full outcome with --json).`,
	Args: cobra.MinimumNArgs(1),
	RunE: runScan,
}

func init() {
	scanCmd.Flags().StringVar(&scanLexicon, "lexicon", "", "TOML file replacing the built-in keyword tables")
	scanCmd.Flags().StringVar(&scanRecognitionURL, "recognition-url", "", "remote OCR service (local Tesseract when empty)")
	scanCmd.Flags().StringSliceVar(&scanLanguages, "languages", []string{"eng", "fil"}, "recognition languages")
	scanCmd.Flags().Float64Var(&scanMinConfidence, "min-confidence", processor.DefaultMinConfidence, "drop recognition results below this confidence")
	scanCmd.Flags().IntVarP(&scanConcurrency, "concurrency", "c", 3, "parallel recognitions")
	scanCmd.Flags().StringVar(&scanID, "scan-id", "", "scan id (generated when empty)")
	scanCmd.Flags().BoolVarP(&scanVerbose, "verbose", "v", false, "log pipeline progress to stderr")
	scanCmd.Flags().BoolVar(&scanJSON, "json", false, "output the outcome as JSON")
	rootCmd.AddCommand(scanCmd)
}

func runScan(cmd *cobra.Command, args []string) error {
	images, err := readImages(args)
	if err != nil {
		return err
	}

	lex, err := pipeline.LoadLexicon(scanLexicon)
	if err != nil {
		return err
	}

	logger := logging.NewLoggerWithOutput("scanctl", cmd.ErrOrStderr())
	if !scanVerbose {
		logger = logging.NewLoggerWithOutput("scanctl", io.Discard)
	}

	mem := storage.NewMemoryStore()
	orch, err := pipeline.Build(pipeline.Options{
		Lexicon:                lex,
		Recognizer:             newRecognizer(scanRecognitionURL, scanLanguages),
		Statuses:               mem,
		Results:                mem,
		RecognitionConcurrency: scanConcurrency,
		MinConfidence:          scanMinConfidence,
		Logger:                 logger,
	})
	if err != nil {
		return err
	}

	id := scanID
	if id == "" {
		id = uuid.NewString()
	}

	outcome, scanErr := orch.SubmitScan(context.Background(), id, images)
	if outcome == nil {
		return fmt.Errorf("scan failed: %w", scanErr)
	}

	if scanJSON {
		if err := outputScanJSON(cmd, outcome); err != nil {
			return err
		}
	} else {
		outputScanTable(cmd, outcome)
	}

	if scanErr != nil {
		return fmt.Errorf("scan failed: %w", scanErr)
	}
	return nil
}

func outputScanJSON(cmd *cobra.Command, outcome *processor.ScanOutcome) error {
	data, err := json.MarshalIndent(outcome, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal outcome: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

func outputScanTable(cmd *cobra.Command, outcome *processor.ScanOutcome) {
	out := cmd.OutOrStdout()
	if outcome.Status == processor.StatusFailed {
		colorFail.Fprintf(out, "Scan %s failed: %s\n", outcome.ScanID, outcome.Error)
		return
	}

	cmd.Printf("Scan %s: %d prospects in %dms\n", outcome.ScanID, outcome.ProspectsFound, outcome.ProcessingTimeMs)
	if len(outcome.Prospects) == 0 {
		cmd.Println("No prospects found.")
		return
	}
	cmd.Println()
	for i, p := range outcome.Prospects {
		c := colorCold
		switch {
		case p.Score >= 70:
			c = colorHot
		case p.Score >= 50:
			c = colorWarm
		}
		c.Fprintf(out, "  [%d] %-30s %3d  %s\n", i+1, p.Name, p.Score, p.Kind)
	}
}

func readImages(paths []string) ([]model.RawImage, error) {
	images := make([]model.RawImage, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		name := filepath.Base(path)
		images = append(images, model.RawImage{
			ID:       strings.TrimSuffix(name, filepath.Ext(name)),
			Filename: name,
			Data:     data,
		})
	}
	return images, nil
}
