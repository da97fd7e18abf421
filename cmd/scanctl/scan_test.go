package main

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adverant/nexus/prospect-worker/internal/model"
	"github.com/adverant/nexus/prospect-worker/internal/processor"
	"github.com/adverant/nexus/prospect-worker/internal/recognition"
)

func writePNG(t *testing.T, dir, name string) string {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 32, 24))
	for y := 0; y < 24; y++ {
		for x := 0; x < 32; x++ {
			img.Set(x, y, color.White)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))
	return path
}

func useFakeRecognizer(t *testing.T, texts map[string]string) {
	t.Helper()
	orig := newRecognizer
	newRecognizer = func(string, []string) recognition.Recognizer {
		return recognition.RecognizerFunc(func(ctx context.Context, img model.NormalizedImage) (*recognition.Output, error) {
			return &recognition.Output{Text: texts[img.SourceID], Confidence: 0.9}, nil
		})
	}
	t.Cleanup(func() {
		newRecognizer = orig
		scanID = ""
		scanJSON = false
		rootCmd.SetArgs(nil)
	})
}

func TestScanCmd_Use(t *testing.T) {
	assert.Equal(t, "scan [files...]", scanCmd.Use)
}

func TestScanCmd_Flags(t *testing.T) {
	flag := scanCmd.Flags().Lookup("concurrency")
	require.NotNil(t, flag)
	assert.Equal(t, "c", flag.Shorthand)
	assert.Equal(t, "3", flag.DefValue)

	flag = scanCmd.Flags().Lookup("min-confidence")
	require.NotNil(t, flag)
	assert.Equal(t, "0.5", flag.DefValue)

	assert.NotNil(t, scanCmd.Flags().Lookup("lexicon"))
	assert.NotNil(t, scanCmd.Flags().Lookup("recognition-url"))
	assert.NotNil(t, scanCmd.Flags().Lookup("languages"))
}

func TestScanCmd_RequiresFiles(t *testing.T) {
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs([]string{"scan"})
	defer rootCmd.SetArgs(nil)

	err := rootCmd.Execute()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "requires at least 1 arg(s)")
}

func TestScanCmd_PrintsOutcome(t *testing.T) {
	dir := t.TempDir()
	first := writePNG(t, dir, "friends.png")
	second := writePNG(t, dir, "more.png")
	useFakeRecognizer(t, map[string]string{
		"friends": "Maria Santos\n12 mutual friends",
		"more":    "Jose Rizal\n3 mutual friends",
	})

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs([]string{"scan", "--json", "--scan-id", "cli-scan", first, second})

	require.NoError(t, rootCmd.Execute())

	var outcome processor.ScanOutcome
	require.NoError(t, json.Unmarshal(buf.Bytes(), &outcome), buf.String())
	assert.Equal(t, "cli-scan", outcome.ScanID)
	assert.Equal(t, processor.StatusCompleted, outcome.Status)
	assert.Equal(t, 2, outcome.ProspectsFound)
	assert.Len(t, outcome.Prospects, 2)
}

func TestScanCmd_PrintsTable(t *testing.T) {
	color.NoColor = true
	dir := t.TempDir()
	path := writePNG(t, dir, "friends.png")
	useFakeRecognizer(t, map[string]string{
		"friends": "Maria Santos\n12 mutual friends",
	})

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs([]string{"scan", "--scan-id", "table-scan", path})

	require.NoError(t, rootCmd.Execute())
	out := buf.String()
	assert.Contains(t, out, "Scan table-scan: 1 prospects")
	assert.Contains(t, out, "[1] Maria Santos")
	assert.Contains(t, out, "friend_row")
}

func TestScanCmd_MissingFile(t *testing.T) {
	useFakeRecognizer(t, nil)

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs([]string{"scan", filepath.Join(t.TempDir(), "absent.png")})

	err := rootCmd.Execute()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read")
}

func TestReadImagesUsesBaseNameAsID(t *testing.T) {
	path := writePNG(t, t.TempDir(), "feed-01.png")
	images, err := readImages([]string{path})
	require.NoError(t, err)
	require.Len(t, images, 1)
	assert.Equal(t, "feed-01", images[0].ID)
	assert.Equal(t, "feed-01.png", images[0].Filename)
	assert.NotEmpty(t, images[0].Data)
}
