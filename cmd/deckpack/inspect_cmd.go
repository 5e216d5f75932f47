package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"

	"github.com/sethwebster/presentations-sub001/pkg/pack"
)

type inspectResult struct {
	Title          string `json:"title"`
	SchemaVersion  string `json:"schemaVersion"`
	Slides         int    `json:"slides"`
	References     int    `json:"references"`
	BundledAssets  int    `json:"bundledAssets"`
	BundledBytes   int64  `json:"bundledBytes"`
	PackageBytes   int64  `json:"packageBytes"`
	ProvenanceSize int    `json:"provenance"`
	Digest         string `json:"digest"`
}

// runInspectCmd implements `deckpack inspect <in.deck>`.
func runInspectCmd(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := pflag.NewFlagSet("inspect", pflag.ContinueOnError)
	fs.SetOutput(stderr)

	var jsonOutput bool
	fs.BoolVar(&jsonOutput, "json", false, "Output result as JSON")

	if code, ok := parseFlags(fs, args); !ok {
		return code
	}
	if fs.NArg() != 1 {
		_, _ = fmt.Fprintln(stderr, "Usage: deckpack inspect <in.deck> [--json]")
		return 2
	}
	inPath := fs.Arg(0)

	return command(ctx, "inspect", stderr, func(ctx context.Context, e *env) error {
		raw, err := os.ReadFile(inPath)
		if err != nil {
			return err
		}
		pkg, err := e.codec().Deserialize(ctx, raw)
		if err != nil {
			return fmt.Errorf("read %s: %w", inPath, err)
		}
		digest, err := pack.Digest(pkg.Document)
		if err != nil {
			return err
		}

		res := inspectResult{
			Title:          pkg.Document.Meta.Title,
			SchemaVersion:  pkg.Document.Schema.Version,
			Slides:         len(pkg.Document.Slides),
			References:     len(pkg.Document.Assets),
			PackageBytes:   int64(len(raw)),
			ProvenanceSize: len(pkg.Document.Provenance),
			Digest:         digest,
		}
		for name, data := range pkg.Files {
			if strings.HasPrefix(name, pack.AssetDir) {
				res.BundledAssets++
				res.BundledBytes += int64(len(data))
			}
		}

		if jsonOutput {
			data, _ := json.MarshalIndent(res, "", "  ")
			_, _ = fmt.Fprintln(stdout, string(data))
			return nil
		}
		_, _ = fmt.Fprintf(stdout, "Title:      %s\n", res.Title)
		_, _ = fmt.Fprintf(stdout, "Schema:     %s\n", res.SchemaVersion)
		_, _ = fmt.Fprintf(stdout, "Slides:     %d\n", res.Slides)
		_, _ = fmt.Fprintf(stdout, "References: %d\n", res.References)
		_, _ = fmt.Fprintf(stdout, "Bundled:    %d assets, %s\n", res.BundledAssets, humanize.Bytes(uint64(res.BundledBytes)))
		_, _ = fmt.Fprintf(stdout, "Package:    %s\n", humanize.Bytes(uint64(res.PackageBytes)))
		_, _ = fmt.Fprintf(stdout, "Provenance: %d entries\n", res.ProvenanceSize)
		_, _ = fmt.Fprintf(stdout, "Digest:     %s\n", res.Digest)
		return nil
	})
}
