package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"

	"github.com/sethwebster/presentations-sub001/pkg/convert"
	"github.com/sethwebster/presentations-sub001/pkg/deck"
	"github.com/sethwebster/presentations-sub001/pkg/pack"
)

// runExportCmd implements `deckpack export <working.json> -o <out.deck>`.
//
// Exit codes:
//
//	0 = package written
//	1 = runtime error
//	2 = usage error
func runExportCmd(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := pflag.NewFlagSet("export", pflag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		outPath  string
		noAssets bool
	)
	fs.StringVarP(&outPath, "out", "o", "", "Output package path (REQUIRED)")
	fs.BoolVar(&noAssets, "no-assets", false, "Write manifests only; assets stay in the store")

	if code, ok := parseFlags(fs, args); !ok {
		return code
	}
	if fs.NArg() != 1 || outPath == "" {
		_, _ = fmt.Fprintln(stderr, "Usage: deckpack export <working.json> -o <out.deck> [--no-assets]")
		return 2
	}
	inPath := fs.Arg(0)

	return command(ctx, "export", stderr, func(ctx context.Context, e *env) error {
		raw, err := os.ReadFile(inPath)
		if err != nil {
			return err
		}
		var doc deck.WorkingDocument
		if err := json.Unmarshal(raw, &doc); err != nil {
			return fmt.Errorf("parse %s: %w", inPath, err)
		}

		store, err := e.openStore(ctx)
		if err != nil {
			return err
		}
		conv := convert.New(
			convert.WithLogger(e.logger),
			convert.WithConcurrency(e.cfg.Concurrency),
		)
		portable, report, err := conv.ToPortable(ctx, &doc, store)
		if err != nil {
			return err
		}

		details, _ := json.Marshal(map[string]int{
			"stored":       report.Stored,
			"deduplicated": report.Deduplicated,
			"warnings":     len(report.Warnings),
		})
		portable.Provenance = append(portable.Provenance, deck.ProvenanceEntry{
			ID:        uuid.NewString(),
			Action:    "export",
			Actor:     "deckpack/" + version,
			Timestamp: time.Now().UTC(),
			Details:   details,
		})

		var files map[string][]byte
		if !noAssets {
			var missing []deck.Reference
			files, missing, err = pack.CollectAssets(ctx, portable, store)
			if err != nil {
				return err
			}
			for _, ref := range missing {
				e.logger.WarnContext(ctx, "referenced asset not in store", "ref", ref)
			}
		}

		data, err := e.codec().Serialize(ctx, portable, files)
		if err != nil {
			return err
		}
		if err := writeOutput(outPath, data, stdout); err != nil {
			return err
		}

		if outPath != "-" {
			_, _ = fmt.Fprintf(stdout, "Exported %s: %d slides, %d assets (%d stored, %d deduplicated, %d warnings)\n",
				outPath, len(portable.Slides), len(portable.Assets), report.Stored, report.Deduplicated, len(report.Warnings))
		}
		for _, w := range report.Warnings {
			_, _ = fmt.Fprintf(stderr, "warning: %s\n", w)
		}
		return nil
	})
}
