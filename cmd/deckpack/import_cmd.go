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

// runImportCmd implements `deckpack import <in.deck> -o <working.json>`.
// Bundled assets are put into the configured store before the working
// document is written; its references resolve against that store.
func runImportCmd(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := pflag.NewFlagSet("import", pflag.ContinueOnError)
	fs.SetOutput(stderr)

	var outPath string
	fs.StringVarP(&outPath, "out", "o", "-", "Output working document path ('-' for stdout)")

	if code, ok := parseFlags(fs, args); !ok {
		return code
	}
	if fs.NArg() != 1 {
		_, _ = fmt.Fprintln(stderr, "Usage: deckpack import <in.deck> [-o <working.json>]")
		return 2
	}
	inPath := fs.Arg(0)

	return command(ctx, "import", stderr, func(ctx context.Context, e *env) error {
		raw, err := os.ReadFile(inPath)
		if err != nil {
			return err
		}
		pkg, err := e.codec().Deserialize(ctx, raw)
		if err != nil {
			return fmt.Errorf("read %s: %w", inPath, err)
		}

		store, err := e.openStore(ctx)
		if err != nil {
			return err
		}
		refs, err := pack.ImportAssets(ctx, pkg.Files, store)
		if err != nil {
			return err
		}
		for _, ref := range pkg.Document.References() {
			if ok, err := store.Exists(ctx, ref.Hash()); err == nil && !ok {
				e.logger.WarnContext(ctx, "referenced asset not bundled or stored", "ref", ref)
			}
		}

		doc := convert.ToWorking(pkg.Document)
		doc.Provenance = append(doc.Provenance, deck.ProvenanceEntry{
			ID:        uuid.NewString(),
			Action:    "import",
			Actor:     "deckpack/" + version,
			Timestamp: time.Now().UTC(),
		})

		out, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return err
		}
		if err := writeOutput(outPath, append(out, '\n'), stdout); err != nil {
			return err
		}
		e.logger.InfoContext(ctx, "package imported", "slides", len(doc.Slides), "assets_imported", len(refs))
		return nil
	})
}
