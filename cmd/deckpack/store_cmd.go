package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"

	"github.com/sethwebster/presentations-sub001/pkg/artifacts"
	"github.com/sethwebster/presentations-sub001/pkg/deck"
	"github.com/sethwebster/presentations-sub001/pkg/sniff"
)

// errNotRemoved maps `store rm` of an absent hash to exit code 1.
var errNotRemoved = errors.New("nothing stored under that hash")

func runStoreCmd(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		_, _ = fmt.Fprintln(stderr, "Usage: deckpack store <put|get|info|rm> [options]")
		return 2
	}

	switch args[0] {
	case "put":
		return runStorePut(ctx, args[1:], stdout, stderr)
	case "get":
		return runStoreGet(ctx, args[1:], stdout, stderr)
	case "info":
		return runStoreInfo(ctx, args[1:], stdout, stderr)
	case "rm":
		return runStoreRm(ctx, args[1:], stdout, stderr)
	default:
		_, _ = fmt.Fprintf(stderr, "Unknown store subcommand: %s\n", args[0])
		return 2
	}
}

func runStorePut(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := pflag.NewFlagSet("store put", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	mimeType := fs.String("mime", "", "Media type to record (default: detected)")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}
	if fs.NArg() != 1 {
		_, _ = fmt.Fprintln(stderr, "Usage: deckpack store put <file> [--mime type]")
		return 2
	}
	path := fs.Arg(0)

	return command(ctx, "store.put", stderr, func(ctx context.Context, e *env) error {
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		meta := &artifacts.AssetInfo{Filename: filepath.Base(path), MimeType: *mimeType}
		if meta.MimeType == "" {
			if detected := sniff.DetectMIMEType(data); detected != sniff.OctetStream {
				meta.MimeType = detected
			}
		}
		if dims, ok := sniff.ProbeImageDimensions(data, meta.MimeType); ok {
			meta.Image = &artifacts.ImageInfo{Width: dims.Width, Height: dims.Height}
		}

		store, err := e.openStore(ctx)
		if err != nil {
			return err
		}
		hash, err := store.Put(ctx, data, meta)
		if err != nil {
			return err
		}
		ref, err := deck.NewReference(hash)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(stdout, "%s\t%s\n", hash, ref)
		return nil
	})
}

func runStoreGet(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := pflag.NewFlagSet("store get", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	outPath := fs.StringP("out", "o", "-", "Output path ('-' for stdout)")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}
	if fs.NArg() != 1 {
		_, _ = fmt.Fprintln(stderr, "Usage: deckpack store get <hash|asset-ref> [-o file]")
		return 2
	}
	hash, err := parseHashArg(fs.Arg(0))
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	return command(ctx, "store.get", stderr, func(ctx context.Context, e *env) error {
		store, err := e.openStore(ctx)
		if err != nil {
			return err
		}
		data, err := store.Get(ctx, hash)
		if err != nil {
			return err
		}
		return writeOutput(*outPath, data, stdout)
	})
}

func runStoreInfo(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := pflag.NewFlagSet("store info", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	jsonOutput := fs.Bool("json", false, "Output result as JSON")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}
	if fs.NArg() != 1 {
		_, _ = fmt.Fprintln(stderr, "Usage: deckpack store info <hash|asset-ref> [--json]")
		return 2
	}
	hash, err := parseHashArg(fs.Arg(0))
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	return command(ctx, "store.info", stderr, func(ctx context.Context, e *env) error {
		store, err := e.openStore(ctx)
		if err != nil {
			return err
		}
		info, err := store.Info(ctx, hash)
		if err != nil {
			return err
		}

		if *jsonOutput {
			data, _ := json.MarshalIndent(info, "", "  ")
			_, _ = fmt.Fprintln(stdout, string(data))
			return nil
		}
		_, _ = fmt.Fprintf(stdout, "Hash:     %s\n", info.Hash)
		_, _ = fmt.Fprintf(stdout, "Type:     %s\n", info.MimeType)
		_, _ = fmt.Fprintf(stdout, "Size:     %s (%d bytes)\n", humanize.Bytes(uint64(info.Size)), info.Size)
		if info.Filename != "" {
			_, _ = fmt.Fprintf(stdout, "Filename: %s\n", info.Filename)
		}
		if info.Image != nil {
			_, _ = fmt.Fprintf(stdout, "Image:    %dx%d\n", info.Image.Width, info.Image.Height)
		}
		_, _ = fmt.Fprintf(stdout, "Created:  %s (%s)\n", info.CreatedAt.Format("2006-01-02 15:04:05Z07:00"), humanize.Time(info.CreatedAt))
		return nil
	})
}

func runStoreRm(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := pflag.NewFlagSet("store rm", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}
	if fs.NArg() != 1 {
		_, _ = fmt.Fprintln(stderr, "Usage: deckpack store rm <hash|asset-ref>")
		return 2
	}
	hash, err := parseHashArg(fs.Arg(0))
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	return command(ctx, "store.rm", stderr, func(ctx context.Context, e *env) error {
		store, err := e.openStore(ctx)
		if err != nil {
			return err
		}
		removed, err := store.Delete(ctx, hash)
		if err != nil {
			return err
		}
		if !removed {
			return fmt.Errorf("%s: %w", hash, errNotRemoved)
		}
		_, _ = fmt.Fprintf(stdout, "Removed %s\n", hash)
		return nil
	})
}

// parseHashArg accepts "sha256:<hex>" or "asset://sha256:<hex>".
func parseHashArg(arg string) (string, error) {
	if ref, err := deck.ParseReference(arg); err == nil {
		return ref.Hash(), nil
	}
	if _, err := artifacts.ParseHash(arg); err != nil {
		return "", err
	}
	return arg, nil
}
