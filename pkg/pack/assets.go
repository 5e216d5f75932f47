package pack

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/gowebpki/jcs"

	"github.com/sethwebster/presentations-sub001/pkg/artifacts"
	"github.com/sethwebster/presentations-sub001/pkg/deck"
	"github.com/sethwebster/presentations-sub001/pkg/sniff"
)

// AssetPath returns the conventional archive path for an asset.
func AssetPath(ref deck.Reference, mimeType string) string {
	return AssetDir + ref.Hex() + sniff.Extension(mimeType)
}

// CollectAssets fetches the bytes of every reference in doc's registry from
// store, keyed by AssetPath. References the store does not hold are
// returned in missing rather than failing the export.
func CollectAssets(ctx context.Context, doc *deck.PortableDocument, store artifacts.Store) (files map[string][]byte, missing []deck.Reference, err error) {
	files = make(map[string][]byte, len(doc.Assets))
	for _, ref := range doc.References() {
		data, err := store.Get(ctx, ref.Hash())
		if errors.Is(err, artifacts.ErrNotFound) {
			missing = append(missing, ref)
			continue
		}
		if err != nil {
			return nil, nil, fmt.Errorf("pack: fetch %s: %w", ref, err)
		}

		mimeType := sniff.DetectMIMEType(data)
		if info, err := store.Info(ctx, ref.Hash()); err == nil && info.MimeType != "" {
			mimeType = info.MimeType
		}
		files[AssetPath(ref, mimeType)] = data
	}
	return files, missing, nil
}

// ImportAssets puts every file under AssetDir into store. Each file's name,
// minus its extension, must be the hex digest of its bytes.
func ImportAssets(ctx context.Context, files map[string][]byte, store artifacts.Store) ([]deck.Reference, error) {
	var refs []deck.Reference
	for _, name := range sortedKeys(files) {
		if !strings.HasPrefix(name, AssetDir) {
			continue
		}
		data := files[name]
		base := path.Base(name)
		digest := strings.TrimSuffix(base, path.Ext(base))
		if sum := sha256.Sum256(data); hex.EncodeToString(sum[:]) != digest {
			return refs, fmt.Errorf("%w: %s", ErrAssetMismatch, name)
		}

		meta := &artifacts.AssetInfo{Filename: base, MimeType: sniff.DetectMIMEType(data)}
		if meta.MimeType == sniff.OctetStream {
			meta.MimeType = ""
		}
		if dims, ok := sniff.ProbeImageDimensions(data, meta.MimeType); ok {
			meta.Image = &artifacts.ImageInfo{Width: dims.Width, Height: dims.Height}
		}
		hash, err := store.Put(ctx, data, meta)
		if err != nil {
			return refs, fmt.Errorf("pack: import %s: %w", name, err)
		}
		ref, err := deck.NewReference(hash)
		if err != nil {
			return refs, err
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

// Digest returns "sha256:<hex>" of the RFC 8785 canonical JSON of doc. It
// identifies a document independently of archive layout and indentation.
func Digest(doc *deck.PortableDocument) (string, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("pack: digest: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("pack: canonicalize: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return "sha256:" + hex.EncodeToString(sum[:]), nil
}
