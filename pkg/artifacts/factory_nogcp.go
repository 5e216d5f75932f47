//go:build !gcp

package artifacts

import (
	"context"
	"errors"
)

func newGCSStore(ctx context.Context, cfg GCSStoreConfig) (Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("ARTIFACT_GCS_BUCKET is required for GCS storage")
	}
	return nil, errors.New("GCS storage is not enabled in this build (use -tags gcp)")
}
