package pipeline

import (
	"context"
	"os"
	"path/filepath"

	"github.com/projectopenrap/buildimage/src/buildimage/storage"
	"github.com/projectopenrap/buildimage/src/common/errors"
)

// publish uploads the packaged archive and its checksum file to the storage
// backend under <device>/<profile>/
func publish(ctx context.Context, bc *BuildContext, run *Run) error {
	if bc.Storage == nil {
		return errors.ErrStorageUnavailable.WithMessage("no storage backend configured")
	}
	if run.Archive == nil {
		return errors.ErrStoragePublish.WithMessage("nothing packaged")
	}

	key, err := upload(ctx, bc, run.Archive.Path, bc.ArchiveFormat.ContentType())
	if err != nil {
		return err
	}
	if run.ChecksumPath != "" {
		if _, err := upload(ctx, bc, run.ChecksumPath, "text/plain"); err != nil {
			return err
		}
	}
	run.PublishedKey = key

	bc.Log.Info("published image", "backend", bc.Storage.Type(), "location", bc.Storage.Location(), "key", key)
	return nil
}

func upload(ctx context.Context, bc *BuildContext, path, contentType string) (string, error) {
	key := storage.ArtifactKey(string(bc.Target.Device), string(bc.Target.Profile), filepath.Base(path))

	f, err := os.Open(path)
	if err != nil {
		return "", errors.ErrStoragePublish.WithMessagef("open %s", path).WithCause(err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return "", errors.ErrStoragePublish.WithMessagef("stat %s", path).WithCause(err)
	}

	if err := bc.Storage.Upload(ctx, key, f, stat.Size(), contentType); err != nil {
		return "", errors.ErrStoragePublish.WithMessagef("upload %s", key).WithCause(err)
	}
	return key, nil
}
