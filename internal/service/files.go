package service

import (
	"context"
	"io"

	"github.com/suteetoe/pallet-service/pkg/logger"
	"github.com/suteetoe/pallet-service/pkg/storage"
	"go.uber.org/zap"
)

// FileStore is the part of the uploads tree services depend on
type FileStore interface {
	Save(kind storage.Kind, ext string, src io.Reader) (string, error)
	SaveAs(kind storage.Kind, name string, data []byte) (string, error)
	Copy(webPath string) (string, error)
	Remove(webPath string) error
	CheckSize(kind storage.Kind, size int64) error
}

// removeFiles deletes files after a committed change. Failures are logged only.
func removeFiles(ctx context.Context, files FileStore, paths []string) {
	log := logger.Ctx(ctx)
	for _, p := range paths {
		if p == "" {
			continue
		}
		if err := files.Remove(p); err != nil {
			log.Warn("Failed to remove file", zap.String("path", p), zap.Error(err))
		}
	}
}
