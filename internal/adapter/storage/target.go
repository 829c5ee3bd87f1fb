package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/semmidev/dbtoolkit/internal/config"
	"github.com/semmidev/dbtoolkit/internal/domain"
)

// isArtifact filters listings down to files this toolkit writes.
func isArtifact(name string) bool {
	return strings.HasSuffix(name, ".sql") || strings.HasSuffix(name, ".sql"+domain.CompressedSuffix)
}

// NewTarget builds the remote copy target described by cfg.
func NewTarget(ctx context.Context, cfg config.UploadTarget) (domain.Storage, error) {
	switch cfg.Type {
	case "local":
		return NewLocal(cfg.Path)
	case "s3":
		return NewS3(ctx, &cfg)
	case "gdrive":
		return NewGDrive(ctx, &cfg)
	case "telegram":
		return NewTelegram(&cfg)
	}
	return nil, fmt.Errorf("%w: upload target type %q", domain.ErrUnsupported, cfg.Type)
}

// TargetName is the label used in logs: the configured name or the type.
func TargetName(cfg config.UploadTarget) string {
	if cfg.Name != "" {
		return cfg.Name
	}
	return cfg.Type
}
