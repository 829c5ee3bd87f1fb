package storage

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"github.com/semmidev/dbtoolkit/internal/config"
)

type GDriveStorage struct {
	service  *drive.Service
	folderID string
}

func NewGDrive(ctx context.Context, cfg *config.UploadTarget) (*GDriveStorage, error) {
	if cfg.CredentialsFile == "" || cfg.FolderID == "" {
		return nil, fmt.Errorf("gdrive target requires credentials_file and folder_id")
	}

	service, err := drive.NewService(ctx, option.WithCredentialsFile(cfg.CredentialsFile))
	if err != nil {
		return nil, fmt.Errorf("failed to create drive service: %w", err)
	}

	return &GDriveStorage{
		service:  service,
		folderID: cfg.FolderID,
	}, nil
}

func escapeQuery(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(s, `\`, `\\`), `'`, `\'`)
}

func (g *GDriveStorage) Upload(ctx context.Context, localPath string, remoteName string) error {
	file, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	fileMetadata := &drive.File{
		Name:    remoteName,
		Parents: []string{g.folderID},
	}

	_, err = g.service.Files.Create(fileMetadata).
		Media(file).
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("failed to upload to gdrive: %w", err)
	}
	return nil
}

// find pages through every file in the folder matching the extra filter.
func (g *GDriveStorage) find(ctx context.Context, filter string) ([]*drive.File, error) {
	q := fmt.Sprintf("'%s' in parents and trashed=false", escapeQuery(g.folderID))
	if filter != "" {
		q += " and " + filter
	}

	var files []*drive.File
	err := g.service.Files.List().
		Q(q).
		Fields("nextPageToken, files(id, name, createdTime)").
		Pages(ctx, func(page *drive.FileList) error {
			files = append(files, page.Files...)
			return nil
		})
	if err != nil {
		return nil, err
	}
	return files, nil
}

func (g *GDriveStorage) List(ctx context.Context) ([]string, error) {
	found, err := g.find(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}

	files := []string{}
	for _, f := range found {
		if isArtifact(f.Name) {
			files = append(files, f.Name)
		}
	}
	return files, nil
}

func (g *GDriveStorage) Delete(ctx context.Context, remoteName string) error {
	found, err := g.find(ctx, fmt.Sprintf("name='%s'", escapeQuery(remoteName)))
	if err != nil {
		return fmt.Errorf("failed to find file: %w", err)
	}
	if len(found) == 0 {
		return fmt.Errorf("file not found: %s", remoteName)
	}

	for _, f := range found {
		if err := g.service.Files.Delete(f.Id).Context(ctx).Do(); err != nil {
			return fmt.Errorf("failed to delete file: %w", err)
		}
	}
	return nil
}

func (g *GDriveStorage) GetOldFiles(ctx context.Context, cutoffTime time.Time) ([]string, error) {
	found, err := g.find(ctx, fmt.Sprintf("createdTime < '%s'", cutoffTime.UTC().Format(time.RFC3339)))
	if err != nil {
		return nil, fmt.Errorf("failed to list old files: %w", err)
	}

	var files []string
	for _, f := range found {
		if isArtifact(f.Name) {
			files = append(files, f.Name)
		}
	}
	return files, nil
}
