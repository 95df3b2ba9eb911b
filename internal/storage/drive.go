package storage

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"path"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// DriveProvider stores documents in one Google Drive folder. Drive has no
// directories, so the object path is kept in the file's app properties.
type DriveProvider struct {
	service  *drive.Service
	folderID string
}

func NewDriveProvider(ctx context.Context, credentialsFile, folderID string, opts ...option.ClientOption) (*DriveProvider, error) {
	if folderID == "" {
		return nil, fmt.Errorf("drive folder id is required")
	}
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	service, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create drive service: %w", err)
	}
	return &DriveProvider{service: service, folderID: folderID}, nil
}

func (p *DriveProvider) Put(ctx context.Context, data []byte, suggestedPath string) (string, error) {
	objectPath, err := cleanObjectPath(suggestedPath)
	if err != nil {
		return "", err
	}

	contentType := mime.TypeByExtension(path.Ext(objectPath))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	file := &drive.File{
		Name:          path.Base(objectPath),
		Parents:       []string{p.folderID},
		MimeType:      contentType,
		AppProperties: map[string]string{"path": objectPath},
	}
	created, err := p.service.Files.Create(file).
		Media(bytes.NewReader(data), googleapi.ContentType(contentType)).
		SupportsAllDrives(true).
		Fields("id", "webViewLink").
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("failed to upload %s to drive: %w", objectPath, err)
	}

	if created.WebViewLink != "" {
		return created.WebViewLink, nil
	}
	return fmt.Sprintf("https://drive.google.com/file/d/%s/view", created.Id), nil
}
