package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/zhaxinji/recagent/internal/config"
)

// Storage holds uploaded paper files keyed by owner and paper.
type Storage interface {
	UploadPaper(ctx context.Context, ownerID, paperID uuid.UUID, data io.Reader, contentType string) (string, error)
	DownloadPaper(ctx context.Context, path string) (io.ReadCloser, error)
	DeletePaper(ctx context.Context, path string) error
	PublicURL(path string) string
}

type SupabaseStorage struct {
	baseURL    string
	serviceKey string
	bucket     string
	httpClient *http.Client
}

func NewSupabaseStorage(cfg config.StorageConfig) *SupabaseStorage {
	bucket := cfg.Bucket
	if bucket == "" {
		bucket = "papers"
	}
	return &SupabaseStorage{
		baseURL:    cfg.SupabaseURL + "/storage/v1",
		serviceKey: cfg.SupabaseKey,
		bucket:     bucket,
		httpClient: &http.Client{Timeout: 2 * time.Minute},
	}
}

func paperPath(ownerID, paperID uuid.UUID) string {
	return fmt.Sprintf("%s/%s.pdf", ownerID, paperID)
}

// UploadPaper stores the file and returns the path persisted on the paper
// record.
func (s *SupabaseStorage) UploadPaper(ctx context.Context, ownerID, paperID uuid.UUID, data io.Reader, contentType string) (string, error) {
	path := paperPath(ownerID, paperID)
	url := fmt.Sprintf("%s/object/%s/%s", s.baseURL, s.bucket, path)

	buf := &bytes.Buffer{}
	if _, err := io.Copy(buf, data); err != nil {
		return "", fmt.Errorf("read upload data: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, buf)
	if err != nil {
		return "", fmt.Errorf("create upload request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.serviceKey)
	req.Header.Set("Content-Type", contentType)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload paper file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("upload failed (%d): %s", resp.StatusCode, string(body))
	}

	return path, nil
}

func (s *SupabaseStorage) DownloadPaper(ctx context.Context, path string) (io.ReadCloser, error) {
	url := fmt.Sprintf("%s/object/%s/%s", s.baseURL, s.bucket, path)

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("create download request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.serviceKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download paper file: %w", err)
	}

	if resp.StatusCode >= 400 {
		resp.Body.Close()
		return nil, fmt.Errorf("download failed (%d)", resp.StatusCode)
	}

	return resp.Body, nil
}

func (s *SupabaseStorage) DeletePaper(ctx context.Context, path string) error {
	url := fmt.Sprintf("%s/object/%s/%s", s.baseURL, s.bucket, path)

	req, err := http.NewRequestWithContext(ctx, "DELETE", url, nil)
	if err != nil {
		return fmt.Errorf("create delete request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.serviceKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("delete paper file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("delete failed (%d)", resp.StatusCode)
	}

	return nil
}

func (s *SupabaseStorage) PublicURL(path string) string {
	return fmt.Sprintf("%s/object/public/%s/%s", s.baseURL, s.bucket, path)
}
