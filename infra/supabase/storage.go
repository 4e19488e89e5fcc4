package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
)

// StorageClient uploads and serves program artwork from Supabase storage.
type StorageClient struct {
	client *Client
}

// UploadOptions control an upload.
type UploadOptions struct {
	ContentType string
	Upsert      bool
}

// Upload stores an object under bucket/path with the service key.
func (s *StorageClient) Upload(ctx context.Context, bucket, path string, data []byte, opts *UploadOptions) (*FileObject, error) {
	headers := map[string]string{}
	if opts != nil {
		if opts.ContentType != "" {
			headers["Content-Type"] = opts.ContentType
		}
		if opts.Upsert {
			headers["x-upsert"] = "true"
		}
	}

	respBody, statusCode, err := s.client.requestWithServiceKey(ctx, "POST", s.objectURL(bucket, path), data, headers)
	if err != nil {
		return nil, err
	}
	if statusCode >= 400 {
		return nil, parseError(respBody, statusCode)
	}

	var obj FileObject
	if err := json.Unmarshal(respBody, &obj); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	return &obj, nil
}

// Download fetches an object.
func (s *StorageClient) Download(ctx context.Context, bucket, path string) ([]byte, error) {
	respBody, statusCode, err := s.client.request(ctx, "GET", s.objectURL(bucket, path), nil, nil)
	if err != nil {
		return nil, err
	}
	if statusCode >= 400 {
		return nil, parseError(respBody, statusCode)
	}
	return respBody, nil
}

// Delete removes objects from a bucket.
func (s *StorageClient) Delete(ctx context.Context, bucket string, paths []string) error {
	body, err := json.Marshal(map[string][]string{"prefixes": paths})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	respBody, statusCode, err := s.client.requestWithServiceKey(ctx, "DELETE", s.client.storageURL+"/object/"+url.PathEscape(bucket), body, nil)
	if err != nil {
		return err
	}
	if statusCode >= 400 {
		return parseError(respBody, statusCode)
	}
	return nil
}

// PublicURL returns the public URL for an object in a public bucket.
func (s *StorageClient) PublicURL(bucket, path string) string {
	return s.client.storageURL + "/object/public/" + url.PathEscape(bucket) + "/" + path
}

func (s *StorageClient) objectURL(bucket, path string) string {
	return s.client.storageURL + "/object/" + url.PathEscape(bucket) + "/" + path
}
