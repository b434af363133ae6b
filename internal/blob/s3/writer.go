package s3blob

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Writer uploads objects to the configured bucket. Uploads go through the
// SDK upload manager so large snapshots stream in parts instead of being
// buffered whole.
type Writer struct {
	client   *Client
	uploader *manager.Uploader
}

// NewWriter creates a Writer backed by the given client.
func NewWriter(client *Client) *Writer {
	return &Writer{
		client:   client,
		uploader: manager.NewUploader(client.S3()),
	}
}

// Put uploads the contents of data to the given object path.
func (w *Writer) Put(ctx context.Context, path string, data io.Reader, contentType string) error {
	input := &s3.PutObjectInput{
		Bucket: aws.String(w.client.Bucket()),
		Key:    aws.String(path),
		Body:   data,
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	if _, err := w.uploader.Upload(ctx, input); err != nil {
		return fmt.Errorf("s3blob: put %s: %w", path, err)
	}
	return nil
}
