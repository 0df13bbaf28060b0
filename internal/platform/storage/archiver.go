package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	gcs "cloud.google.com/go/storage"
)

const (
	contentTypeXML = "application/xml"
	contentTypePDF = "application/pdf"
)

// Archiver writes fiscal documents to a Cloud Storage bucket.
type Archiver struct {
	client *gcs.Client
	bucket string
}

// NewArchiver constructs an Archiver targeting the supplied bucket.
func NewArchiver(client *gcs.Client, bucket string) (*Archiver, error) {
	if client == nil {
		return nil, errors.New("storage archiver: client is required")
	}
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errors.New("storage archiver: bucket is required")
	}
	return &Archiver{client: client, bucket: bucket}, nil
}

// Bucket returns the bucket this archiver writes to.
func (a *Archiver) Bucket() string {
	if a == nil {
		return ""
	}
	return a.bucket
}

// ArchiveDocument writes a fiscal document payload and returns the object path.
func (a *Archiver) ArchiveDocument(ctx context.Context, params InvoicePathParams, payload []byte) (string, error) {
	if a == nil || a.client == nil {
		return "", errors.New("storage archiver: not initialised")
	}
	if len(payload) == 0 {
		return "", errors.New("storage archiver: payload is empty")
	}

	object, err := BuildInvoicePath(params)
	if err != nil {
		return "", err
	}

	writer := a.client.Bucket(a.bucket).Object(object).NewWriter(ctx)
	switch params.Kind {
	case DocumentXML:
		writer.ContentType = contentTypeXML
	case DocumentPDF:
		writer.ContentType = contentTypePDF
	}

	if _, err := writer.Write(payload); err != nil {
		_ = writer.Close()
		return "", fmt.Errorf("storage archiver: write %s: %w", object, err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("storage archiver: flush %s: %w", object, err)
	}
	return object, nil
}
