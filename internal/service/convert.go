package service

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/lessonforge/lessonforge/internal/domain"
)

// MIME types accepted for the document channel
var supportedMIMETypes = map[string]bool{
	"application/pdf": true,
	"text/plain":      true,
	"text/markdown":   true,
	"text/html":       true,
}

// DetectMIMEType maps a filename to the MIME type sent to the backend
func DetectMIMEType(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return "application/pdf"
	case ".md", ".markdown":
		return "text/markdown"
	case ".html", ".htm":
		return "text/html"
	default:
		return "text/plain"
	}
}

// convertUploads turns file uploads into document source descriptors.
// Conversion is order-independent so it fans out, but results are
// re-joined in the original input order.
func convertUploads(ctx context.Context, uploads []domain.DocumentUpload) ([]domain.SourceDescriptor, error) {
	out := make([]domain.SourceDescriptor, len(uploads))

	g, ctx := errgroup.WithContext(ctx)
	for i, up := range uploads {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if len(up.Data) == 0 {
				return fmt.Errorf("empty document payload: %s", up.Filename)
			}
			mimeType := up.MIMEType
			if mimeType == "" {
				mimeType = DetectMIMEType(up.Filename)
			}
			if !supportedMIMETypes[mimeType] {
				return fmt.Errorf("unsupported document type %q: %s", mimeType, up.Filename)
			}
			out[i] = domain.DocumentSource(up.Data, mimeType)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
