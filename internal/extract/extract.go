// Package extract converts uploaded file bytes into plain text for
// ingestion.
package extract

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/cognidex/cognidex/internal/errors"
)

// AllowedExtensions lists the upload file types accepted by the pipeline.
var AllowedExtensions = []string{".txt", ".md", ".pdf"}

// Allowed reports whether the extension (with leading dot, any case) is an
// accepted upload type.
func Allowed(ext string) bool {
	ext = strings.ToLower(ext)
	for _, a := range AllowedExtensions {
		if ext == a {
			return true
		}
	}
	return false
}

// Text extracts plain text from file bytes based on the extension.
//
// Plain-text formats are decoded as UTF-8. PDF extraction is delegated to
// an external collaborator in front of this pipeline; receiving raw PDF
// bytes here is an extraction failure, not a crash.
func Text(data []byte, ext string) (string, error) {
	ext = strings.ToLower(ext)
	switch ext {
	case ".txt", ".md":
		if !utf8.Valid(data) {
			return "", errors.New(errors.ErrCodeExtractionFailed,
				fmt.Sprintf("%s file is not valid UTF-8", ext), nil)
		}
		return string(data), nil
	case ".pdf":
		return "", errors.New(errors.ErrCodeExtractionFailed,
			"pdf extraction requires the upstream extraction service", nil)
	default:
		return "", errors.ValidationError(fmt.Sprintf("file type %s not allowed", ext), nil)
	}
}
