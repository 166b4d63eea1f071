// Package pdf defines the document-processing collaborator: the byte-level
// merge/split/compress work is delegated to an external service, this package
// owns the contract, input sanity checks, and page-range parsing.
package pdf

import (
	"context"
	"errors"
)

// ErrInvalidPDF is returned when an input cannot be read as a PDF (corrupt,
// encrypted, or not a PDF at all).
var ErrInvalidPDF = errors.New("invalid or unreadable PDF")

// File is an input document.
type File struct {
	Name string
	Data []byte
}

// OutputFile is one produced document (split yields several).
type OutputFile struct {
	Name string `json:"name"`
	Data []byte `json:"data"`
}

// DocumentProcessor performs the PDF byte manipulation. Implementations throw
// on malformed, encrypted, or corrupt input; callers catch and finalize the
// operation as failed.
type DocumentProcessor interface {
	Merge(ctx context.Context, files []File) ([]byte, error)
	Split(ctx context.Context, file File, pageRanges []string) ([]OutputFile, error)
	Compress(ctx context.Context, file File, quality float64) ([]byte, error)
}
