package pdf

import (
	"bytes"
	"fmt"

	ledongthuc "github.com/ledongthuc/pdf"
)

// PageCount parses just enough of the document to count pages. Returns
// ErrInvalidPDF for anything the parser rejects, which covers corrupt,
// truncated, and password-protected inputs.
func PageCount(data []byte) (n int, err error) {
	// The parser panics on some malformed cross-reference tables; treat that
	// the same as a parse error.
	defer func() {
		if r := recover(); r != nil {
			n = 0
			err = fmt.Errorf("%w: %v", ErrInvalidPDF, r)
		}
	}()

	reader, err := ledongthuc.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidPDF, err)
	}
	return reader.NumPage(), nil
}

// Validate confirms the bytes are a readable PDF with at least one page.
func Validate(f File) error {
	n, err := PageCount(f.Data)
	if err != nil {
		return fmt.Errorf("%s: %w", f.Name, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w: no pages", f.Name, ErrInvalidPDF)
	}
	return nil
}
