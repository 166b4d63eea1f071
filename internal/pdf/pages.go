package pdf

import (
	"fmt"
	"strconv"
	"strings"
)

// ParsePageRange expands a range expression like "1-5" or "3" into 1-based
// page numbers, clamped to [1, totalPages]. Out-of-range single pages are
// dropped rather than erroring, matching the tolerant client behavior.
func ParsePageRange(rangeExpr string, totalPages int) ([]int, error) {
	var pages []int

	if strings.Contains(rangeExpr, "-") {
		parts := strings.SplitN(rangeExpr, "-", 2)
		start, err := strconv.Atoi(strings.TrimSpace(parts[0]))
		if err != nil {
			return nil, fmt.Errorf("invalid page range %q: %w", rangeExpr, err)
		}
		end, err := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil {
			return nil, fmt.Errorf("invalid page range %q: %w", rangeExpr, err)
		}
		if start < 1 {
			start = 1
		}
		if end > totalPages {
			end = totalPages
		}
		for i := start; i <= end; i++ {
			pages = append(pages, i)
		}
	} else {
		n, err := strconv.Atoi(strings.TrimSpace(rangeExpr))
		if err != nil {
			return nil, fmt.Errorf("invalid page number %q: %w", rangeExpr, err)
		}
		if n >= 1 && n <= totalPages {
			pages = append(pages, n)
		}
	}

	return pages, nil
}

// ValidatePageRanges checks every range expression against the document's
// page count, requiring at least one selected page per range.
func ValidatePageRanges(ranges []string, totalPages int) error {
	if len(ranges) == 0 {
		return fmt.Errorf("at least one page range is required")
	}
	for _, r := range ranges {
		pages, err := ParsePageRange(r, totalPages)
		if err != nil {
			return err
		}
		if len(pages) == 0 {
			return fmt.Errorf("page range %q selects no pages (document has %d)", r, totalPages)
		}
	}
	return nil
}
