package pdf

import (
	"errors"
	"reflect"
	"testing"
)

func TestParsePageRange(t *testing.T) {
	tests := []struct {
		expr       string
		totalPages int
		want       []int
	}{
		{"1-3", 10, []int{1, 2, 3}},
		{"3", 10, []int{3}},
		{"8-15", 10, []int{8, 9, 10}}, // end clamped to document
		{"0-2", 10, []int{1, 2}},      // start clamped to 1
		{" 2 - 4 ", 10, []int{2, 3, 4}},
		{"12", 10, nil}, // out-of-range single page selects nothing
	}
	for _, tt := range tests {
		got, err := ParsePageRange(tt.expr, tt.totalPages)
		if err != nil {
			t.Fatalf("ParsePageRange(%q): %v", tt.expr, err)
		}
		if !reflect.DeepEqual(got, tt.want) {
			t.Fatalf("ParsePageRange(%q) = %v, want %v", tt.expr, got, tt.want)
		}
	}
}

func TestParsePageRangeRejectsGarbage(t *testing.T) {
	for _, expr := range []string{"abc", "1-x", "-", ""} {
		if _, err := ParsePageRange(expr, 10); err == nil {
			t.Fatalf("ParsePageRange(%q) should fail", expr)
		}
	}
}

func TestValidatePageRanges(t *testing.T) {
	if err := ValidatePageRanges([]string{"1-2", "5"}, 10); err != nil {
		t.Fatalf("valid ranges rejected: %v", err)
	}
	if err := ValidatePageRanges(nil, 10); err == nil {
		t.Fatal("empty range list should be rejected")
	}
	if err := ValidatePageRanges([]string{"12"}, 10); err == nil {
		t.Fatal("range selecting no pages should be rejected")
	}
}

func TestValidateRejectsNonPDF(t *testing.T) {
	err := Validate(File{Name: "not.pdf", Data: []byte("this is not a pdf")})
	if !errors.Is(err, ErrInvalidPDF) {
		t.Fatalf("expected ErrInvalidPDF, got %v", err)
	}
}

func TestPageCountRejectsEmptyInput(t *testing.T) {
	if _, err := PageCount(nil); !errors.Is(err, ErrInvalidPDF) {
		t.Fatalf("expected ErrInvalidPDF for empty input, got %v", err)
	}
}
