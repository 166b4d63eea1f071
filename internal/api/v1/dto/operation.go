package dto

import "time"

// OperationResponseDTO is returned for single operations and history listings.
type OperationResponseDTO struct {
	ID            string     `json:"id"`
	Type          string     `json:"type"`
	Filename      string     `json:"filename"`
	FileSize      int64      `json:"fileSize"`
	Status        string     `json:"status"`
	OperationDate string     `json:"operationDate"`
	CreatedAt     time.Time  `json:"createdAt"`
	CompletedAt   *time.Time `json:"completedAt,omitempty"`
	ErrorMessage  *string    `json:"errorMessage,omitempty"`
}

// OperationListResponseDTO wraps the history listing.
type OperationListResponseDTO struct {
	Operations []OperationResponseDTO `json:"operations"`
}

// SplitFileDTO is one output document of a split, downloadable for a short
// window.
type SplitFileDTO struct {
	Name        string `json:"name"`
	DownloadURL string `json:"downloadUrl"`
	Size        int64  `json:"size"`
}

// SplitResponseDTO is the body returned for completed split operations.
type SplitResponseDTO struct {
	Files []SplitFileDTO `json:"files"`
}

// ErrorResponseDTO is the JSON error envelope for quota and processing
// failures. Remaining is set on quota denials.
type ErrorResponseDTO struct {
	Error     string `json:"error"`
	Message   string `json:"message,omitempty"`
	Remaining *int   `json:"remaining,omitempty"`
}
