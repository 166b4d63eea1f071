package model

import "time"

// Operation types accepted by the service.
const (
	OperationMerge    = "merge"
	OperationSplit    = "split"
	OperationCompress = "compress"
)

// Operation statuses. An operation is created as 'processing' and moves to
// exactly one terminal state.
const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Operation is one PDF operation performed by a user. OperationDate is the UTC
// calendar day the operation started, fixed at creation; the daily quota is
// the count of rows sharing (user_id, operation_date).
type Operation struct {
	ID            string     `db:"id" json:"id"`
	UserID        string     `db:"user_id" json:"user_id"`
	Type          string     `db:"type" json:"type"`
	Filename      string     `db:"filename" json:"filename"`
	FileSizeBytes int64      `db:"file_size" json:"file_size"`
	Status        string     `db:"status" json:"status"`
	OperationDate string     `db:"operation_date" json:"operation_date"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	CompletedAt   *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	ErrorMessage  *string    `db:"error_message" json:"error_message,omitempty"`
}

// IsTerminal reports whether the operation has been finalized.
func (o *Operation) IsTerminal() bool {
	return o.Status == StatusCompleted || o.Status == StatusFailed
}

// ValidOperationType reports whether t names a supported PDF operation.
func ValidOperationType(t string) bool {
	switch t {
	case OperationMerge, OperationSplit, OperationCompress:
		return true
	}
	return false
}
