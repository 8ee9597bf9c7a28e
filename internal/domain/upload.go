package domain

import "github.com/google/uuid"

// UploadStatus is the outcome reported to the client for one uploaded file.
type UploadStatus string

const (
	UploadStored    UploadStatus = "stored"
	UploadDuplicate UploadStatus = "duplicate"
	UploadConflict  UploadStatus = "conflict"
	UploadCancelled UploadStatus = "cancelled"
	UploadFailed    UploadStatus = "error"
)

// Decision is the user's answer to a conflicting upload.
type Decision string

const (
	DecisionReplace Decision = "replace"
	DecisionMerge   Decision = "merge"
	DecisionCancel  Decision = "cancel"
)

// ModifiedRow pairs a stored row with the incoming row sharing its key.
type ModifiedRow struct {
	Old Row `json:"old"`
	New Row `json:"new"`
}

// Diff classifies every row of an incoming file against a stored file.
type Diff struct {
	Added          []Row         `json:"added"`
	Removed        []Row         `json:"removed"`
	Modified       []ModifiedRow `json:"modified"`
	UnchangedCount int           `json:"unchanged"`
}

// UploadOutcome is the result of processing one uploaded file.
// PendingID and Diff are set only when Status is UploadConflict.
// FileID is set when the file was stored or is a duplicate of a stored file.
type UploadOutcome struct {
	Filename  string       `json:"filename"`
	Status    UploadStatus `json:"status"`
	FileID    *uuid.UUID   `json:"file_id,omitempty"`
	PendingID *uuid.UUID   `json:"pending_id,omitempty"`
	RowCount  int          `json:"row_count"`
	Diff      *Diff        `json:"diff,omitempty"`
	Error     string       `json:"error,omitempty"`
}
