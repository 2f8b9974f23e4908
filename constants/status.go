package constants

// JobStatus is the canonical status for rows in jobs.
type JobStatus string

// Stable values (store these exact strings in DB).
const (
	JobStatusPending   JobStatus = "pending"   // created, waiting for its batch driver
	JobStatusRunning   JobStatus = "running"   // executor owns the row
	JobStatusCompleted JobStatus = "completed" // terminal, artifacts written
	JobStatusFailed    JobStatus = "failed"    // terminal, error_message set
)

// IsTerminal reports whether no further executor transition may leave s.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// BatchStatus is derived from member jobs and never stored on its own.
type BatchStatus string

const (
	BatchStatusPending   BatchStatus = "pending"
	BatchStatusRunning   BatchStatus = "running"
	BatchStatusCompleted BatchStatus = "completed"
	BatchStatusFailed    BatchStatus = "failed"
	BatchStatusPartial   BatchStatus = "partial"
)

// IsTerminal reports whether every member job has finished.
func (s BatchStatus) IsTerminal() bool {
	return s == BatchStatusCompleted || s == BatchStatusFailed || s == BatchStatusPartial
}
