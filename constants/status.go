package constants

// TaskState is the position of a document in the per-document pipeline.
type TaskState string

const (
	TaskReceived   TaskState = "RECEIVED"
	TaskSaved      TaskState = "SAVED"
	TaskExtracted  TaskState = "EXTRACTED"
	TaskStructured TaskState = "STRUCTURED"
	TaskNormalized TaskState = "NORMALIZED"
	TaskStaged     TaskState = "STAGED"
	TaskSucceeded  TaskState = "SUCCEEDED"
	TaskFailed     TaskState = "FAILED" // absorbing
)

// Terminal reports whether no further transition can happen.
func (s TaskState) Terminal() bool {
	return s == TaskSucceeded || s == TaskFailed
}

const (
	FinalizedStatus      = "finalized"
	FinalizedMetadataKey = "finalized"
	FinalizedMarker      = "true"
)
