package pipeline

import (
	"bytes"
	"io"
	"os"

	"github.com/joseph-ayodele/lease-intake/constants"
	"github.com/joseph-ayodele/lease-intake/internal/llm"
)

// Opener yields the document bytes. It may be called at most once per task.
type Opener func() (io.ReadCloser, error)

// BytesBlob serves an in-memory upload.
func BytesBlob(b []byte) Opener {
	return func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(b)), nil
	}
}

// FileBlob serves a file already on disk.
func FileBlob(path string) Opener {
	return func() (io.ReadCloser, error) {
		return os.Open(path)
	}
}

// DocumentTask is one uploaded document with its caller-assigned position.
type DocumentTask struct {
	Index   int
	Name    string
	DocType string
	Blob    Opener
}

// Outcome is the result of one task. Err == nil means success.
type Outcome struct {
	Index    int
	Name     string
	UniqueID string
	Payload  llm.Payload
	State    constants.TaskState
	Err      error
}

func (o Outcome) Succeeded() bool { return o.Err == nil }
