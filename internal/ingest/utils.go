package ingest

import (
	"path/filepath"
	"strings"

	"github.com/joseph-ayodele/lease-intake/constants"
)

// lockPrefix marks owner files Office drops next to a document being edited.
const lockPrefix = "~$"

// AllowedExt checks if a file extension is one we can extract text from.
func AllowedExt(ext string) bool {
	_, ok := constants.AllowedExtensions[constants.NormalizeExt(ext)]
	return ok
}

// IsHidden reports dot files and dot directories.
func IsHidden(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".")
}

// Eligible reports whether a file under the drop folder should be ingested.
// Lock files are skipped even when their extension is supported.
func Eligible(path string) bool {
	base := filepath.Base(path)
	if IsHidden(base) || strings.HasPrefix(base, lockPrefix) {
		return false
	}
	return AllowedExt(filepath.Ext(base))
}
