package utils

import (
	"path/filepath"
	"regexp"
	"strings"
)

var reUnsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

// SanitizeFilename returns an ASCII-only name that is safe as a single path
// segment. It may return "" for names made only of unsafe characters.
func SanitizeFilename(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r == '/' || r == '\\':
			b.WriteByte(' ')
		case r < 0x80:
			b.WriteRune(r)
		}
	}
	s := strings.Join(strings.Fields(b.String()), "_")
	s = reUnsafeNameChars.ReplaceAllString(s, "")
	return strings.Trim(s, "._")
}

// StoredName joins id and the sanitized original name, capped at maxLen
// bytes while keeping the original extension.
func StoredName(id, original string, maxLen int) string {
	clean := SanitizeFilename(original)
	name := id
	if clean != "" {
		name = id + "_" + clean
	}
	if maxLen <= 0 || len(name) <= maxLen {
		return name
	}
	ext := filepath.Ext(clean)
	if len(ext) >= maxLen {
		return name[:maxLen]
	}
	return name[:maxLen-len(ext)] + ext
}
