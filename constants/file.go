package constants

import "strings"

// FileFormat is the coarse format used to pick an extraction path.
type FileFormat string

const (
	PDF   FileFormat = "PDF"
	IMAGE FileFormat = "IMAGE"
	TEXT  FileFormat = "TEXT"
)

// AllowedExtensions holds the file extensions accepted for ingestion.
var AllowedExtensions = map[string]struct{}{
	"pdf":  {},
	"png":  {},
	"jpg":  {},
	"jpeg": {},
	"tif":  {},
	"tiff": {},
	"heic": {},
	"heif": {},
	"txt":  {},
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// MapExtToFormat returns "" for extensions we cannot extract text from.
func MapExtToFormat(ext string) FileFormat {
	switch NormalizeExt(ext) {
	case "pdf":
		return PDF
	case "png", "jpg", "jpeg", "tif", "tiff", "heic", "heif":
		return IMAGE
	case "txt":
		return TEXT
	default:
		return ""
	}
}

func IsHEICExt(ext string) bool {
	switch NormalizeExt(ext) {
	case "heic", "heif", "heics", "heifs":
		return true
	}
	return false
}
