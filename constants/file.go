package constants

import "strings"

// FileType is the detected type of an uploaded framework document.
type FileType string

const (
	FileTypePDF  FileType = "pdf"
	FileTypeCSV  FileType = "csv"
	FileTypeXLSX FileType = "xlsx"
	FileTypeXLS  FileType = "xls"
	FileTypeJSON FileType = "json"
	FileTypeTXT  FileType = "txt"
)

// AllowedExtensions holds the default allowed file extensions for uploads.
var AllowedExtensions = map[string]FileType{
	"pdf":  FileTypePDF,
	"csv":  FileTypeCSV,
	"xlsx": FileTypeXLSX,
	"xls":  FileTypeXLS,
	"json": FileTypeJSON,
	"txt":  FileTypeTXT,
}

// MaxUploadSizeDefault is 10MB.
const MaxUploadSizeDefault = 10 << 20

// PreviewChars bounds the stored preview of extracted text.
const PreviewChars = 500

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// MapExtToFileType returns the file type for ext, which may carry a leading dot.
func MapExtToFileType(ext string) (FileType, bool) {
	ft, ok := AllowedExtensions[NormalizeExt(ext)]
	return ft, ok
}

// AllowedExtensionList returns the allowed extensions as ".ext" strings in a stable order.
func AllowedExtensionList() []string {
	return []string{".pdf", ".csv", ".xlsx", ".xls", ".json", ".txt"}
}
