package file

import (
	"path/filepath"
	"strings"
)

// AppendToName inserts suffix between the file name and its extension.
// e.g. AppendToName("dir/directors.csv", "_inafrikaans") -> "dir/directors_inafrikaans.csv"
func AppendToName(path, suffix string) string {
	if path == "" {
		return path
	}

	dir := filepath.Dir(path)
	filename := filepath.Base(path)

	lastDot := strings.LastIndex(filename, ".")
	if lastDot <= 0 {
		return filepath.Join(dir, filename+suffix)
	}

	return filepath.Join(dir, filename[:lastDot]+suffix+filename[lastDot:])
}

// ReplaceExt swaps the extension of path for ext (with or without leading dot).
func ReplaceExt(path, ext string) string {
	if path == "" {
		return path
	}

	dir := filepath.Dir(path)
	filename := filepath.Base(path)

	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}

	lastDot := strings.LastIndex(filename, ".")
	if lastDot <= 0 {
		return filepath.Join(dir, filename+ext)
	}

	return filepath.Join(dir, filename[:lastDot]+ext)
}
