package helpers

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var sanRegex = regexp.MustCompile(`[\/:*?"><|]`)

// Sanitise cleans a filename by replacing invalid characters.
func Sanitise(filename string) string {
	san := sanRegex.ReplaceAllString(filename, "_")
	return strings.TrimRight(san, " \t.")
}

// BuildFileName joins a creator and title into a sanitized "Creator - Title.ext"
// name, truncated by runes to maxLen (default 120) before the extension.
func BuildFileName(creator, title, ext string, maxLen ...int) string {
	limit := 120
	if len(maxLen) > 0 && maxLen[0] > 0 {
		limit = maxLen[0]
	}
	base := strings.TrimSpace(title)
	if c := strings.TrimSpace(creator); c != "" {
		base = c + " - " + base
	}
	runes := []rune(base)
	if len(runes) > limit {
		base = string(runes[:limit])
	}
	return Sanitise(base) + ext
}

// MakeDirs creates directories recursively.
func MakeDirs(path string) error {
	return os.MkdirAll(path, 0755)
}

// FileExists checks if a file (not directory) exists at the given path.
func FileExists(path string) (bool, error) {
	f, err := os.Stat(path)
	if err == nil {
		return !f.IsDir(), nil
	} else if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// ValidatePath checks that a path does not contain dangerous characters.
func ValidatePath(path string) error {
	if strings.ContainsAny(path, "\x00\n\r") {
		return fmt.Errorf("path contains invalid characters")
	}
	return nil
}

// ReplaceExt swaps the extension of path for ext (which includes the dot).
func ReplaceExt(path, ext string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ext
}

// CalculateLocalSize walks the directory tree and calculates total size in bytes.
func CalculateLocalSize(localPath string) int64 {
	var totalSize int64
	_ = filepath.Walk(localPath, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() {
			totalSize += info.Size()
		}
		return nil
	})
	return totalSize
}
