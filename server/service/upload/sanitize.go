package upload

import (
	"path/filepath"
	"strings"
)

// maxFileNameLength is the longest file name most filesystems accept.
const maxFileNameLength = 255

var unsafeNameChars = strings.NewReplacer(
	"/", "_", "\\", "_",
	"<", "_", ">", "_", ":", "_", "\"", "_", "|", "_", "?", "_", "*", "_",
)

// SanitizeFileName makes an uploaded file name safe to join to a directory.
// Separators and reserved characters become "_"; an empty name becomes
// fallback. Names longer than maxLength keep their extension.
func SanitizeFileName(name, fallback string, maxLength int) string {
	if name == "" {
		name = fallback
	}
	name = strings.TrimSpace(unsafeNameChars.Replace(name))
	if name == "" || name == "." || name == ".." {
		name = fallback
	}
	if len(name) <= maxLength {
		return name
	}

	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	remain := maxLength - len(ext)
	if remain <= 0 {
		return truncateBytes(stem+ext, maxLength)
	}
	return truncateBytes(stem, remain) + ext
}

// truncateBytes cuts s to at most n bytes without splitting a UTF-8 rune.
func truncateBytes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func utf8RuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
