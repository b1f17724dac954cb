package media

import (
	_ "image/jpeg"
	_ "image/png"
	"path/filepath"
	"strings"
)

var registrationImageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true,
}

// IsRegistrationImage checks if the filename has an extension accepted for face registration
func IsRegistrationImage(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return registrationImageExtensions[ext]
}

// PersonIDFromFilename derives a person ID from a registration photo name,
// e.g. "E001_Alice Smith.jpg" -> ("E001", "Alice Smith"). Names without an
// underscore use the whole stem for both.
func PersonIDFromFilename(filename string) (personID, name string) {
	stem := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	id, rest, ok := strings.Cut(stem, "_")
	if !ok || strings.TrimSpace(rest) == "" {
		return stem, stem
	}
	return id, strings.TrimSpace(strings.ReplaceAll(rest, "_", " "))
}
