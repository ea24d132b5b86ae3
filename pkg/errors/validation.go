package errors

import (
	"strings"
	"unicode"
)

// maxArtifactNameLength bounds artifact filenames; most filesystems cap a
// single path component at 255 bytes.
const maxArtifactNameLength = 255

// ValidateArtifactName validates an artifact filename taken from a remote index
// before it is joined onto a local path or an upstream URL.
//
// The remote index is authoritative for *which* artifacts exist but not
// trusted for *where* they land, so the rules are conservative:
//   - No empty names
//   - No control characters or null bytes
//   - No path separators or traversal sequences
//   - No leading dot (hidden files, "." and "..")
//   - Maximum length of 255 characters
func ValidateArtifactName(name string) error {
	if name == "" {
		return New(ErrCodeInvalidArtifact, "artifact name cannot be empty")
	}

	if len(name) > maxArtifactNameLength {
		return New(ErrCodeInvalidArtifact, "artifact name too long (max %d characters)", maxArtifactNameLength)
	}

	for _, r := range name {
		if unicode.IsControl(r) {
			return New(ErrCodeInvalidArtifact, "artifact name contains invalid control characters")
		}
	}

	if strings.ContainsAny(name, "/\\") {
		return New(ErrCodeInvalidArtifact, "artifact name cannot contain path separators: %q", name)
	}

	if strings.HasPrefix(name, ".") {
		return New(ErrCodeInvalidArtifact, "artifact name cannot start with a dot: %q", name)
	}

	return nil
}

// ValidatePath validates a file path relative to a storage root.
// It prevents path traversal attacks and ensures reasonable path length.
//
// Validation rules:
//   - Path cannot be empty
//   - Maximum length of 500 characters
//   - No null bytes or control characters
//   - No absolute paths (must be relative)
//   - No path traversal sequences (..)
//   - No backslashes (Windows-style paths)
func ValidatePath(path string) error {
	if path == "" {
		return New(ErrCodeInvalidPath, "path cannot be empty")
	}

	const maxPathLength = 500
	if len(path) > maxPathLength {
		return New(ErrCodeInvalidPath, "path too long (max %d characters)", maxPathLength)
	}

	for _, r := range path {
		if r == '\x00' || unicode.IsControl(r) {
			return New(ErrCodeInvalidPath, "path contains invalid characters")
		}
	}

	if strings.HasPrefix(path, "/") {
		return New(ErrCodeInvalidPath, "path must be relative (cannot start with /)")
	}

	if strings.Contains(path, "..") {
		return New(ErrCodeInvalidPath, "path cannot contain path traversal sequences (..)")
	}

	if strings.Contains(path, "\\") {
		return New(ErrCodeInvalidPath, "path cannot contain backslashes")
	}

	return nil
}

// ValidateURL validates a URL string for safety.
// It ensures the URL has a safe scheme (http or https).
func ValidateURL(rawURL string) error {
	if rawURL == "" {
		return New(ErrCodeInvalidInput, "URL cannot be empty")
	}

	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		return New(ErrCodeInvalidInput, "URL must use http or https scheme")
	}

	return nil
}
