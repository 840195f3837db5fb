package errors

import (
	"strings"
	"unicode"
)

const (
	maxPathLength    = 4096
	maxLibraryLength = 255
)

// ValidateArtifactPath validates a user supplied artifact path.
//
// Validation rules:
//   - Path cannot be empty or only whitespace
//   - Maximum length of 4096 characters
//   - No null bytes or control characters
func ValidateArtifactPath(path string) error {
	if strings.TrimSpace(path) == "" {
		return New(ErrCodeInvalidInput, "artifact path cannot be empty")
	}

	if len(path) > maxPathLength {
		return New(ErrCodeInvalidInput, "artifact path too long (max %d characters)", maxPathLength)
	}

	for _, r := range path {
		if unicode.IsControl(r) {
			return New(ErrCodeInvalidInput, "artifact path contains invalid characters")
		}
	}

	return nil
}

// ValidateLibraryName validates a declared dependency name as read from an
// artifact. A name that fails here is a malformed declaration.
//
// Names may contain a slash; the loader then treats them as paths.
func ValidateLibraryName(name string) error {
	if name == "" {
		return New(ErrCodeEvaluation, "dependency name is empty")
	}

	if len(name) > maxLibraryLength {
		return New(ErrCodeEvaluation, "dependency name too long (max %d characters)", maxLibraryLength)
	}

	for _, r := range name {
		if unicode.IsControl(r) {
			return New(ErrCodeEvaluation, "dependency name contains invalid control characters")
		}
	}

	if name == "." || name == ".." || strings.HasSuffix(name, "/") {
		return New(ErrCodeEvaluation, "dependency name %q does not name a file", name)
	}

	return nil
}
