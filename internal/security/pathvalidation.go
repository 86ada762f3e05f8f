// Package security guards filesystem operations whose paths are built from
// operator input.
package security

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrOutsideDirectory reports a path that escapes its base directory.
var ErrOutsideDirectory = errors.New("path escapes base directory")

// ValidatePathWithinDirectory checks that filePath lies strictly inside
// baseDir once both are cleaned. The check is lexical so it applies equally
// to the OS and in-memory filesystems; baseDir itself is rejected because
// callers use the result as a target for RemoveAll and Rename.
func ValidatePathWithinDirectory(filePath, baseDir string) error {
	rel, err := filepath.Rel(filepath.Clean(baseDir), filepath.Clean(filePath))
	if err != nil {
		return fmt.Errorf("%w: %s not under %s: %v", ErrOutsideDirectory, filePath, baseDir, err)
	}
	if rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("%w: %s not under %s", ErrOutsideDirectory, filePath, baseDir)
	}
	return nil
}

// ValidateName checks that name is usable as a single path element.
func ValidateName(name string) error {
	switch {
	case name == "", name == ".", name == "..":
		return fmt.Errorf("invalid name %q", name)
	case strings.ContainsAny(name, `/\`):
		return fmt.Errorf("invalid name %q: contains a path separator", name)
	}
	return nil
}
