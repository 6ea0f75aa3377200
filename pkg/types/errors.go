package types

import (
	"errors"
	"strings"
)

// Domain errors for type validation
var (
	ErrEmptyName       = errors.New("project name cannot be empty")
	ErrNameTooLong     = errors.New("project name exceeds 255 characters")
	ErrInvalidName     = errors.New("project name contains path separators")
	ErrEmptyFeature    = errors.New("feature cannot be empty")
	ErrEmptyStep       = errors.New("step cannot be empty")
	ErrEmptyProblem    = errors.New("issue problem cannot be empty")
	ErrEmptyAnchorKey  = errors.New("anchor key cannot be empty")
	ErrEmptyFilePath   = errors.New("key file path cannot be empty")
	ErrInvalidPriority = errors.New("anchor priority must be 1, 2, or 3")
)

// MaxNameLength is the longest allowed project name.
const MaxNameLength = 255

// ValidateName checks a project name for use as a storage key. Names become
// file names in the file backend, so path separators are rejected outright.
func ValidateName(name string) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return ErrEmptyName
	}
	if len(name) > MaxNameLength {
		return ErrNameTooLong
	}
	if strings.ContainsAny(name, "/\\") || name == "." || name == ".." {
		return ErrInvalidName
	}
	return nil
}

// Validate checks an anchor before it is attached to a project.
func (a *ContextAnchor) Validate() error {
	if strings.TrimSpace(a.Key) == "" {
		return ErrEmptyAnchorKey
	}
	if a.Priority < PriorityHigh || a.Priority > PriorityLow {
		return ErrInvalidPriority
	}
	return nil
}

// Validate checks a key file before it is attached to a project.
func (k *KeyFile) Validate() error {
	if strings.TrimSpace(k.Path) == "" {
		return ErrEmptyFilePath
	}
	return nil
}

// Validate checks an issue before it is attached to a project.
func (i *Issue) Validate() error {
	if strings.TrimSpace(i.Problem) == "" {
		return ErrEmptyProblem
	}
	return nil
}
