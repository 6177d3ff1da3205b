// Package reference decides which calibration artifact a stage consumes.
package reference

import (
	"errors"
	"fmt"

	"github.com/dukex/ifured/pkg/artifact"
)

var (
	ErrNoSubjects   = errors.New("no subjects to resolve a reference from")
	ErrNoReferences = errors.New("reference list is empty")
)

type mode int

const (
	modeDefaultToFirstSubject mode = iota
	modeExplicit
)

// Reference is either Explicit(key) or DefaultToFirstSubject. The zero
// value is DefaultToFirstSubject.
type Reference struct {
	mode mode
	key  string
}

func Explicit(key string) Reference {
	return Reference{mode: modeExplicit, key: key}
}

func DefaultToFirstSubject() Reference {
	return Reference{mode: modeDefaultToFirstSubject}
}

// FromOverride maps an optional override to a Reference; "" means no override.
func FromOverride(override string) Reference {
	if override == "" {
		return DefaultToFirstSubject()
	}
	return Explicit(override)
}

func (r Reference) IsExplicit() bool {
	return r.mode == modeExplicit
}

func (r Reference) String() string {
	if r.IsExplicit() {
		return "explicit:" + r.key
	}
	return "first-subject"
}

// Resolve returns the explicit key unchanged, or the first subject of the
// batch. The whole batch shares one reference either way.
func Resolve(role artifact.Role, ref Reference, subjects []string) (string, error) {
	if ref.IsExplicit() {
		return ref.key, nil
	}
	if len(subjects) == 0 {
		return "", fmt.Errorf("resolve %s reference: %w", role, ErrNoSubjects)
	}
	return subjects[0], nil
}

// First returns position 0 of a reference list. Single-reference stages
// never look past it.
func First(role artifact.Role, refs []string) (string, error) {
	if len(refs) == 0 {
		return "", fmt.Errorf("%s reference: %w", role, ErrNoReferences)
	}
	return refs[0], nil
}

// MissingReferenceError reports a resolved reference that is not on disk.
type MissingReferenceError struct {
	Role artifact.Role
	Name string
	Path string
}

func (e *MissingReferenceError) Error() string {
	return fmt.Sprintf("missing %s reference %s (%s)", e.Role, e.Name, e.Path)
}

// Checker reports whether an engine-relative path exists.
type Checker interface {
	ExistsPath(path string) bool
}

// Require fails with a MissingReferenceError for the first absent key.
func Require(store *artifact.Store, role artifact.Role, keys ...artifact.Key) error {
	for _, key := range keys {
		if !store.Exists(key) {
			return &MissingReferenceError{Role: role, Name: key.Name(), Path: store.Path(key)}
		}
	}
	return nil
}

// RequirePath is Require for calibration files addressed by path.
func RequirePath(checker Checker, role artifact.Role, name, path string) error {
	if !checker.ExistsPath(path) {
		return &MissingReferenceError{Role: role, Name: name, Path: path}
	}
	return nil
}
