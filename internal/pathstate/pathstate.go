// Package pathstate provides phantom-typed filesystem path wrappers so that
// downstream code never has to re-derive "does this exist, and what is it"
// with an ad hoc os.Stat call scattered through business logic. Every
// constructor classifies the path at call time and returns a typed error
// (see internal/kierrors) if the path's actual state disagrees with what the
// caller asked for. No function in this package returns a bare string path.
//
// The tags are distinct named types, not an interface hierarchy: EmptyDir is
// not a subtype of ExtantDir. A directory that starts out empty can be
// written to by other code later, so holding a stale EmptyDir value must not
// silently keep behaving like one; widening to ExtantDir is an explicit,
// one-way conversion.
package pathstate

import (
	"os"
	"path/filepath"

	"github.com/kiproject/ki/internal/kierrors"
)

// ExtantFile is a path known to have resolved to a regular file.
type ExtantFile string

// ExtantDir is a path known to have resolved to a directory.
type ExtantDir string

// EmptyDir is a path known to have resolved to a directory with no entries.
// It is deliberately not an ExtantDir so a write cannot silently keep the tag
// alive; call Widen to acknowledge the downgrade in guarantee explicitly.
type EmptyDir string

// NoPath is a path known not to exist at all (not even a broken symlink).
type NoPath string

// Widen converts an EmptyDir to the weaker ExtantDir guarantee. Use this
// immediately before a write that may populate the directory.
func (d EmptyDir) Widen() ExtantDir { return ExtantDir(d) }

func (f ExtantFile) String() string { return string(f) }
func (d ExtantDir) String() string  { return string(d) }
func (d EmptyDir) String() string   { return string(d) }
func (p NoPath) String() string     { return string(p) }

// Resolve classifies path, returning the matching typed error from
// kierrors when the caller's expectation (encoded by which constructor is
// called downstream) does not hold. Resolve itself never errors on a path
// that's merely absent or a directory — callers pick the specific
// constructor for what they need.
func resolve(path string) (isDir bool, isRegular bool, exists bool, err error) {
	info, statErr := os.Lstat(path)
	if statErr != nil {
		if os.IsNotExist(statErr) {
			return false, false, false, nil
		}
		return false, false, false, statErr
	}
	mode := info.Mode()
	switch {
	case mode.IsDir():
		return true, false, true, nil
	case mode.IsRegular():
		return false, true, true, nil
	default:
		return false, false, true, &kierrors.StrangePath{Path: path}
	}
}

// NewExtantFile resolves path and requires it be a regular file.
func NewExtantFile(path string) (ExtantFile, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	isDir, isRegular, exists, err := resolve(abs)
	if err != nil {
		return "", err
	}
	if !exists {
		return "", &kierrors.MissingFile{Path: abs, What: "expected extant file"}
	}
	if isDir {
		return "", &kierrors.ExpectedFileButGotDirectory{Path: abs}
	}
	if !isRegular {
		return "", &kierrors.StrangePath{Path: abs}
	}
	return ExtantFile(abs), nil
}

// NewExtantDir resolves path and requires it be a directory (empty or not).
func NewExtantDir(path string) (ExtantDir, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	isDir, _, exists, err := resolve(abs)
	if err != nil {
		return "", err
	}
	if !exists {
		return "", &kierrors.MissingDirectory{Path: abs, What: "expected extant directory"}
	}
	if !isDir {
		return "", &kierrors.ExpectedDirectoryButGotFile{Path: abs}
	}
	return ExtantDir(abs), nil
}

// NewEmptyDir resolves path and requires it be a directory with zero entries.
func NewEmptyDir(path string) (EmptyDir, error) {
	dir, err := NewExtantDir(path)
	if err != nil {
		return "", err
	}
	entries, err := os.ReadDir(string(dir))
	if err != nil {
		return "", err
	}
	if len(entries) != 0 {
		return "", &kierrors.ExpectedEmptyDirectoryButNonEmpty{Path: string(dir)}
	}
	return EmptyDir(dir), nil
}

// NewNoPath resolves path and requires that nothing exists there.
func NewNoPath(path string) (NoPath, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	_, _, exists, err := resolve(abs)
	if err != nil {
		return "", err
	}
	if exists {
		return "", &kierrors.TargetExists{Path: abs}
	}
	return NoPath(abs), nil
}

// EnsureEmptyDirOrNoPath accepts either a NoPath (which it creates as an
// empty directory) or an already-empty directory, collapsing clone's
// precondition ("target directory is empty or nonexistent") into one typed
// result.
func EnsureEmptyDirOrNoPath(path string) (EmptyDir, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	isDir, _, exists, err := resolve(abs)
	if err != nil {
		return "", err
	}
	if !exists {
		if err := os.MkdirAll(abs, 0o755); err != nil {
			return "", err
		}
		return EmptyDir(abs), nil
	}
	if !isDir {
		return "", &kierrors.ExpectedDirectoryButGotFile{Path: abs}
	}
	return NewEmptyDir(abs)
}

// CreateDir creates a new directory at path, which must not already exist,
// and returns it tagged as empty.
func CreateDir(path string) (EmptyDir, error) {
	np, err := NewNoPath(path)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(string(np), 0o755); err != nil {
		return "", err
	}
	return EmptyDir(np), nil
}

// Touch creates an empty regular file at path, which must not already exist.
func Touch(path string) (ExtantFile, error) {
	np, err := NewNoPath(path)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(string(np)), 0o755); err != nil {
		return "", err
	}
	f, err := os.OpenFile(string(np), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", err
	}
	_ = f.Close()
	return NewExtantFile(string(np))
}

// WriteFile writes data to a new file at path, which must not already exist.
func WriteFile(path string, data []byte) (ExtantFile, error) {
	np, err := NewNoPath(path)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(string(np)), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(string(np), data, 0o644); err != nil {
		return "", err
	}
	return NewExtantFile(string(np))
}

// Remove deletes the entire subtree rooted at an ExtantDir. This is the one
// place the layer accepts "destroy everything" — callers hold a typed
// ExtantDir, so there is no ambiguity about what is being removed.
func Remove(dir ExtantDir) error {
	return os.RemoveAll(string(dir))
}

// List returns the direct child names of dir.
func List(dir ExtantDir) ([]string, error) {
	entries, err := os.ReadDir(string(dir))
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names, nil
}

// Join widens dir to a child path string, without resolving it; callers
// pass the result through one of the constructors above to reclassify it.
func Join(dir ExtantDir, elem ...string) string {
	return filepath.Join(append([]string{string(dir)}, elem...)...)
}
