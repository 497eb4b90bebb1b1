package artifact

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/biggstd/pynome/internal/workdir"
)

// Store inspects artifacts inside one working directory.
type Store struct {
	dir *workdir.Dir
}

// NewStore builds a store for a working directory.
func NewStore(dir *workdir.Dir) *Store {
	return &Store{dir: dir}
}

// Dir returns the working directory backing the store.
func (s *Store) Dir() *workdir.Dir {
	return s.dir
}

// Check inspects the artifact on disk and returns its status.
func (s *Store) Check(ref ArtifactRef) (CheckResult, error) {
	path := ref.Path(s.dir)
	if path == "" || path == "." {
		err := fmt.Errorf("artifact: %s path could not be resolved", ref.ID)
		return CheckResult{Ref: ref, Path: path, State: StateError, Err: err}, err
	}
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return CheckResult{Ref: ref, Path: path, State: StateMissing}, nil
		}
		return CheckResult{Ref: ref, Path: path, State: StateError, Err: err}, err
	}
	switch ref.Kind {
	case KindDirectory:
		if !info.IsDir() {
			return invalidResult(ref, path, fmt.Errorf("artifact: expected directory"))
		}
	default:
		if info.IsDir() {
			return invalidResult(ref, path, fmt.Errorf("artifact: expected file got directory"))
		}
	}
	return CheckResult{Ref: ref, Path: path, State: StateReady}, nil
}

// Ready reports whether every ref is ready. The first ref that is not ready
// is returned so callers can explain what they are waiting for.
func (s *Store) Ready(refs ...ArtifactRef) (bool, ArtifactRef, error) {
	for _, ref := range refs {
		result, err := s.Check(ref)
		if err != nil && result.State == StateError {
			return false, ref, fmt.Errorf("artifact: check %s: %w", ref.ID, err)
		}
		if result.State != StateReady {
			return false, ref, nil
		}
	}
	return true, ArtifactRef{}, nil
}

func invalidResult(ref ArtifactRef, path string, err error) (CheckResult, error) {
	return CheckResult{Ref: ref, Path: path, State: StateInvalid, Err: err}, nil
}
