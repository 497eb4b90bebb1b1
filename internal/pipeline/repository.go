package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/biggstd/pynome/internal/workdir"
)

// ErrStateNotFound is returned when an assembly has never been run.
var ErrStateNotFound = errors.New("pipeline: state not found")

// StateStore persists run snapshots.
type StateStore interface {
	Load() (State, error)
	Save(State) error
}

// Repository stores run state inside the working directory.
type Repository struct {
	path string
}

// NewRepository returns the repository for dir.
func NewRepository(dir *workdir.Dir) *Repository {
	return &Repository{path: dir.StatePath()}
}

// Load reads the persisted state if present.
func (r *Repository) Load() (State, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return State{}, ErrStateNotFound
		}
		return State{}, fmt.Errorf("pipeline: read state: %w", err)
	}
	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return State{}, fmt.Errorf("pipeline: parse %s: %w", r.path, err)
	}
	return state, nil
}

// Save writes the state through a temporary file.
func (r *Repository) Save(state State) error {
	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return fmt.Errorf("pipeline: ensure state dir: %w", err)
	}
	encoded, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("pipeline: encode state: %w", err)
	}
	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, append(encoded, '\n'), 0o644); err != nil {
		return fmt.Errorf("pipeline: write state: %w", err)
	}
	return os.Rename(tmp, r.path)
}
