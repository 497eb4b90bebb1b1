package remote

import (
	"context"
	"fmt"
	"path"
	"strings"
)

// Lister lists one remote directory. *Session satisfies it.
type Lister interface {
	List(ctx context.Context, dir string) ([]Entry, error)
}

// Matcher decides whether a file name is wanted and, if so, the key it is
// indexed under.
type Matcher func(name string) (key string, ok bool)

// SuffixMatcher accepts names ending in suffix and keys them by the name with
// the suffix removed.
func SuffixMatcher(suffix string) Matcher {
	return func(name string) (string, bool) {
		if suffix == "" || !strings.HasSuffix(name, suffix) {
			return "", false
		}
		key := strings.TrimSuffix(name, suffix)
		if key == "" {
			return "", false
		}
		return key, true
	}
}

// Walker indexes a remote tree depth-first.
type Walker struct {
	lister Lister
	ignore map[string]struct{}
	log    Logger
}

// WalkerOption customises a Walker.
type WalkerOption func(*Walker)

// WithIgnore skips directories with any of the given names.
func WithIgnore(names ...string) WalkerOption {
	return func(w *Walker) {
		for _, name := range names {
			if name = strings.TrimSpace(name); name != "" {
				w.ignore[name] = struct{}{}
			}
		}
	}
}

// WithProgress reports "N/total" for each top-level entry.
func WithProgress(l Logger) WalkerOption {
	return func(w *Walker) {
		if l != nil {
			w.log = l
		}
	}
}

// NewWalker builds a walker over lister.
func NewWalker(lister Lister, opts ...WalkerOption) *Walker {
	w := &Walker{lister: lister, ignore: map[string]struct{}{}, log: nopLogger{}}
	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}
	return w
}

type walkItem struct {
	path     string
	name     string
	dir      bool
	progress string
}

// Walk lists root and everything below it, returning matching files keyed by
// Matcher. When two files produce the same key the one visited last in
// depth-first pre-order wins.
//
// A directory the server refuses to list is logged and skipped. Any other
// error from the lister ends the walk.
func (w *Walker) Walk(ctx context.Context, root string, match Matcher) (map[string]string, error) {
	found := map[string]string{}
	top, err := w.lister.List(ctx, root)
	if err != nil {
		return nil, fmt.Errorf("remote: list %s: %w", root, err)
	}
	top = w.visible(top)

	// Entries are pushed in reverse so that popping yields listing order.
	stack := make([]walkItem, 0, len(top))
	for i := len(top) - 1; i >= 0; i-- {
		e := top[i]
		stack = append(stack, walkItem{
			path:     path.Join(root, e.Name),
			name:     e.Name,
			dir:      e.Dir,
			progress: fmt.Sprintf("%d/%d", i+1, len(top)),
		})
	}

	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		item := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if item.progress != "" {
			w.log.Printf("%s %s", item.progress, item.name)
		}
		if !item.dir {
			if key, ok := match(item.name); ok {
				found[key] = item.path
			}
			continue
		}
		children, err := w.lister.List(ctx, item.path)
		if err != nil {
			if IsPermanent(err) {
				w.log.Printf("skipping %s: %v", item.path, err)
				continue
			}
			return nil, fmt.Errorf("remote: list %s: %w", item.path, err)
		}
		children = w.visible(children)
		for i := len(children) - 1; i >= 0; i-- {
			c := children[i]
			stack = append(stack, walkItem{path: path.Join(item.path, c.Name), name: c.Name, dir: c.Dir})
		}
	}
	return found, nil
}

func (w *Walker) visible(entries []Entry) []Entry {
	out := entries[:0:0]
	for _, e := range entries {
		if e.Name == "" || e.Name == "." || e.Name == ".." {
			continue
		}
		if e.Dir {
			if _, skip := w.ignore[e.Name]; skip {
				continue
			}
		}
		out = append(out, e)
	}
	return out
}
