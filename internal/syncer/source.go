package syncer

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dl4rce/flaiwheel/internal/docs"
)

// ChangeSource reports the document paths that changed since its previous
// Poll. An empty result means nothing to do.
type ChangeSource interface {
	Poll(ctx context.Context) ([]string, error)
}

type stamp struct {
	size    int64
	modTime time.Time
}

// ScanSource detects changes by comparing size and modification time of
// every document under a root between polls. The first poll records a
// baseline and reports nothing. A missing root is an error and keeps the
// previous baseline.
type ScanSource struct {
	root string
	exts []string

	mu       sync.Mutex
	seen     map[string]stamp
	baseline bool
}

// NewScanSource creates a poller over root
func NewScanSource(root string, exts []string) *ScanSource {
	return &ScanSource{root: root, exts: exts}
}

// Poll returns added, modified and removed paths, sorted
func (s *ScanSource) Poll(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	files, err := docs.Discover(s.root, s.exts)
	if err != nil {
		return nil, err
	}

	current := make(map[string]stamp, len(files))
	for _, f := range files {
		current[f.Path] = stamp{size: f.Size, modTime: f.ModTime}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.seen
	s.seen = current
	if !s.baseline {
		s.baseline = true
		return nil, nil
	}

	var changed []string
	for path, st := range current {
		if old, ok := prev[path]; !ok || old.size != st.size || !old.modTime.Equal(st.modTime) {
			changed = append(changed, path)
		}
	}
	for path := range prev {
		if _, ok := current[path]; !ok {
			changed = append(changed, path)
		}
	}
	sort.Strings(changed)
	return changed, nil
}

// Puller is the git collaborator: it brings the working tree up to date and
// reports the paths touched by the new commits.
type Puller interface {
	Pull(ctx context.Context) ([]string, error)
}

// PullerFunc adapts a function to Puller
type PullerFunc func(ctx context.Context) ([]string, error)

// Pull calls f
func (f PullerFunc) Pull(ctx context.Context) ([]string, error) {
	return f(ctx)
}

// GitSource reports the changes a Puller brought in. Network access stays
// with the collaborator.
type GitSource struct {
	puller Puller
	exts   []string
}

// NewGitSource wraps a Puller. Only paths with one of exts are reported;
// empty exts selects the default document extensions.
func NewGitSource(p Puller, exts []string) *GitSource {
	if len(exts) == 0 {
		exts = docs.DefaultExtensions
	}
	return &GitSource{puller: p, exts: exts}
}

// Poll pulls and filters the touched paths to indexable documents
func (g *GitSource) Poll(ctx context.Context) ([]string, error) {
	paths, err := g.puller.Pull(ctx)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, p := range paths {
		if docs.HasExtension(p, g.exts) {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out, nil
}
