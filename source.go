package verbump

import (
	"context"
	"errors"
)

// Source supplies the repository facts a decision is made from. Implementations
// must not modify the repository.
type Source interface {
	// ListTags returns every tag name in the repository.
	ListTags(ctx context.Context) ([]string, error)

	// CommitsSince returns the commit subjects reachable from until but not
	// from since. An empty since means the whole history of until.
	CommitsSince(ctx context.Context, since, until string) ([]string, error)

	// DefaultBranch returns the repository's default branch name.
	DefaultBranch(ctx context.Context) (string, error)
}

// StaticSource is a Source backed by fixed data, for tests and for callers
// that gather repository facts themselves.
type StaticSource struct {
	Tags    []string
	Commits []string
	Default string
}

func (s StaticSource) ListTags(context.Context) ([]string, error) {
	return s.Tags, nil
}

// CommitsSince ignores its refs: Commits is already the range of interest.
func (s StaticSource) CommitsSince(context.Context, string, string) ([]string, error) {
	return s.Commits, nil
}

func (s StaticSource) DefaultBranch(context.Context) (string, error) {
	if s.Default == "" {
		return "", errors.New("no default branch configured")
	}
	return s.Default, nil
}

type commitRange struct{ since, until string }

type commitResult struct {
	messages []string
	err      error
}

// snapshot memoizes a Source for the length of one decision so every stage
// sees the same history.
type snapshot struct {
	src Source

	tags      []string
	tagsErr   error
	tagsReady bool

	branch      string
	branchErr   error
	branchReady bool

	commits map[commitRange]commitResult
}

func newSnapshot(src Source) *snapshot {
	return &snapshot{src: src, commits: make(map[commitRange]commitResult)}
}

func (s *snapshot) ListTags(ctx context.Context) ([]string, error) {
	if !s.tagsReady {
		s.tags, s.tagsErr = s.src.ListTags(ctx)
		s.tagsReady = true
	}
	return s.tags, s.tagsErr
}

func (s *snapshot) CommitsSince(ctx context.Context, since, until string) ([]string, error) {
	key := commitRange{since, until}
	if r, ok := s.commits[key]; ok {
		return r.messages, r.err
	}
	messages, err := s.src.CommitsSince(ctx, since, until)
	s.commits[key] = commitResult{messages, err}
	return messages, err
}

func (s *snapshot) DefaultBranch(ctx context.Context) (string, error) {
	if !s.branchReady {
		s.branch, s.branchErr = s.src.DefaultBranch(ctx)
		s.branchReady = true
	}
	return s.branch, s.branchErr
}
