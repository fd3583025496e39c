package verbump

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// OpenRepository opens a Git repository at the specified path
func OpenRepository(path string) (*git.Repository, error) {
	return git.PlainOpenWithOptions(path, &git.PlainOpenOptions{
		DetectDotGit:          true,
		EnableDotGitCommonDir: true,
	})
}

// GitOptions configures a GitSource.
type GitOptions struct {
	// TagPrefix restricts tags to those starting with the prefix, e.g. "sdk/".
	// The prefix is stripped from the names ListTags returns.
	TagPrefix string

	// AllCommits uses every commit subject since the last tag instead of merge
	// commit subjects only. Useful for squash-merge workflows.
	AllCommits bool

	// Remote is consulted for the default branch. Defaults to "origin".
	Remote string
}

// GitSource reads tags and history from a go-git repository. It never writes
// to the repository.
type GitSource struct {
	repo *git.Repository
	opts GitOptions
}

// NewGitSource returns a Source backed by repo.
func NewGitSource(repo *git.Repository, opts GitOptions) (*GitSource, error) {
	if repo == nil {
		return nil, fmt.Errorf("repository is required")
	}
	if opts.Remote == "" {
		opts.Remote = "origin"
	}
	return &GitSource{repo: repo, opts: opts}, nil
}

// ListTags returns tag names sorted alphabetically.
func (s *GitSource) ListTags(ctx context.Context) ([]string, error) {
	tags, err := s.repo.Tags()
	if err != nil {
		return nil, fmt.Errorf("listing tags: %w", err)
	}

	var names []string
	err = tags.ForEach(func(ref *plumbing.Reference) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		name := ref.Name().Short()
		if s.opts.TagPrefix != "" {
			if !strings.HasPrefix(name, s.opts.TagPrefix) {
				return nil
			}
			name = strings.TrimPrefix(name, s.opts.TagPrefix)
		}
		names = append(names, name)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("iterating tags: %w", err)
	}

	sort.Strings(names)
	return names, nil
}

// CommitsSince returns the subjects of merge commits reachable from until but
// not from the tag since, newest first. With an empty since every commit
// subject of until is returned.
func (s *GitSource) CommitsSince(ctx context.Context, since, until string) ([]string, error) {
	head, err := s.resolveBranch(until)
	if err != nil {
		return nil, err
	}

	seen := map[plumbing.Hash]bool{}
	if since != "" {
		tagCommit, err := s.tagCommit(s.opts.TagPrefix + since)
		if err != nil {
			return nil, err
		}
		seen, err = ancestors(ctx, tagCommit)
		if err != nil {
			return nil, fmt.Errorf("walking history of %s: %w", since, err)
		}
	}

	commit, err := s.repo.CommitObject(head)
	if err != nil {
		return nil, fmt.Errorf("getting commit object: %w", err)
	}

	var subjects []string
	walker := object.NewCommitPreorderIter(commit, seen, nil)
	err = walker.ForEach(func(c *object.Commit) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if since == "" || s.opts.AllCommits || c.NumParents() > 1 {
			subjects = append(subjects, subject(c.Message))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking history of %s: %w", until, err)
	}

	return subjects, nil
}

// DefaultBranch follows the remote HEAD pointer, falling back to a local
// main or master branch.
func (s *GitSource) DefaultBranch(_ context.Context) (string, error) {
	remoteHead := plumbing.ReferenceName("refs/remotes/" + s.opts.Remote + "/HEAD")
	if ref, err := s.repo.Reference(remoteHead, false); err == nil && ref.Type() == plumbing.SymbolicReference {
		return strings.TrimPrefix(ref.Target().Short(), s.opts.Remote+"/"), nil
	}

	for _, name := range []string{"main", "master"} {
		if _, err := s.repo.Reference(plumbing.NewBranchReferenceName(name), true); err == nil {
			return name, nil
		}
	}

	return "", fmt.Errorf("default branch not found: no %s HEAD and no main or master branch", s.opts.Remote)
}

// CurrentBranch returns the branch HEAD points at.
func (s *GitSource) CurrentBranch() (string, error) {
	head, err := s.repo.Head()
	if err != nil {
		return "", fmt.Errorf("getting HEAD: %w", err)
	}
	if !head.Name().IsBranch() {
		return "", fmt.Errorf("HEAD is not on a branch (detached HEAD)")
	}
	return head.Name().Short(), nil
}

// IsDirty reports whether the worktree has uncommitted changes.
func (s *GitSource) IsDirty() (bool, error) {
	workTree, err := s.repo.Worktree()
	if err != nil {
		return false, fmt.Errorf("getting worktree: %w", err)
	}

	status, err := workTree.Status()
	if err != nil {
		return false, fmt.Errorf("getting git status: %w", err)
	}

	return !status.IsClean(), nil
}

// resolveBranch finds the commit of a local branch, a remote-tracking
// branch, or any other revision git understands.
func (s *GitSource) resolveBranch(name string) (plumbing.Hash, error) {
	if name == "" {
		name = "HEAD"
	}

	for _, refName := range []plumbing.ReferenceName{
		plumbing.NewBranchReferenceName(name),
		plumbing.NewRemoteReferenceName(s.opts.Remote, name),
	} {
		if ref, err := s.repo.Reference(refName, true); err == nil {
			return ref.Hash(), nil
		}
	}

	hash, err := s.repo.ResolveRevision(plumbing.Revision(name))
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("resolving %s: %w", name, err)
	}
	return *hash, nil
}

// tagCommit peels a lightweight or annotated tag to its commit.
func (s *GitSource) tagCommit(name string) (*object.Commit, error) {
	ref, err := s.repo.Tag(name)
	if err != nil {
		return nil, fmt.Errorf("resolving tag %s: %w", name, err)
	}

	tag, err := s.repo.TagObject(ref.Hash())
	switch {
	case err == nil:
		commit, err := tag.Commit()
		if err != nil {
			return nil, fmt.Errorf("peeling tag %s: %w", name, err)
		}
		return commit, nil
	case errors.Is(err, plumbing.ErrObjectNotFound):
		commit, err := s.repo.CommitObject(ref.Hash())
		if err != nil {
			return nil, fmt.Errorf("getting commit of tag %s: %w", name, err)
		}
		return commit, nil
	default:
		return nil, fmt.Errorf("reading tag %s: %w", name, err)
	}
}

func ancestors(ctx context.Context, from *object.Commit) (map[plumbing.Hash]bool, error) {
	seen := map[plumbing.Hash]bool{}
	err := object.NewCommitPreorderIter(from, nil, nil).ForEach(func(c *object.Commit) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		seen[c.Hash] = true
		return nil
	})
	return seen, err
}

func subject(message string) string {
	message = strings.TrimSpace(message)
	if i := strings.IndexByte(message, '\n'); i >= 0 {
		message = message[:i]
	}
	return strings.TrimSpace(message)
}
