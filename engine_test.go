package verbump

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/require"
)

// failingSource fails the flagged feeds and counts every call.
type failingSource struct {
	StaticSource
	failTags, failCommits, failDefault bool
	calls                              map[string]int
}

func (s *failingSource) ListTags(ctx context.Context) ([]string, error) {
	s.calls["tags"]++
	if s.failTags {
		return nil, errors.New("git tag: exit status 128")
	}
	return s.StaticSource.ListTags(ctx)
}

func (s *failingSource) CommitsSince(ctx context.Context, since, until string) ([]string, error) {
	s.calls["commits"]++
	if s.failCommits {
		return nil, errors.New("git log: exit status 128")
	}
	return s.StaticSource.CommitsSince(ctx, since, until)
}

func (s *failingSource) DefaultBranch(ctx context.Context) (string, error) {
	s.calls["default"]++
	if s.failDefault {
		return "", errors.New("no remote HEAD")
	}
	return s.StaticSource.DefaultBranch(ctx)
}

func newTestEngine(t *testing.T, src Source) *Engine {
	t.Helper()
	engine, err := NewEngine(src, Options{})
	require.NoError(t, err)
	return engine
}

func TestDecideScenarios(t *testing.T) {
	ctx := context.Background()

	t.Run("First alpha release from dev", func(t *testing.T) {
		engine := newTestEngine(t, StaticSource{})
		d := engine.Decide(ctx, Input{Branch: "dev", DeclaredVersion: "1.0.0"})

		require.True(t, d.Success, d.ErrorMessage)
		require.True(t, d.IsFirstRelease)
		require.Equal(t, "1.0.0-alpha.1", d.NewVersion)
		require.Equal(t, "1.0.0", d.CurrentVersion)
		require.Equal(t, "dev", d.BranchName)
		require.Empty(t, d.LastTag)
	})

	t.Run("Stable patch release", func(t *testing.T) {
		engine := newTestEngine(t, StaticSource{
			Tags:    []string{"v1.0.0"},
			Commits: []string{"fix: bug"},
		})
		d := engine.Decide(ctx, Input{Branch: "release", DeclaredVersion: "1.0.0"})

		require.True(t, d.Success, d.ErrorMessage)
		require.Equal(t, "1.0.1", d.NewVersion)
		require.Equal(t, BumpPatch, d.BumpCategory)
		require.Equal(t, "patch", d.BumpCategory.String())
		require.Equal(t, "v1.0.0", d.LastTag)
		require.Equal(t, ActionContinue, d.Action)
		require.Empty(t, d.Suffix())
	})

	t.Run("Alpha continue holds base", func(t *testing.T) {
		engine := newTestEngine(t, StaticSource{
			Tags:    []string{"v1.0.0", "v1.1.0-alpha.1", "v1.1.0-alpha.2"},
			Commits: []string{"BREAKING: change"},
		})
		d := engine.Decide(ctx, Input{Branch: "dev", DeclaredVersion: "1.1.0"})

		require.True(t, d.Success, d.ErrorMessage)
		require.Equal(t, "1.1.0-alpha.3", d.NewVersion)
		require.Equal(t, BumpMajor, d.BumpCategory)
		require.Equal(t, ActionContinue, d.Action)
		require.Equal(t, uint64(3), d.BuildNumber)
		require.Equal(t, "-alpha.3", d.Suffix())
	})

	t.Run("Alpha to beta transition", func(t *testing.T) {
		engine := newTestEngine(t, StaticSource{
			Tags: []string{"v1.0.0", "v1.1.0-alpha.1", "v1.1.0-alpha.2"},
		})
		d := engine.Decide(ctx, Input{Branch: "master", DeclaredVersion: "1.1.0"})

		require.True(t, d.Success, d.ErrorMessage)
		require.Equal(t, "1.1.0-beta.1", d.NewVersion)
		require.Equal(t, ActionTransition, d.Action)
	})

	t.Run("Beta to alpha is refused", func(t *testing.T) {
		engine := newTestEngine(t, StaticSource{
			Tags:    []string{"v1.0.0", "v1.1.0-alpha.2", "v1.1.0-beta.1"},
			Commits: []string{"feat: more"},
		})
		d := engine.Decide(ctx, Input{Branch: "dev", DeclaredVersion: "1.1.0"})

		require.False(t, d.Success)
		require.Empty(t, d.NewVersion)
		require.Equal(t, KindInvalidTransition.String(), d.ErrorKind)
		require.Regexp(t, `alpha.*beta`, d.ErrorMessage)
		require.Contains(t, d.ActionInstructions, "Valid next steps")
		require.Contains(t, d.ActionInstructions, "release")
		require.True(t, d.Failed())
	})

	t.Run("Feature branch is refused", func(t *testing.T) {
		engine := newTestEngine(t, StaticSource{
			Tags:    []string{"v1.0.0"},
			Commits: []string{"feat: x"},
		})
		d := engine.Decide(ctx, Input{Branch: "feature/x", DeclaredVersion: "1.0.0"})

		require.False(t, d.Success)
		require.Empty(t, d.NewVersion)
		require.Equal(t, KindNotReleaseBranch.String(), d.ErrorKind)
		require.Contains(t, d.ErrorMessage, "not a release branch")
		require.Contains(t, d.ActionInstructions, "release (stable)")
	})
}

func TestDecideLifecycle(t *testing.T) {
	ctx := context.Background()

	t.Run("Start beta series from stable", func(t *testing.T) {
		engine := newTestEngine(t, StaticSource{
			Tags:    []string{"v1.1.0"},
			Commits: []string{"feat: exporter"},
		})
		d := engine.Decide(ctx, Input{Branch: "main", DeclaredVersion: "1.1.0"})

		require.True(t, d.Success, d.ErrorMessage)
		require.Equal(t, ActionStart, d.Action)
		require.Equal(t, "1.2.0-beta.1", d.NewVersion)
	})

	t.Run("Newer pre-release tag is continued", func(t *testing.T) {
		engine := newTestEngine(t, StaticSource{
			Tags:    []string{"v1.1.0", "v1.1.1-alpha.1"},
			Commits: []string{"fix: crash"},
		})
		d := engine.Decide(ctx, Input{Branch: "dev", DeclaredVersion: "1.1.1"})
		require.True(t, d.Success, d.ErrorMessage)
		require.Equal(t, "1.1.1-alpha.2", d.NewVersion)
	})

	t.Run("End beta without keyword releases base", func(t *testing.T) {
		engine := newTestEngine(t, StaticSource{
			Tags:    []string{"v1.0.0", "v1.1.0-beta.1", "v1.1.0-beta.2"},
			Commits: []string{"Merge branch 'main' into release"},
		})
		d := engine.Decide(ctx, Input{Branch: "release", DeclaredVersion: "1.1.0"})

		require.True(t, d.Success, d.ErrorMessage)
		require.Equal(t, ActionEnd, d.Action)
		require.Equal(t, "1.1.0", d.NewVersion)
		require.Equal(t, uint64(0), d.BuildNumber)
	})

	t.Run("End alpha with major keyword", func(t *testing.T) {
		engine := newTestEngine(t, StaticSource{
			Tags:    []string{"v1.0.0", "v1.1.0-alpha.4"},
			Commits: []string{"BREAKING CHANGE: new storage format"},
		})
		d := engine.Decide(ctx, Input{Branch: "release", DeclaredVersion: "1.1.0"})

		require.True(t, d.Success, d.ErrorMessage)
		require.Equal(t, ActionEnd, d.Action)
		require.Equal(t, "2.0.0", d.NewVersion)
	})

	t.Run("Hint is recorded but does not pick the tier", func(t *testing.T) {
		engine := newTestEngine(t, StaticSource{
			Tags:    []string{"v1.0.0"},
			Commits: []string{"FEATURE-ALPHA preview"},
		})
		d := engine.Decide(ctx, Input{Branch: "main", DeclaredVersion: "1.0.0"})

		require.True(t, d.Success, d.ErrorMessage)
		require.Equal(t, PreReleaseAlpha, d.PreReleaseHint)
		require.Equal(t, PreReleaseBeta, d.PreRelease)
		require.Equal(t, "1.1.0-beta.1", d.NewVersion)
	})

	t.Run("Case-insensitive branch", func(t *testing.T) {
		engine := newTestEngine(t, StaticSource{Tags: []string{"v1.0.0"}})
		d := engine.Decide(ctx, Input{Branch: "Release", DeclaredVersion: "1.0.0"})
		require.True(t, d.Success, d.ErrorMessage)
		require.Equal(t, "1.0.1", d.NewVersion)
	})
}

func TestDecideConsistency(t *testing.T) {
	ctx := context.Background()
	src := StaticSource{
		Tags:    []string{"v1.2.3"},
		Commits: []string{"fix: x"},
	}

	t.Run("Manifest behind tag", func(t *testing.T) {
		d := newTestEngine(t, src).Decide(ctx, Input{Branch: "release", DeclaredVersion: "1.2.0"})

		require.False(t, d.Success)
		require.True(t, d.ActionRequired)
		require.Equal(t, KindVersionMismatch.String(), d.ErrorKind)
		require.Contains(t, d.ErrorMessage, "1.2.0")
		require.Contains(t, d.ErrorMessage, "1.2.3")
		require.NotEmpty(t, d.ActionInstructions)
	})

	t.Run("Manifest behind tag forced", func(t *testing.T) {
		d := newTestEngine(t, src).Decide(ctx, Input{Branch: "release", DeclaredVersion: "1.2.0", ForceMismatch: true})

		require.True(t, d.Success, d.ErrorMessage)
		require.Equal(t, "1.2.4", d.NewVersion)
		require.Len(t, d.Warnings, 1)
	})

	t.Run("Manifest one step ahead", func(t *testing.T) {
		d := newTestEngine(t, src).Decide(ctx, Input{Branch: "release", DeclaredVersion: "1.2.4"})

		require.True(t, d.Success, d.ErrorMessage)
		require.Equal(t, "1.2.4", d.NewVersion)
		require.Len(t, d.Warnings, 1)
	})

	t.Run("Unexpected jump", func(t *testing.T) {
		d := newTestEngine(t, src).Decide(ctx, Input{Branch: "release", DeclaredVersion: "4.0.0"})

		require.True(t, d.ActionRequired)
		require.Equal(t, KindVersionMismatch.String(), d.ErrorKind)
	})

	t.Run("Unexpected jump forced releases declared version", func(t *testing.T) {
		d := newTestEngine(t, src).Decide(ctx, Input{Branch: "release", DeclaredVersion: "4.0.0", ForceMismatch: true})

		require.True(t, d.Success, d.ErrorMessage)
		require.Equal(t, "4.0.0", d.NewVersion)
	})

	t.Run("First release force does not cover mismatch", func(t *testing.T) {
		d := newTestEngine(t, src).Decide(ctx, Input{Branch: "release", DeclaredVersion: "4.0.0", ForceFirstRelease: true})
		require.True(t, d.ActionRequired)
	})

	t.Run("Mismatch force does not cover first release", func(t *testing.T) {
		engine := newTestEngine(t, StaticSource{})
		d := engine.Decide(ctx, Input{Branch: "release", DeclaredVersion: "4.0.0", ForceMismatch: true})
		require.True(t, d.ActionRequired)
		require.Equal(t, KindUnusualFirstRelease.String(), d.ErrorKind)
	})

	t.Run("Pre-release series compares against last stable", func(t *testing.T) {
		engine := newTestEngine(t, StaticSource{
			Tags: []string{"v1.0.0", "v1.1.0-beta.1"},
		})
		d := engine.Decide(ctx, Input{Branch: "main", DeclaredVersion: "1.0.0"})

		require.True(t, d.Success, d.ErrorMessage)
		require.Equal(t, "1.1.0-beta.2", d.NewVersion)
	})
}

func TestDecideInputValidation(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(t, StaticSource{Tags: []string{"v1.0.0"}})

	t.Run("Missing declared version", func(t *testing.T) {
		d := engine.Decide(ctx, Input{Branch: "release"})
		require.False(t, d.Success)
		require.Equal(t, KindManifestFieldMissing.String(), d.ErrorKind)
	})

	t.Run("Malformed declared version", func(t *testing.T) {
		d := engine.Decide(ctx, Input{Branch: "release", DeclaredVersion: "1.0"})
		require.False(t, d.Success)
		require.Equal(t, KindMalformedVersion.String(), d.ErrorKind)
	})

	t.Run("Leading v accepted", func(t *testing.T) {
		d := engine.Decide(ctx, Input{Branch: "release", DeclaredVersion: "v1.0.0"})
		require.True(t, d.Success, d.ErrorMessage)
		require.Equal(t, "1.0.0", d.CurrentVersion)
	})
}

func TestDecideCollaborators(t *testing.T) {
	ctx := context.Background()

	t.Run("Default branch used when none given", func(t *testing.T) {
		engine := newTestEngine(t, StaticSource{Tags: []string{"v1.0.0"}, Default: "main"})
		d := engine.Decide(ctx, Input{DeclaredVersion: "1.0.0"})

		require.True(t, d.Success, d.ErrorMessage)
		require.Equal(t, "main", d.BranchName)
		require.Equal(t, "1.0.1-beta.1", d.NewVersion)
	})

	t.Run("Target branch names the release branch", func(t *testing.T) {
		src := &failingSource{StaticSource: StaticSource{Tags: []string{"v1.0.0"}}, calls: map[string]int{}}
		d := newTestEngine(t, src).Decide(ctx, Input{TargetBranch: "release", DeclaredVersion: "1.0.0"})

		require.True(t, d.Success, d.ErrorMessage)
		require.Equal(t, "release", d.BranchName)
		require.Equal(t, "release", d.TargetBranch)
		require.Zero(t, src.calls["default"])
	})

	t.Run("Target branch differs from branch", func(t *testing.T) {
		d := newTestEngine(t, StaticSource{Tags: []string{"v1.0.0"}}).
			Decide(ctx, Input{Branch: "release", TargetBranch: "release-2", DeclaredVersion: "1.0.0"})

		require.True(t, d.Success, d.ErrorMessage)
		require.Equal(t, "release", d.BranchName)
		require.Equal(t, "release-2", d.TargetBranch)

		first := newTestEngine(t, StaticSource{}).
			Decide(ctx, Input{Branch: "dev", TargetBranch: "dev-next", DeclaredVersion: "1.0.0"})
		require.True(t, first.Success, first.ErrorMessage)
		require.Equal(t, "dev-next", first.TargetBranch)
	})

	t.Run("Exhausted build counter is ignored", func(t *testing.T) {
		d := newTestEngine(t, StaticSource{Tags: []string{"v1.0.0-alpha.18446744073709551615"}}).
			Decide(ctx, Input{Branch: "dev", DeclaredVersion: "1.0.0"})

		require.True(t, d.Success, d.ErrorMessage)
		require.Empty(t, d.LastTag)
		require.Equal(t, uint64(1), d.BuildNumber)
		require.Equal(t, "1.0.0-alpha.1", d.NewVersion)
	})

	t.Run("Default branch unavailable", func(t *testing.T) {
		src := &failingSource{failDefault: true, calls: map[string]int{}}
		d := newTestEngine(t, src).Decide(ctx, Input{DeclaredVersion: "1.0.0"})

		require.False(t, d.Success)
		require.Equal(t, KindCollaboratorUnavailable.String(), d.ErrorKind)
	})

	t.Run("Tags unavailable fails", func(t *testing.T) {
		src := &failingSource{failTags: true, calls: map[string]int{}}
		d := newTestEngine(t, src).Decide(ctx, Input{Branch: "release", DeclaredVersion: "1.0.0"})

		require.False(t, d.Success)
		require.Equal(t, KindCollaboratorUnavailable.String(), d.ErrorKind)
	})

	t.Run("Commits unavailable degrade to patch", func(t *testing.T) {
		var logs bytes.Buffer
		src := &failingSource{
			StaticSource: StaticSource{Tags: []string{"v1.0.0"}},
			failCommits:  true,
			calls:        map[string]int{},
		}
		engine, err := NewEngine(src, Options{Logger: log.New(&logs)})
		require.NoError(t, err)

		d := engine.Decide(ctx, Input{Branch: "release", DeclaredVersion: "1.0.0"})
		require.True(t, d.Success, d.ErrorMessage)
		require.Equal(t, "1.0.1", d.NewVersion)
		require.Equal(t, BumpPatch, d.BumpCategory)
		require.Empty(t, d.Warnings)
		require.Contains(t, logs.String(), "commit history unavailable")
	})

	t.Run("Each feed queried once", func(t *testing.T) {
		src := &failingSource{
			StaticSource: StaticSource{Tags: []string{"v1.0.0", "v1.1.0-alpha.1"}, Commits: []string{"fix: a"}, Default: "dev"},
			calls:        map[string]int{},
		}
		d := newTestEngine(t, src).Decide(ctx, Input{DeclaredVersion: "1.1.0"})

		require.True(t, d.Success, d.ErrorMessage)
		require.Equal(t, 1, src.calls["tags"])
		require.Equal(t, 1, src.calls["commits"])
		require.Equal(t, 1, src.calls["default"])
	})
}

func TestDecideIsIdempotent(t *testing.T) {
	ctx := context.Background()
	inputs := []struct {
		src StaticSource
		in  Input
	}{
		{StaticSource{}, Input{Branch: "dev", DeclaredVersion: "1.0.0"}},
		{StaticSource{Tags: []string{"v1.0.0"}, Commits: []string{"feat: a", "fix: b"}}, Input{Branch: "release", DeclaredVersion: "1.0.0"}},
		{StaticSource{Tags: []string{"v1.1.0-beta.1"}}, Input{Branch: "dev", DeclaredVersion: "1.1.0"}},
		{StaticSource{Tags: []string{"v2.0.0"}}, Input{Branch: "main", DeclaredVersion: "9.0.0"}},
	}

	for _, tc := range inputs {
		engine := newTestEngine(t, tc.src)
		first := engine.Decide(ctx, tc.in)
		second := engine.Decide(ctx, tc.in)
		require.Equal(t, first, second)
	}
}

func TestNewEngineRequiresSource(t *testing.T) {
	_, err := NewEngine(nil, Options{})
	require.Error(t, err)
}

func TestEngineCustomPolicy(t *testing.T) {
	policy, err := ParseBranchPolicy(map[string]string{"trunk": "stable"})
	require.NoError(t, err)

	engine, err := NewEngine(StaticSource{Tags: []string{"v0.4.0"}, Commits: []string{"epic: payments"}}, Options{
		Policy:   policy,
		Keywords: &Keywords{Minor: []string{"epic"}},
	})
	require.NoError(t, err)

	d := engine.Decide(context.Background(), Input{Branch: "trunk", DeclaredVersion: "0.4.0"})
	require.True(t, d.Success, d.ErrorMessage)
	require.Equal(t, "0.5.0", d.NewVersion)

	d = engine.Decide(context.Background(), Input{Branch: "main", DeclaredVersion: "0.4.0"})
	require.False(t, d.Success)
	require.Equal(t, KindNotReleaseBranch.String(), d.ErrorKind)
}
