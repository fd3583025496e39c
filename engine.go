package verbump

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/blang/semver"
	"github.com/charmbracelet/log"
)

// Engine decides the next version of a repository. An Engine is immutable
// and can serve any number of decisions; each decision reads its Source
// at most once per query.
type Engine struct {
	source       Source
	policy       *BranchPolicy
	classifier   *Classifier
	lifecycle    *Lifecycle
	firstRelease *FirstReleaseResolver
	logger       *log.Logger
}

// NewEngine wires an Engine to a Source.
func NewEngine(source Source, opts Options) (*Engine, error) {
	if source == nil {
		return nil, fmt.Errorf("source is required")
	}

	policy := opts.Policy
	if policy == nil {
		policy = DefaultBranchPolicy()
	}

	keywords := DefaultKeywords()
	if opts.Keywords != nil {
		keywords = *opts.Keywords
	}
	classifier := NewClassifier(keywords)

	lifecycle, err := NewLifecycle()
	if err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}

	return &Engine{
		source:       source,
		policy:       policy,
		classifier:   classifier,
		lifecycle:    lifecycle,
		firstRelease: NewFirstReleaseResolver(classifier, opts.FirstRelease),
		logger:       logger,
	}, nil
}

// Decide computes the next version. It never fails: problems are reported in
// the returned Decision.
func (e *Engine) Decide(ctx context.Context, in Input) Decision {
	const op = "engine.Decide"

	feeds := newSnapshot(e.source)

	branch := firstNonEmpty(in.Branch, in.TargetBranch)
	if branch == "" {
		var err error
		branch, err = feeds.DefaultBranch(ctx)
		if err != nil {
			return failed(Decision{}, wrapError(err, KindCollaboratorUnavailable, op,
				"no branch given and the default branch could not be resolved"), "")
		}
	}
	target := firstNonEmpty(in.TargetBranch, branch)

	d := Decision{BranchName: branch, TargetBranch: target}
	logger := e.logger.With("branch", branch)

	if !e.policy.IsReleaseBranch(branch) {
		err := newError(KindNotReleaseBranch, op, "branch %q is not a release branch", branch).
			WithDetail("branch", branch)
		return failed(d, err, "Releases are only cut from: "+e.policy.describe()+".")
	}
	tier := e.policy.TierFor(branch)

	if strings.TrimSpace(in.DeclaredVersion) == "" {
		return failed(d, newError(KindManifestFieldMissing, op, "no declared version given"), "")
	}
	declared, err := ParseVersion(in.DeclaredVersion)
	if err != nil {
		return failed(d, err, "")
	}
	d.CurrentVersion = declared.String()

	tags, err := feeds.ListTags(ctx)
	if err != nil {
		return failed(d, wrapError(err, KindCollaboratorUnavailable, op, "listing tags"), "")
	}

	latest, found := LatestTag(tags)
	if !found {
		logger.Debug("no release tags, resolving first release", "declared", declared)
		history := e.history(ctx, feeds, "", target)
		first := e.firstRelease.Resolve(declared, history, tier, in.ForceFirstRelease)
		first.BranchName = branch
		first.TargetBranch = target
		first.CurrentVersion = d.CurrentVersion
		if first.Success {
			logger.Info("first release", "version", first.NewVersion)
		}
		return first
	}
	d.LastTag = latest.Name
	logger = logger.With("lastTag", latest.Name)

	var pinned bool
	if !Base(declared).EQ(latest.Base()) {
		check := CheckConsistency(declared, consistencyReference(tags, latest), in.ForceMismatch)
		if check.RequiresAction {
			d = failed(d, check.Err, check.Instructions)
			d.ActionRequired = true
			return d
		}
		if check.Warning != "" {
			logger.Warn(check.Warning)
			d.Warnings = append(d.Warnings, check.Warning)
		}
		pinned = check.PinDeclared
	}

	history := e.history(ctx, feeds, latest.Name, target)
	agg := e.classifier.Aggregate(history)
	logger.Debug("aggregated history", "commits", len(history), "bump", agg.Bump, "hint", agg.Hint)

	tr := e.lifecycle.NextState(latest.Tier, tier, latest.Version)
	if !tr.Valid {
		d.Action = tr.Action
		return failed(d, tr.Err, e.lifecycleInstructions(latest, tier))
	}

	base := NextBase(tr.Action, tier, latest.Version, agg)
	if pinned {
		base = Base(declared)
	}
	build := NextBuildNumber(tr.Action, tags, base, tier)

	d.Success = true
	d.Action = tr.Action
	d.BumpCategory = agg.Bump
	d.PreRelease = tier
	d.PreReleaseHint = agg.Hint
	d.BuildNumber = build
	d.NewVersion = FormatVersion(base, tier, build)

	logger.Info("decided version", "action", tr.Action, "bump", agg.Bump, "version", d.NewVersion)
	return d
}

// history fetches commit subjects. Failures degrade to an empty history,
// which classifies as the patch default.
func (e *Engine) history(ctx context.Context, feeds *snapshot, since, until string) []string {
	messages, err := feeds.CommitsSince(ctx, since, until)
	if err != nil {
		e.logger.Warn("commit history unavailable, defaulting to patch", "since", since, "until", until, "err", err)
		return nil
	}
	return messages
}

func (e *Engine) lifecycleInstructions(latest Tag, target PreRelease) string {
	base := latest.Base()
	var alternatives []string
	for _, name := range e.policy.Branches() {
		tier := e.policy.TierFor(name)
		if e.lifecycle.Allows(latest.Tier, tier) {
			alternatives = append(alternatives, name)
		}
	}
	return fmt.Sprintf("Version %s is already in %s; releasing %s now would go backwards.\n\n"+
		"Valid next steps:\n"+
		"  1. Continue %s or finalise to stable from one of: %s.\n"+
		"  2. Start a new %s series after %s is released as stable.",
		base, latest.Tier, target,
		latest.Tier, strings.Join(alternatives, ", "),
		target, base)
}

// consistencyReference is the version the manifest is compared with: the
// latest stable tag, or the base of the latest tag when there is none.
func consistencyReference(tags []string, latest Tag) semver.Version {
	var (
		ref   semver.Version
		found bool
	)
	for _, name := range tags {
		tag, ok := ParseTag(name)
		if !ok || tag.Tier != PreReleaseNone {
			continue
		}
		if !found || tag.Version.GT(ref) {
			ref, found = tag.Version, true
		}
	}
	if !found {
		return latest.Base()
	}
	return ref
}

func failed(d Decision, err error, instructions string) Decision {
	d.Success = false
	d.NewVersion = ""
	d.BuildNumber = 0
	d.ErrorKind = GetKind(err).String()
	d.ErrorMessage = err.Error()
	d.ActionInstructions = instructions
	return d
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
