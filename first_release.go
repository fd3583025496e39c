package verbump

import (
	"fmt"
	"strings"

	"github.com/blang/semver"
)

// FirstReleasePolicy decides which manifest versions are accepted as a first
// release without confirmation.
type FirstReleasePolicy string

const (
	// FirstReleaseBroad accepts any 0.x.y and 1.0.0.
	FirstReleaseBroad FirstReleasePolicy = "broad"
	// FirstReleaseStrict accepts only 0.0.0 and 1.0.0.
	FirstReleaseStrict FirstReleasePolicy = "strict"
)

// ParseFirstReleasePolicy parses a policy name; empty means broad.
func ParseFirstReleasePolicy(s string) (FirstReleasePolicy, error) {
	switch p := FirstReleasePolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return FirstReleaseBroad, nil
	case FirstReleaseBroad, FirstReleaseStrict:
		return p, nil
	default:
		return "", fmt.Errorf("invalid first release policy: %q (must be broad or strict)", s)
	}
}

// IsStandardStart reports whether v is a usual first version.
func (p FirstReleasePolicy) IsStandardStart(v semver.Version) bool {
	v = Base(v)
	if v.Major == 1 && v.Minor == 0 && v.Patch == 0 {
		return true
	}
	if p == FirstReleaseStrict {
		return v.Major == 0 && v.Minor == 0 && v.Patch == 0
	}
	return v.Major == 0
}

// FirstReleaseResolver computes the version of a repository without any
// release tag.
type FirstReleaseResolver struct {
	classifier *Classifier
	policy     FirstReleasePolicy
}

// NewFirstReleaseResolver returns a resolver using the given classifier.
func NewFirstReleaseResolver(classifier *Classifier, policy FirstReleasePolicy) *FirstReleaseResolver {
	if policy == "" {
		policy = FirstReleaseBroad
	}
	return &FirstReleaseResolver{classifier: classifier, policy: policy}
}

// Resolve decides the first release from the declared manifest version and
// the whole commit history. The declared version is the base; bump keywords
// found in the history are applied to it the same way a new pre-release
// series applies them, and without any keyword it is released as declared.
func (r *FirstReleaseResolver) Resolve(declared semver.Version, history []string, tier PreRelease, forced bool) Decision {
	const op = "firstrelease.Resolve"

	declared = Base(declared)
	d := Decision{
		CurrentVersion: declared.String(),
		IsFirstRelease: true,
	}

	if !r.policy.IsStandardStart(declared) {
		if !forced {
			err := newError(KindUnusualFirstRelease, op,
				"no release tags found and manifest version %s is not a usual first version", declared).
				WithDetail("declaredVersion", declared.String())
			d.ErrorKind = err.Kind.String()
			d.ErrorMessage = err.Error()
			d.ActionRequired = true
			d.ActionInstructions = r.instructions(declared)
			return d
		}
		d.Warnings = append(d.Warnings,
			fmt.Sprintf("first release forced for unusual version %s", declared))
	}

	agg := r.classifier.Aggregate(history)
	base := declared
	if agg.Explicit {
		base = Step(declared, agg.Bump)
	}
	build := NextBuildNumber(ActionStart, nil, base, tier)

	d.Success = true
	d.Action = ActionStart
	d.BumpCategory = agg.Bump
	d.PreRelease = tier
	d.PreReleaseHint = agg.Hint
	d.BuildNumber = build
	d.NewVersion = FormatVersion(base, tier, build)
	return d
}

func (r *FirstReleaseResolver) instructions(declared semver.Version) string {
	var b strings.Builder
	fmt.Fprintf(&b, "The manifest declares version %s but the repository has no release tags.\n", declared)
	if r.policy == FirstReleaseStrict {
		b.WriteString("A first release normally starts from 0.0.0 or 1.0.0.\n\n")
	} else {
		b.WriteString("A first release normally starts from 0.x.y or 1.0.0.\n\n")
	}
	b.WriteString("Choose one:\n")
	b.WriteString("  1. Fresh start: set the manifest version to 0.1.0 or 1.0.0 and re-run.\n")
	fmt.Fprintf(&b, "  2. Migration: the project was already released as %s elsewhere; "+
		"re-run with --force-first-release to publish it as the first tag.\n", declared)
	b.WriteString("  3. Reset: release tags were lost (shallow clone or deleted tags); " +
		"fetch them with 'git fetch --tags' and re-run.")
	return b.String()
}
