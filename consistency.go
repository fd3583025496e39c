package verbump

import (
	"fmt"

	"github.com/blang/semver"
)

// ConsistencyResult is the outcome of CheckConsistency.
type ConsistencyResult struct {
	RequiresAction bool
	Err            *Error
	Instructions   string
	Warning        string
	// PinDeclared asks the caller to release the manifest version itself
	// instead of computing one from the latest tag.
	PinDeclared bool
}

// CheckConsistency compares the manifest version with the latest release.
//
// Equal versions need nothing. A manifest exactly one major, minor or patch
// step ahead is accepted with a warning, as left behind by a run that
// updated the manifest but failed before tagging. Anything else blocks
// unless force is set, in which case a forward jump is released as declared.
func CheckConsistency(declared, latest semver.Version, force bool) ConsistencyResult {
	const op = "consistency.Check"

	declared, latest = Base(declared), Base(latest)

	switch declared.Compare(latest) {
	case 0:
		return ConsistencyResult{}

	case -1:
		if force {
			return ConsistencyResult{Warning: fmt.Sprintf(
				"manifest version %s is behind latest tag %s; continuing because mismatch was forced", declared, latest)}
		}
		err := newError(KindVersionMismatch, op,
			"manifest version %s is behind latest tag %s", declared, latest).
			WithDetail("declaredVersion", declared.String()).
			WithDetail("latestTag", latest.String())
		return ConsistencyResult{
			RequiresAction: true,
			Err:            err,
			Instructions: fmt.Sprintf("The manifest went backwards.\n\n"+
				"Choose one:\n"+
				"  1. Raise the manifest version to %s (or later) and re-run.\n"+
				"  2. If tag %s was created by mistake, delete it and re-run.\n"+
				"  3. Re-run with --force-mismatch to compute from the latest tag anyway.",
				latest, latest),
		}
	}

	for _, bump := range []BumpCategory{BumpPatch, BumpMinor, BumpMajor} {
		if declared.EQ(Step(latest, bump)) {
			return ConsistencyResult{Warning: fmt.Sprintf(
				"manifest version %s is already one %s step ahead of latest tag %s", declared, bump, latest)}
		}
	}

	if force {
		return ConsistencyResult{PinDeclared: true, Warning: fmt.Sprintf(
			"manifest version %s jumps ahead of latest tag %s; releasing it because mismatch was forced", declared, latest)}
	}
	err := newError(KindVersionMismatch, op,
		"manifest version %s jumps ahead of latest tag %s", declared, latest).
		WithDetail("declaredVersion", declared.String()).
		WithDetail("latestTag", latest.String())
	return ConsistencyResult{
		RequiresAction: true,
		Err:            err,
		Instructions: fmt.Sprintf("The manifest is more than one release ahead of the tags.\n\n"+
			"Choose one:\n"+
			"  1. Set the manifest version back to %s, %s or %s and re-run.\n"+
			"  2. If tags are missing (shallow clone), fetch them with 'git fetch --tags' and re-run.\n"+
			"  3. Re-run with --force-mismatch to accept the jump.",
			Step(latest, BumpPatch), Step(latest, BumpMinor), Step(latest, BumpMajor)),
	}
}
