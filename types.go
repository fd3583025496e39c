// Package verbump decides the next semantic version of a project from its Git
// history, its release branch and the version declared in its manifest.
//
// The version handling in this package grew out of code adapted from pulumictl
// (https://github.com/pulumi/pulumictl), which is licensed under the Apache
// License 2.0. See NOTICE file for full attribution.
package verbump

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
)

// BumpCategory is the magnitude of a version increment.
type BumpCategory int

const (
	BumpNone BumpCategory = iota
	BumpPatch
	BumpMinor
	BumpMajor
)

func (b BumpCategory) String() string {
	switch b {
	case BumpPatch:
		return "patch"
	case BumpMinor:
		return "minor"
	case BumpMajor:
		return "major"
	default:
		return "none"
	}
}

// MarshalText renders the category as its lower-case name.
func (b BumpCategory) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

// PreRelease is the pre-release tier of a version. PreReleaseNone is a stable
// release.
type PreRelease int

const (
	PreReleaseNone PreRelease = iota
	PreReleaseAlpha
	PreReleaseBeta
)

func (p PreRelease) String() string {
	switch p {
	case PreReleaseAlpha:
		return "alpha"
	case PreReleaseBeta:
		return "beta"
	default:
		return "none"
	}
}

// MarshalText renders the tier as its lower-case name.
func (p PreRelease) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// ParsePreRelease parses a tier name. "stable", "none", "release" and the
// empty string all map to PreReleaseNone.
func ParsePreRelease(s string) (PreRelease, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none", "stable", "release":
		return PreReleaseNone, nil
	case "alpha":
		return PreReleaseAlpha, nil
	case "beta":
		return PreReleaseBeta, nil
	default:
		return PreReleaseNone, fmt.Errorf("invalid pre-release tier: %q (must be stable, alpha or beta)", s)
	}
}

// Classification is the keyword evidence found in one or more commit messages.
type Classification struct {
	Bump BumpCategory
	Hint PreRelease
	// Explicit is true when at least one bump keyword matched. A false value
	// means Bump is the patch default.
	Explicit bool
}

// Input carries the facts of a single decision that do not come from the
// repository history.
type Input struct {
	// Branch is the branch under evaluation.
	Branch string

	// TargetBranch is the ref commits are collected up to. When empty it
	// falls back to Branch, then to the repository default branch.
	TargetBranch string

	// DeclaredVersion is the version read from the project manifest.
	DeclaredVersion string

	// ForceFirstRelease accepts an unusual starting version when no release
	// tag exists.
	ForceFirstRelease bool

	// ForceMismatch accepts a manifest version that disagrees with the latest
	// release tag.
	ForceMismatch bool
}

// Options configures an Engine. Zero values fall back to the defaults.
type Options struct {
	// Policy maps release branches to tiers. Nil means DefaultBranchPolicy.
	Policy *BranchPolicy

	// Keywords are the bump keywords. Nil means DefaultKeywords.
	Keywords *Keywords

	// FirstRelease selects which versions are usual first releases.
	FirstRelease FirstReleasePolicy

	// Logger receives stage by stage records. Nil discards them.
	Logger *log.Logger
}

// Decision is the outcome of a version decision. It is always returned, even
// on failure.
type Decision struct {
	Success            bool         `json:"success"`
	BumpCategory       BumpCategory `json:"bumpType"`
	CurrentVersion     string       `json:"currentVersion"`
	NewVersion         string       `json:"newVersion,omitempty"`
	PreRelease         PreRelease   `json:"preRelease"`
	PreReleaseHint     PreRelease   `json:"preReleaseHint"`
	BuildNumber        uint64       `json:"buildNumber,omitempty"`
	Action             Action       `json:"action,omitempty"`
	IsFirstRelease     bool         `json:"isFirstRelease"`
	LastTag            string       `json:"lastTag,omitempty"`
	BranchName         string       `json:"branch"`
	TargetBranch       string       `json:"targetBranch,omitempty"`
	ErrorKind          string       `json:"errorKind,omitempty"`
	ErrorMessage       string       `json:"error,omitempty"`
	ActionRequired     bool         `json:"actionRequired"`
	ActionInstructions string       `json:"actionInstructions,omitempty"`
	Warnings           []string     `json:"warnings,omitempty"`
}

// Suffix returns the pre-release suffix of the new version, e.g. "-beta.2".
func (d Decision) Suffix() string {
	if d.PreRelease == PreReleaseNone || d.BuildNumber == 0 {
		return ""
	}
	return fmt.Sprintf("-%s.%d", d.PreRelease, d.BuildNumber)
}

// Failed reports whether callers must stop before tagging or releasing.
func (d Decision) Failed() bool {
	return !d.Success || d.ActionRequired
}
