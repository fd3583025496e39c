package verbump

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/blang/semver"
)

// releaseTagPattern matches the tags this package understands: a base version
// with an optional "-alpha.N" or "-beta.N" suffix and an optional leading "v".
var releaseTagPattern = regexp.MustCompile(`^v?(\d+\.\d+\.\d+)(?:-(alpha|beta)\.(\d+))?$`)

// Tag is a parsed release tag.
type Tag struct {
	Name    string
	Version semver.Version
	Tier    PreRelease
	Build   uint64
}

// Base returns the major.minor.patch part of the tag.
func (t Tag) Base() semver.Version {
	return Base(t.Version)
}

// ParseTag parses a release tag name. Tags that do not look like a release
// are reported with ok=false and must be ignored.
func ParseTag(name string) (Tag, bool) {
	m := releaseTagPattern.FindStringSubmatch(strings.TrimSpace(name))
	if m == nil {
		return Tag{}, false
	}

	base, err := semver.Parse(m[1])
	if err != nil {
		return Tag{}, false
	}

	tag := Tag{Name: name, Version: base}
	if m[2] != "" {
		tier, _ := ParsePreRelease(m[2])
		build, err := strconv.ParseUint(m[3], 10, 64)
		// the last uint64 leaves no room for a next build
		if err != nil || build == 0 || build == math.MaxUint64 {
			return Tag{}, false
		}
		tag.Tier = tier
		tag.Build = build
		tag.Version = withPreRelease(base, tier, build)
	}
	return tag, true
}

// LatestTag returns the release tag with the highest precedence, so
// 1.1.0 > 1.1.0-beta.1 > 1.1.0-alpha.2 > 1.0.0.
func LatestTag(tags []string) (Tag, bool) {
	var (
		latest Tag
		found  bool
	)
	for _, name := range tags {
		tag, ok := ParseTag(name)
		if !ok {
			continue
		}
		if !found || tag.Version.GT(latest.Version) {
			latest, found = tag, true
		}
	}
	return latest, found
}

// MaxBuildNumber returns the highest N among tags named {base}-{tier}.N, or 0.
func MaxBuildNumber(tags []string, base semver.Version, tier PreRelease) uint64 {
	var highest uint64
	for _, name := range tags {
		tag, ok := ParseTag(name)
		if !ok || tag.Tier != tier || tier == PreReleaseNone {
			continue
		}
		if tag.Base().EQ(Base(base)) && tag.Build > highest {
			highest = tag.Build
		}
	}
	return highest
}

// ParseVersion parses a manifest or user supplied version. It accepts an
// optional leading "v" and an optional "-alpha.N" / "-beta.N" suffix.
func ParseVersion(s string) (semver.Version, error) {
	const op = "version.Parse"

	trimmed := strings.TrimSpace(s)
	tag, ok := ParseTag(trimmed)
	if !ok {
		return semver.Version{}, newError(KindMalformedVersion, op,
			"version %q must match MAJOR.MINOR.PATCH", s)
	}
	return tag.Version, nil
}

// Base strips pre-release and build metadata.
func Base(v semver.Version) semver.Version {
	return semver.Version{Major: v.Major, Minor: v.Minor, Patch: v.Patch}
}

// Step applies a bump to the numeric part of a version. The result never
// carries a pre-release suffix.
func Step(v semver.Version, bump BumpCategory) semver.Version {
	switch bump {
	case BumpMajor:
		return semver.Version{Major: v.Major + 1}
	case BumpMinor:
		return semver.Version{Major: v.Major, Minor: v.Minor + 1}
	case BumpPatch:
		return semver.Version{Major: v.Major, Minor: v.Minor, Patch: v.Patch + 1}
	default:
		return Base(v)
	}
}

// FormatVersion renders {base} or {base}-{tier}.{build}.
func FormatVersion(base semver.Version, tier PreRelease, build uint64) string {
	if tier == PreReleaseNone {
		return Base(base).String()
	}
	return withPreRelease(base, tier, build).String()
}

func withPreRelease(base semver.Version, tier PreRelease, build uint64) semver.Version {
	v := Base(base)
	v.Pre = []semver.PRVersion{
		{VersionStr: tier.String()},
		{VersionNum: build, IsNum: true},
	}
	return v
}

// LanguageVersions contains a version rendered for different language ecosystems
type LanguageVersions struct {
	SemVer     string `json:"semver"`
	Python     string `json:"python"`
	JavaScript string `json:"javascript"`
	DotNet     string `json:"dotnet"`
	Go         string `json:"go"`
}

// Formats renders a version string for each supported ecosystem.
func Formats(version string) (*LanguageVersions, error) {
	normalised := strings.TrimPrefix(version, "v")

	parts := strings.SplitN(normalised, ".", 3)
	if len(parts) != 3 {
		return nil, fmt.Errorf("version must have exactly 3 parts: %q", version)
	}

	major, minor, patch := parts[0], parts[1], parts[2]

	pythonPatch, err := convertPatchToPython(patch)
	if err != nil {
		return nil, fmt.Errorf("converting patch for Python: %w", err)
	}

	genericVersion := fmt.Sprintf("%s.%s.%s", major, minor, patch)

	return &LanguageVersions{
		SemVer:     genericVersion,
		Python:     fmt.Sprintf("%s.%s.%s", major, minor, pythonPatch),
		JavaScript: "v" + genericVersion,
		DotNet:     genericVersion,
		Go:         "v" + genericVersion,
	}, nil
}

// Render picks one ecosystem rendering by name. Unknown names get SemVer.
func (l *LanguageVersions) Render(language string) string {
	switch strings.ToLower(language) {
	case "python":
		return l.Python
	case "javascript", "js", "node":
		return l.JavaScript
	case "dotnet", ".net", "csharp":
		return l.DotNet
	case "go", "golang":
		return l.Go
	default:
		return l.SemVer
	}
}

var (
	patchPattern    = regexp.MustCompile(`^(\d+)(.*)$`)
	preNumberRegexp = regexp.MustCompile(`\W(\d+)(\W|$)`)
)

// convertPatchToPython converts a patch such as "0-beta.2" to PEP 440 ("0b2").
func convertPatchToPython(patch string) (string, error) {
	matches := patchPattern.FindStringSubmatch(patch)
	if len(matches) != 3 {
		return patch, nil
	}

	number, pre := matches[1], matches[2]
	if pre == "" {
		return number, nil
	}

	var prefix, remaining string
	switch {
	case strings.HasPrefix(pre, "-alpha"):
		prefix, remaining = "a", pre[6:]
	case strings.HasPrefix(pre, "-beta"):
		prefix, remaining = "b", pre[5:]
	default:
		return "", fmt.Errorf("invalid prerelease type: %q", pre)
	}

	// PEP 440 requires a number after the pre-release marker
	suffix := "0"
	if nums := preNumberRegexp.FindStringSubmatch(remaining); len(nums) == 3 {
		suffix = nums[1]
	}

	return number + prefix + suffix, nil
}
