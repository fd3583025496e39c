package verbump

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/cases"
)

// BranchPolicy maps release branch names to the pre-release tier they
// publish. Branch names are compared with Unicode case folding, so "Main"
// and "main" are the same branch. A BranchPolicy is immutable.
type BranchPolicy struct {
	tiers map[string]PreRelease
}

// DefaultBranchPolicy returns the built-in release branch table.
func DefaultBranchPolicy() *BranchPolicy {
	return NewBranchPolicy(map[string]PreRelease{
		"release":     PreReleaseNone,
		"main":        PreReleaseBeta,
		"master":      PreReleaseBeta,
		"staging":     PreReleaseBeta,
		"dev":         PreReleaseAlpha,
		"development": PreReleaseAlpha,
	})
}

// NewBranchPolicy builds a policy from a branch to tier table. The table is
// copied.
func NewBranchPolicy(tiers map[string]PreRelease) *BranchPolicy {
	p := &BranchPolicy{tiers: make(map[string]PreRelease, len(tiers))}
	for name, tier := range tiers {
		p.tiers[foldBranch(name)] = tier
	}
	return p
}

// ParseBranchPolicy builds a policy from tier names, as found in config files.
func ParseBranchPolicy(table map[string]string) (*BranchPolicy, error) {
	tiers := make(map[string]PreRelease, len(table))
	for name, value := range table {
		tier, err := ParsePreRelease(value)
		if err != nil {
			return nil, fmt.Errorf("branch %q: %w", name, err)
		}
		tiers[name] = tier
	}
	return NewBranchPolicy(tiers), nil
}

// IsReleaseBranch reports whether the branch may cut a release at all.
func (p *BranchPolicy) IsReleaseBranch(name string) bool {
	_, ok := p.tiers[foldBranch(name)]
	return ok
}

// TierFor returns the tier a release branch publishes. Callers must check
// IsReleaseBranch first; unknown branches report PreReleaseNone.
func (p *BranchPolicy) TierFor(name string) PreRelease {
	return p.tiers[foldBranch(name)]
}

// Branches lists the release branches in a stable order.
func (p *BranchPolicy) Branches() []string {
	names := make([]string, 0, len(p.tiers))
	for name := range p.tiers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (p *BranchPolicy) describe() string {
	var parts []string
	for _, name := range p.Branches() {
		tier := p.tiers[name]
		label := tier.String()
		if tier == PreReleaseNone {
			label = "stable"
		}
		parts = append(parts, fmt.Sprintf("%s (%s)", name, label))
	}
	return strings.Join(parts, ", ")
}

func foldBranch(name string) string {
	name = strings.TrimSpace(name)
	name = strings.TrimPrefix(name, "refs/heads/")
	// a Caser keeps state, so each call gets its own
	return cases.Fold().String(name)
}
