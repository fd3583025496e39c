package verbump

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Output is one CI step output.
type Output struct {
	Key   string
	Value string
}

// Outputs flattens a decision into CI step outputs, in a fixed order.
func Outputs(d Decision) []Output {
	build := ""
	if d.BuildNumber > 0 {
		build = strconv.FormatUint(d.BuildNumber, 10)
	}
	tier := ""
	if d.PreRelease != PreReleaseNone {
		tier = d.PreRelease.String()
	}

	return []Output{
		{"current-version", d.CurrentVersion},
		{"bump-type", d.BumpCategory.String()},
		{"new-version", d.NewVersion},
		{"last-release-tag", d.LastTag},
		{"target-branch", d.TargetBranch},
		{"suffix", d.Suffix()},
		{"warning", strings.Join(d.Warnings, "\n")},
		{"action-required", strconv.FormatBool(d.ActionRequired)},
		{"action-instructions", d.ActionInstructions},
		{"is-first-release", strconv.FormatBool(d.IsFirstRelease)},
		{"pre-release", tier},
		{"build-number", build},
		{"success", strconv.FormatBool(d.Success)},
		{"error", d.ErrorMessage},
	}
}

// WriteOutputs writes the outputs in the GITHUB_OUTPUT file format. Multi-line
// values use the heredoc form with a random delimiter.
func WriteOutputs(w io.Writer, d Decision) error {
	for _, o := range Outputs(d) {
		var err error
		if strings.ContainsAny(o.Value, "\r\n") {
			delimiter := "ghadelimiter_" + uuid.NewString()
			_, err = fmt.Fprintf(w, "%s<<%s\n%s\n%s\n", o.Key, delimiter, o.Value, delimiter)
		} else {
			_, err = fmt.Fprintf(w, "%s=%s\n", o.Key, o.Value)
		}
		if err != nil {
			return fmt.Errorf("writing output %s: %w", o.Key, err)
		}
	}
	return nil
}

// Summary renders a decision as markdown for a CI job summary.
func Summary(d Decision) string {
	var b strings.Builder

	switch {
	case d.ActionRequired:
		b.WriteString("## Version decision: action required\n\n")
	case !d.Success:
		b.WriteString("## Version decision: failed\n\n")
	default:
		fmt.Fprintf(&b, "## Version decision: `%s`\n\n", d.NewVersion)
	}

	b.WriteString("| Field | Value |\n|---|---|\n")
	row := func(name, value string) {
		if value == "" {
			value = "-"
		}
		fmt.Fprintf(&b, "| %s | %s |\n", name, strings.ReplaceAll(value, "|", `\|`))
	}
	row("Branch", d.BranchName)
	row("Target branch", d.TargetBranch)
	row("Current version", d.CurrentVersion)
	row("Last release tag", d.LastTag)
	row("Bump", d.BumpCategory.String())
	row("Action", string(d.Action))
	row("New version", d.NewVersion)
	row("First release", strconv.FormatBool(d.IsFirstRelease))

	if d.ErrorMessage != "" {
		fmt.Fprintf(&b, "\n**Error:** %s\n", d.ErrorMessage)
	}
	if len(d.Warnings) > 0 {
		b.WriteString("\n### Warnings\n\n")
		for _, w := range d.Warnings {
			fmt.Fprintf(&b, "- %s\n", w)
		}
	}
	if d.ActionInstructions != "" {
		fmt.Fprintf(&b, "\n### What to do\n\n```\n%s\n```\n", d.ActionInstructions)
	}
	return b.String()
}
