package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/jaxxstorm/verbump"
	"github.com/muesli/termenv"
)

// Version will be set by build process
var Version = "dev"

// errDecisionFailed signals a decision that must stop the pipeline. The
// decision itself has already been printed.
var errDecisionFailed = errors.New("version decision failed")

type CLI struct {
	Convert           string `arg:"" optional:"" help:"Version string to render in --language format instead of deciding a version"`
	Repo              string `short:"r" help:"Repository path (default: current directory)"`
	Branch            string `short:"b" env:"GITHUB_REF_NAME" help:"Branch under evaluation (default: current branch)"`
	TargetBranch      string `short:"t" help:"Branch commits are collected up to (default: the branch, then the default branch)"`
	Manifest          string `short:"m" help:"Manifest declaring the current version (default: detected in the repository root)"`
	DeclaredVersion   string `help:"Declared version, instead of reading a manifest"`
	Config            string `short:"c" help:"Config file (default: .verbump.{yaml,yml,toml,json} in the repository root)"`
	ForceFirstRelease bool   `help:"Accept an unusual version for the first release"`
	ForceMismatch     bool   `help:"Accept a manifest version that disagrees with the latest tag"`
	TagPrefix         string `help:"Only consider tags with this prefix, e.g. 'sdk/'"`
	AllCommits        bool   `help:"Classify every commit since the last tag, not only merge commits"`
	WriteManifest     bool   `help:"Write the new version back to the manifest"`
	Language          string `short:"l" default:"generic" enum:"generic,semver,python,javascript,js,node,dotnet,csharp,go,golang" help:"Output format"`
	JSON              bool   `short:"j" help:"Output as JSON"`
	NoColor           bool   `help:"Disable colored output"`
	LogLevel          string `default:"warn" enum:"debug,info,warn,error" help:"Log level"`
	LogFormat         string `default:"text" enum:"text,json" help:"Log format"`
	GitHubOutput      string `name:"github-output" env:"GITHUB_OUTPUT" help:"File to append step outputs to"`
	StepSummary       string `env:"GITHUB_STEP_SUMMARY" help:"File to append a markdown summary to"`
	ShowVersion       bool   `help:"Show version information" name:"version"`
}

func main() {
	var cli CLI

	kong.Parse(&cli,
		kong.Name("verbump"),
		kong.Description("Decide the next semantic version from Git history, release branch and manifest"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
		kong.Vars{
			"version": Version,
		},
	)

	err := cli.Run()
	if errors.Is(err, errDecisionFailed) {
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func (c *CLI) Run() error {
	if c.ShowVersion {
		return c.showVersion()
	}

	if c.NoColor {
		lipgloss.SetColorProfile(termenv.Ascii)
	}

	if c.Convert != "" {
		return c.convertVersion()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	return c.decide(ctx)
}

func (c *CLI) showVersion() error {
	versionInfo := map[string]string{
		"version": Version,
		"name":    "verbump",
	}

	if c.JSON {
		return json.NewEncoder(os.Stdout).Encode(versionInfo)
	}

	fmt.Printf("verbump version %s\n", Version)
	return nil
}

func (c *CLI) convertVersion() error {
	versions, err := verbump.Formats(c.Convert)
	if err != nil {
		return fmt.Errorf("converting version: %w", err)
	}

	if c.JSON {
		return json.NewEncoder(os.Stdout).Encode(versions)
	}

	fmt.Println(versions.Render(c.Language))
	return nil
}

func (c *CLI) decide(ctx context.Context) error {
	logger := newLogger(os.Stderr, c.LogLevel, c.LogFormat)

	repoPath, err := c.repoPath()
	if err != nil {
		return err
	}

	loader := verbump.NewConfigLoader().WithSearchPaths(repoPath)
	if c.Config != "" {
		loader.WithConfigPath(c.Config)
	}
	cfg, err := loader.Load()
	if err != nil {
		return err
	}
	if file := loader.ConfigFile(); file != "" {
		logger.Debug("loaded config", "file", file)
	}

	opts, err := cfg.EngineOptions(logger)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	gitOpts := cfg.GitOptions()
	if c.TagPrefix != "" {
		gitOpts.TagPrefix = c.TagPrefix
	}
	if c.AllCommits {
		gitOpts.AllCommits = true
	}

	repo, err := verbump.OpenRepository(repoPath)
	if err != nil {
		return fmt.Errorf("opening repository: %w", err)
	}
	source, err := verbump.NewGitSource(repo, gitOpts)
	if err != nil {
		return err
	}
	engine, err := verbump.NewEngine(source, opts)
	if err != nil {
		return err
	}

	in := verbump.Input{
		Branch:            c.Branch,
		TargetBranch:      c.TargetBranch,
		ForceFirstRelease: c.ForceFirstRelease,
		ForceMismatch:     c.ForceMismatch,
	}
	if in.Branch == "" {
		if branch, err := source.CurrentBranch(); err == nil {
			in.Branch = branch
		} else {
			logger.Debug("no current branch, falling back to the default branch", "err", err)
		}
	}

	manifest := c.manifestPath(repoPath)
	var d verbump.Decision
	if declared, err := c.declaredVersion(manifest); err != nil {
		d = verbump.Decision{
			BranchName:   in.Branch,
			ErrorKind:    verbump.GetKind(err).String(),
			ErrorMessage: err.Error(),
		}
	} else {
		in.DeclaredVersion = declared
		d = engine.Decide(ctx, in)
	}

	if c.WriteManifest && !d.Failed() {
		if err := updateManifest(source, manifest, &d, logger); err != nil {
			return err
		}
	}

	if err := c.publish(d); err != nil {
		return err
	}
	if err := c.print(d); err != nil {
		return err
	}

	if d.Failed() {
		return errDecisionFailed
	}
	return nil
}

func (c *CLI) repoPath() (string, error) {
	if c.Repo != "" {
		return c.Repo, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("getting current directory: %w", err)
	}
	return wd, nil
}

// manifestPath resolves --manifest against the repository, or detects one.
func (c *CLI) manifestPath(repoPath string) string {
	if c.Manifest != "" {
		if filepath.IsAbs(c.Manifest) {
			return c.Manifest
		}
		return filepath.Join(repoPath, c.Manifest)
	}
	path, _ := verbump.DetectManifest(repoPath)
	return path
}

func (c *CLI) declaredVersion(manifest string) (string, error) {
	if c.DeclaredVersion != "" {
		return c.DeclaredVersion, nil
	}
	if manifest == "" {
		return "", &verbump.Error{
			Kind:    verbump.KindManifestFieldMissing,
			Op:      "cli",
			Message: "no manifest found; pass --manifest or --declared-version",
		}
	}
	return verbump.ReadDeclaredVersion(manifest)
}

func updateManifest(source *verbump.GitSource, manifest string, d *verbump.Decision, logger *log.Logger) error {
	if manifest == "" {
		return fmt.Errorf("--write-manifest needs a manifest file")
	}

	dirty, err := source.IsDirty()
	if err != nil {
		logger.Warn("could not check worktree status", "err", err)
	} else if dirty {
		d.Warnings = append(d.Warnings, "worktree has uncommitted changes; manifest updated anyway")
	}

	if err := verbump.WriteDeclaredVersion(manifest, d.NewVersion); err != nil {
		return fmt.Errorf("updating manifest: %w", err)
	}
	logger.Info("updated manifest", "file", manifest, "version", d.NewVersion)
	return nil
}

// publish appends CI outputs and the job summary where configured.
func (c *CLI) publish(d verbump.Decision) error {
	if c.GitHubOutput != "" {
		if err := appendTo(c.GitHubOutput, func(w io.Writer) error {
			return verbump.WriteOutputs(w, d)
		}); err != nil {
			return fmt.Errorf("writing step outputs: %w", err)
		}
	}
	if c.StepSummary != "" {
		if err := appendTo(c.StepSummary, func(w io.Writer) error {
			_, err := io.WriteString(w, verbump.Summary(d))
			return err
		}); err != nil {
			return fmt.Errorf("writing step summary: %w", err)
		}
	}
	return nil
}

type jsonDecision struct {
	verbump.Decision
	Versions *verbump.LanguageVersions `json:"versions,omitempty"`
}

// print writes the decision: JSON on stdout, or the version on stdout with
// details on stderr.
func (c *CLI) print(d verbump.Decision) error {
	var versions *verbump.LanguageVersions
	if d.Success && d.NewVersion != "" {
		v, err := verbump.Formats(d.NewVersion)
		if err != nil {
			return fmt.Errorf("rendering version: %w", err)
		}
		versions = v
	}

	if c.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(jsonDecision{Decision: d, Versions: versions})
	}

	fmt.Fprint(os.Stderr, renderDecision(d, DefaultStyles()))
	if versions != nil {
		fmt.Println(versions.Render(c.Language))
	}
	return nil
}

func newLogger(w io.Writer, level, format string) *log.Logger {
	logger := log.NewWithOptions(w, log.Options{ReportTimestamp: true})
	if format == "json" {
		logger.SetFormatter(log.JSONFormatter)
	}
	if lvl, err := log.ParseLevel(level); err == nil {
		logger.SetLevel(lvl)
	}
	return logger
}

func appendTo(path string, write func(io.Writer) error) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
