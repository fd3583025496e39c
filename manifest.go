package verbump

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// manifestFormat reads and rewrites the version field of one manifest type.
type manifestFormat interface {
	// read returns the declared version, or "" when the field is absent.
	read(data []byte) (string, error)
	// write returns data with the version field replaced.
	write(data []byte, version string) ([]byte, error)
}

var manifestFormats = map[string]manifestFormat{
	"package.json":   jsonManifest{},
	"composer.json":  jsonManifest{},
	"cargo.toml":     tomlManifest{sections: [][]string{{"package"}}},
	"pyproject.toml": tomlManifest{sections: [][]string{{"project"}, {"tool", "poetry"}}},
	"chart.yaml":     yamlManifest{},
	"pubspec.yaml":   yamlManifest{},
}

// manifestCandidates are the files DetectManifest looks for, in order.
var manifestCandidates = []string{
	"package.json",
	"Cargo.toml",
	"pyproject.toml",
	"Chart.yaml",
	"pubspec.yaml",
	"composer.json",
	"VERSION",
}

// DetectManifest returns the first known manifest found in dir.
func DetectManifest(dir string) (string, bool) {
	for _, name := range manifestCandidates {
		path := filepath.Join(dir, name)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, true
		}
	}
	return "", false
}

func formatFor(path string) manifestFormat {
	if f, ok := manifestFormats[strings.ToLower(filepath.Base(path))]; ok {
		return f
	}
	return plainManifest{}
}

// ReadDeclaredVersion reads the version declared in a manifest. The format is
// picked from the file name; unknown files are read as a plain VERSION file.
func ReadDeclaredVersion(path string) (string, error) {
	const op = "manifest.Read"

	data, err := os.ReadFile(path)
	if err != nil {
		return "", wrapError(err, KindManifestFieldMissing, op, "reading %s", path)
	}

	version, err := formatFor(path).read(data)
	if err != nil {
		return "", wrapError(err, KindMalformedVersion, op, "parsing %s", path)
	}
	if version == "" {
		return "", newError(KindManifestFieldMissing, op, "no version field in %s", path).
			WithDetail("path", path)
	}
	if _, err := ParseVersion(version); err != nil {
		return "", wrapError(err, KindMalformedVersion, op, "invalid version in %s", path)
	}

	return version, nil
}

// WriteDeclaredVersion replaces the version field of a manifest, leaving the
// rest of the file untouched.
func WriteDeclaredVersion(path, version string) error {
	const op = "manifest.Write"

	if _, err := ParseVersion(version); err != nil {
		return err
	}

	info, err := os.Stat(path)
	if err != nil {
		return wrapError(err, KindManifestFieldMissing, op, "stat %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return wrapError(err, KindManifestFieldMissing, op, "reading %s", path)
	}

	updated, err := formatFor(path).write(data, version)
	if err != nil {
		return wrapError(err, KindManifestFieldMissing, op, "updating %s", path)
	}

	if err := os.WriteFile(path, updated, info.Mode().Perm()); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

var errNoVersionField = errors.New("version field not found")

type jsonManifest struct{}

var jsonVersionPattern = regexp.MustCompile(`("version"\s*:\s*)"[^"]*"`)

func (jsonManifest) read(data []byte) (string, error) {
	var pkg struct {
		Version string `json:"version"`
	}
	if err := json.Unmarshal(data, &pkg); err != nil {
		return "", err
	}
	return strings.TrimSpace(pkg.Version), nil
}

func (jsonManifest) write(data []byte, version string) ([]byte, error) {
	loc := jsonVersionPattern.FindSubmatchIndex(data)
	if loc == nil {
		return nil, errNoVersionField
	}
	return splice(data, loc[3], loc[1], fmt.Sprintf("%q", version)), nil
}

type tomlManifest struct {
	// sections are the tables holding the version, in lookup order.
	sections [][]string
}

func (m tomlManifest) read(data []byte) (string, error) {
	var doc map[string]any
	if err := toml.Unmarshal(data, &doc); err != nil {
		return "", err
	}
	for _, section := range m.sections {
		table := doc
		for _, key := range section {
			next, ok := table[key].(map[string]any)
			if !ok {
				table = nil
				break
			}
			table = next
		}
		if v, ok := table["version"].(string); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v), nil
		}
	}
	return "", nil
}

var (
	tomlHeaderPattern  = regexp.MustCompile(`^\s*\[([^\[\]]+)\]\s*(#.*)?$`)
	tomlVersionPattern = regexp.MustCompile(`^(\s*version\s*=\s*)(["'])[^"']*(["'])`)
)

func (m tomlManifest) write(data []byte, version string) ([]byte, error) {
	for _, section := range m.sections {
		want := strings.Join(section, ".")
		var (
			current string
			offset  int
		)
		for _, line := range bytes.SplitAfter(data, []byte("\n")) {
			if h := tomlHeaderPattern.FindSubmatch(bytes.TrimRight(line, "\r\n")); h != nil {
				current = strings.TrimSpace(string(h[1]))
			} else if current == want {
				if loc := tomlVersionPattern.FindSubmatchIndex(line); loc != nil {
					// replace what sits between the quotes
					return splice(data, offset+loc[5], offset+loc[6], version), nil
				}
			}
			offset += len(line)
		}
	}
	return nil, errNoVersionField
}

type yamlManifest struct{}

var yamlVersionPattern = regexp.MustCompile(`(?m)^(version:[ \t]*)(["']?)([^"'\s#]+)(["']?)`)

func (yamlManifest) read(data []byte) (string, error) {
	var doc struct {
		Version string `yaml:"version"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return "", err
	}
	return strings.TrimSpace(doc.Version), nil
}

func (yamlManifest) write(data []byte, version string) ([]byte, error) {
	loc := yamlVersionPattern.FindSubmatchIndex(data)
	if loc == nil {
		return nil, errNoVersionField
	}
	return splice(data, loc[6], loc[7], version), nil
}

// plainManifest is a file holding only the version, such as VERSION.
type plainManifest struct{}

func (plainManifest) read(data []byte) (string, error) {
	for _, line := range strings.Split(string(data), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line, nil
		}
	}
	return "", nil
}

func (plainManifest) write(_ []byte, version string) ([]byte, error) {
	return []byte(version + "\n"), nil
}

func splice(data []byte, start, end int, replacement string) []byte {
	out := make([]byte, 0, len(data)+len(replacement))
	out = append(out, data[:start]...)
	out = append(out, replacement...)
	return append(out, data[end:]...)
}
