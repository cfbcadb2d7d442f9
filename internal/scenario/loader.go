package scenario

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// scenarioLoader implements the Loader interface on an afero filesystem
type scenarioLoader struct {
	fs     afero.Fs
	logger Logger
}

// NewLoader creates a loader reading from the OS filesystem
func NewLoader(logger Logger) Loader {
	return NewLoaderWithFs(afero.NewOsFs(), logger)
}

// NewLoaderWithFs creates a loader reading from fs
func NewLoaderWithFs(fs afero.Fs, logger Logger) Loader {
	if logger == nil {
		logger = NewSilentLogger(false, false)
	}
	return &scenarioLoader{fs: fs, logger: logger}
}

// LoadScenarios loads every scenario under path, which may be a single file
// or a directory searched recursively for YAML files. Scenarios are returned
// sorted by file name.
func (l *scenarioLoader) LoadScenarios(path string) ([]Scenario, error) {
	l.logger.Debug("📁 Loading scenarios from: %s\n", path)

	info, err := l.fs.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("scenario path does not exist: %s", path)
		}
		return nil, fmt.Errorf("failed to stat scenario path: %w", err)
	}

	var files []string
	if info.IsDir() {
		err := afero.Walk(l.fs, path, func(p string, fi os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if !fi.IsDir() && isYAMLFile(p) {
				files = append(files, p)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to walk directory %s: %w", path, err)
		}
		sort.Strings(files)
	} else {
		files = []string{path}
	}

	var scenarios []Scenario
	for _, file := range files {
		l.logger.Debug("📄 Loading scenario file: %s\n", file)
		loaded, err := l.loadFile(file)
		if err != nil {
			return nil, err
		}
		scenarios = append(scenarios, loaded...)
	}

	l.logger.Debug("📋 Loaded %d scenarios\n", len(scenarios))
	for _, s := range scenarios {
		l.logger.Debug("  • %s [%s] - %d steps\n", s.Name, strings.Join(s.Tags, ","), len(s.Steps))
	}
	return scenarios, nil
}

// loadFile decodes every YAML document in file. Unknown fields are rejected
// so that a misspelled step kind does not silently become a no-op.
func (l *scenarioLoader) loadFile(file string) ([]Scenario, error) {
	content, err := afero.ReadFile(l.fs, file)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", file, err)
	}
	return decodeScenarios(file, content)
}

func decodeScenarios(file string, content []byte) ([]Scenario, error) {
	dec := yaml.NewDecoder(bytes.NewReader(content))
	dec.KnownFields(true)

	var out []Scenario
	for {
		var s Scenario
		err := dec.Decode(&s)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse YAML in %s: %w", file, err)
		}
		s.File = file
		out = append(out, s)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no scenario found in %s", file)
	}
	return out, nil
}

func isYAMLFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// FilterScenarios keeps the scenarios selected by config: by exact name when
// config.Scenario is set, and by any matching tag when config.Tags is set.
func (l *scenarioLoader) FilterScenarios(scenarios []Scenario, config Configuration) []Scenario {
	return FilterScenarios(scenarios, config)
}

// FilterScenarios is the loader-independent filter used by FilterScenarios.
func FilterScenarios(scenarios []Scenario, config Configuration) []Scenario {
	var out []Scenario
	for _, s := range scenarios {
		if config.Scenario != "" && s.Name != config.Scenario {
			continue
		}
		if len(config.Tags) > 0 && !hasAnyTag(s, config.Tags) {
			continue
		}
		out = append(out, s)
	}
	return out
}

func hasAnyTag(s Scenario, tags []string) bool {
	for _, t := range tags {
		if slices.Contains(s.Tags, t) {
			return true
		}
	}
	return false
}
