package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/devicelab-dev/device-features-runner/pkg/core"
	"github.com/devicelab-dev/device-features-runner/pkg/logger"
)

// File names inside a report directory.
const (
	IndexFile = "report.json"
	JUnitFile = "junit.xml"
	HTMLFile  = "report.html"
	AssetsDir = "assets"
)

// OutputDir returns the directory a run writes to: base itself when flatten
// is set, otherwise a timestamped folder under base.
func OutputDir(base string, flatten bool, now time.Time) string {
	if flatten {
		return base
	}
	return filepath.Join(base, now.Format("2006-01-02_15-04-05"))
}

// Write saves the attachments of suite under dir, then writes report.json,
// junit.xml and report.html. Attachment paths in suite are updated to the
// saved files.
func Write(dir string, suite *core.SuiteResult, cfg BuilderConfig) (*Index, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create report dir: %w", err)
	}

	if err := saveAttachments(dir, suite); err != nil {
		return nil, err
	}

	index := Build(suite, cfg)
	if err := atomicWriteJSON(filepath.Join(dir, IndexFile), index); err != nil {
		return nil, fmt.Errorf("write %s: %w", IndexFile, err)
	}
	if err := WriteJUnit(filepath.Join(dir, JUnitFile), index); err != nil {
		return nil, err
	}
	if err := GenerateHTML(dir, HTMLConfig{}); err != nil {
		// the JSON and JUnit files are what CI reads
		logger.Warn("html report: %v", err)
	}

	logger.Info("report written to %s", dir)
	return index, nil
}

// ReadReport loads report.json from a report directory.
func ReadReport(dir string) (*Index, error) {
	data, err := os.ReadFile(filepath.Join(dir, IndexFile)) //#nosec G304 -- report directory chosen by the user
	if err != nil {
		return nil, err
	}
	var index Index
	if err := json.Unmarshal(data, &index); err != nil {
		return nil, fmt.Errorf("parse %s: %w", IndexFile, err)
	}
	return &index, nil
}

func saveAttachments(dir string, suite *core.SuiteResult) error {
	for i := range suite.Scenarios {
		sc := &suite.Scenarios[i]
		if len(sc.Attachments) == 0 {
			continue
		}
		rel := filepath.Join(AssetsDir, ScenarioID(i, sc.Name))
		if err := os.MkdirAll(filepath.Join(dir, rel), 0o755); err != nil {
			return fmt.Errorf("create assets dir: %w", err)
		}
		for j := range sc.Attachments {
			a := &sc.Attachments[j]
			if len(a.Body) == 0 {
				continue
			}
			path := filepath.Join(rel, a.Name+extension(a.ContentType))
			if err := os.WriteFile(filepath.Join(dir, path), a.Body, 0o644); err != nil {
				return fmt.Errorf("save %s: %w", path, err)
			}
			a.Path = filepath.ToSlash(path)
		}
	}
	return nil
}

func extension(contentType string) string {
	switch contentType {
	case core.ContentTypePNG:
		return ".png"
	case core.ContentTypeXML:
		return ".xml"
	case core.ContentTypeJSON:
		return ".json"
	default:
		return ".txt"
	}
}

// atomicWriteJSON writes v to a temp file and renames it over path.
func atomicWriteJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
