package report

import (
	"bytes"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"time"
)

// HTMLConfig contains configuration for HTML report generation.
type HTMLConfig struct {
	OutputPath string // Path to write the HTML file, default <reportDir>/report.html
	Title      string // Report title (default: "Device Features Report")
}

// HTMLData contains all data needed for the HTML template.
type HTMLData struct {
	Title         string
	GeneratedAt   string
	Index         *Index
	TotalDuration string
	PassRate      float64
	Scenarios     []ScenarioHTMLData
}

// ScenarioHTMLData contains scenario data formatted for HTML.
type ScenarioHTMLData struct {
	Scenario
	DurationStr string
	Sections    []SectionHTMLData
}

// SectionHTMLData is one of setup, steps and cleanup.
type SectionHTMLData struct {
	Title string
	Steps []StepHTMLData
}

// StepHTMLData contains step data formatted for HTML.
type StepHTMLData struct {
	Step
	DurationStr string
}

// GenerateHTML renders report.json of reportDir as a static HTML page.
func GenerateHTML(reportDir string, cfg HTMLConfig) error {
	index, err := ReadReport(reportDir)
	if err != nil {
		return fmt.Errorf("read report: %w", err)
	}

	if cfg.Title == "" {
		cfg.Title = "Device Features Report"
	}
	if cfg.OutputPath == "" {
		cfg.OutputPath = filepath.Join(reportDir, HTMLFile)
	}

	var buf bytes.Buffer
	if err := htmlTemplate.Execute(&buf, buildHTMLData(index, cfg)); err != nil {
		return fmt.Errorf("render html: %w", err)
	}

	if err := os.WriteFile(cfg.OutputPath, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write html: %w", err)
	}
	return nil
}

func buildHTMLData(index *Index, cfg HTMLConfig) HTMLData {
	data := HTMLData{
		Title:         cfg.Title,
		GeneratedAt:   time.Now().Format("2006-01-02 15:04:05"),
		Index:         index,
		TotalDuration: formatDuration(index.Duration),
	}
	if index.Summary.Total > 0 {
		data.PassRate = float64(index.Summary.Passed) / float64(index.Summary.Total) * 100
	}

	for _, sc := range index.Scenarios {
		s := ScenarioHTMLData{Scenario: sc, DurationStr: formatDuration(sc.Duration)}
		for _, sec := range []struct {
			title string
			steps []Step
		}{{"Setup", sc.Setup}, {"Steps", sc.Steps}, {"Cleanup", sc.Cleanup}} {
			if len(sec.steps) == 0 {
				continue
			}
			section := SectionHTMLData{Title: sec.title}
			for _, st := range sec.steps {
				section.Steps = append(section.Steps, StepHTMLData{Step: st, DurationStr: formatDuration(st.Duration)})
			}
			s.Sections = append(s.Sections, section)
		}
		data.Scenarios = append(data.Scenarios, s)
	}
	return data
}

var htmlTemplate = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", sans-serif; margin: 2rem; color: #222; }
h1 { margin-bottom: 0.2rem; }
.meta { color: #666; margin-bottom: 1.5rem; }
.summary span { margin-right: 1.5rem; }
.scenario { border: 1px solid #ddd; border-radius: 6px; margin: 1rem 0; padding: 0.8rem 1rem; }
.scenario h2 { font-size: 1.1rem; margin: 0 0 0.4rem 0; }
.passed { color: #1a7f37; }
.failed { color: #cf222e; }
.errored { color: #9a6700; }
.skipped { color: #6e7781; }
table { border-collapse: collapse; width: 100%; margin-top: 0.4rem; }
td { padding: 0.2rem 0.5rem; border-top: 1px solid #eee; font-size: 0.9rem; }
.message { font-family: monospace; }
img { max-width: 320px; margin-top: 0.5rem; border: 1px solid #ddd; }
</style>
</head>
<body>
<h1>{{.Title}}</h1>
<div class="meta">{{.Index.App.ID}} on {{.Index.Device.Name}} ({{.Index.Device.Platform}} {{.Index.Device.OSVersion}}{{if .Index.Device.Screen}}, {{.Index.Device.Screen}}{{end}}) · run {{.Index.RunID}} · generated {{.GeneratedAt}}</div>
<div class="summary">
<span>Total: {{.Index.Summary.Total}}</span>
<span class="passed">Passed: {{.Index.Summary.Passed}}</span>
<span class="failed">Failed: {{.Index.Summary.Failed}}</span>
<span class="skipped">Skipped: {{.Index.Summary.Skipped}}</span>
<span>Pass rate: {{printf "%.0f" .PassRate}}%</span>
<span>Duration: {{.TotalDuration}}</span>
</div>
{{range .Scenarios}}
<div class="scenario">
<h2><span class="{{.Status}}">{{.Status}}</span> {{.Name}} <small>{{.DurationStr}}</small></h2>
{{if .Message}}<div class="message {{.Status}}">{{.Message}}</div>{{end}}
{{range .Sections}}
<table>
<tr><td colspan="3"><strong>{{.Title}}</strong></td></tr>
{{range .Steps}}<tr><td class="{{.Status}}">{{.Status}}</td><td>{{.Name}}</td><td>{{.DurationStr}}</td></tr>
{{if .Message}}<tr><td></td><td colspan="2" class="message">{{.Message}}</td></tr>{{end}}{{end}}
</table>
{{end}}
{{range .Attachments}}{{if eq .ContentType "image/png"}}<img src="{{.Path}}" alt="{{.Name}}">{{else}}<div><a href="{{.Path}}">{{.Name}}</a></div>{{end}}{{end}}
</div>
{{end}}
</body>
</html>
`))
