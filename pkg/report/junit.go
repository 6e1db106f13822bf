package report

import (
	"encoding/xml"
	"fmt"
	"os"
	"strings"
)

// JUnit XML schema types, as read by common CI systems.

type junitSuites struct {
	XMLName  xml.Name     `xml:"testsuites"`
	Name     string       `xml:"name,attr"`
	Tests    int          `xml:"tests,attr"`
	Failures int          `xml:"failures,attr"`
	Errors   int          `xml:"errors,attr"`
	Skipped  int          `xml:"skipped,attr"`
	Time     string       `xml:"time,attr"`
	Suites   []junitSuite `xml:"testsuite"`
}

type junitSuite struct {
	Name       string          `xml:"name,attr"`
	Tests      int             `xml:"tests,attr"`
	Failures   int             `xml:"failures,attr"`
	Errors     int             `xml:"errors,attr"`
	Skipped    int             `xml:"skipped,attr"`
	Time       string          `xml:"time,attr"`
	Timestamp  string          `xml:"timestamp,attr"`
	Properties []junitProperty `xml:"properties>property,omitempty"`
	Cases      []junitCase     `xml:"testcase"`
}

type junitProperty struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

type junitCase struct {
	Name      string        `xml:"name,attr"`
	ClassName string        `xml:"classname,attr"`
	Time      string        `xml:"time,attr"`
	Failure   *junitFailure `xml:"failure,omitempty"`
	Error     *junitFailure `xml:"error,omitempty"`
	Skipped   *junitSkipped `xml:"skipped,omitempty"`
	SystemOut string        `xml:"system-out,omitempty"`
}

type junitFailure struct {
	Message string `xml:"message,attr"`
	Type    string `xml:"type,attr"`
	Text    string `xml:",chardata"`
}

type junitSkipped struct {
	Message string `xml:"message,attr,omitempty"`
}

// WriteJUnit writes index as a JUnit XML file.
func WriteJUnit(path string, index *Index) error {
	data, err := MarshalJUnit(index)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// MarshalJUnit renders index as JUnit XML. Failed scenarios become failures,
// errored ones errors.
func MarshalJUnit(index *Index) ([]byte, error) {
	suite := junitSuite{
		Name:      "Device Features",
		Time:      seconds(index.Duration),
		Timestamp: index.StartTime.Format("2006-01-02T15:04:05"),
		Properties: []junitProperty{
			{Name: "runId", Value: index.RunID},
			{Name: "appId", Value: index.App.ID},
			{Name: "device", Value: index.Device.Name},
		},
	}

	for _, sc := range index.Scenarios {
		tc := junitCase{
			Name:      sc.Name,
			ClassName: index.App.ID,
			Time:      seconds(sc.Duration),
			SystemOut: stepLog(sc),
		}
		switch sc.Status {
		case "failed":
			tc.Failure = &junitFailure{Message: sc.Message, Type: sc.Category, Text: sc.Error}
			suite.Failures++
		case "errored":
			tc.Error = &junitFailure{Message: sc.Message, Type: sc.Category, Text: sc.Error}
			suite.Errors++
		case "skipped":
			tc.Skipped = &junitSkipped{Message: sc.Message}
			suite.Skipped++
		}
		suite.Cases = append(suite.Cases, tc)
		suite.Tests++
	}

	root := junitSuites{
		Name:     suite.Name,
		Tests:    suite.Tests,
		Failures: suite.Failures,
		Errors:   suite.Errors,
		Skipped:  suite.Skipped,
		Time:     suite.Time,
		Suites:   []junitSuite{suite},
	}

	data, err := xml.MarshalIndent(root, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal junit: %w", err)
	}
	return append([]byte(xml.Header), data...), nil
}

// stepLog lists every step of a scenario, one per line.
func stepLog(sc Scenario) string {
	var b strings.Builder
	write := func(section string, steps []Step) {
		for _, s := range steps {
			fmt.Fprintf(&b, "[%s] %-8s %s (%s)", section, s.Status, s.Name, formatDuration(s.Duration))
			if s.Message != "" {
				fmt.Fprintf(&b, ": %s", s.Message)
			}
			b.WriteByte('\n')
		}
	}
	write("setup", sc.Setup)
	write("step", sc.Steps)
	write("cleanup", sc.Cleanup)
	return b.String()
}

func seconds(ms int64) string {
	return fmt.Sprintf("%.3f", float64(ms)/1000)
}
