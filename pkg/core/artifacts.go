// Package core provides the result and error model shared by the scenario
// runner, the drivers and the reports.
package core

// Attachment is a debug artifact captured when a scenario ends.
// Body is held in memory until the report writer stores it under Path.
type Attachment struct {
	Name        string `json:"name"`
	ContentType string `json:"contentType"`
	Path        string `json:"path"` // relative to the report directory
	Body        []byte `json:"-"`
}

const (
	AttachmentScreenshot = "screenshot"
	AttachmentHierarchy  = "hierarchy"

	ContentTypePNG  = "image/png"
	ContentTypeXML  = "application/xml"
	ContentTypeJSON = "application/json"
)

// NewScreenshotAttachment wraps PNG data.
func NewScreenshotAttachment(path string, data []byte) Attachment {
	return Attachment{Name: AttachmentScreenshot, ContentType: ContentTypePNG, Path: path, Body: data}
}

// NewHierarchyAttachment wraps a UiAutomator2 page source, which is XML.
func NewHierarchyAttachment(path string, data []byte) Attachment {
	return Attachment{Name: AttachmentHierarchy, ContentType: ContentTypeXML, Path: path, Body: data}
}

// ArtifactConfig selects which scenario outcomes get artifacts and which
// artifacts are taken.
type ArtifactConfig struct {
	CaptureOnFailure bool `yaml:"captureOnFailure" json:"captureOnFailure"`
	CaptureOnSuccess bool `yaml:"captureOnSuccess" json:"captureOnSuccess"`
	Screenshot       bool `yaml:"screenshot" json:"screenshot"`
	UIHierarchy      bool `yaml:"uiHierarchy" json:"uiHierarchy"`
}

// DefaultArtifactConfig captures both artifacts on failure only.
func DefaultArtifactConfig() ArtifactConfig {
	return ArtifactConfig{CaptureOnFailure: true, Screenshot: true, UIHierarchy: true}
}

// ShouldCapture reports whether a scenario ending in status gets artifacts.
// Skipped scenarios never do.
func (c ArtifactConfig) ShouldCapture(status StepStatus) bool {
	switch status {
	case StatusFailed, StatusErrored:
		return c.CaptureOnFailure
	case StatusPassed:
		return c.CaptureOnSuccess
	}
	return false
}

// ArtifactCollector is implemented by drivers that can capture the screen
// and the view hierarchy.
type ArtifactCollector interface {
	CaptureScreenshot() ([]byte, error)
	CaptureHierarchy() ([]byte, error)
}
