package locator

import "fmt"

// Kind is the attribute a Selector matches on.
type Kind int

// Selector kinds.
const (
	KindDesc         Kind = iota // content-description equals Value
	KindText                     // text equals Value
	KindTextContains             // text contains Value
	KindPackage                  // any element of package Value
)

// String returns the string representation of Kind.
func (k Kind) String() string {
	switch k {
	case KindDesc:
		return "desc"
	case KindText:
		return "text"
	case KindTextContains:
		return "textContains"
	case KindPackage:
		return "pkg"
	default:
		return "unknown"
	}
}

// Selector describes how to find one element on screen.
type Selector struct {
	Kind  Kind
	Value string
	Label string // human readable name used in failure messages
}

// Text matches an element whose text is exactly s.
func Text(s string) Selector {
	return Selector{Kind: KindText, Value: s, Label: fmt.Sprintf("%q text", s)}
}

// TextContains matches an element whose text contains s.
func TextContains(s string) Selector {
	return Selector{Kind: KindTextContains, Value: s, Label: fmt.Sprintf("text containing %q", s)}
}

// Package matches the root window of the given application package.
func Package(pkg string) Selector {
	return Selector{Kind: KindPackage, Value: pkg, Label: fmt.Sprintf("package %s", pkg)}
}

// Name returns the label, falling back to Describe.
func (s Selector) Name() string {
	if s.Label != "" {
		return s.Label
	}
	return s.Describe()
}

// Describe returns the selector in kind="value" form.
func (s Selector) Describe() string {
	return fmt.Sprintf("%s=%q", s.Kind, s.Value)
}
