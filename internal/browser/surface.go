package browser

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrStepTimeout is returned when a single step exceeds its time bound.
	ErrStepTimeout = errors.New("browser step timed out")
	// ErrElementMissing is returned when a lookup by index or text finds nothing.
	ErrElementMissing = errors.New("element not found")
)

// Match selects how element text is compared.
type Match int

const (
	// Exact compares whitespace-normalized text for equality.
	Exact Match = iota
	// Contains matches a substring.
	Contains
	// Prefix matches the start of the text.
	Prefix
)

// Surface is the set of page interactions the portal flows are written in.
// Every call is bounded by the implementation's step timeout.
type Surface interface {
	Navigate(ctx context.Context, url string) error
	Click(ctx context.Context, selector string) error
	ClickText(ctx context.Context, tag, text string, match Match) error
	ClickNth(ctx context.Context, selector string, index int) error
	Fill(ctx context.Context, selector, value string) error
	FillNth(ctx context.Context, selector string, index int, value string) error
	Choose(ctx context.Context, selector, optionText string) error
	WaitVisible(ctx context.Context, selector string) error
	HasText(ctx context.Context, tag, text string, match Match) (bool, error)
	Text(ctx context.Context, selector string) (string, error)
	// Download clicks selector and returns the downloaded file.
	Download(ctx context.Context, selector string) ([]byte, error)
	// OpenWindow clicks an element that opens a new window and returns a
	// Surface bound to that window.
	OpenWindow(ctx context.Context, tag, text string, match Match) (Surface, error)
	ExportCookies(ctx context.Context) ([]byte, error)
	ImportCookies(ctx context.Context, blob []byte) error
	Close() error
}

// TextXPath builds the XPath locating a tag by its normalized text or, for
// input buttons, its value. With no tag only elements owning a matching text
// node are selected, so ancestors of the target do not match.
func TextXPath(tag, text string, match Match) string {
	subject := "normalize-space(.)"
	if tag == "" || tag == "*" {
		tag = "*"
		subject = "text()"
	}
	lit := xpathLiteral(text)
	cond := func(subject string) string {
		switch match {
		case Contains:
			return "contains(" + subject + ", " + lit + ")"
		case Prefix:
			return "starts-with(" + subject + ", " + lit + ")"
		default:
			return subject + "=" + lit
		}
	}
	own := cond(subject)
	if subject == "text()" {
		own = "text()[" + cond("normalize-space(.)") + "]"
	}
	return "//" + tag + "[" + own + " or " + cond("normalize-space(@value)") + "]"
}

func xpathLiteral(s string) string {
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	parts := strings.Split(s, "'")
	quoted := make([]string, 0, len(parts)*2)
	for i, p := range parts {
		if i > 0 {
			quoted = append(quoted, `"'"`)
		}
		quoted = append(quoted, "'"+p+"'")
	}
	return "concat(" + strings.Join(quoted, ", ") + ")"
}
