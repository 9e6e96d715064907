package dynlink

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

// ColorMode selects whether failure lines are coloured.
type ColorMode string

const (
	ColorAuto   ColorMode = "auto"
	ColorAlways ColorMode = "always"
	ColorNever  ColorMode = "never"
)

const (
	colorReset = "\033[0m"
	colorRed   = "\033[31m"
)

// Reporter writes one line of text per directive outcome.
type Reporter struct {
	w     io.Writer
	color bool
}

// NewReporter create a reporter on w. In auto mode colour is used only when w is a terminal.
func NewReporter(w io.Writer, mode ColorMode) *Reporter {
	if w == nil {
		w = io.Discard
	}
	r := &Reporter{w: w}
	switch mode {
	case ColorAlways:
		r.color = true
	case ColorNever:
	default:
		if f, ok := w.(*os.File); ok {
			r.color = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
		}
	}
	return r
}

// Writer is the underlying sink, handed to printers as their formatter.
func (r *Reporter) Writer() io.Writer {
	return r.w
}

// Printf writes one line.
func (r *Reporter) Printf(format string, args ...any) {
	s := fmt.Sprintf(format, args...)
	if !strings.HasSuffix(s, "\n") {
		s += "\n"
	}
	_, _ = io.WriteString(r.w, s)
}

// Fail writes the description of err, followed by its backtrace when it has one.
func (r *Reporter) Fail(err error) {
	s := err.Error()
	if r.color {
		s = colorRed + s + colorReset
	}
	r.Printf("%s", s)
	var ef *ExecutionFault
	if errors.As(err, &ef) && ef.Backtrace != "" {
		r.Printf("%s", ef.Backtrace)
	}
}
