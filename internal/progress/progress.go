// Package progress renders the single-line download progress bar.
package progress

import (
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"golang.org/x/term"
)

const (
	// DefaultScale shrinks the bar relative to the terminal width.
	DefaultScale = 0.55
	// DefaultFill is the character used for the completed segment.
	DefaultFill = "█"
	// FallbackColumns is used when the terminal width cannot be read.
	FallbackColumns = 80
)

// Width returns the bar width for a terminal of the given column count.
func Width(columns int, scale float64) int {
	if columns <= 0 {
		return 0
	}
	return int(float64(columns) * scale)
}

// Percent returns received/total as a percentage rounded to one decimal.
func Percent(received, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return math.Round(1000*float64(received)/float64(total)) / 10
}

// Render returns one bar line:
//
//	 ↳ |█████████████          | 57.3%\r
//
// The trailing carriage return makes the next line overwrite this one.
func Render(received, total int64, width int, fill string) string {
	filled := 0
	if total > 0 {
		filled = int(math.Round(float64(width) * float64(received) / float64(total)))
	}
	filled = min(max(filled, 0), width)
	bar := strings.Repeat(fill, filled) + strings.Repeat(" ", width-filled)
	return fmt.Sprintf(" ↳ |%s| %.1f%%\r", bar, Percent(received, total))
}

// Bar writes rendered progress lines to Out. It keeps no state between
// calls beyond its configuration.
type Bar struct {
	Out     io.Writer
	Scale   float64
	Fill    string
	Columns func() int
}

// New returns a bar writing to out, sized from the terminal behind out.
func New(out io.Writer) *Bar {
	return &Bar{
		Out:     out,
		Scale:   DefaultScale,
		Fill:    DefaultFill,
		Columns: TerminalColumns(out),
	}
}

// TerminalColumns returns a column source for w. Writers that are not a
// terminal report FallbackColumns.
func TerminalColumns(w io.Writer) func() int {
	return func() int {
		f, ok := w.(*os.File)
		if !ok || !term.IsTerminal(int(f.Fd())) {
			return FallbackColumns
		}
		width, _, err := term.GetSize(int(f.Fd()))
		if err != nil || width <= 0 {
			return FallbackColumns
		}
		return width
	}
}

// OnChunk renders the bar for the current byte counts.
func (b *Bar) OnChunk(received, total int64) {
	if b == nil || b.Out == nil || total <= 0 {
		return
	}
	columns := FallbackColumns
	if b.Columns != nil {
		columns = b.Columns()
	}
	scale := b.Scale
	if scale <= 0 {
		scale = DefaultScale
	}
	fill := b.Fill
	if fill == "" {
		fill = DefaultFill
	}
	_, _ = io.WriteString(b.Out, Render(received, total, Width(columns, scale), fill))
}

// Done ends the bar line.
func (b *Bar) Done() {
	if b == nil || b.Out == nil {
		return
	}
	_, _ = io.WriteString(b.Out, "\n")
}
