package shell

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

const defaultWidth = 100

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

// LogOutput picks where logs go while Run draws to out: path when set,
// nowhere when out is a terminal the UI takes over, stderr otherwise
func LogOutput(out *os.File, path string) (io.WriteCloser, error) {
	if path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		return f, nil
	}
	if term.IsTerminal(int(out.Fd())) {
		return nopWriteCloser{io.Discard}, nil
	}
	return nopWriteCloser{os.Stderr}, nil
}

// InPlaceUI redraws from the top-left of the alternate screen on every
// frame, so nothing depends on counting lines
type InPlaceUI struct {
	out *bufio.Writer
	fd  int
}

// NewInPlaceUI returns nil when f is not a terminal; callers then print
// frames plainly
func NewInPlaceUI(f *os.File) *InPlaceUI {
	fd := int(f.Fd())
	if !term.IsTerminal(fd) {
		return nil
	}
	return &InPlaceUI{out: bufio.NewWriterSize(f, 1<<20), fd: fd}
}

func (ui *InPlaceUI) Init() error {
	if err := enableVT(); err != nil {
		// terminal may still speak ANSI
		fmt.Fprintf(os.Stderr, "warning: enableVT failed: %v\n", err)
	}
	fmt.Fprint(ui.out, "\x1b[?1049h") // enter alternate screen
	fmt.Fprint(ui.out, "\x1b[2J")     // clear screen
	fmt.Fprint(ui.out, "\x1b[H")      // cursor home
	return ui.out.Flush()
}

func (ui *InPlaceUI) Close() {
	if ui == nil || ui.out == nil {
		return
	}
	fmt.Fprint(ui.out, "\x1b[?1049l") // leave alternate screen
	_ = ui.out.Flush()
}

// Width is the terminal width in cells
func (ui *InPlaceUI) Width() int {
	if ui == nil {
		return defaultWidth
	}
	w, _, err := term.GetSize(ui.fd)
	if err != nil || w <= 0 {
		return defaultWidth
	}
	return w
}

func (ui *InPlaceUI) Draw(block string) error {
	fmt.Fprint(ui.out, "\x1b[H")  // cursor home
	fmt.Fprint(ui.out, "\x1b[0J") // clear to end of screen
	fmt.Fprint(ui.out, block)
	fmt.Fprint(ui.out, "\n> ")
	return ui.out.Flush()
}

// plainDraw is the fallback for pipes and files
func plainDraw(w io.Writer, block string) {
	fmt.Fprint(w, block)
	fmt.Fprintln(w)
}
