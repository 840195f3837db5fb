package cli

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// dotInterval is how often a waiting action line grows a ".".
const dotInterval = 2 * time.Second

// Console renders traversal progress as nested action lines:
//
//	Processing app...
//	  Testing libfoo.so.1...  [ OK ]
//	^ Processing app  [ FAILED ]
//
// An action that completes after other output was written is re-printed
// with a "^" marker so its status stays next to its name. Console
// implements closure.Reporter and is safe for concurrent use.
type Console struct {
	mu    sync.Mutex
	w     io.Writer
	th    theme
	now   func() time.Time
	stack []string

	lineStart bool // cursor is at column 0
	onAction  bool // the current line is an open action
	frame     int  // width of the spinner frame on screen, 0 if none
	lastDot   time.Time
	muted     bool
}

// NewConsole returns a console writing to w.
func NewConsole(w io.Writer) *Console {
	return &Console{w: w, th: newTheme(w), now: time.Now, lineStart: true}
}

// BeginAction starts a new action line and pushes it on the status stack.
func (c *Console) BeginAction(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.muted {
		return
	}
	c.newLine()
	c.write(c.indent() + name + "...")
	c.stack = append(c.stack, name)
	c.onAction = true
	c.lineStart = false
	c.lastDot = c.now()
}

// CompleteAction closes the innermost open action.
func (c *Console) CompleteAction(ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.muted {
		return
	}
	if ok {
		c.status("OK", c.th.ok)
	} else {
		c.status("FAILED", c.th.failed)
	}
}

// Detail prints an error block below the current line.
func (c *Console) Detail(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.muted {
		return
	}
	c.newLine()
	fmt.Fprintln(c.w, c.th.errBadge.Render("--- ERROR ---"))
	fmt.Fprintln(c.w, c.th.errText.Render(strings.TrimRight(text, "\n")))
	c.lineStart = true
	c.onAction = false
}

// Println writes a plain line outside any action.
func (c *Console) Println(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.muted {
		return
	}
	c.newLine()
	fmt.Fprintf(c.w, format+"\n", args...)
	c.lineStart = true
	c.onAction = false
}

// Timeout marks the innermost open action as timed out and drops every
// later event. The abandoned traversal may still be running.
func (c *Console) Timeout() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.muted {
		return
	}
	if len(c.stack) > 0 {
		c.status("TIMEOUT", c.th.timeout)
	} else {
		c.newLine()
	}
	c.muted = true
}

// Tick is called by the spinner. At the start of a line it draws frame;
// inside an open action it appends a "." every dotInterval.
func (c *Console) Tick(frame string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.muted {
		return
	}
	if c.lineStart {
		fmt.Fprint(c.w, "\r"+c.th.accent.Render(frame))
		c.frame = lipgloss.Width(frame)
		return
	}
	if c.onAction && c.now().Sub(c.lastDot) >= dotInterval {
		fmt.Fprint(c.w, ".")
		c.lastDot = c.now()
	}
}

// Clear erases a spinner frame, if one is shown.
func (c *Console) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clearFrame()
}

func (c *Console) status(text string, style lipgloss.Style) {
	name := ""
	if n := len(c.stack); n > 0 {
		name = c.stack[n-1]
		c.stack = c.stack[:n-1]
	}
	if c.lineStart || !c.onAction {
		c.newLine()
		c.write(c.indent() + c.th.accent.Render(iconReprint) + " " + name)
	}
	fmt.Fprintf(c.w, "  [ %s ]\n", style.Render(text))
	c.lineStart = true
	c.onAction = false
}

func (c *Console) newLine() {
	c.clearFrame()
	if !c.lineStart {
		fmt.Fprintln(c.w)
		c.lineStart = true
	}
}

func (c *Console) clearFrame() {
	if c.frame > 0 {
		fmt.Fprint(c.w, "\r"+strings.Repeat(" ", c.frame)+"\r")
		c.frame = 0
	}
}

func (c *Console) write(text string) {
	c.clearFrame()
	fmt.Fprint(c.w, text)
}

func (c *Console) indent() string {
	return strings.Repeat("  ", len(c.stack))
}
