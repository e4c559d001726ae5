package report

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/fatih/color"

	llmr "github.com/aws-samples/llmresilience"
)

// Console prints timestamped, coloured progress lines. It doubles as a Meter
// printing one line per resolved call.
type Console struct {
	mu  sync.Mutex
	out io.Writer
	now func() time.Time

	// GroupName maps a group to its printed name, e.g. a masked account.
	GroupName func(string) string

	ok, warn, bad, info *color.Color
}

var _ llmr.Meter = (*Console)(nil)

// NewConsole creates a console writing to out. Colour follows the
// library's terminal detection unless noColor is set.
func NewConsole(out io.Writer, noColor bool) *Console {
	c := &Console{
		out:  out,
		now:  time.Now,
		ok:   color.New(color.FgGreen),
		warn: color.New(color.FgYellow),
		bad:  color.New(color.FgRed),
		info: color.New(color.FgCyan),
	}
	if noColor {
		for _, col := range []*color.Color{c.ok, c.warn, c.bad, c.info} {
			col.DisableColor()
		}
	}
	return c
}

func (c *Console) line(col *color.Color, format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ts := c.now().Format("15:04:05.000")
	col.Fprintf(c.out, "[%s] %s\n", ts, fmt.Sprintf(format, args...))
}

// Info prints a neutral line.
func (c *Console) Info(format string, args ...any) { c.line(c.info, format, args...) }

// Success prints a green line.
func (c *Console) Success(format string, args ...any) { c.line(c.ok, format, args...) }

// Warn prints a yellow line.
func (c *Console) Warn(format string, args ...any) { c.line(c.warn, format, args...) }

// Error prints a red line.
func (c *Console) Error(format string, args ...any) { c.line(c.bad, format, args...) }

// Writer returns the underlying writer for tables.
func (c *Console) Writer() io.Writer { return c.out }

func (c *Console) group(g string) string {
	if c.GroupName != nil {
		return c.GroupName(g)
	}
	return g
}

func (c *Console) OnDispatch(llmr.DispatchEvent) {}

func (c *Console) OnOutcome(e llmr.OutcomeEvent) {
	o := e.Outcome
	prefix := fmt.Sprintf("Request %d", o.Seq)
	if o.Group != llmr.DefaultGroup {
		prefix = fmt.Sprintf("Request %d [%s]", o.Seq, c.group(o.Group))
	}
	switch o.Status {
	case llmr.StatusSuccess:
		if o.Label != "" {
			c.Success("%s completed in %s (served by %s)", prefix, Seconds(o.Duration), o.Label)
		} else {
			c.Success("%s completed in %s", prefix, Seconds(o.Duration))
		}
	case llmr.StatusRateLimited:
		c.Warn("%s rate limited after %s", prefix, Seconds(o.Duration))
	default:
		c.Error("%s failed after %s: %s", prefix, Seconds(o.Duration), o.ErrorDetail())
	}
}
