package dispatch

import (
	"bytes"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/fatih/color"
	"github.com/maruel/natural"

	"github.com/byte4ever/devkit/git"
)

// Reporter receives the progress of a run.
type Reporter interface {
	// Repository starts the report of one repository. It
	// may be called from several goroutines.
	Repository(name string) RepositoryReporter

	// Summary is called once every repository finished.
	Summary(s *Summary)
}

// RepositoryReporter receives the progress of one
// repository. Its methods are called from a single
// goroutine.
type RepositoryReporter interface {
	Step(msg string)
	Changes(changes git.ChangeSet)
	Diff(path string, diff string)
	Finish(o Outcome)
}

type nopReporter struct{}

func (nopReporter) Repository(string) RepositoryReporter {
	return nopRepository{}
}

func (nopReporter) Summary(*Summary) {}

type nopRepository struct{}

func (nopRepository) Step(string)           {}
func (nopRepository) Changes(git.ChangeSet) {}
func (nopRepository) Diff(string, string)   {}
func (nopRepository) Finish(Outcome)        {}

var (
	titleColor   = color.New(color.Bold)
	nameColor    = color.New(color.FgCyan, color.Bold)
	successColor = color.New(color.FgGreen)
	noticeColor  = color.New(color.FgYellow)
	failureColor = color.New(color.FgRed, color.Bold)
)

// ConsoleReporter writes a human readable report. The
// output of each repository is buffered and written at
// once when it finishes, so parallel repositories never
// interleave.
type ConsoleReporter struct {
	mu  sync.Mutex
	out io.Writer
}

// NewConsoleReporter returns a ConsoleReporter writing to
// out.
func NewConsoleReporter(out io.Writer) *ConsoleReporter {
	return &ConsoleReporter{out: out}
}

// Repository implements Reporter.
func (c *ConsoleReporter) Repository(name string) RepositoryReporter {
	r := &consoleRepository{parent: c, name: name}

	fmt.Fprintf(
		&r.buf, "\n%s %s\n\n",
		titleColor.Sprint("Dispatching the shared files on the"),
		nameColor.Sprintf("%s repository", name),
	)

	return r
}

// Summary implements Reporter.
func (c *ConsoleReporter) Summary(s *Summary) {
	outcomes := slices.Clone(s.Outcomes)

	slices.SortStableFunc(outcomes, func(a, b Outcome) int {
		switch {
		case natural.Less(a.Repository, b.Repository):
			return -1
		case natural.Less(b.Repository, a.Repository):
			return 1
		default:
			return 0
		}
	})

	rows := make([][]string, 0, len(outcomes))

	for _, o := range outcomes {
		result, detail := describe(o)
		rows = append(rows, []string{o.Repository, result, detail})
	}

	var buf bytes.Buffer

	fmt.Fprintf(&buf, "\n%s\n", titleColor.Sprint("Summary"))
	buf.WriteString(newTable("Repository", "Result", "Detail").
		Rows(rows...).
		String())
	buf.WriteByte('\n')

	fmt.Fprintf(
		&buf, "%d dispatched, %d unchanged, %d dry run, %s\n",
		len(s.Succeeded()), len(s.NoOp()), len(s.DryRun()),
		failureCount(len(s.Failed())),
	)

	c.write(buf.Bytes())
}

func (c *ConsoleReporter) write(p []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, _ = c.out.Write(p)
}

// consoleRepository buffers the report of one repository.
type consoleRepository struct {
	parent *ConsoleReporter
	name   string
	buf    bytes.Buffer
}

func (r *consoleRepository) Step(msg string) {
	fmt.Fprintf(&r.buf, " * %s\n", msg)
}

func (r *consoleRepository) Changes(changes git.ChangeSet) {
	rows := make([][]string, 0, len(changes))

	for _, c := range changes {
		rows = append(rows, []string{c.Path, string(c.Status)})
	}

	r.buf.WriteByte('\n')
	r.buf.WriteString(newTable("Filename", "Status").
		Rows(rows...).
		String())
	r.buf.WriteString("\n\n")
}

func (r *consoleRepository) Diff(path string, diff string) {
	fmt.Fprintf(&r.buf, "%s\n", titleColor.Sprint(path))
	r.buf.WriteString(strings.Repeat("-", len(path)))
	r.buf.WriteByte('\n')

	for _, line := range strings.Split(strings.TrimRight(diff, "\n"), "\n") {
		switch {
		case strings.HasPrefix(line, "+"):
			line = successColor.Sprint(line)
		case strings.HasPrefix(line, "-"):
			line = failureColor.Sprint(line)
		}

		fmt.Fprintf(&r.buf, "    %s\n", line)
	}

	r.buf.WriteByte('\n')
}

func (r *consoleRepository) Finish(o Outcome) {
	switch result, detail := describe(o); {
	case o.Failed():
		fmt.Fprintf(&r.buf, " %s %s\n", failureColor.Sprint("[ERROR]"), detail)
	case o.State == StateReconciled:
		fmt.Fprintf(
			&r.buf, " %s\n",
			successColor.Sprintf(
				"Files dispatched to the %s repository.", r.name,
			),
		)
	default:
		fmt.Fprintf(&r.buf, " %s\n", noticeColor.Sprint(result))
	}

	r.parent.write(r.buf.Bytes())
	r.buf.Reset()
}

// describe returns the result column and detail of o.
func describe(o Outcome) (string, string) {
	if o.Failed() {
		return "failed", o.Err.Error()
	}

	switch o.State {
	case StateReconciled:
		verb := "updated"
		if o.Created {
			verb = "created"
		}

		url := ""
		if o.PullRequest != nil {
			url = o.PullRequest.URL
		}

		return "dispatched", strings.TrimSpace(verb + " " + url)
	case StateNoOpDone:
		return "no changes", ""
	case StateDryRunDone:
		return "dry run", fmt.Sprintf("%d changed files", len(o.Changes))
	default:
		return o.State.String(), ""
	}
}

func failureCount(n int) string {
	msg := fmt.Sprintf("%d failed", n)
	if n == 0 {
		return msg
	}

	return failureColor.Sprint(msg)
}

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...)
}
