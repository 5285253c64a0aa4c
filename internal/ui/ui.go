package ui

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/papapumpkin/strata/internal/ansi"
	"github.com/papapumpkin/strata/internal/compat"
	"github.com/papapumpkin/strata/internal/forge"
)

// Local aliases keep the format strings short.
const (
	reset   = ansi.Reset
	bold    = ansi.Bold
	dim     = ansi.Dim
	yellow  = ansi.Yellow
	green   = ansi.Green
	red     = ansi.Red
	cyan    = ansi.Cyan
	magenta = ansi.Magenta
)

const barWidth = 24

var (
	styleHeading = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#00BFFF"))
	styleBar     = lipgloss.NewStyle().Foreground(lipgloss.Color("#00E676"))
	styleMuted   = lipgloss.NewStyle().Foreground(lipgloss.Color("#636363"))
)

// Printer writes human-oriented output to stderr. Machine-readable output
// (JSON) goes to stdout from the commands themselves.
type Printer struct{}

func New() *Printer {
	return &Printer{}
}

func (p *Printer) Banner(version string) {
	fmt.Fprintln(os.Stderr, bold+cyan+"  ╔═══════════════════════════════════╗"+reset)
	fmt.Fprintf(os.Stderr, bold+cyan+"  ║"+reset+bold+"   STRATA  "+dim+"%-24s"+reset+bold+cyan+"║"+reset+"\n", "trait engine "+version)
	fmt.Fprintln(os.Stderr, bold+cyan+"  ╚═══════════════════════════════════╝"+reset)
	fmt.Fprintln(os.Stderr)
}

func (p *Printer) Error(msg string) {
	fmt.Fprintf(os.Stderr, "%s%s\n", ansi.Paint(red+bold, "error: "), msg)
}

func (p *Printer) Info(msg string) {
	fmt.Fprintf(os.Stderr, dim+"%s"+reset+"\n", msg)
}

func (p *Printer) Warn(msg string) {
	fmt.Fprintf(os.Stderr, yellow+bold+"⚠ "+reset+"%s\n", msg)
}

// ValidateResult reports the outcome of validating a manifest.
func (p *Printer) ValidateResult(name string, editions int, errs []error) {
	if len(errs) == 0 {
		fmt.Fprintf(os.Stderr, green+bold+"✓ collection %q"+reset+": %d edition(s), no errors\n", name, editions)
		return
	}
	fmt.Fprintf(os.Stderr, red+bold+"✗ collection %q"+reset+": %d error(s):\n", name, len(errs))
	for _, e := range errs {
		fmt.Fprintf(os.Stderr, "  "+red+"• "+reset+"%s\n", e.Error())
	}
}

// Plan prints the reconciled counts of every configuration.
func (p *Printer) Plan(plan *forge.Plan) {
	for _, cfg := range plan.Configs {
		title := fmt.Sprintf("configuration %d", cfg.Index)
		if cfg.Name != "" {
			title += " (" + cfg.Name + ")"
		}
		fmt.Fprintf(os.Stderr, "\n%s  %s\n", styleHeading.Render(title),
			styleMuted.Render(fmt.Sprintf("%d editions, %s combinations", cfg.Size, combos(cfg.MaxCombinations))))
		for _, l := range cfg.Layers {
			fmt.Fprintf(os.Stderr, "  "+bold+"%s"+reset+"\n", l.Name)
			for _, t := range l.Traits {
				lock := ""
				if t.Locked {
					lock = magenta + " locked" + reset
				}
				fmt.Fprintf(os.Stderr, "    %-20s %5d  "+dim+"%s"+reset+"%s\n", t.Name, t.Weight, t.Raw, lock)
			}
		}
	}
	fmt.Fprintln(os.Stderr)
}

func combos(n int) string {
	if n <= 0 {
		return "no"
	}
	if n >= 1<<53 {
		return "too many"
	}
	return fmt.Sprintf("%d", n)
}

// Rules prints the declared rules with their current state.
func (p *Printer) Rules(audit compat.Audit) {
	if len(audit.Rules) == 0 {
		fmt.Fprintln(os.Stderr, dim+"  (no rules)"+reset)
		return
	}
	for _, r := range audit.Rules {
		kind, color := "incompatible with", yellow
		parents := r.IncompatibleParents
		if r.Forced {
			kind, color = "forced with", cyan
			parents = r.Parents
		}
		state := fmt.Sprintf("max %d", r.MaxCount)
		if r.Retired {
			state = "retired"
		}
		fmt.Fprintf(os.Stderr, "  [%d] %-20s "+color+"%s"+reset+" %s "+dim+"(layers %d→%d, %s)"+reset+"\n",
			r.LayerIndex, r.Child, kind, strings.Join(parents, ", "), r.ParentIndex, r.ChildIndex, state)
	}
}

// ProgressLine formats a progress line string (without ANSI escape prefix).
// Format: [strata] 12/100 editions | configuration 0: 12/60
// This is exported for testing.
func ProgressLine(pr forge.Progress) string {
	return fmt.Sprintf("[strata] %d/%d editions | configuration %d: %d/%d", pr.Done, pr.Total, pr.Config, pr.Generated, pr.Size)
}

// Progress writes a carriage-return-overwritten progress line to stderr.
func (p *Printer) Progress(pr forge.Progress) {
	fmt.Fprint(os.Stderr, ansi.Rewrite(ansi.Paint(cyan, ProgressLine(pr))))
}

// ProgressDone writes a final newline after the progress line so
// subsequent output doesn't overwrite it.
func (p *Printer) ProgressDone() {
	fmt.Fprintln(os.Stderr)
}

// RunDone summarizes a finished run.
func (p *Printer) RunDone(res *forge.Result) {
	fmt.Fprintf(os.Stderr, green+bold+"✓ run %s complete"+reset+": %d edition(s), seed %d, %d retr(ies)\n",
		res.RunID, len(res.Editions), res.Seed, res.RetriesUsed)
	for _, c := range res.Configs {
		line := fmt.Sprintf("  configuration %d: %d generated", c.Index, c.Generated)
		if c.Replayed > 0 {
			line += fmt.Sprintf(", %d replayed", c.Replayed)
		}
		if c.Retries > 0 {
			line += fmt.Sprintf(", %d collision(s)", c.Retries)
		}
		fmt.Fprintln(os.Stderr, line)
	}
}

// Rarity prints the trait distribution of a run as bar charts.
func (p *Printer) Rarity(breakdown []forge.LayerBreakdown) {
	for _, l := range breakdown {
		fmt.Fprintf(os.Stderr, "\n%s\n", styleHeading.Render(l.Layer))
		for _, t := range l.Traits {
			n := int(t.Percent/100*barWidth + 0.5)
			bar := styleBar.Render(strings.Repeat("█", n)) + styleMuted.Render(strings.Repeat("░", barWidth-n))
			fmt.Fprintf(os.Stderr, "  %-20s %s %6.2f%% (%d)\n", t.Name, bar, t.Percent, t.Count)
		}
	}
	fmt.Fprintln(os.Stderr)
}
