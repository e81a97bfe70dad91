package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"

	"callscope/internal/jobs"
)

func isTerminal(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// progressPrinter renders job progress. On a terminal it redraws a single
// line; elsewhere it prints one line per stage change.
type progressPrinter struct {
	out       io.Writer
	tty       bool
	lastStage string
	lastLine  string
}

func newProgressPrinter(out io.Writer) *progressPrinter {
	return &progressPrinter{out: out, tty: isTerminal(out)}
}

func (p *progressPrinter) segmenting(percent int) {
	p.render("preparing", fmt.Sprintf("preparing audio %3d%%", percent))
}

func (p *progressPrinter) job(job jobs.Job) {
	line := fmt.Sprintf("%-12s %3d%%", job.Status, job.Progress)
	if job.TotalSegments > 0 && job.Status == jobs.StatusTranscribing {
		line += fmt.Sprintf("  segment %d/%d", job.CurrentSegment, job.TotalSegments)
	}
	p.render(string(job.Status), line)
}

func (p *progressPrinter) render(stage, line string) {
	if p.tty {
		if line == p.lastLine {
			return
		}
		pad := ""
		if n := len(p.lastLine) - len(line); n > 0 {
			pad = strings.Repeat(" ", n)
		}
		fmt.Fprintf(p.out, "\r%s%s", line, pad)
		p.lastLine = line
		p.lastStage = stage
		return
	}
	if stage == p.lastStage {
		return
	}
	p.lastStage = stage
	fmt.Fprintln(p.out, line)
}

// finish ends the redrawn line.
func (p *progressPrinter) finish() {
	if p.tty && p.lastLine != "" {
		fmt.Fprintln(p.out)
		p.lastLine = ""
	}
}
