package state

import (
	"fmt"
	"io"
	"strings"
)

// Summary is what `status` reports about the cache's cycle history.
type Summary struct {
	Last       *Cycle
	Failure    *Failure
	CycleCount int
	Failed     int
}

// Summarize collects the latest cycle, its failure (if any) and counts.
func Summarize(s *Store) (Summary, error) {
	cycles, err := s.Cycles()
	if err != nil {
		return Summary{}, err
	}
	sum := Summary{CycleCount: len(cycles)}
	for _, c := range cycles {
		if c.Status == CycleStatusFailed {
			sum.Failed++
		}
	}
	if len(cycles) == 0 {
		return sum, nil
	}
	last := cycles[len(cycles)-1]
	sum.Last = &last
	f, ok, err := s.LoadFailure(last.CycleID)
	if err != nil {
		return Summary{}, err
	}
	if ok {
		sum.Failure = &f
	}
	return sum, nil
}

// WriteTo renders a human readable report.
func (s Summary) WriteTo(w io.Writer) (int64, error) {
	var b strings.Builder
	if s.Last == nil {
		b.WriteString("no cycles recorded\n")
	} else {
		c := s.Last
		fmt.Fprintf(&b, "last cycle:  %s\n", c.CycleID)
		fmt.Fprintf(&b, "started:     %s\n", c.StartTime.Format("2006-01-02 15:04:05 MST"))
		if d := c.Duration(); d > 0 {
			fmt.Fprintf(&b, "duration:    %s\n", d)
		}
		fmt.Fprintf(&b, "mode:        %s\n", c.Mode)
		fmt.Fprintf(&b, "status:      %s\n", c.Status)
		if len(c.Stages) > 0 {
			fmt.Fprintf(&b, "stages:      %s\n", strings.Join(c.Stages, " -> "))
		}
		if len(c.Compiled) > 0 {
			fmt.Fprintf(&b, "compiled:    %d file(s)\n", len(c.Compiled))
		}
		if len(c.Changed) > 0 {
			fmt.Fprintf(&b, "artifacts:   %d\n", len(c.Changed))
		}
	}
	if s.Failure != nil {
		f := s.Failure
		fmt.Fprintf(&b, "failure:     %s (%s)\n", f.FailureClass, f.ErrorCode)
		if f.File != nil {
			fmt.Fprintf(&b, "  file:      %s\n", *f.File)
		}
		for _, line := range strings.Split(strings.TrimRight(f.ErrorMessage, "\n"), "\n") {
			fmt.Fprintf(&b, "  | %s\n", line)
		}
	}
	fmt.Fprintf(&b, "history:     %d cycle(s), %d failed\n", s.CycleCount, s.Failed)
	n, err := io.WriteString(w, b.String())
	return int64(n), err
}
