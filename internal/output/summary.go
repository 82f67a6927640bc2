package output

import (
	"fmt"
	"time"
)

// CapabilityStatus is one external tool's availability.
type CapabilityStatus struct {
	Name   string
	Ready  bool
	Detail string
}

// PhaseStatus is whether a pipeline phase produced output.
type PhaseStatus struct {
	Name     string
	Produced bool
	Detail   string
}

// Summary is the end-of-run report.
type Summary struct {
	Session      string
	Elapsed      time.Duration
	Capabilities []CapabilityStatus
	Phases       []PhaseStatus
	Artifacts    []string
	NextSteps    []string
	FinalVideo   string
}

// PrintSummary writes the end-of-run report.
func (p *Printer) PrintSummary(s Summary) {
	fmt.Fprintln(p.w)
	fmt.Fprintln(p.w, p.rule())
	p.title.Fprintln(p.w, "  Run summary")
	if s.Session != "" {
		fmt.Fprintf(p.w, "  Session: %s\n", p.accent.Sprint(s.Session))
	}
	if s.Elapsed > 0 {
		fmt.Fprintf(p.w, "  Elapsed: %s\n", s.Elapsed.Round(time.Second))
	}

	if len(s.Capabilities) > 0 {
		fmt.Fprintln(p.w, "\n  Tools:")
		for _, c := range s.Capabilities {
			if c.Ready {
				p.Success("%s %s", c.Name, p.dim.Sprint(c.Detail))
			} else {
				p.Warning("%s unavailable: %s", c.Name, c.Detail)
			}
		}
	}
	if len(s.Phases) > 0 {
		fmt.Fprintln(p.w, "\n  Phases:")
		for _, ph := range s.Phases {
			switch {
			case ph.Produced:
				p.Success("%s %s", ph.Name, p.dim.Sprint(ph.Detail))
			default:
				p.Warning("%s skipped: %s", ph.Name, ph.Detail)
			}
		}
	}
	if len(s.Artifacts) > 0 {
		fmt.Fprintln(p.w, "\n  Artifacts:")
		for _, a := range s.Artifacts {
			p.Info("%s", a)
		}
	}
	if s.FinalVideo != "" {
		fmt.Fprintf(p.w, "\n  Final video: %s\n", p.ok.Sprint(s.FinalVideo))
	}
	if len(s.NextSteps) > 0 {
		fmt.Fprintln(p.w, "\n  Next steps:")
		for i, step := range s.NextSteps {
			fmt.Fprintf(p.w, "    %d. %s\n", i+1, step)
		}
	}
	fmt.Fprintln(p.w, p.rule())
}
