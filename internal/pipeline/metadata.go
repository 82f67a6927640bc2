package pipeline

import (
	"time"

	"mathviz/internal/config"
	"mathviz/internal/llm"
	"mathviz/internal/output"
	"mathviz/internal/session"
)

// PhaseRecord is one phase's entry in metadata.json.
type PhaseRecord struct {
	Name     string  `json:"name"`
	Produced bool    `json:"produced"`
	Detail   string  `json:"detail,omitempty"`
	Seconds  float64 `json:"seconds"`
}

// RunMetadata is the session-level metadata.json.
type RunMetadata struct {
	RunID      string        `json:"run_id"`
	Session    string        `json:"session"`
	Query      string        `json:"query"`
	Provider   string        `json:"llm_provider"`
	Model      string        `json:"llm_model"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt *time.Time    `json:"finished_at,omitempty"`
	Status     string        `json:"status"`
	Error      string        `json:"error,omitempty"`
	Solve      *SolveSummary `json:"solve,omitempty"`
	Segments   int           `json:"segments"`
	Audio      int           `json:"audio_segments"`
	Scenes     int           `json:"scenes"`
	Clips      int           `json:"clips"`
	FinalVideo string        `json:"final_video,omitempty"`
	Phases     []PhaseRecord `json:"phases,omitempty"`
}

// SolveSummary condenses the solve loop's outcome.
type SolveSummary struct {
	State    string `json:"state"`
	Attempts int    `json:"attempts"`
	Rule     string `json:"verdict_rule"`
}

type modeler interface{ Model() string }

func newRunMetadata(runID, query string, store *session.Store, gen llm.TextGenerator, cfg config.Config, started time.Time) *RunMetadata {
	meta := &RunMetadata{
		RunID:     runID,
		Session:   store.ID(),
		Query:     query,
		Provider:  cfg.LLM.Provider,
		Model:     cfg.LLM.Model,
		StartedAt: started,
		Status:    "running",
	}
	if m, ok := gen.(modeler); ok && m.Model() != "" {
		meta.Model = m.Model()
	}
	return meta
}

// Finish fills in the outcome of a run.
func (m *RunMetadata) Finish(res *Result, now time.Time, err error) {
	m.FinishedAt = &now
	m.Status = "completed"
	if err != nil {
		m.Status, m.Error = "failed", err.Error()
	}
	if len(res.Solution.Attempts) > 0 {
		m.Solve = &SolveSummary{
			State:    string(res.Solution.State),
			Attempts: len(res.Solution.Attempts),
			Rule:     string(res.Solution.Evaluation.Verdict.Rule),
		}
	}
	m.Segments = len(res.Script.Segments())
	m.Audio = len(res.Audio)
	m.Scenes = len(res.Scenes.Accepted())
	m.Clips = len(res.Clips)
	m.FinalVideo = res.FinalVideo
	m.Phases = res.Phases
}

// summary builds the end-of-run report: tool availability, what each phase
// produced and what is left to do by hand.
func (o *Orchestrator) summary(res *Result, elapsed time.Duration) output.Summary {
	s := output.Summary{
		Elapsed:    elapsed,
		NextSteps:  res.NextSteps,
		FinalVideo: res.FinalVideo,
	}
	if res.Session != nil {
		s.Session = res.Session.Root()
	}
	s.Capabilities = o.Capabilities()
	for _, p := range res.Phases {
		s.Phases = append(s.Phases, output.PhaseStatus{Name: p.Name, Produced: p.Produced, Detail: p.Detail})
	}
	if res.Scenes.Path != "" {
		s.Artifacts = append(s.Artifacts, res.Scenes.Path)
	}
	if res.Session != nil && res.FinalVideo == "" {
		for _, name := range []struct{ sub, file string }{
			{session.DirSolver, session.SolutionFinal},
			{session.DirScript, session.AudioScript},
			{session.DirAudio, session.AudioMetadata},
			{session.DirVideo, session.RenderingInstructions},
		} {
			if res.Session.Exists(name.sub, name.file) {
				s.Artifacts = append(s.Artifacts, res.Session.Path(name.sub, name.file))
			}
		}
	}
	return s
}

// Capabilities reports which external tools this orchestrator can use.
func (o *Orchestrator) Capabilities() []output.CapabilityStatus {
	status := func(name string, ready bool, reason, detail string) output.CapabilityStatus {
		if !ready {
			detail = reason
			if detail == "" {
				detail = "not configured"
			}
		}
		return output.CapabilityStatus{Name: name, Ready: ready, Detail: detail}
	}
	speech := "ready"
	if p, ok := o.deps.Speech.Get(); ok {
		speech = p.Name()
	}
	manim := "ready"
	if r, ok := o.deps.Renderer.Get(); ok {
		manim = "quality " + r.Quality()
	}
	return []output.CapabilityStatus{
		status("Speech synthesis", o.deps.Speech.IsReady(), o.deps.Speech.Reason(), speech),
		status("Manim", o.deps.Renderer.IsReady(), o.deps.Renderer.Reason(), manim),
		status("FFmpeg", o.deps.Media.IsReady(), o.deps.Media.Reason(), "ready"),
		status("Reference examples", o.deps.Retriever.IsReady(), o.deps.Retriever.Reason(), "ready"),
	}
}
