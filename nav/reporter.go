package nav

import "log"

// Reporter is a one-way display sink. Control logic never reads back from it.
type Reporter interface {
	ReportPose(p Pose)
	ReportStep(s Step)
	ReportResult(r Result)
}

// LogReporter writes updates to the standard logger
type LogReporter struct{}

func (LogReporter) ReportPose(p Pose) {
	log.Printf("[POSE] x=%.1f y=%.1f heading=%.1f°", p.X, p.Y, p.HeadingDeg())
}

func (LogReporter) ReportStep(s Step) {
	blocked := "clear"
	if s.Observation.Blocked {
		blocked = "blocked"
	}
	log.Printf("[LOC] #%d at (%d, %d) %s: %s, %d candidates",
		s.Iteration, s.Observation.X, s.Observation.Y, s.Observation.Orientation, blocked, s.Remaining)
}

func (LogReporter) ReportResult(r Result) {
	log.Printf("[LOC] Localized: start %s after %d observations, pose (%.1f, %.1f) %.1f°",
		r.Start, r.Observations, r.Pose.X, r.Pose.Y, r.Pose.HeadingDeg())
}

// Reporters fans every update out to each member
type Reporters []Reporter

func (rs Reporters) ReportPose(p Pose) {
	for _, r := range rs {
		r.ReportPose(p)
	}
}

func (rs Reporters) ReportStep(s Step) {
	for _, r := range rs {
		r.ReportStep(s)
	}
}

func (rs Reporters) ReportResult(res Result) {
	for _, r := range rs {
		r.ReportResult(res)
	}
}
