package constant

import "strings"

type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusDone       JobStatus = "done"
	JobStatusFailed     JobStatus = "failed"
)

// IsTerminal reports whether no further transition may leave s.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusDone || s == JobStatusFailed
}

func (s JobStatus) String() string {
	return string(s)
}

// predecessors lists, for every target status, the statuses a job may be in
// before moving to it.
var predecessors = map[JobStatus][]JobStatus{
	JobStatusProcessing: {JobStatusQueued},
	JobStatusDone:       {JobStatusProcessing},
	JobStatusFailed:     {JobStatusQueued, JobStatusProcessing},
}

// AllowedFrom returns the statuses from which a transition to target is legal.
func AllowedFrom(target JobStatus) []JobStatus {
	return predecessors[target]
}

func CanTransition(from, to JobStatus) bool {
	for _, s := range predecessors[to] {
		if s == from {
			return true
		}
	}
	return false
}

type SummaryStatus string

const (
	SummaryStatusPending SummaryStatus = "pending"
	SummaryStatusDone    SummaryStatus = "done"
	SummaryStatusFailed  SummaryStatus = "failed"
)

type Stance string

const (
	StanceSupport Stance = "support"
	StanceSkeptic Stance = "skeptic"
	StanceNeutral Stance = "neutral"
)

// ParseStance normalizes an engine-provided stance label. Unknown labels
// yield ok=false, which callers store as "unclassified".
func ParseStance(s string) (Stance, bool) {
	stance := Stance(strings.ToLower(strings.TrimSpace(s)))
	switch stance {
	case StanceSupport, StanceSkeptic, StanceNeutral:
		return stance, true
	}
	return "", false
}

func (s Stance) String() string {
	return string(s)
}

type Stage string

const (
	StageFetch     Stage = "fetch"
	StageCluster   Stage = "cluster"
	StageOrdinate  Stage = "ordinate"
	StageSummarize Stage = "summarize"
	StagePersist   Stage = "persist"
)

func (s Stage) String() string {
	return string(s)
}

type Environment string

const (
	EnvironmentProduction Environment = "production"
	EnvironmentStaging    Environment = "staging"
	EnvironmentDevelop    Environment = "develop"
)

func (e Environment) String() string {
	return string(e)
}
