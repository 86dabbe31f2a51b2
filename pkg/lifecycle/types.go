package lifecycle

import "github.com/bootcdev/diskctl/pkg/build"

// BuildRequest is the FSM input: the user's build specification plus the
// identity of the history record tracking this attempt.
type BuildRequest struct {
	RecordID string
	Spec     *build.Specification
}

// BuildResult is the FSM output, accumulated across transitions.
type BuildResult struct {
	// From CheckPrereqs
	PrereqMessage string

	// From Translate
	ContainerName string
	Invocation    *build.Invocation

	// From Run / Complete
	Status       string
	ErrorMessage string
}

// State names
const (
	StateCheckPrereqs = "check_prereqs"
	StateTranslate    = "translate"
	StateRun          = "run"
	StateComplete     = "complete"
	StateFailed       = "failed"
)
