// Package lifecycle sequences one disk image build from precondition checks
// through container launch to the terminal history record, as a finite state
// machine built on the superfly/fsm library.
package lifecycle

import (
	"context"

	"github.com/bootcdev/diskctl/pkg/build"
	"github.com/bootcdev/diskctl/pkg/errors"
	"github.com/bootcdev/diskctl/pkg/history"
	"github.com/superfly/fsm"
)

// Engine is the slice of the container runtime the lifecycle needs.
type Engine interface {
	ContainerNames(ctx context.Context) ([]string, error)
	Run(ctx context.Context, inv *build.Invocation, onOutput func(line string)) error
}

// PrereqChecker gates a build on the host environment. An empty result
// means the build may launch.
type PrereqChecker interface {
	CheckPrereqs(ctx context.Context) string
}

// Machine holds dependencies for FSM transitions.
type Machine struct {
	checker  PrereqChecker
	engine   Engine
	store    *history.Store
	opts     build.Options
	observer Observer
}

// NewMachine creates the build lifecycle machine with its dependencies.
func NewMachine(checker PrereqChecker, engine Engine, store *history.Store, opts build.Options, observer Observer) *Machine {
	if observer == nil {
		observer = NopObserver{}
	}
	return &Machine{
		checker:  checker,
		engine:   engine,
		store:    store,
		opts:     opts,
		observer: observer,
	}
}

// Register registers the build lifecycle FSM with the manager.
func (m *Machine) Register(ctx context.Context, manager *fsm.Manager) (fsm.Start[BuildRequest, BuildResult], fsm.Resume, error) {
	start, resume, err := fsm.Register[BuildRequest, BuildResult](manager, "disk-image-build").
		Start(StateCheckPrereqs, m.handleCheckPrereqs).
		To(StateTranslate, m.handleTranslate).
		To(StateRun, m.handleRun).
		To(StateComplete, m.handleComplete).
		End(StateFailed).
		Build(ctx)

	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to register FSM")
	}

	return start, resume, nil
}
