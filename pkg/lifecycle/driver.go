package lifecycle

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bootcdev/diskctl/pkg/build"
	"github.com/bootcdev/diskctl/pkg/errors"
	"github.com/bootcdev/diskctl/pkg/history"
	"github.com/superfly/fsm"
)

// Driver runs build lifecycles against a registered FSM manager.
type Driver struct {
	manager *fsm.Manager
	start   fsm.Start[BuildRequest, BuildResult]
}

// NewDriver registers the lifecycle machine and returns a driver ready to
// accept builds.
func NewDriver(ctx context.Context, manager *fsm.Manager, machine *Machine) (*Driver, error) {
	start, _, err := machine.Register(ctx, manager)
	if err != nil {
		return nil, err
	}
	return &Driver{manager: manager, start: start}, nil
}

// Handle tracks one in-flight build.
type Handle struct {
	// RecordID identifies the history record for this attempt.
	RecordID string

	result *BuildResult
	wait   func(ctx context.Context) error
}

// Result returns the accumulated build result. Only meaningful after Wait
// has returned.
func (h *Handle) Result() *BuildResult {
	return h.result
}

// Wait blocks until the build reaches a terminal state and returns an error
// when the terminal state is a failure.
func (h *Handle) Wait(ctx context.Context) error {
	if err := h.wait(ctx); err != nil {
		return err
	}
	if h.result.Status != build.StatusSuccess {
		message := h.result.ErrorMessage
		if message == "" {
			message = "build failed"
		}
		return fmt.Errorf("%s", message)
	}
	return nil
}

// Build starts one build. With background set it returns as soon as the
// state machine is started; otherwise it waits for the terminal state.
// Each call owns a distinct record id and container name, so concurrent
// builds proceed independently.
func (d *Driver) Build(ctx context.Context, spec *build.Specification, background bool) (*Handle, error) {
	id := history.NewID()

	req := &BuildRequest{RecordID: id, Spec: spec}
	resp := &BuildResult{}

	version, err := d.start(ctx, id, fsm.NewRequest(req, resp))
	if err != nil {
		return nil, errors.Wrap(err, "failed to start build")
	}
	slog.Info("build_started", "record_id", id, "image", spec.Image, "background", background)

	handle := &Handle{
		RecordID: id,
		result:   resp,
		wait: func(ctx context.Context) error {
			return d.manager.Wait(ctx, version)
		},
	}

	if background {
		return handle, nil
	}
	return handle, handle.Wait(ctx)
}
