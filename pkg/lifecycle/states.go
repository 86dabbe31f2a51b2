package lifecycle

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bootcdev/diskctl/pkg/build"
	"github.com/bootcdev/diskctl/pkg/history"
	"github.com/superfly/fsm"
)

// Every failure is terminal for the attempt; the fsm library would retry a
// transition that errors, so handlers always abort instead.
const maxAttempts = 1

// fail records the terminal failure for this attempt and aborts the machine.
func (m *Machine) fail(rec *history.Record, resp *BuildResult, message string) (*fsm.Response[BuildResult], error) {
	rec.Status = build.StatusFailure
	rec.Error = message
	if err := m.store.AddOrUpdate(rec); err != nil {
		slog.Error("history_update_failed", "record_id", rec.ID, "error", err)
	}

	resp.Status = build.StatusFailure
	resp.ErrorMessage = message
	m.observer.BuildFinished(build.StatusFailure, message)

	return nil, fsm.Abort(fmt.Errorf("%s", message))
}

// handleCheckPrereqs opens the history record and gates the build on the
// host environment. A precondition failure never launches a container.
func (m *Machine) handleCheckPrereqs(ctx context.Context, req *fsm.Request[BuildRequest, BuildResult]) (*fsm.Response[BuildResult], error) {
	slog.Info("build_state_check_prereqs", "record_id", req.Msg.RecordID, "image", req.Msg.Spec.Image)

	if retryCount := fsm.RetryFromContext(ctx); retryCount >= maxAttempts {
		return nil, fsm.Abort(fmt.Errorf("build attempt is terminal, not retrying"))
	}

	resp := req.W.Msg
	if resp == nil {
		resp = &BuildResult{}
	}

	spec := req.Msg.Spec
	rec := &history.Record{
		ID:       req.Msg.RecordID,
		Image:    spec.Image,
		Tag:      spec.Tag,
		Formats:  spec.Formats,
		Arch:     spec.Arch,
		Folder:   spec.Folder,
		EngineID: spec.EngineID,
		Status:   build.StatusPending,
	}
	if err := m.store.AddOrUpdate(rec); err != nil {
		return nil, fsm.Abort(err)
	}

	if message := m.checker.CheckPrereqs(ctx); message != "" {
		slog.Error("build_precondition_failed", "record_id", rec.ID, "message", message)
		return m.fail(rec, resp, message)
	}

	return fsm.NewResponse(resp), nil
}

// handleTranslate resolves an unused container name and builds the
// invocation the engine will run.
func (m *Machine) handleTranslate(ctx context.Context, req *fsm.Request[BuildRequest, BuildResult]) (*fsm.Response[BuildResult], error) {
	slog.Info("build_state_translate", "record_id", req.Msg.RecordID)

	resp := req.W.Msg
	if resp == nil {
		return nil, fsm.Abort(fmt.Errorf("response not initialized"))
	}
	if resp.Status == build.StatusFailure {
		return fsm.NewResponse(resp), nil
	}

	rec, err := m.store.Get(req.Msg.RecordID)
	if err != nil {
		return nil, fsm.Abort(err)
	}

	names, err := m.engine.ContainerNames(ctx)
	if err != nil {
		return m.fail(rec, resp, err.Error())
	}
	resp.ContainerName = build.UnusedName("bootc-image-builder", names)

	inv, err := build.Translate(resp.ContainerName, req.Msg.Spec, m.opts)
	if err != nil {
		return m.fail(rec, resp, err.Error())
	}
	resp.Invocation = inv

	return fsm.NewResponse(resp), nil
}

// handleRun launches the builder container and waits for it to exit,
// streaming its output to the observer.
func (m *Machine) handleRun(ctx context.Context, req *fsm.Request[BuildRequest, BuildResult]) (*fsm.Response[BuildResult], error) {
	slog.Info("build_state_run", "record_id", req.Msg.RecordID)

	resp := req.W.Msg
	if resp == nil {
		return nil, fsm.Abort(fmt.Errorf("response not initialized"))
	}
	if resp.Status == build.StatusFailure {
		return fsm.NewResponse(resp), nil
	}

	rec, err := m.store.Get(req.Msg.RecordID)
	if err != nil {
		return nil, fsm.Abort(err)
	}

	rec.Status = build.StatusRunning
	if err := m.store.AddOrUpdate(rec); err != nil {
		return nil, fsm.Abort(err)
	}

	m.observer.BuildStarted(resp.ContainerName)
	if err := m.engine.Run(ctx, resp.Invocation, m.observer.Output); err != nil {
		return m.fail(rec, resp, err.Error())
	}

	return fsm.NewResponse(resp), nil
}

// handleComplete writes the terminal success record and notifies the
// observer.
func (m *Machine) handleComplete(ctx context.Context, req *fsm.Request[BuildRequest, BuildResult]) (*fsm.Response[BuildResult], error) {
	resp := req.W.Msg
	if resp == nil {
		return nil, fsm.Abort(fmt.Errorf("response not initialized"))
	}
	if resp.Status == build.StatusFailure {
		return fsm.NewResponse(resp), nil
	}

	rec, err := m.store.Get(req.Msg.RecordID)
	if err != nil {
		return nil, fsm.Abort(err)
	}

	rec.Status = build.StatusSuccess
	rec.Error = ""
	if err := m.store.AddOrUpdate(rec); err != nil {
		return nil, fsm.Abort(err)
	}

	resp.Status = build.StatusSuccess
	m.observer.BuildFinished(build.StatusSuccess, "")

	slog.Info("build_complete", "record_id", rec.ID, "container", resp.ContainerName)
	return fsm.NewResponse(resp), nil
}
