package lifecycle

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bootcdev/diskctl/pkg/build"
	"github.com/bootcdev/diskctl/pkg/history"
	"github.com/superfly/fsm"
)

type stubChecker struct {
	message string
}

func (s stubChecker) CheckPrereqs(ctx context.Context) string { return s.message }

type stubEngine struct {
	names  []string
	runErr error
	ran    *build.Invocation
}

func (s *stubEngine) ContainerNames(ctx context.Context) ([]string, error) {
	return s.names, nil
}

func (s *stubEngine) Run(ctx context.Context, inv *build.Invocation, onOutput func(string)) error {
	s.ran = inv
	if onOutput != nil {
		onOutput("Generating manifest")
	}
	return s.runErr
}

func testMachine(t *testing.T, checker PrereqChecker, engine Engine) (*Machine, *history.Store) {
	t.Helper()
	store, err := history.Open(filepath.Join(t.TempDir(), "history.json"))
	if err != nil {
		t.Fatalf("history open failed: %v", err)
	}
	return NewMachine(checker, engine, store, build.Options{}, nil), store
}

func testRequest(spec *build.Specification) (*fsm.Request[BuildRequest, BuildResult], string) {
	id := history.NewID()
	return fsm.NewRequest(&BuildRequest{RecordID: id, Spec: spec}, &BuildResult{}), id
}

func buildSpec() *build.Specification {
	return &build.Specification{
		Image:   "quay.io/fedora/fedora-bootc",
		Tag:     "41",
		Formats: []string{"qcow2"},
		Folder:  "/var/tmp/images",
	}
}

func TestHandleCheckPrereqs_FailureRecordsAndAborts(t *testing.T) {
	machine, store := testMachine(t, stubChecker{message: "machine must be rootful"}, &stubEngine{})
	req, id := testRequest(buildSpec())

	_, err := machine.handleCheckPrereqs(context.Background(), req)
	if err == nil {
		t.Fatal("expected abort on precondition failure")
	}

	rec, getErr := store.Get(id)
	if getErr != nil {
		t.Fatalf("record not written: %v", getErr)
	}
	if rec.Status != build.StatusFailure || rec.Error != "machine must be rootful" {
		t.Errorf("unexpected record: %+v", rec)
	}
}

func TestHandleCheckPrereqs_PassWritesPendingRecord(t *testing.T) {
	machine, store := testMachine(t, stubChecker{}, &stubEngine{})
	req, id := testRequest(buildSpec())

	if _, err := machine.handleCheckPrereqs(context.Background(), req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rec, err := store.Get(id)
	if err != nil {
		t.Fatalf("record not written: %v", err)
	}
	if rec.Status != build.StatusPending {
		t.Errorf("expected pending record, got %s", rec.Status)
	}
	if rec.Image != "quay.io/fedora/fedora-bootc" || len(rec.Formats) != 1 {
		t.Errorf("spec fields not denormalized: %+v", rec)
	}
}

func TestHandleTranslate_ResolvesUnusedName(t *testing.T) {
	engine := &stubEngine{names: []string{"bootc-image-builder"}}
	machine, _ := testMachine(t, stubChecker{}, engine)
	req, _ := testRequest(buildSpec())

	if _, err := machine.handleCheckPrereqs(context.Background(), req); err != nil {
		t.Fatalf("check prereqs failed: %v", err)
	}
	if _, err := machine.handleTranslate(context.Background(), req); err != nil {
		t.Fatalf("translate failed: %v", err)
	}

	result := req.W.Msg
	if result.ContainerName != "bootc-image-builder-2" {
		t.Errorf("expected collision-free name, got %q", result.ContainerName)
	}
	if result.Invocation == nil || result.Invocation.Name != result.ContainerName {
		t.Errorf("invocation not built for %q: %+v", result.ContainerName, result.Invocation)
	}
}

func TestHandleRun_FailureCapturesErrorText(t *testing.T) {
	engine := &stubEngine{runErr: fmt.Errorf("builder container failed: manifest error")}
	machine, store := testMachine(t, stubChecker{}, engine)
	req, id := testRequest(buildSpec())

	if _, err := machine.handleCheckPrereqs(context.Background(), req); err != nil {
		t.Fatalf("check prereqs failed: %v", err)
	}
	if _, err := machine.handleTranslate(context.Background(), req); err != nil {
		t.Fatalf("translate failed: %v", err)
	}
	if _, err := machine.handleRun(context.Background(), req); err == nil {
		t.Fatal("expected abort on run failure")
	}

	rec, err := store.Get(id)
	if err != nil {
		t.Fatalf("record missing: %v", err)
	}
	if rec.Status != build.StatusFailure {
		t.Errorf("expected failure status, got %s", rec.Status)
	}
	if !strings.Contains(rec.Error, "manifest error") {
		t.Errorf("error text not captured: %q", rec.Error)
	}
}

func TestHandleRunAndComplete_Success(t *testing.T) {
	engine := &stubEngine{}
	machine, store := testMachine(t, stubChecker{}, engine)
	req, id := testRequest(buildSpec())

	for _, step := range []func(context.Context, *fsm.Request[BuildRequest, BuildResult]) (*fsm.Response[BuildResult], error){
		machine.handleCheckPrereqs,
		machine.handleTranslate,
		machine.handleRun,
		machine.handleComplete,
	} {
		if _, err := step(context.Background(), req); err != nil {
			t.Fatalf("lifecycle step failed: %v", err)
		}
	}

	if engine.ran == nil {
		t.Fatal("engine never ran the invocation")
	}

	rec, err := store.Get(id)
	if err != nil {
		t.Fatalf("record missing: %v", err)
	}
	if rec.Status != build.StatusSuccess || rec.Error != "" {
		t.Errorf("expected success record, got %+v", rec)
	}
}
