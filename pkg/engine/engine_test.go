package engine

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ausweis-dev/ausweis/pkg/api"
	"github.com/ausweis-dev/ausweis/pkg/capability"
	"github.com/ausweis-dev/ausweis/pkg/capability/invoker"
	"github.com/ausweis-dev/ausweis/pkg/oracle"
	"github.com/ausweis-dev/ausweis/pkg/storage/memory"
)

func testRegistry(t *testing.T) *capability.Registry {
	t.Helper()
	reg, err := capability.Build(&capability.Description{
		Platform: "test",
		Capabilities: []capability.CapabilityDescription{
			{
				Name:       "create_schema",
				SideEffect: api.SideEffectMutating,
				HTTP:       capability.HTTPBinding{Method: "POST", Path: "/schemas"},
				Parameters: []capability.Parameter{
					{Name: "schema_name", Type: "string", Required: true},
				},
			},
			{
				Name:       "publish_cred_def",
				SideEffect: api.SideEffectMutating,
				HTTP:       capability.HTTPBinding{Method: "POST", Path: "/credential-definitions"},
				Parameters: []capability.Parameter{
					{Name: "schema_id", Type: "string", Required: true},
				},
			},
			{
				Name:       "issue_credential",
				SideEffect: api.SideEffectCredential,
				HTTP:       capability.HTTPBinding{Method: "POST", Path: "/issue-credential-2.0/send"},
				Parameters: []capability.Parameter{
					{Name: "connection_id", Type: "string", Required: true},
				},
			},
			{
				Name:       "list_connections",
				SideEffect: api.SideEffectReadOnly,
				HTTP:       capability.HTTPBinding{Method: "GET", Path: "/connections"},
			},
		},
	})
	if err != nil {
		t.Fatalf("building registry: %v", err)
	}
	return reg
}

// stubInvoker returns canned results per capability and records the
// invocation order. Arguments are still validated first, like the real
// invokers.
type stubInvoker struct {
	mu      sync.Mutex
	calls   []string
	results map[string]invoker.Result
	block   chan struct{} // when set, Invoke waits on it before returning
}

func (s *stubInvoker) Invoke(_ context.Context, d *capability.Descriptor, args json.RawMessage) invoker.Result {
	if err := d.ValidateArguments(args); err != nil {
		return invoker.Result{Outcome: api.OutcomeValidationError, Message: err.Message}
	}

	s.mu.Lock()
	s.calls = append(s.calls, d.Name)
	block := s.block
	s.mu.Unlock()

	if block != nil {
		<-block
	}

	if res, ok := s.results[d.Name]; ok {
		return res
	}
	return invoker.Result{Outcome: api.OutcomeSuccess, Payload: json.RawMessage(`{}`)}
}

func (s *stubInvoker) invoked() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func call(name, args string) api.ProposalPayload {
	return api.ProposalPayload{Capability: name, Arguments: json.RawMessage(args)}
}

func final(summary string) api.ProposalPayload {
	return api.ProposalPayload{Final: true, Summary: summary}
}

func newTestEngine(t *testing.T, orc oracle.Oracle, inv invoker.Invoker, cfg Config) *Engine {
	t.Helper()
	e, err := New(memory.New(0), testRegistry(t), inv, orc, cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return e
}

func runToEnd(t *testing.T, e *Engine, goal string) *api.Session {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	id, err := e.Start(ctx, goal)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	sess, err := e.Wait(ctx, id)
	if err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	return sess
}

func observations(t *testing.T, sess *api.Session) []api.ObservationPayload {
	t.Helper()
	var out []api.ObservationPayload
	for _, turn := range sess.Turns {
		if obs, ok := turn.Observation(); ok {
			out = append(out, obs)
		}
	}
	return out
}

// A full issuance run: three capability calls then goal satisfaction.
func TestRunIssuanceGoal(t *testing.T) {
	inv := &stubInvoker{}
	orc := oracle.NewScripted(
		call("create_schema", `{"schema_name":"member"}`),
		call("publish_cred_def", `{"schema_id":"sch_1"}`),
		call("issue_credential", `{"connection_id":"conn_1"}`),
		final("credential issued to subject X"),
	)

	e := newTestEngine(t, orc, inv, Config{})
	sess := runToEnd(t, e, "issue credential to subject X")

	if sess.Status != api.SessionStatusCompleted {
		t.Fatalf("expected completed, got %s (%s)", sess.Status, sess.Reason)
	}
	if sess.Reason != "credential issued to subject X" {
		t.Errorf("unexpected reason: %q", sess.Reason)
	}

	// Observations arrive strictly in invocation order, with the
	// goal-satisfied observation closing the history.
	obs := observations(t, sess)
	want := []string{"create_schema", "publish_cred_def", "issue_credential", ""}
	if len(obs) != len(want) {
		t.Fatalf("expected %d observations, got %d", len(want), len(obs))
	}
	for i, name := range want {
		if obs[i].Capability != name {
			t.Errorf("observation %d: expected capability %q, got %q", i, name, obs[i].Capability)
		}
	}
	for _, o := range obs {
		if o.Outcome != api.OutcomeSuccess {
			t.Errorf("expected success observations, got %s", o.Outcome)
		}
	}

	if got := inv.invoked(); len(got) != 3 {
		t.Errorf("expected 3 invocations, got %v", got)
	}

	// Sequence numbers are contiguous from 1.
	for i, turn := range sess.Turns {
		if turn.Seq != i+1 {
			t.Errorf("turn %d has seq %d", i, turn.Seq)
		}
	}
}

// An unknown capability feeds back as a validation observation and the
// loop continues.
func TestRunUnknownCapability(t *testing.T) {
	inv := &stubInvoker{}
	orc := oracle.NewScripted(
		call("delete_everything", `{}`),
		final("done"),
	)

	e := newTestEngine(t, orc, inv, Config{})
	sess := runToEnd(t, e, "goal")

	if sess.Status != api.SessionStatusCompleted {
		t.Fatalf("expected completed, got %s (%s)", sess.Status, sess.Reason)
	}

	obs := observations(t, sess)
	if len(obs) != 2 {
		t.Fatalf("expected 2 observations, got %d", len(obs))
	}
	if obs[0].Outcome != api.OutcomeValidationError {
		t.Errorf("expected validation error observation, got %s", obs[0].Outcome)
	}
	if len(inv.invoked()) != 0 {
		t.Errorf("unknown capability must not be invoked, got %v", inv.invoked())
	}
}

// Repeated invalid proposals exhaust the retry budget.
func TestRunRetryLimit(t *testing.T) {
	inv := &stubInvoker{}
	orc := oracle.NewScripted(
		call("bogus", `{}`),
		call("bogus", `{}`),
		call("bogus", `{}`),
		call("bogus", `{}`),
		final("never reached"),
	)

	e := newTestEngine(t, orc, inv, Config{MaxRetries: 3})
	sess := runToEnd(t, e, "goal")

	if sess.Status != api.SessionStatusFailed {
		t.Fatalf("expected failed, got %s (%s)", sess.Status, sess.Reason)
	}
	if sess.Reason != "retry limit exceeded" {
		t.Errorf("unexpected reason: %q", sess.Reason)
	}

	// The history ends with the last error observation.
	last := sess.Turns[len(sess.Turns)-1]
	obs, ok := last.Observation()
	if !ok || obs.Outcome != api.OutcomeValidationError {
		t.Errorf("expected trailing error observation, got %+v", last)
	}
}

// Remote errors feed back and the collaborator can recover.
func TestRunRemoteErrorRecovery(t *testing.T) {
	inv := &stubInvoker{
		results: map[string]invoker.Result{
			"create_schema": {
				Outcome: api.OutcomeRemoteError,
				Code:    "422",
				Message: "schema already exists",
			},
		},
	}
	orc := oracle.NewScripted(
		call("create_schema", `{"schema_name":"member"}`),
		call("publish_cred_def", `{"schema_id":"sch_1"}`),
		final("reused existing schema"),
	)

	e := newTestEngine(t, orc, inv, Config{})
	sess := runToEnd(t, e, "goal")

	if sess.Status != api.SessionStatusCompleted {
		t.Fatalf("expected completed, got %s (%s)", sess.Status, sess.Reason)
	}
	obs := observations(t, sess)
	if obs[0].Outcome != api.OutcomeRemoteError || obs[0].Code != "422" {
		t.Errorf("expected remote error observation, got %+v", obs[0])
	}
}

// An indeterminate mutating call fails the session and is never retried.
func TestRunIndeterminate(t *testing.T) {
	inv := &stubInvoker{
		results: map[string]invoker.Result{
			"issue_credential": {
				Outcome: api.OutcomeIndeterminate,
				Message: "request timed out",
			},
		},
	}
	orc := oracle.NewScripted(
		call("issue_credential", `{"connection_id":"conn_1"}`),
		call("issue_credential", `{"connection_id":"conn_1"}`),
	)

	e := newTestEngine(t, orc, inv, Config{})
	sess := runToEnd(t, e, "goal")

	if sess.Status != api.SessionStatusFailed {
		t.Fatalf("expected failed, got %s (%s)", sess.Status, sess.Reason)
	}
	if sess.Reason != "indeterminate mutating call" {
		t.Errorf("unexpected reason: %q", sess.Reason)
	}
	if got := inv.invoked(); len(got) != 1 {
		t.Errorf("indeterminate call must not repeat, got %v", got)
	}

	last := sess.Turns[len(sess.Turns)-1]
	obs, ok := last.Observation()
	if !ok || obs.Outcome != api.OutcomeIndeterminate {
		t.Errorf("expected trailing indeterminate observation, got %+v", last)
	}
}

// Proposal fetch failures are charged against the retry budget.
func TestRunOracleFailure(t *testing.T) {
	inv := &stubInvoker{}
	orc := oracle.ProposeFunc(func(context.Context, *oracle.Request) (*api.ProposalPayload, error) {
		return nil, errors.New("backend unavailable")
	})

	e := newTestEngine(t, orc, inv, Config{MaxRetries: 2})
	sess := runToEnd(t, e, "goal")

	if sess.Status != api.SessionStatusFailed {
		t.Fatalf("expected failed, got %s (%s)", sess.Status, sess.Reason)
	}
	if sess.Reason != "retry limit exceeded" {
		t.Errorf("unexpected reason: %q", sess.Reason)
	}
	// Intent plus one observation per failed fetch.
	if len(sess.Turns) != 4 {
		t.Errorf("expected 4 turns, got %d", len(sess.Turns))
	}
}

// Cancellation during an in-flight invocation discards the result.
func TestCancelDiscardsInFlightResult(t *testing.T) {
	block := make(chan struct{})
	inv := &stubInvoker{block: block}
	orc := oracle.NewScripted(
		call("list_connections", `{}`),
		final("done"),
	)

	e := newTestEngine(t, orc, inv, Config{})
	ctx := context.Background()

	id, err := e.Start(ctx, "goal")
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// Let the invocation begin, then cancel and release it.
	waitFor(t, func() bool { return len(inv.invoked()) == 1 })
	if err := e.Cancel(ctx, id); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	close(block)

	sess, err := e.Wait(ctx, id)
	if err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if sess.Status != api.SessionStatusAborted {
		t.Fatalf("expected aborted, got %s (%s)", sess.Status, sess.Reason)
	}
	if sess.Reason != "canceled by caller" {
		t.Errorf("unexpected reason: %q", sess.Reason)
	}
	if len(observations(t, sess)) != 0 {
		t.Errorf("discarded result must not appear in history: %+v", observations(t, sess))
	}

	// A second cancel on the now-terminal session is caller misuse.
	if err := e.Cancel(ctx, id); err == nil {
		t.Error("expected error canceling a terminal session")
	}
}

// Sessions beyond the admission cap queue and run later, never rejected.
func TestAdmissionQueue(t *testing.T) {
	block := make(chan struct{})
	inv := &stubInvoker{block: block}

	var mu sync.Mutex
	perSession := map[string]int{}
	orc := oracle.ProposeFunc(func(_ context.Context, req *oracle.Request) (*api.ProposalPayload, error) {
		mu.Lock()
		defer mu.Unlock()
		perSession[req.Goal]++
		if perSession[req.Goal] == 1 {
			p := call("list_connections", `{}`)
			return &p, nil
		}
		p := final("done")
		return &p, nil
	})

	e := newTestEngine(t, orc, inv, Config{MaxActiveSessions: 1})
	ctx := context.Background()

	first, err := e.Start(ctx, "first")
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitFor(t, func() bool { return len(inv.invoked()) == 1 })

	second, err := e.Start(ctx, "second")
	if err != nil {
		t.Fatalf("second Start must be admitted to the queue: %v", err)
	}

	// The queued session makes no progress while the first one holds the
	// admission slot.
	time.Sleep(50 * time.Millisecond)
	sess, err := e.Status(ctx, second)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if len(sess.Turns) != 1 || sess.Status != api.SessionStatusActive {
		t.Fatalf("queued session must stay at its intent turn, got %d turns (%s)", len(sess.Turns), sess.Status)
	}

	close(block)

	for _, id := range []string{first, second} {
		sess, err := e.Wait(ctx, id)
		if err != nil {
			t.Fatalf("Wait failed: %v", err)
		}
		if sess.Status != api.SessionStatusCompleted {
			t.Errorf("session %s: expected completed, got %s (%s)", id, sess.Status, sess.Reason)
		}
	}
}

func TestStartRejectsEmptyGoal(t *testing.T) {
	e := newTestEngine(t, oracle.NewScripted(), &stubInvoker{}, Config{})
	if _, err := e.Start(context.Background(), ""); err == nil {
		t.Error("expected error for empty goal")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}
