package invoker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ausweis-dev/ausweis/pkg/api"
	"github.com/ausweis-dev/ausweis/pkg/capability"
)

func testRegistry(t *testing.T) *capability.Registry {
	t.Helper()
	reg, err := capability.Build(&capability.Description{
		Platform: "test",
		Capabilities: []capability.CapabilityDescription{
			{
				Name:       "list_connections",
				SideEffect: api.SideEffectReadOnly,
				HTTP:       capability.HTTPBinding{Method: "GET", Path: "/connections"},
				Parameters: []capability.Parameter{
					{Name: "state", Type: "string"},
					{Name: "limit", Type: "integer"},
				},
			},
			{
				Name:       "get_schema_by_id",
				SideEffect: api.SideEffectReadOnly,
				HTTP:       capability.HTTPBinding{Method: "GET", Path: "/schemas/{schema_id}"},
				Parameters: []capability.Parameter{
					{Name: "schema_id", Type: "string", Required: true},
				},
			},
			{
				Name:       "create_schema",
				SideEffect: api.SideEffectMutating,
				HTTP:       capability.HTTPBinding{Method: "POST", Path: "/schemas"},
				Parameters: []capability.Parameter{
					{Name: "schema_name", Type: "string", Required: true},
					{Name: "attributes", Type: "array", Required: true},
				},
			},
		},
	})
	if err != nil {
		t.Fatalf("building registry: %v", err)
	}
	return reg
}

func lookup(t *testing.T, reg *capability.Registry, name string) *capability.Descriptor {
	t.Helper()
	d, ok := reg.Lookup(name)
	if !ok {
		t.Fatalf("capability %s not registered", name)
	}
	return d
}

func TestInvokeSuccess(t *testing.T) {
	reg := testRegistry(t)

	var gotPath, gotQuery, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.Query().Get("state")
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"results":[]}`))
	}))
	defer srv.Close()

	inv, err := NewHTTP(Options{BaseURL: srv.URL, Tokens: StaticToken("tok-1")})
	if err != nil {
		t.Fatalf("NewHTTP failed: %v", err)
	}

	res := inv.Invoke(context.Background(), lookup(t, reg, "list_connections"),
		json.RawMessage(`{"state":"active","limit":5}`))

	if res.Outcome != api.OutcomeSuccess {
		t.Fatalf("expected success, got %s (%s)", res.Outcome, res.Message)
	}
	if string(res.Payload) != `{"results":[]}` {
		t.Errorf("unexpected payload: %s", res.Payload)
	}
	if gotPath != "/connections" {
		t.Errorf("unexpected path: %s", gotPath)
	}
	if gotQuery != "active" {
		t.Errorf("expected state query parameter, got %q", gotQuery)
	}
	if gotAuth != "Bearer tok-1" {
		t.Errorf("expected bearer token header, got %q", gotAuth)
	}
}

func TestInvokePathPlaceholder(t *testing.T) {
	reg := testRegistry(t)

	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	inv, _ := NewHTTP(Options{BaseURL: srv.URL})
	res := inv.Invoke(context.Background(), lookup(t, reg, "get_schema_by_id"),
		json.RawMessage(`{"schema_id":"ABC:2:demo:1.0"}`))

	if res.Outcome != api.OutcomeSuccess {
		t.Fatalf("expected success, got %s (%s)", res.Outcome, res.Message)
	}
	if gotPath != "/schemas/ABC:2:demo:1.0" {
		t.Errorf("unexpected path: %s", gotPath)
	}
}

func TestInvokePostBody(t *testing.T) {
	reg := testRegistry(t)

	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		json.Unmarshal(raw, &gotBody)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"schema_id":"new"}`))
	}))
	defer srv.Close()

	inv, _ := NewHTTP(Options{BaseURL: srv.URL})
	res := inv.Invoke(context.Background(), lookup(t, reg, "create_schema"),
		json.RawMessage(`{"schema_name":"demo","attributes":["name"]}`))

	if res.Outcome != api.OutcomeSuccess {
		t.Fatalf("expected success, got %s (%s)", res.Outcome, res.Message)
	}
	if gotBody["schema_name"] != "demo" {
		t.Errorf("unexpected body: %v", gotBody)
	}
}

func TestInvokeRemoteError(t *testing.T) {
	reg := testRegistry(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"detail":"schema already exists"}`))
	}))
	defer srv.Close()

	inv, _ := NewHTTP(Options{BaseURL: srv.URL})
	res := inv.Invoke(context.Background(), lookup(t, reg, "create_schema"),
		json.RawMessage(`{"schema_name":"demo","attributes":["name"]}`))

	if res.Outcome != api.OutcomeRemoteError {
		t.Fatalf("expected remote error, got %s", res.Outcome)
	}
	if res.Code != "422" {
		t.Errorf("expected code 422, got %s", res.Code)
	}
	if string(res.Payload) != `{"detail":"schema already exists"}` {
		t.Errorf("expected error document in payload, got %s", res.Payload)
	}
}

func TestInvokeTransportClassification(t *testing.T) {
	reg := testRegistry(t)

	// A server that is immediately closed produces connection failures.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	inv, _ := NewHTTP(Options{BaseURL: srv.URL})

	res := inv.Invoke(context.Background(), lookup(t, reg, "list_connections"), nil)
	if res.Outcome != api.OutcomeTransportError {
		t.Errorf("read-only capability: expected transport error, got %s", res.Outcome)
	}

	res = inv.Invoke(context.Background(), lookup(t, reg, "create_schema"),
		json.RawMessage(`{"schema_name":"demo","attributes":["name"]}`))
	if res.Outcome != api.OutcomeIndeterminate {
		t.Errorf("mutating capability: expected indeterminate, got %s", res.Outcome)
	}
}

func TestInvokeValidationNeverReachesWire(t *testing.T) {
	reg := testRegistry(t)

	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
	}))
	defer srv.Close()

	inv, _ := NewHTTP(Options{BaseURL: srv.URL})
	res := inv.Invoke(context.Background(), lookup(t, reg, "create_schema"),
		json.RawMessage(`{"attributes":["name"]}`))

	if res.Outcome != api.OutcomeValidationError {
		t.Fatalf("expected validation error, got %s", res.Outcome)
	}
	if requests != 0 {
		t.Errorf("expected no request for invalid arguments, got %d", requests)
	}
}

type failingTokens struct{}

func (failingTokens) Token(context.Context) (string, error) {
	return "", errors.New("token endpoint unavailable")
}

func TestInvokeTokenFailure(t *testing.T) {
	reg := testRegistry(t)

	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
	}))
	defer srv.Close()

	inv, _ := NewHTTP(Options{BaseURL: srv.URL, Tokens: failingTokens{}})
	res := inv.Invoke(context.Background(), lookup(t, reg, "create_schema"),
		json.RawMessage(`{"schema_name":"demo","attributes":["name"]}`))

	// The request was never sent, so even a mutating capability stays
	// recoverable.
	if res.Outcome != api.OutcomeTransportError {
		t.Fatalf("expected transport error, got %s", res.Outcome)
	}
	if requests != 0 {
		t.Errorf("expected no request after token failure, got %d", requests)
	}
}

func TestNewHTTPRejectsRelativeURL(t *testing.T) {
	if _, err := NewHTTP(Options{BaseURL: "/not-absolute"}); err == nil {
		t.Error("expected error for relative base URL")
	}
}
