// Command demo walks the full issue-then-verify story in a single
// process: a scripted oracle drives the engine through schema,
// credential definition and issuance against an in-memory platform,
// then a requester and a verifier exchange a trust claim over a
// channel pair, before and after the credential is revoked.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"time"

	"github.com/ausweis-dev/ausweis/pkg/api"
	"github.com/ausweis-dev/ausweis/pkg/capability"
	"github.com/ausweis-dev/ausweis/pkg/capability/invoker"
	"github.com/ausweis-dev/ausweis/pkg/channel"
	"github.com/ausweis-dev/ausweis/pkg/engine"
	"github.com/ausweis-dev/ausweis/pkg/oracle"
	"github.com/ausweis-dev/ausweis/pkg/storage/memory"
	"github.com/ausweis-dev/ausweis/pkg/trust"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "demo failed:", err)
		os.Exit(1)
	}
}

func run() error {
	fmt.Println("=== ausweis issue-then-verify demo ===")
	fmt.Println()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// 1. An in-process identity platform.
	platform := newMiniPlatform()
	server := httptest.NewServer(platform)
	defer server.Close()
	fmt.Println("[1] Mock identity platform listening at", server.URL)

	registry, err := capability.Build(capability.DefaultDescription())
	if err != nil {
		return err
	}
	inv, err := invoker.NewHTTP(invoker.Options{BaseURL: server.URL})
	if err != nil {
		return err
	}
	store := memory.New(0)
	defer store.Close()

	// 2. A scripted oracle that issues a credential step by step.
	orc := oracle.NewScripted(
		proposal("create_schema", `{"schema_name":"employee_badge","schema_version":"1.0","attributes":["name","role"]}`),
		proposal("create_credential_definition", `{"schema_id":"mock:2:employee_badge:1.0","support_revocation":true}`),
		proposal("issue_credential", `{"connection_id":"conn-0001","cred_def_id":"any","attributes":{"name":"Ada","role":"engineer"}}`),
		api.ProposalPayload{Final: true, Summary: "employee badge issued"},
	)

	eng, err := engine.New(store, registry, inv, orc, engine.Config{})
	if err != nil {
		return err
	}
	defer eng.Close()

	id, err := eng.Start(ctx, "issue an employee badge credential to Ada")
	if err != nil {
		return err
	}
	sess, err := eng.Wait(ctx, id)
	if err != nil {
		return err
	}
	fmt.Printf("[2] Session %s finished: %s (%s)\n", sess.ID, sess.Status, sess.Reason)
	for _, turn := range sess.Turns {
		if obs, ok := turn.Observation(); ok && obs.Capability != "" {
			fmt.Printf("    %-30s -> %s\n", obs.Capability, obs.Outcome)
		}
	}

	// 3. The requester asks a verifier for access, backed by the
	// freshly issued credential.
	holderCh, verifierCh := channel.Pair("holder", "verifier", 4)
	defer holderCh.Close()
	defer verifierCh.Close()

	verifier, err := trust.NewVerifier(store, registry, inv, trust.VerifierOptions{
		Action: func(ctx context.Context, c trust.Claim) error {
			fmt.Printf("    protected action unlocked for subject %q\n", c.Subject)
			return nil
		},
	})
	if err != nil {
		return err
	}
	go verifier.Serve(ctx, verifierCh, "holder")

	requester := trust.NewRequester(holderCh, "verifier", "ada@example.org")
	decision, err := requester.RequestAccess(ctx, platform.presExID(), "policy:employee", json.RawMessage(`{"nonce":"demo"}`))
	if err != nil {
		return err
	}
	fmt.Printf("[3] Access decision: %s (%s)\n", decision.Outcome, decision.Reason)

	// 4. Revoke the credential and replay the same request.
	platform.revoke()
	fmt.Println("[4] Credential revoked on the platform")

	decision, err = requester.RequestAccess(ctx, platform.presExID(), "policy:employee", json.RawMessage(`{"nonce":"demo"}`))
	if err != nil {
		return err
	}
	fmt.Printf("[5] Access decision after revocation: %s (%s)\n", decision.Outcome, decision.Reason)

	fmt.Println()
	fmt.Println("=== demo complete ===")
	return nil
}

func proposal(cap, args string) api.ProposalPayload {
	return api.ProposalPayload{Capability: cap, Arguments: json.RawMessage(args)}
}

// miniPlatform is just enough platform to issue one credential and
// verify or revoke it. It accepts whatever ledger identifiers the
// script sends.
type miniPlatform struct {
	mu      sync.Mutex
	presEx  string
	revoked bool
	mux     *http.ServeMux
}

func newMiniPlatform() *miniPlatform {
	p := &miniPlatform{presEx: "pres-ex-0001"}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /schemas", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]string{"schema_id": "mock:2:employee_badge:1.0"})
	})
	mux.HandleFunc("POST /credential-definitions", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]string{"credential_definition_id": "mock:3:CL-0001"})
	})
	mux.HandleFunc("POST /issue-credential-2.0/send", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]string{
			"cred_ex_id": "cred-ex-0001",
			"pres_ex_id": p.presExID(),
			"state":      "credential-issued",
		})
	})
	mux.HandleFunc("POST /present-proof-2.0/records/{pres_ex_id}/verify-presentation", func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		defer p.mu.Unlock()
		if r.PathValue("pres_ex_id") != p.presEx {
			http.Error(w, `{"message":"presentation exchange not found"}`, http.StatusNotFound)
			return
		}
		resp := map[string]any{"pres_ex_id": p.presEx, "state": "done", "verified": !p.revoked}
		if p.revoked {
			resp["reason"] = "revoked"
		}
		writeJSON(w, resp)
	})
	p.mux = mux
	return p
}

func (p *miniPlatform) ServeHTTP(w http.ResponseWriter, r *http.Request) { p.mux.ServeHTTP(w, r) }

func (p *miniPlatform) presExID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.presEx
}

func (p *miniPlatform) revoke() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.revoked = true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
