package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
)

// Domain prefixes for content-addressed identity. The version suffix leaves
// room to change the encoding without colliding with old digests.
const (
	DomainWorkflow = "workpipe/workflow/v1"
	DomainState    = "workpipe/state/v1"
)

// workflowNamespace seeds WorkflowID.
var workflowNamespace = uuid.MustParse("6f1c2a4e-9b7d-5e3f-8a21-0c4d6e8f1a3b")

// hashWithDomain computes SHA256(domain + 0x00 + data). The separator keeps
// the domain/data boundary unambiguous.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Digest is the content hash of a workflow. Compiling the same source twice
// must give the same digest.
func Digest(w *Workflow) (string, error) {
	canonical, err := MarshalCanonical(WorkflowValue(w))
	if err != nil {
		return "", fmt.Errorf("Digest: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainWorkflow, canonical), nil
}

// MustDigest is like Digest but panics on error.
// Use only in tests or when the workflow is known to be valid.
func MustDigest(w *Workflow) string {
	d, err := Digest(w)
	if err != nil {
		panic(err)
	}
	return d
}

// WorkflowID is a stable UUIDv5 derived from the digest, used to label
// compiled outputs and emulator runs.
func WorkflowID(w *Workflow) (uuid.UUID, error) {
	d, err := Digest(w)
	if err != nil {
		return uuid.Nil, err
	}
	return uuid.NewSHA1(workflowNamespace, []byte(d)), nil
}

// StateDigest hashes a canonical state artifact body.
func StateDigest(data []byte) (string, error) {
	v, err := ParseValue(data)
	if err != nil {
		return "", fmt.Errorf("StateDigest: %w", err)
	}
	canonical, err := MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("StateDigest: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainState, canonical), nil
}

// WorkflowValue converts w into a canonical value. Ordered collections
// become lists, so unit and step order are part of the digest.
func WorkflowValue(w *Workflow) Object {
	o := Object{
		"name":     String(w.Name),
		"source":   String(w.Source),
		"triggers": Strings(w.Triggers),
	}
	inputs := make(List, len(w.Inputs))
	for i, in := range w.Inputs {
		inputs[i] = Object{
			"name":        String(in.Name),
			"description": String(in.Description),
			"required":    Bool(in.Required),
			"default":     String(in.Default),
		}
	}
	o["inputs"] = inputs
	if w.Concurrency != nil {
		o["concurrency"] = concurrencyValue(*w.Concurrency)
	}
	perms := make(List, len(w.Permissions))
	for i, p := range w.Permissions {
		perms[i] = Object{"scope": String(p.Scope), "level": String(p.Level)}
	}
	o["permissions"] = perms

	units := make(List, len(w.Units))
	for i := range w.Units {
		units[i] = unitValue(&w.Units[i])
	}
	o["units"] = units

	states := make(List, len(w.States))
	for i, s := range w.States {
		captured := make(List, len(s.Captured))
		for j, c := range s.Captured {
			captured[j] = Object{"unit": String(c.Unit), "outputs": Strings(c.Outputs)}
		}
		so := Object{
			"cycle":     String(s.Cycle),
			"key":       String(s.Key),
			"predicate": Bool(s.Predicate),
			"artifact":  String(s.Artifact),
			"captured":  captured,
		}
		if s.MaxIters != nil {
			so["max_iters"] = Int(*s.MaxIters)
		}
		states[i] = so
	}
	o["states"] = states
	return o
}

func concurrencyValue(c Concurrency) Object {
	return Object{"group": String(c.Group), "cancel_in_progress": Bool(c.CancelInProgress)}
}

func kvValue(kvs []KV) List {
	l := make(List, len(kvs))
	for i, kv := range kvs {
		l[i] = List{String(kv.Key), String(kv.Value)}
	}
	return l
}

func unitValue(u *Unit) Object {
	o := Object{
		"name":    String(u.Name),
		"phase":   String(u.Phase.String()),
		"cycle":   String(u.Cycle),
		"origin":  String(u.Origin),
		"agent":   Bool(u.Agent),
		"needs":   Strings(u.Needs),
		"if":      String(u.If),
		"runs_on": String(u.RunsOn),
		"env":     kvValue(u.Env),
		"outputs": kvValue(u.Outputs),
	}
	if u.Concurrency != nil {
		o["concurrency"] = concurrencyValue(*u.Concurrency)
	}
	steps := make(List, len(u.Steps))
	for i, s := range u.Steps {
		steps[i] = Object{
			"name": String(s.Name),
			"id":   String(s.ID),
			"if":   String(s.If),
			"uses": String(s.Uses),
			"run":  String(s.Run),
			"with": kvValue(s.With),
			"env":  kvValue(s.Env),
		}
	}
	o["steps"] = steps
	return o
}
