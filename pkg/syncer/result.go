package syncer

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ykagano/wiremock-jp/pkg/stub"
)

// Result aggregates one SyncAll batch. Failures and Pending follow the order
// in which the stubs were listed.
type Result struct {
	ProjectID  string    `json:"projectId"`
	InstanceID string    `json:"instanceId"`
	Total      int       `json:"total"`
	Succeeded  int       `json:"succeeded"`
	Failed     int       `json:"failed"`
	Created    int       `json:"created"`
	Updated    int       `json:"updated"`
	Failures   []Failure `json:"failures"`

	// Canceled is set when the caller stopped waiting before every stub
	// finished. Pending lists the stubs whose outcome was not observed.
	Canceled bool     `json:"canceled,omitempty"`
	Pending  []string `json:"pending,omitempty"`
}

// Failure is one failed stub in a batch.
type Failure struct {
	StubID   string `json:"stubId"`
	Kind     Kind   `json:"kind"`
	Message  string `json:"message"`
	RemoteID string `json:"remoteId,omitempty"`
}

func (f Failure) String() string {
	return fmt.Sprintf("Stub %s: %s", f.StubID, f.Message)
}

// OK reports whether every stub in the batch was synchronized.
func (r *Result) OK() bool {
	return r.Failed == 0 && !r.Canceled
}

// Summary is a one-line description with exact counts.
func (r *Result) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d succeeded, %d failed", r.Succeeded, r.Failed)
	if r.Created > 0 || r.Updated > 0 {
		fmt.Fprintf(&b, " (%d created, %d updated)", r.Created, r.Updated)
	}
	if r.Canceled {
		fmt.Fprintf(&b, ", canceled with %d pending", len(r.Pending))
	}
	return b.String()
}

// InstanceResult is the outcome of syncing a project to one instance.
type InstanceResult struct {
	Instance *stub.Instance `json:"instance"`
	Result   *Result        `json:"result"`
}

// outcome records what a successful per-stub sync did.
type outcome int

const (
	outcomeUpdated outcome = iota + 1
	outcomeCreated
)

func (o outcome) String() string {
	switch o {
	case outcomeCreated:
		return "created"
	case outcomeUpdated:
		return "updated"
	default:
		return "unknown"
	}
}

// item is the observed state of one stub during a batch.
type item struct {
	done    bool
	outcome outcome
	err     error
}

func aggregate(res *Result, ids []string, items []item) {
	res.Failures = []Failure{}
	for i, it := range items {
		switch {
		case !it.done:
			res.Pending = append(res.Pending, ids[i])
		case it.err != nil:
			res.Failed++
			f := Failure{StubID: ids[i], Kind: KindOf(it.err), Message: it.err.Error()}
			var se *SyncError
			if errors.As(it.err, &se) {
				f.RemoteID = se.RemoteID
				if se.Err != nil {
					f.Message = se.Err.Error()
				}
			}
			res.Failures = append(res.Failures, f)
		default:
			res.Succeeded++
			if it.outcome == outcomeCreated {
				res.Created++
			} else {
				res.Updated++
			}
		}
	}
	res.Canceled = len(res.Pending) > 0
}
