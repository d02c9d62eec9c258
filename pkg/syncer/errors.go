package syncer

import (
	"errors"
	"fmt"

	"github.com/ykagano/wiremock-jp/pkg/store"
	"github.com/ykagano/wiremock-jp/pkg/wiremock"
)

// Kind classifies a sync failure.
type Kind string

// Failure kinds.
const (
	// KindUnavailable: the instance could not be reached in time.
	KindUnavailable Kind = "remote_unavailable"
	// KindRejected: the instance answered with a non-success status.
	KindRejected Kind = "remote_rejected"
	// KindNotFound: the stub, instance or project does not exist locally,
	// or the instance belongs to another project.
	KindNotFound Kind = "not_found"
	// KindPartialReconciliation: the remote create succeeded but the
	// returned identifier could not be stored, or the instance accepted
	// the create without a usable answer. Retrying blindly would create a
	// duplicate mapping; use Recover.
	KindPartialReconciliation Kind = "partial_reconciliation"
	// KindStore: any other local storage failure.
	KindStore Kind = "store_error"
)

// ErrPartialReconciliation matches a SyncError of KindPartialReconciliation.
var ErrPartialReconciliation = errors.New("partial reconciliation")

// SyncError is the failure of one stub against one instance.
type SyncError struct {
	Kind       Kind
	StubID     string
	InstanceID string
	// RemoteID is the remote mapping involved, when known. For
	// KindPartialReconciliation it is the mapping that was created.
	RemoteID string
	Err      error
}

func (e *SyncError) Error() string {
	msg := fmt.Sprintf("sync stub %q to instance %q: %s", e.StubID, e.InstanceID, e.Kind)
	if e.RemoteID != "" {
		msg += fmt.Sprintf(" (remote id %q)", e.RemoteID)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SyncError) Unwrap() error {
	return e.Err
}

// Is matches ErrPartialReconciliation for partial reconciliation failures.
func (e *SyncError) Is(target error) bool {
	return target == ErrPartialReconciliation && e.Kind == KindPartialReconciliation
}

// KindOf returns the Kind carried by err, classifying plain errors by the
// sentinels they match.
func KindOf(err error) Kind {
	var se *SyncError
	if errors.As(err, &se) {
		return se.Kind
	}
	return classify(err)
}

func classify(err error) Kind {
	switch {
	case errors.Is(err, wiremock.ErrCreateUnconfirmed):
		return KindPartialReconciliation
	case errors.Is(err, wiremock.ErrUnavailable):
		return KindUnavailable
	case errors.Is(err, wiremock.ErrRejected):
		return KindRejected
	case errors.Is(err, store.ErrNotFound):
		return KindNotFound
	default:
		return KindStore
	}
}

// errNotInProject reports an instance that belongs to a different project.
func errNotInProject(instanceID, projectID string) error {
	return fmt.Errorf("instance %q is not part of project %q: %w", instanceID, projectID, store.ErrNotFound)
}
