package predicates

import (
	"sigs.k8s.io/controller-runtime/pkg/event"
)

// AppliedObjectPredicate passes creations, spec changes and resyncs. Deletions are
// dropped as removing the backing resources is not supported.
type AppliedObjectPredicate struct{}

func NewAppliedObjectPredicate() AppliedObjectPredicate {
	return AppliedObjectPredicate{}
}

func (AppliedObjectPredicate) Create(e event.CreateEvent) bool {
	return e.Object != nil
}

func (AppliedObjectPredicate) Delete(event.DeleteEvent) bool {
	return false
}

func (AppliedObjectPredicate) Update(e event.UpdateEvent) bool {
	if e.ObjectOld == nil || e.ObjectNew == nil {
		return false
	}
	// Periodic resyncs replay the cached object unchanged.
	if e.ObjectNew.GetResourceVersion() == e.ObjectOld.GetResourceVersion() {
		return true
	}
	// Status writes do not bump the generation
	return e.ObjectNew.GetGeneration() != e.ObjectOld.GetGeneration()
}

func (AppliedObjectPredicate) Generic(e event.GenericEvent) bool {
	return e.Object != nil
}
