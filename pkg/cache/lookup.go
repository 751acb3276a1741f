package cache

import (
	"context"
	"reflect"
	"time"

	"github.com/arbortree/arbor/pkg/node"
)

// lookupStatus classifies the result of checking the completeness table for
// a key, per spec §4.4.1 step 3.
type lookupStatus int

const (
	// lookupAbsent means no usable entry exists: either never scanned, or
	// revalidation found the entry stale (which removes it, moving the
	// key's state machine from Present back to Absent before any scan
	// begins).
	lookupAbsent lookupStatus = iota
	// lookupFresh means a valid entry exists whose depth_scanned already
	// satisfies the caller's required_depth.
	lookupFresh
	// lookupInsufficientDepth means a valid entry exists but must be
	// upgraded with a deeper scan to satisfy required_depth.
	lookupInsufficientDepth
)

// lookup implements spec §4.4.1 step 3: find the entry for key, revalidate
// it against ValidationTTL/ValidatorFunc if configured, and classify
// whether it satisfies requiredDepth.
func (a *Adapter) lookup(ctx context.Context, key Key, n node.Node, requiredDepth int) (Entry, lookupStatus) {
	entry, ok := a.store.Get(key)
	if !ok {
		return Entry{}, lookupAbsent
	}

	if a.config.ValidationTTL > 0 && time.Since(entry.InsertedAt) >= a.config.ValidationTTL {
		if a.config.ValidatorFunc != nil {
			token, err := a.config.ValidatorFunc(ctx, n)
			if err == nil && !validatorsEqual(token, entry.Validator) {
				// Revalidation failure: Present -> Absent, before any
				// Scanning transition begins (spec §4.4.4).
				a.store.Remove(key)
				return Entry{}, lookupAbsent
			}
		}
	}

	if sufficientDepth(entry, requiredDepth) {
		return entry, lookupFresh
	}
	return entry, lookupInsufficientDepth
}

// validatorsEqual compares two opaque validator tokens for equality only,
// never ordering, per spec §3's CacheEntry.validator definition.
func validatorsEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == b
	}
	if reflect.TypeOf(a).Comparable() && reflect.TypeOf(b).Comparable() {
		return a == b
	}
	return reflect.DeepEqual(a, b)
}
