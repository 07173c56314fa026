package google

import "context"

// Locator is the idempotent find-or-create procedure used for every shared,
// uniquely named remote resource (an Ads label, a GA4 property, the GTM
// workspace). Once a reference is recorded locally it is authoritative;
// remote search only populates it, never overrides it.
type Locator struct {
	// Lookup returns the persisted local reference, or "" when absent.
	// The fast path for every call after first provisioning.
	Lookup func() (string, error)
	// Search queries the remote system for the deterministically named
	// resource, returning "" when no match exists. Heals references lost
	// to a crash between remote create and local persist, and resolves
	// create races.
	Search func(ctx context.Context) (string, error)
	// Create creates the resource remotely and returns its id.
	Create func(ctx context.Context) (string, error)
	// Persist records the resolved id on the local owner.
	Persist func(id string) error
}

// Resolve short-circuits at the first of: local reference, remote match,
// fresh create. Steps 2–3 are not transactional against the remote API; the
// remote name-uniqueness constraint is the backstop, so a duplicate-name
// failure from Create is treated as success and resolved by re-searching.
func (l Locator) Resolve(ctx context.Context) (string, error) {
	id, err := l.Lookup()
	if err != nil {
		return "", err
	}
	if id != "" {
		return id, nil
	}

	id, err = l.Search(ctx)
	if err != nil {
		return "", err
	}
	if id == "" {
		id, err = l.Create(ctx)
		if IsKind(err, KindConflict) {
			// A concurrent caller won the create race. The resource exists
			// now, so the search must find it.
			id, err = l.Search(ctx)
			if err == nil && id == "" {
				err = Errf(KindConflict, "locator.resolve",
					"duplicate name reported by provider but search found no match")
			}
		}
		if err != nil {
			return "", err
		}
	}

	if err := l.Persist(id); err != nil {
		return "", err
	}
	return id, nil
}
