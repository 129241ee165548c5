/*
lifecycle.go - Scheme approval workflow

PURPOSE:
  Moves schemes through draft -> approved -> archived and refuses edits
  outside draft. The engine reads schemes in any state; only this
  workflow (and the store behind it) decides what may change.

STATE MACHINE:
  ┌─────────┐  Approve   ┌──────────┐  Approve(other)  ┌──────────┐
  │  draft  │ ─────────▶ │ approved │ ───────────────▶ │ archived │
  └─────────┘            └──────────┘     Archive      └──────────┘
       │                                                     ▲
       └──────────────────── Archive ────────────────────────┘

ONE APPROVED SCHEME PER (TYPE, PERIOD):
  Approving a scheme archives every other approved scheme of the same
  type and period. Both status changes are handed to the store as one
  batch so a failure leaves neither applied.

EXAMPLE:
  lc := &scheme.Lifecycle{Schemes: store}
  approved, err := lc.Approve(ctx, "scheme-2025-03-store")
  if errors.Is(err, scheme.ErrInvalidTransition) {
      // 409
  }

SEE ALSO:
  - store.go: SchemeStore.ApplyStatusChanges
  - errors.go: TransitionError, ErrSchemeNotDraft
*/
package scheme

import (
	"context"
	"fmt"
)

// =============================================================================
// TRANSITIONS
// =============================================================================

var allowedTransitions = map[Status][]Status{
	StatusDraft:    {StatusApproved, StatusArchived},
	StatusApproved: {StatusArchived},
}

// CanTransition reports whether a scheme may move from one status to another.
func CanTransition(from, to Status) bool {
	if from == "" {
		from = StatusDraft
	}
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// EnsureEditable returns ErrSchemeNotDraft unless the scheme is a draft.
func EnsureEditable(s Scheme) error {
	if !s.IsEditable() {
		return fmt.Errorf("%w: %s is %s", ErrSchemeNotDraft, s.ID, s.Status)
	}
	return nil
}

// StatusChange is one status move applied by the store. From is checked
// against the stored status so concurrent approvals can't both win.
type StatusChange struct {
	SchemeID SchemeID
	From     Status
	To       Status
}

// =============================================================================
// LIFECYCLE SERVICE
// =============================================================================

// Lifecycle orchestrates scheme status transitions.
type Lifecycle struct {
	Schemes SchemeStore
}

// Approve approves a draft scheme and archives the previously approved
// scheme(s) for the same type and period.
func (l *Lifecycle) Approve(ctx context.Context, id SchemeID) (*Scheme, error) {
	s, err := l.Schemes.GetScheme(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanTransition(s.Status, StatusApproved) {
		return nil, &TransitionError{SchemeID: id, From: s.Status, To: StatusApproved}
	}

	approved, err := l.Schemes.ListSchemes(ctx, SchemeFilter{
		Type:   s.Type,
		Period: &s.Period,
		Status: StatusApproved,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list approved schemes: %w", err)
	}

	changes := make([]StatusChange, 0, len(approved)+1)
	for _, prev := range approved {
		if prev.ID == id {
			continue
		}
		changes = append(changes, StatusChange{SchemeID: prev.ID, From: StatusApproved, To: StatusArchived})
	}
	changes = append(changes, StatusChange{SchemeID: id, From: statusOrDraft(s.Status), To: StatusApproved})

	if err := l.Schemes.ApplyStatusChanges(ctx, changes); err != nil {
		return nil, fmt.Errorf("failed to approve scheme %s: %w", id, err)
	}

	s.Status = StatusApproved
	return s, nil
}

// Archive retires a draft or approved scheme.
func (l *Lifecycle) Archive(ctx context.Context, id SchemeID) (*Scheme, error) {
	s, err := l.Schemes.GetScheme(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanTransition(s.Status, StatusArchived) {
		return nil, &TransitionError{SchemeID: id, From: s.Status, To: StatusArchived}
	}

	change := StatusChange{SchemeID: id, From: statusOrDraft(s.Status), To: StatusArchived}
	if err := l.Schemes.ApplyStatusChanges(ctx, []StatusChange{change}); err != nil {
		return nil, fmt.Errorf("failed to archive scheme %s: %w", id, err)
	}

	s.Status = StatusArchived
	return s, nil
}

// Update replaces a draft scheme's definition. Approved and archived
// schemes are refused with ErrSchemeNotDraft, including a scheme approved
// between the read and the write.
func (l *Lifecycle) Update(ctx context.Context, next Scheme) (*Scheme, error) {
	current, err := l.Schemes.GetScheme(ctx, next.ID)
	if err != nil {
		return nil, err
	}
	if err := EnsureEditable(*current); err != nil {
		return nil, err
	}

	next.Status = StatusDraft
	next.Version = current.Version + 1
	if err := l.Schemes.UpdateDraft(ctx, next, current.Version); err != nil {
		return nil, fmt.Errorf("failed to save scheme %s: %w", next.ID, err)
	}
	return &next, nil
}

// Delete removes a draft scheme.
func (l *Lifecycle) Delete(ctx context.Context, id SchemeID) error {
	s, err := l.Schemes.GetScheme(ctx, id)
	if err != nil {
		return err
	}
	if err := EnsureEditable(*s); err != nil {
		return err
	}
	return l.Schemes.DeleteScheme(ctx, id)
}

func statusOrDraft(s Status) Status {
	if s == "" {
		return StatusDraft
	}
	return s
}
