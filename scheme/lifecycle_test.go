package scheme_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/commission-engine/scheme"
	"github.com/warp/commission-engine/store/memory"
)

func draft(id scheme.SchemeID, month time.Month) scheme.Scheme {
	return scheme.Scheme{
		ID:     id,
		Type:   "store_advisor",
		Period: scheme.Period{Year: 2025, Month: month},
		Status: scheme.StatusDraft,
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to scheme.Status
		want     bool
	}{
		{scheme.StatusDraft, scheme.StatusApproved, true},
		{"", scheme.StatusApproved, true},
		{scheme.StatusDraft, scheme.StatusArchived, true},
		{scheme.StatusApproved, scheme.StatusArchived, true},
		{scheme.StatusApproved, scheme.StatusDraft, false},
		{scheme.StatusArchived, scheme.StatusApproved, false},
		{scheme.StatusArchived, scheme.StatusDraft, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, scheme.CanTransition(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestApprove_ArchivesPreviousForSamePeriod(t *testing.T) {
	// GIVEN: An approved April scheme, a new April draft and a May draft
	// WHEN: The new April draft is approved
	// THEN: The old April scheme is archived, May is untouched

	ctx := context.Background()
	repo := memory.New()
	lc := &scheme.Lifecycle{Schemes: repo}

	require.NoError(t, repo.SaveScheme(ctx, draft("apr-v1", time.April)))
	require.NoError(t, repo.SaveScheme(ctx, draft("apr-v2", time.April)))
	require.NoError(t, repo.SaveScheme(ctx, draft("may-v1", time.May)))
	_, err := lc.Approve(ctx, "apr-v1")
	require.NoError(t, err)
	_, err = lc.Approve(ctx, "may-v1")
	require.NoError(t, err)

	approved, err := lc.Approve(ctx, "apr-v2")
	require.NoError(t, err)
	assert.Equal(t, scheme.StatusApproved, approved.Status)

	old, _ := repo.GetScheme(ctx, "apr-v1")
	assert.Equal(t, scheme.StatusArchived, old.Status)
	may, _ := repo.GetScheme(ctx, "may-v1")
	assert.Equal(t, scheme.StatusApproved, may.Status)

	april := scheme.Period{Year: 2025, Month: time.April}
	list, err := repo.ListSchemes(ctx, scheme.SchemeFilter{Period: &april, Status: scheme.StatusApproved})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, scheme.SchemeID("apr-v2"), list[0].ID)
}

func TestLifecycle_RefusesInvalidMoves(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	lc := &scheme.Lifecycle{Schemes: repo}
	require.NoError(t, repo.SaveScheme(ctx, draft("s1", time.April)))

	_, err := lc.Archive(ctx, "s1")
	require.NoError(t, err)

	_, err = lc.Approve(ctx, "s1")
	var te *scheme.TransitionError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, scheme.StatusArchived, te.From)
	assert.True(t, scheme.IsConflict(err))

	_, err = lc.Approve(ctx, "nope")
	assert.True(t, scheme.IsNotFound(err))
}

func TestUpdate_OnlyDrafts(t *testing.T) {
	// GIVEN: A draft at version 1
	// WHEN: Updated, then approved, then updated again
	// THEN: The first update bumps the version; the second is refused

	ctx := context.Background()
	repo := memory.New()
	lc := &scheme.Lifecycle{Schemes: repo}
	s := draft("s1", time.April)
	s.Version = 1
	require.NoError(t, repo.SaveScheme(ctx, s))

	s.Name = "Renamed"
	updated, err := lc.Update(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, 2, updated.Version)

	_, err = lc.Approve(ctx, "s1")
	require.NoError(t, err)

	_, err = lc.Update(ctx, s)
	assert.True(t, errors.Is(err, scheme.ErrSchemeNotDraft))
	assert.True(t, errors.Is(lc.Delete(ctx, "s1"), scheme.ErrSchemeNotDraft))
}

// approveOnRead approves a scheme right after handing out its draft copy,
// as a concurrent approval would.
type approveOnRead struct {
	*memory.Store
}

func (a approveOnRead) GetScheme(ctx context.Context, id scheme.SchemeID) (*scheme.Scheme, error) {
	s, err := a.Store.GetScheme(ctx, id)
	if err != nil {
		return nil, err
	}
	err = a.Store.ApplyStatusChanges(ctx, []scheme.StatusChange{{SchemeID: id, From: scheme.StatusDraft, To: scheme.StatusApproved}})
	return s, err
}

func TestUpdate_ApprovalBetweenReadAndWrite(t *testing.T) {
	// GIVEN: A draft that gets approved right after Update reads it
	// WHEN: The update is written
	// THEN: It is refused and the scheme stays approved

	ctx := context.Background()
	repo := memory.New()
	s := draft("s1", time.April)
	s.Version = 1
	require.NoError(t, repo.SaveScheme(ctx, s))

	s.Name = "Renamed"
	_, err := (&scheme.Lifecycle{Schemes: approveOnRead{repo}}).Update(ctx, s)
	assert.True(t, errors.Is(err, scheme.ErrSchemeNotDraft), "got %v", err)

	stored, err := repo.GetScheme(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, scheme.StatusApproved, stored.Status)
	assert.Empty(t, stored.Name)
}

func TestDelete_Draft(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	require.NoError(t, repo.SaveScheme(ctx, draft("s1", time.April)))

	require.NoError(t, (&scheme.Lifecycle{Schemes: repo}).Delete(ctx, "s1"))
	_, err := repo.GetScheme(ctx, "s1")
	assert.True(t, errors.Is(err, scheme.ErrSchemeNotFound))
}

func TestValidateWeights(t *testing.T) {
	s := scheme.Scheme{Items: []scheme.Item{
		scheme.Principal{ItemBase: scheme.ItemBase{Key: "a", Weight: scheme.Ratio(0.6), Active: true}},
		scheme.Principal{ItemBase: scheme.ItemBase{Key: "b", Weight: scheme.Ratio(0.3), Active: true}},
		scheme.Additional{ItemBase: scheme.ItemBase{Key: "c", Weight: scheme.Ratio(0.5), Active: true}},
	}}

	r := scheme.ValidateWeights(s)
	assert.Equal(t, "0.9", r.Sum.String())
	assert.False(t, r.Valid)
}

func TestPeriod(t *testing.T) {
	p, err := scheme.ParsePeriod("2024-02")
	require.NoError(t, err)
	assert.Equal(t, 29, p.Days())
	assert.Equal(t, "2024-01", p.Previous().String())
	assert.Equal(t, "2024-03", p.Next().String())

	_, err = scheme.NewPeriod(2025, 13)
	assert.True(t, errors.Is(err, scheme.ErrInvalidPeriod))
}
