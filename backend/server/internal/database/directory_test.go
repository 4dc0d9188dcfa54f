package database_test

import (
	"context"
	"testing"
	"time"

	"github.com/govdir/govdir/backend/server/internal/database/dbtest"
	"github.com/govdir/govdir/shared"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

func seedDirectory(t *testing.T, ctx context.Context, upsert func(context.Context, []*shared.Agency, []*shared.Contact) error) {
	agencies := []*shared.Agency{
		{Id: "a-austin", Name: "Austin", State: "Texas", StateCode: "TX", Type: shared.AgencyTypeCity, County: "Travis", Population: 961855},
		{Id: "a-travis", Name: "Travis County", State: "Texas", StateCode: "TX", Type: shared.AgencyTypeCounty, County: "Travis", Population: 1290188},
		{Id: "a-boise", Name: "Boise", State: "Idaho", StateCode: "ID", Type: shared.AgencyTypeCity, County: "Ada", Population: 235684},
	}
	contacts := []*shared.Contact{
		{Id: "c-1", AgencyId: "a-austin", Name: "Alice Alvarez", Email: "alice@austintexas.gov", Phone: "512-555-0101", Role: "City Clerk", Department: "Clerk"},
		{Id: "c-2", AgencyId: "a-austin", Name: "Bob Brown", Email: "bob@austintexas.gov", Phone: "512-555-0102", Role: "Planner", Department: "Planning"},
		{Id: "c-3", AgencyId: "a-boise", Name: "Carol Chen", Email: "carol@cityofboise.org", Phone: "208-555-0103", Role: "Budget Analyst", Department: "Finance"},
	}
	require.NoError(t, upsert(ctx, agencies, contacts))
}

func TestListAgencies(t *testing.T) {
	db := dbtest.Open(t)
	ctx := context.Background()
	seedDirectory(t, ctx, db.UpsertDirectory)

	agencies, total, err := db.ListAgencies(ctx, shared.AgencyFilter{})
	require.NoError(t, err)
	require.EqualValues(t, 3, total)
	require.Equal(t, []string{"Austin", "Boise", "Travis County"}, lo.Map(agencies, func(a *shared.Agency, _ int) string { return a.Name }))

	agencies, total, err = db.ListAgencies(ctx, shared.AgencyFilter{State: "Texas"})
	require.NoError(t, err)
	require.EqualValues(t, 2, total)
	require.Len(t, agencies, 2)

	agencies, total, err = db.ListAgencies(ctx, shared.AgencyFilter{State: "Texas", Type: shared.AgencyTypeCounty})
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
	require.Equal(t, "a-travis", agencies[0].Id)

	// Search is case insensitive and also matches the county
	agencies, total, err = db.ListAgencies(ctx, shared.AgencyFilter{Search: "TRAVIS"})
	require.NoError(t, err)
	require.EqualValues(t, 2, total)
	require.Len(t, agencies, 2)

	// Paging keeps the total
	agencies, total, err = db.ListAgencies(ctx, shared.AgencyFilter{Page: shared.Page{Number: 2, Limit: 2}})
	require.NoError(t, err)
	require.EqualValues(t, 3, total)
	require.Len(t, agencies, 1)
	require.Equal(t, "Travis County", agencies[0].Name)

	agency, err := db.AgencyByID(ctx, "a-boise")
	require.NoError(t, err)
	require.Equal(t, "Idaho", agency.State)
	agency, err = db.AgencyByID(ctx, "missing")
	require.NoError(t, err)
	require.Nil(t, agency)

	n, err := db.CountAgencies(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 3, n)
	n, err = db.CountContacts(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 3, n)
}

func TestSearchMatchesWildcardsLiterally(t *testing.T) {
	db := dbtest.Open(t)
	ctx := context.Background()
	seedDirectory(t, ctx, db.UpsertDirectory)
	require.NoError(t, db.UpsertDirectory(ctx, []*shared.Agency{
		{Id: "a-odd", Name: `Fort_Worth 100% \ Co`, State: "Texas", StateCode: "TX", Type: shared.AgencyTypeCity, County: "Tarrant"},
	}, []*shared.Contact{
		{Id: "c-odd", AgencyId: "a-odd", Name: "Dee Dunn", Role: "IT_Admin", Department: "100% Remote"},
	}))

	// "a_s" would match "Austin" if _ were a wildcard
	_, total, err := db.ListAgencies(ctx, shared.AgencyFilter{Search: "a_s"})
	require.NoError(t, err)
	require.EqualValues(t, 0, total)

	for _, search := range []string{"t_w", "100%", `% \`} {
		agencies, total, err := db.ListAgencies(ctx, shared.AgencyFilter{Search: search})
		require.NoError(t, err)
		require.EqualValues(t, 1, total, search)
		require.Equal(t, "a-odd", agencies[0].Id)
	}
	_, total, err = db.ListAgencies(ctx, shared.AgencyFilter{Search: "%"})
	require.NoError(t, err)
	require.EqualValues(t, 1, total)

	views, total, err := db.ContactsForUser(ctx, "user-1", shared.ContactFilter{Search: "t_a"})
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
	require.Equal(t, "c-odd", views[0].Id)
	_, total, err = db.ContactsForUser(ctx, "user-1", shared.ContactFilter{Search: "%"})
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
	_, total, err = db.ContactsForUser(ctx, "user-1", shared.ContactFilter{Search: "_"})
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
}

func TestUpsertDirectoryIsIdempotent(t *testing.T) {
	db := dbtest.Open(t)
	ctx := context.Background()
	seedDirectory(t, ctx, db.UpsertDirectory)
	seedDirectory(t, ctx, db.UpsertDirectory)

	// Updated rows replace the existing ones
	require.NoError(t, db.UpsertDirectory(ctx, []*shared.Agency{
		{Id: "a-boise", Name: "City of Boise", State: "Idaho", StateCode: "ID", Type: shared.AgencyTypeCity},
	}, nil))

	n, err := db.CountAgencies(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 3, n)
	agency, err := db.AgencyByID(ctx, "a-boise")
	require.NoError(t, err)
	require.Equal(t, "City of Boise", agency.Name)
}

func TestContactsForUserMasksLockedContacts(t *testing.T) {
	db := dbtest.Open(t)
	ctx := context.Background()
	seedDirectory(t, ctx, db.UpsertDirectory)

	_, err := db.UnlockContact(ctx, shared.DefaultQuotaPolicy(), "user-1", "c-2", day1)
	require.NoError(t, err)

	views, total, err := db.ContactsForUser(ctx, "user-1", shared.ContactFilter{AgencyId: "a-austin"})
	require.NoError(t, err)
	require.EqualValues(t, 2, total)
	require.Len(t, views, 2)

	alice, bob := views[0], views[1]
	require.Equal(t, "Alice Alvarez", alice.Name)
	require.False(t, alice.Unlocked)
	require.Empty(t, alice.Email)
	require.Empty(t, alice.Phone)
	require.Nil(t, alice.UnlockedAt)
	require.Equal(t, "City Clerk", alice.Role)

	require.Equal(t, "Bob Brown", bob.Name)
	require.True(t, bob.Unlocked)
	require.Equal(t, "bob@austintexas.gov", bob.Email)
	require.Equal(t, "512-555-0102", bob.Phone)
	require.NotNil(t, bob.UnlockedAt)
	require.Equal(t, day1, bob.UnlockedAt.UTC())

	// Another user sees everything locked
	views, _, err = db.ContactsForUser(ctx, "user-2", shared.ContactFilter{AgencyId: "a-austin"})
	require.NoError(t, err)
	for _, v := range views {
		require.False(t, v.Unlocked)
		require.Empty(t, v.Email)
	}

	// Search covers roles and departments
	views, total, err = db.ContactsForUser(ctx, "user-1", shared.ContactFilter{Search: "finance"})
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
	require.Equal(t, "c-3", views[0].Id)
}

func TestProfileUpsert(t *testing.T) {
	db := dbtest.Open(t)
	ctx := context.Background()

	profile, err := db.ProfileForUser(ctx, "user-1")
	require.NoError(t, err)
	require.Nil(t, profile)

	profile, err = db.UpsertProfile(ctx, "user-1", shared.ProfileUpdate{FirstName: "Ada", LastName: "Lovelace"})
	require.NoError(t, err)
	require.Equal(t, "Ada", profile.FirstName)
	createdAt := profile.CreatedAt

	time.Sleep(time.Millisecond)
	profile, err = db.UpsertProfile(ctx, "user-1", shared.ProfileUpdate{FirstName: "Ada", LastName: "King", Bio: "Analyst"})
	require.NoError(t, err)
	require.Equal(t, "King", profile.LastName)
	require.Equal(t, "Analyst", profile.Bio)
	require.True(t, createdAt.Equal(profile.CreatedAt))
}
