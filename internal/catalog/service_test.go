package catalog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/library-backend/internal/inventory"
	"github.com/angelmondragon/library-backend/internal/loans"
	"github.com/angelmondragon/library-backend/pkg/db"
	"github.com/angelmondragon/library-backend/pkg/db/dbtest"
	"github.com/angelmondragon/library-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/library-backend/pkg/errors"
)

type memoryCache struct {
	values map[string]string
	ttls   map[string]time.Duration
	getErr error
}

func newMemoryCache() *memoryCache {
	return &memoryCache{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memoryCache) Get(_ context.Context, key string) (string, error) {
	if m.getErr != nil {
		return "", m.getErr
	}
	v, ok := m.values[key]
	if !ok {
		return "", goredis.Nil
	}
	return v, nil
}

func (m *memoryCache) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	m.values[key] = value.(string)
	m.ttls[key] = ttl
	return nil
}

func (m *memoryCache) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(m.values, key)
	}
	return nil
}

func (m *memoryCache) CacheKey(parts ...string) string {
	key := "lib:cache"
	for _, part := range parts {
		key += ":" + part
	}
	return key
}

type catalogFixture struct {
	client *db.Client
	svc    Service
	cache  *memoryCache
	loans  loans.Service
}

type noPending struct{}

func (noPending) HasPendingReservation(context.Context, *gorm.DB, uuid.UUID) (bool, error) {
	return false, nil
}

type noHolds struct{}

func (noHolds) ClaimHold(context.Context, *gorm.DB, uuid.UUID, uuid.UUID, time.Time) (*models.BookCopy, error) {
	return nil, nil
}

func newCatalogFixture(t *testing.T) *catalogFixture {
	t.Helper()
	f := &catalogFixture{client: dbtest.OpenClient(t), cache: newMemoryCache()}
	cache := NewAvailabilityCache(f.cache, 15*time.Second, nil, nil)
	svc, err := NewService(ServiceParams{
		DB:       f.client,
		DueDates: loans.DueDates{},
		Cache:    cache,
	})
	require.NoError(t, err)
	f.svc = svc

	lending, err := loans.NewService(loans.ServiceParams{
		DB:           f.client,
		Policy:       loans.DefaultPolicy(),
		Reservations: noPending{},
		Holds:        noHolds{},
		Availability: cache,
	})
	require.NoError(t, err)
	f.loans = lending
	return f
}

func (f *catalogFixture) createTitle(t *testing.T, quantity int) *TitleDTO {
	t.Helper()
	ctx := context.Background()
	author, err := f.svc.CreateAuthor(ctx, "Italo Calvino")
	require.NoError(t, err)
	title, copies, err := f.svc.CreateTitle(ctx, CreateTitleInput{
		Title:    "Invisible Cities",
		AuthorID: author.ID,
		Quantity: quantity,
	})
	require.NoError(t, err)
	require.Len(t, copies, quantity)
	return title
}

func TestCreateTitleValidatesInput(t *testing.T) {
	f := newCatalogFixture(t)
	ctx := context.Background()

	_, _, err := f.svc.CreateTitle(ctx, CreateTitleInput{Title: "Orphan", AuthorID: uuid.New(), Quantity: 1})
	require.ErrorIs(t, err, ErrAuthorNotFound)

	author, err := f.svc.CreateAuthor(ctx, "  Jorge Luis Borges ")
	require.NoError(t, err)
	require.Equal(t, "Jorge Luis Borges", author.Name)

	_, _, err = f.svc.CreateTitle(ctx, CreateTitleInput{Title: "Ficciones", AuthorID: author.ID, Quantity: 0})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = f.svc.CreateAuthor(ctx, " ")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestCreateTitleShelvesCopies(t *testing.T) {
	f := newCatalogFixture(t)
	title := f.createTitle(t, 3)
	require.Equal(t, inventory.StatusCounts{Total: 3, Available: 3}, title.Copies)

	got, err := f.svc.GetTitle(context.Background(), title.ID)
	require.NoError(t, err)
	require.Equal(t, "Invisible Cities", got.Title)
	require.Equal(t, int64(3), got.Copies.Available)

	added, err := f.svc.AddCopies(context.Background(), title.ID, 2)
	require.NoError(t, err)
	require.Len(t, added, 2)

	copies, err := f.svc.ListCopies(context.Background(), title.ID)
	require.NoError(t, err)
	require.Len(t, copies, 5)

	_, err = f.svc.AddCopies(context.Background(), uuid.New(), 1)
	require.ErrorIs(t, err, inventory.ErrTitleNotFound)
}

func ptr[T any](v T) *T { return &v }

func TestGetAndUpdateAuthor(t *testing.T) {
	f := newCatalogFixture(t)
	ctx := context.Background()

	_, err := f.svc.GetAuthor(ctx, uuid.New())
	require.ErrorIs(t, err, ErrAuthorNotFound)

	author, err := f.svc.CreateAuthor(ctx, "Ursula Le Guin")
	require.NoError(t, err)

	got, err := f.svc.GetAuthor(ctx, author.ID)
	require.NoError(t, err)
	require.Equal(t, "Ursula Le Guin", got.Name)

	updated, err := f.svc.UpdateAuthor(ctx, author.ID, UpdateAuthorInput{Name: ptr("  Ursula K. Le Guin ")})
	require.NoError(t, err)
	require.Equal(t, "Ursula K. Le Guin", updated.Name)

	unchanged, err := f.svc.UpdateAuthor(ctx, author.ID, UpdateAuthorInput{})
	require.NoError(t, err)
	require.Equal(t, "Ursula K. Le Guin", unchanged.Name)

	_, err = f.svc.UpdateAuthor(ctx, author.ID, UpdateAuthorInput{Name: ptr("   ")})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = f.svc.UpdateAuthor(ctx, uuid.New(), UpdateAuthorInput{Name: ptr("Nobody")})
	require.ErrorIs(t, err, ErrAuthorNotFound)

	got, err = f.svc.GetAuthor(ctx, author.ID)
	require.NoError(t, err)
	require.Equal(t, "Ursula K. Le Guin", got.Name)
}

func TestUpdateTitleAppliesPartialChanges(t *testing.T) {
	f := newCatalogFixture(t)
	ctx := context.Background()
	title := f.createTitle(t, 2)

	updated, err := f.svc.UpdateTitle(ctx, title.ID, UpdateTitleInput{
		Title: ptr(" Le città invisibili "),
		Pages: ptr(165),
	})
	require.NoError(t, err)
	require.Equal(t, "Le città invisibili", updated.Title)
	require.Equal(t, title.AuthorID, updated.AuthorID)
	require.NotNil(t, updated.Pages)
	require.Equal(t, 165, *updated.Pages)
	require.Nil(t, updated.PublishedYear)
	require.Equal(t, inventory.StatusCounts{Total: 2, Available: 2}, updated.Copies)

	other, err := f.svc.CreateAuthor(ctx, "William Weaver")
	require.NoError(t, err)
	moved, err := f.svc.UpdateTitle(ctx, title.ID, UpdateTitleInput{
		AuthorID:      &other.ID,
		PublishedYear: ptr(1972),
	})
	require.NoError(t, err)
	require.Equal(t, other.ID, moved.AuthorID)
	require.Equal(t, "Le città invisibili", moved.Title)
	require.Equal(t, 1972, *moved.PublishedYear)
	require.Equal(t, 165, *moved.Pages)

	got, err := f.svc.GetTitle(ctx, title.ID)
	require.NoError(t, err)
	require.Equal(t, moved.AuthorID, got.AuthorID)
	require.Equal(t, moved.Title, got.Title)
}

func TestUpdateTitleRejectsInvalidChanges(t *testing.T) {
	f := newCatalogFixture(t)
	ctx := context.Background()
	title := f.createTitle(t, 1)

	_, err := f.svc.UpdateTitle(ctx, uuid.New(), UpdateTitleInput{Title: ptr("Ghost")})
	require.ErrorIs(t, err, inventory.ErrTitleNotFound)

	missing := uuid.New()
	_, err = f.svc.UpdateTitle(ctx, title.ID, UpdateTitleInput{AuthorID: &missing})
	require.ErrorIs(t, err, ErrAuthorNotFound)

	cases := map[string]UpdateTitleInput{
		"blank title":   {Title: ptr("  ")},
		"nil author":    {AuthorID: &uuid.Nil},
		"negative year": {PublishedYear: ptr(-1)},
		"zero pages":    {Pages: ptr(0)},
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.UpdateTitle(ctx, title.ID, input)
			require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "got %v", err)
		})
	}

	got, err := f.svc.GetTitle(ctx, title.ID)
	require.NoError(t, err)
	require.Equal(t, "Invisible Cities", got.Title)
	require.Equal(t, title.AuthorID, got.AuthorID)
}

func TestDeleteAuthorBlockedByTitles(t *testing.T) {
	f := newCatalogFixture(t)
	ctx := context.Background()
	title := f.createTitle(t, 1)

	err := f.svc.DeleteAuthor(ctx, title.AuthorID)
	require.ErrorIs(t, err, ErrAuthorHasTitles)

	require.NoError(t, f.svc.DeleteTitle(ctx, title.ID))
	require.NoError(t, f.svc.DeleteAuthor(ctx, title.AuthorID))

	err = f.svc.DeleteAuthor(ctx, title.AuthorID)
	require.ErrorIs(t, err, ErrAuthorNotFound)
}

func TestDeleteTitleRules(t *testing.T) {
	f := newCatalogFixture(t)
	ctx := context.Background()
	title := f.createTitle(t, 2)

	loan, err := f.loans.CreateLoan(ctx, uuid.New(), title.ID)
	require.NoError(t, err)

	err = f.svc.DeleteTitle(ctx, title.ID)
	require.ErrorIs(t, err, ErrTitleHasLoanedCopies)

	_, err = f.loans.ReturnLoan(ctx, loan.ID)
	require.NoError(t, err)

	err = f.svc.DeleteTitle(ctx, title.ID)
	require.ErrorIs(t, err, ErrTitleHasLoanHistory)

	fresh := f.createTitle(t, 1)
	require.NoError(t, f.svc.DeleteTitle(ctx, fresh.ID))
	_, err = f.svc.GetTitle(ctx, fresh.ID)
	require.ErrorIs(t, err, inventory.ErrTitleNotFound)
}

func TestCheckAvailability(t *testing.T) {
	f := newCatalogFixture(t)
	ctx := context.Background()
	title := f.createTitle(t, 2)

	availability, err := f.svc.CheckAvailability(ctx, title.ID)
	require.NoError(t, err)
	require.True(t, availability.Available)
	require.Empty(t, availability.Reason)
	require.Nil(t, availability.ExpectedDueDate)

	first, err := f.loans.CreateLoan(ctx, uuid.New(), title.ID)
	require.NoError(t, err)
	_, err = f.loans.CreateLoan(ctx, uuid.New(), title.ID)
	require.NoError(t, err)

	availability, err = f.svc.CheckAvailability(ctx, title.ID)
	require.NoError(t, err)
	require.False(t, availability.Available)
	require.Equal(t, reasonAllLoaned, availability.Reason)
	require.Equal(t, int64(2), availability.LoanedCopies)
	require.NotNil(t, availability.ExpectedDueDate)
	require.True(t, availability.ExpectedDueDate.Equal(first.DueDate))

	_, err = f.loans.ReturnLoan(ctx, first.ID)
	require.NoError(t, err)

	copies, err := f.svc.ListCopies(ctx, title.ID)
	require.NoError(t, err)
	for i := range copies {
		if copies[i].ID == first.BookCopyID {
			require.NoError(t, inventory.NewLedger(f.client.DB()).MarkOnHold(ctx, &copies[i], uuid.New(), time.Now().Add(time.Hour)))
		}
	}
	f.cache.values = map[string]string{}

	availability, err = f.svc.CheckAvailability(ctx, title.ID)
	require.NoError(t, err)
	require.False(t, availability.Available)
	require.Equal(t, reasonOnHold, availability.Reason)

	_, err = f.svc.CheckAvailability(ctx, uuid.New())
	require.ErrorIs(t, err, inventory.ErrTitleNotFound)
}

func TestAvailabilityCacheLifecycle(t *testing.T) {
	f := newCatalogFixture(t)
	ctx := context.Background()
	title := f.createTitle(t, 1)
	key := "lib:cache:availability:" + title.ID.String()

	_, err := f.svc.CheckAvailability(ctx, title.ID)
	require.NoError(t, err)
	require.Contains(t, f.cache.values, key)
	require.Equal(t, 15*time.Second, f.cache.ttls[key])

	f.cache.values[key] = `{"book_title_id":"` + title.ID.String() + `","available":false,"total_copies":9}`
	cached, err := f.svc.CheckAvailability(ctx, title.ID)
	require.NoError(t, err)
	require.Equal(t, int64(9), cached.TotalCopies)

	_, err = f.loans.CreateLoan(ctx, uuid.New(), title.ID)
	require.NoError(t, err)
	require.NotContains(t, f.cache.values, key)

	f.cache.getErr = errors.New("connection refused")
	fresh, err := f.svc.CheckAvailability(ctx, title.ID)
	require.NoError(t, err)
	require.Equal(t, int64(1), fresh.LoanedCopies)
}

func TestNilAvailabilityCacheIsNoop(t *testing.T) {
	cache := NewAvailabilityCache(nil, time.Second, nil, nil)
	require.Nil(t, cache)

	_, ok := cache.Get(context.Background(), uuid.New())
	require.False(t, ok)
	cache.Put(context.Background(), &Availability{})
	cache.Invalidate(context.Background(), uuid.New())
}
