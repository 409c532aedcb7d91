package reservations

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/library-backend/internal/inventory"
	"github.com/angelmondragon/library-backend/internal/loans"
	"github.com/angelmondragon/library-backend/pkg/db"
	"github.com/angelmondragon/library-backend/pkg/db/dbtest"
	"github.com/angelmondragon/library-backend/pkg/db/models"
	"github.com/angelmondragon/library-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/library-backend/pkg/errors"
)

var baseTime = time.Date(2026, 4, 6, 8, 30, 0, 0, time.UTC)

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type countingInvalidator struct {
	calls map[uuid.UUID]int
}

func (c *countingInvalidator) Invalidate(_ context.Context, titleID uuid.UUID) {
	c.calls[titleID]++
}

type harness struct {
	client      *db.Client
	clock       *testClock
	queue       Service
	loans       loans.Service
	invalidator *countingInvalidator
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		client:      dbtest.OpenClient(t),
		clock:       &testClock{now: baseTime},
		invalidator: &countingInvalidator{calls: map[uuid.UUID]int{}},
	}
	queue, err := NewService(ServiceParams{
		DB:           h.client,
		DueDates:     loans.DueDates{},
		HoldDuration: 24 * time.Hour,
		Availability: h.invalidator,
		Now:          h.clock.Now,
	})
	require.NoError(t, err)
	h.queue = queue

	lending, err := loans.NewService(loans.ServiceParams{
		DB:           h.client,
		Policy:       loans.DefaultPolicy(),
		Reservations: HoldGateway{},
		Holds:        HoldGateway{},
		Now:          h.clock.Now,
	})
	require.NoError(t, err)
	h.loans = lending
	return h
}

func (h *harness) seedTitle(t *testing.T, copies int) (models.BookTitle, []models.BookCopy) {
	t.Helper()
	conn := h.client.DB()
	author := models.Author{Name: "Stanisław Lem"}
	require.NoError(t, conn.Create(&author).Error)
	title := models.BookTitle{Title: "Solaris", AuthorID: author.ID}
	require.NoError(t, conn.Create(&title).Error)
	var created []models.BookCopy
	if copies > 0 {
		var err error
		created, err = inventory.NewLedger(conn).WithClock(h.clock.Now).AddCopies(context.Background(), title.ID, copies)
		require.NoError(t, err)
	}
	return title, created
}

func (h *harness) copyByID(t *testing.T, id uuid.UUID) *models.BookCopy {
	t.Helper()
	bc, err := inventory.NewLedger(h.client.DB()).FindByID(context.Background(), id)
	require.NoError(t, err)
	return bc
}

func (h *harness) reservation(t *testing.T, id uuid.UUID) *ReservationDTO {
	t.Helper()
	dto, err := h.queue.GetReservation(context.Background(), id)
	require.NoError(t, err)
	return dto
}

// lendAll lends every copy to a distinct borrower so others can queue.
func (h *harness) lendAll(t *testing.T, titleID uuid.UUID, copies int) []uuid.UUID {
	t.Helper()
	ids := make([]uuid.UUID, 0, copies)
	for i := 0; i < copies; i++ {
		loan, err := h.loans.CreateLoan(context.Background(), uuid.New(), titleID)
		require.NoError(t, err)
		ids = append(ids, loan.ID)
	}
	return ids
}

func TestHoldLifecycleFromReservationToLoan(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	title, copies := h.seedTitle(t, 1)
	user1, user2 := uuid.New(), uuid.New()

	first, err := h.loans.CreateLoan(ctx, user1, title.ID)
	require.NoError(t, err)
	require.Equal(t, enums.CopyStatusLoaned, h.copyByID(t, copies[0].ID).Status)

	_, err = h.loans.CreateLoan(ctx, user2, title.ID)
	require.ErrorIs(t, err, loans.ErrNoCopyAvailable)

	created, err := h.queue.CreateReservation(ctx, user2, title.ID)
	require.NoError(t, err)
	require.Equal(t, enums.ReservationStatusActive, created.Reservation.Status)
	require.Equal(t, 1, created.QueuePosition)
	require.NotNil(t, created.ExpectedAvailableAt)
	require.True(t, created.ExpectedAvailableAt.Equal(first.DueDate))
	require.Equal(t, "Reservation created. Queue position: 1", created.Message)

	h.clock.Advance(2 * 24 * time.Hour)
	_, err = h.loans.ReturnLoan(ctx, first.ID)
	require.NoError(t, err)
	require.Equal(t, enums.CopyStatusAvailable, h.copyByID(t, copies[0].ID).Status)

	processed, err := h.queue.ProcessHolds(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, processed.Err())
	require.Len(t, processed.Holds, 1)
	hold := processed.Holds[0]
	require.Equal(t, created.Reservation.ID, hold.ReservationID)
	require.Equal(t, copies[0].ID, hold.BookCopyID)
	require.True(t, hold.HoldExpiresAt.Equal(h.clock.Now().Add(24*time.Hour)))

	held := h.copyByID(t, copies[0].ID)
	require.Equal(t, enums.CopyStatusOnHold, held.Status)
	require.NotNil(t, held.HoldReservationID)
	require.Equal(t, created.Reservation.ID, *held.HoldReservationID)
	require.Equal(t, enums.ReservationStatusOnHold, h.reservation(t, created.Reservation.ID).Status)

	// Another reader cannot take the held copy.
	_, err = h.loans.CreateLoan(ctx, uuid.New(), title.ID)
	require.ErrorIs(t, err, loans.ErrNoCopyAvailable)

	loan, err := h.loans.CreateLoan(ctx, user2, title.ID)
	require.NoError(t, err)
	require.Equal(t, copies[0].ID, loan.BookCopyID)
	require.Equal(t, enums.ReservationStatusFulfilled, h.reservation(t, created.Reservation.ID).Status)

	lent := h.copyByID(t, copies[0].ID)
	require.Equal(t, enums.CopyStatusLoaned, lent.Status)
	require.Nil(t, lent.HoldReservationID)
	require.Nil(t, lent.HoldExpiresAt)
}

func TestCreateReservationPreconditions(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown title", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.queue.CreateReservation(ctx, uuid.New(), uuid.New())
		require.ErrorIs(t, err, inventory.ErrTitleNotFound)
	})

	t.Run("copy available", func(t *testing.T) {
		h := newHarness(t)
		title, _ := h.seedTitle(t, 1)
		_, err := h.queue.CreateReservation(ctx, uuid.New(), title.ID)
		require.ErrorIs(t, err, ErrCopyAvailable)
		require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
	})

	t.Run("no copies", func(t *testing.T) {
		h := newHarness(t)
		title, _ := h.seedTitle(t, 0)
		_, err := h.queue.CreateReservation(ctx, uuid.New(), title.ID)
		require.ErrorIs(t, err, ErrNoCopiesRegistered)
	})

	t.Run("nothing to wait for", func(t *testing.T) {
		h := newHarness(t)
		title, copies := h.seedTitle(t, 1)
		bc := copies[0]
		require.NoError(t, inventory.NewLedger(h.client.DB()).MarkOnHold(ctx, &bc, uuid.New(), baseTime.Add(time.Hour)))

		_, err := h.queue.CreateReservation(ctx, uuid.New(), title.ID)
		require.ErrorIs(t, err, ErrNothingToWaitFor)
	})

	t.Run("duplicate", func(t *testing.T) {
		h := newHarness(t)
		title, _ := h.seedTitle(t, 1)
		h.lendAll(t, title.ID, 1)
		userID := uuid.New()

		_, err := h.queue.CreateReservation(ctx, userID, title.ID)
		require.NoError(t, err)
		_, err = h.queue.CreateReservation(ctx, userID, title.ID)
		require.ErrorIs(t, err, ErrDuplicateReservation)
	})
}

func TestQueueIsServedInCreationOrder(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	title, _ := h.seedTitle(t, 1)
	loanIDs := h.lendAll(t, title.ID, 1)

	r1, err := h.queue.CreateReservation(ctx, uuid.New(), title.ID)
	require.NoError(t, err)
	h.clock.Advance(time.Minute)
	r2, err := h.queue.CreateReservation(ctx, uuid.New(), title.ID)
	require.NoError(t, err)
	require.Equal(t, 2, r2.QueuePosition)

	position, err := h.queue.QueuePosition(ctx, r2.Reservation.ID)
	require.NoError(t, err)
	require.Equal(t, 2, position)

	_, err = h.loans.ReturnLoan(ctx, loanIDs[0])
	require.NoError(t, err)

	hold, err := h.queue.ProcessSingleTitleHold(ctx, title.ID)
	require.NoError(t, err)
	require.NotNil(t, hold)
	require.Equal(t, r1.Reservation.ID, hold.ReservationID)

	position, err = h.queue.QueuePosition(ctx, r2.Reservation.ID)
	require.NoError(t, err)
	require.Equal(t, 1, position)

	position, err = h.queue.QueuePosition(ctx, r1.Reservation.ID)
	require.NoError(t, err)
	require.Equal(t, 0, position)

	again, err := h.queue.ProcessSingleTitleHold(ctx, title.ID)
	require.NoError(t, err)
	require.Nil(t, again)
}

func TestProcessHoldsReportsOutcomePerTitle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	waiting, _ := h.seedTitle(t, 1)
	loanIDs := h.lendAll(t, waiting.ID, 1)
	_, err := h.queue.CreateReservation(ctx, uuid.New(), waiting.ID)
	require.NoError(t, err)

	stillOut, _ := h.seedTitle(t, 1)
	h.lendAll(t, stillOut.ID, 1)
	_, err = h.queue.CreateReservation(ctx, uuid.New(), stillOut.ID)
	require.NoError(t, err)

	_, err = h.loans.ReturnLoan(ctx, loanIDs[0])
	require.NoError(t, err)

	result, err := h.queue.ProcessHolds(ctx, nil)
	require.NoError(t, err)
	require.Len(t, result.Holds, 1)
	require.Equal(t, waiting.ID, result.Holds[0].BookTitleID)
	require.Equal(t, 0, result.Failed())

	outcomes := map[uuid.UUID]Outcome{}
	for _, outcome := range result.Outcomes {
		outcomes[outcome.TitleID] = outcome.Outcome
	}
	require.Equal(t, OutcomeHoldCreated, outcomes[waiting.ID])
	require.Equal(t, OutcomeNoCopy, outcomes[stillOut.ID])

	single, err := h.queue.ProcessHolds(ctx, &stillOut.ID)
	require.NoError(t, err)
	require.Empty(t, single.Holds)
	require.Len(t, single.Outcomes, 1)
}

func TestExpireHoldsPromotesNextReservation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	title, copies := h.seedTitle(t, 1)
	loanIDs := h.lendAll(t, title.ID, 1)

	r1, err := h.queue.CreateReservation(ctx, uuid.New(), title.ID)
	require.NoError(t, err)
	h.clock.Advance(time.Minute)
	r2, err := h.queue.CreateReservation(ctx, uuid.New(), title.ID)
	require.NoError(t, err)

	_, err = h.loans.ReturnLoan(ctx, loanIDs[0])
	require.NoError(t, err)
	hold, err := h.queue.ProcessSingleTitleHold(ctx, title.ID)
	require.NoError(t, err)
	require.Equal(t, r1.Reservation.ID, hold.ReservationID)

	h.clock.Advance(25 * time.Hour)
	result, err := h.queue.ExpireHolds(ctx)
	require.NoError(t, err)
	require.NoError(t, result.Err())
	require.Equal(t, 1, result.ExpiredCount)
	require.Equal(t, 1, result.NextHoldsProcessed)
	require.Equal(t, []uuid.UUID{title.ID}, result.AffectedTitleIDs)
	require.Equal(t, "Expired: 1, new holds: 1", result.Message)

	require.Equal(t, enums.ReservationStatusExpired, h.reservation(t, r1.Reservation.ID).Status)
	require.Equal(t, enums.ReservationStatusOnHold, h.reservation(t, r2.Reservation.ID).Status)

	held := h.copyByID(t, copies[0].ID)
	require.Equal(t, enums.CopyStatusOnHold, held.Status)
	require.Equal(t, r2.Reservation.ID, *held.HoldReservationID)

	nothing, err := h.queue.ExpireHolds(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, nothing.ExpiredCount)
	require.Empty(t, nothing.AffectedTitleIDs)
}

func TestExpiredHoldCannotBeClaimed(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	title, _ := h.seedTitle(t, 1)
	loanIDs := h.lendAll(t, title.ID, 1)
	userID := uuid.New()

	_, err := h.queue.CreateReservation(ctx, userID, title.ID)
	require.NoError(t, err)
	_, err = h.loans.ReturnLoan(ctx, loanIDs[0])
	require.NoError(t, err)
	_, err = h.queue.ProcessSingleTitleHold(ctx, title.ID)
	require.NoError(t, err)

	h.clock.Advance(24 * time.Hour)
	_, err = h.loans.CreateLoan(ctx, userID, title.ID)
	require.ErrorIs(t, err, loans.ErrNoCopyAvailable)
}

func TestCancelReservation(t *testing.T) {
	ctx := context.Background()

	t.Run("owner cancels active", func(t *testing.T) {
		h := newHarness(t)
		title, _ := h.seedTitle(t, 1)
		h.lendAll(t, title.ID, 1)
		userID := uuid.New()
		created, err := h.queue.CreateReservation(ctx, userID, title.ID)
		require.NoError(t, err)

		result, err := h.queue.CancelReservation(ctx, userID, created.Reservation.ID, false)
		require.NoError(t, err)
		require.Equal(t, enums.ReservationStatusCancelled, result.Reservation.Status)

		_, err = h.queue.CancelReservation(ctx, userID, created.Reservation.ID, false)
		require.ErrorIs(t, err, ErrNotCancellable)

		_, err = h.queue.CreateReservation(ctx, userID, title.ID)
		require.NoError(t, err)
	})

	t.Run("stranger is forbidden", func(t *testing.T) {
		h := newHarness(t)
		title, _ := h.seedTitle(t, 1)
		h.lendAll(t, title.ID, 1)
		created, err := h.queue.CreateReservation(ctx, uuid.New(), title.ID)
		require.NoError(t, err)

		_, err = h.queue.CancelReservation(ctx, uuid.New(), created.Reservation.ID, false)
		require.ErrorIs(t, err, ErrForbidden)
	})

	t.Run("admin releases held copy", func(t *testing.T) {
		h := newHarness(t)
		title, copies := h.seedTitle(t, 1)
		loanIDs := h.lendAll(t, title.ID, 1)
		created, err := h.queue.CreateReservation(ctx, uuid.New(), title.ID)
		require.NoError(t, err)
		_, err = h.loans.ReturnLoan(ctx, loanIDs[0])
		require.NoError(t, err)
		_, err = h.queue.ProcessSingleTitleHold(ctx, title.ID)
		require.NoError(t, err)

		_, err = h.queue.CancelReservation(ctx, uuid.New(), created.Reservation.ID, true)
		require.NoError(t, err)

		bc := h.copyByID(t, copies[0].ID)
		require.Equal(t, enums.CopyStatusAvailable, bc.Status)
		require.Nil(t, bc.HoldReservationID)
		require.Equal(t, 1, h.invalidator.calls[title.ID])
	})

	t.Run("missing", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.queue.CancelReservation(ctx, uuid.New(), uuid.New(), true)
		require.ErrorIs(t, err, ErrReservationNotFound)
	})
}

func TestPendingReservationBlocksRenewal(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	title, _ := h.seedTitle(t, 1)
	borrower := uuid.New()
	loan, err := h.loans.CreateLoan(ctx, borrower, title.ID)
	require.NoError(t, err)

	pending, err := HoldGateway{}.HasPendingReservation(ctx, h.client.DB(), title.ID)
	require.NoError(t, err)
	require.False(t, pending)

	_, err = h.queue.CreateReservation(ctx, uuid.New(), title.ID)
	require.NoError(t, err)

	_, err = h.loans.RenewLoan(ctx, loan.ID, borrower)
	require.ErrorIs(t, err, loans.ErrReservationPending)
}

func TestListUserReservations(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	userID := uuid.New()

	for i := 0; i < 2; i++ {
		title, _ := h.seedTitle(t, 1)
		h.lendAll(t, title.ID, 1)
		_, err := h.queue.CreateReservation(ctx, userID, title.ID)
		require.NoError(t, err)
		h.clock.Advance(time.Minute)
	}

	list, err := h.queue.ListUserReservations(ctx, userID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	for _, item := range list {
		require.NotNil(t, item.QueuePosition)
		require.Equal(t, 1, *item.QueuePosition)
	}
	require.True(t, list[0].CreatedAt.After(list[1].CreatedAt))
}

// blockReservationUpdates makes every UPDATE of a reservation for titleID
// fail until the returned func is called.
func (h *harness) blockReservationUpdates(t *testing.T, titleID uuid.UUID) func() {
	t.Helper()
	name := "block_" + strings.ReplaceAll(titleID.String(), "-", "")
	create := fmt.Sprintf(
		"CREATE TRIGGER %s BEFORE UPDATE ON reservations WHEN OLD.book_title_id = '%s' "+
			"BEGIN SELECT RAISE(ABORT, 'reservation updates blocked'); END",
		name, titleID.String(),
	)
	require.NoError(t, h.client.DB().Exec(create).Error)
	return func() {
		require.NoError(t, h.client.DB().Exec("DROP TRIGGER IF EXISTS "+name).Error)
	}
}

// queueBehindReturnedCopy leaves a title with one AVAILABLE copy and one
// ACTIVE reservation waiting for it.
func (h *harness) queueBehindReturnedCopy(t *testing.T) (models.BookTitle, models.BookCopy, uuid.UUID) {
	t.Helper()
	ctx := context.Background()
	title, copies := h.seedTitle(t, 1)
	loanIDs := h.lendAll(t, title.ID, 1)
	created, err := h.queue.CreateReservation(ctx, uuid.New(), title.ID)
	require.NoError(t, err)
	_, err = h.loans.ReturnLoan(ctx, loanIDs[0])
	require.NoError(t, err)
	return title, copies[0], created.Reservation.ID
}

func outcomesByTitle(outcomes []TitleOutcome) map[uuid.UUID]TitleOutcome {
	byTitle := make(map[uuid.UUID]TitleOutcome, len(outcomes))
	for _, o := range outcomes {
		byTitle[o.TitleID] = o
	}
	return byTitle
}

func TestProcessHoldsIsolatesFailingTitle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	broken, brokenCopy, brokenReservation := h.queueBehindReturnedCopy(t)
	healthy, healthyCopy, healthyReservation := h.queueBehindReturnedCopy(t)
	unblock := h.blockReservationUpdates(t, broken.ID)

	result, err := h.queue.ProcessHolds(ctx, nil)
	require.NoError(t, err)
	require.Equal(t, 1, result.Failed())
	require.Error(t, result.Err())
	require.Len(t, result.Holds, 1)
	require.Equal(t, healthyReservation, result.Holds[0].ReservationID)

	byTitle := outcomesByTitle(result.Outcomes)
	require.Equal(t, OutcomeFailed, byTitle[broken.ID].Outcome)
	require.True(t, pkgerrors.IsCode(byTitle[broken.ID].err, pkgerrors.CodeDependency))
	require.Equal(t, OutcomeHoldCreated, byTitle[healthy.ID].Outcome)

	rolledBack := h.copyByID(t, brokenCopy.ID)
	require.Equal(t, enums.CopyStatusAvailable, rolledBack.Status)
	require.Nil(t, rolledBack.HoldReservationID)
	require.Nil(t, rolledBack.HoldExpiresAt)
	require.Equal(t, enums.ReservationStatusActive, h.reservation(t, brokenReservation).Status)
	require.Equal(t, enums.CopyStatusOnHold, h.copyByID(t, healthyCopy.ID).Status)

	unblock()
	retry, err := h.queue.ProcessHolds(ctx, &broken.ID)
	require.NoError(t, err)
	require.Zero(t, retry.Failed())
	require.Equal(t, OutcomeHoldCreated, retry.Outcomes[0].Outcome)
	require.Equal(t, enums.CopyStatusOnHold, h.copyByID(t, brokenCopy.ID).Status)
}

func TestExpireHoldsIsolatesFailingReservation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	broken, brokenCopy, brokenReservation := h.queueBehindReturnedCopy(t)
	healthy, healthyCopy, healthyReservation := h.queueBehindReturnedCopy(t)

	placed, err := h.queue.ProcessHolds(ctx, nil)
	require.NoError(t, err)
	require.Len(t, placed.Holds, 2)

	h.clock.Advance(25 * time.Hour)
	h.blockReservationUpdates(t, broken.ID)

	result, err := h.queue.ExpireHolds(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, result.Failed())
	require.Equal(t, 1, result.ExpiredCount)
	require.Equal(t, []uuid.UUID{healthy.ID}, result.AffectedTitleIDs)
	require.Zero(t, result.NextHoldsProcessed)

	var failed, expired int
	for _, o := range result.Outcomes {
		switch {
		case o.Outcome == OutcomeFailed:
			failed++
			require.Equal(t, broken.ID, o.TitleID)
			require.NotNil(t, o.ReservationID)
			require.Equal(t, brokenReservation, *o.ReservationID)
		case o.Outcome == OutcomeExpired:
			expired++
			require.Equal(t, healthyReservation, *o.ReservationID)
		case o.TitleID == healthy.ID:
			require.Equal(t, OutcomeQueueEmpty, o.Outcome)
		}
	}
	require.Equal(t, 1, failed)
	require.Equal(t, 1, expired)

	stillHeld := h.copyByID(t, brokenCopy.ID)
	require.Equal(t, enums.CopyStatusOnHold, stillHeld.Status)
	require.NotNil(t, stillHeld.HoldReservationID)
	require.Equal(t, brokenReservation, *stillHeld.HoldReservationID)
	require.Equal(t, enums.ReservationStatusOnHold, h.reservation(t, brokenReservation).Status)

	require.Equal(t, enums.CopyStatusAvailable, h.copyByID(t, healthyCopy.ID).Status)
	require.Equal(t, enums.ReservationStatusExpired, h.reservation(t, healthyReservation).Status)
}
