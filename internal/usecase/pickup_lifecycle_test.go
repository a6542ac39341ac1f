package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"sustainflow-service/internal/domain/entity"
	"sustainflow-service/internal/domain/repository"
	repoimpl "sustainflow-service/internal/interface/repository"
	"sustainflow-service/pkg/logger"
	"sustainflow-service/pkg/metrics"

	"github.com/juju/clock/testclock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	donor    = entity.Actor{ID: "donor-1", Role: entity.RoleDonor}
	receiver = entity.Actor{ID: "ngo-1", Role: entity.RoleNGO}
	stranger = entity.Actor{ID: "ngo-2", Role: entity.RoleNGO}
	admin    = entity.Actor{ID: "admin-1", Role: entity.RoleAdmin}
)

type harness struct {
	lc       *PickupLifecycle
	pickups  *memPickupRepo
	tokens   *memTokenRepo
	points   *memPointsRepo
	notifier *recordingNotifier
	clock    *testclock.Clock
	metrics  *metrics.Metrics
}

func newHarness(t *testing.T, limiter repository.LimiterStore) *harness {
	t.Helper()
	clk := testclock.NewClock(time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC))
	h := &harness{
		pickups:  newMemPickupRepo(),
		tokens:   newMemTokenRepo(clk),
		points:   newMemPointsRepo(),
		notifier: &recordingNotifier{},
		clock:    clk,
		metrics:  metrics.NewMetrics("test", prometheus.NewRegistry()),
	}
	h.lc = NewPickupLifecycle(h.pickups, h.tokens, h.points, h.notifier, limiter, clk, time.Second, h.metrics, logger.NewNopLogger())
	return h
}

func (h *harness) create(t *testing.T) *entity.Pickup {
	t.Helper()
	p, err := h.lc.CreatePickup(context.Background(), donor, CreatePickupInput{
		ReceiverID:   receiver.ID,
		ReceiverRole: entity.RoleNGO,
		WasteType:    "organic",
		ItemType:     "vegetables",
		QuantityKg:   12.5,
	})
	require.NoError(t, err)
	return p
}

// schedule proposes two dates and confirms the second one
func (h *harness) schedule(t *testing.T) *entity.Pickup {
	t.Helper()
	ctx := context.Background()
	p := h.create(t)

	p, err := h.lc.ProposeDates(ctx, receiver, p.ID, []DateProposal{
		{Date: time.Date(2024, 5, 3, 0, 0, 0, 0, time.UTC), TimeSlot: "09:00-11:00"},
		{Date: time.Date(2024, 5, 4, 0, 0, 0, 0, time.UTC), TimeSlot: "14:00-16:00"},
	})
	require.NoError(t, err)
	require.Len(t, p.ProposedDates, 2)

	p, err = h.lc.ConfirmDate(ctx, donor, p.ID, p.ProposedDates[1].ID)
	require.NoError(t, err)
	return p
}

func TestCreatePickup(t *testing.T) {
	h := newHarness(t, nil)
	p := h.create(t)

	assert.NotEmpty(t, p.ID)
	assert.Equal(t, entity.PickupPending, p.Status)
	assert.Equal(t, donor.ID, p.DonorID)

	h.lc.Wait()
	calls := h.notifier.events()
	require.Len(t, calls, 1)
	assert.Equal(t, entity.EventPickupCreated, calls[0].Event)
	assert.Equal(t, receiver.ID, calls[0].RecipientID)
	assert.Equal(t, "organic", calls[0].Payload["wasteType"])
}

func TestCreatePickupValidation(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	_, err := h.lc.CreatePickup(ctx, receiver, CreatePickupInput{ReceiverID: "x", ReceiverRole: entity.RoleNGO, WasteType: "organic", QuantityKg: 1})
	assert.ErrorIs(t, err, entity.ErrNotAuthorized)

	_, err = h.lc.CreatePickup(ctx, donor, CreatePickupInput{ReceiverID: receiver.ID, ReceiverRole: entity.RoleDonor, WasteType: "organic", QuantityKg: 1})
	assert.ErrorIs(t, err, entity.ErrValidation)

	_, err = h.lc.CreatePickup(ctx, donor, CreatePickupInput{ReceiverID: receiver.ID, ReceiverRole: entity.RoleNGO, WasteType: "organic", QuantityKg: 0})
	assert.ErrorIs(t, err, entity.ErrValidation)

	_, err = h.lc.CreatePickup(ctx, donor, CreatePickupInput{ReceiverID: donor.ID, ReceiverRole: entity.RoleNGO, WasteType: "organic", QuantityKg: 1})
	assert.ErrorIs(t, err, entity.ErrValidation)
}

func TestConfirmSecondProposedDate(t *testing.T) {
	h := newHarness(t, nil)
	p := h.schedule(t)

	assert.Equal(t, entity.PickupScheduled, p.Status)
	require.NotNil(t, p.ConfirmedDate)
	assert.Equal(t, "14:00-16:00", p.ConfirmedDate.TimeSlot)
	assert.Equal(t, time.Date(2024, 5, 4, 0, 0, 0, 0, time.UTC), p.ConfirmedDate.Date)
	assert.Empty(t, p.ProposedDates)
}

func TestConfirmDateUnknownID(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	p := h.create(t)

	p, err := h.lc.ProposeDates(ctx, receiver, p.ID, []DateProposal{
		{Date: time.Date(2024, 5, 3, 0, 0, 0, 0, time.UTC), TimeSlot: "morning"},
	})
	require.NoError(t, err)

	_, err = h.lc.ConfirmDate(ctx, donor, p.ID, "nope")
	assert.ErrorIs(t, err, entity.ErrNotFound)

	stored, err := h.pickups.FindByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.PickupDatesProposed, stored.Status)
}

func TestProposeDatesRejectsEmpty(t *testing.T) {
	h := newHarness(t, nil)
	p := h.create(t)

	_, err := h.lc.ProposeDates(context.Background(), receiver, p.ID, nil)
	assert.ErrorIs(t, err, entity.ErrValidation)
}

func TestAuthorization(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	p := h.create(t)

	_, err := h.lc.ProposeDates(ctx, donor, p.ID, []DateProposal{{Date: time.Now(), TimeSlot: "am"}})
	assert.ErrorIs(t, err, entity.ErrNotAuthorized)

	_, err = h.lc.ProposeDates(ctx, stranger, p.ID, []DateProposal{{Date: time.Now(), TimeSlot: "am"}})
	assert.ErrorIs(t, err, entity.ErrNotAuthorized)

	_, err = h.lc.GetPickup(ctx, stranger, p.ID)
	assert.ErrorIs(t, err, entity.ErrNotAuthorized)

	got, err := h.lc.GetPickup(ctx, admin, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)

	_, err = h.lc.CancelPickup(ctx, admin, p.ID)
	assert.ErrorIs(t, err, entity.ErrNotAuthorized)

	_, err = h.lc.GetPickup(ctx, donor, "missing")
	assert.ErrorIs(t, err, entity.ErrNotFound)
}

func TestOperationsOutsideGraphFail(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	p := h.create(t)

	_, err := h.lc.ConfirmDate(ctx, donor, p.ID, "any")
	assert.ErrorIs(t, err, entity.ErrInvalidState)

	_, err = h.lc.RequestQR(ctx, donor, p.ID)
	assert.ErrorIs(t, err, entity.ErrInvalidState)

	_, err = h.lc.AcceptQR(ctx, receiver, p.ID)
	assert.ErrorIs(t, err, entity.ErrInvalidState)

	_, err = h.lc.GenerateQR(ctx, donor, p.ID)
	assert.ErrorIs(t, err, entity.ErrInvalidState)

	_, err = h.lc.CompletePickup(ctx, receiver, p.ID, CompleteInput{Code: "x"})
	assert.ErrorIs(t, err, entity.ErrInvalidToken)

	// a live code does not complete a pickup that was never scheduled
	token, err := h.tokens.Issue(ctx, p.ID)
	require.NoError(t, err)
	_, err = h.lc.CompletePickup(ctx, receiver, p.ID, CompleteInput{Code: token.Code})
	assert.ErrorIs(t, err, entity.ErrInvalidState)
	assert.Equal(t, 1, h.tokens.activeCount(p.ID))

	stored, err := h.pickups.FindByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.PickupPending, stored.Status)

	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.Transitions.WithLabelValues("confirm_date", "InvalidState")))
}

func TestQRHandshake(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	p := h.schedule(t)

	p, err := h.lc.RequestQR(ctx, receiver, p.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.PickupQRRequested, p.Status)
	assert.Equal(t, receiver.ID, p.QRRequestedBy)
	assert.NotNil(t, p.ConfirmedDate)

	_, err = h.lc.AcceptQR(ctx, receiver, p.ID)
	assert.ErrorIs(t, err, entity.ErrNotAuthorized)

	p, err = h.lc.AcceptQR(ctx, donor, p.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.PickupQRAccepted, p.Status)
	assert.Empty(t, p.QRRequestedBy)

	payload, err := h.lc.GenerateQR(ctx, donor, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.ID, payload.PickupID)
	assert.Equal(t, entity.DefaultQRTokenTTL, payload.ExpiresAt.Sub(payload.GeneratedAt))
}

func TestAcceptQRFromScheduled(t *testing.T) {
	h := newHarness(t, nil)
	p := h.schedule(t)

	p, err := h.lc.AcceptQR(context.Background(), receiver, p.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.PickupQRAccepted, p.Status)
}

func TestGenerateQRRequiresDonor(t *testing.T) {
	h := newHarness(t, nil)
	p := h.schedule(t)

	_, err := h.lc.GenerateQR(context.Background(), receiver, p.ID)
	assert.ErrorIs(t, err, entity.ErrNotAuthorized)
}

func TestGenerateQRSupersedesActiveToken(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	p := h.schedule(t)

	first, err := h.lc.GenerateQR(ctx, donor, p.ID)
	require.NoError(t, err)
	second, err := h.lc.GenerateQR(ctx, donor, p.ID)
	require.NoError(t, err)

	assert.NotEqual(t, first.Code, second.Code)
	assert.Equal(t, 1, h.tokens.activeCount(p.ID))

	_, err = h.tokens.Validate(ctx, first.Code)
	assert.ErrorIs(t, err, entity.ErrTokenExpired)

	_, err = h.lc.CompletePickup(ctx, receiver, p.ID, CompleteInput{Code: first.Code})
	assert.ErrorIs(t, err, entity.ErrTokenExpired)
}

// hookedTokenRepo runs beforeIssue ahead of every Issue
type hookedTokenRepo struct {
	*memTokenRepo
	beforeIssue func()
}

func (r *hookedTokenRepo) Issue(ctx context.Context, pickupID string) (*entity.QRToken, error) {
	if r.beforeIssue != nil {
		r.beforeIssue()
	}
	return r.memTokenRepo.Issue(ctx, pickupID)
}

func TestGenerateQRRacingCancelLeavesNoActiveToken(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	p := h.schedule(t)

	tokens := &hookedTokenRepo{memTokenRepo: h.tokens}
	lc := NewPickupLifecycle(h.pickups, tokens, h.points, h.notifier, nil, h.clock, time.Second, h.metrics, logger.NewNopLogger())
	tokens.beforeIssue = func() {
		tokens.beforeIssue = nil
		_, err := lc.CancelPickup(ctx, receiver, p.ID)
		require.NoError(t, err)
	}

	_, err := lc.GenerateQR(ctx, donor, p.ID)
	assert.ErrorIs(t, err, entity.ErrInvalidState)
	assert.Equal(t, 0, h.tokens.activeCount(p.ID))

	stored, err := h.pickups.FindByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.PickupCancelled, stored.Status)
	lc.Wait()
}

func TestCompletePickup(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	p := h.schedule(t)

	qr, err := h.lc.GenerateQR(ctx, donor, p.ID)
	require.NoError(t, err)

	h.clock.Advance(time.Minute)

	done, err := h.lc.CompletePickup(ctx, receiver, p.ID, CompleteInput{Code: qr.Code, BonusPoints: 15, Notes: " all good "})
	require.NoError(t, err)
	assert.Equal(t, entity.PickupCompleted, done.Status)
	require.NotNil(t, done.Completion)
	assert.Equal(t, receiver.ID, done.Completion.CompletedBy)
	assert.Equal(t, "all good", done.Completion.Notes)
	assert.Equal(t, 15, done.Completion.BonusPoints)
	assert.Equal(t, h.clock.Now().UTC(), done.Completion.CompletedAt)
	assert.NotNil(t, done.ConfirmedDate)

	tokens, err := h.tokens.FindByPickup(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, tokens, 1)
	assert.Equal(t, entity.QRTokenUsed, tokens[0].Status)
	assert.Equal(t, receiver.ID, tokens[0].ScannedBy)

	h.lc.Wait()
	balance, err := h.points.Balance(ctx, donor.ID)
	require.NoError(t, err)
	assert.Equal(t, 15, balance)
	assert.Equal(t, 15.0, testutil.ToFloat64(h.metrics.PointsCredited))

	// a used code never changes anything again
	_, err = h.tokens.Validate(ctx, qr.Code)
	assert.ErrorIs(t, err, entity.ErrTokenAlreadyUsed)

	_, err = h.lc.CompletePickup(ctx, receiver, p.ID, CompleteInput{Code: qr.Code})
	assert.ErrorIs(t, err, entity.ErrTokenAlreadyUsed)

	stored, err := h.pickups.FindByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.PickupCompleted, stored.Status)
	assert.Equal(t, done.Completion, stored.Completion)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.QRScanFailures.WithLabelValues("TokenAlreadyUsed")))
}

func TestCompletePickupWithExpiredCode(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	p := h.schedule(t)

	qr, err := h.lc.GenerateQR(ctx, donor, p.ID)
	require.NoError(t, err)

	h.clock.Advance(entity.DefaultQRTokenTTL + time.Second)

	_, err = h.lc.CompletePickup(ctx, receiver, p.ID, CompleteInput{Code: qr.Code})
	assert.ErrorIs(t, err, entity.ErrTokenExpired)

	// repeated validation stays expired
	_, err = h.tokens.Validate(ctx, qr.Code)
	assert.ErrorIs(t, err, entity.ErrTokenExpired)

	stored, err := h.pickups.FindByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.PickupScheduled, stored.Status)
	assert.Equal(t, 0, h.tokens.activeCount(p.ID))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.QRScanFailures.WithLabelValues("TokenExpired")))
}

func TestCompletePickupRejectsForeignCode(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	a := h.schedule(t)
	b := h.schedule(t)

	qr, err := h.lc.GenerateQR(ctx, donor, a.ID)
	require.NoError(t, err)

	_, err = h.lc.CompletePickup(ctx, receiver, b.ID, CompleteInput{Code: qr.Code})
	assert.ErrorIs(t, err, entity.ErrInvalidToken)

	_, err = h.lc.CompletePickup(ctx, receiver, b.ID, CompleteInput{Code: "unknown"})
	assert.ErrorIs(t, err, entity.ErrInvalidToken)

	_, err = h.lc.CompletePickup(ctx, receiver, b.ID, CompleteInput{})
	assert.ErrorIs(t, err, entity.ErrInvalidToken)

	// the code of a stays usable for a
	assert.Equal(t, 1, h.tokens.activeCount(a.ID))
}

func TestCompletePickupConcurrentScans(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	p := h.schedule(t)

	qr, err := h.lc.GenerateQR(ctx, donor, p.ID)
	require.NoError(t, err)

	const scanners = 8
	errs := make([]error, scanners)
	var wg sync.WaitGroup
	for i := 0; i < scanners; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = h.lc.CompletePickup(ctx, receiver, p.ID, CompleteInput{Code: qr.Code, BonusPoints: 5})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t, errors.Is(err, entity.ErrTokenAlreadyUsed) || errors.Is(err, entity.ErrInvalidState), err.Error())
	}
	assert.Equal(t, 1, succeeded)

	h.lc.Wait()
	balance, _ := h.points.Balance(ctx, donor.ID)
	assert.Equal(t, 5, balance)
}

func TestCancelPickup(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	p := h.schedule(t)

	_, err := h.lc.GenerateQR(ctx, donor, p.ID)
	require.NoError(t, err)

	cancelled, err := h.lc.CancelPickup(ctx, receiver, p.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.PickupCancelled, cancelled.Status)
	require.NotNil(t, cancelled.Cancellation)
	assert.Equal(t, receiver.ID, cancelled.Cancellation.CancelledBy)
	assert.Nil(t, cancelled.ConfirmedDate)
	assert.Equal(t, 0, h.tokens.activeCount(p.ID))

	_, err = h.lc.CancelPickup(ctx, donor, p.ID)
	assert.ErrorIs(t, err, entity.ErrInvalidState)

	h.lc.Wait()
	last := h.notifier.events()
	assert.Equal(t, entity.EventPickupCancelled, last[len(last)-1].Event)
	assert.Equal(t, donor.ID, last[len(last)-1].RecipientID)
}

func TestCancelCompletedPickupFails(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	p := h.schedule(t)

	qr, err := h.lc.GenerateQR(ctx, donor, p.ID)
	require.NoError(t, err)
	_, err = h.lc.CompletePickup(ctx, receiver, p.ID, CompleteInput{Code: qr.Code})
	require.NoError(t, err)

	_, err = h.lc.CancelPickup(ctx, donor, p.ID)
	assert.ErrorIs(t, err, entity.ErrInvalidState)

	stored, err := h.pickups.FindByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.PickupCompleted, stored.Status)
	assert.Nil(t, stored.Cancellation)
}

func TestGenerateQRRateLimited(t *testing.T) {
	clk := testclock.NewClock(time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC))
	h := newHarness(t, repoimpl.NewMemoryLimiterStore(clk, 1, 2))
	ctx := context.Background()
	p := h.schedule(t)

	_, err := h.lc.GenerateQR(ctx, donor, p.ID)
	require.NoError(t, err)
	_, err = h.lc.GenerateQR(ctx, donor, p.ID)
	require.NoError(t, err)
	_, err = h.lc.GenerateQR(ctx, donor, p.ID)
	assert.ErrorIs(t, err, entity.ErrRateLimited)

	clk.Advance(time.Minute)
	_, err = h.lc.GenerateQR(ctx, donor, p.ID)
	assert.NoError(t, err)
}

func TestListPickups(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.create(t)
	h.schedule(t)

	mine, err := h.lc.ListPickups(ctx, donor, "", 0)
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	scheduled, err := h.lc.ListPickups(ctx, receiver, entity.PickupScheduled, 0)
	require.NoError(t, err)
	assert.Len(t, scheduled, 1)

	none, err := h.lc.ListPickups(ctx, stranger, "", 0)
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = h.lc.ListPickups(ctx, donor, "bogus", 0)
	assert.ErrorIs(t, err, entity.ErrValidation)
}

func TestDeletePickupAndAnalytics(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	open := h.create(t)
	p := h.schedule(t)

	qr, err := h.lc.GenerateQR(ctx, donor, p.ID)
	require.NoError(t, err)
	_, err = h.lc.CompletePickup(ctx, receiver, p.ID, CompleteInput{Code: qr.Code, BonusPoints: 10})
	require.NoError(t, err)

	stats, err := h.lc.Analytics(ctx, admin)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Total)
	assert.Equal(t, int64(1), stats.ByStatus[entity.PickupCompleted])
	assert.Equal(t, 12.5, stats.CompletedKg)
	assert.Equal(t, int64(10), stats.BonusPointsTotal)

	_, err = h.lc.Analytics(ctx, donor)
	assert.ErrorIs(t, err, entity.ErrNotAuthorized)

	assert.ErrorIs(t, h.lc.DeletePickup(ctx, donor, p.ID), entity.ErrNotAuthorized)
	assert.ErrorIs(t, h.lc.DeletePickup(ctx, admin, open.ID), entity.ErrInvalidState)
	require.NoError(t, h.lc.DeletePickup(ctx, admin, p.ID))

	_, err = h.pickups.FindByID(ctx, p.ID)
	assert.ErrorIs(t, err, entity.ErrNotFound)
	tokens, _ := h.tokens.FindByPickup(ctx, p.ID)
	assert.Empty(t, tokens)
	h.lc.Wait()
}

func TestNotificationFailureDoesNotFailOperation(t *testing.T) {
	h := newHarness(t, nil)
	h.notifier.err = errors.New("smtp down")

	p := h.create(t)
	h.lc.Wait()

	stored, err := h.pickups.FindByID(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.PickupPending, stored.Status)
}
