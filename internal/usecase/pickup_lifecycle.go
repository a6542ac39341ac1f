package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"sustainflow-service/internal/domain/entity"
	"sustainflow-service/internal/domain/repository"
	"sustainflow-service/pkg/logger"
	"sustainflow-service/pkg/metrics"

	"github.com/juju/clock"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	nonTerminalStatuses = []entity.PickupStatus{
		entity.PickupPending,
		entity.PickupDatesProposed,
		entity.PickupScheduled,
		entity.PickupQRRequested,
		entity.PickupQRAccepted,
	}
	qrGenerateStatuses = []entity.PickupStatus{
		entity.PickupScheduled,
		entity.PickupQRAccepted,
	}
	completableStatuses = []entity.PickupStatus{
		entity.PickupScheduled,
		entity.PickupQRRequested,
		entity.PickupQRAccepted,
	}
)

// CreatePickupInput is what a donor submits to open a pickup
type CreatePickupInput struct {
	ReceiverID   string      `json:"receiverId"`
	ReceiverRole entity.Role `json:"receiverRole"`
	WasteType    string      `json:"wasteType"`
	ItemType     string      `json:"itemType"`
	QuantityKg   float64     `json:"quantityKg"`
	Address      string      `json:"address"`
	Description  string      `json:"description"`
}

// DateProposal is one candidate pickup date offered by the receiver
type DateProposal struct {
	Date     time.Time `json:"date"`
	TimeSlot string    `json:"timeSlot"`
}

// CompleteInput carries the scan result submitted by the receiver
type CompleteInput struct {
	Code        string `json:"code"`
	BonusPoints int    `json:"bonusPoints"`
	Notes       string `json:"notes"`
}

// PickupLifecycle is the only component allowed to change pickup status
type PickupLifecycle struct {
	pickups       repository.PickupRepository
	tokens        repository.QRTokenRepository
	points        repository.PointsRepository
	notifier      NotificationDispatcher
	limiter       repository.LimiterStore
	clock         clock.Clock
	notifyTimeout time.Duration
	metrics       *metrics.Metrics
	logger        logger.Logger

	background sync.WaitGroup
}

// NewPickupLifecycle creates the lifecycle controller. points, notifier and limiter may be nil.
func NewPickupLifecycle(
	pickups repository.PickupRepository,
	tokens repository.QRTokenRepository,
	points repository.PointsRepository,
	notifier NotificationDispatcher,
	limiter repository.LimiterStore,
	clk clock.Clock,
	notifyTimeout time.Duration,
	metrics *metrics.Metrics,
	logger logger.Logger,
) *PickupLifecycle {
	if notifyTimeout <= 0 {
		notifyTimeout = 30 * time.Second
	}
	return &PickupLifecycle{
		pickups:       pickups,
		tokens:        tokens,
		points:        points,
		notifier:      notifier,
		limiter:       limiter,
		clock:         clk,
		notifyTimeout: notifyTimeout,
		metrics:       metrics,
		logger:        logger,
	}
}

// Wait blocks until background notifications and point credits have finished
func (l *PickupLifecycle) Wait() {
	l.background.Wait()
}

// CreatePickup opens a pending pickup on behalf of a donor
func (l *PickupLifecycle) CreatePickup(ctx context.Context, actor entity.Actor, in CreatePickupInput) (_ *entity.Pickup, err error) {
	defer l.observe("create", time.Now(), &err)

	if actor.Role != entity.RoleDonor || actor.ID == "" {
		return nil, fmt.Errorf("only donors can create pickups: %w", entity.ErrNotAuthorized)
	}
	if err := validateCreate(actor, in); err != nil {
		return nil, err
	}

	now := l.now()
	pickup := &entity.Pickup{
		DonorID:      actor.ID,
		ReceiverID:   in.ReceiverID,
		ReceiverRole: in.ReceiverRole,
		WasteType:    strings.TrimSpace(in.WasteType),
		ItemType:     strings.TrimSpace(in.ItemType),
		QuantityKg:   in.QuantityKg,
		Address:      in.Address,
		Description:  in.Description,
		Status:       entity.PickupPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := l.pickups.Create(ctx, pickup); err != nil {
		return nil, fmt.Errorf("failed to create pickup: %w", err)
	}

	l.logger.Info("Pickup created",
		"pickupID", pickup.ID,
		"donorID", pickup.DonorID,
		"receiverID", pickup.ReceiverID)

	l.notify(entity.EventPickupCreated, pickup, pickup.ReceiverID, nil)
	return pickup, nil
}

func validateCreate(actor entity.Actor, in CreatePickupInput) error {
	switch {
	case in.ReceiverID == "":
		return fmt.Errorf("receiverId is required: %w", entity.ErrValidation)
	case in.ReceiverID == actor.ID:
		return fmt.Errorf("donor cannot be the receiver: %w", entity.ErrValidation)
	case !in.ReceiverRole.IsReceiver():
		return fmt.Errorf("receiverRole must be ngo or compostAgency: %w", entity.ErrValidation)
	case strings.TrimSpace(in.WasteType) == "":
		return fmt.Errorf("wasteType is required: %w", entity.ErrValidation)
	case in.QuantityKg <= 0:
		return fmt.Errorf("quantityKg must be positive: %w", entity.ErrValidation)
	}
	return nil
}

// ProposeDates lets the receiver offer candidate dates for a pending pickup
func (l *PickupLifecycle) ProposeDates(ctx context.Context, actor entity.Actor, pickupID string, dates []DateProposal) (_ *entity.Pickup, err error) {
	defer l.observe("propose_dates", time.Now(), &err)

	pickup, err := l.load(ctx, actor, pickupID, entity.CapReceiver)
	if err != nil {
		return nil, err
	}
	if err := requireStatus(pickup, entity.PickupPending); err != nil {
		return nil, err
	}
	if len(dates) == 0 {
		return nil, fmt.Errorf("at least one date is required: %w", entity.ErrValidation)
	}

	proposed := make([]entity.PickupDate, 0, len(dates))
	for i, d := range dates {
		if d.Date.IsZero() || strings.TrimSpace(d.TimeSlot) == "" {
			return nil, fmt.Errorf("date %d needs a date and a time slot: %w", i, entity.ErrValidation)
		}
		proposed = append(proposed, entity.PickupDate{
			ID:       primitive.NewObjectID().Hex(),
			Date:     d.Date.UTC(),
			TimeSlot: strings.TrimSpace(d.TimeSlot),
		})
	}

	updated, err := l.pickups.Transition(ctx, pickupID, []entity.PickupStatus{entity.PickupPending}, entity.PickupPatch{
		Status:        entity.PickupDatesProposed,
		ProposedDates: proposed,
		UpdatedAt:     l.now(),
	})
	if err != nil {
		return nil, err
	}

	l.notify(entity.EventDatesProposed, updated, updated.DonorID, map[string]interface{}{
		"dateCount": len(proposed),
	})
	return updated, nil
}

// ConfirmDate lets the donor pick one of the proposed dates
func (l *PickupLifecycle) ConfirmDate(ctx context.Context, actor entity.Actor, pickupID, dateID string) (_ *entity.Pickup, err error) {
	defer l.observe("confirm_date", time.Now(), &err)

	pickup, err := l.load(ctx, actor, pickupID, entity.CapDonor)
	if err != nil {
		return nil, err
	}
	if err := requireStatus(pickup, entity.PickupDatesProposed); err != nil {
		return nil, err
	}

	date, ok := pickup.FindProposedDate(dateID)
	if !ok {
		return nil, fmt.Errorf("proposed date %s: %w", dateID, entity.ErrNotFound)
	}

	updated, err := l.pickups.Transition(ctx, pickupID, []entity.PickupStatus{entity.PickupDatesProposed}, entity.PickupPatch{
		Status:        entity.PickupScheduled,
		ConfirmedDate: &date,
		UpdatedAt:     l.now(),
	})
	if err != nil {
		return nil, err
	}

	l.notify(entity.EventDateConfirmed, updated, updated.ReceiverID, map[string]interface{}{
		"date":     date.Date.Format("2006-01-02"),
		"timeSlot": date.TimeSlot,
	})
	return updated, nil
}

// RequestQR starts the optional QR handshake; the caller becomes the requester
func (l *PickupLifecycle) RequestQR(ctx context.Context, actor entity.Actor, pickupID string) (_ *entity.Pickup, err error) {
	defer l.observe("request_qr", time.Now(), &err)

	pickup, err := l.load(ctx, actor, pickupID, entity.CapEitherParty)
	if err != nil {
		return nil, err
	}
	if err := requireStatus(pickup, entity.PickupScheduled); err != nil {
		return nil, err
	}

	updated, err := l.pickups.Transition(ctx, pickupID, []entity.PickupStatus{entity.PickupScheduled}, entity.PickupPatch{
		Status:        entity.PickupQRRequested,
		QRRequestedBy: actor.ID,
		UpdatedAt:     l.now(),
	})
	if err != nil {
		return nil, err
	}

	l.notify(entity.EventQRRequested, updated, updated.Counterpart(actor.ID), nil)
	return updated, nil
}

// AcceptQR accepts a pending QR request, or skips the request step from scheduled
func (l *PickupLifecycle) AcceptQR(ctx context.Context, actor entity.Actor, pickupID string) (_ *entity.Pickup, err error) {
	defer l.observe("accept_qr", time.Now(), &err)

	pickup, err := l.load(ctx, actor, pickupID, entity.CapEitherParty)
	if err != nil {
		return nil, err
	}

	switch pickup.Status {
	case entity.PickupQRRequested:
		if pickup.QRRequestedBy == actor.ID {
			return nil, fmt.Errorf("the requester cannot accept their own request: %w", entity.ErrNotAuthorized)
		}
	case entity.PickupScheduled:
	default:
		return nil, invalidState(pickup, "accept qr")
	}

	updated, err := l.pickups.Transition(ctx, pickupID, []entity.PickupStatus{pickup.Status}, entity.PickupPatch{
		Status:    entity.PickupQRAccepted,
		UpdatedAt: l.now(),
	})
	if err != nil {
		return nil, err
	}

	l.notify(entity.EventQRAccepted, updated, updated.Counterpart(actor.ID), nil)
	return updated, nil
}

// GenerateQR issues a fresh short-lived code for the donor to show at pickup
func (l *PickupLifecycle) GenerateQR(ctx context.Context, actor entity.Actor, pickupID string) (_ *entity.QRPayload, err error) {
	defer l.observe("generate_qr", time.Now(), &err)

	pickup, err := l.load(ctx, actor, pickupID, entity.CapDonor)
	if err != nil {
		return nil, err
	}
	if err := requireStatus(pickup, qrGenerateStatuses...); err != nil {
		return nil, err
	}
	if err := l.allow(ctx, "generate:"+actor.ID); err != nil {
		return nil, err
	}

	token, err := l.tokens.Issue(ctx, pickupID)
	if err != nil {
		return nil, fmt.Errorf("failed to issue qr token: %w", err)
	}
	l.metrics.QRTokensIssued.Inc()

	// A cancel that ran between the status check and Issue has already
	// expired the previous token, so the new one is expired here.
	current, err := l.pickups.FindByID(ctx, pickupID)
	if err != nil {
		return nil, err
	}
	if current.Status.Terminal() {
		if _, err := l.tokens.ExpireActive(ctx, pickupID); err != nil {
			l.logger.Error("Failed to expire token of closed pickup",
				"pickupID", pickupID,
				"tokenID", token.ID,
				"error", err)
		}
		return nil, invalidState(current, "qr token revoked")
	}

	l.logger.Info("QR token issued",
		"pickupID", pickupID,
		"tokenID", token.ID,
		"expiresAt", token.ExpiresAt)

	payload := token.Payload()
	return &payload, nil
}

// CompletePickup verifies the scanned code and completes the pickup
func (l *PickupLifecycle) CompletePickup(ctx context.Context, actor entity.Actor, pickupID string, in CompleteInput) (_ *entity.Pickup, err error) {
	defer l.observe("complete", time.Now(), &err)

	pickup, err := l.load(ctx, actor, pickupID, entity.CapReceiver)
	if err != nil {
		return nil, err
	}
	if in.BonusPoints < 0 {
		return nil, fmt.Errorf("bonusPoints cannot be negative: %w", entity.ErrValidation)
	}
	if err := l.allow(ctx, "scan:"+actor.ID); err != nil {
		return nil, err
	}

	code := strings.TrimSpace(in.Code)
	if code == "" {
		l.metrics.QRScanFailures.WithLabelValues(entity.ErrorCode(entity.ErrInvalidToken)).Inc()
		return nil, entity.ErrInvalidToken
	}

	// The code is checked before the pickup status so a rescan of a used
	// code reports TokenAlreadyUsed rather than the completed status.
	token, err := l.tokens.Validate(ctx, code)
	if err == nil && token.PickupID != pickupID {
		err = fmt.Errorf("code belongs to another pickup: %w", entity.ErrInvalidToken)
	}
	if err != nil {
		l.metrics.QRScanFailures.WithLabelValues(entity.ErrorCode(err)).Inc()
		return nil, err
	}
	if err := requireStatus(pickup, completableStatuses...); err != nil {
		return nil, err
	}

	if _, err := l.tokens.MarkUsed(ctx, token.ID, actor.ID); err != nil {
		if errors.Is(err, entity.ErrInvalidTransition) {
			l.metrics.QRScanFailures.WithLabelValues(entity.ErrorCode(entity.ErrTokenAlreadyUsed)).Inc()
			return nil, fmt.Errorf("%v: %w", err, entity.ErrTokenAlreadyUsed)
		}
		return nil, err
	}

	now := l.now()
	updated, err := l.pickups.Transition(ctx, pickupID, completableStatuses, entity.PickupPatch{
		Status: entity.PickupCompleted,
		Completion: &entity.Completion{
			CompletedAt: now,
			CompletedBy: actor.ID,
			Notes:       strings.TrimSpace(in.Notes),
			BonusPoints: in.BonusPoints,
		},
		UpdatedAt: now,
	})
	if err != nil {
		l.logger.Error("QR token consumed but pickup not completed",
			"pickupID", pickupID,
			"tokenID", token.ID,
			"error", err)
		return nil, err
	}

	l.logger.Info("Pickup completed",
		"pickupID", pickupID,
		"completedBy", actor.ID,
		"bonusPoints", in.BonusPoints)

	l.creditPoints(updated)
	l.notify(entity.EventPickupCompleted, updated, updated.DonorID, map[string]interface{}{
		"bonusPoints": in.BonusPoints,
	})
	return updated, nil
}

// CancelPickup cancels a pickup from any non-terminal state
func (l *PickupLifecycle) CancelPickup(ctx context.Context, actor entity.Actor, pickupID string) (_ *entity.Pickup, err error) {
	defer l.observe("cancel", time.Now(), &err)

	pickup, err := l.load(ctx, actor, pickupID, entity.CapEitherParty)
	if err != nil {
		return nil, err
	}
	if err := requireStatus(pickup, nonTerminalStatuses...); err != nil {
		return nil, err
	}

	now := l.now()
	updated, err := l.pickups.Transition(ctx, pickupID, nonTerminalStatuses, entity.PickupPatch{
		Status: entity.PickupCancelled,
		Cancellation: &entity.Cancellation{
			CancelledAt: now,
			CancelledBy: actor.ID,
		},
		UpdatedAt: now,
	})
	if err != nil {
		return nil, err
	}

	if _, err := l.tokens.ExpireActive(ctx, pickupID); err != nil {
		l.logger.Error("Failed to expire qr tokens of cancelled pickup",
			"pickupID", pickupID,
			"error", err)
	}

	l.notify(entity.EventPickupCancelled, updated, updated.Counterpart(actor.ID), nil)
	return updated, nil
}

// GetPickup returns a pickup visible to the actor
func (l *PickupLifecycle) GetPickup(ctx context.Context, actor entity.Actor, pickupID string) (*entity.Pickup, error) {
	return l.load(ctx, actor, pickupID, entity.CapPartyOrAdmin)
}

// ListPickups returns the pickups the actor takes part in, or all of them for admins
func (l *PickupLifecycle) ListPickups(ctx context.Context, actor entity.Actor, status entity.PickupStatus, limit int) ([]*entity.Pickup, error) {
	if status != "" && !status.Valid() {
		return nil, fmt.Errorf("unknown status %q: %w", status, entity.ErrValidation)
	}

	filter := entity.PickupFilter{Status: status, Limit: limit}
	switch {
	case actor.Role == entity.RoleAdmin:
	case actor.Role == entity.RoleDonor:
		filter.DonorID = actor.ID
	case actor.Role.IsReceiver():
		filter.ReceiverID = actor.ID
	default:
		return nil, entity.ErrNotAuthorized
	}

	return l.pickups.List(ctx, filter)
}

// DeletePickup removes a completed pickup and its QR tokens
func (l *PickupLifecycle) DeletePickup(ctx context.Context, actor entity.Actor, pickupID string) (err error) {
	defer l.observe("delete", time.Now(), &err)

	if !entity.CapAdmin.Allows(actor, nil) {
		return entity.ErrNotAuthorized
	}

	if err := l.pickups.DeleteCompleted(ctx, pickupID); err != nil {
		return err
	}

	removed, err := l.tokens.DeleteByPickup(ctx, pickupID)
	if err != nil {
		l.logger.Error("Failed to delete qr tokens of deleted pickup",
			"pickupID", pickupID,
			"error", err)
	}

	l.logger.Info("Pickup deleted",
		"pickupID", pickupID,
		"adminID", actor.ID,
		"tokensRemoved", removed)
	return nil
}

// Analytics summarises pickups for admins
func (l *PickupLifecycle) Analytics(ctx context.Context, actor entity.Actor) (*entity.PickupAnalytics, error) {
	if !entity.CapAdmin.Allows(actor, nil) {
		return nil, entity.ErrNotAuthorized
	}
	return l.pickups.Analytics(ctx)
}

func (l *PickupLifecycle) load(ctx context.Context, actor entity.Actor, pickupID string, capability entity.Capability) (*entity.Pickup, error) {
	pickup, err := l.pickups.FindByID(ctx, pickupID)
	if err != nil {
		return nil, err
	}
	if !capability.Allows(actor, pickup) {
		return nil, fmt.Errorf("%s required for pickup %s: %w", capability, pickupID, entity.ErrNotAuthorized)
	}
	return pickup, nil
}

func requireStatus(pickup *entity.Pickup, allowed ...entity.PickupStatus) error {
	for _, s := range allowed {
		if pickup.Status == s {
			return nil
		}
	}
	return invalidState(pickup, fmt.Sprintf("requires %v", allowed))
}

func invalidState(pickup *entity.Pickup, what string) error {
	return fmt.Errorf("pickup %s is %s, %s: %w", pickup.ID, pickup.Status, what, entity.ErrInvalidState)
}

func (l *PickupLifecycle) allow(ctx context.Context, key string) error {
	if l.limiter == nil {
		return nil
	}
	ok, err := l.limiter.Allow(ctx, key, 1)
	if err != nil {
		// fail open: the limiter backend is not part of the lifecycle
		l.logger.Warn("Rate limiter unavailable", "key", key, "error", err)
		return nil
	}
	if !ok {
		return fmt.Errorf("too many attempts for %s: %w", key, entity.ErrRateLimited)
	}
	return nil
}

func (l *PickupLifecycle) now() time.Time {
	return l.clock.Now().UTC()
}

// notify runs the dispatcher off the request path
func (l *PickupLifecycle) notify(event entity.EventType, pickup *entity.Pickup, recipientID string, extra map[string]interface{}) {
	if l.notifier == nil || recipientID == "" {
		return
	}

	payload := map[string]interface{}{
		"status":     string(pickup.Status),
		"wasteType":  pickup.WasteType,
		"itemType":   pickup.ItemType,
		"quantityKg": pickup.QuantityKg,
	}
	for k, v := range extra {
		payload[k] = v
	}

	l.background.Add(1)
	go func() {
		defer l.background.Done()

		ctx, cancel := context.WithTimeout(context.Background(), l.notifyTimeout)
		defer cancel()

		if err := l.notifier.Notify(ctx, event, pickup.ID, recipientID, payload); err != nil {
			l.logger.Error("Notification failed",
				"event", event,
				"pickupID", pickup.ID,
				"recipientID", recipientID,
				"error", err)
		}
	}()
}

func (l *PickupLifecycle) creditPoints(pickup *entity.Pickup) {
	if l.points == nil || pickup.Completion == nil || pickup.Completion.BonusPoints <= 0 {
		return
	}

	points := pickup.Completion.BonusPoints
	l.background.Add(1)
	go func() {
		defer l.background.Done()

		ctx, cancel := context.WithTimeout(context.Background(), l.notifyTimeout)
		defer cancel()

		if err := l.points.Credit(ctx, pickup.DonorID, points, entity.PointsReasonPickupBonus, pickup.ID); err != nil {
			l.logger.Error("Failed to credit bonus points",
				"pickupID", pickup.ID,
				"donorID", pickup.DonorID,
				"points", points,
				"error", err)
			return
		}
		l.metrics.PointsCredited.Add(float64(points))
	}()
}

func (l *PickupLifecycle) observe(operation string, start time.Time, err *error) {
	l.metrics.OperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	result := "ok"
	if *err != nil {
		result = entity.ErrorCode(*err)
	}
	l.metrics.Transitions.WithLabelValues(operation, result).Inc()
}
