package usecase

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"sustainflow-service/internal/domain/entity"

	"github.com/juju/clock"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// memPickupRepo mirrors the compare-and-set semantics of the Mongo repository
type memPickupRepo struct {
	mu      sync.Mutex
	pickups map[string]*entity.Pickup
}

func newMemPickupRepo() *memPickupRepo {
	return &memPickupRepo{pickups: make(map[string]*entity.Pickup)}
}

func clonePickup(p *entity.Pickup) *entity.Pickup {
	c := *p
	c.ProposedDates = append([]entity.PickupDate(nil), p.ProposedDates...)
	if p.ConfirmedDate != nil {
		d := *p.ConfirmedDate
		c.ConfirmedDate = &d
	}
	if p.Completion != nil {
		v := *p.Completion
		c.Completion = &v
	}
	if p.Cancellation != nil {
		v := *p.Cancellation
		c.Cancellation = &v
	}
	return &c
}

func (r *memPickupRepo) Create(_ context.Context, p *entity.Pickup) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p.ID == "" {
		p.ID = primitive.NewObjectID().Hex()
	}
	r.pickups[p.ID] = clonePickup(p)
	return nil
}

func (r *memPickupRepo) FindByID(_ context.Context, id string) (*entity.Pickup, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pickups[id]
	if !ok {
		return nil, fmt.Errorf("pickup %s: %w", id, entity.ErrNotFound)
	}
	return clonePickup(p), nil
}

func (r *memPickupRepo) Transition(_ context.Context, id string, from []entity.PickupStatus, patch entity.PickupPatch) (*entity.Pickup, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pickups[id]
	if !ok {
		return nil, fmt.Errorf("pickup %s: %w", id, entity.ErrNotFound)
	}
	for _, s := range from {
		if p.Status == s {
			patch.Apply(p)
			return clonePickup(p), nil
		}
	}
	return nil, fmt.Errorf("pickup %s changed concurrently: %w", id, entity.ErrInvalidState)
}

func (r *memPickupRepo) List(_ context.Context, f entity.PickupFilter) ([]*entity.Pickup, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.Pickup
	for _, p := range r.pickups {
		if f.DonorID != "" && p.DonorID != f.DonorID {
			continue
		}
		if f.ReceiverID != "" && p.ReceiverID != f.ReceiverID {
			continue
		}
		if f.Status != "" && p.Status != f.Status {
			continue
		}
		out = append(out, clonePickup(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *memPickupRepo) DeleteCompleted(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pickups[id]
	if !ok {
		return fmt.Errorf("pickup %s: %w", id, entity.ErrNotFound)
	}
	if p.Status != entity.PickupCompleted {
		return fmt.Errorf("pickup %s: %w", id, entity.ErrInvalidState)
	}
	delete(r.pickups, id)
	return nil
}

func (r *memPickupRepo) Analytics(_ context.Context) (*entity.PickupAnalytics, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a := &entity.PickupAnalytics{ByStatus: make(map[entity.PickupStatus]int64)}
	for _, s := range entity.AllPickupStatuses {
		a.ByStatus[s] = 0
	}
	for _, p := range r.pickups {
		a.ByStatus[p.Status]++
		a.Total++
		if p.Status == entity.PickupCompleted {
			a.CompletedKg += p.QuantityKg
			a.BonusPointsTotal += int64(p.Completion.BonusPoints)
		}
	}
	return a, nil
}

// memTokenRepo mirrors the Mongo token store including lazy expiry
type memTokenRepo struct {
	mu     sync.Mutex
	clock  clock.Clock
	ttl    time.Duration
	tokens map[string]*entity.QRToken
	seq    int
}

func newMemTokenRepo(clk clock.Clock) *memTokenRepo {
	return &memTokenRepo{
		clock:  clk,
		ttl:    entity.DefaultQRTokenTTL,
		tokens: make(map[string]*entity.QRToken),
	}
}

func (r *memTokenRepo) Issue(_ context.Context, pickupID string) (*entity.QRToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.expireActiveLocked(pickupID)

	r.seq++
	now := r.clock.Now().UTC()
	t := &entity.QRToken{
		ID:          fmt.Sprintf("t%d", r.seq),
		PickupID:    pickupID,
		Code:        primitive.NewObjectID().Hex(),
		GeneratedAt: now,
		ExpiresAt:   now.Add(r.ttl),
		Status:      entity.QRTokenActive,
	}
	r.tokens[t.ID] = t
	c := *t
	return &c, nil
}

func (r *memTokenRepo) Validate(_ context.Context, code string) (*entity.QRToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tokens {
		if t.Code != code {
			continue
		}
		switch t.Status {
		case entity.QRTokenUsed:
			c := *t
			return &c, entity.ErrTokenAlreadyUsed
		case entity.QRTokenExpired:
			c := *t
			return &c, entity.ErrTokenExpired
		}
		if t.ExpiredAt(r.clock.Now()) {
			t.Status = entity.QRTokenExpired
			c := *t
			return &c, entity.ErrTokenExpired
		}
		c := *t
		return &c, nil
	}
	return nil, entity.ErrInvalidToken
}

func (r *memTokenRepo) MarkUsed(_ context.Context, tokenID, scannerID string) (*entity.QRToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tokens[tokenID]
	if !ok || t.Status != entity.QRTokenActive {
		return nil, fmt.Errorf("qr token %s is not active: %w", tokenID, entity.ErrInvalidTransition)
	}
	now := r.clock.Now().UTC()
	t.Status = entity.QRTokenUsed
	t.ScannedAt = &now
	t.ScannedBy = scannerID
	c := *t
	return &c, nil
}

func (r *memTokenRepo) expireActiveLocked(pickupID string) int64 {
	var n int64
	for _, t := range r.tokens {
		if t.PickupID == pickupID && t.Status == entity.QRTokenActive {
			t.Status = entity.QRTokenExpired
			n++
		}
	}
	return n
}

func (r *memTokenRepo) ExpireActive(_ context.Context, pickupID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.expireActiveLocked(pickupID), nil
}

func (r *memTokenRepo) ExpireStale(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, t := range r.tokens {
		if t.Status == entity.QRTokenActive && t.ExpiresAt.Before(now) {
			t.Status = entity.QRTokenExpired
			n++
		}
	}
	return n, nil
}

func (r *memTokenRepo) FindByPickup(_ context.Context, pickupID string) ([]*entity.QRToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.QRToken
	for _, t := range r.tokens {
		if t.PickupID == pickupID {
			c := *t
			out = append(out, &c)
		}
	}
	return out, nil
}

func (r *memTokenRepo) DeleteByPickup(_ context.Context, pickupID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, t := range r.tokens {
		if t.PickupID == pickupID {
			delete(r.tokens, id)
			n++
		}
	}
	return n, nil
}

func (r *memTokenRepo) activeCount(pickupID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, t := range r.tokens {
		if t.PickupID == pickupID && t.Status == entity.QRTokenActive {
			n++
		}
	}
	return n
}

type notifyCall struct {
	Event       entity.EventType
	PickupID    string
	RecipientID string
	Payload     map[string]interface{}
}

type recordingNotifier struct {
	mu    sync.Mutex
	calls []notifyCall
	err   error
}

func (n *recordingNotifier) Notify(_ context.Context, event entity.EventType, pickupID, recipientID string, payload map[string]interface{}) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, notifyCall{event, pickupID, recipientID, payload})
	return n.err
}

func (n *recordingNotifier) events() []notifyCall {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notifyCall(nil), n.calls...)
}

type memPointsRepo struct {
	mu       sync.Mutex
	balances map[string]int
	entries  []*entity.PointLedgerEntry
}

func newMemPointsRepo() *memPointsRepo {
	return &memPointsRepo{balances: make(map[string]int)}
}

func (r *memPointsRepo) Credit(_ context.Context, userID string, points int, reason, referenceID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.balances[userID] += points
	r.entries = append(r.entries, &entity.PointLedgerEntry{UserID: userID, Delta: points, Reason: reason, ReferenceID: referenceID})
	return nil
}

func (r *memPointsRepo) Redeem(_ context.Context, userID string, points int, referenceID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.balances[userID] < points {
		return 0, entity.ErrInsufficientPoints
	}
	r.balances[userID] -= points
	r.entries = append(r.entries, &entity.PointLedgerEntry{UserID: userID, Delta: -points, Reason: entity.PointsReasonRedeem, ReferenceID: referenceID})
	return r.balances[userID], nil
}

func (r *memPointsRepo) Balance(_ context.Context, userID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.balances[userID], nil
}

func (r *memPointsRepo) History(_ context.Context, userID string, _ int) ([]*entity.PointLedgerEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.PointLedgerEntry
	for _, e := range r.entries {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	return out, nil
}
