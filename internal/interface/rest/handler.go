package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"sustainflow-service/internal/domain/entity"
	"sustainflow-service/internal/usecase"
	"sustainflow-service/pkg/logger"

	"github.com/gorilla/mux"
)

// PickupService is the lifecycle surface exposed over HTTP
type PickupService interface {
	CreatePickup(ctx context.Context, actor entity.Actor, in usecase.CreatePickupInput) (*entity.Pickup, error)
	ProposeDates(ctx context.Context, actor entity.Actor, pickupID string, dates []usecase.DateProposal) (*entity.Pickup, error)
	ConfirmDate(ctx context.Context, actor entity.Actor, pickupID, dateID string) (*entity.Pickup, error)
	RequestQR(ctx context.Context, actor entity.Actor, pickupID string) (*entity.Pickup, error)
	AcceptQR(ctx context.Context, actor entity.Actor, pickupID string) (*entity.Pickup, error)
	GenerateQR(ctx context.Context, actor entity.Actor, pickupID string) (*entity.QRPayload, error)
	CompletePickup(ctx context.Context, actor entity.Actor, pickupID string, in usecase.CompleteInput) (*entity.Pickup, error)
	CancelPickup(ctx context.Context, actor entity.Actor, pickupID string) (*entity.Pickup, error)
	GetPickup(ctx context.Context, actor entity.Actor, pickupID string) (*entity.Pickup, error)
	ListPickups(ctx context.Context, actor entity.Actor, status entity.PickupStatus, limit int) ([]*entity.Pickup, error)
	DeletePickup(ctx context.Context, actor entity.Actor, pickupID string) error
	Analytics(ctx context.Context, actor entity.Actor) (*entity.PickupAnalytics, error)
}

// PointsService is the rewards surface exposed over HTTP
type PointsService interface {
	Summary(ctx context.Context, actor entity.Actor, limit int) (*usecase.PointsSummary, error)
	Redeem(ctx context.Context, actor entity.Actor, points int) (int, error)
}

// Handler serves the pickup and points API
type Handler struct {
	pickups PickupService
	points  PointsService
	logger  logger.Logger
}

func NewHandler(pickups PickupService, points PointsService, logger logger.Logger) *Handler {
	return &Handler{
		pickups: pickups,
		points:  points,
		logger:  logger,
	}
}

type proposeDatesRequest struct {
	Dates []usecase.DateProposal `json:"dates"`
}

type confirmDateRequest struct {
	DateID string `json:"dateId"`
}

type redeemRequest struct {
	Points int `json:"points"`
}

type redeemResponse struct {
	Balance int `json:"balance"`
}

// decode reads the JSON body into v, writing a 400 on failure
func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeBadRequest(w, "Invalid request body")
		return false
	}
	return true
}

func (h *Handler) actor(w http.ResponseWriter, r *http.Request) (entity.Actor, bool) {
	actor, ok := ActorFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "Unauthorized")
	}
	return actor, ok
}

func queryInt(r *http.Request, key string) int {
	v, _ := strconv.Atoi(r.URL.Query().Get(key))
	return v
}

// CreatePickup handles POST /pickups
func (h *Handler) CreatePickup(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req usecase.CreatePickupInput
	if !decode(w, r, &req) {
		return
	}

	pickup, err := h.pickups.CreatePickup(r.Context(), actor, req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, pickup)
}

// ListPickups handles GET /pickups
func (h *Handler) ListPickups(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	status := entity.PickupStatus(r.URL.Query().Get("status"))
	pickups, err := h.pickups.ListPickups(r.Context(), actor, status, queryInt(r, "limit"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if pickups == nil {
		pickups = []*entity.Pickup{}
	}
	writeJSON(w, http.StatusOK, pickups)
}

// GetPickup handles GET /pickups/{id}
func (h *Handler) GetPickup(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	pickup, err := h.pickups.GetPickup(r.Context(), actor, mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pickup)
}

// ProposeDates handles POST /pickups/{id}/propose-dates
func (h *Handler) ProposeDates(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req proposeDatesRequest
	if !decode(w, r, &req) {
		return
	}

	pickup, err := h.pickups.ProposeDates(r.Context(), actor, mux.Vars(r)["id"], req.Dates)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pickup)
}

// ConfirmDate handles POST /pickups/{id}/confirm-date
func (h *Handler) ConfirmDate(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req confirmDateRequest
	if !decode(w, r, &req) {
		return
	}
	if req.DateID == "" {
		writeBadRequest(w, "dateId is required")
		return
	}

	pickup, err := h.pickups.ConfirmDate(r.Context(), actor, mux.Vars(r)["id"], req.DateID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pickup)
}

// RequestQR handles POST /pickups/{id}/qr/request
func (h *Handler) RequestQR(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.pickups.RequestQR)
}

// AcceptQR handles POST /pickups/{id}/qr/accept
func (h *Handler) AcceptQR(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.pickups.AcceptQR)
}

// CancelPickup handles POST /pickups/{id}/cancel
func (h *Handler) CancelPickup(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.pickups.CancelPickup)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, op func(context.Context, entity.Actor, string) (*entity.Pickup, error)) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	pickup, err := op(r.Context(), actor, mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pickup)
}

// GenerateQR handles POST /pickups/{id}/qr
func (h *Handler) GenerateQR(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	payload, err := h.pickups.GenerateQR(r.Context(), actor, mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, payload)
}

// CompletePickup handles POST /pickups/{id}/complete
func (h *Handler) CompletePickup(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req usecase.CompleteInput
	if !decode(w, r, &req) {
		return
	}

	pickup, err := h.pickups.CompletePickup(r.Context(), actor, mux.Vars(r)["id"], req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pickup)
}

// DeletePickup handles DELETE /admin/pickups/{id}
func (h *Handler) DeletePickup(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	if err := h.pickups.DeletePickup(r.Context(), actor, mux.Vars(r)["id"]); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Analytics handles GET /admin/analytics
func (h *Handler) Analytics(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	stats, err := h.pickups.Analytics(r.Context(), actor)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// Points handles GET /points
func (h *Handler) Points(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	summary, err := h.points.Summary(r.Context(), actor, queryInt(r, "limit"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// RedeemPoints handles POST /points/redeem
func (h *Handler) RedeemPoints(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req redeemRequest
	if !decode(w, r, &req) {
		return
	}

	balance, err := h.points.Redeem(r.Context(), actor, req.Points)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, redeemResponse{Balance: balance})
}
