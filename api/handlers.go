/*
handlers.go - HTTP API handlers for the loyalty and booking engine

PURPOSE:
  Exposes pricing, bookings, payment settlement, loyalty programs and member
  ledgers via REST API. Handles HTTP request/response and JSON
  serialization, and delegates to the domain services.

ENDPOINTS:
  Pricing:
    POST   /api/quotes                              Guest-facing unit quote

  Bookings:
    POST   /api/bookings                            Create (priced) booking
    GET    /api/bookings/{id}                       Get booking
    POST   /api/bookings/{id}/transitions           Move to a new status
    POST   /api/bookings/{id}/cancel                Cancel
    POST   /api/bookings/{id}/modify                Modify and re-price

  Payments:
    POST   /api/payments/outcomes                   Apply a payment outcome

  Programs:
    GET    /api/programs                            List programs
    GET    /api/programs/{hotel}                    Get program (?channel=)
    PUT    /api/programs/{hotel}                    Create or replace program
    PUT    /api/programs/{hotel}/tiers              Replace tier table
    POST   /api/programs/{hotel}/recalculate        Re-tier all members
    GET    /api/programs/{hotel}/members            List members

  Members:
    GET    /api/members/{guest}/{hotel}             Status, progress and ledger
    POST   /api/members/{guest}/{hotel}/redeem      Redeem points
    POST   /api/members/{guest}/{hotel}/adjust      Administrative adjustment
    POST   /api/members/{guest}/{hotel}/deactivate  Stop earning
    POST   /api/members/{guest}/{hotel}/reactivate  Resume earning

  Admin:
    POST   /api/admin/expire                        Run the expiry sweep

ERROR HANDLING:
  Errors are returned as JSON with an HTTP status derived from the error:
  - 400: Invalid config (with violations), invalid pricing input, bad body
  - 404: Program, member or booking not found
  - 409: Invalid booking transition
  - 422: Insufficient points (with reason)
  - 500: Internal errors

SECURITY NOTE:
  No authentication or authorization. Deploy behind an authenticating
  gateway.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/warp/hotel-loyalty-engine/booking"
	"github.com/warp/hotel-loyalty-engine/factory"
	"github.com/warp/hotel-loyalty-engine/loyalty"
	"github.com/warp/hotel-loyalty-engine/pricing"
	"github.com/warp/hotel-loyalty-engine/settlement"
	"go.uber.org/zap"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Loyalty    *loyalty.Service
	Bookings   *booking.Service
	Settlement *settlement.Service
	Programs   *factory.ProgramFactory
	Logger     *zap.Logger

	// Health reports storage reachability for /healthz. Optional.
	Health func(ctx context.Context) error
}

// NewHandler creates a handler over the domain services.
func NewHandler(loyaltySvc *loyalty.Service, bookings *booking.Service, settle *settlement.Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		Loyalty:    loyaltySvc,
		Bookings:   bookings,
		Settlement: settle,
		Programs:   factory.NewProgramFactory(),
		Logger:     logger,
	}
}

// =============================================================================
// PRICING HANDLERS
// =============================================================================

// CreateQuote prices one unit with the guest's tier discount.
func (h *Handler) CreateQuote(w http.ResponseWriter, r *http.Request) {
	var req QuoteRequest
	if !decodeBody(w, r, &req) {
		return
	}

	discount := decimal.Zero
	switch {
	case req.DiscountPercentage != nil:
		discount = *req.DiscountPercentage
	case req.GuestID != "" && req.HotelID != "":
		d, err := h.Loyalty.DiscountFor(r.Context(), loyalty.MemberRef{GuestID: req.GuestID, HotelID: req.HotelID, Channel: req.Channel})
		if err != nil {
			h.fail(w, "Failed to read loyalty discount", err)
			return
		}
		discount = d
	}

	q, err := pricing.Quote(pricing.QuoteInput{
		BasePrice:          req.BasePrice,
		MarkupPercentage:   req.MarkupPercentage,
		DiscountPercentage: discount,
		Currency:           req.Currency,
	})
	if err != nil {
		h.fail(w, "Invalid quote", err)
		return
	}
	writeJSON(w, http.StatusOK, toQuoteDTO(q))
}

// =============================================================================
// BOOKING HANDLERS
// =============================================================================

// CreateBooking prices and stores a pending booking.
func (h *Handler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	var req CreateBookingRequest
	if !decodeBody(w, r, &req) {
		return
	}

	b, err := h.Bookings.Create(r.Context(), req.toDomain())
	if err != nil {
		h.fail(w, "Failed to create booking", err)
		return
	}
	writeJSON(w, http.StatusCreated, toBookingDTO(b))
}

// GetBooking returns a single booking.
func (h *Handler) GetBooking(w http.ResponseWriter, r *http.Request) {
	b, err := h.Bookings.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "Failed to get booking", err)
		return
	}
	writeJSON(w, http.StatusOK, toBookingDTO(b))
}

// TransitionBooking moves a booking to the requested status.
func (h *Handler) TransitionBooking(w http.ResponseWriter, r *http.Request) {
	var req TransitionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	to := booking.Status(req.Status)
	if !to.Valid() {
		writeError(w, http.StatusBadRequest, "Unknown status", fmt.Errorf("status %q", req.Status))
		return
	}

	b, err := h.Bookings.Transition(r.Context(), chi.URLParam(r, "id"), to, req.Actor, req.Note)
	if err != nil {
		h.fail(w, "Failed to change booking status", err)
		return
	}
	writeJSON(w, http.StatusOK, toBookingDTO(b))
}

// CancelBooking cancels a booking that has not started service.
func (h *Handler) CancelBooking(w http.ResponseWriter, r *http.Request) {
	var req CancelRequest
	if !decodeBody(w, r, &req) {
		return
	}

	b, err := h.Bookings.Cancel(r.Context(), chi.URLParam(r, "id"), req.Actor, req.Reason)
	if err != nil {
		h.fail(w, "Failed to cancel booking", err)
		return
	}
	writeJSON(w, http.StatusOK, toBookingDTO(b))
}

// ModifyBooking changes and re-prices a pending or confirmed booking.
func (h *Handler) ModifyBooking(w http.ResponseWriter, r *http.Request) {
	var req ModifyRequest
	if !decodeBody(w, r, &req) {
		return
	}

	b, err := h.Bookings.Modify(r.Context(), chi.URLParam(r, "id"), req.toDomain(), req.Actor)
	if err != nil {
		h.fail(w, "Failed to modify booking", err)
		return
	}
	writeJSON(w, http.StatusOK, toBookingDTO(b))
}

// =============================================================================
// PAYMENT HANDLERS
// =============================================================================

// ApplyPaymentOutcome settles a booking from a payment gateway callback.
func (h *Handler) ApplyPaymentOutcome(w http.ResponseWriter, r *http.Request) {
	var req PaymentOutcomeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.BookingID == "" {
		writeError(w, http.StatusBadRequest, "booking_id is required", nil)
		return
	}

	out, err := h.Settlement.ApplyPaymentOutcome(r.Context(), req.toDomain())
	if err != nil {
		h.fail(w, "Failed to apply payment outcome", err)
		return
	}
	writeJSON(w, http.StatusOK, toSettlementDTO(out))
}

// =============================================================================
// PROGRAM HANDLERS
// =============================================================================

// ListPrograms returns every configured program.
func (h *Handler) ListPrograms(w http.ResponseWriter, r *http.Request) {
	programs, err := h.Loyalty.ListPrograms(r.Context())
	if err != nil {
		h.fail(w, "Failed to list programs", err)
		return
	}

	out := make([]factory.ProgramSpec, len(programs))
	for i, p := range programs {
		out[i] = h.Programs.ToSpec(p)
	}
	writeJSON(w, http.StatusOK, out)
}

// GetProgram returns the program for a hotel, falling back from the channel
// to the hotel-wide program.
func (h *Handler) GetProgram(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.Loyalty.GetProgram(r.Context(), chi.URLParam(r, "hotel"), r.URL.Query().Get("channel"))
	if err != nil {
		h.fail(w, "Failed to get program", err)
		return
	}
	writeJSON(w, http.StatusOK, h.Programs.ToSpec(cfg))
}

// PutProgram creates or replaces a program. The hotel in the path wins over
// the body.
func (h *Handler) PutProgram(w http.ResponseWriter, r *http.Request) {
	var spec factory.ProgramSpec
	if !decodeBody(w, r, &spec) {
		return
	}
	spec.HotelID = chi.URLParam(r, "hotel")
	if ch := r.URL.Query().Get("channel"); ch != "" {
		spec.Channel = ch
	}

	cfg, err := h.Programs.FromSpec(spec)
	if err != nil {
		h.fail(w, "Invalid program", err)
		return
	}
	saved, sweep, err := h.Loyalty.UpsertProgram(r.Context(), cfg)
	if err != nil {
		h.fail(w, "Failed to save program", err)
		return
	}
	writeJSON(w, http.StatusOK, ProgramSavedDTO{Program: h.Programs.ToSpec(saved), Sweep: toSweepDTO(sweep)})
}

// ReplaceTiers swaps a program's tier table and re-tiers its members.
func (h *Handler) ReplaceTiers(w http.ResponseWriter, r *http.Request) {
	var req ReplaceTiersRequest
	if !decodeBody(w, r, &req) {
		return
	}

	tiers, err := h.Programs.TiersFromSpec(req.Tiers)
	if err != nil {
		h.fail(w, "Invalid tiers", err)
		return
	}
	saved, sweep, err := h.Loyalty.ReplaceTiers(r.Context(), programKey(r), tiers)
	if err != nil {
		h.fail(w, "Failed to replace tiers", err)
		return
	}
	writeJSON(w, http.StatusOK, ProgramSavedDTO{Program: h.Programs.ToSpec(saved), Sweep: toSweepDTO(sweep)})
}

// RecalculateTiers re-resolves the tier of every member of a program.
func (h *Handler) RecalculateTiers(w http.ResponseWriter, r *http.Request) {
	sweep, err := h.Loyalty.RecalculateTiers(r.Context(), programKey(r))
	if err != nil {
		h.fail(w, "Failed to recalculate tiers", err)
		return
	}
	writeJSON(w, http.StatusOK, toSweepDTO(sweep))
}

// ListProgramMembers returns the members earning under a program.
func (h *Handler) ListProgramMembers(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.Loyalty.GetProgram(r.Context(), chi.URLParam(r, "hotel"), r.URL.Query().Get("channel"))
	if err != nil {
		h.fail(w, "Failed to get program", err)
		return
	}
	members, err := h.Loyalty.ListMembers(r.Context(), cfg.Scope(), cfg.Channel)
	if err != nil {
		h.fail(w, "Failed to list members", err)
		return
	}

	out := make([]MemberDTO, len(members))
	for i, m := range members {
		out[i] = toMemberDTO(m, false)
	}
	writeJSON(w, http.StatusOK, out)
}

func programKey(r *http.Request) loyalty.ProgramKey {
	return loyalty.ProgramKey{HotelID: chi.URLParam(r, "hotel"), Channel: r.URL.Query().Get("channel")}
}

// =============================================================================
// MEMBER HANDLERS
// =============================================================================

func memberRef(r *http.Request) loyalty.MemberRef {
	return loyalty.MemberRef{
		GuestID: chi.URLParam(r, "guest"),
		HotelID: chi.URLParam(r, "hotel"),
		Channel: r.URL.Query().Get("channel"),
	}
}

// GetMember returns the member snapshot with tier progress and ledger history.
func (h *Handler) GetMember(w http.ResponseWriter, r *http.Request) {
	status, err := h.Loyalty.MemberStatus(r.Context(), memberRef(r))
	if err != nil {
		h.fail(w, "Failed to get member", err)
		return
	}
	writeJSON(w, http.StatusOK, toMemberStatusDTO(status))
}

// Redeem spends points on a reward.
func (h *Handler) Redeem(w http.ResponseWriter, r *http.Request) {
	var req RedeemRequest
	if !decodeBody(w, r, &req) {
		return
	}

	rec, err := h.Loyalty.Redeem(r.Context(), memberRef(r), req.Points, req.RewardRef)
	if err != nil {
		h.fail(w, "Redemption rejected", err)
		return
	}
	writeJSON(w, statusForOutcome(rec.Outcome), toRedemptionDTO(rec))
}

// Adjust applies an administrative correction.
func (h *Handler) Adjust(w http.ResponseWriter, r *http.Request) {
	var req AdjustRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Reason == "" || req.Actor == "" {
		writeError(w, http.StatusBadRequest, "reason and actor are required", nil)
		return
	}

	res, err := h.Loyalty.Adjust(r.Context(), memberRef(r), req.Points, req.Reason, req.Actor)
	if err != nil {
		h.fail(w, "Adjustment rejected", err)
		return
	}
	writeJSON(w, statusForOutcome(res.Outcome), toAwardDTO(res))
}

// DeactivateMember stops a member from earning and redeeming.
func (h *Handler) DeactivateMember(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, false)
}

// ReactivateMember reverses DeactivateMember.
func (h *Handler) ReactivateMember(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, true)
}

func (h *Handler) setActive(w http.ResponseWriter, r *http.Request, active bool) {
	var (
		m   *loyalty.Member
		err error
	)
	if active {
		m, err = h.Loyalty.Reactivate(r.Context(), memberRef(r))
	} else {
		m, err = h.Loyalty.Deactivate(r.Context(), memberRef(r))
	}
	if err != nil {
		h.fail(w, "Failed to update member", err)
		return
	}
	writeJSON(w, http.StatusOK, toMemberDTO(m, false))
}

// statusForOutcome reports a non-applicable loyalty operation as 422 so
// callers can tell "nothing happened" from success.
func statusForOutcome(o loyalty.Outcome) int {
	if o.Applicable {
		return http.StatusOK
	}
	return http.StatusUnprocessableEntity
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// TriggerExpiry runs the points expiry sweep across all active programs.
func (h *Handler) TriggerExpiry(w http.ResponseWriter, r *http.Request) {
	var req ExpireRequest
	if r.ContentLength > 0 && !decodeBody(w, r, &req) {
		return
	}
	asOf := time.Now().UTC()
	if req.AsOf != nil {
		asOf = *req.AsOf
	}

	res, err := h.Loyalty.ExpireAll(r.Context(), asOf)
	if err != nil {
		h.fail(w, "Expiry sweep failed", err)
		return
	}
	writeJSON(w, http.StatusOK, toSweepDTO(res))
}

// Healthz reports liveness and storage reachability.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	if h.Health != nil {
		if err := h.Health(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "Storage unavailable", err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	return true
}

// fail maps a domain error to its HTTP status and writes it.
func (h *Handler) fail(w http.ResponseWriter, message string, err error) {
	status, resp := errorResponse(message, err)
	if status >= http.StatusInternalServerError {
		h.Logger.Error(message, zap.Error(err))
	}
	writeJSON(w, status, resp)
}

func errorResponse(message string, err error) (int, ErrorResponse) {
	resp := ErrorResponse{Error: message, Details: err.Error()}

	var configErr *loyalty.ConfigError
	var pointsErr *loyalty.InsufficientPointsError
	switch {
	case errors.As(err, &configErr):
		for _, v := range configErr.Violations {
			resp.Violations = append(resp.Violations, ViolationDTO{Field: v.Field, Message: v.Message})
		}
		return http.StatusBadRequest, resp
	case errors.As(err, &pointsErr):
		resp.Reason = string(pointsErr.Reason)
		return http.StatusUnprocessableEntity, resp
	case errors.Is(err, pricing.ErrInvalidInput), errors.Is(err, booking.ErrInvalidBooking):
		return http.StatusBadRequest, resp
	case errors.Is(err, booking.ErrInvalidTransition):
		return http.StatusConflict, resp
	case loyalty.IsNotFound(err), errors.Is(err, booking.ErrBookingNotFound):
		return http.StatusNotFound, resp
	case errors.Is(err, loyalty.ErrMemberInactive), errors.Is(err, loyalty.ErrNoActiveProgram):
		return http.StatusUnprocessableEntity, resp
	case errors.Is(err, loyalty.ErrLedgerConflict), errors.Is(err, booking.ErrVersionConflict):
		return http.StatusConflict, resp
	default:
		return http.StatusInternalServerError, resp
	}
}
