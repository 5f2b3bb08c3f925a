/**
 * @description
 * HTTP handlers for the entitlement-service.
 */
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/soullink/entitlement-service/internal/app"
	"github.com/soullink/entitlement-service/internal/domain"
)

const upstreamRetryAfterSeconds = 30

// Handler holds the application service that handlers will interact with.
type Handler struct {
	service *app.Service
	logger  *slog.Logger
}

// NewHandler creates a new Handler with the given service.
func NewHandler(service *app.Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

type recordPaymentRequest struct {
	PayerEmail         string `json:"payer_email"`
	TargetBiodataID    int64  `json:"target_biodata_id"`
	Amount             int64  `json:"amount"`
	ProcessorReference string `json:"processor_reference"`
}

type checkoutRequest struct {
	TargetBiodataID int64  `json:"target_biodata_id"`
	PaymentMethodID string `json:"payment_method_id"`
}

type premiumRequestRequest struct {
	PaymentID string `json:"payment_id"`
}

type favoriteRequest struct {
	BiodataID int64 `json:"biodata_id"`
}

type approveResponse struct {
	Status  app.ApprovalOutcome    `json:"status"`
	Request *domain.PremiumRequest `json:"request"`
}

type canRevealResponse struct {
	BiodataID int64 `json:"biodata_id"`
	CanReveal bool  `json:"can_reveal"`
}

type errorResponse struct {
	Status string `json:"status"`
	Error  string `json:"error"`
}

// handleRecordPayment serves admins and internal callers only. Payers reach the
// ledger through checkout, which charges the processor first.
func (h *Handler) handleRecordPayment(w http.ResponseWriter, r *http.Request) {
	var req recordPaymentRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	payment, created, err := h.service.Record(r.Context(), req.PayerEmail, req.TargetBiodataID, req.Amount, req.ProcessorReference)
	if err != nil {
		h.writeServiceError(w, err, "record payment")
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	respondWithJSON(w, status, payment)
}

func (h *Handler) handleCheckout(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req checkoutRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.service.Checkout(r.Context(), identity.Email, req.TargetBiodataID, req.PaymentMethodID, r.Header.Get("Idempotency-Key"))
	if err != nil {
		h.writeServiceError(w, err, "checkout")
		return
	}
	respondWithJSON(w, http.StatusCreated, result)
}

func (h *Handler) handleRequestApproval(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req premiumRequestRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	request, err := h.service.RequestApprovalByPaymentID(r.Context(), identity, req.PaymentID)
	if err != nil {
		h.writeServiceError(w, err, "request approval")
		return
	}
	respondWithJSON(w, http.StatusOK, request)
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	paymentID := chi.URLParam(r, "paymentID")

	request, outcome, err := h.service.Approve(r.Context(), paymentID)
	if err != nil {
		h.writeServiceError(w, err, "approve payment")
		return
	}
	respondWithJSON(w, http.StatusOK, approveResponse{Status: outcome, Request: request})
}

func (h *Handler) handleListPayments(w http.ResponseWriter, r *http.Request) {
	entries, err := h.service.ListPayments(r.Context())
	if err != nil {
		h.writeServiceError(w, err, "list payments")
		return
	}
	respondWithJSON(w, http.StatusOK, entries)
}

func (h *Handler) handleListRequests(w http.ResponseWriter, r *http.Request) {
	requests, err := h.service.ListRequests(r.Context())
	if err != nil {
		h.writeServiceError(w, err, "list premium requests")
		return
	}
	respondWithJSON(w, http.StatusOK, requests)
}

func (h *Handler) handleCanReveal(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	biodataID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	allowed, err := h.service.CanReveal(r.Context(), identity, biodataID)
	if err != nil {
		h.writeServiceError(w, err, "check contact access")
		return
	}
	respondWithJSON(w, http.StatusOK, canRevealResponse{BiodataID: biodataID, CanReveal: allowed})
}

func (h *Handler) handleCanRevealInternal(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	biodataID, err := strconv.ParseInt(query.Get("biodata_id"), 10, 64)
	if err != nil {
		http.Error(w, "biodata_id must be an integer", http.StatusBadRequest)
		return
	}
	isAdmin, _ := strconv.ParseBool(query.Get("admin"))
	identity := app.Identity{Email: query.Get("email"), IsAdmin: isAdmin}

	allowed, err := h.service.CanReveal(r.Context(), identity, biodataID)
	if err != nil {
		h.writeServiceError(w, err, "check contact access")
		return
	}
	respondWithJSON(w, http.StatusOK, canRevealResponse{BiodataID: biodataID, CanReveal: allowed})
}

func (h *Handler) handleRevealedContacts(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	profiles, err := h.service.RevealedContactsFor(r.Context(), identity.Email)
	if err != nil {
		h.writeServiceError(w, err, "list revealed contacts")
		return
	}
	respondWithJSON(w, http.StatusOK, profiles)
}

func (h *Handler) handleApprovedCards(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(w, r, "limit")
	if !ok {
		return
	}

	cards, err := h.service.ApprovedCards(r.Context(), app.CardFilter{SortBy: r.URL.Query().Get("sort"), Limit: limit})
	if err != nil {
		h.writeServiceError(w, err, "list premium cards")
		return
	}
	respondWithJSON(w, http.StatusOK, cards)
}

func (h *Handler) handleListBiodata(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	q := app.BiodataQuery{
		BiodataType: query.Get("type"),
		Division:    query.Get("division"),
		SortByAge:   query.Get("sort"),
	}
	var ok bool
	if q.MinAge, ok = queryInt(w, r, "min_age"); !ok {
		return
	}
	if q.MaxAge, ok = queryInt(w, r, "max_age"); !ok {
		return
	}
	if q.Page, ok = queryInt(w, r, "page"); !ok {
		return
	}
	if q.PageSize, ok = queryInt(w, r, "page_size"); !ok {
		return
	}

	page, err := h.service.ListBiodata(r.Context(), q)
	if err != nil {
		h.writeServiceError(w, err, "list biodata")
		return
	}
	respondWithJSON(w, http.StatusOK, page)
}

func (h *Handler) handleGetBiodata(w http.ResponseWriter, r *http.Request) {
	biodataID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	identity, _ := IdentityFromContext(r.Context())

	profile, err := h.service.ViewBiodata(r.Context(), identity, biodataID)
	if err != nil {
		h.writeServiceError(w, err, "get biodata")
		return
	}
	respondWithJSON(w, http.StatusOK, profile)
}

func (h *Handler) handleSimilarBiodata(w http.ResponseWriter, r *http.Request) {
	biodataID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	limit, ok := queryInt(w, r, "limit")
	if !ok {
		return
	}

	profiles, err := h.service.SimilarBiodata(r.Context(), biodataID, limit)
	if err != nil {
		h.writeServiceError(w, err, "list similar biodata")
		return
	}
	respondWithJSON(w, http.StatusOK, profiles)
}

func (h *Handler) handleGetMyBiodata(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	profile, err := h.service.MyBiodata(r.Context(), identity.Email)
	if err != nil {
		h.writeServiceError(w, err, "get own biodata")
		return
	}
	respondWithJSON(w, http.StatusOK, profile)
}

func (h *Handler) handleSaveMyBiodata(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var input domain.BiodataInput
	if !decodeJSON(w, r, &input) {
		return
	}

	profile, created, err := h.service.SaveOwnBiodata(r.Context(), identity.Email, input)
	if err != nil {
		h.writeServiceError(w, err, "save own biodata")
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	respondWithJSON(w, status, profile)
}

func (h *Handler) handleArchiveMyBiodata(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	if err := h.service.ArchiveOwnBiodata(r.Context(), identity.Email); err != nil {
		h.writeServiceError(w, err, "archive own biodata")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleListFavorites(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	favorites, err := h.service.ListFavorites(r.Context(), identity.Email)
	if err != nil {
		h.writeServiceError(w, err, "list favorites")
		return
	}
	respondWithJSON(w, http.StatusOK, favorites)
}

func (h *Handler) handleAddFavorite(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req favoriteRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	favorite, err := h.service.AddFavorite(r.Context(), identity.Email, req.BiodataID)
	if err != nil {
		h.writeServiceError(w, err, "add favorite")
		return
	}
	respondWithJSON(w, http.StatusCreated, favorite)
}

func (h *Handler) handleRemoveFavorite(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	biodataID, ok := pathID(w, r, "biodataID")
	if !ok {
		return
	}

	if err := h.service.RemoveFavorite(r.Context(), identity.Email, biodataID); err != nil {
		h.writeServiceError(w, err, "remove favorite")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleSubmitStory(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var input app.StoryInput
	if !decodeJSON(w, r, &input) {
		return
	}

	story, err := h.service.SubmitStory(r.Context(), identity.Email, input)
	if err != nil {
		h.writeServiceError(w, err, "submit success story")
		return
	}
	respondWithJSON(w, http.StatusCreated, story)
}

func (h *Handler) handleListStories(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(w, r, "limit")
	if !ok {
		return
	}

	stories, err := h.service.ListStories(r.Context(), limit)
	if err != nil {
		h.writeServiceError(w, err, "list success stories")
		return
	}
	respondWithJSON(w, http.StatusOK, stories)
}

func (h *Handler) handleListStoriesAdmin(w http.ResponseWriter, r *http.Request) {
	stories, err := h.service.ListStories(r.Context(), app.MaxStoryLimit)
	if err != nil {
		h.writeServiceError(w, err, "list success stories")
		return
	}
	respondWithJSON(w, http.StatusOK, stories)
}

func (h *Handler) handleSiteStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.SiteStats(r.Context())
	if err != nil {
		h.writeServiceError(w, err, "count site stats")
		return
	}
	respondWithJSON(w, http.StatusOK, stats)
}

// writeServiceError maps service errors onto HTTP statuses.
func (h *Handler) writeServiceError(w http.ResponseWriter, err error, action string) {
	var rateErr *app.RateLimitError

	switch {
	case errors.Is(err, app.ErrInvalidInput), errors.Is(err, app.ErrInvalidAmount):
		respondWithJSON(w, http.StatusBadRequest, errorResponse{Status: "invalid", Error: err.Error()})
	case errors.Is(err, app.ErrProfileNotFound), errors.Is(err, app.ErrUnknownPayment), errors.Is(err, app.ErrFavoriteNotFound):
		respondWithJSON(w, http.StatusNotFound, errorResponse{Status: "not_found", Error: err.Error()})
	case errors.Is(err, app.ErrSelfPurchase), errors.Is(err, app.ErrAlreadyUnlocked), errors.Is(err, app.ErrApprovalPending),
		errors.Is(err, app.ErrPaymentConflict), errors.Is(err, app.ErrFavoriteExists):
		respondWithJSON(w, http.StatusConflict, errorResponse{Status: "conflict", Error: err.Error()})
	case errors.Is(err, app.ErrForbidden):
		respondWithJSON(w, http.StatusForbidden, errorResponse{Status: "forbidden", Error: err.Error()})
	case errors.Is(err, app.ErrPaymentDeclined):
		respondWithJSON(w, http.StatusPaymentRequired, errorResponse{Status: "declined", Error: err.Error()})
	case errors.As(err, &rateErr):
		w.Header().Set("Retry-After", strconv.Itoa(rateErr.RetryAfterSeconds))
		respondWithJSON(w, http.StatusTooManyRequests, errorResponse{Status: "rate_limited", Error: app.ErrRateLimited.Error()})
	case errors.Is(err, app.ErrUpstreamUnavailable):
		h.logger.Warn("upstream unavailable", "action", action, "error", err)
		w.Header().Set("Retry-After", strconv.Itoa(upstreamRetryAfterSeconds))
		respondWithJSON(w, http.StatusServiceUnavailable, errorResponse{Status: "unavailable", Error: app.ErrUpstreamUnavailable.Error()})
	default:
		h.logger.Error("request failed", "action", action, "error", err)
		respondWithJSON(w, http.StatusInternalServerError, errorResponse{Status: "error", Error: "internal server error"})
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, name+" must be a positive integer", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

// queryInt reads an optional integer query parameter; absent means zero.
func queryInt(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		http.Error(w, name+" must be an integer", http.StatusBadRequest)
		return 0, false
	}
	return v, true
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
