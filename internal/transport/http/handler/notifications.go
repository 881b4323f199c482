package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/go-notify-nosql/internal/application/notification"
	"github.com/go-notify-nosql/internal/application/realtime"
	"github.com/go-notify-nosql/internal/application/sharedread"
	"github.com/go-notify-nosql/internal/domain"
	jwtinfra "github.com/go-notify-nosql/internal/infrastructure/jwt"
	"github.com/go-notify-nosql/internal/transport/http/middleware"
)

// RoleAdmin may publish and broadcast reads across a hub.
const RoleAdmin = "admin"

// maxBulkRead caps the items accepted by one bulk read request.
const maxBulkRead = 500

// NotificationHandler handles notification endpoints.
type NotificationHandler struct {
	svc notification.Service
	now func() time.Time
}

func NewNotificationHandler(svc notification.Service) *NotificationHandler {
	return &NotificationHandler{svc: svc, now: func() time.Time { return time.Now().UTC() }}
}

// ReadRequest is the body of a single read. Category defaults to the caller's.
type ReadRequest struct {
	Category string `json:"category"`
	Scope    string `json:"scope"`
	GroupID  string `json:"group_id"`
	HubID    string `json:"hub_id"`
}

// BulkReadItem is one element of a bulk read.
type BulkReadItem struct {
	NotificationID string `json:"notification_id"`
	Scope          string `json:"scope"`
	GroupID        string `json:"group_id"`
	HubID          string `json:"hub_id"`
}

// BulkReadRequest applies every item with the same category.
type BulkReadRequest struct {
	Category string         `json:"category"`
	Items    []BulkReadItem `json:"items"`
}

func (h *NotificationHandler) Publish(w http.ResponseWriter, r *http.Request) {
	var req notification.PublishRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	res, err := h.svc.Publish(r.Context(), req)
	if err != nil {
		httpError(w, err)
		return
	}
	status := http.StatusCreated
	if res.Created == 0 {
		status = http.StatusOK
	}
	writeJSON(w, status, res)
}

func (h *NotificationHandler) PublishReservation(w http.ResponseWriter, r *http.Request) {
	var u realtime.ReservationUpdate
	if err := decodeJSON(r, &u); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	ok, err := h.svc.PublishReservationUpdate(r.Context(), u)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, DispatchEnvelope{Delivered: ok})
}

func (h *NotificationHandler) ListUnread(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	category := categoryFor(claims, r.URL.Query().Get("category"))
	notifications, err := h.svc.ListUnread(r.Context(), category, claims.UserID)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, notifications)
}

func (h *NotificationHandler) MarkAsRead(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req ReadRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	p, err := h.params(claims, chi.URLParam(r, "id"), req.Scope, req.GroupID, req.HubID)
	if err != nil {
		httpError(w, err)
		return
	}
	n, err := h.svc.MarkAsRead(r.Context(), string(categoryFor(claims, req.Category)), p)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ReadEnvelope{Updated: n})
}

// MarkBulk applies each item independently. Items that fail are reported in
// the error field while the rows of the other items stay read.
func (h *NotificationHandler) MarkBulk(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req BulkReadRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Items) == 0 || len(req.Items) > maxBulkRead {
		writeError(w, http.StatusBadRequest, "items must hold between 1 and 500 entries")
		return
	}
	list := make([]sharedread.Params, 0, len(req.Items))
	for _, it := range req.Items {
		p, err := h.params(claims, it.NotificationID, it.Scope, it.GroupID, it.HubID)
		if err != nil {
			httpError(w, err)
			return
		}
		list = append(list, p)
	}
	n, err := h.svc.MarkMultipleAsRead(r.Context(), string(categoryFor(claims, req.Category)), list)
	if err != nil {
		writeJSON(w, http.StatusMultiStatus, ReadEnvelope{Updated: n, Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, ReadEnvelope{Updated: n})
}

func (h *NotificationHandler) params(claims *jwtinfra.Claims, id, scope, groupID, hubID string) (sharedread.Params, error) {
	sc, err := domain.ParseScope(scope)
	if err != nil {
		return sharedread.Params{}, err
	}
	if sc == domain.ScopeHubBroadcast && claims.Role != RoleAdmin {
		return sharedread.Params{}, domain.ErrForbidden
	}
	return sharedread.Params{
		NotificationID: id,
		RecipientID:    claims.UserID,
		ReadByUserID:   claims.UserID,
		ReadAt:         h.now(),
		Scope:          sc,
		GroupID:        groupID,
		HubID:          hubID,
	}, nil
}

// categoryFor returns the requested category when set, else the caller's own.
func categoryFor(claims *jwtinfra.Claims, requested string) domain.Category {
	if c := strings.TrimSpace(requested); c != "" {
		return domain.Category(c)
	}
	return domain.Category(claims.Category)
}
