package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"rescue-link/internal/gateway/app"
	"rescue-link/internal/gateway/domain"
	"rescue-link/internal/shared/apperrors"
	"rescue-link/internal/shared/util"
)

type Handler struct {
	service *app.RescueService
	hub     *Hub
	logger  *util.Logger
}

func NewHandler(service *app.RescueService, hub *Hub, logger *util.Logger) *Handler {
	return &Handler{service: service, hub: hub, logger: logger}
}

func (h *Handler) CreateRequestHandler(w http.ResponseWriter, r *http.Request) {
	instance := "CreateRequestHandler"
	start := time.Now()

	civilianID, ok := civilianFromContext(r.Context())
	if !ok {
		h.logger.Warn(instance, "unauthorized request: missing civilian_id")
		util.WriteJSONError(w, "unauthorized: missing civilian_id", http.StatusUnauthorized)
		return
	}

	var body CreateRequestBody
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&body); err != nil {
		h.logger.Error(instance, err)
		util.WriteJSONError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	req, err := h.service.CreateRequest(ctx, domain.CreateRequestInput{
		CivilianID:    civilianID,
		SubcategoryID: body.SubcategoryID,
		Latitude:      body.Latitude,
		Longitude:     body.Longitude,
		Address:       body.Address,
		Description:   body.Description,
		ProofImage:    body.ProofImage,
	})
	if err != nil {
		h.logger.Error(instance, err)
		util.ResponseInJSON(w, apperrors.CheckError(err), MutationResponse{
			Success: false,
			Message: err.Error(),
		})
		return
	}

	util.ResponseInJSON(w, http.StatusCreated, MutationResponse{
		Success: true,
		Message: "Request created",
		Request: &RequestInfo{
			ID:        req.ID,
			Status:    req.Status,
			CreatedAt: req.CreatedAt.Format(time.RFC3339),
		},
	})

	h.logger.OK(instance, "request created: "+strconv.FormatInt(req.ID, 10))
	h.logger.HTTP(http.StatusCreated, time.Since(start), r.RemoteAddr, r.Method, r.URL.Path)
}

func (h *Handler) CancelRequestHandler(w http.ResponseWriter, r *http.Request) {
	instance := "CancelRequestHandler"
	start := time.Now()

	requestID, ok := parseIDPath(r.URL.Path, "cancel")
	if !ok {
		h.logger.Warn(instance, "invalid URL path: "+r.URL.Path)
		util.WriteJSONError(w, "invalid URL path", http.StatusBadRequest)
		return
	}

	civilianID, authed := civilianFromContext(r.Context())
	if !authed {
		util.WriteJSONError(w, "unauthorized: missing civilian_id", http.StatusUnauthorized)
		return
	}

	var body CancelRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err == nil {
		if body.Status != "" && !strings.EqualFold(body.Status, domain.StatusCancelled) {
			util.WriteJSONError(w, "only Cancelled is accepted", http.StatusBadRequest)
			return
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	req, err := h.service.CancelRequest(ctx, requestID, civilianID)
	if err != nil {
		h.logger.Warn(instance, "cancel failed: "+err.Error())
		util.ResponseInJSON(w, apperrors.CheckError(err), MutationResponse{
			Success: false,
			Message: err.Error(),
		})
		return
	}

	util.ResponseInJSON(w, http.StatusOK, MutationResponse{
		Success: true,
		Message: "Request cancelled",
		Request: &RequestInfo{ID: req.ID, Status: req.Status},
	})

	h.logger.OK(instance, "request cancelled: "+strconv.FormatInt(requestID, 10))
	h.logger.HTTP(http.StatusOK, time.Since(start), r.RemoteAddr, r.Method, r.URL.Path)
}

func (h *Handler) ActiveRequestsHandler(w http.ResponseWriter, r *http.Request) {
	instance := "ActiveRequestsHandler"

	civilianID, ok := civilianFromContext(r.Context())
	if !ok {
		util.WriteJSONError(w, "unauthorized: missing civilian_id", http.StatusUnauthorized)
		return
	}

	ids, err := h.service.ActiveRequestIDs(r.Context(), civilianID)
	if err != nil {
		h.logger.Error(instance, err)
		util.WriteJSONError(w, "failed to list active requests", http.StatusInternalServerError)
		return
	}

	entries := make([]ActiveRequestEntry, 0, len(ids))
	for _, id := range ids {
		entries = append(entries, ActiveRequestEntry{ID: id})
	}
	util.ResponseInJSON(w, http.StatusOK, entries)
}

func (h *Handler) RequestDetailHandler(w http.ResponseWriter, r *http.Request) {
	instance := "RequestDetailHandler"

	requestID, ok := parseIDPath(r.URL.Path, "")
	if !ok {
		util.WriteJSONError(w, "invalid URL path", http.StatusBadRequest)
		return
	}

	detail, err := h.service.GetRequestDetail(r.Context(), requestID)
	if err != nil {
		h.logger.Warn(instance, "detail failed: "+err.Error())
		util.WriteJSONError(w, err.Error(), apperrors.CheckError(err))
		return
	}

	util.ResponseInJSON(w, http.StatusOK, ToDetailResponse(detail))
}

// parseIDPath extracts the id from /requests/{id} or /requests/{id}/{suffix}.
func parseIDPath(path, suffix string) (int64, bool) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if parts[0] != "requests" {
		return 0, false
	}
	if suffix == "" {
		if len(parts) != 2 {
			return 0, false
		}
	} else {
		if len(parts) != 3 || parts[2] != suffix {
			return 0, false
		}
	}
	id, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
