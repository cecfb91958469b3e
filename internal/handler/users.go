package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"propvest/internal/user"
	"propvest/pkg/domain"
	"propvest/pkg/logger"
	"propvest/pkg/validator"
)

type UserService interface {
	Create(ctx context.Context, req *user.CreateRequest) (*domain.User, error)
	Update(ctx context.Context, id int64, req *user.UpdateRequest, actorID int64) (*domain.User, error)
	Delete(ctx context.Context, id, actorID int64) error
	Get(ctx context.Context, id int64) (*domain.User, error)
	List(ctx context.Context, filter domain.UserFilter) ([]*domain.User, int, error)
	CreateTeam(ctx context.Context, req *user.TeamRequest) (*domain.Team, error)
	UpdateTeam(ctx context.Context, id int64, req *user.TeamRequest) (*domain.Team, error)
	DeleteTeam(ctx context.Context, id int64) error
	GetTeam(ctx context.Context, id int64) (*domain.Team, error)
	ListTeams(ctx context.Context, limit, offset int) ([]*domain.Team, int, error)
	AssignMembers(ctx context.Context, teamID int64, userIDs []int64) (*domain.Team, error)
}

// UsersHandler serves the admin user and team pages.
type UsersHandler struct {
	service   UserService
	validator *validator.Validator
	logger    logger.Logger
}

func NewUsersHandler(service UserService, val *validator.Validator, log logger.Logger) *UsersHandler {
	return &UsersHandler{service: service, validator: val, logger: log}
}

func (h *UsersHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, offset := page(r)
	q := r.URL.Query()
	filter := domain.UserFilter{
		TeamID: queryInt64(r, "team_id"),
		Search: strings.TrimSpace(q.Get("search")),
		Limit:  limit,
		Offset: offset,
	}
	if v := q.Get("role"); v != "" {
		role := domain.UserRole(v)
		filter.Role = &role
	}
	if v := q.Get("is_active"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			filter.IsActive = &b
		}
	}

	users, total, err := h.service.List(r.Context(), filter)
	if err != nil {
		writeError(w, r, h.logger, "Failed to list users", err)
		return
	}
	respondJSON(w, http.StatusOK, listResponse{Items: users, Total: total, Limit: limit, Offset: offset})
}

func (h *UsersHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	u, err := h.service.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, "Failed to load user", err)
		return
	}
	respondJSON(w, http.StatusOK, u)
}

func (h *UsersHandler) Store(w http.ResponseWriter, r *http.Request) {
	var req user.CreateRequest
	if !decode(w, r, h.validator, &req) {
		return
	}
	u, err := h.service.Create(r.Context(), &req)
	if err != nil {
		writeError(w, r, h.logger, "Failed to create user", err)
		return
	}
	respondJSON(w, http.StatusCreated, u)
}

func (h *UsersHandler) Update(w http.ResponseWriter, r *http.Request) {
	actorID, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req user.UpdateRequest
	if !decode(w, r, h.validator, &req) {
		return
	}
	u, err := h.service.Update(r.Context(), id, &req, actorID)
	if err != nil {
		writeError(w, r, h.logger, "Failed to update user", err)
		return
	}
	respondJSON(w, http.StatusOK, u)
}

// Delete deactivates the user; their ledger history stays.
func (h *UsersHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actorID, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), id, actorID); err != nil {
		writeError(w, r, h.logger, "Failed to delete user", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *UsersHandler) ListTeams(w http.ResponseWriter, r *http.Request) {
	limit, offset := page(r)
	teams, total, err := h.service.ListTeams(r.Context(), limit, offset)
	if err != nil {
		writeError(w, r, h.logger, "Failed to list teams", err)
		return
	}
	respondJSON(w, http.StatusOK, listResponse{Items: teams, Total: total, Limit: limit, Offset: offset})
}

func (h *UsersHandler) GetTeam(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	team, err := h.service.GetTeam(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, "Failed to load team", err)
		return
	}
	respondJSON(w, http.StatusOK, team)
}

func (h *UsersHandler) StoreTeam(w http.ResponseWriter, r *http.Request) {
	var req user.TeamRequest
	if !decode(w, r, h.validator, &req) {
		return
	}
	team, err := h.service.CreateTeam(r.Context(), &req)
	if err != nil {
		writeError(w, r, h.logger, "Failed to create team", err)
		return
	}
	respondJSON(w, http.StatusCreated, team)
}

func (h *UsersHandler) UpdateTeam(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req user.TeamRequest
	if !decode(w, r, h.validator, &req) {
		return
	}
	team, err := h.service.UpdateTeam(r.Context(), id, &req)
	if err != nil {
		writeError(w, r, h.logger, "Failed to update team", err)
		return
	}
	respondJSON(w, http.StatusOK, team)
}

func (h *UsersHandler) DeleteTeam(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.service.DeleteTeam(r.Context(), id); err != nil {
		writeError(w, r, h.logger, "Failed to delete team", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *UsersHandler) AssignMembers(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req user.AssignRequest
	if !decode(w, r, h.validator, &req) {
		return
	}
	team, err := h.service.AssignMembers(r.Context(), id, req.UserIDs)
	if err != nil {
		writeError(w, r, h.logger, "Failed to assign members", err)
		return
	}
	respondJSON(w, http.StatusOK, team)
}
