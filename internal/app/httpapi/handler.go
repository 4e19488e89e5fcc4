// Package httpapi exposes the loyalty services over REST.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	app "github.com/Emrys-Org/gaius-loyalty/internal/app"
	"github.com/Emrys-Org/gaius-loyalty/internal/app/domain/program"
	"github.com/Emrys-Org/gaius-loyalty/internal/app/metrics"
	"github.com/Emrys-Org/gaius-loyalty/internal/app/services/programs"
	"github.com/Emrys-Org/gaius-loyalty/internal/app/services/xp"
	"github.com/Emrys-Org/gaius-loyalty/internal/app/storage"
)

// MetadataFetcher resolves ipfs:// metadata URLs to their pinned content.
type MetadataFetcher interface {
	Fetch(ctx context.Context, cidOrURL string) ([]byte, error)
}

// handler bundles HTTP endpoints for the application services.
type handler struct {
	app      *app.Application
	metadata MetadataFetcher
}

// NewHandler returns a router exposing the core REST API. A nil metadata
// fetcher disables the program metadata endpoint.
func NewHandler(application *app.Application, metadata MetadataFetcher) http.Handler {
	h := &handler{app: application, metadata: metadata}

	r := mux.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return metrics.Middleware(RouteTemplate, next)
	})
	r.HandleFunc("/healthz", h.health).Methods(http.MethodGet)

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/programs", h.createProgram).Methods(http.MethodPost)
	v1.HandleFunc("/programs", h.listPrograms).Methods(http.MethodGet)
	v1.HandleFunc("/programs/{id}", h.getProgram).Methods(http.MethodGet)
	v1.HandleFunc("/programs/{id}", h.archiveProgram).Methods(http.MethodDelete)
	v1.HandleFunc("/programs/{id}/members", h.enrollMember).Methods(http.MethodPost)
	v1.HandleFunc("/programs/{id}/members", h.listMembers).Methods(http.MethodGet)
	v1.HandleFunc("/programs/{id}/members/{address}", h.getMember).Methods(http.MethodGet)
	v1.HandleFunc("/programs/{id}/members/{address}/ledger", h.memberLedger).Methods(http.MethodGet)
	v1.HandleFunc("/programs/{id}/passes", h.issuePass).Methods(http.MethodPost)
	v1.HandleFunc("/programs/{id}/passes", h.listPasses).Methods(http.MethodGet)
	v1.HandleFunc("/programs/{id}/ledgers", h.leaderboard).Methods(http.MethodGet)
	v1.HandleFunc("/programs/{id}/xp", h.awardXP).Methods(http.MethodPost)
	v1.HandleFunc("/programs/{id}/metadata", h.programMetadata).Methods(http.MethodGet)
	v1.HandleFunc("/passes/{id}", h.getPass).Methods(http.MethodGet)
	v1.HandleFunc("/passes/{id}/claim", h.claimPass).Methods(http.MethodPost)
	v1.HandleFunc("/passes/{id}/revoke", h.revokePass).Methods(http.MethodPost)
	v1.HandleFunc("/members/{address}/passes", h.memberPasses).Methods(http.MethodGet)

	return r
}

// RouteTemplate reports the mux route template matched by a request, used to
// keep metric label cardinality bounded.
func RouteTemplate(r *http.Request) string {
	route := mux.CurrentRoute(r)
	if route == nil {
		return ""
	}
	tmpl, err := route.GetPathTemplate()
	if err != nil {
		return ""
	}
	return tmpl
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) createProgram(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		OwnerID     string         `json:"owner_id"`
		Name        string         `json:"name"`
		UnitName    string         `json:"unit_name"`
		Description string         `json:"description"`
		ImageCID    string         `json:"image_cid"`
		Artwork     []byte         `json:"artwork"`
		ArtworkType string         `json:"artwork_type"`
		Tiers       []program.Tier `json:"tiers"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if owner := userID(r); owner != "" {
		payload.OwnerID = owner
	}

	created, err := h.app.Programs.Create(r.Context(), programs.CreateParams{
		OwnerID:     payload.OwnerID,
		Name:        payload.Name,
		UnitName:    payload.UnitName,
		Description: payload.Description,
		ImageCID:    payload.ImageCID,
		Artwork:     payload.Artwork,
		ArtworkType: payload.ArtworkType,
		Tiers:       payload.Tiers,
	})
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *handler) listPrograms(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("owner")
	if owner == "" {
		owner = userID(r)
	}
	list, err := h.app.Programs.List(r.Context(), owner)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *handler) getProgram(w http.ResponseWriter, r *http.Request) {
	p, err := h.app.Programs.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *handler) archiveProgram(w http.ResponseWriter, r *http.Request) {
	p, err := h.app.Programs.Archive(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *handler) programMetadata(w http.ResponseWriter, r *http.Request) {
	if h.metadata == nil {
		writeError(w, http.StatusNotImplemented, errors.New("metadata gateway not configured"))
		return
	}
	p, err := h.app.Programs.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	if p.MetadataURL == "" {
		writeError(w, http.StatusNotFound, errors.New("program has no metadata"))
		return
	}
	// Uploaded artwork lives behind a plain https URL, not the IPFS gateway.
	if strings.HasPrefix(p.MetadataURL, "http://") || strings.HasPrefix(p.MetadataURL, "https://") {
		http.Redirect(w, r, p.MetadataURL, http.StatusFound)
		return
	}

	data, err := h.metadata.Fetch(r.Context(), p.MetadataURL)
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h *handler) enrollMember(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Address     string `json:"address"`
		DisplayName string `json:"display_name"`
		ProfileID   string `json:"profile_id"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	m, err := h.app.Members.Enroll(r.Context(), mux.Vars(r)["id"], payload.Address, payload.DisplayName, payload.ProfileID)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func (h *handler) listMembers(w http.ResponseWriter, r *http.Request) {
	list, err := h.app.Members.List(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *handler) getMember(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	m, err := h.app.Members.GetByAddress(r.Context(), vars["id"], vars["address"])
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (h *handler) memberLedger(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	refresh, _ := strconv.ParseBool(r.URL.Query().Get("refresh"))

	ledger, err := h.app.XP.Ledger(r.Context(), vars["id"], vars["address"], refresh)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, ledger)
}

func (h *handler) leaderboard(w http.ResponseWriter, r *http.Request) {
	ledgers, err := h.app.XP.Leaderboard(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, ledgers)
}

func (h *handler) awardXP(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Address string `json:"address"`
		Points  int64  `json:"points"`
		Reason  string `json:"reason"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	res, err := h.app.XP.Award(r.Context(), xp.AwardParams{
		ProgramID: mux.Vars(r)["id"],
		Address:   payload.Address,
		Points:    payload.Points,
		Reason:    payload.Reason,
	})
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handler) issuePass(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Address string `json:"address"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	p, err := h.app.Passes.Issue(r.Context(), mux.Vars(r)["id"], payload.Address)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *handler) listPasses(w http.ResponseWriter, r *http.Request) {
	list, err := h.app.Passes.ListByProgram(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *handler) getPass(w http.ResponseWriter, r *http.Request) {
	p, err := h.app.Passes.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *handler) claimPass(w http.ResponseWriter, r *http.Request) {
	p, err := h.app.Passes.Claim(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *handler) revokePass(w http.ResponseWriter, r *http.Request) {
	p, err := h.app.Passes.Revoke(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *handler) memberPasses(w http.ResponseWriter, r *http.Request) {
	list, err := h.app.Passes.ListByMember(r.Context(), mux.Vars(r)["address"])
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func statusFor(err error) int {
	if errors.Is(err, storage.ErrNotFound) {
		return http.StatusNotFound
	}
	return http.StatusBadRequest
}

func decodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
