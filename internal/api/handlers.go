package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/titanops/vista-sync/internal/vista"
)

func entityType(w http.ResponseWriter, r *http.Request) (vista.EntityType, bool) {
	t, err := vista.ParseEntityType(chi.URLParam(r, "type"))
	if err != nil {
		writeError(w, r, err)
		return "", false
	}
	return t, true
}

func recordID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		badRequest(w, "invalid record id")
		return uuid.Nil, false
	}
	return id, true
}

func caller(r *http.Request) Identity {
	id, _ := IdentityFrom(r.Context())
	return id
}

// queryInt parses an optional integer query parameter.
func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, eris.Errorf("%s must be a non-negative integer", name)
	}
	return n, nil
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	t, ok := entityType(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	f := vista.ListFilter{Search: strings.TrimSpace(q.Get("q"))}
	if s := q.Get("status"); s != "" {
		st, ok := vista.ParseLinkStatus(s)
		if !ok {
			badRequest(w, "unknown status "+strconv.Quote(s))
			return
		}
		f.Status = st
	}
	var err error
	if f.Limit, err = queryInt(r, "limit"); err != nil {
		badRequest(w, err.Error())
		return
	}
	if f.Offset, err = queryInt(r, "offset"); err != nil {
		badRequest(w, err.Error())
		return
	}

	page, err := h.engine.List(r.Context(), caller(r).TenantID, t, f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *Handler) counts(w http.ResponseWriter, r *http.Request) {
	t, ok := entityType(w, r)
	if !ok {
		return
	}
	c, err := h.engine.Counts(r.Context(), caller(r).TenantID, t)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	t, ok := entityType(w, r)
	if !ok {
		return
	}
	id, ok := recordID(w, r)
	if !ok {
		return
	}
	rec, err := h.engine.Get(r.Context(), caller(r).TenantID, t, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) link(w http.ResponseWriter, r *http.Request) {
	t, ok := entityType(w, r)
	if !ok {
		return
	}
	id, ok := recordID(w, r)
	if !ok {
		return
	}
	var body struct {
		EntityID string `json:"entity_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	entityID, err := uuid.Parse(body.EntityID)
	if err != nil {
		badRequest(w, "entity_id must be a uuid")
		return
	}

	who := caller(r)
	rec, err := h.engine.Link(r.Context(), who.TenantID, t, id, entityID, who.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) unlink(w http.ResponseWriter, r *http.Request) {
	t, ok := entityType(w, r)
	if !ok {
		return
	}
	id, ok := recordID(w, r)
	if !ok {
		return
	}
	rec, err := h.engine.Unlink(r.Context(), caller(r).TenantID, t, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) ignore(w http.ResponseWriter, r *http.Request) {
	t, ok := entityType(w, r)
	if !ok {
		return
	}
	id, ok := recordID(w, r)
	if !ok {
		return
	}
	who := caller(r)
	rec, err := h.engine.Ignore(r.Context(), who.TenantID, t, id, who.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) deleteExternalOnly(w http.ResponseWriter, r *http.Request) {
	t, ok := entityType(w, r)
	if !ok {
		return
	}
	n, err := h.engine.DeleteExternalOnly(r.Context(), caller(r).TenantID, t)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": n})
}

func (h *Handler) upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorBody{Error: "upload too large"})
			return
		}
		badRequest(w, "expected multipart form with a file field")
		return
	}
	file, hdr, err := r.FormFile("file")
	if err != nil {
		badRequest(w, "missing file field")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		badRequest(w, "could not read upload")
		return
	}

	who := caller(r)
	sum, err := h.engine.Import(r.Context(), vista.ImportRequest{
		TenantID: who.TenantID,
		UserID:   who.UserID,
		FileName: hdr.Filename,
		Data:     data,
	})
	if err != nil && sum == nil {
		writeError(w, r, err)
		return
	}
	if err != nil {
		zap.L().Error("api: upload aborted",
			zap.String("tenant_id", who.TenantID.String()), zap.String("file", hdr.Filename), zap.Error(err))
	}
	writeJSON(w, http.StatusOK, sum)
}

func (h *Handler) listBatches(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	batches, err := h.engine.ListBatches(r.Context(), caller(r).TenantID, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if batches == nil {
		batches = []*vista.ImportBatch{}
	}
	writeJSON(w, http.StatusOK, batches)
}

func (h *Handler) autoMatch(w http.ResponseWriter, r *http.Request) {
	counts, err := h.engine.AutoMatchAll(r.Context(), caller(r).TenantID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

func (h *Handler) duplicates(w http.ResponseWriter, r *http.Request) {
	t, ok := entityType(w, r)
	if !ok {
		return
	}
	var opts vista.DuplicateOptions
	if raw := r.URL.Query().Get("min_similarity"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v < 0 || v > 1 {
			badRequest(w, "min_similarity must be between 0 and 1")
			return
		}
		opts.MinSimilarity = v
	}
	var err error
	if opts.Limit, err = queryInt(r, "limit"); err != nil {
		badRequest(w, err.Error())
		return
	}
	if opts.TopN, err = queryInt(r, "top_n"); err != nil {
		badRequest(w, err.Error())
		return
	}

	groups, err := h.engine.Duplicates(r.Context(), caller(r).TenantID, t, opts)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if groups == nil {
		groups = []vista.DuplicateGroup{}
	}
	writeJSON(w, http.StatusOK, groups)
}

func (h *Handler) duplicateStats(w http.ResponseWriter, r *http.Request) {
	t, ok := entityType(w, r)
	if !ok {
		return
	}
	s, err := h.engine.DuplicateStats(r.Context(), caller(r).TenantID, t)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *Handler) promote(w http.ResponseWriter, r *http.Request) {
	t, ok := entityType(w, r)
	if !ok {
		return
	}
	who := caller(r)
	res, err := h.engine.Promote(r.Context(), who.TenantID, t, who.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) linkDepartmentCode(w http.ResponseWriter, r *http.Request) {
	var body struct {
		DepartmentCode string `json:"department_code"`
		DepartmentID   string `json:"department_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	deptID, err := uuid.Parse(body.DepartmentID)
	if err != nil {
		badRequest(w, "department_id must be a uuid")
		return
	}

	counts, err := h.engine.LinkDepartmentCode(r.Context(), caller(r).TenantID, body.DepartmentCode, deptID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

func (h *Handler) autoLinkDepartments(w http.ResponseWriter, r *http.Request) {
	counts, err := h.engine.AutoLinkDepartments(r.Context(), caller(r).TenantID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, counts)
}
