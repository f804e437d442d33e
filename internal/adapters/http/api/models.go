package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/okian/noderank/internal/domain/encoding"
	"github.com/okian/noderank/internal/domain/errkind"
)

// ModelsHandler handles model lifecycle requests.
type ModelsHandler struct {
	deps Dependencies
}

// NewModelsHandler creates a new models handler.
func NewModelsHandler(deps Dependencies) *ModelsHandler {
	return &ModelsHandler{deps: deps}
}

// createRequest mirrors the OpenAPI schema for POST /models.
type createRequest struct {
	Name     string  `json:"name"`
	Metadata *string `json:"metadata"`
}

type deleteResponse struct {
	Message         string `json:"message"`
	ArtifactRemoved bool   `json:"artifactRemoved"`
}

func decodeError(op string, err error) error {
	return errkind.WrapKind(op, errkind.ErrValidation, err)
}

// HandleCreate handles POST /models requests.
func (h *ModelsHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	const op = "api.create_model"
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDomainError(w, decodeError(op, err))
		return
	}
	rec, err := h.deps.CreateModel(r.Context(), req.Name, req.Metadata)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

// HandleList handles GET /models requests.
func (h *ModelsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	recs, err := h.deps.ListModels(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

// HandleGet handles GET /models/{id} requests.
func (h *ModelsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	rec, err := h.deps.GetModel(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// HandleTrain handles PUT /models/{id}/train requests. The body is a JSON
// array of labeled records.
func (h *ModelsHandler) HandleTrain(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	raw, err := encoding.DecodeRecords(r.Body)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	dataset, err := encoding.ParseRecords(raw)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	res, err := h.deps.TrainModel(r.Context(), id, dataset)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res.Record)
}

// HandleDownload handles GET /models/{id}/download requests.
func (h *ModelsHandler) HandleDownload(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	rc, size, err := h.deps.FetchArtifact(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	defer func() { _ = rc.Close() }()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", `attachment; filename="`+id+`.json"`)
	w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, rc)
}

// HandleDelete handles DELETE /models/{id} requests.
func (h *ModelsHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	res, err := h.deps.DeleteModel(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, deleteResponse{
		Message:         "Model deleted successfully",
		ArtifactRemoved: res.ArtifactRemoved,
	})
}
