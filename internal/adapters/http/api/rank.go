package api

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/okian/noderank/internal/domain/encoding"
	"github.com/okian/noderank/internal/domain/errkind"
	"github.com/okian/noderank/internal/domain/model"
)

// RankHandler handles ranking requests.
type RankHandler struct {
	deps Dependencies
}

// NewRankHandler creates a new rank handler.
func NewRankHandler(deps Dependencies) *RankHandler {
	return &RankHandler{deps: deps}
}

// rankRequest mirrors the OpenAPI schema for POST /models/{id}/test.
type rankRequest struct {
	Dataset       json.RawMessage `json:"dataset"`
	NumberOfNodes json.Number     `json:"numberOfNodes"`
}

type rankResponse struct {
	TopNodes []model.ScoredCandidate `json:"topNodes"`
}

func (req rankRequest) parse() ([]model.FeatureRecord, int, error) {
	const op = "api.rank"
	if len(bytes.TrimSpace(req.Dataset)) == 0 {
		return nil, 0, errkind.New(op, errkind.ErrValidation, "dataset is required")
	}
	if req.NumberOfNodes == "" {
		return nil, 0, errkind.WrapKind(op, errkind.ErrValidation, ErrMissingTopCount)
	}
	topK, err := req.NumberOfNodes.Float64()
	if err != nil || !encoding.IsInteger(topK) {
		return nil, 0, errkind.New(op, errkind.ErrValidation, "numberOfNodes must be an integer")
	}
	raw, err := encoding.DecodeRecordsBytes(req.Dataset)
	if err != nil {
		return nil, 0, err
	}
	candidates, err := encoding.ParseRecords(raw)
	if err != nil {
		return nil, 0, err
	}
	return candidates, int(topK), nil
}

// HandleRank handles POST /models/{id}/test requests.
func (h *RankHandler) HandleRank(w http.ResponseWriter, r *http.Request) {
	const op = "api.rank"
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req rankRequest
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		writeDomainError(w, decodeError(op, err))
		return
	}
	candidates, topK, err := req.parse()
	if err != nil {
		writeDomainError(w, err)
		return
	}
	top, err := h.deps.RankCandidates(r.Context(), id, candidates, topK)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rankResponse{TopNodes: top})
}
