package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/carebrief/carebrief-backend/internal/orchestrator"
	"github.com/carebrief/carebrief-backend/internal/patientctx"
	"github.com/carebrief/carebrief-backend/internal/store"
	"github.com/carebrief/carebrief-backend/internal/summary"
)

type PatientHandler struct {
	store     *store.Store
	assembler *patientctx.Assembler
}

func NewPatientHandler(st *store.Store, a *patientctx.Assembler) *PatientHandler {
	return &PatientHandler{store: st, assembler: a}
}

// GET /v1/patients
func (h *PatientHandler) ListPatients(c *gin.Context) {
	ids := h.store.ListPatientIDs()
	if ids == nil {
		ids = []string{}
	}
	RespondOK(c, gin.H{"patients": ids})
}

type recordView struct {
	Fields map[string]string `json:"fields"`
	Source sourceView        `json:"source"`
}

type sourceView struct {
	Origin string `json:"origin"`
	Date   string `json:"date"`
}

// GET /v1/patients/:id/data
func (h *PatientHandler) GetPatientData(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	pctx := h.assembler.Assemble(id)
	if pctx.Empty() {
		RespondError(c, http.StatusNotFound, "patient_not_found", errors.New("no records for patient "+id))
		return
	}

	data := make(map[string][]recordView, len(store.AllTypes))
	for _, t := range store.AllTypes {
		views := make([]recordView, 0, len(pctx.RecordsByType[t]))
		for _, rec := range pctx.RecordsByType[t] {
			views = append(views, recordView{
				Fields: rec.Fields,
				Source: sourceView{Origin: rec.Source.Origin, Date: rec.Source.Date},
			})
		}
		data[string(t)] = views
	}
	RespondOK(c, gin.H{"patient_id": id, "records": data})
}

type SummaryHandler struct {
	orch             *orchestrator.Orchestrator
	citationsDefault bool
}

func NewSummaryHandler(orch *orchestrator.Orchestrator, citationsDefault bool) *SummaryHandler {
	return &SummaryHandler{orch: orch, citationsDefault: citationsDefault}
}

type generateRequest struct {
	PatientID        string `json:"patient_id"`
	IncludeCitations *bool  `json:"include_citations"`
	ProviderOverride string `json:"provider_override"`
}

type attemptView struct {
	Provider string `json:"provider"`
	Reason   string `json:"reason"`
}

// POST /v1/summaries/generate
func (h *SummaryHandler) Generate(c *gin.Context) {
	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request_body", err)
		return
	}
	if strings.TrimSpace(req.PatientID) == "" {
		RespondError(c, http.StatusBadRequest, "missing_patient_id", errors.New("patient_id is required"))
		return
	}

	include := h.citationsDefault
	if req.IncludeCitations != nil {
		include = *req.IncludeCitations
	}

	res, err := h.orch.Run(c.Request.Context(), orchestrator.Request{
		PatientID:        req.PatientID,
		IncludeCitations: include,
		ProviderOverride: strings.TrimSpace(req.ProviderOverride),
	})
	if err != nil {
		h.respondGenerateError(c, err)
		return
	}

	RespondOK(c, gin.H{
		"patient_id":    res.PatientID,
		"sections":      sectionsView(res),
		"provider_used": res.ProviderUsed,
		"generated_at":  res.GeneratedAt,
	})
}

func (h *SummaryHandler) respondGenerateError(c *gin.Context, err error) {
	var apf *orchestrator.AllProvidersFailedError
	switch {
	case errors.Is(err, orchestrator.ErrPatientNotFound):
		RespondError(c, http.StatusNotFound, "patient_not_found", err)
	case errors.Is(err, orchestrator.ErrUnknownProvider):
		RespondError(c, http.StatusBadRequest, "unknown_provider", err)
	case errors.As(err, &apf):
		attempts := make([]attemptView, 0, len(apf.Attempts))
		for _, a := range apf.Attempts {
			attempts = append(attempts, attemptView{Provider: a.Provider, Reason: a.Reason})
		}
		c.JSON(http.StatusBadGateway, gin.H{
			"error": APIError{
				Message: "all providers failed",
				Code:    "all_providers_failed",
			},
			"attempts": attempts,
		})
	default:
		RespondError(c, http.StatusInternalServerError, "summary_generation_failed", err)
	}
}

func sectionsView(res summary.Result) gin.H {
	out := gin.H{}
	for _, sec := range res.Sections {
		citations := make([]string, 0, len(sec.Citations))
		for _, cit := range sec.Citations {
			citations = append(citations, cit.String())
		}
		out[string(sec.Name)] = gin.H{
			"content":   sec.Narrative,
			"citations": citations,
		}
	}
	return out
}
