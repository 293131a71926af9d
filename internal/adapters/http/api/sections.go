package api

import (
	"bytes"
	"fmt"
	"mime"
	"net/http"
	"strings"

	service "github.com/okian/ladder/internal/app"
	"github.com/okian/ladder/internal/domain/report"
	"github.com/okian/ladder/internal/domain/tier"
)

// SectionsHandler serves roster, transition, reset and report routes.
type SectionsHandler struct {
	*base
	deps Dependencies
}

type sectionsResponse struct {
	Sections []string `json:"sections"`
}

type studentsResponse struct {
	Section  string                `json:"section"`
	Students []service.StudentTier `json:"students"`
}

// transitionRequest is the body of POST /sections/{section}/transitions.
type transitionRequest struct {
	StudentID string `json:"student_id" validate:"required,max=64"`
	Tier      string `json:"tier" validate:"required,tier"`
}

// HandleList handles GET /sections.
func (h *SectionsHandler) HandleList(w http.ResponseWriter, _ *http.Request) {
	sections := h.deps.Sections()
	if sections == nil {
		sections = []string{}
	}
	writeJSON(w, http.StatusOK, sectionsResponse{Sections: sections})
}

// HandleStudents handles GET /sections/{section}/students.
func (h *SectionsHandler) HandleStudents(w http.ResponseWriter, r *http.Request) {
	section := r.PathValue("section")
	students, err := h.deps.Students(r.Context(), section)
	if err != nil {
		h.fail(w, r, Wrap("api.students", err))
		return
	}
	writeJSON(w, http.StatusOK, studentsResponse{Section: section, Students: students})
}

// HandleTransition handles POST /sections/{section}/transitions.
func (h *SectionsHandler) HandleTransition(w http.ResponseWriter, r *http.Request) {
	const op = "api.transition"
	var req transitionRequest
	if err := h.decode(w, r, op, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	to, err := tier.Parse(req.Tier)
	if err != nil {
		h.fail(w, r, WrapKind(op, ErrBadRequest, err))
		return
	}
	res, err := h.deps.Transition(r.Context(), r.PathValue("section"), strings.TrimSpace(req.StudentID), to)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleReset handles POST /sections/{section}/reset.
func (h *SectionsHandler) HandleReset(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.ResetSection(r.Context(), r.PathValue("section")); err != nil {
		h.fail(w, r, Wrap("api.reset", err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleReport handles GET /sections/{section}/report. With ?format=csv the
// report is sent as a CSV attachment.
func (h *SectionsHandler) HandleReport(w http.ResponseWriter, r *http.Request) {
	const op = "api.report"
	rep, err := h.deps.SectionReport(r.Context(), r.PathValue("section"))
	if err != nil {
		h.fail(w, r, Wrap(op, err))
		return
	}

	switch format := r.URL.Query().Get("format"); format {
	case "", "json":
		writeJSON(w, http.StatusOK, rep)
	case "csv":
		var buf bytes.Buffer
		if err := report.WriteSectionCSV(&buf, rep); err != nil {
			h.fail(w, r, Wrap(op, err))
			return
		}
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment",
			map[string]string{"filename": report.FileName(rep.Section, rep.Subject, "csv")}))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(buf.Bytes())
	default:
		h.fail(w, r, NewKind(op, fmt.Errorf("%w: unknown format %q", ErrBadRequest, format)))
	}
}
