package api

import (
	"net/http"

	"github.com/okian/ladder/internal/domain/model"
)

// MetaHandler serves the report metadata routes.
type MetaHandler struct {
	*base
	deps Dependencies
}

type metaBody struct {
	TeacherName string `json:"teacher_name" validate:"max=120"`
	SubjectName string `json:"subject_name" validate:"max=120"`
}

// HandleGet handles GET /meta.
func (h *MetaHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	m, err := h.deps.Meta(r.Context())
	if err != nil {
		h.fail(w, r, Wrap("api.meta", err))
		return
	}
	writeJSON(w, http.StatusOK, metaBody{TeacherName: m.TeacherName, SubjectName: m.SubjectName})
}

// HandlePut handles PUT /meta.
func (h *MetaHandler) HandlePut(w http.ResponseWriter, r *http.Request) {
	const op = "api.meta_put"
	var req metaBody
	if err := h.decode(w, r, op, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	m := model.Meta{TeacherName: req.TeacherName, SubjectName: req.SubjectName}
	if err := h.deps.SaveMeta(r.Context(), m); err != nil {
		h.fail(w, r, Wrap(op, err))
		return
	}
	saved, err := h.deps.Meta(r.Context())
	if err != nil {
		h.fail(w, r, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, metaBody{TeacherName: saved.TeacherName, SubjectName: saved.SubjectName})
}
