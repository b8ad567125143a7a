package httpapi

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/goliatone/go-rentreport/pkg/formstate"
	"github.com/goliatone/go-rentreport/pkg/model"
)

type formSummary struct {
	ID    string `json:"id"`
	Title string `json:"title,omitempty"`
}

type fieldCheck struct {
	Field   string `json:"field"`
	Valid   bool   `json:"valid"`
	Message string `json:"message,omitempty"`
}

func (s *Server) listForms(w http.ResponseWriter, _ *http.Request) {
	ids := s.forms.List()
	out := make([]formSummary, 0, len(ids))
	for _, id := range ids {
		form, err := s.forms.Get(id)
		if err != nil {
			continue
		}
		out = append(out, formSummary{ID: form.ID, Title: form.Title})
	}
	writeSuccess(w, http.StatusOK, out)
}

func (s *Server) lookupForm(w http.ResponseWriter, r *http.Request) (model.FormModel, bool) {
	form, err := s.forms.Get(chi.URLParam(r, "formID"))
	if err != nil {
		writeError(w, http.StatusNotFound, CodeNotFound, "form not found")
		return model.FormModel{}, false
	}
	return form, true
}

func (s *Server) getForm(w http.ResponseWriter, r *http.Request) {
	form, ok := s.lookupForm(w, r)
	if !ok {
		return
	}
	writeSuccess(w, http.StatusOK, form)
}

// formDefaults returns the initial values a client seeds the form with.
func (s *Server) formDefaults(w http.ResponseWriter, r *http.Request) {
	form, ok := s.lookupForm(w, r)
	if !ok {
		return
	}
	writeSuccess(w, http.StatusOK, formstate.Defaults(form))
}

// validateForm runs full validation without submitting.
func (s *Server) validateForm(w http.ResponseWriter, r *http.Request) {
	form, ok := s.lookupForm(w, r)
	if !ok {
		return
	}
	raw, err := decodeValues(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}
	_, result, err := s.validator.ValidateRaw(form, raw)
	if err != nil {
		s.internalError(w, r, "validate form", err)
		return
	}
	writeSuccess(w, http.StatusOK, result)
}

// validateField checks one field path against the posted values, for
// feedback while the user is typing.
func (s *Server) validateField(w http.ResponseWriter, r *http.Request) {
	form, ok := s.lookupForm(w, r)
	if !ok {
		return
	}
	path := chi.URLParam(r, "field")
	if _, found := form.Lookup(path); !found {
		writeError(w, http.StatusNotFound, CodeNotFound, "field not found")
		return
	}
	raw, err := decodeValues(w, r)
	if err != nil && !errors.Is(err, errEmptyBody) {
		writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}

	values, coerceErrs := model.Normalize(form, raw)
	message := coerceErrs[model.JoinPath(model.SplitPath(path)...)]
	if message == "" {
		message, err = s.validator.ValidateField(form, values, path)
		if err != nil {
			s.internalError(w, r, "validate field", err)
			return
		}
	}
	writeSuccess(w, http.StatusOK, fieldCheck{Field: path, Valid: message == "", Message: message})
}
