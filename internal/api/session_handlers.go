package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ferhatknd/alan-dal-ders-sub000/internal/catalog"
	"github.com/ferhatknd/alan-dal-ders-sub000/internal/editor"
)

type sessionView struct {
	ID       string         `json:"id"`
	Ders     catalog.Course `json:"ders"`
	Links    editor.Links   `json:"links"`
	Dirty    bool           `json:"dirty"`
	Fallback bool           `json:"fallback"`
}

func viewOf(s *editor.Session) sessionView {
	return sessionView{
		ID:       s.ID,
		Ders:     s.Snapshot(),
		Links:    s.LinkView(),
		Dirty:    s.Dirty(),
		Fallback: s.UsedFallback(),
	}
}

// session resolves the {id} URL parameter or writes a 404.
func (s *Server) session(w http.ResponseWriter, r *http.Request) (*editor.Session, bool) {
	sess, err := s.deps.Sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return nil, false
	}
	return sess, true
}

// pathIndex reads a zero-based index URL parameter.
func pathIndex(r *http.Request, name string) (int, error) {
	i, err := strconv.Atoi(chi.URLParam(r, name))
	if err != nil || i < 0 {
		return 0, errors.New("geçersiz sıra numarası")
	}
	return i, nil
}

// respondEdit writes the refreshed session view, or maps a rejected edit
// onto a 422 with the rejection text verbatim.
func respondEdit(w http.ResponseWriter, sess *editor.Session, err error) {
	if err != nil {
		respondError(w, http.StatusUnprocessableEntity, "edit_rejected", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, viewOf(sess))
}

func (s *Server) handleOpenSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DersID int                `json:"ders_id"`
		Row    *catalog.CourseRow `json:"row,omitempty"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.DersID <= 0 {
		respondError(w, http.StatusBadRequest, "validation_error", "ders_id is required")
		return
	}

	sess, err := s.deps.Sessions.Open(r.Context(), req.DersID, req.Row)
	if err != nil {
		respondUpstreamError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, viewOf(sess))
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, viewOf(sess))
}

func (s *Server) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	dirty, err := s.deps.Sessions.Close(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"dirty": dirty})
}

func (s *Server) handleSessionLayout(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	viewport, err := strconv.Atoi(r.URL.Query().Get("viewport"))
	if err != nil || viewport <= 0 {
		respondError(w, http.StatusBadRequest, "validation_error", "viewport must be a positive integer")
		return
	}
	width := editor.PanelWidth(len(sess.Snapshot().DersAdi), viewport)
	respondJSON(w, http.StatusOK, map[string]int{"panel_width": width})
}

func (s *Server) handleUpdateScalars(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var updates map[string]any
	if !decodeBody(w, r, &updates) {
		return
	}
	sess.UpdateScalars(updates)
	respondJSON(w, http.StatusOK, viewOf(sess))
}

// Unit handlers

func (s *Server) handleAddUnit(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req struct {
		Adi  string `json:"adi"`
		Sure int    `json:"sure"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	respondEdit(w, sess, sess.AddUnit(req.Adi, req.Sure))
}

func (s *Server) handleUpdateUnit(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	u, err := pathIndex(r, "u")
	if err != nil {
		respondError(w, http.StatusBadRequest, "validation_error", err.Error())
		return
	}
	var patch editor.UnitPatch
	if !decodeBody(w, r, &patch) {
		return
	}
	respondEdit(w, sess, sess.UpdateUnit(u, patch))
}

func (s *Server) handleRemoveUnit(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	u, err := pathIndex(r, "u")
	if err != nil {
		respondError(w, http.StatusBadRequest, "validation_error", err.Error())
		return
	}
	respondEdit(w, sess, sess.RemoveUnit(u))
}

func (s *Server) handleDivideTopics(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	u, err := pathIndex(r, "u")
	if err != nil {
		respondError(w, http.StatusBadRequest, "validation_error", err.Error())
		return
	}
	var req struct {
		Text string `json:"text"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	respondEdit(w, sess, sess.DivideTopics(u, req.Text))
}

func (s *Server) handleGrouped(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	u, err := pathIndex(r, "u")
	if err != nil {
		respondError(w, http.StatusBadRequest, "validation_error", err.Error())
		return
	}
	grouped, err := sess.Grouped(u)
	if err != nil {
		respondError(w, http.StatusUnprocessableEntity, "edit_rejected", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, grouped)
}

// Topic handlers

func (s *Server) handleAddTopic(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	u, err := pathIndex(r, "u")
	if err != nil {
		respondError(w, http.StatusBadRequest, "validation_error", err.Error())
		return
	}
	var req struct {
		Adi string `json:"adi"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	respondEdit(w, sess, sess.AddTopic(u, req.Adi))
}

func (s *Server) handleUpdateTopic(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	u, t, err := unitTopic(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "validation_error", err.Error())
		return
	}
	var req struct {
		Adi string `json:"adi"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	respondEdit(w, sess, sess.UpdateTopic(u, t, req.Adi))
}

func (s *Server) handleRemoveTopic(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	u, t, err := unitTopic(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "validation_error", err.Error())
		return
	}
	respondEdit(w, sess, sess.RemoveTopic(u, t))
}

func (s *Server) handleDivideOutcomes(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	u, t, err := unitTopic(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "validation_error", err.Error())
		return
	}
	var req struct {
		Text string `json:"text"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	respondEdit(w, sess, sess.DivideOutcomes(u, t, req.Text))
}

func (s *Server) handleSetPrimaryOutcome(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	u, t, err := unitTopic(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "validation_error", err.Error())
		return
	}
	var req struct {
		Aciklama string `json:"aciklama"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	respondEdit(w, sess, sess.SetPrimaryOutcome(u, t, req.Aciklama))
}

// Outcome handlers

func (s *Server) handleAddOutcome(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	u, t, err := unitTopic(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "validation_error", err.Error())
		return
	}
	var req struct {
		Aciklama string `json:"aciklama"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	respondEdit(w, sess, sess.AddOutcome(u, t, req.Aciklama))
}

func (s *Server) handleUpdateOutcome(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	u, t, o, err := unitTopicOutcome(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "validation_error", err.Error())
		return
	}
	var req struct {
		Aciklama string `json:"aciklama"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	respondEdit(w, sess, sess.UpdateOutcome(u, t, o, req.Aciklama))
}

func (s *Server) handleRemoveOutcome(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	u, t, o, err := unitTopicOutcome(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "validation_error", err.Error())
		return
	}
	respondEdit(w, sess, sess.RemoveOutcome(u, t, o))
}

func unitTopic(r *http.Request) (u, t int, err error) {
	if u, err = pathIndex(r, "u"); err != nil {
		return
	}
	t, err = pathIndex(r, "t")
	return
}

func unitTopicOutcome(r *http.Request) (u, t, o int, err error) {
	if u, t, err = unitTopic(r); err != nil {
		return
	}
	o, err = pathIndex(r, "o")
	return
}

// Cross-link, save, copy, import

func (s *Server) handleToggleLink(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req struct {
		Owner  string `json:"owner"`
		Target string `json:"target"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	respondEdit(w, sess, sess.ToggleLink(req.Owner, req.Target))
}

func (s *Server) handleSaveSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	if violations := ValidateCourse(sess.Snapshot()); len(violations) > 0 {
		respondJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"valid":      false,
			"violations": violations,
		})
		return
	}

	message, err := sess.Save(r.Context(), s.deps.Upstream)
	if err != nil {
		respondUpstreamError(w, err)
		return
	}
	s.invalidateTable(r.Context())
	respondJSON(w, http.StatusOK, map[string]any{
		"message": message,
		"ders":    sess.Snapshot(),
	})
}

func (s *Server) handleCopySession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req struct {
		AlanID int `json:"alan_id"`
		DalID  int `json:"dal_id"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := sess.Copy(r.Context(), s.deps.Upstream, req.AlanID, req.DalID); err != nil {
		if errors.Is(err, editor.ErrCopyTargetMissing) {
			respondError(w, http.StatusBadRequest, "validation_error", err.Error())
			return
		}
		respondUpstreamError(w, err)
		return
	}
	s.invalidateTable(r.Context())
	respondJSON(w, http.StatusOK, map[string]bool{"copied": true})
}

func (s *Server) handleImportUnits(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req struct {
		DbfPath string `json:"dbf_path"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.DbfPath == "" {
		respondError(w, http.StatusBadRequest, "validation_error", "dbf_path is required")
		return
	}
	count, err := sess.ImportUnits(r.Context(), s.deps.Upstream, req.DbfPath)
	if err != nil {
		respondUpstreamError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"imported_units": count,
		"ders":           sess.Snapshot(),
	})
}
