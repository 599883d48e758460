package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"sampleflow/internal/adapters/exports"
	"sampleflow/internal/board"
	"sampleflow/internal/core"
	"sampleflow/internal/notify"
	"sampleflow/pkg/domain"
)

func roleParam(r *http.Request) (domain.Role, error) {
	role := domain.Role(chi.URLParam(r, "role"))
	if !role.Valid() {
		return "", domain.ValidationError{Field: "role", Reason: fmt.Sprintf("unknown role %q", role)}
	}
	return role, nil
}

func boolParam(r *http.Request, name string) (bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, domain.ValidationError{Field: name, Reason: fmt.Sprintf("not a boolean: %q", raw)}
	}
	return v, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseSort(key, dir string) (domain.SortPreference, error) {
	pref := domain.SortPreference{Key: domain.SortKey(key)}
	switch pref.Key {
	case domain.SortNone, domain.SortSampleID, domain.SortSamplingDate, domain.SortCompleted:
	default:
		return pref, domain.ValidationError{Field: "sort", Reason: fmt.Sprintf("unknown sort key %q", key)}
	}
	switch strings.ToLower(dir) {
	case "", "asc":
	case "desc":
		pref.Descending = true
	default:
		return pref, domain.ValidationError{Field: "dir", Reason: fmt.Sprintf("unknown direction %q", dir)}
	}
	return pref, nil
}

// boardQuery builds a board.Query from the request. Without an explicit
// sort the user's stored preference applies.
func (s *Server) boardQuery(r *http.Request, role domain.Role) (board.Query, error) {
	q := r.URL.Query()
	user := strings.TrimSpace(q.Get("user"))
	mine, err := boolParam(r, "mine")
	if err != nil {
		return board.Query{}, err
	}
	incomplete, err := boolParam(r, "incomplete")
	if err != nil {
		return board.Query{}, err
	}
	query := board.Query{
		Search:         q.Get("q"),
		Methods:        splitList(q.Get("methods")),
		IncompleteOnly: incomplete,
	}
	if mine {
		if user == "" {
			return board.Query{}, domain.ValidationError{Field: "user", Reason: "mine=true requires user"}
		}
		query.AssignedTo = user
	}
	if q.Has("sort") {
		pref, err := parseSort(q.Get("sort"), q.Get("dir"))
		if err != nil {
			return board.Query{}, err
		}
		query.Sort = pref
	} else if user != "" {
		if pref, ok := s.dispatcher.SortPreference(role, user); ok {
			query.Sort = pref
		}
	}
	return query, nil
}

func (s *Server) getBoard(w http.ResponseWriter, r *http.Request) {
	role, err := roleParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	query, err := s.boardQuery(r, role)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.dispatcher.Board(role, query))
}

type sortBody struct {
	User string `json:"user"`
	Key  string `json:"key"`
	Dir  string `json:"dir"`
}

func (s *Server) putSort(w http.ResponseWriter, r *http.Request) {
	role, err := roleParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var body sortBody
	if err := decodeJSON(r.Body, &body); err != nil {
		writeError(w, err)
		return
	}
	pref, err := parseSort(body.Key, body.Dir)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.dispatcher.SetSortPreference(r.Context(), role, body.User, pref); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pref)
}

type actionFunc func(ctx context.Context, body io.Reader) (core.Mutation, error)

func bind[T any](fn func(context.Context, T) (core.Mutation, error)) actionFunc {
	return func(ctx context.Context, body io.Reader) (core.Mutation, error) {
		var req T
		if err := decodeJSON(body, &req); err != nil {
			return core.Mutation{}, err
		}
		return fn(ctx, req)
	}
}

func (s *Server) actionTable() map[core.ActionKind]actionFunc {
	d := s.dispatcher
	return map[core.ActionKind]actionFunc{
		core.ActionMoveCard:          bind(d.MoveCard),
		core.ActionUpdateSampleField: bind(d.UpdateSampleField),
		core.ActionToggleMethod:      bind(d.ToggleMethod),
		core.ActionResolveConflict:   bind(d.ResolveConflict),
		core.ActionAddComment:        bind(d.AddComment),
		core.ActionCreateSample:      bind(d.CreateSample),
		core.ActionDeleteSample:      bind(d.DeleteSample),
		core.ActionRestoreSample:     bind(d.RestoreSample),
		core.ActionAdminStore:        bind(d.AdminStore),
		core.ActionAdminReturn:       bind(d.AdminReturn),
		core.ActionAssignOperator:    bind(d.AssignOperator),
		core.ActionPlanAnalysis:      bind(d.PlanAnalysis),
	}
}

func (s *Server) postAction(w http.ResponseWriter, r *http.Request) {
	kind := core.ActionKind(chi.URLParam(r, "kind"))
	fn, ok := s.actions[kind]
	if !ok {
		writeError(w, fmt.Errorf("action %q: %w", kind, errUnknownRoute))
		return
	}
	m, err := fn(r.Context(), r.Body)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, m)
}

func (s *Server) listMutations(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.dispatcher.Mutations())
}

func (s *Server) getMutation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	m, ok := s.dispatcher.Mutation(id)
	if !ok {
		writeError(w, fmt.Errorf("mutation %s: %w", id, errUnknownRoute))
		return
	}
	writeJSON(w, http.StatusOK, m)
}

type undoEntry struct {
	Tag core.UndoTag `json:"tag"`
	core.UndoMeta
}

func (s *Server) getUndo(w http.ResponseWriter, _ *http.Request) {
	records := s.dispatcher.UndoRecords()
	entries := make([]undoEntry, 0, len(records))
	for _, rec := range records {
		entries = append(entries, undoEntry{Tag: rec.Tag(), UndoMeta: rec.Meta()})
	}
	writeJSON(w, http.StatusOK, map[string]any{"depth": len(entries), "records": entries})
}

func (s *Server) postUndo(w http.ResponseWriter, r *http.Request) {
	m, err := s.dispatcher.Undo(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, m)
}

func (s *Server) listNotices(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.dispatcher.Notices())
}

func (s *Server) postRefresh(w http.ResponseWriter, r *http.Request) {
	if err := s.dispatcher.Refresh(r.Context()); err != nil {
		writeJSON(w, http.StatusBadGateway, errorBody{Error: err.Error()})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) getFilterMethods(w http.ResponseWriter, _ *http.Request) {
	methods := s.dispatcher.FilterMethods()
	if methods == nil {
		methods = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"methods": methods})
}

func (s *Server) putFilterMethods(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Methods []string `json:"methods"`
	}
	if err := decodeJSON(r.Body, &body); err != nil {
		writeError(w, err)
		return
	}
	if err := s.dispatcher.SetFilterMethods(r.Context(), body.Methods); err != nil {
		writeJSON(w, http.StatusBadGateway, errorBody{Error: err.Error()})
		return
	}
	s.getFilterMethods(w, r)
}

func (s *Server) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.dispatcher.Users(r.Context())
	if err != nil {
		writeJSON(w, http.StatusBadGateway, errorBody{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (s *Server) putUserRoles(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Roles []string `json:"roles"`
	}
	if err := decodeJSON(r.Body, &body); err != nil {
		writeError(w, err)
		return
	}
	user, err := s.dispatcher.UpdateUserRoles(r.Context(), chi.URLParam(r, "id"), body.Roles)
	if err != nil {
		if domain.IsValidation(err) {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusBadGateway, errorBody{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// observe feeds the unfiltered role board to the differ.
func (s *Server) observe(ctx context.Context, role domain.Role) ([]notify.InboxSummary, error) {
	return s.differ.Observe(ctx, s.dispatcher.Board(role, board.Query{}))
}

func inboxParam(r *http.Request, role domain.Role) (notify.Inbox, error) {
	inbox := notify.Inbox(chi.URLParam(r, "inbox"))
	owner, ok := inbox.Role()
	if !ok || owner != role {
		return "", fmt.Errorf("inbox %q for %s: %w", inbox, role, errUnknownRoute)
	}
	return inbox, nil
}

func (s *Server) getNotifications(w http.ResponseWriter, r *http.Request) {
	role, err := roleParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	summaries, err := s.observe(r.Context(), role)
	if err != nil {
		s.log.Warn("persist read state", "role", role, "error", err)
	}
	writeJSON(w, http.StatusOK, summaries)
}

func (s *Server) postReadAll(w http.ResponseWriter, r *http.Request) {
	role, err := roleParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	inbox, err := inboxParam(r, role)
	if err != nil {
		writeError(w, err)
		return
	}
	if _, err := s.observe(r.Context(), role); err != nil {
		s.log.Warn("persist read state", "role", role, "error", err)
	}
	if err := s.differ.MarkAllRead(r.Context(), inbox); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"inbox": inbox, "unread_count": s.differ.Unread(inbox)})
}

func (s *Server) postRead(w http.ResponseWriter, r *http.Request) {
	role, err := roleParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	inbox, err := inboxParam(r, role)
	if err != nil {
		writeError(w, err)
		return
	}
	card, err := s.differ.Open(r.Context(), s.dispatcher.Board(role, board.Query{}), inbox, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, card)
}

func (s *Server) postExport(w http.ResponseWriter, r *http.Request) {
	var in exports.Input
	if err := decodeJSON(r.Body, &in); err != nil {
		writeError(w, err)
		return
	}
	rec, err := s.exports.Enqueue(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, rec)
}

func (s *Server) getExport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, ok := s.exports.Get(id)
	if !ok {
		writeError(w, fmt.Errorf("%w: %s", exports.ErrNotFound, id))
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) listExports(w http.ResponseWriter, r *http.Request) {
	role := domain.Role(r.URL.Query().Get("role"))
	if !role.Valid() {
		writeError(w, domain.ValidationError{Field: "role", Reason: fmt.Sprintf("unknown role %q", role)})
		return
	}
	infos, err := s.exports.Stored(r.Context(), role)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, infos)
}

func (s *Server) downloadExport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	format := exports.Format(chi.URLParam(r, "format"))
	info, rc, err := s.exports.Open(r.Context(), id, format)
	if err != nil {
		writeError(w, err)
		return
	}
	defer rc.Close()
	if info.ContentType != "" {
		w.Header().Set("Content-Type", info.ContentType)
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", id+"."+string(format)))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		s.log.Warn("stream export artifact", "export_id", id, "error", err)
	}
}

func (s *Server) deleteExport(w http.ResponseWriter, r *http.Request) {
	removed, err := s.exports.Delete(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
}
