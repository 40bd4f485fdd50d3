package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ferhatknd/alan-dal-ders-sub000/internal/catalog"
	"github.com/ferhatknd/alan-dal-ders-sub000/internal/export"
	"github.com/ferhatknd/alan-dal-ders-sub000/internal/tableview"
)

const (
	keyTable      = "adc:table"
	keyOptions    = "adc:options"
	keyCachedData = "adc:cached-data"
)

// tableRows returns the course table, from cache when possible.
func (s *Server) tableRows(ctx context.Context) ([]catalog.CourseRow, error) {
	if s.deps.Cache != nil {
		var rows []catalog.CourseRow
		if s.deps.Cache.GetJSON(ctx, keyTable, &rows) {
			return rows, nil
		}
	}
	rows, err := s.deps.Upstream.TableData(ctx)
	if err != nil {
		return nil, err
	}
	if s.deps.Cache != nil {
		s.deps.Cache.SetJSON(ctx, keyTable, rows, s.deps.CacheTTL)
	}
	return rows, nil
}

// invalidateTable drops the cached table after any write-through.
func (s *Server) invalidateTable(ctx context.Context) {
	if s.deps.Cache != nil {
		_ = s.deps.Cache.Invalidate(ctx, keyTable, keyCachedData, keyOptions)
	}
}

// queryFromRequest maps URL parameters onto a table query. Filter values
// repeat under their column name: ?alan_adi=X&alan_adi=Y&sinif=10.
func queryFromRequest(values url.Values) tableview.Query {
	q := tableview.Query{
		Search: values.Get("q"),
		SortBy: values.Get("sort"),
		Desc:   values.Get("desc") == "true" || values.Get("desc") == "1",
	}
	for _, col := range tableview.Columns {
		if vals := values[col]; len(vals) > 0 {
			if q.Filters == nil {
				q.Filters = map[string][]string{}
			}
			q.Filters[col] = vals
		}
	}
	return q
}

func (s *Server) handleTable(w http.ResponseWriter, r *http.Request) {
	rows, err := s.tableRows(r.Context())
	if err != nil {
		respondUpstreamError(w, err)
		return
	}
	view := tableview.Apply(rows, queryFromRequest(r.URL.Query()))
	respondJSON(w, http.StatusOK, map[string]any{
		"rows":  view,
		"total": len(rows),
		"shown": len(view),
	})
}

func (s *Server) handleFacets(w http.ResponseWriter, r *http.Request) {
	col := r.URL.Query().Get("column")
	valid := false
	for _, c := range tableview.Columns {
		if c == col {
			valid = true
			break
		}
	}
	if !valid {
		respondError(w, http.StatusBadRequest, "invalid_column", fmt.Sprintf("unknown column %q", col))
		return
	}

	rows, err := s.tableRows(r.Context())
	if err != nil {
		respondUpstreamError(w, err)
		return
	}
	facets := tableview.Facets(rows, queryFromRequest(r.URL.Query()), col, r.URL.Query().Get("narrow"))
	respondJSON(w, http.StatusOK, map[string]any{
		"column": col,
		"values": facets,
	})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	rows, err := s.tableRows(r.Context())
	if err != nil {
		respondUpstreamError(w, err)
		return
	}
	view := tableview.Apply(rows, queryFromRequest(r.URL.Query()))

	name := fmt.Sprintf("dersler-%s.xlsx", time.Now().Format("2006-01-02"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	if err := export.WriteXLSX(w, view); err != nil {
		// Headers are out; all we can do is log.
		slog.Error("xlsx export failed mid-stream", "error", err)
		return
	}
}

func (s *Server) handleUpdateRow(w http.ResponseWriter, r *http.Request) {
	dersID, err := strconv.Atoi(chi.URLParam(r, "dersID"))
	if err != nil || dersID <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_id", "ders id must be a positive integer")
		return
	}

	var updates map[string]any
	if !decodeBody(w, r, &updates) {
		return
	}
	if len(updates) == 0 {
		respondError(w, http.StatusBadRequest, "validation_error", "no fields to update")
		return
	}

	if err := s.deps.Upstream.UpdateRow(r.Context(), dersID, updates); err != nil {
		respondUpstreamError(w, err)
		return
	}
	s.invalidateTable(r.Context())
	respondJSON(w, http.StatusOK, map[string]any{"ders_id": dersID})
}

func (s *Server) handleCachedData(w http.ResponseWriter, r *http.Request) {
	if s.deps.Cache != nil {
		var raw json.RawMessage
		if s.deps.Cache.GetJSON(r.Context(), keyCachedData, &raw) {
			respondJSON(w, http.StatusOK, raw)
			return
		}
	}
	raw, err := s.deps.Upstream.CachedData(r.Context())
	if err != nil {
		respondUpstreamError(w, err)
		return
	}
	if s.deps.Cache != nil {
		s.deps.Cache.SetJSON(r.Context(), keyCachedData, raw, s.deps.CacheTTL)
	}
	respondJSON(w, http.StatusOK, raw)
}

func (s *Server) handleOptions(w http.ResponseWriter, r *http.Request) {
	if s.deps.Cache != nil {
		var opts catalog.Options
		if s.deps.Cache.GetJSON(r.Context(), keyOptions, &opts) {
			respondJSON(w, http.StatusOK, opts)
			return
		}
	}
	opts, err := s.deps.Upstream.AreaBranchOptions(r.Context())
	if err != nil {
		respondUpstreamError(w, err)
		return
	}
	if s.deps.Cache != nil {
		s.deps.Cache.SetJSON(r.Context(), keyOptions, opts, s.deps.CacheTTL)
	}
	respondJSON(w, http.StatusOK, opts)
}

// handleBulkSave forwards an edited course set. Each item succeeds or fails
// on its own; the shell keeps failed items pending and drops the rest.
func (s *Server) handleBulkSave(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Courses []catalog.Course `json:"courses"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.Courses) == 0 {
		respondError(w, http.StatusBadRequest, "validation_error", "courses must not be empty")
		return
	}

	results, err := s.deps.Upstream.BulkSave(r.Context(), req.Courses)
	if err != nil {
		respondUpstreamError(w, err)
		return
	}
	s.invalidateTable(r.Context())
	respondJSON(w, http.StatusOK, map[string]any{"results": results})
}

// handleStatistics merges backend counters with the console's accumulated
// run counters; the live run wins on key collisions.
func (s *Server) handleStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := s.deps.Upstream.Statistics(r.Context())
	if err != nil {
		respondUpstreamError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, stats.Merge(s.deps.Console.Stats()))
}
