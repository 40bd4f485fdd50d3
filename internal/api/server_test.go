package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"golang.org/x/crypto/bcrypt"

	"github.com/ferhatknd/alan-dal-ders-sub000/internal/console"
	"github.com/ferhatknd/alan-dal-ders-sub000/internal/editor"
	"github.com/ferhatknd/alan-dal-ders-sub000/internal/upstream"
	"github.com/ferhatknd/alan-dal-ders-sub000/internal/viewer"
)

// fakeBackend speaks just enough of the scraper API for the handlers under
// test. Individual tests override fields to steer responses.
type fakeBackend struct {
	course string // JSON for /api/load?type=ders
	units  string // JSON for /api/load?type=ogrenme_birimi
}

func (b *fakeBackend) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/table-data", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[
			{"ders_id":42,"alan_adi":"Bilişim Teknolojileri","dal_adi":"Yazılım Geliştirme","ders_adi":"Algoritma ve Programlama","sinif":10,"ders_saati":4,"dbf_url":"dbf/a.docx"},
			{"ders_id":43,"alan_adi":"Elektrik-Elektronik","dal_adi":"Otomasyon","ders_adi":"Devre Analizi","sinif":11,"ders_saati":6}
		]`)
	})
	mux.HandleFunc("/api/get-statistics", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"alan":58,"ders":2}`)
	})
	mux.HandleFunc("/api/alan-dal-options", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"alanlar":[{"id":1,"adi":"Bilişim Teknolojileri"}],"dallar":{"1":[{"id":5,"adi":"Yazılım Geliştirme","alan_id":1}]}}`)
	})
	mux.HandleFunc("/api/get-cached-data", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"alanlar":{}}`)
	})
	mux.HandleFunc("/api/load", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("type") {
		case "ders":
			fmt.Fprintf(w, `{"success":true,"data":%s}`, b.course)
		case "ogrenme_birimi":
			fmt.Fprintf(w, `{"success":true,"data":%s}`, b.units)
		default:
			fmt.Fprint(w, `{"success":false,"error":"bilinmeyen tip"}`)
		}
	})
	mux.HandleFunc("/api/save", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"success":true,"message":"ders kaydedildi"}`)
	})
	mux.HandleFunc("/api/update-table-row", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"success":true}`)
	})
	mux.HandleFunc("/api/save-courses-to-db", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"success":true,"results":[{"ders_id":42,"success":true},{"ders_id":43,"success":false,"error":"sinif geçersiz"}]}`)
	})
	mux.HandleFunc("/api/convert-docx-to-pdf", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"success":true,"pdf_url":"converted/a.pdf","cached":false}`)
	})
	mux.HandleFunc("/api/scrape-alan-dal", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"type\":\"done\",\"message\":\"bitti\",\"stats\":{\"alan\":58}}\n\n")
	})
	mux.HandleFunc("/api/files/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		fmt.Fprint(w, "%PDF-1.4 fake")
	})
	return mux
}

func defaultFake() *fakeBackend {
	return &fakeBackend{
		course: `{"id":42,"ders_adi":"Algoritma ve Programlama","sinif":10,"ders_saati":4,"alan_id":1,"dal_id":5}`,
		units:  `[{"id":7,"adi":"Giriş","sure":8,"sira":1,"konular":[]}]`,
	}
}

// newTestServer wires real components over the fake backend and serves the
// router from an httptest server.
func newTestServer(t *testing.T, fake *fakeBackend, keyHash string) *httptest.Server {
	t.Helper()
	backend := httptest.NewServer(fake.handler())
	t.Cleanup(backend.Close)

	client := upstream.NewClient(upstream.WithBaseURL(backend.URL))
	srv := NewServer(Deps{
		Upstream:     client,
		Sessions:     editor.NewManager(client),
		Console:      console.New(client, console.DefaultOperations(), nil),
		Viewer:       viewer.New(client),
		AdminKeyHash: keyHash,
	})
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *apiError       `json:"error"`
}

func doJSON(t *testing.T, method, url string, body string) (int, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body == "" {
		reader = bytes.NewReader(nil)
	} else {
		reader = bytes.NewReader([]byte(body))
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("%s %s: decode envelope: %v", method, url, err)
	}
	return resp.StatusCode, env
}

func TestTable_SearchNarrowsRows(t *testing.T) {
	ts := newTestServer(t, defaultFake(), "")

	status, env := doJSON(t, http.MethodGet, ts.URL+"/api/table?q=algo", "")
	if status != http.StatusOK || !env.Success {
		t.Fatalf("status = %d, env = %+v", status, env)
	}

	var data struct {
		Rows  []map[string]any `json:"rows"`
		Total int              `json:"total"`
		Shown int              `json:"shown"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatal(err)
	}
	if data.Total != 2 || data.Shown != 1 {
		t.Errorf("total/shown = %d/%d, want 2/1", data.Total, data.Shown)
	}
	if data.Rows[0]["ders_adi"] != "Algoritma ve Programlama" {
		t.Errorf("row = %v", data.Rows[0])
	}
}

func TestTable_FilterAndSort(t *testing.T) {
	ts := newTestServer(t, defaultFake(), "")

	status, env := doJSON(t, http.MethodGet, ts.URL+"/api/table?sort=sinif&desc=true", "")
	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	var data struct {
		Rows []map[string]any `json:"rows"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatal(err)
	}
	if len(data.Rows) != 2 || data.Rows[0]["sinif"].(float64) != 11 {
		t.Errorf("rows not sorted desc by sinif: %v", data.Rows)
	}
}

func TestFacets_UnknownColumn(t *testing.T) {
	ts := newTestServer(t, defaultFake(), "")

	status, env := doJSON(t, http.MethodGet, ts.URL+"/api/table/facets?column=renk", "")
	if status != http.StatusBadRequest || env.Error == nil || env.Error.Code != "invalid_column" {
		t.Fatalf("status = %d, env = %+v", status, env)
	}
}

func TestExport_ServesWorkbook(t *testing.T) {
	ts := newTestServer(t, defaultFake(), "")

	resp, err := http.Get(ts.URL + "/api/table/export")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "spreadsheetml") {
		t.Errorf("Content-Type = %q", ct)
	}
	if cd := resp.Header.Get("Content-Disposition"); !strings.Contains(cd, ".xlsx") {
		t.Errorf("Content-Disposition = %q", cd)
	}
}

// brokenWriter rejects every body write, the way a reset client connection
// does mid-download, while recording what the handler tried to send.
type brokenWriter struct {
	header    http.Header
	attempted bytes.Buffer
	statuses  []int
}

func (w *brokenWriter) Header() http.Header { return w.header }

func (w *brokenWriter) Write(p []byte) (int, error) {
	w.attempted.Write(p)
	return 0, errors.New("connection reset by peer")
}

func (w *brokenWriter) WriteHeader(status int) {
	w.statuses = append(w.statuses, status)
}

func TestExport_WriteFailureLeavesResponseAlone(t *testing.T) {
	fake := defaultFake()
	backend := httptest.NewServer(fake.handler())
	t.Cleanup(backend.Close)

	client := upstream.NewClient(upstream.WithBaseURL(backend.URL))
	srv := NewServer(Deps{
		Upstream: client,
		Sessions: editor.NewManager(client),
		Console:  console.New(client, console.DefaultOperations(), nil),
		Viewer:   viewer.New(client),
	})

	w := &brokenWriter{header: http.Header{}}
	srv.handleExport(w, httptest.NewRequest(http.MethodGet, "/api/table/export", nil))

	// Once the workbook stream starts, a failed write must not tack a JSON
	// error envelope onto the body or fire a second status.
	if bytes.Contains(w.attempted.Bytes(), []byte("export_failed")) {
		t.Errorf("error envelope written after workbook bytes: %q", w.attempted.String())
	}
	for _, status := range w.statuses {
		if status != http.StatusOK {
			t.Errorf("WriteHeader(%d) called after export began", status)
		}
	}
}

func TestStatistics_MergesConsoleCounters(t *testing.T) {
	fake := defaultFake()
	backend := httptest.NewServer(fake.handler())
	t.Cleanup(backend.Close)

	client := upstream.NewClient(upstream.WithBaseURL(backend.URL))
	cons := console.New(client, console.DefaultOperations(), nil)
	srv := NewServer(Deps{
		Upstream: client,
		Sessions: editor.NewManager(client),
		Console:  cons,
		Viewer:   viewer.New(client),
	})
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)

	// Run one console op so its stats land in the shared counters.
	if err := cons.Start(context.Background(), "scrape-alan-dal"); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for cons.Running("scrape-alan-dal") && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	_, env := doJSON(t, http.MethodGet, ts.URL+"/api/statistics", "")
	var stats map[string]int
	if err := json.Unmarshal(env.Data, &stats); err != nil {
		t.Fatal(err)
	}
	if stats["alan"] != 58 || stats["ders"] != 2 {
		t.Errorf("stats = %v, want alan=58 ders=2", stats)
	}
}

func TestSession_Lifecycle(t *testing.T) {
	ts := newTestServer(t, defaultFake(), "")

	// Open
	status, env := doJSON(t, http.MethodPost, ts.URL+"/api/sessions", `{"ders_id":42}`)
	if status != http.StatusCreated {
		t.Fatalf("open: status = %d, env = %+v", status, env)
	}
	var view sessionView
	if err := json.Unmarshal(env.Data, &view); err != nil {
		t.Fatal(err)
	}
	if view.ID == "" || view.Ders.DersAdi != "Algoritma ve Programlama" {
		t.Fatalf("view = %+v", view)
	}
	if view.Dirty {
		t.Error("fresh session must be clean")
	}
	base := ts.URL + "/api/sessions/" + view.ID

	// Mutate the tree
	status, env = doJSON(t, http.MethodPost, base+"/units", `{"adi":"Yeni Birim","sure":12}`)
	if status != http.StatusOK {
		t.Fatalf("add unit: status = %d, env = %+v", status, env)
	}
	if err := json.Unmarshal(env.Data, &view); err != nil {
		t.Fatal(err)
	}
	if len(view.Ders.OgrenmeBirimleri) != 2 || !view.Dirty {
		t.Fatalf("after add: units = %d, dirty = %v", len(view.Ders.OgrenmeBirimleri), view.Dirty)
	}

	// Save clears dirty
	status, env = doJSON(t, http.MethodPost, base+"/save", "{}")
	if status != http.StatusOK {
		t.Fatalf("save: status = %d, env = %+v", status, env)
	}
	var saved struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(env.Data, &saved); err != nil {
		t.Fatal(err)
	}
	if saved.Message != "ders kaydedildi" {
		t.Errorf("save message = %q", saved.Message)
	}

	// Close reports clean
	status, env = doJSON(t, http.MethodDelete, base, "")
	if status != http.StatusOK {
		t.Fatalf("close: status = %d", status)
	}
	var closed map[string]bool
	if err := json.Unmarshal(env.Data, &closed); err != nil {
		t.Fatal(err)
	}
	if closed["dirty"] {
		t.Error("saved session must close clean")
	}

	// Gone afterwards
	status, _ = doJSON(t, http.MethodGet, base, "")
	if status != http.StatusNotFound {
		t.Errorf("get after close: status = %d, want 404", status)
	}
}

func TestSession_SaveRejectedBySchema(t *testing.T) {
	fake := defaultFake()
	fake.course = `{"id":42,"ders_adi":"","sinif":10}`
	ts := newTestServer(t, fake, "")

	_, env := doJSON(t, http.MethodPost, ts.URL+"/api/sessions", `{"ders_id":42}`)
	var view sessionView
	if err := json.Unmarshal(env.Data, &view); err != nil {
		t.Fatal(err)
	}

	status, env := doJSON(t, http.MethodPost, ts.URL+"/api/sessions/"+view.ID+"/save", "{}")
	if status != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", status)
	}
	var result struct {
		Valid      bool        `json:"valid"`
		Violations []Violation `json:"violations"`
	}
	if err := json.Unmarshal(env.Data, &result); err != nil {
		t.Fatal(err)
	}
	if result.Valid || len(result.Violations) == 0 {
		t.Fatalf("result = %+v, want violations", result)
	}
	found := false
	for _, v := range result.Violations {
		if v.Field == "ders_adi" {
			found = true
		}
	}
	if !found {
		t.Errorf("violations = %+v, want one on ders_adi", result.Violations)
	}
}

func TestSession_EditRejectionSurfacesVerbatim(t *testing.T) {
	ts := newTestServer(t, defaultFake(), "")

	_, env := doJSON(t, http.MethodPost, ts.URL+"/api/sessions", `{"ders_id":42}`)
	var view sessionView
	if err := json.Unmarshal(env.Data, &view); err != nil {
		t.Fatal(err)
	}

	status, env := doJSON(t, http.MethodDelete, ts.URL+"/api/sessions/"+view.ID+"/units/9", "")
	if status != http.StatusUnprocessableEntity || env.Error == nil {
		t.Fatalf("status = %d, env = %+v", status, env)
	}
	if env.Error.Code != "edit_rejected" {
		t.Errorf("code = %q", env.Error.Code)
	}
}

func TestViewerSplit_Clamped(t *testing.T) {
	ts := newTestServer(t, defaultFake(), "")

	_, env := doJSON(t, http.MethodPost, ts.URL+"/api/viewer/split", `{"ratio":0.05}`)
	var data map[string]float64
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatal(err)
	}
	if data["ratio"] != 0.20 {
		t.Errorf("ratio = %v, want 0.20", data["ratio"])
	}
}

func TestViewerResolve_ConvertsDocx(t *testing.T) {
	ts := newTestServer(t, defaultFake(), "")

	_, env := doJSON(t, http.MethodPost, ts.URL+"/api/viewer/resolve", `{"url":"dbf/a.docx"}`)
	var res viewer.Resolution
	if err := json.Unmarshal(env.Data, &res); err != nil {
		t.Fatal(err)
	}
	if res.State != viewer.StateLoaded || res.PdfURL != "converted/a.pdf" {
		t.Errorf("resolution = %+v", res)
	}
}

func TestFileProxy_StreamsThrough(t *testing.T) {
	ts := newTestServer(t, defaultFake(), "")

	resp, err := http.Get(ts.URL + "/api/files/dbf/a.pdf")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/pdf" {
		t.Errorf("Content-Type = %q", ct)
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(buf.String(), "%PDF") {
		t.Errorf("body = %q, want PDF bytes", buf.String())
	}
}

func TestConsoleStart_UnknownOp(t *testing.T) {
	ts := newTestServer(t, defaultFake(), "")

	status, env := doJSON(t, http.MethodPost, ts.URL+"/api/console/operations/defrag/start", "")
	if status != http.StatusNotFound || env.Error == nil || env.Error.Code != "unknown_op" {
		t.Fatalf("status = %d, env = %+v", status, env)
	}
}

func TestBulkSave_PartialFailureReportedPerItem(t *testing.T) {
	ts := newTestServer(t, defaultFake(), "")

	body := `{"courses":[
		{"id":42,"ders_adi":"Algoritma ve Programlama","sinif":10},
		{"id":43,"ders_adi":"Devre Analizi","sinif":13}
	]}`
	status, env := doJSON(t, http.MethodPost, ts.URL+"/api/bulk-save", body)
	if status != http.StatusOK {
		t.Fatalf("status = %d, env = %+v", status, env)
	}

	var data struct {
		Results []upstream.BulkResult `json:"results"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatal(err)
	}
	if len(data.Results) != 2 {
		t.Fatalf("results = %+v, want 2 items", data.Results)
	}
	if !data.Results[0].Success || data.Results[1].Success {
		t.Errorf("results = %+v, want first ok and second failed", data.Results)
	}
	if data.Results[1].Error != "sinif geçersiz" {
		t.Errorf("failed item error = %q, want backend text verbatim", data.Results[1].Error)
	}
}

func TestUpdateRow_InvalidID(t *testing.T) {
	ts := newTestServer(t, defaultFake(), "")

	status, _ := doJSON(t, http.MethodPatch, ts.URL+"/api/rows/abc", `{"sinif":11}`)
	if status != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", status)
	}
}

func TestAdminKey_GatesAPI(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("gizli-anahtar"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	ts := newTestServer(t, defaultFake(), string(hash))

	// Health stays open
	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("/health status = %d, want 200", resp.StatusCode)
	}

	// API without key
	status, env := doJSON(t, http.MethodGet, ts.URL+"/api/table", "")
	if status != http.StatusUnauthorized || env.Error == nil {
		t.Fatalf("no key: status = %d, env = %+v", status, env)
	}

	// Wrong key
	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/table", nil)
	req.Header.Set("X-Admin-Key", "yanlış")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("wrong key: status = %d, want 401", resp.StatusCode)
	}

	// Correct key
	req, _ = http.NewRequest(http.MethodGet, ts.URL+"/api/table", nil)
	req.Header.Set("X-Admin-Key", "gizli-anahtar")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("correct key: status = %d, want 200", resp.StatusCode)
	}
}

func TestConsoleWS_StreamsLogLines(t *testing.T) {
	fake := defaultFake()
	backend := httptest.NewServer(fake.handler())
	t.Cleanup(backend.Close)

	client := upstream.NewClient(upstream.WithBaseURL(backend.URL))
	cons := console.New(client, console.DefaultOperations(), nil)
	srv := NewServer(Deps{
		Upstream: client,
		Sessions: editor.NewManager(client),
		Console:  cons,
		Viewer:   viewer.New(client),
	})
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.CloseNow()

	if err := cons.Start(context.Background(), "scrape-alan-dal"); err != nil {
		t.Fatal(err)
	}

	var line console.Line
	if err := wsjson.Read(ctx, conn, &line); err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if line.Op != "scrape-alan-dal" || line.Type != "done" {
		t.Errorf("line = %+v", line)
	}
}
