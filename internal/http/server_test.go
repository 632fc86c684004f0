package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"kakeibo/internal/amqp"
	"kakeibo/internal/backup"
	"kakeibo/internal/core"
	"kakeibo/internal/services"
	"kakeibo/internal/sheets/csvfile"
	"kakeibo/internal/storage/memory"
	"kakeibo/internal/worker"
)

const scenarioA = "ParentCategory,Date,FlowDirection,PaymentMethod,Amount,Location,Memo\n" +
	"Food/Alice,2024-03-01,Expense,Cash,3000,Market,\n" +
	"Food/Bob,2024-03-05,Expense,Card,1000,Cafe,\n"

type failingStore struct {
	*memory.Store
	replaceErr error
	pingErr    error
	reads      atomic.Int32
}

func (f *failingStore) ListExpenseRecords(ctx context.Context, period core.Period) ([]core.LedgerRecord, error) {
	f.reads.Add(1)
	return f.Store.ListExpenseRecords(ctx, period)
}

func (f *failingStore) ReplacePeriods(ctx context.Context, periods []core.Period, records []core.LedgerRecord) error {
	if f.replaceErr != nil {
		return f.replaceErr
	}
	return f.Store.ReplacePeriods(ctx, periods, records)
}

func (f *failingStore) Ping(ctx context.Context) error { return f.pingErr }

type fakeBackups struct {
	res    backup.Result
	err    error
	health backup.HealthStatus
}

func (f *fakeBackups) Perform(context.Context) (backup.Result, error) { return f.res, f.err }
func (f *fakeBackups) Health(context.Context) backup.HealthStatus     { return f.health }

func newTestServer(t *testing.T, store *failingStore, opts Options) *Server {
	t.Helper()
	ledger := services.NewLedgerService(store, nil, services.Options{})
	srv := NewServer(":0", ledger, opts)
	t.Cleanup(func() { _ = srv.Close() })
	return srv
}

func uploadRequest(t *testing.T, field, content string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, "export.csv")
	if err != nil {
		t.Fatal(err)
	}
	_, _ = fw.Write([]byte(content))
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, "/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func serve(srv *Server, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	return rr
}

func TestUploadThenSummary(t *testing.T) {
	srv := newTestServer(t, &failingStore{Store: memory.New()}, Options{})

	rr := serve(srv, uploadRequest(t, uploadField, scenarioA))
	if rr.Code != http.StatusOK {
		t.Fatalf("upload status=%d body=%s", rr.Code, rr.Body)
	}
	var up uploadResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &up); err != nil {
		t.Fatal(err)
	}
	if !up.Success || up.Processed != 2 || up.BatchID == "" || len(up.Errors) != 0 ||
		len(up.TouchedPeriods) != 1 || up.TouchedPeriods[0] != "2024-03" {
		t.Fatalf("unexpected upload response %+v", up)
	}

	rr = serve(srv, httptest.NewRequest(http.MethodGet, "/summary?period=2024-03", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("summary status=%d body=%s", rr.Code, rr.Body)
	}
	var sum summaryResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &sum); err != nil {
		t.Fatal(err)
	}
	if sum.Summary.GrandTotal != 4000 || sum.Summary.PersonCount != 2 || sum.Settlement.FairShare != 2000 {
		t.Fatalf("unexpected summary %+v", sum)
	}
	want := transferDTO{From: "Bob", To: "Alice", Amount: 1000}
	if len(sum.Settlement.Transfers) != 1 || sum.Settlement.Transfers[0] != want {
		t.Fatalf("unexpected transfers %+v", sum.Settlement.Transfers)
	}
	if len(sum.Summary.Categories) != 1 || sum.Summary.Categories[0] != "Food" {
		t.Fatalf("unexpected categories %v", sum.Summary.Categories)
	}
	if got := sum.Summary.Details[0].Records[0].Date; got != "2024-03-01" {
		t.Fatalf("detail date %q", got)
	}

	rr = serve(srv, httptest.NewRequest(http.MethodGet, "/periods", nil))
	var periods periodsResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &periods); err != nil {
		t.Fatal(err)
	}
	if len(periods.Periods) != 1 || periods.Periods[0] != (periodDTO{Period: "2024-03", RecordCount: 2}) {
		t.Fatalf("unexpected periods %+v", periods)
	}
}

func TestUploadStatusCodes(t *testing.T) {
	tests := []struct {
		name    string
		store   *failingStore
		field   string
		content string
		want    int
	}{
		{"no valid records", &failingStore{Store: memory.New()}, uploadField, "ParentCategory,Date,Amount\nFood,2024-03-01,10\n", http.StatusUnprocessableEntity},
		{"persistence failure", &failingStore{Store: memory.New(), replaceErr: errors.New("disk full")}, uploadField, scenarioA, http.StatusInternalServerError},
		{"missing field", &failingStore{Store: memory.New()}, "other", scenarioA, http.StatusBadRequest},
		{"bad header", &failingStore{Store: memory.New()}, uploadField, "Amount,Memo\n1,x\n", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, tt.store, Options{})
			rr := serve(srv, uploadRequest(t, tt.field, tt.content))
			if rr.Code != tt.want {
				t.Fatalf("status=%d want %d body=%s", rr.Code, tt.want, rr.Body)
			}
		})
	}
}

func TestUploadRowErrorsAreWarnings(t *testing.T) {
	srv := newTestServer(t, &failingStore{Store: memory.New()}, Options{})
	rr := serve(srv, uploadRequest(t, uploadField, scenarioA+"Food,2024-03-07,Expense,Cash,5,,\n"))
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	var up uploadResponse
	_ = json.Unmarshal(rr.Body.Bytes(), &up)
	if up.Processed != 2 || len(up.Errors) != 1 {
		t.Fatalf("unexpected %+v", up)
	}
}

func TestUploadTooLarge(t *testing.T) {
	srv := newTestServer(t, &failingStore{Store: memory.New()}, Options{UploadMaxBytes: 64})
	rr := serve(srv, uploadRequest(t, uploadField, strings.Repeat(scenarioA, 10)))
	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body)
	}
}

func TestPeriodsReplacedNotificationRefreshesSummary(t *testing.T) {
	store := &failingStore{Store: memory.New()}
	ledger := services.NewLedgerService(store, nil, services.Options{})
	srv := NewServer(":0", ledger, Options{})
	t.Cleanup(func() { _ = srv.Close() })
	ctx := context.Background()

	if rr := serve(srv, uploadRequest(t, uploadField, scenarioA)); rr.Code != http.StatusOK {
		t.Fatalf("upload status=%d", rr.Code)
	}
	if rr := serve(srv, httptest.NewRequest(http.MethodGet, "/summary?period=2024-03", nil)); rr.Code != http.StatusOK {
		t.Fatalf("summary status=%d", rr.Code)
	}

	// A second service on the same store stands in for the import tool.
	importer := services.NewLedgerService(store, nil, services.Options{})
	rows, err := csvfile.NewReader(strings.NewReader(
		"ParentCategory,Date,FlowDirection,PaymentMethod,Amount,Location,Memo\n" +
			"Rent/Carol,2024-03-02,Expense,Bank,9000,,\n"))
	if err != nil {
		t.Fatal(err)
	}
	res, err := importer.Ingest(ctx, rows)
	if err != nil {
		t.Fatal(err)
	}

	msg := amqp.NewPeriodsReplacedMessage(res.BatchID, []string{"2024-03"}, res.Processed)
	if err := worker.NewPeriodWorker(ledger, nil, 0).HandlePeriodsReplaced(ctx, msg); err != nil {
		t.Fatalf("HandlePeriodsReplaced: %v", err)
	}
	reads := store.reads.Load()

	rr := serve(srv, httptest.NewRequest(http.MethodGet, "/summary?period=2024-03", nil))
	var sum summaryResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &sum); err != nil {
		t.Fatal(err)
	}
	if sum.Summary.GrandTotal != 9000 || sum.Summary.PersonCount != 1 || sum.Summary.PersonTotals[0].Person != "Carol" {
		t.Fatalf("summary after notification %+v", sum.Summary)
	}
	if got := store.reads.Load(); got != reads {
		t.Fatalf("notification should have warmed the summary: reads %d -> %d", reads, got)
	}
}

func TestSummaryBadPeriod(t *testing.T) {
	srv := newTestServer(t, &failingStore{Store: memory.New()}, Options{})
	for _, q := range []string{"", "?period=2024-13", "?period=march"} {
		rr := serve(srv, httptest.NewRequest(http.MethodGet, "/summary"+q, nil))
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("%q: status=%d", q, rr.Code)
		}
	}
}

func TestEmptyPeriodSummary(t *testing.T) {
	srv := newTestServer(t, &failingStore{Store: memory.New()}, Options{})
	rr := serve(srv, httptest.NewRequest(http.MethodGet, "/summary?period=2023-01", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"transfers":[]`) || !strings.Contains(rr.Body.String(), `"categories":[]`) {
		t.Fatalf("empty lists should encode as []: %s", rr.Body)
	}
}

func TestHealthAndReady(t *testing.T) {
	store := &failingStore{Store: memory.New()}
	srv := newTestServer(t, store, Options{})

	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		rr := serve(srv, httptest.NewRequest(http.MethodGet, path, nil))
		if rr.Code != http.StatusOK {
			t.Fatalf("%s status=%d", path, rr.Code)
		}
	}
	if rr := serve(srv, httptest.NewRequest(http.MethodGet, "/healthz", nil)); rr.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatal("security headers missing")
	}

	store.pingErr = errors.New("database is locked")
	if rr := serve(srv, httptest.NewRequest(http.MethodGet, "/readyz", nil)); rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz status=%d", rr.Code)
	}
}

func TestBackupEndpoints(t *testing.T) {
	srv := newTestServer(t, &failingStore{Store: memory.New()}, Options{})
	if rr := serve(srv, httptest.NewRequest(http.MethodPost, "/backup/manual", nil)); rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("unconfigured backup status=%d", rr.Code)
	}

	tests := []struct {
		name string
		fake *fakeBackups
		path string
		meth string
		want int
	}{
		{"manual ok", &fakeBackups{res: backup.Result{FileName: "kakeibo_backup_x.db", Uploaded: true}}, "/backup/manual", http.MethodPost, http.StatusOK},
		{"manual running", &fakeBackups{err: backup.ErrBackupRunning}, "/backup/manual", http.MethodPost, http.StatusConflict},
		{"manual failed", &fakeBackups{err: errors.New("upload failed")}, "/backup/manual", http.MethodPost, http.StatusInternalServerError},
		{"status warning", &fakeBackups{health: backup.HealthStatus{Status: backup.StatusWarning}}, "/backup/status", http.MethodGet, http.StatusOK},
		{"status error", &fakeBackups{health: backup.HealthStatus{Status: backup.StatusError}}, "/backup/status", http.MethodGet, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, &failingStore{Store: memory.New()}, Options{Backup: tt.fake})
			if rr := serve(srv, httptest.NewRequest(tt.meth, tt.path, nil)); rr.Code != tt.want {
				t.Fatalf("status=%d want %d", rr.Code, tt.want)
			}
		})
	}
}

func TestMethodNotAllowed(t *testing.T) {
	srv := newTestServer(t, &failingStore{Store: memory.New()}, Options{})
	if rr := serve(srv, httptest.NewRequest(http.MethodGet, "/upload", nil)); rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status=%d", rr.Code)
	}
}

func TestUploadRateLimited(t *testing.T) {
	srv := newTestServer(t, &failingStore{Store: memory.New()}, Options{RateLimitPerMinute: 1})
	if rr := serve(srv, uploadRequest(t, uploadField, scenarioA)); rr.Code != http.StatusOK {
		t.Fatalf("first upload status=%d", rr.Code)
	}
	if rr := serve(srv, uploadRequest(t, uploadField, scenarioA)); rr.Code != http.StatusTooManyRequests {
		t.Fatalf("second upload status=%d", rr.Code)
	}
}
