package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"kakeibo/internal/backup"
	"kakeibo/internal/core"
	"kakeibo/internal/log"
	"kakeibo/internal/services"
	"kakeibo/internal/sheets/csvfile"
)

const uploadField = "csvFile"

// handleUpload ingests a CSV export posted as multipart field csvFile.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := log.FromContext(ctx)

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := r.ParseMultipartForm(s.maxUpload); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("upload exceeds %d bytes", s.maxUpload))
			return
		}
		writeError(w, http.StatusBadRequest, "expected multipart form with field "+uploadField)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile(uploadField)
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file field "+uploadField)
		return
	}
	defer file.Close()

	reader, err := csvfile.NewReader(file)
	if err != nil {
		logger.WarnContext(ctx, "Rejected upload", "file", header.Filename, log.FieldError, err)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := s.ledger.Ingest(ctx, reader)
	body := newUploadResponse(res)
	var perr *services.PersistenceError
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, body)
	case errors.Is(err, services.ErrNoValidRecords):
		body.Message = err.Error()
		writeJSON(w, http.StatusUnprocessableEntity, body)
	case errors.As(err, &perr):
		logger.ErrorContext(ctx, "Upload not persisted", "file", header.Filename, log.FieldError, err)
		body.Message = "failed to store records"
		writeJSON(w, http.StatusInternalServerError, body)
	default:
		body.Message = err.Error()
		writeJSON(w, http.StatusBadRequest, body)
	}
}

// handleSummary returns the summary and settlement of ?period=YYYY-MM.
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	period, err := core.ParsePeriod(strings.TrimSpace(r.URL.Query().Get("period")))
	if err != nil {
		writeError(w, http.StatusBadRequest, "period must be YYYY-MM")
		return
	}

	sum, st, err := s.ledger.Settle(r.Context(), period)
	if err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Summary failed",
			log.FieldPeriod, period, log.FieldError, err)
		writeError(w, http.StatusInternalServerError, "failed to load summary")
		return
	}
	writeJSON(w, http.StatusOK, newSummaryResponse(sum, st))
}

func (s *Server) handlePeriods(w http.ResponseWriter, r *http.Request) {
	periods, err := s.ledger.Periods(r.Context())
	if err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Listing periods failed", log.FieldError, err)
		writeError(w, http.StatusInternalServerError, "failed to list periods")
		return
	}
	out := periodsResponse{Periods: make([]periodDTO, 0, len(periods))}
	for _, p := range periods {
		out.Periods = append(out.Periods, periodDTO{Period: p.Period.String(), RecordCount: p.RecordCount})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleBackupManual(w http.ResponseWriter, r *http.Request) {
	if s.backup == nil {
		writeError(w, http.StatusServiceUnavailable, "backups are not configured")
		return
	}
	// A manual backup runs to completion even if the client goes away.
	res, err := s.backup.Perform(context.WithoutCancel(r.Context()))
	switch {
	case errors.Is(err, backup.ErrBackupRunning):
		writeError(w, http.StatusConflict, err.Error())
	case err != nil:
		writeJSON(w, http.StatusInternalServerError, res)
	default:
		writeJSON(w, http.StatusOK, res)
	}
}

func (s *Server) handleBackupStatus(w http.ResponseWriter, r *http.Request) {
	if s.backup == nil {
		writeError(w, http.StatusServiceUnavailable, "backups are not configured")
		return
	}
	h := s.backup.Health(r.Context())
	status := http.StatusOK
	if h.Status == backup.StatusError {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, h)
}

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.startedAt).Round(time.Second).String(),
	})
}

// handleReady checks that the record store answers.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status, httpStatus := "ready", http.StatusOK
	checks := map[string]any{}
	if err := s.ledger.Ping(ctx); err != nil {
		checks["store"] = "failed: " + err.Error()
		status, httpStatus = "not_ready", http.StatusServiceUnavailable
	} else {
		checks["store"] = "ok"
	}
	if s.backup != nil {
		checks["backup"] = s.backup.Health(ctx).Status
	}
	checks["rate_limiter"] = map[string]any{"active_clients": s.rateLimiter.ActiveClients()}

	writeJSON(w, httpStatus, map[string]any{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"checks":    checks,
	})
}

// handleMetrics reports request and security counters as plain text.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	tm := s.traceMiddleware.GetMetrics()
	rm := s.rateLimiter.GetMetrics()
	sm := s.securityDetector.GetMetrics()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintf(w, "kakeibo_http_requests_total %d\n", tm.TotalRequests)
	fmt.Fprintf(w, "kakeibo_http_server_errors_total %d\n", tm.ServerErrors)
	fmt.Fprintf(w, "kakeibo_http_last_duration_microseconds %d\n", tm.LastDurationUs)
	fmt.Fprintf(w, "kakeibo_rate_limit_hits_total %d\n", rm.TotalHits)
	fmt.Fprintf(w, "kakeibo_rate_limit_clients %d\n", rm.ClientCount)
	fmt.Fprintf(w, "kakeibo_security_suspicious_total %d\n", sm.SuspiciousRequests)
	fmt.Fprintf(w, "kakeibo_security_blocked_total %d\n", sm.BlockedRequests)
	fmt.Fprintf(w, "kakeibo_uptime_seconds %d\n", int64(time.Since(s.startedAt).Seconds()))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
