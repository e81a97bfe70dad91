package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"callscope/internal/calls"
	"callscope/internal/ingest"
	"callscope/internal/services"
)

// multipartMemory is how much of an upload is buffered in memory before
// spilling to a temp file.
const multipartMemory = 32 << 20

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if s.deps.Uploads == nil {
		s.writeError(w, http.StatusServiceUnavailable, "uploads are disabled")
		return
	}
	if limit := s.deps.Uploads.MaxBytes(); limit > 0 {
		// Leave room for the multipart envelope and form fields.
		r.Body = http.MaxBytesReader(w, r.Body, limit+1<<20)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			s.writeFailure(w, r, fmt.Errorf("%w (limit %d bytes)", ingest.ErrTooLarge, maxErr.Limit))
			return
		}
		s.writeError(w, http.StatusBadRequest, "expected multipart form upload")
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	sub, err := s.deps.Uploads.Submit(r.Context(), ingest.Request{
		OwnerID:     r.FormValue("owner"),
		FileName:    header.Filename,
		DisplayName: r.FormValue("name"),
		Body:        file,
	})
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, sub)
}

func (s *Server) handleListCalls(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := calls.ListFilter{OwnerID: strings.TrimSpace(query.Get("owner"))}
	for _, value := range query["status"] {
		for _, part := range strings.Split(value, ",") {
			status := calls.Status(strings.ToLower(strings.TrimSpace(part)))
			if status == "" {
				continue
			}
			if !validCallStatus(status) {
				s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown status %q", part))
				return
			}
			filter.Status = append(filter.Status, status)
		}
	}
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			s.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		filter.Limit = limit
	}

	list, err := s.deps.Calls.List(r.Context(), filter)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	if list == nil {
		list = []*calls.Call{}
	}
	s.writeJSON(w, http.StatusOK, CallListResponse{Calls: list})
}

func validCallStatus(status calls.Status) bool {
	switch status {
	case calls.StatusPending, calls.StatusProcessing, calls.StatusCompleted, calls.StatusFailed:
		return true
	}
	return false
}

func (s *Server) handleGetCall(w http.ResponseWriter, r *http.Request) {
	call, err := s.deps.Calls.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, call)
}

func (s *Server) handleGetAnalysis(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := s.deps.Calls.Get(r.Context(), id); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	record, err := s.deps.Calls.GetAnalysis(r.Context(), id)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, record)
}

func (s *Server) handleListJobs(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, JobListResponse{Jobs: s.deps.Jobs.Observe()})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.deps.Jobs.Get(mux.Vars(r)["id"])
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleDismissJob(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Jobs.Dismiss(mux.Vars(r)["id"]); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	counts, err := s.deps.Calls.StatusCounts(r.Context())
	if err != nil {
		s.writeFailure(w, r, services.Wrap(services.ErrTransient, "api", "status", "read call counts", err))
		return
	}
	s.writeJSON(w, http.StatusOK, StatusResponse{
		Calls:    counts,
		Jobs:     s.deps.Jobs.Counts(),
		Database: s.deps.Calls.Path(),
		Storage:  s.deps.Storage,
		Started:  s.started,
		Uptime:   time.Since(s.started).Truncate(time.Second).String(),
	})
}
