package gateway

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shrekd/shrekd/core/infra/logging"
	"github.com/shrekd/shrekd/core/share"
)

func (s *server) handleCreateFile(w http.ResponseWriter, r *http.Request) {
	settings, err := settingsFromHeaders(r.Header)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if limit := s.svc.Limits().File; limit > 0 && r.ContentLength > limit {
		s.writeError(w, r, share.ErrTooLarge)
		return
	}
	staged, err := s.svc.StageFile(r.Body)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	rec, err := s.svc.CreateFile(r.Context(), r.PathValue("filename"), staged, settings)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeCreated(w, r, rec)
}

func (s *server) handleCreatePaste(w http.ResponseWriter, r *http.Request) {
	settings, err := settingsFromHeaders(r.Header)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	body, err := readLimited(r.Body, s.svc.Limits().Paste)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	rec, err := s.svc.CreatePaste(r.Context(), string(body), settings)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeCreated(w, r, rec)
}

func (s *server) handleCreateURL(w http.ResponseWriter, r *http.Request) {
	settings, err := settingsFromHeaders(r.Header)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	body, err := readLimited(r.Body, s.svc.Limits().URL)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	rec, err := s.svc.CreateURL(r.Context(), string(body), settings)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeCreated(w, r, rec)
}

func (s *server) handleFetch(w http.ResponseWriter, r *http.Request) {
	fetched, err := s.svc.FetchAndConsume(r.Context(), r.PathValue("slug"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	defer fetched.Close()

	switch p := fetched.Record.Payload.(type) {
	case *share.FilePayload:
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": p.Name}))
		http.ServeContent(w, r, p.Name, time.Time{}, fetched.File)
	case *share.URLPayload:
		http.Redirect(w, r, p.Target, http.StatusSeeOther)
	case *share.PastePayload:
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Content-Length", strconv.Itoa(len(p.Body)))
		_, _ = io.WriteString(w, p.Body)
	}
}

func (s *server) writeCreated(w http.ResponseWriter, r *http.Request, rec *share.Record) {
	expiry := "-1"
	if rec.Expiry != nil {
		expiry = strconv.FormatInt(rec.Expiry.Unix(), 10)
	}
	w.Header().Set("Expiry", expiry)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusCreated)
	_, _ = io.WriteString(w, baseURL(r)+"/"+rec.Slug)
}

// baseURL rebuilds the public origin, honoring reverse proxy headers.
func baseURL(r *http.Request) string {
	proto := strings.TrimSpace(r.Header.Get("X-Forwarded-Proto"))
	if proto == "" {
		proto = "http"
		if r.TLS != nil {
			proto = "https"
		}
	}
	host := strings.TrimSpace(r.Header.Get("X-Forwarded-Host"))
	if host == "" {
		host = r.Host
	}
	return proto + "://" + host
}

func readLimited(body io.Reader, limit int64) ([]byte, error) {
	if limit <= 0 {
		return io.ReadAll(body)
	}
	data, err := io.ReadAll(io.LimitReader(body, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, share.ErrTooLarge
	}
	return data, nil
}

type errorBody struct {
	Message string `json:"message"`
}

func (s *server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := classify(err)
	if status >= http.StatusInternalServerError {
		logging.Error("gateway", "request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{Message: msg})
}

func classify(err error) (int, string) {
	var (
		hdr *headerError
		nf  *share.NotFoundError
		ve  *share.ValidationError
		se  *share.StorageError
		mbe *http.MaxBytesError
	)
	switch {
	case errors.As(err, &hdr):
		return http.StatusBadRequest, hdr.Error()
	case errors.As(err, &nf):
		return http.StatusNotFound, "not found"
	case errors.As(err, &ve):
		return http.StatusUnprocessableEntity, ve.Error()
	case errors.Is(err, share.ErrTooLarge), errors.As(err, &mbe):
		return http.StatusRequestEntityTooLarge, "payload too large"
	case errors.As(err, &se):
		return http.StatusServiceUnavailable, "storage unavailable"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}
