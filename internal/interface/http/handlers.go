package http

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	appsync "github.com/glasir-hub/glasir-sync-api/internal/application/sync"
	"github.com/glasir-hub/glasir-sync-api/internal/domain/timetable"
)

// maxBodyBytes caps request bodies; cookie payloads are small.
const maxBodyBytes = 256 << 10

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST SHAPES
// ══════════════════════════════════════════════════════════════════════════════

// cookiesField accepts both wire forms of a cookie set: a JSON array of
// cookie objects, or a raw "name=value; name2=value2" header string kept
// for older clients.
type cookiesField []timetable.Cookie

func (c *cookiesField) UnmarshalJSON(data []byte) error {
	var cookies []timetable.Cookie
	if err := json.Unmarshal(data, &cookies); err == nil {
		*c = cookies
		return nil
	}

	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("cookies must be an array of cookie objects or a cookie header string")
	}
	*c = parseCookieHeader(raw)
	return nil
}

// parseCookieHeader splits a Cookie-header style string into cookie pairs.
func parseCookieHeader(raw string) []timetable.Cookie {
	var cookies []timetable.Cookie
	for _, part := range strings.Split(raw, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, value, _ := strings.Cut(part, "=")
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		cookies = append(cookies, timetable.Cookie{Name: name, Value: strings.TrimSpace(value)})
	}
	return cookies
}

// offsetsField accepts the week selector of a sync request: an explicit
// offset array, or one of the symbolic strings "all" / "current_forward".
type offsetsField struct {
	selector appsync.Selector
	set      bool
}

func (o *offsetsField) UnmarshalJSON(data []byte) error {
	var offsets []int
	if err := json.Unmarshal(data, &offsets); err == nil {
		o.selector = appsync.Selector{Offsets: offsets}
		o.set = true
		return nil
	}

	var symbol string
	if err := json.Unmarshal(data, &symbol); err != nil {
		return fmt.Errorf("offsets must be an array of integers or a selector string")
	}
	o.selector = appsync.Selector{Symbol: symbol}
	o.set = true
	return nil
}

type initialSyncRequest struct {
	StudentID string       `json:"student_id"`
	Cookies   cookiesField `json:"cookies"`
}

type syncRequest struct {
	Offsets offsetsField `json:"offsets"`
}

type sessionRefreshRequest struct {
	StudentID  string       `json:"student_id"`
	NewCookies cookiesField `json:"new_cookies"`
}

// decodeJSON reads and decodes a size-capped request body.
func decodeJSON(r *http.Request, dst interface{}) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if len(body) == 0 {
		return fmt.Errorf("request body is empty")
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// SYNC HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleInitialSync registers a student: validates the submitted cookies
// upstream, performs the first full sync, and mints the access code all
// later syncs authenticate with.
func (s *Server) handleInitialSync(w http.ResponseWriter, r *http.Request) {
	var req initialSyncRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "")
		return
	}

	result, err := s.deps.Sync.InitialSync(r.Context(), req.StudentID, req.Cookies)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"access_code":  result.AccessCode,
		"initial_data": result.InitialData,
	})
}

// handleSync runs an incremental sync for the session named by the
// X-Access-Code header and returns per-week diffs.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	accessCode := r.Header.Get("X-Access-Code")

	var req syncRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "")
		return
	}
	if !req.Offsets.set {
		writeError(w, http.StatusBadRequest, "offsets is required", "")
		return
	}

	result, err := s.deps.Sync.Sync(r.Context(), accessCode, req.Offsets.selector)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"diffs":     result.Diffs,
		"synced_at": result.SyncedAt,
	})
}

// handleSessionRefresh replaces a session's stored cookies with freshly
// captured ones and rotates the access code.
func (s *Server) handleSessionRefresh(w http.ResponseWriter, r *http.Request) {
	var req sessionRefreshRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "")
		return
	}

	accessCode, err := s.deps.Sync.SessionRefresh(r.Context(), req.StudentID, req.NewCookies)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"access_code": accessCode})
}

// ══════════════════════════════════════════════════════════════════════════════
// LEGACY PROFILE VIEWS
// Read-only, stateless: cookies come straight from the Cookie header and
// nothing is persisted. Kept for clients predating the sync API.
// ══════════════════════════════════════════════════════════════════════════════

// legacyAuth pulls upstream cookies from the Cookie header and the student
// id from the query string.
func (s *Server) legacyAuth(w http.ResponseWriter, r *http.Request) (cookies []timetable.Cookie, studentID string, ok bool) {
	for _, c := range r.Cookies() {
		cookies = append(cookies, timetable.Cookie{Name: c.Name, Value: c.Value})
	}
	if len(cookies) == 0 {
		writeError(w, http.StatusUnauthorized, "Cookie header is required", "")
		return nil, "", false
	}

	studentID = r.URL.Query().Get("student_id")
	if studentID == "" {
		writeError(w, http.StatusBadRequest, "student_id query parameter is required", "")
		return nil, "", false
	}
	return cookies, studentID, true
}

func (s *Server) serveLegacyWeeks(w http.ResponseWriter, r *http.Request, sel appsync.Selector) {
	cookies, studentID, ok := s.legacyAuth(w, r)
	if !ok {
		return
	}

	weeks, err := s.deps.Sync.FetchWeeks(r.Context(), cookies, studentID, sel)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"weeks": weeks})
}

// handleProfileWeek serves a single week by offset.
func (s *Server) handleProfileWeek(w http.ResponseWriter, r *http.Request) {
	offset, err := strconv.Atoi(r.PathValue("offset"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "offset must be an integer", "")
		return
	}

	cookies, studentID, ok := s.legacyAuth(w, r)
	if !ok {
		return
	}

	weeks, err := s.deps.Sync.FetchWeeks(r.Context(), cookies, studentID, appsync.Selector{Offsets: []int{offset}})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if len(weeks) == 0 {
		writeError(w, http.StatusBadGateway, fmt.Sprintf("week at offset %d could not be fetched", offset), "")
		return
	}
	writeJSON(w, http.StatusOK, weeks[0])
}

// handleProfileWeeksAll serves every week the upstream navigation offers.
func (s *Server) handleProfileWeeksAll(w http.ResponseWriter, r *http.Request) {
	s.serveLegacyWeeks(w, r, appsync.Selector{Symbol: appsync.SelectorAll})
}

// handleProfileWeeksCurrentForward serves the current week and everything after it.
func (s *Server) handleProfileWeeksCurrentForward(w http.ResponseWriter, r *http.Request) {
	s.serveLegacyWeeks(w, r, appsync.Selector{Symbol: appsync.SelectorCurrentForward})
}

// handleProfileWeeksForward serves offsets 0 through n inclusive.
func (s *Server) handleProfileWeeksForward(w http.ResponseWriter, r *http.Request) {
	n, err := strconv.Atoi(r.PathValue("n"))
	if err != nil || n < 0 {
		writeError(w, http.StatusBadRequest, "n must be a non-negative integer", "")
		return
	}

	offsets := make([]int, 0, n+1)
	for i := 0; i <= n; i++ {
		offsets = append(offsets, i)
	}
	s.serveLegacyWeeks(w, r, appsync.Selector{Offsets: offsets})
}

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH & STATUS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleRoot serves basic service identity.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"name":    "glasir-sync-api",
		"version": "v1",
		"endpoints": map[string]string{
			"initial_sync":    "POST /sync/initial",
			"sync":            "POST /sync",
			"session_refresh": "POST /session/refresh",
			"health":          "GET /health",
		},
	})
}

// handleHealth reports liveness of the service and its database.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.Health != nil {
		if err := s.deps.Health.Ping(r.Context()); err != nil {
			s.logger.Error("health check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status":   "unhealthy",
				"database": "unreachable",
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}
