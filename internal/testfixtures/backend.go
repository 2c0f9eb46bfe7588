package testfixtures

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"

	defaultAccessTTL  = 5 * time.Minute
	defaultRefreshTTL = 24 * time.Hour
)

// Backend is an in-process stand-in for the GymDesk API. Tokens are real
// HS256 JWTs validated against the backend clock, so advancing the clock
// expires them.
type Backend struct {
	Server *httptest.Server
	Clock  *Clock

	secret        []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	rotateRefresh bool

	mu           sync.Mutex
	nextID       int64
	users        map[int64]*BackendUser
	resources    []*backendResource
	slots        []*backendSlot
	reservations []*backendReservation
	revoked      map[string]bool
	hits         map[string]int
	requests     []RequestRecord
}

// BackendUser is an account known to the Backend.
type BackendUser struct {
	ID       int64
	Email    string
	Username string
	Password string
	Role     string
}

type backendResource struct {
	ID          int64
	Name        string
	Type        string
	MaxBookings int
	ColorCode   string
	CreatedAt   time.Time
}

type backendSlot struct {
	ID         int64
	ResourceID int64
	Start      time.Time
	End        time.Time
	Available  bool
}

type backendReservation struct {
	ID         int64
	UserID     int64
	ResourceID int64
	SlotID     int64
	Status     string
	Notes      string
	CreatedAt  time.Time
}

type tokenClaims struct {
	Role string `json:"role"`
	Type string `json:"token_type"`
	jwt.RegisteredClaims
}

type claimsKey struct{}

// BackendOption configures a Backend.
type BackendOption func(*Backend)

// WithBackendClock shares clock with the backend.
func WithBackendClock(clock *Clock) BackendOption {
	return func(b *Backend) { b.Clock = clock }
}

// WithAccessTTL sets the lifetime of issued access tokens.
func WithAccessTTL(ttl time.Duration) BackendOption {
	return func(b *Backend) { b.accessTTL = ttl }
}

// WithRefreshRotation makes every refresh revoke the presented refresh token
// and issue a new one.
func WithRefreshRotation() BackendOption {
	return func(b *Backend) { b.rotateRefresh = true }
}

// NewBackend starts a Backend that is shut down when tb finishes.
func NewBackend(tb testing.TB, opts ...BackendOption) *Backend {
	tb.Helper()

	b := &Backend{
		secret:     []byte("gymdesk-test-" + uuid.NewString()),
		accessTTL:  defaultAccessTTL,
		refreshTTL: defaultRefreshTTL,
		users:      make(map[int64]*BackendUser),
		revoked:    make(map[string]bool),
		hits:       make(map[string]int),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.Clock == nil {
		b.Clock = NewClock(time.Time{})
	}

	b.Server = httptest.NewServer(b.Router())
	tb.Cleanup(b.Server.Close)
	return b
}

// URL returns the base URL of the backend.
func (b *Backend) URL() string {
	return b.Server.URL
}

// Router exposes the backend routes.
func (b *Backend) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(b.recordRequests)

	r.Post("/auth/login/", b.handleLogin)
	r.Post("/auth/register/", b.handleRegister)
	r.Post("/auth/refresh/", b.handleRefresh)

	r.Group(func(r chi.Router) {
		r.Use(b.authMiddleware)

		r.Get("/resources/", b.handleListResources)
		r.With(b.requireAdmin).Post("/resources/create/", b.handleCreateResource)

		r.Get("/timeslots/", b.handleListTimeSlots)
		r.With(b.requireAdmin).Post("/timeslots/generate/", b.handleGenerateTimeSlots)

		r.Get("/reservations/", b.handleListReservations)
		r.Post("/reservations/create/", b.handleCreateReservation)
		r.Post("/reservations/{reservationID}/cancel/", b.handleCancelReservation)
	})

	return r
}

// SeedUser registers an account and returns its identifier. role is User or Admin.
func (b *Backend) SeedUser(email, password, role string) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.addUserLocked(email, strings.Split(email, "@")[0], password, role)
}

// SeedResource adds a resource. kind uses the wire form (ROOM or EQUIPMENT).
func (b *Backend) SeedResource(name, kind string, maxBookings int) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	b.resources = append(b.resources, &backendResource{
		ID:          b.nextID,
		Name:        name,
		Type:        kind,
		MaxBookings: maxBookings,
		ColorCode:   "#3366FF",
		CreatedAt:   b.Clock.Now(),
	})
	return b.nextID
}

// SeedSlot adds a slot starting at start.
func (b *Backend) SeedSlot(resourceID int64, start time.Time, length time.Duration, available bool) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.addSlotLocked(resourceID, start, start.Add(length), available)
}

// TakeSlot marks a slot unavailable, as a concurrent booking would.
func (b *Backend) TakeSlot(slotID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if slot := b.slotLocked(slotID); slot != nil {
		slot.Available = false
	}
}

// SlotAvailable reports the server side availability of a slot.
func (b *Backend) SlotAvailable(slotID int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	slot := b.slotLocked(slotID)
	return slot != nil && slot.Available
}

// SlotCount returns the number of slots stored for resourceID.
func (b *Backend) SlotCount(resourceID int64) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	count := 0
	for _, slot := range b.slots {
		if slot.ResourceID == resourceID {
			count++
		}
	}
	return count
}

// ReservationStatus returns the wire status of a reservation, or "" when unknown.
func (b *Backend) ReservationStatus(id int64) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, res := range b.reservations {
		if res.ID == id {
			return res.Status
		}
	}
	return ""
}

// Hits returns how often path was requested.
func (b *Backend) Hits(path string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.hits[path]
}

// RefreshCalls returns how often the refresh endpoint was requested.
func (b *Backend) RefreshCalls() int {
	return b.Hits("/auth/refresh/")
}

// ExpireAccessTokens advances the clock past the access token lifetime.
func (b *Backend) ExpireAccessTokens() {
	b.Clock.Advance(b.accessTTL + time.Second)
}

// IssueTokens mints an access and refresh pair for userID without a login call.
func (b *Backend) IssueTokens(userID int64) (access, refresh string) {
	b.mu.Lock()
	user := b.users[userID]
	b.mu.Unlock()
	if user == nil {
		return "", ""
	}
	access, _ = b.issue(user, tokenTypeAccess, b.accessTTL)
	refresh, _ = b.issue(user, tokenTypeRefresh, b.refreshTTL)
	return access, refresh
}

// Requests returns the request log, oldest first.
func (b *Backend) Requests() []RequestRecord {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]RequestRecord(nil), b.requests...)
}

func (b *Backend) recordRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.hits[r.URL.Path]++
		b.mu.Unlock()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		b.mu.Lock()
		b.requests = append(b.requests, RequestRecord{
			ID:     r.Header.Get("X-Request-ID"),
			Method: r.Method,
			Path:   r.URL.Path,
			Status: ww.Status(),
		})
		b.mu.Unlock()
	})
}

func (b *Backend) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || raw == "" {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"detail": "Authentication credentials were not provided."})
			return
		}
		claims, err := b.parse(raw, tokenTypeAccess)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"detail": "Given token not valid for any token type"})
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey{}, claims)))
	})
}

func (b *Backend) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, _ := r.Context().Value(claimsKey{}).(*tokenClaims)
		if claims == nil || claims.Role != "Admin" {
			writeJSON(w, http.StatusForbidden, map[string]any{"detail": "You do not have permission to perform this action."})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (b *Backend) issue(user *BackendUser, tokenType string, ttl time.Duration) (string, error) {
	now := b.Clock.Now()
	claims := tokenClaims{
		Role: user.Role,
		Type: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(user.ID, 10),
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(b.secret)
}

func (b *Backend) parse(raw, tokenType string) (*tokenClaims, error) {
	claims := &tokenClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return b.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(b.Clock.Now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, err
	}
	if !token.Valid || claims.Type != tokenType {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}

func (b *Backend) authResponse(user *BackendUser, includeRole bool) (map[string]any, error) {
	access, err := b.issue(user, tokenTypeAccess, b.accessTTL)
	if err != nil {
		return nil, err
	}
	refresh, err := b.issue(user, tokenTypeRefresh, b.refreshTTL)
	if err != nil {
		return nil, err
	}
	body := map[string]any{
		"success": true,
		"access":  access,
		"refresh": refresh,
		"user_id": user.ID,
	}
	if includeRole {
		body["role"] = user.Role
	}
	return body, nil
}

func (b *Backend) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFailure(w, http.StatusBadRequest, "invalid request body")
		return
	}

	b.mu.Lock()
	var user *BackendUser
	for _, candidate := range b.users {
		if strings.EqualFold(candidate.Email, req.Email) && candidate.Password == req.Password {
			user = candidate
			break
		}
	}
	b.mu.Unlock()
	if user == nil {
		writeFailure(w, http.StatusBadRequest, "Invalid credentials")
		return
	}

	body, err := b.authResponse(user, true)
	if err != nil {
		writeFailure(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, body)
}

func (b *Backend) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFailure(w, http.StatusBadRequest, "invalid request body")
		return
	}

	b.mu.Lock()
	for _, existing := range b.users {
		if strings.EqualFold(existing.Email, req.Email) {
			b.mu.Unlock()
			writeFailure(w, http.StatusBadRequest, "Email already used")
			return
		}
	}
	id := b.addUserLocked(req.Email, req.Username, req.Password, "User")
	user := b.users[id]
	b.mu.Unlock()

	body, err := b.authResponse(user, false)
	if err != nil {
		writeFailure(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, body)
}

func (b *Backend) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Refresh string `json:"refresh"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"detail": "invalid request body"})
		return
	}
	claims, err := b.parse(req.Refresh, tokenTypeRefresh)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"detail": "Token is invalid or expired"})
		return
	}

	userID, _ := strconv.ParseInt(claims.Subject, 10, 64)
	b.mu.Lock()
	user := b.users[userID]
	revoked := b.revoked[claims.ID]
	if b.rotateRefresh && !revoked {
		b.revoked[claims.ID] = true
	}
	b.mu.Unlock()
	if user == nil || revoked {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"detail": "Token is blacklisted"})
		return
	}

	access, err := b.issue(user, tokenTypeAccess, b.accessTTL)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"detail": err.Error()})
		return
	}
	body := map[string]any{"access": access}
	if b.rotateRefresh {
		if body["refresh"], err = b.issue(user, tokenTypeRefresh, b.refreshTTL); err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]any{"detail": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, body)
}

func (b *Backend) handleListResources(w http.ResponseWriter, r *http.Request) {
	kind := r.URL.Query().Get("type")

	b.mu.Lock()
	out := make([]map[string]any, 0, len(b.resources))
	for _, res := range b.resources {
		if kind != "" && res.Type != kind {
			continue
		}
		out = append(out, res.wire())
	}
	b.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "resources": out})
}

func (b *Backend) handleCreateResource(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name        string `json:"name"`
		Type        string `json:"type"`
		MaxBookings int    `json:"max_bookings"`
		ColorCode   string `json:"color_code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFailure(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validateBackendResource(req.Name, req.Type, req.MaxBookings, req.ColorCode); err != nil {
		writeFailure(w, http.StatusBadRequest, err.Error())
		return
	}

	b.mu.Lock()
	b.nextID++
	res := &backendResource{
		ID:          b.nextID,
		Name:        req.Name,
		Type:        req.Type,
		MaxBookings: req.MaxBookings,
		ColorCode:   req.ColorCode,
		CreatedAt:   b.Clock.Now(),
	}
	b.resources = append(b.resources, res)
	b.mu.Unlock()

	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "resource": res.wire()})
}

// handleListTimeSlots follows the GymDesk server: a date filter takes
// precedence and ignores resource_id.
func (b *Backend) handleListTimeSlots(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	resourceParam, dateParam := query.Get("resource_id"), query.Get("date")
	if resourceParam == "" && dateParam == "" {
		writeFailure(w, http.StatusBadRequest, "Provide resource_id or date")
		return
	}

	var day time.Time
	var resourceID int64
	var err error
	if dateParam != "" {
		if day, err = time.ParseInLocation("2006-01-02", dateParam, time.UTC); err != nil {
			writeFailure(w, http.StatusInternalServerError, err.Error())
			return
		}
	} else if resourceID, err = strconv.ParseInt(resourceParam, 10, 64); err != nil {
		writeFailure(w, http.StatusInternalServerError, err.Error())
		return
	}

	b.mu.Lock()
	matched := make([]*backendSlot, 0, len(b.slots))
	for _, slot := range b.slots {
		if !day.IsZero() {
			start := slot.Start.UTC()
			if start.Year() != day.Year() || start.YearDay() != day.YearDay() {
				continue
			}
		} else if slot.ResourceID != resourceID {
			continue
		}
		matched = append(matched, slot)
	}
	sort.SliceStable(matched, func(i, j int) bool { return matched[i].Start.Before(matched[j].Start) })
	out := make([]map[string]any, 0, len(matched))
	for _, slot := range matched {
		out = append(out, slot.wire())
	}
	b.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "timeslots": out})
}

func (b *Backend) handleGenerateTimeSlots(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ResourceID      int64  `json:"resource_id"`
		StartDate       string `json:"start_date"`
		EndDate         string `json:"end_date"`
		DurationMinutes int    `json:"duration_minutes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFailure(w, http.StatusBadRequest, "invalid request body")
		return
	}
	start, err := time.ParseInLocation("2006-01-02", req.StartDate, time.UTC)
	if err != nil {
		writeFailure(w, http.StatusBadRequest, err.Error())
		return
	}
	end, err := time.ParseInLocation("2006-01-02", req.EndDate, time.UTC)
	if err != nil {
		writeFailure(w, http.StatusBadRequest, err.Error())
		return
	}
	duration := req.DurationMinutes
	if duration == 0 {
		duration = 60
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.resourceLocked(req.ResourceID) == nil {
		writeFailure(w, http.StatusBadRequest, "Resource "+strconv.FormatInt(req.ResourceID, 10)+" does not exist")
		return
	}
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		for hour := 8; hour < 22; hour++ {
			slotStart := day.Add(time.Duration(hour) * time.Hour)
			b.addSlotLocked(req.ResourceID, slotStart, slotStart.Add(time.Duration(duration)*time.Minute), true)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "TimeSlots generated"})
}

func (b *Backend) handleListReservations(w http.ResponseWriter, r *http.Request) {
	claims := r.Context().Value(claimsKey{}).(*tokenClaims)
	userID, _ := strconv.ParseInt(claims.Subject, 10, 64)
	status := r.URL.Query().Get("status")

	b.mu.Lock()
	out := make([]map[string]any, 0, len(b.reservations))
	for _, res := range b.reservations {
		if res.UserID != userID || (status != "" && res.Status != status) {
			continue
		}
		out = append(out, res.wire())
	}
	b.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "reservations": out})
}

func (b *Backend) handleCreateReservation(w http.ResponseWriter, r *http.Request) {
	claims := r.Context().Value(claimsKey{}).(*tokenClaims)
	userID, _ := strconv.ParseInt(claims.Subject, 10, 64)

	var req struct {
		ResourceID int64   `json:"resource_id"`
		TimeSlotID int64   `json:"timeslot_id"`
		Notes      *string `json:"notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFailure(w, http.StatusBadRequest, "invalid request body")
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.resourceLocked(req.ResourceID) == nil {
		writeFailure(w, http.StatusBadRequest, "Resource not found")
		return
	}
	slot := b.slotLocked(req.TimeSlotID)
	if slot == nil || slot.ResourceID != req.ResourceID {
		writeFailure(w, http.StatusBadRequest, "TimeSlot not found")
		return
	}
	if !slot.Available || !slot.Start.After(b.Clock.Now()) {
		writeFailure(w, http.StatusBadRequest, "TimeSlot not available")
		return
	}

	slot.Available = false
	b.nextID++
	res := &backendReservation{
		ID:         b.nextID,
		UserID:     userID,
		ResourceID: req.ResourceID,
		SlotID:     slot.ID,
		Status:     "ACTIVE",
		CreatedAt:  b.Clock.Now(),
	}
	if req.Notes != nil {
		res.Notes = *req.Notes
	}
	b.reservations = append(b.reservations, res)
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "reservation": res.wire()})
}

func (b *Backend) handleCancelReservation(w http.ResponseWriter, r *http.Request) {
	claims := r.Context().Value(claimsKey{}).(*tokenClaims)
	userID, _ := strconv.ParseInt(claims.Subject, 10, 64)
	id, err := strconv.ParseInt(chi.URLParam(r, "reservationID"), 10, 64)
	if err != nil {
		writeFailure(w, http.StatusBadRequest, "invalid reservation id")
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	var res *backendReservation
	for _, candidate := range b.reservations {
		if candidate.ID == id {
			res = candidate
			break
		}
	}
	switch {
	case res == nil:
		writeFailure(w, http.StatusNotFound, "Reservation not found")
		return
	case res.UserID != userID:
		writeFailure(w, http.StatusForbidden, "Reservation belongs to another user")
		return
	case res.Status == "CANCELLED":
		writeFailure(w, http.StatusBadRequest, "Reservation is already cancelled")
		return
	}

	res.Status = "CANCELLED"
	if slot := b.slotLocked(res.SlotID); slot != nil {
		slot.Available = true
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "reservation": res.wire()})
}

func (b *Backend) addUserLocked(email, username, password, role string) int64 {
	b.nextID++
	b.users[b.nextID] = &BackendUser{
		ID:       b.nextID,
		Email:    email,
		Username: username,
		Password: password,
		Role:     role,
	}
	return b.nextID
}

func (b *Backend) addSlotLocked(resourceID int64, start, end time.Time, available bool) int64 {
	b.nextID++
	b.slots = append(b.slots, &backendSlot{
		ID:         b.nextID,
		ResourceID: resourceID,
		Start:      start,
		End:        end,
		Available:  available,
	})
	return b.nextID
}

func (b *Backend) resourceLocked(id int64) *backendResource {
	for _, res := range b.resources {
		if res.ID == id {
			return res
		}
	}
	return nil
}

func (b *Backend) slotLocked(id int64) *backendSlot {
	for _, slot := range b.slots {
		if slot.ID == id {
			return slot
		}
	}
	return nil
}

func (r *backendResource) wire() map[string]any {
	return map[string]any{
		"id":           r.ID,
		"name":         r.Name,
		"type":         r.Type,
		"max_bookings": r.MaxBookings,
		"color_code":   r.ColorCode,
		"created_at":   r.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func (s *backendSlot) wire() map[string]any {
	return map[string]any{
		"id":               s.ID,
		"resource_id":      s.ResourceID,
		"start_time":       s.Start.UTC().Format("2006-01-02T15:04:05"),
		"end_time":         s.End.UTC().Format("2006-01-02T15:04:05"),
		"is_available":     s.Available,
		"duration_minutes": int(s.End.Sub(s.Start) / time.Minute),
	}
}

func (r *backendReservation) wire() map[string]any {
	body := map[string]any{
		"id":           r.ID,
		"user_id":      r.UserID,
		"resource_id":  r.ResourceID,
		"time_slot_id": r.SlotID,
		"status":       r.Status,
		"notes":        nil,
		"created_at":   r.CreatedAt.UTC().Format(time.RFC3339),
	}
	if r.Notes != "" {
		body["notes"] = r.Notes
	}
	return body
}

func validateBackendResource(name, kind string, maxBookings int, color string) error {
	switch {
	case len(strings.TrimSpace(name)) < 2:
		return errors.New("resource name must be at least 2 characters")
	case kind != "ROOM" && kind != "EQUIPMENT":
		return errors.New("type must be ROOM or EQUIPMENT")
	case maxBookings < 1 || maxBookings > 100:
		return errors.New("max_bookings must be between 1 and 100")
	case !strings.HasPrefix(color, "#") || len(color) != 7:
		return errors.New("color_code must use the #RRGGBB format")
	}
	return nil
}

func writeFailure(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"success": false, "error": message})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
