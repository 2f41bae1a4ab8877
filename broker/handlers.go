package broker

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/employeeaiwellness/leadbroker/identity"
)

// Handler exposes the broker over HTTP. Every error is caught here and
// turned into a JSON {error, detail?} body; nothing escapes unhandled.
type Handler struct {
	broker *Broker
	users  identity.Verifier
	origin string
	logger *slog.Logger
}

// NewHandler wires the broker and identity verifier into an HTTP surface.
// origin is the frontend origin allowed by CORS; empty or "/" falls back
// to "*".
func NewHandler(b *Broker, users identity.Verifier, origin string, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{broker: b, users: users, origin: origin, logger: logger}
}

// Routes returns the full request mux with CORS and request logging
// applied.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /google/start", h.Start)
	mux.HandleFunc("GET /google/callback", h.Callback)
	mux.HandleFunc("POST /google/sheets", h.Sheets)
	mux.HandleFunc("POST /google/forms", h.Forms)
	mux.HandleFunc("POST /google/status", h.Status)
	return h.logRequests(h.cors(mux))
}

// apiRequest is the shared JSON body shape across the POST endpoints.
// Unknown fields are ignored.
type apiRequest struct {
	Token       string `json:"token,omitempty"`
	AccessToken string `json:"access_token,omitempty"`
	Scopes      string `json:"scopes,omitempty"`
	RedirectTo  string `json:"redirectTo,omitempty"`
	SheetID     string `json:"sheetId,omitempty"`
	FormID      string `json:"formId,omitempty"`
}

// Start handles POST /google/start: validates the caller, records a state
// token, and returns the provider consent URL.
func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	user, body, ok := h.authenticate(w, r)
	if !ok {
		return
	}
	scopes := body.Scopes
	if scopes == "" {
		scopes = r.URL.Query().Get("scopes")
	}
	redirectTo := body.RedirectTo
	if redirectTo == "" {
		redirectTo = r.URL.Query().Get("redirectTo")
	}
	authURL, err := h.broker.BeginAuthorization(r.Context(), user.ID, scopes, RedirectMeta{RedirectTo: redirectTo})
	if err != nil {
		h.writeBrokerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": authURL})
}

// Callback handles GET /google/callback: the provider redirect carrying
// code and state. The state token is the only credential on this path.
func (h *Handler) Callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	code, state := q.Get("code"), q.Get("state")
	if code == "" || state == "" {
		writeError(w, http.StatusBadRequest, "Missing code or state")
		return
	}
	redirect, err := h.broker.CompleteAuthorization(r.Context(), code, state)
	if err != nil {
		h.writeBrokerError(w, r, err)
		return
	}
	http.Redirect(w, r, redirect, http.StatusFound)
}

// Sheets handles POST /google/sheets: relays the raw spreadsheet values
// JSON for the caller's connected account.
func (h *Handler) Sheets(w http.ResponseWriter, r *http.Request) {
	user, body, ok := h.authenticate(w, r)
	if !ok {
		return
	}
	if body.SheetID == "" {
		writeError(w, http.StatusBadRequest, "Missing sheetId")
		return
	}
	res, err := h.broker.SheetValues(r.Context(), user.ID, body.SheetID)
	if err != nil {
		h.writeBrokerError(w, r, err)
		return
	}
	relay(w, res)
}

// Forms handles POST /google/forms: relays the raw form responses JSON.
func (h *Handler) Forms(w http.ResponseWriter, r *http.Request) {
	user, body, ok := h.authenticate(w, r)
	if !ok {
		return
	}
	if body.FormID == "" {
		writeError(w, http.StatusBadRequest, "Missing formId")
		return
	}
	res, err := h.broker.FormResponses(r.Context(), user.ID, body.FormID)
	if err != nil {
		h.writeBrokerError(w, r, err)
		return
	}
	relay(w, res)
}

// Status handles POST /google/status: reports whether the caller has a
// connected integration, without ever returning token material.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	user, _, ok := h.authenticate(w, r)
	if !ok {
		return
	}
	st, err := h.broker.Status(r.Context(), user.ID)
	if err != nil {
		h.writeBrokerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// authenticate extracts the bearer credential and resolves it against the
// identity provider, writing the 401 itself when that fails.
func (h *Handler) authenticate(w http.ResponseWriter, r *http.Request) (*identity.User, apiRequest, bool) {
	token, body := extractBearer(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "Missing Authorization or token in body")
		return nil, body, false
	}
	user, err := h.users.GetUser(r.Context(), token)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidToken) {
			writeError(w, http.StatusUnauthorized, "Invalid user token")
		} else {
			writeDetail(w, http.StatusInternalServerError, "Failed to validate user token", err.Error())
		}
		return nil, body, false
	}
	return user, body, true
}

// extractBearer resolves the caller's credential with a fixed precedence:
// the Authorization header first, then a token field in a JSON body, then
// the raw body text as a last resort. The parsed body is returned
// alongside so each request reads it only once.
func extractBearer(r *http.Request) (string, apiRequest) {
	var body apiRequest
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
		raw, err := io.ReadAll(r.Body)
		if err == nil && len(raw) > 0 {
			_ = json.Unmarshal(raw, &body)
		}
		return strings.TrimSpace(authHeader[7:]), body
	}
	raw, err := io.ReadAll(r.Body)
	if err != nil || len(strings.TrimSpace(string(raw))) == 0 {
		return "", body
	}
	if err := json.Unmarshal(raw, &body); err == nil {
		if body.Token != "" {
			return body.Token, body
		}
		return body.AccessToken, body
	}
	return strings.TrimSpace(string(raw)), body
}

// writeBrokerError maps broker errors onto the HTTP taxonomy.
func (h *Handler) writeBrokerError(w http.ResponseWriter, r *http.Request, err error) {
	var pe *ProviderError
	switch {
	case errors.Is(err, ErrInvalidState):
		writeError(w, http.StatusBadRequest, "Invalid state")
	case errors.Is(err, ErrNotConnected):
		writeError(w, http.StatusNotFound, "No integration")
	case errors.Is(err, ErrNoRefreshToken):
		writeDetail(w, http.StatusInternalServerError, "Token refresh failed", err.Error())
	case errors.As(err, &pe):
		if pe.Op == "refresh" {
			writeDetail(w, http.StatusInternalServerError, "Token refresh failed", pe.Body)
		} else {
			writeDetail(w, http.StatusInternalServerError, "Token exchange failed", pe.Body)
		}
	default:
		h.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
		writeDetail(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

// cors sets the response CORS headers and answers preflights.
func (h *Handler) cors(next http.Handler) http.Handler {
	origin := h.origin
	if origin == "" || origin == "/" {
		origin = "*"
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization,Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// logRequests tags every request with an id and logs it at completion.
func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.New().String()
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r)
		h.logger.Info("request", "id", reqID, "method", r.Method, "path", r.URL.Path)
	})
}

// relay passes a downstream response through verbatim.
func relay(w http.ResponseWriter, res *Proxied) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(res.Status)
	_, _ = w.Write(res.Body)
}

// writeJSON sends a JSON response.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to write JSON response", "err", err)
	}
}

// writeError sends a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeDetail sends a JSON error response with provider detail attached.
func writeDetail(w http.ResponseWriter, status int, message, detail string) {
	writeJSON(w, status, map[string]string{"error": message, "detail": detail})
}
