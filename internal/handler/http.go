package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/scanquest/internal/domain"
	"github.com/scanquest/internal/service"
	"github.com/scanquest/internal/websocket"
)

// Handler provides HTTP handlers for the hunt API
type Handler struct {
	game    *service.Game
	hub     *websocket.Hub
	logger  *slog.Logger
	limiter *rateLimiter
}

// NewHandler creates a new HTTP handler
func NewHandler(game *service.Game, hub *websocket.Hub, logger *slog.Logger) *Handler {
	return &Handler{
		game:    game,
		hub:     hub,
		logger:  logger,
		limiter: newRateLimiter(logger),
	}
}

// Close stops the handler's background work
func (h *Handler) Close() {
	h.limiter.Close()
}

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// Router creates and configures the HTTP router
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(corsMiddleware)
	r.Use(metricsMiddleware)

	// Health check
	r.Get("/health", h.HealthCheck)
	r.Get("/ready", h.ReadyCheck)

	// Prometheus metrics
	r.Handle("/metrics", promhttp.Handler())

	// WebSocket endpoint
	r.Get("/ws", h.HandleWebSocket)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Scan submission is the hot path; rate limit it per client IP.
		r.With(h.limiter.middleware).Post("/scans", h.SubmitScan)

		// Site catalog
		r.Route("/sites", func(r chi.Router) {
			r.Get("/", h.ListSites)
			r.Get("/{siteID}", h.GetSite)
		})

		// Geofence probe
		r.Post("/geofence/check", h.CheckGeofence)

		// Leaderboard
		r.Route("/leaderboard", func(r chi.Router) {
			r.Get("/", h.GetLeaderboard)
			r.Get("/top", h.GetTop)
			r.Get("/player/{playerID}", h.GetPlayerRank)
		})

		// Players
		r.Route("/players/{playerID}", func(r chi.Router) {
			r.Get("/", h.GetPlayer)
			r.Get("/scans", h.GetPlayerScans)
			r.Get("/claims", h.GetPlayerClaims)
			r.Post("/position", h.UpdatePosition)
		})

		// Claim workflow
		r.Post("/claims/{claimID}/ack", h.AcknowledgeClaim)

		// WebSocket info endpoint
		r.Get("/ws/stats", h.GetWebSocketStats)
	})

	return r
}

// corsMiddleware adds CORS headers
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-Request-ID")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeSuccess writes a successful JSON response
func (h *Handler) writeSuccess(w http.ResponseWriter, data interface{}) {
	h.writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    data,
	})
}

// writeError writes an error JSON response
func (h *Handler) writeError(w http.ResponseWriter, status int, err error) {
	h.writeJSON(w, status, APIResponse{
		Success: false,
		Error:   err.Error(),
	})
}

// HandleWebSocket handles WebSocket upgrade requests
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.ServeWs(h.hub, h.logger, w, r)
}

// GetWebSocketStats returns WebSocket connection statistics
func (h *Handler) GetWebSocketStats(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]interface{}{
		"total_connections": h.hub.GetTotalConnections(),
	})
}

// HealthCheck returns service health status
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]string{"status": "healthy"})
}

// ReadyCheck returns service readiness status
func (h *Handler) ReadyCheck(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]string{"status": "ready"})
}

// scanResponse is the wire shape of a scan outcome
type scanResponse struct {
	Status         domain.ScanStatus         `json:"status"`
	Site           *domain.Site              `json:"site,omitempty"`
	Record         *domain.ScanRecord        `json:"record,omitempty"`
	Player         *domain.Player            `json:"player,omitempty"`
	PrizeAllocated bool                      `json:"prize_allocated"`
	Claim          *domain.ClaimNotification `json:"claim,omitempty"`
	DistanceMeters float64                   `json:"distance_meters,omitempty"`
}

// SubmitScan handles a scan attempt. Business rejections (unrecognized token,
// outside the play area, already scanned) are successful responses carrying
// the outcome status, not HTTP errors.
func (h *Handler) SubmitScan(w http.ResponseWriter, r *http.Request) {
	var sub domain.ScanSubmission
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	outcome, err := h.game.SubmitScan(r.Context(), sub)
	if err != nil {
		if err == domain.ErrInvalidRequest {
			h.writeError(w, http.StatusBadRequest, err)
			return
		}
		h.logger.Error("failed to submit scan", "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}

	resp := scanResponse{
		Status:         outcome.Status,
		Site:           outcome.Site,
		Record:         outcome.Record,
		Player:         outcome.Player,
		Claim:          outcome.Claim,
		DistanceMeters: outcome.DistanceMeters,
	}
	if outcome.Prize != nil {
		resp.PrizeAllocated = outcome.Prize.Allocated
	}
	h.writeSuccess(w, resp)
}

// ListSites returns the active site catalog
func (h *Handler) ListSites(w http.ResponseWriter, r *http.Request) {
	sites, err := h.game.Sites(r.Context())
	if err != nil {
		h.logger.Error("failed to list sites", "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}

	h.writeSuccess(w, sites)
}

// GetSite returns a site by ID
func (h *Handler) GetSite(w http.ResponseWriter, r *http.Request) {
	siteID := chi.URLParam(r, "siteID")
	if siteID == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	site, err := h.game.Site(r.Context(), siteID)
	if err != nil {
		if err == domain.ErrSiteNotFound {
			h.writeError(w, http.StatusNotFound, err)
			return
		}
		h.logger.Error("failed to get site", "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}

	h.writeSuccess(w, site)
}

// geofenceRequest is a geofence probe
type geofenceRequest struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lng"`
	SiteID    string  `json:"site_id,omitempty"`
}

// CheckGeofence reports whether a coordinate is inside the play area or a
// site's proximity fence
func (h *Handler) CheckGeofence(w http.ResponseWriter, r *http.Request) {
	var req geofenceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	inside, distance, err := h.game.CheckGeofence(r.Context(), req.Latitude, req.Longitude, req.SiteID)
	if err != nil {
		if err == domain.ErrSiteNotFound {
			h.writeError(w, http.StatusNotFound, err)
			return
		}
		h.logger.Error("failed to check geofence", "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}

	h.writeSuccess(w, map[string]interface{}{
		"inside":          inside,
		"distance_meters": distance,
	})
}

// GetLeaderboard returns the full ranked board
func (h *Handler) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	entries, err := h.game.Leaderboard(r.Context())
	if err != nil {
		h.logger.Error("failed to get leaderboard", "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}

	h.writeSuccess(w, entries)
}

// GetTop returns the top N leaderboard entries
func (h *Handler) GetTop(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			limit = l
		}
	}

	entries, err := h.game.Top(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to get top", "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}

	h.writeSuccess(w, entries)
}

// GetPlayerRank returns a player's leaderboard entry
func (h *Handler) GetPlayerRank(w http.ResponseWriter, r *http.Request) {
	playerID := chi.URLParam(r, "playerID")
	if playerID == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	entry, err := h.game.PlayerRank(r.Context(), playerID)
	if err != nil {
		if err == domain.ErrPlayerNotFound {
			h.writeError(w, http.StatusNotFound, err)
			return
		}
		h.logger.Error("failed to get player rank", "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}

	h.writeSuccess(w, entry)
}

// GetPlayer returns a player's aggregate state
func (h *Handler) GetPlayer(w http.ResponseWriter, r *http.Request) {
	playerID := chi.URLParam(r, "playerID")
	if playerID == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	player, err := h.game.Player(r.Context(), playerID)
	if err != nil {
		if err == domain.ErrPlayerNotFound {
			h.writeError(w, http.StatusNotFound, err)
			return
		}
		h.logger.Error("failed to get player", "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}

	h.writeSuccess(w, player)
}

// GetPlayerScans returns a player's scan history
func (h *Handler) GetPlayerScans(w http.ResponseWriter, r *http.Request) {
	playerID := chi.URLParam(r, "playerID")
	if playerID == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	records, err := h.game.PlayerScans(r.Context(), playerID)
	if err != nil {
		h.logger.Error("failed to get scans", "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}

	h.writeSuccess(w, records)
}

// GetPlayerClaims returns a player's claim notifications
func (h *Handler) GetPlayerClaims(w http.ResponseWriter, r *http.Request) {
	playerID := chi.URLParam(r, "playerID")
	if playerID == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	claims, err := h.game.Claims(r.Context(), playerID)
	if err != nil {
		h.logger.Error("failed to get claims", "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}

	h.writeSuccess(w, claims)
}

// positionRequest is a position report
type positionRequest struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lng"`
}

// UpdatePosition stores a player's last known location
func (h *Handler) UpdatePosition(w http.ResponseWriter, r *http.Request) {
	playerID := chi.URLParam(r, "playerID")
	if playerID == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	var req positionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	if err := h.game.UpdatePosition(r.Context(), playerID, req.Latitude, req.Longitude); err != nil {
		if err == domain.ErrInvalidRequest {
			h.writeError(w, http.StatusBadRequest, err)
			return
		}
		h.logger.Error("failed to update position", "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}

	h.writeSuccess(w, map[string]string{"status": "updated"})
}

// AcknowledgeClaim marks a claim notification as claimed
func (h *Handler) AcknowledgeClaim(w http.ResponseWriter, r *http.Request) {
	claimID := chi.URLParam(r, "claimID")
	if claimID == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	claim, err := h.game.AcknowledgeClaim(r.Context(), claimID)
	if err != nil {
		if err == domain.ErrClaimNotFound {
			h.writeError(w, http.StatusNotFound, err)
			return
		}
		h.logger.Error("failed to acknowledge claim", "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}

	h.writeSuccess(w, claim)
}
