package handlers

import (
	"net/http"
	"strconv"
	"time"

	"shop-insights/internal/config"
	"shop-insights/internal/logger"
	"shop-insights/internal/services"
)

// RateLimitHandler отвечает за статус лимита.
type RateLimitHandler struct {
	limiter RateLimitStatusProvider
	log     *logger.Logger
	cfg     *config.RateLimitConfig
}

// NewRateLimitHandler создает новый RateLimitHandler.
func NewRateLimitHandler(limiter RateLimitStatusProvider, log *logger.Logger, cfg *config.RateLimitConfig) *RateLimitHandler {
	return &RateLimitHandler{
		limiter: limiter,
		log:     log,
		cfg:     cfg,
	}
}

// Status возвращает текущие значения лимита для клиента.
func (h *RateLimitHandler) Status(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	if h.limiter == nil || !h.limiter.Enabled() {
		writeJSONResponse(w, http.StatusOK, map[string]interface{}{
			"enabled": false,
		})
		return
	}

	client := services.ExtractClientIP(r)
	usage, err := h.limiter.Usage(r.Context(), client)
	if err != nil {
		h.log.WithError(err).Warn("Failed to fetch rate limit usage")
		writeErrorResponse(w, http.StatusServiceUnavailable, "Rate limit usage unavailable")
		return
	}

	resp := map[string]interface{}{
		"enabled":   true,
		"limit":     h.limiter.Limit(),
		"used":      usage.Used,
		"remaining": usage.Remaining,
		"key":       client,
	}
	if h.cfg != nil {
		resp["window_seconds"] = h.cfg.WindowSeconds
	}
	if !usage.ResetAt.IsZero() {
		resp["reset_at"] = usage.ResetAt.UTC().Format(time.RFC3339)
	}

	writeJSONResponse(w, http.StatusOK, resp)
}

// RateLimitMiddleware применяет rate limiting к хендлеру.
func RateLimitMiddleware(limiter MiddlewareLimiter, log *logger.Logger, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if limiter == nil || !limiter.Enabled() {
			next(w, r)
			return
		}

		client := services.ExtractClientIP(r)
		decision := limiter.Allow(r.Context(), client)

		w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(limiter.Limit(), 10))
		w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(decision.Remaining, 10))
		if !decision.ResetAt.IsZero() {
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(decision.ResetAt.Unix(), 10))
		}

		if !decision.Allowed {
			if log != nil {
				log.WithField("client", client).Debug("Rate limit exceeded")
			}
			if !decision.ResetAt.IsZero() {
				if wait := int(time.Until(decision.ResetAt).Seconds()); wait > 0 {
					w.Header().Set("Retry-After", strconv.Itoa(wait))
				}
			}
			writeErrorResponse(w, http.StatusTooManyRequests, "Rate limit exceeded")
			return
		}

		next(w, r)
	}
}
