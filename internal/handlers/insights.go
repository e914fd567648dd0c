package handlers

import (
	"context"
	"encoding/csv"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"shop-insights/internal/config"
	"shop-insights/internal/logger"
	"shop-insights/internal/models"
)

const (
	insightsPathPrefix  = "/api/insights/"
	customersPathPrefix = "/api/insights/customers/"
)

// InsightsHandler обрабатывает эндпоинты инсайтов.
type InsightsHandler struct {
	engine InsightsProvider
	log    *logger.Logger
	cfg    *config.InsightsConfig
}

// NewInsightsHandler создает новый обработчик инсайтов.
func NewInsightsHandler(engine InsightsProvider, log *logger.Logger, cfg *config.InsightsConfig) *InsightsHandler {
	return &InsightsHandler{
		engine: engine,
		log:    log,
		cfg:    cfg,
	}
}

// InsightsResponse - инсайты по категориям
type InsightsResponse struct {
	Categories  map[models.InsightCategory][]models.Insight `json:"categories"`
	Total       int                                         `json:"total"`
	GeneratedAt time.Time                                   `json:"generated_at"`
}

// InsightListResponse - плоский список инсайтов
type InsightListResponse struct {
	Insights []models.Insight `json:"insights"`
	Count    int              `json:"count"`
}

// GetAll возвращает инсайты всех категорий.
func (h *InsightsHandler) GetAll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout())
	defer cancel()

	writeJSONResponse(w, http.StatusOK, newInsightsResponse(h.engine.GetAllInsights(ctx)))
}

// GetTop возвращает самые приоритетные инсайты.
func (h *InsightsHandler) GetTop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	limit, err := parseOptionalInt(r.URL.Query().Get("limit"), "limit")
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	format, err := parseFormat(r)
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout())
	defer cancel()

	list := h.engine.GetTopInsights(ctx, limit)
	if format == "csv" {
		if err := writeInsightsCSV(w, "top-insights.csv", list); err != nil {
			h.log.WithError(err).Warn("Failed to stream insights CSV")
		}
		return
	}

	writeJSONResponse(w, http.StatusOK, InsightListResponse{Insights: list, Count: len(list)})
}

// GetByCategory возвращает инсайты категории из пути /api/insights/{category}.
func (h *InsightsHandler) GetByCategory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	category := strings.Trim(strings.TrimPrefix(r.URL.Path, insightsPathPrefix), "/")
	if category == "" || strings.Contains(category, "/") {
		writeErrorResponse(w, http.StatusNotFound, "Unknown insights endpoint")
		return
	}

	filter, err := parseCategoryFilter(r)
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	format, err := parseFormat(r)
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout())
	defer cancel()

	list, err := h.engine.GetInsightsByCategory(ctx, category, filter)
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to load insights")
		return
	}

	if format == "csv" {
		if err := writeInsightsCSV(w, category+"-insights.csv", list); err != nil {
			h.log.WithError(err).Warn("Failed to stream insights CSV")
		}
		return
	}

	writeJSONResponse(w, http.StatusOK, InsightListResponse{Insights: list, Count: len(list)})
}

// Refresh сбрасывает кеш и пересчитывает инсайты.
func (h *InsightsHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout())
	defer cancel()

	resp := newInsightsResponse(h.engine.Refresh(ctx))
	h.log.WithField("total", resp.Total).Info("Insights refreshed on demand")
	writeJSONResponse(w, http.StatusOK, resp)
}

// GetRecommendations возвращает рекомендации услуг клиенту.
func (h *InsightsHandler) GetRecommendations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	customerID, err := extractUUIDFromPath(r.URL.Path, customersPathPrefix)
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid customer ID")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout())
	defer cancel()

	recs, err := h.engine.RecommendServices(ctx, customerID)
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to build recommendations")
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"customer_id":     customerID,
		"recommendations": recs,
	})
}

// GetNextVisit возвращает прогноз следующего визита клиента.
func (h *InsightsHandler) GetNextVisit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	customerID, err := extractUUIDFromPath(r.URL.Path, customersPathPrefix)
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid customer ID")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout())
	defer cancel()

	prediction, err := h.engine.PredictNextVisit(ctx, customerID)
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to predict next visit")
		return
	}

	writeJSONResponse(w, http.StatusOK, prediction)
}

func (h *InsightsHandler) timeout() time.Duration {
	if h.cfg != nil && h.cfg.RequestTimeoutSeconds > 0 {
		return time.Duration(h.cfg.RequestTimeoutSeconds) * time.Second
	}
	return 8 * time.Second
}

func newInsightsResponse(byCategory map[models.InsightCategory][]models.Insight) InsightsResponse {
	resp := InsightsResponse{
		Categories:  make(map[models.InsightCategory][]models.Insight, len(byCategory)),
		GeneratedAt: time.Now().UTC(),
	}
	for _, c := range models.AllCategories() {
		list := byCategory[c]
		if list == nil {
			list = []models.Insight{}
		}
		resp.Categories[c] = list
		resp.Total += len(list)
	}
	return resp
}

func parseCategoryFilter(r *http.Request) (models.CategoryFilter, error) {
	query := r.URL.Query()
	var filter models.CategoryFilter

	if raw := query.Get("priority"); raw != "" {
		p, err := parsePriority(raw)
		if err != nil {
			return filter, err
		}
		filter.Priority = &p
	}

	limit, err := parseOptionalInt(query.Get("limit"), "limit")
	if err != nil {
		return filter, err
	}
	filter.Limit = limit
	return filter, nil
}

// parsePriority принимает число 1..5 или имя уровня (critical, high, ...)
func parsePriority(raw string) (models.Priority, error) {
	if n, err := strconv.Atoi(raw); err == nil {
		return models.Priority(n), nil
	}
	for p := models.PriorityCritical; p <= models.PriorityInfo; p++ {
		if strings.EqualFold(raw, p.String()) {
			return p, nil
		}
	}
	return 0, fmt.Errorf("priority must be 1-5 or one of: critical, high, medium, low, info")
}

func parseFormat(r *http.Request) (string, error) {
	format := strings.ToLower(r.URL.Query().Get("format"))
	if format != "" && format != "json" && format != "csv" {
		return "", fmt.Errorf("format must be json or csv")
	}
	return format, nil
}

func writeInsightsCSV(w http.ResponseWriter, filename string, list []models.Insight) error {
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", "attachment; filename="+filename)
	w.WriteHeader(http.StatusOK)

	writer := csv.NewWriter(w)
	_ = writer.Write([]string{"id", "category", "priority", "title", "value", "description", "action_url", "metadata"})
	for _, in := range list {
		_ = writer.Write([]string{
			in.ID,
			string(in.Category),
			in.Priority.String(),
			in.Title,
			fmt.Sprint(valueOrEmpty(in.Value)),
			in.Description,
			in.ActionURL,
			formatMetadata(in.Metadata),
		})
	}

	writer.Flush()
	return writer.Error()
}

func valueOrEmpty(v interface{}) interface{} {
	if v == nil {
		return ""
	}
	return v
}

// formatMetadata сериализует метаданные в стабильном порядке ключей: k=v;k=v
func formatMetadata(meta map[string]interface{}) string {
	if len(meta) == 0 {
		return ""
	}
	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, meta[k])
	}
	return strings.Join(parts, ";")
}
