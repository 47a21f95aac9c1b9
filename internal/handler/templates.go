package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"stratcraft/internal/repository"
	"stratcraft/internal/service"
)

type TemplateHandler struct {
	Repo     repository.Repository
	Ranker   *service.ParamRankService
	Refresh  *service.TemplateScoreService
	Settings *service.SystemSettingsService
}

func (h *TemplateHandler) Register(r *gin.Engine) {
	group := r.Group("/api/v1/templates")
	group.GET("", h.list)
	group.GET("/:id", h.get)
	group.GET("/:id/score", h.score)
	group.GET("/:id/ranking", h.ranking)
	group.POST("/refresh-scores", h.refreshScores)
}

// @Summary List templates with their latest scores
// @Tags templates
// @Success 200 {object} handler.apiResponse
// @Router /api/v1/templates [get]
func (h *TemplateHandler) list(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	params := repository.ListTemplatesParams{
		Limit:  intQuery(c, "limit", 200),
		Offset: intQuery(c, "offset", 0),
	}
	if v := strings.TrimSpace(c.Query("category")); v != "" {
		params.Category = &v
	}
	items, err := h.Repo.ListTemplates(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	scores, err := h.Repo.ListTemplateScores(c.Request.Context())
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	scoreByTemplate := map[uint64]int{}
	for _, s := range scores {
		scoreByTemplate[s.TemplateID] = s.Score
	}
	out := make([]map[string]any, 0, len(items))
	for _, t := range items {
		entry := map[string]any{
			"id":       t.ID,
			"slug":     t.Slug,
			"name":     t.Name,
			"category": t.Category,
			"enabled":  t.Enabled,
		}
		if score, ok := scoreByTemplate[t.ID]; ok {
			entry["score"] = score
		}
		out = append(out, entry)
	}
	Ok(c, out, nil)
}

// @Summary Get one template
// @Tags templates
// @Success 200 {object} handler.apiResponse
// @Router /api/v1/templates/{id} [get]
func (h *TemplateHandler) get(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	id, ok := uintParam(c, "id")
	if !ok {
		Error(c, http.StatusBadRequest, "id required", nil)
		return
	}
	item, err := h.Repo.GetTemplateByID(c.Request.Context(), id)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if item == nil {
		Error(c, http.StatusNotFound, "template not found", nil)
		return
	}
	Ok(c, item, nil)
}

// @Summary Get the persisted score breakdown of a template
// @Tags templates
// @Success 200 {object} handler.apiResponse
// @Router /api/v1/templates/{id}/score [get]
func (h *TemplateHandler) score(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	id, ok := uintParam(c, "id")
	if !ok {
		Error(c, http.StatusBadRequest, "id required", nil)
		return
	}
	item, err := h.Repo.GetTemplateScoreByTemplateID(c.Request.Context(), id)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if item == nil {
		Error(c, http.StatusNotFound, "template not scored yet", nil)
		return
	}
	var breakdown json.RawMessage
	if len(item.Breakdown) > 0 {
		breakdown = json.RawMessage(item.Breakdown)
	}
	Ok(c, map[string]any{
		"template_id": item.TemplateID,
		"strategy_id": item.StrategyID,
		"score":       item.Score,
		"score_01":    item.Score01,
		"breakdown":   breakdown,
		"updated_at":  item.UpdatedAt,
	}, nil)
}

// @Summary Rank a template's cached parameter sets
// @Tags templates
// @Param limit query int false "max entries returned"
// @Success 200 {object} handler.apiResponse
// @Router /api/v1/templates/{id}/ranking [get]
func (h *TemplateHandler) ranking(c *gin.Context) {
	if h.Ranker == nil {
		Error(c, http.StatusInternalServerError, "ranker unavailable", nil)
		return
	}
	if h.Settings != nil && !h.Settings.IsEnabled(c.Request.Context(), service.FeatureParamRanking, true) {
		Error(c, http.StatusServiceUnavailable, "param ranking disabled", nil)
		return
	}
	id, ok := uintParam(c, "id")
	if !ok {
		Error(c, http.StatusBadRequest, "id required", nil)
		return
	}
	ranking, err := h.Ranker.Rank(c.Request.Context(), id, intQuery(c, "limit", 100))
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, ranking, nil)
}

// @Summary Recompute and persist all template scores now
// @Tags templates
// @Success 200 {object} handler.apiResponse
// @Router /api/v1/templates/refresh-scores [post]
func (h *TemplateHandler) refreshScores(c *gin.Context) {
	if h.Refresh == nil {
		Error(c, http.StatusInternalServerError, "refresh unavailable", nil)
		return
	}
	if err := h.Refresh.RunOnce(c.Request.Context()); err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, map[string]any{"refreshed": true}, nil)
}
