package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"stratcraft/internal/repository"
	"stratcraft/internal/service"
)

type SystemSettingsHandler struct {
	Repo     repository.Repository
	Settings *service.SystemSettingsService
}

func (h *SystemSettingsHandler) Register(r *gin.Engine) {
	group := r.Group("/api/v1/system-settings")
	group.GET("", h.list)
	group.GET("/switches/:name", h.getSwitch)
	group.PUT("/switches/:name", h.putSwitch)
	group.GET("/:key", h.get)
	group.PUT("/:key", h.put)
}

// @Summary List system settings
// @Tags settings
// @Param prefix query string false "key prefix filter"
// @Success 200 {object} handler.apiResponse
// @Router /api/v1/system-settings [get]
func (h *SystemSettingsHandler) list(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	params := repository.ListSystemSettingsParams{
		Limit:  intQuery(c, "limit", 200),
		Offset: intQuery(c, "offset", 0),
	}
	if v := strings.TrimSpace(c.Query("prefix")); v != "" {
		params.Prefix = &v
	}
	items, err := h.Repo.ListSystemSettings(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, nil)
}

func (h *SystemSettingsHandler) get(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	key := strings.TrimSpace(c.Param("key"))
	if key == "" {
		Error(c, http.StatusBadRequest, "key required", nil)
		return
	}
	item, err := h.Repo.GetSystemSettingByKey(c.Request.Context(), key)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if item == nil {
		Error(c, http.StatusNotFound, "setting not found", nil)
		return
	}
	Ok(c, item, nil)
}

func (h *SystemSettingsHandler) put(c *gin.Context) {
	if h.Settings == nil {
		Error(c, http.StatusInternalServerError, "settings unavailable", nil)
		return
	}
	key := strings.TrimSpace(c.Param("key"))
	if key == "" {
		Error(c, http.StatusBadRequest, "key required", nil)
		return
	}
	body, err := c.GetRawData()
	if err != nil || len(body) == 0 {
		Error(c, http.StatusBadRequest, "value required", nil)
		return
	}
	if !json.Valid(body) {
		Error(c, http.StatusBadRequest, "value must be JSON", nil)
		return
	}
	if err := h.Settings.Set(c.Request.Context(), key, body, ""); err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, map[string]any{"key": key}, nil)
}

func (h *SystemSettingsHandler) getSwitch(c *gin.Context) {
	if h.Settings == nil {
		Error(c, http.StatusInternalServerError, "settings unavailable", nil)
		return
	}
	name := strings.TrimSpace(c.Param("name"))
	if name == "" {
		Error(c, http.StatusBadRequest, "name required", nil)
		return
	}
	enabled := h.Settings.IsEnabled(c.Request.Context(), name, false)
	Ok(c, map[string]any{"name": name, "enabled": enabled}, nil)
}

func (h *SystemSettingsHandler) putSwitch(c *gin.Context) {
	if h.Settings == nil {
		Error(c, http.StatusInternalServerError, "settings unavailable", nil)
		return
	}
	name := strings.TrimSpace(c.Param("name"))
	if name == "" {
		Error(c, http.StatusBadRequest, "name required", nil)
		return
	}
	var body struct {
		Enabled *bool `json:"enabled"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.Enabled == nil {
		Error(c, http.StatusBadRequest, "enabled required", nil)
		return
	}
	if err := h.Settings.SetEnabled(c.Request.Context(), name, *body.Enabled); err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, map[string]any{"name": name, "enabled": *body.Enabled}, nil)
}
