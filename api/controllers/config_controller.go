/*
 * @module api/controllers/config_controller
 * @description 系统配置管理控制器，提供去重策略等运行参数的查询与更新API
 * @architecture RESTful API架构 - 控制器层
 * @documentReference ai_docs/bulk_upload_dedup_design.md
 * @stateFlow HTTP请求 -> 配置服务 -> 响应返回
 * @rules 复核阈值更新后立即生效于队列，无需重启
 * @dependencies donation-service/service, github.com/go-chi/chi/v5, github.com/go-chi/render
 * @refs service/config/config_service.go
 */

package controllers

import (
	"net/http"

	"donation-service/service"
	"donation-service/service/config"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

// ConfigController 系统配置控制器
type ConfigController struct {
	configService *config.ConfigService
}

// NewConfigController 创建配置控制器实例
func NewConfigController() *ConfigController {
	return &ConfigController{
		configService: service.GlobalConfigService,
	}
}

// UpdateConfigRequest 更新配置请求
type UpdateConfigRequest struct {
	Value       string `json:"value" example:"0.8"`
	Description string `json:"description,omitempty" example:"新记录占比超过该值时跳过人工复核"`
}

// GetAllConfigs 获取所有系统配置
// @Summary 获取所有系统配置
// @Description 获取所有系统配置项，未落库的配置项返回默认值
// @Tags 系统配置
// @Produce json
// @Success 200 {object} APIResponse{data=[]models.SystemConfigItem}
// @Failure 500 {object} APIResponse
// @Router /config [get]
func (c *ConfigController) GetAllConfigs(w http.ResponseWriter, r *http.Request) {
	configs, err := c.configService.GetAllSystemConfigs()
	if err != nil {
		render.JSON(w, r, map[string]interface{}{
			"status": http.StatusInternalServerError,
			"msg":    "获取系统配置失败: " + err.Error(),
		})
		return
	}

	render.JSON(w, r, map[string]interface{}{
		"status": http.StatusOK,
		"msg":    "获取系统配置成功",
		"data":   configs,
	})
}

// GetConfig 获取指定配置
// @Summary 获取指定配置
// @Description 根据配置键获取配置值
// @Tags 系统配置
// @Produce json
// @Param key path string true "配置键"
// @Success 200 {object} APIResponse
// @Failure 404 {object} APIResponse
// @Router /config/{key} [get]
func (c *ConfigController) GetConfig(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	value, err := c.configService.GetSystemConfig(key)
	if err != nil {
		render.JSON(w, r, map[string]interface{}{
			"status": http.StatusNotFound,
			"msg":    "配置不存在: " + key,
		})
		return
	}

	render.JSON(w, r, map[string]interface{}{
		"status": http.StatusOK,
		"msg":    "获取配置成功",
		"data": map[string]interface{}{
			"key":   key,
			"value": value,
		},
	})
}

// UpdateConfig 更新指定配置
// @Summary 更新指定配置
// @Description 更新配置值，复核阈值的变更立即应用到上传队列
// @Tags 系统配置
// @Accept json
// @Produce json
// @Param key path string true "配置键"
// @Param request body UpdateConfigRequest true "更新配置请求"
// @Success 200 {object} APIResponse
// @Failure 400 {object} APIResponse
// @Router /config/{key} [put]
func (c *ConfigController) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	var req UpdateConfigRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		render.JSON(w, r, map[string]interface{}{
			"status": http.StatusBadRequest,
			"msg":    "请求参数解析失败: " + err.Error(),
		})
		return
	}

	if err := c.configService.SetSystemConfig(key, req.Value, req.Description); err != nil {
		render.JSON(w, r, map[string]interface{}{
			"status": http.StatusBadRequest,
			"msg":    "更新配置失败: " + err.Error(),
		})
		return
	}

	// 复核阈值热更新，下一个批次即按新阈值判定
	if key == config.ConfigKeyReviewNewRatioThreshold && service.GlobalQueueService != nil {
		service.GlobalQueueService.SetReviewThreshold(c.configService.GetReviewNewRatioThreshold())
	}

	render.JSON(w, r, map[string]interface{}{
		"status": http.StatusOK,
		"msg":    "更新配置成功",
		"data": map[string]interface{}{
			"key":   key,
			"value": req.Value,
		},
	})
}
