/*
 * @module api/controllers/health_controller
 * @description 健康检查控制器，提供存活与就绪探针
 * @architecture RESTful API架构 - 控制器层
 * @documentReference ai_docs/bulk_upload_dedup_design.md
 * @stateFlow HTTP请求 -> 状态检查 -> 响应返回
 * @rules 就绪检查依赖数据库连通性
 * @dependencies donation-service/service, github.com/go-chi/render
 * @refs api/routes.go
 */

package controllers

import (
	"net/http"
	"time"

	"donation-service/service"

	"github.com/go-chi/render"
)

// HealthController 健康检查控制器
type HealthController struct{}

// NewHealthController 创建健康检查控制器实例
func NewHealthController() *HealthController {
	return &HealthController{}
}

// HealthResponse 健康检查响应
type HealthResponse struct {
	Status    string `json:"status" example:"ok"`
	Service   string `json:"service" example:"donation-service"`
	Timestamp string `json:"timestamp" example:"2024-01-01T00:00:00Z"`
}

// Health 健康检查
// @Summary 健康检查
// @Description 检查服务是否存活
// @Tags 系统
// @Produce json
// @Success 200 {object} HealthResponse
// @Router /health [get]
func (c *HealthController) Health(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, HealthResponse{
		Status:    "ok",
		Service:   "donation-service",
		Timestamp: time.Now().Format(time.RFC3339),
	})
}

// Ready 就绪检查
// @Summary 就绪检查
// @Description 检查服务依赖是否就绪，数据库不可用时返回503
// @Tags 系统
// @Produce json
// @Success 200 {object} HealthResponse
// @Failure 503 {object} APIResponse
// @Router /ready [get]
func (c *HealthController) Ready(w http.ResponseWriter, r *http.Request) {
	if service.DB == nil {
		render.Status(r, http.StatusServiceUnavailable)
		render.JSON(w, r, ErrorResponse(http.StatusServiceUnavailable, "数据库未就绪", nil))
		return
	}

	sqlDB, err := service.DB.DB()
	if err != nil || sqlDB.Ping() != nil {
		render.Status(r, http.StatusServiceUnavailable)
		render.JSON(w, r, ErrorResponse(http.StatusServiceUnavailable, "数据库连接异常", err))
		return
	}

	render.JSON(w, r, HealthResponse{
		Status:    "ready",
		Service:   "donation-service",
		Timestamp: time.Now().Format(time.RFC3339),
	})
}
