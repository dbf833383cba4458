/*
 * @module api/routes
 * @description API路由配置模块，负责初始化和配置所有HTTP路由
 * @architecture RESTful API架构
 * @documentReference ai_docs/bulk_upload_dedup_design.md
 * @stateFlow 无状态HTTP请求处理
 * @rules 遵循RESTful API设计规范，统一错误处理和响应格式；机构上传接口启用API密钥认证
 * @dependencies github.com/go-chi/chi/v5, github.com/go-chi/cors, github.com/go-chi/render
 * @refs api/controllers, api/middleware
 */

package api

import (
	"os"

	"donation-service/api/controllers"
	authmw "donation-service/api/middleware"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/render"
)

// InitRoute 初始化所有API路由
func InitRoute(r *chi.Mux) {
	// 基础中间件
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(render.SetContentType(render.ContentTypeJSON))

	// CORS配置
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// 健康检查
	healthController := controllers.NewHealthController()
	r.Get("/health", healthController.Health)
	r.Get("/ready", healthController.Ready)

	// SSE事件订阅
	eventController := controllers.NewEventController()
	r.Get("/sse/{user_name}", eventController.HandleSSE)

	// 事件管理
	r.Route("/events", func(r chi.Router) {
		r.Post("/send", eventController.SendEvent)
		r.Post("/broadcast", eventController.BroadcastEvent)
		r.Get("/connections", eventController.GetSSEConnectionList)
		r.Get("/history", eventController.GetEventHistoryList)
	})

	// 元数据管理
	r.Route("/meta", func(r chi.Router) {
		metaController := controllers.NewMetaController()
		r.Get("/record-kinds", metaController.GetRecordKinds)
		r.Get("/duplicate-actions", metaController.GetDuplicateActions)
		r.Get("/entry-statuses", metaController.GetEntryStatuses)
	})

	// 批量上传管理
	r.Route("/uploads", func(r chi.Router) {
		uploadController := controllers.NewUploadController()

		// 机构上传入口，UPLOAD_AUTH_DISABLED=true时跳过密钥认证（开发环境）
		r.Group(func(r chi.Router) {
			if os.Getenv("UPLOAD_AUTH_DISABLED") != "true" {
				r.Use(authmw.PartnerAuth)
			}
			r.Use(authmw.UploadRateLimit)
			r.Post("/", uploadController.CreateUpload)
		})

		r.Get("/", uploadController.GetUploadList)
		r.Get("/histories", uploadController.GetUploadHistories)
		r.Get("/{id}", uploadController.GetUpload)
		r.Post("/{id}/retry", uploadController.RetryUpload)
		r.Delete("/{id}", uploadController.DeleteUpload)
	})

	// 重复复核
	r.Route("/review", func(r chi.Router) {
		reviewController := controllers.NewReviewController()
		r.Get("/current", reviewController.GetCurrentReview)
		r.Post("/{entry_id}/resolve", reviewController.ResolveReview)
		r.Post("/{entry_id}/cancel", reviewController.CancelReview)
	})

	// 合作机构管理
	r.Route("/partners", func(r chi.Router) {
		partnerController := controllers.NewPartnerController()
		r.Post("/", partnerController.CreatePartner)
		r.Get("/", partnerController.GetPartnerList)
		r.Post("/{id}/rotate-key", partnerController.RotatePartnerKey)
		r.Put("/{id}/status", partnerController.UpdatePartnerStatus)
		r.Delete("/{id}", partnerController.DeletePartner)
	})

	// 系统配置管理
	r.Route("/config", func(r chi.Router) {
		configController := controllers.NewConfigController()
		r.Get("/", configController.GetAllConfigs)
		r.Get("/{key}", configController.GetConfig)
		r.Put("/{key}", configController.UpdateConfig)
	})
}
