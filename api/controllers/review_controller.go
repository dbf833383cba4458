/*
 * @module api/controllers/review_controller
 * @description 重复复核控制器，提供当前复核条目查询、决策提交与取消API
 * @architecture RESTful API架构 - 控制器层
 * @documentReference ai_docs/bulk_upload_dedup_design.md
 * @stateFlow 查询当前复核 -> 操作员提交决策 -> 队列继续处理
 * @rules 同一时刻最多一个条目处于复核状态；决策策略不允许再次prompt
 * @dependencies donation-service/service, github.com/go-chi/chi/v5, github.com/go-chi/render
 * @refs service/upload/review_slot.go, service/upload/queue_service.go
 */

package controllers

import (
	"net/http"

	"donation-service/service"
	"donation-service/service/dedup"
	"donation-service/service/upload"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

// ReviewController 重复复核控制器
type ReviewController struct {
	queueService *upload.QueueService
}

// NewReviewController 创建复核控制器实例
func NewReviewController() *ReviewController {
	return &ReviewController{
		queueService: service.GlobalQueueService,
	}
}

// ResolveReviewRequest 复核决策请求
type ResolveReviewRequest struct {
	// 对整批待复核重复项的默认处理策略，skip/update/merge之一
	Action string `json:"action" example:"merge"`
	// 按行号覆盖默认策略，键为上传行号
	RowActions map[int]string `json:"row_actions,omitempty"`
	Tolerance  *float64       `json:"tolerance,omitempty"`
	StrictMode *bool          `json:"strict_mode,omitempty"`
}

// GetCurrentReview 获取当前待复核条目
// @Summary 获取当前待复核条目
// @Description 返回正在等待人工复核的上传条目及其重复检测结果，无待复核条目时data为空
// @Tags 重复复核
// @Produce json
// @Success 200 {object} APIResponse{data=upload.ReviewView}
// @Router /review/current [get]
func (c *ReviewController) GetCurrentReview(w http.ResponseWriter, r *http.Request) {
	view := c.queueService.CurrentReview()
	if view == nil {
		render.JSON(w, r, SuccessResponse("当前没有待复核的上传条目", nil))
		return
	}

	render.JSON(w, r, SuccessResponse("获取待复核条目成功", view))
}

// ResolveReview 提交复核决策
// @Summary 提交复核决策
// @Description 对指定条目的待复核重复项提交处理决策，队列随后按决策继续处理
// @Tags 重复复核
// @Accept json
// @Produce json
// @Param entry_id path string true "条目ID"
// @Param request body ResolveReviewRequest true "复核决策"
// @Success 200 {object} APIResponse
// @Failure 400 {object} APIResponse
// @Failure 409 {object} APIResponse
// @Router /review/{entry_id}/resolve [post]
func (c *ReviewController) ResolveReview(w http.ResponseWriter, r *http.Request) {
	entryID := chi.URLParam(r, "entry_id")

	var req ResolveReviewRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, ErrorResponse(http.StatusBadRequest, "请求参数解析失败", err))
		return
	}

	decision := &dedup.DetectionConfig{
		Action:     req.Action,
		RowActions: req.RowActions,
	}
	if req.Tolerance != nil {
		decision.Tolerance = *req.Tolerance
	} else {
		decision.Tolerance = service.GlobalConfigService.GetFuzzyTolerance()
	}
	if req.StrictMode != nil {
		decision.StrictMode = *req.StrictMode
	}

	if err := c.queueService.ResolveReview(entryID, decision); err != nil {
		render.Status(r, http.StatusConflict)
		render.JSON(w, r, ErrorResponse(http.StatusConflict, "提交复核决策失败", err))
		return
	}

	render.JSON(w, r, SuccessResponse("复核决策已提交", nil))
}

// CancelReview 取消复核
// @Summary 取消复核
// @Description 取消指定条目的人工复核，条目回到待处理状态等待手动重试
// @Tags 重复复核
// @Produce json
// @Param entry_id path string true "条目ID"
// @Success 200 {object} APIResponse
// @Failure 409 {object} APIResponse
// @Router /review/{entry_id}/cancel [post]
func (c *ReviewController) CancelReview(w http.ResponseWriter, r *http.Request) {
	entryID := chi.URLParam(r, "entry_id")

	if err := c.queueService.CancelReview(entryID); err != nil {
		render.Status(r, http.StatusConflict)
		render.JSON(w, r, ErrorResponse(http.StatusConflict, "取消复核失败", err))
		return
	}

	render.JSON(w, r, SuccessResponse("复核已取消", nil))
}
