/*
 * @module api/controllers/upload_controller
 * @description 批量上传控制器，提供文件入队、条目查询、重试、删除与历史查询API
 * @architecture RESTful API架构 - 控制器层
 * @documentReference ai_docs/bulk_upload_dedup_design.md
 * @stateFlow HTTP请求 -> 上传队列服务 -> 响应返回
 * @rules 上传文件入队后异步处理，接口立即返回条目ID；队列满时返回429
 * @dependencies donation-service/service, github.com/go-chi/chi/v5, github.com/go-chi/render
 * @refs service/upload/queue_service.go
 */

package controllers

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"donation-service/api/middleware"
	"donation-service/service"
	"donation-service/service/meta"
	"donation-service/service/models"
	"donation-service/service/upload"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/spf13/cast"
)

// 上传文件大小上限，32MB
const maxUploadSize = 32 << 20

// UploadController 批量上传控制器
type UploadController struct {
	queueService *upload.QueueService
}

// NewUploadController 创建上传控制器实例
func NewUploadController() *UploadController {
	return &UploadController{
		queueService: service.GlobalQueueService,
	}
}

// CreateUpload 上传文件并入队
// @Summary 上传捐赠数据文件
// @Description 上传CSV或JSON文件创建上传条目，条目入队后按序异步处理
// @Tags 批量上传
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "数据文件"
// @Param record_kind formData string false "记录类型(muzakki/distribusi)，缺省时按表头识别"
// @Param duplicate_action formData string false "重复处理策略(skip/update/merge/prompt)" default(prompt)
// @Param tolerance formData number false "模糊匹配相似度阈值" default(0.8)
// @Param strict_mode formData bool false "严格模式，仅精确匹配"
// @Param charset formData string false "文件字符编码" default(utf-8)
// @Success 200 {object} APIResponse{data=models.UploadEntry}
// @Failure 400 {object} APIResponse
// @Failure 429 {object} APIResponse
// @Router /uploads [post]
func (c *UploadController) CreateUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, ErrorResponse(http.StatusBadRequest, "解析上传表单失败", err))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, ErrorResponse(http.StatusBadRequest, "缺少上传文件", err))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxUploadSize))
	if err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, ErrorResponse(http.StatusBadRequest, "读取上传文件失败", err))
		return
	}

	recordKind := r.FormValue("record_kind")
	if recordKind != "" && !meta.IsValidRecordKind(recordKind) {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, ErrorResponse(http.StatusBadRequest, "无效的记录类型: "+recordKind, nil))
		return
	}

	config := uploadConfigFromForm(r)

	// 机构默认配置作为基底，表单字段逐项覆盖
	if partner := middleware.PartnerFromContext(r.Context()); partner != nil && len(partner.DefaultConfig) > 0 {
		merged := models.JSONB{}
		for k, v := range partner.DefaultConfig {
			merged[k] = v
		}
		for k, v := range config {
			merged[k] = v
		}
		config = merged
	}

	if action := cast.ToString(config["duplicate_action"]); action != "" && !meta.IsValidDuplicateAction(action) {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, ErrorResponse(http.StatusBadRequest, "无效的重复处理策略: "+action, nil))
		return
	}

	uploadedBy := r.FormValue("uploaded_by")
	if uploadedBy == "" {
		uploadedBy = partnerNameFromContext(r)
	}

	entry, err := c.queueService.Enqueue(&upload.EnqueueRequest{
		FileName:   header.Filename,
		Data:       data,
		RecordKind: recordKind,
		Source:     "http",
		UploadedBy: uploadedBy,
		Config:     config,
	})
	if err != nil {
		render.Status(r, http.StatusTooManyRequests)
		render.JSON(w, r, ErrorResponse(http.StatusTooManyRequests, "上传入队失败", err))
		return
	}

	render.JSON(w, r, SuccessResponse("上传条目已入队", entry))
}

// uploadConfigFromForm 从表单字段提取检测与解析配置
func uploadConfigFromForm(r *http.Request) models.JSONB {
	config := models.JSONB{}

	if action := r.FormValue("duplicate_action"); action != "" {
		config["duplicate_action"] = action
	}
	if tolerance := r.FormValue("tolerance"); tolerance != "" {
		if value, err := strconv.ParseFloat(tolerance, 64); err == nil {
			config["tolerance"] = value
		}
	}
	if strict := r.FormValue("strict_mode"); strict != "" {
		config["strict_mode"] = strict == "true"
	}
	if charset := r.FormValue("charset"); charset != "" {
		config["encoding"] = strings.ToLower(charset)
	}
	if script := r.FormValue("transform_script"); script != "" {
		config["transform_script"] = script
	}

	if len(config) == 0 {
		return nil
	}
	return config
}

// GetUploadList 获取上传条目列表
// @Summary 获取上传条目列表
// @Description 分页获取上传条目列表，支持按状态过滤
// @Tags 批量上传
// @Produce json
// @Param page query int false "页码" default(1)
// @Param size query int false "每页大小" default(10)
// @Param status query string false "条目状态过滤"
// @Success 200 {object} PaginatedResponse{data=[]models.UploadEntry}
// @Failure 500 {object} APIResponse
// @Router /uploads [get]
func (c *UploadController) GetUploadList(w http.ResponseWriter, r *http.Request) {
	page, size := parsePagination(r)
	status := r.URL.Query().Get("status")

	entries, total, err := c.queueService.ListEntries(page, size, status)
	if err != nil {
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, ErrorResponse(http.StatusInternalServerError, "获取上传条目列表失败", err))
		return
	}

	render.JSON(w, r, PaginatedSuccessResponse("获取上传条目列表成功", entries, total, page, size))
}

// GetUpload 获取上传条目详情
// @Summary 获取上传条目详情
// @Description 根据ID获取上传条目的状态与处理结果
// @Tags 批量上传
// @Produce json
// @Param id path string true "条目ID"
// @Success 200 {object} APIResponse{data=models.UploadEntry}
// @Failure 404 {object} APIResponse
// @Router /uploads/{id} [get]
func (c *UploadController) GetUpload(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	entry, err := c.queueService.GetEntry(id)
	if err != nil {
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, ErrorResponse(http.StatusNotFound, "上传条目不存在", err))
		return
	}

	render.JSON(w, r, SuccessResponse("获取上传条目成功", entry))
}

// RetryUpload 重试上传条目
// @Summary 重试上传条目
// @Description 将失败或待处理的条目重新入队处理
// @Tags 批量上传
// @Produce json
// @Param id path string true "条目ID"
// @Success 200 {object} APIResponse{data=models.UploadEntry}
// @Failure 400 {object} APIResponse
// @Router /uploads/{id}/retry [post]
func (c *UploadController) RetryUpload(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	entry, err := c.queueService.RetryEntry(id)
	if err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, ErrorResponse(http.StatusBadRequest, "重试上传条目失败", err))
		return
	}

	render.JSON(w, r, SuccessResponse("上传条目已重新入队", entry))
}

// DeleteUpload 删除上传条目
// @Summary 删除上传条目
// @Description 删除待处理或终态的上传条目，处理中的条目不可删除
// @Tags 批量上传
// @Produce json
// @Param id path string true "条目ID"
// @Success 200 {object} APIResponse
// @Failure 400 {object} APIResponse
// @Router /uploads/{id} [delete]
func (c *UploadController) DeleteUpload(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := c.queueService.DeleteEntry(id); err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, ErrorResponse(http.StatusBadRequest, "删除上传条目失败", err))
		return
	}

	render.JSON(w, r, SuccessResponse("上传条目已删除", nil))
}

// GetUploadHistories 获取上传历史列表
// @Summary 获取上传历史列表
// @Description 分页获取已完成批次的处理结果摘要，支持按记录类型过滤
// @Tags 批量上传
// @Produce json
// @Param page query int false "页码" default(1)
// @Param size query int false "每页大小" default(10)
// @Param record_kind query string false "记录类型过滤"
// @Success 200 {object} PaginatedResponse{data=[]models.UploadHistory}
// @Failure 500 {object} APIResponse
// @Router /uploads/histories [get]
func (c *UploadController) GetUploadHistories(w http.ResponseWriter, r *http.Request) {
	page, size := parsePagination(r)
	recordKind := r.URL.Query().Get("record_kind")

	histories, total, err := c.queueService.ListHistories(page, size, recordKind)
	if err != nil {
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, ErrorResponse(http.StatusInternalServerError, "获取上传历史失败", err))
		return
	}

	render.JSON(w, r, PaginatedSuccessResponse("获取上传历史成功", histories, total, page, size))
}

// parsePagination 解析分页查询参数
func parsePagination(r *http.Request) (int, int) {
	page := 1
	size := 10

	if p, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil && p > 0 {
		page = p
	}
	if s, err := strconv.Atoi(r.URL.Query().Get("size")); err == nil && s > 0 && s <= 100 {
		size = s
	}

	return page, size
}
