/*
 * @module api/controllers/partner_controller
 * @description 合作机构管理控制器，提供机构注册、API密钥签发与启停管理API
 * @architecture RESTful API架构 - 控制器层
 * @documentReference ai_docs/bulk_upload_dedup_design.md
 * @stateFlow 创建机构 -> 生成API密钥 -> 明文密钥仅在响应中返回一次
 * @rules 密钥以bcrypt哈希存储，丢失后只能重新签发
 * @dependencies donation-service/service, golang.org/x/crypto/bcrypt, github.com/google/uuid
 * @refs api/middleware/partner_auth.go, service/models/upload.go
 */

package controllers

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"

	"donation-service/api/middleware"
	"donation-service/service"
	"donation-service/service/models"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// PartnerController 合作机构管理控制器
type PartnerController struct {
	db *gorm.DB
}

// NewPartnerController 创建合作机构控制器实例
func NewPartnerController() *PartnerController {
	return &PartnerController{
		db: service.DB,
	}
}

// partnerNameFromContext 返回认证通过的机构名，未认证时为空
func partnerNameFromContext(r *http.Request) string {
	if partner := middleware.PartnerFromContext(r.Context()); partner != nil {
		return partner.Name
	}
	return ""
}

// CreatePartnerRequest 创建合作机构请求
type CreatePartnerRequest struct {
	Name          string       `json:"name" example:"lembaga-amil-a"`
	DefaultConfig models.JSONB `json:"default_config,omitempty"`
}

// PartnerKeyResponse 签发密钥响应，明文密钥仅在此返回一次
type PartnerKeyResponse struct {
	Partner *models.UploadPartner `json:"partner"`
	APIKey  string                `json:"api_key" example:"dn_0123456789abcdef0123456789abcdef"`
}

// generateAPIKey 生成机构API密钥及其存储形式
func generateAPIKey() (plaintext, prefix, hash string, err error) {
	raw := make([]byte, 16)
	if _, err = rand.Read(raw); err != nil {
		return "", "", "", fmt.Errorf("生成密钥随机数失败: %w", err)
	}

	plaintext = "dn_" + hex.EncodeToString(raw)
	prefix = plaintext[:12]

	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
	if err != nil {
		return "", "", "", fmt.Errorf("生成密钥哈希失败: %w", err)
	}

	return plaintext, prefix, string(hashed), nil
}

// CreatePartner 创建合作机构
// @Summary 创建合作机构
// @Description 注册合作机构并签发API密钥，明文密钥仅在本次响应中返回
// @Tags 合作机构
// @Accept json
// @Produce json
// @Param request body CreatePartnerRequest true "创建机构请求"
// @Success 200 {object} APIResponse{data=PartnerKeyResponse}
// @Failure 400 {object} APIResponse
// @Failure 500 {object} APIResponse
// @Router /partners [post]
func (c *PartnerController) CreatePartner(w http.ResponseWriter, r *http.Request) {
	var req CreatePartnerRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, ErrorResponse(http.StatusBadRequest, "请求参数解析失败", err))
		return
	}

	if req.Name == "" {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, ErrorResponse(http.StatusBadRequest, "机构名称不能为空", nil))
		return
	}

	plaintext, prefix, hash, err := generateAPIKey()
	if err != nil {
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, ErrorResponse(http.StatusInternalServerError, "生成API密钥失败", err))
		return
	}

	partner := &models.UploadPartner{
		ID:            uuid.New().String(),
		Name:          req.Name,
		APIKeyHash:    hash,
		KeyPrefix:     prefix,
		DefaultConfig: req.DefaultConfig,
		IsEnabled:     true,
	}

	if err := c.db.Create(partner).Error; err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, ErrorResponse(http.StatusBadRequest, "创建合作机构失败", err))
		return
	}

	render.JSON(w, r, SuccessResponse("合作机构创建成功", PartnerKeyResponse{
		Partner: partner,
		APIKey:  plaintext,
	}))
}

// GetPartnerList 获取合作机构列表
// @Summary 获取合作机构列表
// @Description 分页获取合作机构列表
// @Tags 合作机构
// @Produce json
// @Param page query int false "页码" default(1)
// @Param size query int false "每页大小" default(10)
// @Success 200 {object} PaginatedResponse{data=[]models.UploadPartner}
// @Failure 500 {object} APIResponse
// @Router /partners [get]
func (c *PartnerController) GetPartnerList(w http.ResponseWriter, r *http.Request) {
	page, size := parsePagination(r)

	var partners []models.UploadPartner
	var total int64

	if err := c.db.Model(&models.UploadPartner{}).Count(&total).Error; err != nil {
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, ErrorResponse(http.StatusInternalServerError, "获取合作机构列表失败", err))
		return
	}

	err := c.db.Order("created_at DESC").
		Offset((page - 1) * size).
		Limit(size).
		Find(&partners).Error
	if err != nil {
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, ErrorResponse(http.StatusInternalServerError, "获取合作机构列表失败", err))
		return
	}

	render.JSON(w, r, PaginatedSuccessResponse("获取合作机构列表成功", partners, total, page, size))
}

// RotatePartnerKey 重新签发API密钥
// @Summary 重新签发API密钥
// @Description 为指定机构重新生成API密钥，旧密钥立即失效
// @Tags 合作机构
// @Produce json
// @Param id path string true "机构ID"
// @Success 200 {object} APIResponse{data=PartnerKeyResponse}
// @Failure 404 {object} APIResponse
// @Router /partners/{id}/rotate-key [post]
func (c *PartnerController) RotatePartnerKey(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var partner models.UploadPartner
	if err := c.db.First(&partner, "id = ?", id).Error; err != nil {
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, ErrorResponse(http.StatusNotFound, "合作机构不存在", err))
		return
	}

	plaintext, prefix, hash, err := generateAPIKey()
	if err != nil {
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, ErrorResponse(http.StatusInternalServerError, "生成API密钥失败", err))
		return
	}

	partner.APIKeyHash = hash
	partner.KeyPrefix = prefix
	if err := c.db.Save(&partner).Error; err != nil {
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, ErrorResponse(http.StatusInternalServerError, "更新API密钥失败", err))
		return
	}

	render.JSON(w, r, SuccessResponse("API密钥已重新签发", PartnerKeyResponse{
		Partner: &partner,
		APIKey:  plaintext,
	}))
}

// UpdatePartnerStatusRequest 更新机构启用状态请求
type UpdatePartnerStatusRequest struct {
	IsEnabled bool `json:"is_enabled" example:"false"`
}

// UpdatePartnerStatus 启用或禁用合作机构
// @Summary 启用或禁用合作机构
// @Description 禁用后该机构的API密钥立即失效
// @Tags 合作机构
// @Accept json
// @Produce json
// @Param id path string true "机构ID"
// @Param request body UpdatePartnerStatusRequest true "状态更新请求"
// @Success 200 {object} APIResponse{data=models.UploadPartner}
// @Failure 404 {object} APIResponse
// @Router /partners/{id}/status [put]
func (c *PartnerController) UpdatePartnerStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req UpdatePartnerStatusRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, ErrorResponse(http.StatusBadRequest, "请求参数解析失败", err))
		return
	}

	var partner models.UploadPartner
	if err := c.db.First(&partner, "id = ?", id).Error; err != nil {
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, ErrorResponse(http.StatusNotFound, "合作机构不存在", err))
		return
	}

	partner.IsEnabled = req.IsEnabled
	if err := c.db.Save(&partner).Error; err != nil {
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, ErrorResponse(http.StatusInternalServerError, "更新机构状态失败", err))
		return
	}

	render.JSON(w, r, SuccessResponse("机构状态更新成功", partner))
}

// DeletePartner 删除合作机构
// @Summary 删除合作机构
// @Description 删除机构记录，其API密钥立即失效
// @Tags 合作机构
// @Produce json
// @Param id path string true "机构ID"
// @Success 200 {object} APIResponse
// @Failure 404 {object} APIResponse
// @Router /partners/{id} [delete]
func (c *PartnerController) DeletePartner(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	result := c.db.Delete(&models.UploadPartner{}, "id = ?", id)
	if result.Error != nil {
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, ErrorResponse(http.StatusInternalServerError, "删除合作机构失败", result.Error))
		return
	}
	if result.RowsAffected == 0 {
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, ErrorResponse(http.StatusNotFound, "合作机构不存在", nil))
		return
	}

	render.JSON(w, r, SuccessResponse("合作机构已删除", nil))
}
