/*
 * @module api/middleware/partner_auth
 * @description 合作机构API密钥认证中间件，校验X-API-Key请求头
 * @architecture 中间件模式 - 请求预处理
 * @documentReference ai_docs/bulk_upload_dedup_design.md
 * @stateFlow 提取密钥 -> 前缀查找机构 -> bcrypt校验 -> 注入请求上下文
 * @rules 密钥以bcrypt哈希存储，前缀仅用于定位记录；禁用机构的密钥一律拒绝
 * @dependencies golang.org/x/crypto/bcrypt, gorm.io/gorm
 * @refs service/models/upload.go, api/controllers/partner_controller.go
 */

package middleware

import (
	"context"
	"net/http"

	"donation-service/service"
	"donation-service/service/models"

	"github.com/go-chi/render"
	"golang.org/x/crypto/bcrypt"
)

type contextKey string

// PartnerContextKey 认证通过的合作机构在请求上下文中的键
const PartnerContextKey contextKey = "upload_partner"

// 密钥前缀长度，入库时截取密钥头部便于查找
const keyPrefixLength = 12

// PartnerFromContext 从请求上下文取出认证通过的合作机构
func PartnerFromContext(ctx context.Context) *models.UploadPartner {
	partner, _ := ctx.Value(PartnerContextKey).(*models.UploadPartner)
	return partner
}

// PartnerAuth 合作机构API密钥认证中间件
func PartnerAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiKey := r.Header.Get("X-API-Key")
		if apiKey == "" {
			unauthorized(w, r, "缺少X-API-Key请求头")
			return
		}
		if len(apiKey) < keyPrefixLength {
			unauthorized(w, r, "无效的API密钥")
			return
		}

		if service.DB == nil {
			unauthorized(w, r, "认证服务未就绪")
			return
		}

		var partner models.UploadPartner
		err := service.DB.Where("key_prefix = ?", apiKey[:keyPrefixLength]).First(&partner).Error
		if err != nil {
			unauthorized(w, r, "无效的API密钥")
			return
		}

		if !partner.IsEnabled {
			unauthorized(w, r, "合作机构已被禁用")
			return
		}

		if bcrypt.CompareHashAndPassword([]byte(partner.APIKeyHash), []byte(apiKey)) != nil {
			unauthorized(w, r, "无效的API密钥")
			return
		}

		ctx := context.WithValue(r.Context(), PartnerContextKey, &partner)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func unauthorized(w http.ResponseWriter, r *http.Request, msg string) {
	render.Status(r, http.StatusUnauthorized)
	render.JSON(w, r, map[string]interface{}{
		"status": http.StatusUnauthorized,
		"msg":    msg,
	})
}
