/*
 * @module api/middleware/upload_rate_limit
 * @description 上传限流中间件，按机构与全局两层限制上传频率
 * @architecture 中间件模式 - 请求预处理
 * @documentReference ai_docs/bulk_upload_dedup_design.md
 * @stateFlow 取认证机构 -> Redis限流检查 -> 放行或429
 * @rules 限流器未初始化或检查出错时放行，限流不得阻断正常上传
 * @dependencies donation-service/service/rate_limiter
 * @refs api/middleware/partner_auth.go, api/routes.go
 */

package middleware

import (
	"log/slog"
	"net/http"
	"strconv"

	"donation-service/service"

	"github.com/go-chi/render"
)

// UploadRateLimit 上传限流中间件，置于PartnerAuth之后
func UploadRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		limiter := service.GlobalRateLimiter
		if limiter == nil {
			next.ServeHTTP(w, r)
			return
		}

		partnerID := "anonymous"
		if partner := PartnerFromContext(r.Context()); partner != nil {
			partnerID = partner.ID
		}

		result, err := limiter.CheckUploadLimit(r.Context(), partnerID)
		if err != nil {
			slog.Warn("上传限流检查失败，放行请求", "error", err)
			next.ServeHTTP(w, r)
			return
		}

		if !result.Allowed {
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt, 10))

			render.Status(r, http.StatusTooManyRequests)
			render.JSON(w, r, map[string]interface{}{
				"status": http.StatusTooManyRequests,
				"msg":    "上传频率超限，请稍后重试",
				"data":   result,
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}
