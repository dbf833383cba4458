package main

import (
	"donation-service/api"
	_ "donation-service/docs"
	"donation-service/logger"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"donation-service/service"

	daprd "github.com/dapr/go-sdk/service/http"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"
)

var (
	PORT         = 80
	BASE_CONTEXT = ""
)

func init() {
	logger.InitLogger()

	if val := os.Getenv("LISTEN_PORT"); val != "" {
		PORT, _ = strconv.Atoi(val)
	}

	if val := os.Getenv("BASE_CONTEXT"); val != "" {
		BASE_CONTEXT = val
	}
}

// @title 捐赠数据服务 API
// @version 1.0
// @description 捐赠数据后台服务，提供批量上传、重复检测、人工复核与记录对账功能
// @BasePath /swagger/donation-service
func main() {
	mux := chi.NewRouter()

	// 如果有BASE_CONTEXT，则在该路径下挂载所有路由
	if BASE_CONTEXT != "" {
		mux.Route(BASE_CONTEXT, func(r chi.Router) {
			// 创建子路由器并初始化路由
			subMux := r.(*chi.Mux)
			api.InitRoute(subMux)
			r.Handle("/metrics", promhttp.Handler())
			r.Handle("/swagger*", httpSwagger.WrapHandler)
		})
	} else {
		api.InitRoute(mux)
		mux.Handle("/metrics", promhttp.Handler())
		mux.Handle("/swagger*", httpSwagger.WrapHandler)
	}

	// 收到终止信号时停止队列与后台任务再退出
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		log.Println("收到终止信号，开始优雅关闭...")
		shutdownServices()
		os.Exit(0)
	}()

	s := daprd.NewServiceWithMux(":"+strconv.Itoa(PORT), mux)
	if err := s.Start(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("error: %v", err)
	}
}

// shutdownServices 按依赖顺序停止后台服务
func shutdownServices() {
	if service.GlobalMQTTIntake != nil {
		service.GlobalMQTTIntake.Stop()
	}
	if service.GlobalQueueService != nil {
		service.GlobalQueueService.Stop()
	}
	if service.GlobalCleanupService != nil {
		service.GlobalCleanupService.StopScheduledCleanup()
	}
	if service.GlobalAuditPublisher != nil {
		if err := service.GlobalAuditPublisher.Close(); err != nil {
			log.Printf("关闭审计发布器失败: %v", err)
		}
	}
	if service.GlobalEventService != nil {
		service.GlobalEventService.Stop()
	}
}
