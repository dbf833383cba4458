/*
 * @module service/init
 * @description 服务初始化模块，负责数据库连接、迁移与全局服务装配
 * @architecture 分层架构 - 服务层
 * @documentReference ai_docs/bulk_upload_dedup_design.md
 * @stateFlow 应用启动时执行初始化流程
 * @rules 数据库不可用时降级为未装配状态，由测试环境自行注入依赖
 * @dependencies gorm.io/gorm, gorm.io/driver/postgres
 * @refs service/upload/queue_service.go, service/event/event_service.go
 */

package service

import (
	"fmt"
	"log"
	"os"

	"donation-service/service/cleanup"
	"donation-service/service/config"
	"donation-service/service/database"
	"donation-service/service/distributed_lock"
	"donation-service/service/event"
	"donation-service/service/messaging"
	"donation-service/service/monitoring"
	"donation-service/service/rate_limiter"
	"donation-service/service/upload"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var (
	DB                    *gorm.DB
	GlobalEventService    *event.EventService
	GlobalConfigService   *config.ConfigService
	GlobalQueueService    *upload.QueueService
	GlobalCleanupService  *cleanup.HistoryCleanupService
	GlobalPipelineMetrics *monitoring.PipelineMetrics
	GlobalMQTTIntake      *upload.MQTTIntake
	GlobalAuditPublisher  *messaging.KafkaAuditPublisher
	GlobalRateLimiter     *rate_limiter.RedisRateLimiter
)

func init() {
	if !initDatabase() {
		// 数据库不可用时不装配服务，测试环境使用内存库自行构建
		return
	}
	runMigrations()
	initServices()
}

// initDatabase 初始化数据库连接
func initDatabase() bool {
	var dsn string

	// 优先使用DATABASE_URL环境变量
	if databaseURL := os.Getenv("DATABASE_URL"); databaseURL != "" {
		dsn = databaseURL
	} else {
		host := getEnvWithDefault("DB_HOST", "localhost")
		port := getEnvWithDefault("DB_PORT", "5432")
		user := getEnvWithDefault("DB_USER", "postgres")
		password := getEnvWithDefault("DB_PASSWORD", "postgres")
		dbname := getEnvWithDefault("DB_NAME", "postgres")
		sslmode := getEnvWithDefault("DB_SSLMODE", "disable")
		schema := getEnvWithDefault("DB_SCHEMA", "public")

		dsn = fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s search_path=%s TimeZone=Asia/Jakarta",
			host, port, user, password, dbname, sslmode, schema)
	}

	var err error
	DB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Printf("数据库连接失败，跳过服务装配: %v", err)
		return false
	}

	log.Println("数据库连接成功")
	return true
}

// getEnvWithDefault 获取环境变量，如果不存在则返回默认值
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// runMigrations 运行数据库迁移
func runMigrations() {
	log.Println("开始运行数据库迁移...")

	if err := database.AutoMigrate(DB); err != nil {
		log.Fatalf("数据库迁移失败: %v", err)
	}
	log.Println("数据库表结构迁移完成")

	if err := database.InitializeData(DB); err != nil {
		log.Fatalf("基础数据初始化失败: %v", err)
	}
	log.Println("基础数据初始化完成")
}

// initServices 初始化服务
func initServices() {
	GlobalEventService = event.NewEventService(DB)
	GlobalConfigService = config.NewConfigService(DB)
	GlobalPipelineMetrics = monitoring.NewPipelineMetrics()

	// 上传队列协调器，事件服务用于向复核界面推送状态变化
	GlobalQueueService = upload.NewQueueService(DB, GlobalEventService)
	GlobalQueueService.SetObserver(GlobalPipelineMetrics)
	GlobalQueueService.SetReviewThreshold(GlobalConfigService.GetReviewNewRatioThreshold())

	// 可选依赖：Redis分布式锁与上传限流
	if os.Getenv("REDIS_HOST") != "" {
		if lock, err := distributed_lock.NewRedisLock(); err != nil {
			log.Printf("Redis分布式锁初始化失败，队列以单实例模式运行: %v", err)
		} else {
			GlobalQueueService.SetDistributedLock(lock)
		}

		if limiter, err := rate_limiter.NewRedisRateLimiter(); err != nil {
			log.Printf("Redis限流器初始化失败，上传接口不限流: %v", err)
		} else {
			GlobalRateLimiter = limiter
		}
	}

	// 可选依赖：Kafka审计发布
	if kafkaConfig := messaging.LoadKafkaAuditConfigFromEnv(); kafkaConfig != nil {
		GlobalAuditPublisher = messaging.NewKafkaAuditPublisher(kafkaConfig)
		GlobalQueueService.SetAuditPublisher(GlobalAuditPublisher)
	}

	// postgres通知监听，将库内变更转为SSE事件
	if err := GlobalEventService.StartDBListener(); err != nil {
		log.Printf("启动数据库监听器失败: %v", err)
	}

	if err := GlobalQueueService.Start(); err != nil {
		log.Printf("启动上传队列失败: %v", err)
	}

	// 可选依赖：MQTT上传通道
	if mqttConfig := upload.LoadMQTTIntakeConfigFromEnv(); mqttConfig != nil {
		GlobalMQTTIntake = upload.NewMQTTIntake(GlobalQueueService, mqttConfig)
		if err := GlobalMQTTIntake.Start(); err != nil {
			log.Printf("启动MQTT上传通道失败: %v", err)
		}
	}

	// 历史清理调度器
	GlobalCleanupService = cleanup.NewHistoryCleanupService(DB, GlobalConfigService)
	if err := GlobalCleanupService.StartScheduledCleanup(); err != nil {
		log.Printf("启动历史清理调度器失败: %v", err)
	}

	log.Println("服务初始化完成")
}
