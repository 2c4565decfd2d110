package helper

import (
	"os"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/aimd-lab/director/dao/query"
	"github.com/aimd-lab/director/internal/handler"
	"github.com/aimd-lab/director/pkg/config"
	"github.com/aimd-lab/director/pkg/db/approval"
	"github.com/aimd-lab/director/pkg/db/identity"
	"github.com/aimd-lab/director/pkg/workflow"
)

// ConfigInitializer 封装配置初始化逻辑
type ConfigInitializer struct {
	backendConfig *config.Config
}

// NewConfigInitializer 创建新的ConfigInitializer实例
func NewConfigInitializer() *ConfigInitializer {
	return &ConfigInitializer{
		backendConfig: config.GetConfig(),
	}
}

// GetBackendConfig 获取后端配置
func (ci *ConfigInitializer) GetBackendConfig() *config.Config {
	return ci.backendConfig
}

// LoadDebugEnvironment 加载调试环境变量
func (ci *ConfigInitializer) LoadDebugEnvironment() error {
	if gin.Mode() != gin.DebugMode {
		return nil
	}

	if err := godotenv.Load(".debug.env"); err != nil {
		return err
	}

	be := os.Getenv("DIRECTOR_BE_PORT")
	if be == "" {
		panic("DIRECTOR_BE_PORT is not set")
	}
	ms := os.Getenv("DIRECTOR_MS_PORT")
	if ms == "" {
		panic("DIRECTOR_MS_PORT is not set")
	}

	ci.backendConfig.ServerAddr = ":" + be
	ci.backendConfig.MetricsAddr = ":" + ms

	return nil
}

// InitializeRegisterConfig 初始化注册配置：数据库、事件广播和审批引擎
func (ci *ConfigInitializer) InitializeRegisterConfig() (*handler.RegisterConfig, error) {
	db := query.GetDB()

	fanout := workflow.NewFanout()
	engine := workflow.NewEngine(
		approval.NewStore(db),
		identity.NewAssigner(db),
		workflow.WithPublisher(fanout),
	)

	return &handler.RegisterConfig{
		DB:     db,
		Engine: engine,
		Fanout: fanout,
	}, nil
}
