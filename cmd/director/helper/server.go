package helper

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"k8s.io/klog/v2"

	"github.com/aimd-lab/director/internal"
	"github.com/aimd-lab/director/internal/handler"
	"github.com/aimd-lab/director/pkg/config"
	"github.com/aimd-lab/director/pkg/escalate"
	"github.com/aimd-lab/director/pkg/metrics"
	"github.com/aimd-lab/director/pkg/notify"
)

// ServerRunner 封装服务器运行逻辑
type ServerRunner struct {
	backendConfig *config.Config
}

// NewServerRunner 创建新的ServerRunner实例
func NewServerRunner(backendConfig *config.Config) *ServerRunner {
	return &ServerRunner{
		backendConfig: backendConfig,
	}
}

var (
	readHeaderTimeout = 10 * time.Second // 设置读取头部的超时时间
	cancelTimeout     = 10 * time.Second // 设置取消操作的超时时间
)

// StartBackgroundJobs 启动通知消费者、升级提醒任务和指标服务
func (sr *ServerRunner) StartBackgroundJobs(ctx context.Context, registerConfig *handler.RegisterConfig) {
	notifier := notify.NewNotifier(registerConfig.DB)
	go notifier.Run(ctx, registerConfig.Fanout)

	escalation := escalate.NewManager(registerConfig.DB, registerConfig.Engine, notifier)
	if err := escalation.Start(ctx); err != nil {
		klog.Fatalf("Failed to start escalation manager: %s", err)
	}

	if sr.backendConfig.MetricsAddr != "" {
		go func() {
			if err := metrics.Serve(ctx, sr.backendConfig.MetricsAddr); err != nil {
				klog.Errorf("metrics server: %v", err)
			}
		}()
	}
}

// StartServer 启动HTTP服务器
func (sr *ServerRunner) StartServer(cancel context.CancelFunc, registerConfig *handler.RegisterConfig) {
	klog.Info("starting server")
	backend := internal.Register(registerConfig)

	// reference: https://gin-gonic.com/en/docs/examples/graceful-restart-or-stop
	srv := &http.Server{
		Addr:              sr.backendConfig.ServerAddr,
		Handler:           backend.R,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		// service connections
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			klog.Fatalf("listen: %s\n", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server with
	// a timeout of 10 seconds.
	quit := make(chan os.Signal, 1)
	// kill (no params) by default sends syscall.SIGTERM
	// kill -2 is syscall.SIGINT
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	klog.Info("Shutdown Gin Server ...")
	cancel()

	ctx, cancelShutdown := context.WithTimeout(context.Background(), cancelTimeout)
	defer cancelShutdown()
	if err := srv.Shutdown(ctx); err != nil {
		klog.Info("Gin Server Shutdown:", err)
	}
	klog.Info("Gin Server exiting")
}
