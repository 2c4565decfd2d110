package main

import (
	"context"

	"k8s.io/klog/v2"

	"github.com/aimd-lab/director/cmd/director/helper"
)

// @title						AI Marketing Director API
// @version						1.0.0
// @description					This is the API server for the content approval workflow of the AI Marketing Director platform.
// @securityDefinitions.apikey	Bearer
// @in							header
// @name						Authorization
// @description					访问 /v1/login 并获取 TOKEN 后，填入 'Bearer ${TOKEN}' 以访问受保护的接口
func main() {
	// Initialize configuration
	configInit := helper.NewConfigInitializer()
	backendConfig := configInit.GetBackendConfig()

	// Load debug environment if needed
	if err := configInit.LoadDebugEnvironment(); err != nil {
		klog.Fatalf("Failed to load env: %s", err)
	}

	// Initialize register config and dependencies
	registerConfig, err := configInit.InitializeRegisterConfig()
	if err != nil {
		klog.Fatalf("Failed to register config: %s\n", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start notifier, escalation job and metrics endpoint
	serverRunner := helper.NewServerRunner(backendConfig)
	serverRunner.StartBackgroundJobs(ctx, registerConfig)

	// Start HTTP server, blocks until SIGINT/SIGTERM
	serverRunner.StartServer(cancel, registerConfig)
}
