package internal

import (
	"k8s.io/klog/v2"

	"github.com/aimd-lab/director/internal/handler"
)

// registerManagers instantiates every registered handler manager.
func registerManagers(config *handler.RegisterConfig) []handler.Manager {
	var managers []handler.Manager
	for _, register := range handler.Registers {
		manager := register(config)
		managers = append(managers, manager)
		klog.Infof("Registered manager: %s", manager.GetName())
	}
	return managers
}
