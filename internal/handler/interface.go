package handler

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/aimd-lab/director/pkg/workflow"
)

// Manager registers one feature's routes on the public, protected and
// admin route groups.
type Manager interface {
	GetName() string
	RegisterPublic(group *gin.RouterGroup)
	RegisterProtected(group *gin.RouterGroup)
	RegisterAdmin(group *gin.RouterGroup)
}

// RegisterConfig carries the shared dependencies handed to every manager.
type RegisterConfig struct {
	DB     *gorm.DB
	Engine *workflow.Engine
	Fanout *workflow.Fanout
}

// Registers collects the manager constructors; each handler file appends
// its own in init().
var Registers []func(*RegisterConfig) Manager
