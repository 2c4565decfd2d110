// Migration and seed script for the approval database.
//
// Usage:
//
//	go run ./cmd/migrate            # apply migrations
//	SEED=1 go run ./cmd/migrate    # apply migrations and seed defaults
package main

import (
	"fmt"
	"os"

	"github.com/go-gormigrate/gormigrate/v2"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"k8s.io/klog/v2"
	"k8s.io/utils/ptr"

	"github.com/aimd-lab/director/dao/model"
	"github.com/aimd-lab/director/dao/query"
)

func main() {
	db := query.GetDB()

	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		{
			// 初始表结构
			ID: "202608310001",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(
					&model.User{},
					&model.WorkflowTemplate{},
					&model.StageTemplate{},
					&model.ApprovalRequest{},
					&model.Stage{},
					&model.Comment{},
					&model.ApprovalEvent{},
				)
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(
					&model.ApprovalEvent{},
					&model.Comment{},
					&model.Stage{},
					&model.ApprovalRequest{},
					&model.StageTemplate{},
					&model.WorkflowTemplate{},
					&model.User{},
				)
			},
		},
	})

	if err := m.Migrate(); err != nil {
		klog.Fatalf("migration failed: %v", err)
	}
	klog.Info("migration did run successfully")

	if os.Getenv("SEED") == "1" {
		if err := seed(db); err != nil {
			klog.Fatalf("seed failed: %v", err)
		}
		klog.Info("seed did run successfully")
	}
}

// seed inserts the default workflow templates and a bootstrap admin. It
// is idempotent: existing rows are left untouched.
func seed(db *gorm.DB) error {
	if err := seedTemplates(db); err != nil {
		return err
	}
	return seedAdmin(db)
}

func seedTemplates(db *gorm.DB) error {
	templates := []*model.WorkflowTemplate{
		{
			Name:        "Standard Approval",
			Description: "内容审核后由经理审批",
			Stages: []model.StageTemplate{
				{Name: "Content Review", Role: model.ReviewRoleContentReviewer, Required: true, Order: 1},
				{Name: "Manager Approval", Role: model.ReviewRoleManager, Required: true, Order: 2},
			},
		},
		{
			Name:        "Legal Review Required",
			Description: "涉及合规声明的内容需要额外的法务审核",
			Stages: []model.StageTemplate{
				{Name: "Content Review", Role: model.ReviewRoleContentReviewer, Required: true, Order: 1},
				{Name: "Legal Review", Role: model.ReviewRoleLegalReviewer, Required: true, Order: 2},
				{Name: "Manager Approval", Role: model.ReviewRoleManager, Required: true, Order: 3},
			},
		},
		{
			Name:        "Executive Approval",
			Description: "重大campaign内容，高管签发环节可跳过",
			Stages: []model.StageTemplate{
				{Name: "Content Review", Role: model.ReviewRoleContentReviewer, Required: true, Order: 1},
				{Name: "Manager Approval", Role: model.ReviewRoleManager, Required: true, Order: 2},
				{Name: "Executive Sign-off", Role: model.ReviewRoleExecutive, Required: false, Order: 3},
			},
		},
	}

	for _, tmpl := range templates {
		var count int64
		if err := db.Model(&model.WorkflowTemplate{}).Where("name = ?", tmpl.Name).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			continue
		}
		if err := tmpl.ValidateStages(); err != nil {
			return err
		}
		if err := db.Create(tmpl).Error; err != nil {
			return fmt.Errorf("seed template %q: %w", tmpl.Name, err)
		}
	}
	return nil
}

func seedAdmin(db *gorm.DB) error {
	password := os.Getenv("ADMIN_PASSWORD")
	if password == "" {
		return fmt.Errorf("ADMIN_PASSWORD is not set")
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	var count int64
	if err := db.Model(&model.User{}).Where("name = ?", "admin").Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	admin := model.User{
		Name:        "admin",
		Nickname:    ptr.To("Administrator"),
		Password:    ptr.To(string(hashed)),
		Role:        model.RoleAdmin,
		Status:      model.StatusActive,
		ReviewRole:  model.ReviewRoleCMO,
		CanOverride: true,
	}
	return db.Create(&admin).Error
}
