package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
	"gorm.io/gorm"

	"github.com/aimd-lab/director/dao/model"
	"github.com/aimd-lab/director/internal/payload"
	"github.com/aimd-lab/director/internal/resputil"
)

//nolint:gochecknoinits // This is the standard way to register a gin handler.
func init() {
	Registers = append(Registers, NewTemplateMgr)
}

type TemplateMgr struct {
	name string
	db   *gorm.DB
}

func NewTemplateMgr(conf *RegisterConfig) Manager {
	return &TemplateMgr{
		name: "templates",
		db:   conf.DB,
	}
}

func (mgr *TemplateMgr) GetName() string { return mgr.name }

func (mgr *TemplateMgr) RegisterPublic(_ *gin.RouterGroup) {}

func (mgr *TemplateMgr) RegisterProtected(g *gin.RouterGroup) {
	g.GET("", mgr.ListTemplates)   // 创建审批单时选择模板
	g.GET("/:id", mgr.GetTemplate) // 模板详情
}

func (mgr *TemplateMgr) RegisterAdmin(g *gin.RouterGroup) {
	g.POST("", mgr.CreateTemplate)
	g.PUT("/:id", mgr.UpdateTemplate)
	g.DELETE("/:id", mgr.DeleteTemplate)
}

type (
	StageTemplateReq struct {
		Name     string           `json:"name" binding:"required"`
		Role     model.ReviewRole `json:"role" binding:"required"`
		Required *bool            `json:"required"` // 默认必需
		Order    int              `json:"order" binding:"required"`
	}

	TemplateReq struct {
		Name        string             `json:"name" binding:"required"`
		Description string             `json:"description"`
		Stages      []StageTemplateReq `json:"stages" binding:"required,min=1"`
	}

	StageTemplateResp struct {
		ID       uint             `json:"id"`
		Name     string           `json:"name"`
		Role     model.ReviewRole `json:"role"`
		Required bool             `json:"required"`
		Order    int              `json:"order"`
	}

	TemplateResp struct {
		ID          uint                `json:"id"`
		Name        string              `json:"name"`
		Description string              `json:"description"`
		Locked      bool                `json:"locked"`
		Stages      []StageTemplateResp `json:"stages"`
	}
)

func buildTemplate(req *TemplateReq) (*model.WorkflowTemplate, error) {
	tmpl := &model.WorkflowTemplate{
		Name:        req.Name,
		Description: req.Description,
	}
	for _, st := range req.Stages {
		if !st.Role.Valid() {
			return nil, errors.New("unknown review role " + string(st.Role))
		}
		tmpl.Stages = append(tmpl.Stages, model.StageTemplate{
			Name:     st.Name,
			Role:     st.Role,
			Required: st.Required == nil || *st.Required,
			Order:    st.Order,
		})
	}
	if err := tmpl.ValidateStages(); err != nil {
		return nil, err
	}
	return tmpl, nil
}

func convertTemplate(tmpl *model.WorkflowTemplate) TemplateResp {
	return TemplateResp{
		ID:          tmpl.ID,
		Name:        tmpl.Name,
		Description: tmpl.Description,
		Locked:      tmpl.Locked,
		Stages: lo.Map(tmpl.Stages, func(st model.StageTemplate, _ int) StageTemplateResp {
			return StageTemplateResp{
				ID:       st.ID,
				Name:     st.Name,
				Role:     st.Role,
				Required: st.Required,
				Order:    st.Order,
			}
		}),
	}
}

// ListTemplates godoc
//
//	@Summary		获取流程模板列表
//	@Description	返回全部流程模板及其环节定义
//	@Tags			templates
//	@Produce		json
//	@Security		Bearer
//	@Success		200	{object}	resputil.Response[payload.ListResp[TemplateResp]]	"模板列表"
//	@Router			/v1/templates [get]
func (mgr *TemplateMgr) ListTemplates(c *gin.Context) {
	var templates []*model.WorkflowTemplate
	if err := mgr.db.WithContext(c).
		Preload("Stages", func(db *gorm.DB) *gorm.DB { return db.Order("stage_order ASC") }).
		Order("id ASC").
		Find(&templates).Error; err != nil {
		resputil.Error(c, err.Error(), resputil.NotSpecified)
		return
	}
	rows := lo.Map(templates, func(t *model.WorkflowTemplate, _ int) TemplateResp {
		return convertTemplate(t)
	})
	resputil.Success(c, payload.ListResp[TemplateResp]{Rows: rows, Count: int64(len(rows))})
}

// GetTemplate godoc
//
//	@Summary		获取流程模板详情
//	@Tags			templates
//	@Produce		json
//	@Security		Bearer
//	@Param			id	path		int	true	"模板ID"
//	@Success		200	{object}	resputil.Response[TemplateResp]	"模板详情"
//	@Failure		404	{object}	resputil.Response[any]	"模板不存在"
//	@Router			/v1/templates/{id} [get]
func (mgr *TemplateMgr) GetTemplate(c *gin.Context) {
	templateID, ok := parseIDParam(c)
	if !ok {
		return
	}
	tmpl, ok := mgr.loadTemplate(c, templateID)
	if !ok {
		return
	}
	resputil.Success(c, convertTemplate(tmpl))
}

// CreateTemplate godoc
//
//	@Summary		创建流程模板
//	@Description	管理员创建新的审批流程模板，环节顺序必须从1开始连续递增
//	@Tags			templates
//	@Accept			json
//	@Produce		json
//	@Security		Bearer
//	@Param			data	body		TemplateReq	true	"模板定义"
//	@Success		200		{object}	resputil.Response[TemplateResp]	"创建成功"
//	@Failure		400		{object}	resputil.Response[any]	"模板定义不合法"
//	@Router			/v1/admin/templates [post]
func (mgr *TemplateMgr) CreateTemplate(c *gin.Context) {
	var req TemplateReq
	if err := c.ShouldBindJSON(&req); err != nil {
		resputil.BadRequestError(c, err.Error())
		return
	}
	tmpl, err := buildTemplate(&req)
	if err != nil {
		resputil.BadRequestError(c, err.Error())
		return
	}

	if err := mgr.db.WithContext(c).Create(tmpl).Error; err != nil {
		resputil.Error(c, err.Error(), resputil.NotSpecified)
		return
	}
	resputil.Success(c, convertTemplate(tmpl))
}

// UpdateTemplate godoc
//
//	@Summary		更新流程模板
//	@Description	整体替换模板定义，已被审批单引用（锁定）的模板不可修改
//	@Tags			templates
//	@Accept			json
//	@Produce		json
//	@Security		Bearer
//	@Param			id		path		int			true	"模板ID"
//	@Param			data	body		TemplateReq	true	"模板定义"
//	@Success		200		{object}	resputil.Response[TemplateResp]	"更新成功"
//	@Failure		409		{object}	resputil.Response[any]	"模板已锁定"
//	@Router			/v1/admin/templates/{id} [put]
func (mgr *TemplateMgr) UpdateTemplate(c *gin.Context) {
	templateID, ok := parseIDParam(c)
	if !ok {
		return
	}
	var req TemplateReq
	if err := c.ShouldBindJSON(&req); err != nil {
		resputil.BadRequestError(c, err.Error())
		return
	}
	replacement, err := buildTemplate(&req)
	if err != nil {
		resputil.BadRequestError(c, err.Error())
		return
	}

	tmpl, ok := mgr.loadTemplate(c, templateID)
	if !ok {
		return
	}
	if tmpl.Locked {
		resputil.HTTPError(c, http.StatusConflict, "template is locked by existing approvals", resputil.InvalidState)
		return
	}

	// 整体替换：先删旧环节，再写入新定义
	// 必须硬删除，软删除的行仍占用 (template_id, stage_order) 唯一索引
	err = mgr.db.WithContext(c).Transaction(func(tx *gorm.DB) error {
		if err := tx.Unscoped().Where("template_id = ?", tmpl.ID).Delete(&model.StageTemplate{}).Error; err != nil {
			return err
		}
		tmpl.Name = replacement.Name
		tmpl.Description = replacement.Description
		tmpl.Stages = replacement.Stages
		return tx.Session(&gorm.Session{FullSaveAssociations: true}).Save(tmpl).Error
	})
	if err != nil {
		resputil.Error(c, err.Error(), resputil.NotSpecified)
		return
	}
	resputil.Success(c, convertTemplate(tmpl))
}

// DeleteTemplate godoc
//
//	@Summary		删除流程模板
//	@Description	删除未被任何审批单引用的模板
//	@Tags			templates
//	@Produce		json
//	@Security		Bearer
//	@Param			id	path		int	true	"模板ID"
//	@Success		200	{object}	resputil.Response[any]	"删除成功"
//	@Failure		409	{object}	resputil.Response[any]	"模板已锁定"
//	@Router			/v1/admin/templates/{id} [delete]
func (mgr *TemplateMgr) DeleteTemplate(c *gin.Context) {
	templateID, ok := parseIDParam(c)
	if !ok {
		return
	}
	tmpl, ok := mgr.loadTemplate(c, templateID)
	if !ok {
		return
	}
	if tmpl.Locked {
		resputil.HTTPError(c, http.StatusConflict, "template is locked by existing approvals", resputil.InvalidState)
		return
	}

	// 硬删除，释放模板名称和环节顺序的唯一索引，允许重建同名模板
	err := mgr.db.WithContext(c).Transaction(func(tx *gorm.DB) error {
		if err := tx.Unscoped().Where("template_id = ?", tmpl.ID).Delete(&model.StageTemplate{}).Error; err != nil {
			return err
		}
		return tx.Unscoped().Delete(tmpl).Error
	})
	if err != nil {
		resputil.Error(c, err.Error(), resputil.NotSpecified)
		return
	}
	resputil.Success(c, "deleted")
}

func (mgr *TemplateMgr) loadTemplate(c *gin.Context, id uint) (*model.WorkflowTemplate, bool) {
	var tmpl model.WorkflowTemplate
	err := mgr.db.WithContext(c).
		Preload("Stages", func(db *gorm.DB) *gorm.DB { return db.Order("stage_order ASC") }).
		First(&tmpl, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		resputil.HTTPError(c, http.StatusNotFound, "template not found", resputil.NotFound)
		return nil, false
	}
	if err != nil {
		resputil.Error(c, err.Error(), resputil.NotSpecified)
		return nil, false
	}
	return &tmpl, true
}
