package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/aimd-lab/director/dao/model"
	"github.com/aimd-lab/director/internal/payload"
	"github.com/aimd-lab/director/internal/resputil"
	"github.com/aimd-lab/director/internal/util"
)

//nolint:gochecknoinits // This is the standard way to register a gin handler.
func init() {
	Registers = append(Registers, NewUserMgr)
}

type UserMgr struct {
	name string
	db   *gorm.DB
}

func NewUserMgr(conf *RegisterConfig) Manager {
	return &UserMgr{
		name: "users",
		db:   conf.DB,
	}
}

func (mgr *UserMgr) GetName() string { return mgr.name }

func (mgr *UserMgr) RegisterPublic(_ *gin.RouterGroup) {}

func (mgr *UserMgr) RegisterProtected(g *gin.RouterGroup) {
	g.GET("/me", mgr.GetCurrentUser)
}

func (mgr *UserMgr) RegisterAdmin(g *gin.RouterGroup) {
	g.GET("", mgr.ListUsers)
	g.POST("", mgr.CreateUser)
	g.PUT("/:id/role", mgr.UpdateUserRole)
	g.PUT("/:id/status", mgr.UpdateUserStatus)
}

type (
	CreateUserReq struct {
		Name        string           `json:"name" binding:"required"`
		Nickname    string           `json:"nickname"`
		Password    string           `json:"password" binding:"required,min=8"`
		Email       string           `json:"email"`
		ReviewRole  model.ReviewRole `json:"reviewRole"`
		CanOverride bool             `json:"canOverride"`
	}

	UpdateRoleReq struct {
		Role        model.Role       `json:"role" binding:"required"`
		ReviewRole  model.ReviewRole `json:"reviewRole"`
		CanOverride bool             `json:"canOverride"`
	}

	UpdateStatusReq struct {
		Status model.Status `json:"status" binding:"required"`
	}

	UserResp struct {
		ID          uint             `json:"id"`
		Name        string           `json:"name"`
		Nickname    string           `json:"nickname"`
		Email       string           `json:"email"`
		Role        model.Role       `json:"role"`
		Status      model.Status     `json:"status"`
		ReviewRole  model.ReviewRole `json:"reviewRole"`
		CanOverride bool             `json:"canOverride"`
	}
)

func convertUser(u *model.User) UserResp {
	return UserResp{
		ID:          u.ID,
		Name:        u.Name,
		Nickname:    lo.FromPtr(u.Nickname),
		Email:       lo.FromPtr(u.Email),
		Role:        u.Role,
		Status:      u.Status,
		ReviewRole:  u.ReviewRole,
		CanOverride: u.CanOverride,
	}
}

// GetCurrentUser godoc
//
//	@Summary		获取当前用户信息
//	@Tags			users
//	@Produce		json
//	@Security		Bearer
//	@Success		200	{object}	resputil.Response[UserResp]	"当前用户"
//	@Router			/v1/users/me [get]
func (mgr *UserMgr) GetCurrentUser(c *gin.Context) {
	token := util.GetToken(c)
	var user model.User
	if err := mgr.db.WithContext(c).First(&user, token.UserID).Error; err != nil {
		resputil.HTTPError(c, http.StatusNotFound, "user not found", resputil.NotFound)
		return
	}
	resputil.Success(c, convertUser(&user))
}

// ListUsers godoc
//
//	@Summary		获取用户列表
//	@Tags			users
//	@Produce		json
//	@Security		Bearer
//	@Success		200	{object}	resputil.Response[payload.ListResp[UserResp]]	"用户列表"
//	@Router			/v1/admin/users [get]
func (mgr *UserMgr) ListUsers(c *gin.Context) {
	var users []*model.User
	if err := mgr.db.WithContext(c).Order("id ASC").Find(&users).Error; err != nil {
		resputil.Error(c, err.Error(), resputil.NotSpecified)
		return
	}
	rows := lo.Map(users, func(u *model.User, _ int) UserResp { return convertUser(u) })
	resputil.Success(c, payload.ListResp[UserResp]{Rows: rows, Count: int64(len(rows))})
}

// CreateUser godoc
//
//	@Summary		创建用户
//	@Description	管理员创建本地认证用户并分配审批角色
//	@Tags			users
//	@Accept			json
//	@Produce		json
//	@Security		Bearer
//	@Param			data	body		CreateUserReq	true	"用户信息"
//	@Success		200		{object}	resputil.Response[UserResp]	"创建成功"
//	@Router			/v1/admin/users [post]
func (mgr *UserMgr) CreateUser(c *gin.Context) {
	var req CreateUserReq
	if err := c.ShouldBindJSON(&req); err != nil {
		resputil.BadRequestError(c, err.Error())
		return
	}
	if req.ReviewRole != "" && !req.ReviewRole.Valid() {
		resputil.BadRequestError(c, "unknown review role "+string(req.ReviewRole))
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		resputil.Error(c, err.Error(), resputil.NotSpecified)
		return
	}

	user := model.User{
		Name:        req.Name,
		Password:    lo.ToPtr(string(hashed)),
		Role:        model.RoleUser,
		Status:      model.StatusActive,
		ReviewRole:  req.ReviewRole,
		CanOverride: req.CanOverride,
	}
	if req.Nickname != "" {
		user.Nickname = lo.ToPtr(req.Nickname)
	}
	if req.Email != "" {
		user.Email = lo.ToPtr(req.Email)
	}

	if err := mgr.db.WithContext(c).Create(&user).Error; err != nil {
		resputil.Error(c, err.Error(), resputil.NotSpecified)
		return
	}
	resputil.Success(c, convertUser(&user))
}

// UpdateUserRole godoc
//
//	@Summary		更新用户角色
//	@Description	调整用户的平台角色、审批角色和越级审批能力
//	@Tags			users
//	@Accept			json
//	@Produce		json
//	@Security		Bearer
//	@Param			id		path		int				true	"用户ID"
//	@Param			data	body		UpdateRoleReq	true	"角色信息"
//	@Success		200		{object}	resputil.Response[UserResp]	"更新成功"
//	@Router			/v1/admin/users/{id}/role [put]
func (mgr *UserMgr) UpdateUserRole(c *gin.Context) {
	userID, ok := parseIDParam(c)
	if !ok {
		return
	}
	var req UpdateRoleReq
	if err := c.ShouldBindJSON(&req); err != nil {
		resputil.BadRequestError(c, err.Error())
		return
	}
	if req.ReviewRole != "" && !req.ReviewRole.Valid() {
		resputil.BadRequestError(c, "unknown review role "+string(req.ReviewRole))
		return
	}

	user, ok := mgr.loadUser(c, userID)
	if !ok {
		return
	}
	updates := map[string]any{
		"role":         req.Role,
		"review_role":  req.ReviewRole,
		"can_override": req.CanOverride,
	}
	if err := mgr.db.WithContext(c).Model(user).Updates(updates).Error; err != nil {
		resputil.Error(c, err.Error(), resputil.NotSpecified)
		return
	}
	resputil.Success(c, convertUser(user))
}

// UpdateUserStatus godoc
//
//	@Summary		更新用户状态
//	@Description	停用的用户不再被指派新的审批环节
//	@Tags			users
//	@Accept			json
//	@Produce		json
//	@Security		Bearer
//	@Param			id		path		int				true	"用户ID"
//	@Param			data	body		UpdateStatusReq	true	"状态"
//	@Success		200		{object}	resputil.Response[UserResp]	"更新成功"
//	@Router			/v1/admin/users/{id}/status [put]
func (mgr *UserMgr) UpdateUserStatus(c *gin.Context) {
	userID, ok := parseIDParam(c)
	if !ok {
		return
	}
	var req UpdateStatusReq
	if err := c.ShouldBindJSON(&req); err != nil {
		resputil.BadRequestError(c, err.Error())
		return
	}

	user, ok := mgr.loadUser(c, userID)
	if !ok {
		return
	}
	if err := mgr.db.WithContext(c).Model(user).Update("status", req.Status).Error; err != nil {
		resputil.Error(c, err.Error(), resputil.NotSpecified)
		return
	}
	resputil.Success(c, convertUser(user))
}

func (mgr *UserMgr) loadUser(c *gin.Context, id uint) (*model.User, bool) {
	var user model.User
	err := mgr.db.WithContext(c).First(&user, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		resputil.HTTPError(c, http.StatusNotFound, "user not found", resputil.NotFound)
		return nil, false
	}
	if err != nil {
		resputil.Error(c, err.Error(), resputil.NotSpecified)
		return nil, false
	}
	return &user, true
}
