package handler

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	ldap "github.com/go-ldap/ldap/v3"
	"github.com/samber/lo"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/aimd-lab/director/dao/model"
	"github.com/aimd-lab/director/internal/resputil"
	"github.com/aimd-lab/director/internal/util"
	"github.com/aimd-lab/director/pkg/config"
	"github.com/aimd-lab/director/pkg/logutils"
)

//nolint:gochecknoinits // This is the standard way to register a gin handler.
func init() {
	Registers = append(Registers, NewAuthMgr)
}

type AuthMgr struct {
	name     string
	db       *gorm.DB
	tokenMgr *util.TokenManager
}

func NewAuthMgr(conf *RegisterConfig) Manager {
	return &AuthMgr{
		name:     "auth",
		db:       conf.DB,
		tokenMgr: util.GetTokenMgr(),
	}
}

func (mgr *AuthMgr) GetName() string { return mgr.name }

func (mgr *AuthMgr) RegisterPublic(g *gin.RouterGroup) {
	g.POST("/login", mgr.Login)
	g.POST("/refresh", mgr.RefreshToken)
}

func (mgr *AuthMgr) RegisterProtected(_ *gin.RouterGroup) {}

func (mgr *AuthMgr) RegisterAdmin(_ *gin.RouterGroup) {}

type (
	LoginReq struct {
		Username   string `json:"username" binding:"required"` // 用户名
		Password   string `json:"password" binding:"required"` // 密码
		AuthMethod string `json:"auth" binding:"required"`     // 认证方式 [normal, ldap]
	}

	LoginResp struct {
		AccessToken  string      `json:"accessToken"`
		RefreshToken string      `json:"refreshToken"`
		Context      UserContext `json:"context"`
	}

	UserContext struct {
		Username    string           `json:"username"`
		Role        model.Role       `json:"role"`        // Role in platform
		ReviewRole  model.ReviewRole `json:"reviewRole"`  // Approval role
		CanOverride bool             `json:"canOverride"` // Escalation authority
	}
)

const (
	AuthMethodNormal = "normal"
	AuthMethodLDAP   = "ldap"
)

// Login godoc
//
//	@Summary		用户登录
//	@Description	校验用户身份，生成包含审批角色的 JWT Token
//	@Tags			auth
//	@Accept			json
//	@Produce		json
//	@Param			data	body		LoginReq	true	"登录参数"
//	@Success		200		{object}	resputil.Response[LoginResp]	"登录成功，返回 JWT Token"
//	@Failure		400		{object}	resputil.Response[any]	"请求参数错误"
//	@Failure		401		{object}	resputil.Response[any]	"用户名或密码错误"
//	@Router			/v1/login [post]
func (mgr *AuthMgr) Login(c *gin.Context) {
	var req LoginReq
	if err := c.ShouldBind(&req); err != nil {
		resputil.BadRequestError(c, err.Error())
		return
	}

	l := logutils.Log.WithFields(logutils.Fields{
		"username": req.Username,
		"auth":     req.AuthMethod,
	})

	switch req.AuthMethod {
	case AuthMethodLDAP:
		if err := mgr.ldapAuth(req.Username, req.Password); err != nil {
			l.Error("invalid credentials: ", err)
			resputil.HTTPError(c, http.StatusUnauthorized, "Invalid credentials", resputil.InvalidCredentials)
			return
		}
	case AuthMethodNormal:
		if err := mgr.normalAuth(c, req.Username, req.Password); err != nil {
			l.Error("invalid credentials: ", err)
			resputil.HTTPError(c, http.StatusUnauthorized, "Invalid credentials", resputil.InvalidCredentials)
			return
		}
	default:
		l.Error("invalid auth method: ", req.AuthMethod)
		resputil.HTTPError(c, http.StatusBadRequest, "Invalid auth method", resputil.InvalidRequest)
		return
	}

	var user model.User
	err := mgr.db.WithContext(c).Where("name = ?", req.Username).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// User exists in LDAP but not in the database, create a new one.
			// No review role yet, an admin assigns it afterwards.
			created, createErr := mgr.createUser(c, req.Username)
			if createErr != nil {
				l.Error("create new user: ", createErr)
				resputil.Error(c, "Create user failed", resputil.NotSpecified)
				return
			}
			user = *created
		} else {
			l.Error(err)
			resputil.Error(c, err.Error(), resputil.NotSpecified)
			return
		}
	}
	if user.Status != model.StatusActive {
		l.Error("user is not active")
		resputil.HTTPError(c, http.StatusUnauthorized, "User is not active", resputil.InvalidCredentials)
		return
	}

	jwtMessage := util.JWTMessage{
		UserID:      user.ID,
		Username:    user.Name,
		Role:        user.Role,
		ReviewRole:  user.ReviewRole,
		CanOverride: user.CanOverride,
	}
	accessToken, refreshToken, err := mgr.tokenMgr.CreateTokens(&jwtMessage)
	if err != nil {
		resputil.HTTPError(c, http.StatusInternalServerError, err.Error(), resputil.NotSpecified)
		return
	}
	resputil.Success(c, LoginResp{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		Context: UserContext{
			Username:    user.Name,
			Role:        user.Role,
			ReviewRole:  user.ReviewRole,
			CanOverride: user.CanOverride,
		},
	})
}

// createUser is called when the user passed LDAP auth but has no row yet
func (mgr *AuthMgr) createUser(c *gin.Context, name string) (*model.User, error) {
	user := model.User{
		Name:     name,
		Nickname: lo.ToPtr(name),
		Password: nil,
		Email:    lo.ToPtr(name + "@" + config.GetConfig().Host),
		Role:     model.RoleUser,
		Status:   model.StatusActive,
	}
	if err := mgr.db.WithContext(c).Create(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (mgr *AuthMgr) normalAuth(c *gin.Context, username, password string) error {
	var user model.User
	if err := mgr.db.WithContext(c).Where("name = ?", username).First(&user).Error; err != nil {
		return fmt.Errorf("user not found")
	}

	p := user.Password
	if p == nil {
		return fmt.Errorf("user does not have a password")
	}

	if bcrypt.CompareHashAndPassword([]byte(*p), []byte(password)) != nil {
		return fmt.Errorf("wrong username or password")
	}
	return nil
}

func (mgr *AuthMgr) ldapAuth(username, password string) error {
	authConfig := config.GetConfig()
	if !authConfig.LDAP.Enable {
		return fmt.Errorf("ldap auth is not enabled")
	}

	l, err := ldap.DialURL(authConfig.LDAP.Address)
	if err != nil {
		return err
	}
	defer l.Close()

	if err = l.Bind(authConfig.LDAP.UserName, authConfig.LDAP.Password); err != nil {
		return err
	}

	searchRequest := ldap.NewSearchRequest(
		authConfig.LDAP.SearchDN,
		ldap.ScopeWholeSubtree, ldap.NeverDerefAliases, 0, 0, false,
		fmt.Sprintf("(sAMAccountName=%s)", username),
		[]string{"dn"},
		nil,
	)
	searchResult, err := l.Search(searchRequest)
	if err != nil {
		return err
	}
	if len(searchResult.Entries) != 1 {
		return fmt.Errorf("user not found or too many entries returned")
	}

	// 用户存在，验证用户密码
	return l.Bind(searchResult.Entries[0].DN, password)
}

type (
	RefreshReq struct {
		RefreshToken string `json:"refreshToken" binding:"required"` // 不需要添加 `Bearer ` 前缀
	}

	RefreshResp struct {
		AccessToken  string `json:"accessToken"`
		RefreshToken string `json:"refreshToken"`
	}
)

// RefreshToken godoc
//
//	@Summary		刷新令牌
//	@Description	使用 refresh token 换取新的令牌对，同时刷新用户的最新审批角色
//	@Tags			auth
//	@Accept			json
//	@Produce		json
//	@Param			data	body		RefreshReq	true	"刷新参数"
//	@Success		200		{object}	resputil.Response[RefreshResp]	"刷新成功"
//	@Failure		401		{object}	resputil.Response[any]	"令牌无效或已过期"
//	@Router			/v1/refresh [post]
func (mgr *AuthMgr) RefreshToken(c *gin.Context) {
	var req RefreshReq
	if err := c.ShouldBind(&req); err != nil {
		resputil.BadRequestError(c, err.Error())
		return
	}

	claims, err := mgr.tokenMgr.CheckRefreshToken(req.RefreshToken)
	if err != nil {
		resputil.HTTPError(c, http.StatusUnauthorized, "Invalid refresh token", resputil.TokenInvalid)
		return
	}

	// Re-read the user so a review role change takes effect on refresh.
	var user model.User
	if err := mgr.db.WithContext(c).First(&user, claims.UserID).Error; err != nil {
		resputil.HTTPError(c, http.StatusUnauthorized, "User not found", resputil.TokenInvalid)
		return
	}
	if user.Status != model.StatusActive {
		resputil.HTTPError(c, http.StatusUnauthorized, "User is not active", resputil.InvalidCredentials)
		return
	}

	jwtMessage := util.JWTMessage{
		UserID:      user.ID,
		Username:    user.Name,
		Role:        user.Role,
		ReviewRole:  user.ReviewRole,
		CanOverride: user.CanOverride,
	}
	accessToken, refreshToken, err := mgr.tokenMgr.CreateTokens(&jwtMessage)
	if err != nil {
		resputil.HTTPError(c, http.StatusInternalServerError, err.Error(), resputil.NotSpecified)
		return
	}
	resputil.Success(c, RefreshResp{AccessToken: accessToken, RefreshToken: refreshToken})
}
