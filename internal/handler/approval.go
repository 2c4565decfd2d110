package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"

	"github.com/aimd-lab/director/dao/model"
	"github.com/aimd-lab/director/internal/payload"
	"github.com/aimd-lab/director/internal/resputil"
	"github.com/aimd-lab/director/internal/util"
	"github.com/aimd-lab/director/pkg/metrics"
	"github.com/aimd-lab/director/pkg/workflow"
)

//nolint:gochecknoinits // This is the standard way to register a gin handler.
func init() {
	Registers = append(Registers, NewApprovalMgr)
}

type ApprovalMgr struct {
	name   string
	engine *workflow.Engine
}

func NewApprovalMgr(conf *RegisterConfig) Manager {
	return &ApprovalMgr{
		name:   "approvals",
		engine: conf.Engine,
	}
}

func (mgr *ApprovalMgr) GetName() string { return mgr.name }

func (mgr *ApprovalMgr) RegisterPublic(_ *gin.RouterGroup) {}

func (mgr *ApprovalMgr) RegisterProtected(g *gin.RouterGroup) {
	// RESTful 风格的路由设计
	g.POST("", mgr.CreateApproval)              // 创建审批单
	g.GET("", mgr.ListApprovals)                // 按过滤条件获取审批单列表
	g.GET("/:id", mgr.GetApproval)              // 通过ID获取审批单详情
	g.GET("/:id/progress", mgr.GetProgress)     // 获取审批进度
	g.GET("/:id/events", mgr.GetEvents)         // 获取审批单事件流
	g.POST("/:id/actions", mgr.SubmitAction)    // 处理当前环节（批准/拒绝/退回/跳过）
	g.POST("/:id/resubmit", mgr.ResubmitApproval) // 退回修改后重新提交
	g.POST("/:id/cancel", mgr.CancelApproval)   // 取消审批单
}

func (mgr *ApprovalMgr) RegisterAdmin(g *gin.RouterGroup) {
	g.GET("", mgr.ListAllApprovals) // 获取所有审批单
}

type (
	CreateApprovalReq struct {
		ContentID    string `json:"contentID" binding:"required"`    // 内容ID（外部系统引用）
		ContentTitle string `json:"contentTitle" binding:"required"` // 内容标题
		TemplateID   uint   `json:"templateID" binding:"required"`   // 流程模板ID
	}

	SubmitActionReq struct {
		StageID uint   `json:"stageID" binding:"required"` // 目标环节ID，必须是当前环节
		Action  string `json:"action" binding:"required"`  // approve | reject | request_changes | skip
		Comment string `json:"comment"`                    // 审批意见
	}

	CancelApprovalReq struct {
		Reason string `json:"reason" binding:"required"` // 取消原因
	}

	StageResp struct {
		ID          uint              `json:"id"`
		Name        string            `json:"name"`
		Role        model.ReviewRole  `json:"role"`
		Required    bool              `json:"required"`
		Order       int               `json:"order"`
		Status      model.StageStatus `json:"status"`
		AssignedTo  *model.UserInfo   `json:"assignedTo,omitempty"`
		CompletedBy *model.UserInfo   `json:"completedBy,omitempty"`
		CompletedAt *time.Time        `json:"completedAt,omitempty"`
	}

	CommentResp struct {
		ID        uint             `json:"id"`
		StageID   *uint            `json:"stageID,omitempty"`
		Author    model.UserInfo   `json:"author"`
		Role      model.ReviewRole `json:"role"`
		Action    string           `json:"action"`
		Body      string           `json:"body"`
		CreatedAt time.Time        `json:"createdAt"`
	}

	ApprovalResp struct {
		ID             uint                 `json:"id"`
		ContentID      string               `json:"contentID"`
		ContentTitle   string               `json:"contentTitle"`
		TemplateID     uint                 `json:"templateID"`
		Status         model.RequestStatus  `json:"status"`
		CurrentStageID *uint                `json:"currentStageID,omitempty"`
		Creator        model.UserInfo       `json:"creator"`
		CreatedAt      time.Time            `json:"createdAt"`
		Stages         []StageResp          `json:"stages"`
		Comments       []CommentResp        `json:"comments,omitempty"`
		Progress       payload.ProgressResp `json:"progress"`
	}

	EventResp struct {
		UID      string             `json:"uid"`
		Kind     model.EventKind    `json:"kind"`
		StageID  *uint              `json:"stageID,omitempty"`
		ActorID  uint               `json:"actorID"`
		Occurred time.Time          `json:"occurred"`
		Payload  model.EventPayload `json:"payload"`
	}
)

// CreateApproval godoc
//
//	@Summary		创建审批单
//	@Description	基于流程模板为一条内容创建审批单，首个环节立即进入待处理状态
//	@Tags			approvals
//	@Accept			json
//	@Produce		json
//	@Security		Bearer
//	@Param			data	body		CreateApprovalReq	true	"创建参数"
//	@Success		200		{object}	resputil.Response[ApprovalResp]	"创建成功"
//	@Failure		400		{object}	resputil.Response[any]	"请求参数错误"
//	@Failure		404		{object}	resputil.Response[any]	"模板不存在"
//	@Router			/v1/approvals [post]
func (mgr *ApprovalMgr) CreateApproval(c *gin.Context) {
	var req CreateApprovalReq
	if err := c.ShouldBindJSON(&req); err != nil {
		resputil.BadRequestError(c, err.Error())
		return
	}

	token := util.GetToken(c)
	approval, err := mgr.engine.CreateRequest(c, req.ContentID, req.ContentTitle, req.TemplateID, util.ActorFromToken(token))
	if err != nil {
		replyEngineError(c, err)
		return
	}

	metrics.ApprovalsCreated.Inc()
	resputil.Success(c, convertApproval(approval, true))
}

// SubmitAction godoc
//
//	@Summary		处理当前审批环节
//	@Description	对审批单的当前环节执行 approve / reject / request_changes / skip
//	@Tags			approvals
//	@Accept			json
//	@Produce		json
//	@Security		Bearer
//	@Param			id		path		int				true	"审批单ID"
//	@Param			data	body		SubmitActionReq	true	"动作参数"
//	@Success		200		{object}	resputil.Response[ApprovalResp]	"处理成功"
//	@Failure		400		{object}	resputil.Response[any]	"参数或评论校验失败"
//	@Failure		403		{object}	resputil.Response[any]	"无权处理该环节"
//	@Failure		409		{object}	resputil.Response[any]	"状态或环节不允许该动作"
//	@Router			/v1/approvals/{id}/actions [post]
func (mgr *ApprovalMgr) SubmitAction(c *gin.Context) {
	requestID, ok := parseIDParam(c)
	if !ok {
		return
	}
	var req SubmitActionReq
	if err := c.ShouldBindJSON(&req); err != nil {
		resputil.BadRequestError(c, err.Error())
		return
	}

	action, err := model.ParseStageAction(req.Action)
	if err != nil {
		resputil.BadRequestError(c, err.Error())
		return
	}

	token := util.GetToken(c)
	approval, err := mgr.engine.SubmitAction(c, requestID, req.StageID, action, util.ActorFromToken(token), req.Comment)
	if err != nil {
		metrics.StageActions.WithLabelValues(action.String(), "error").Inc()
		replyEngineError(c, err)
		return
	}

	metrics.StageActions.WithLabelValues(action.String(), "ok").Inc()
	if approval.Status.Terminal() {
		metrics.ApprovalsFinished.WithLabelValues(string(approval.Status)).Inc()
	}
	resputil.Success(c, convertApproval(approval, true))
}

// ResubmitApproval godoc
//
//	@Summary		重新提交审批单
//	@Description	审批单被退回修改后，由创建者重新提交，审批链从退回环节重新开始
//	@Tags			approvals
//	@Produce		json
//	@Security		Bearer
//	@Param			id	path		int	true	"审批单ID"
//	@Success		200	{object}	resputil.Response[ApprovalResp]	"重新提交成功"
//	@Failure		403	{object}	resputil.Response[any]	"仅创建者可重新提交"
//	@Failure		409	{object}	resputil.Response[any]	"审批单不在退回状态"
//	@Router			/v1/approvals/{id}/resubmit [post]
func (mgr *ApprovalMgr) ResubmitApproval(c *gin.Context) {
	requestID, ok := parseIDParam(c)
	if !ok {
		return
	}

	token := util.GetToken(c)
	approval, err := mgr.engine.Resubmit(c, requestID, util.ActorFromToken(token))
	if err != nil {
		replyEngineError(c, err)
		return
	}
	resputil.Success(c, convertApproval(approval, true))
}

// CancelApproval godoc
//
//	@Summary		取消审批单
//	@Description	创建者取消一个未进入终态的审批单
//	@Tags			approvals
//	@Accept			json
//	@Produce		json
//	@Security		Bearer
//	@Param			id		path		int					true	"审批单ID"
//	@Param			data	body		CancelApprovalReq	true	"取消原因"
//	@Success		200		{object}	resputil.Response[ApprovalResp]	"取消成功"
//	@Router			/v1/approvals/{id}/cancel [post]
func (mgr *ApprovalMgr) CancelApproval(c *gin.Context) {
	requestID, ok := parseIDParam(c)
	if !ok {
		return
	}
	var req CancelApprovalReq
	if err := c.ShouldBindJSON(&req); err != nil {
		resputil.BadRequestError(c, err.Error())
		return
	}

	token := util.GetToken(c)
	approval, err := mgr.engine.Cancel(c, requestID, util.ActorFromToken(token), req.Reason)
	if err != nil {
		replyEngineError(c, err)
		return
	}
	metrics.ApprovalsFinished.WithLabelValues(string(approval.Status)).Inc()
	resputil.Success(c, convertApproval(approval, true))
}

// GetApproval godoc
//
//	@Summary		获取审批单详情
//	@Description	返回审批单及其环节、评论和进度
//	@Tags			approvals
//	@Produce		json
//	@Security		Bearer
//	@Param			id	path		int	true	"审批单ID"
//	@Success		200	{object}	resputil.Response[ApprovalResp]	"审批单详情"
//	@Failure		404	{object}	resputil.Response[any]	"审批单不存在"
//	@Router			/v1/approvals/{id} [get]
func (mgr *ApprovalMgr) GetApproval(c *gin.Context) {
	requestID, ok := parseIDParam(c)
	if !ok {
		return
	}

	approval, err := mgr.engine.Request(c, requestID)
	if err != nil {
		replyEngineError(c, err)
		return
	}
	resputil.Success(c, convertApproval(approval, true))
}

// GetProgress godoc
//
//	@Summary		获取审批进度
//	@Description	返回 (已完成环节数, 总环节数)，供仪表盘进度条使用
//	@Tags			approvals
//	@Produce		json
//	@Security		Bearer
//	@Param			id	path		int	true	"审批单ID"
//	@Success		200	{object}	resputil.Response[payload.ProgressResp]	"审批进度"
//	@Router			/v1/approvals/{id}/progress [get]
func (mgr *ApprovalMgr) GetProgress(c *gin.Context) {
	requestID, ok := parseIDParam(c)
	if !ok {
		return
	}

	approval, err := mgr.engine.Request(c, requestID)
	if err != nil {
		replyEngineError(c, err)
		return
	}
	completed, total := mgr.engine.Progress(approval)
	resputil.Success(c, payload.ProgressResp{Completed: completed, Total: total})
}

// GetEvents godoc
//
//	@Summary		获取审批单事件流
//	@Description	按时间顺序返回审批单的全部状态变更事件
//	@Tags			approvals
//	@Produce		json
//	@Security		Bearer
//	@Param			id	path		int	true	"审批单ID"
//	@Success		200	{object}	resputil.Response[[]EventResp]	"事件列表"
//	@Router			/v1/approvals/{id}/events [get]
func (mgr *ApprovalMgr) GetEvents(c *gin.Context) {
	requestID, ok := parseIDParam(c)
	if !ok {
		return
	}

	events, err := mgr.engine.Events(c, requestID)
	if err != nil {
		replyEngineError(c, err)
		return
	}
	resp := lo.Map(events, func(evt *model.ApprovalEvent, _ int) EventResp {
		return EventResp{
			UID:      evt.UID,
			Kind:     evt.Kind,
			StageID:  evt.StageID,
			ActorID:  evt.ActorID,
			Occurred: evt.Occurred,
			Payload:  evt.Payload.Data(),
		}
	})
	resputil.Success(c, resp)
}

// ListApprovals godoc
//
//	@Summary		获取审批单列表
//	@Description	filter=pending_for 返回等待当前用户处理的审批单，submitted_by 返回当前用户创建的审批单
//	@Tags			approvals
//	@Produce		json
//	@Security		Bearer
//	@Param			filter	query		string	false	"pending_for | submitted_by"
//	@Success		200		{object}	resputil.Response[payload.ListResp[ApprovalResp]]	"审批单列表"
//	@Router			/v1/approvals [get]
func (mgr *ApprovalMgr) ListApprovals(c *gin.Context) {
	token := util.GetToken(c)

	var filter workflow.Filter
	switch c.DefaultQuery("filter", "submitted_by") {
	case "pending_for":
		filter = workflow.Filter{Kind: workflow.FilterPendingFor, ActorID: token.UserID}
	case "submitted_by":
		filter = workflow.Filter{Kind: workflow.FilterSubmittedBy, ActorID: token.UserID}
	default:
		resputil.BadRequestError(c, "unknown filter")
		return
	}

	mgr.listWithFilter(c, filter)
}

// ListAllApprovals godoc
//
//	@Summary		获取所有审批单
//	@Description	管理员接口，返回全部审批单
//	@Tags			approvals
//	@Produce		json
//	@Security		Bearer
//	@Success		200	{object}	resputil.Response[payload.ListResp[ApprovalResp]]	"审批单列表"
//	@Router			/v1/admin/approvals [get]
func (mgr *ApprovalMgr) ListAllApprovals(c *gin.Context) {
	mgr.listWithFilter(c, workflow.Filter{Kind: workflow.FilterAll})
}

func (mgr *ApprovalMgr) listWithFilter(c *gin.Context, filter workflow.Filter) {
	approvals, err := mgr.engine.ListRequests(c, filter)
	if err != nil {
		replyEngineError(c, err)
		return
	}

	rows := lo.Map(approvals, func(req *model.ApprovalRequest, _ int) ApprovalResp {
		return convertApproval(req, false)
	})
	resputil.Success(c, payload.ListResp[ApprovalResp]{Rows: rows, Count: int64(len(rows))})
}

// parseIDParam reads the :id path parameter, replying 400 on garbage.
func parseIDParam(c *gin.Context) (uint, bool) {
	var uri struct {
		ID uint `uri:"id" binding:"required"`
	}
	if err := c.ShouldBindUri(&uri); err != nil {
		resputil.BadRequestError(c, "invalid id")
		return 0, false
	}
	return uri.ID, true
}

// replyEngineError maps the engine's error taxonomy onto response codes.
func replyEngineError(c *gin.Context, err error) {
	switch {
	case workflow.IsNotFound(err):
		resputil.HTTPError(c, http.StatusNotFound, err.Error(), resputil.NotFound)
	case workflow.IsAuthorization(err):
		resputil.HTTPError(c, http.StatusForbidden, err.Error(), resputil.UserNotAllowed)
	case workflow.IsValidation(err):
		resputil.HTTPError(c, http.StatusBadRequest, err.Error(), resputil.InvalidRequest)
	case workflow.IsInvalidState(err):
		resputil.HTTPError(c, http.StatusConflict, err.Error(), resputil.InvalidState)
	case workflow.IsInvalidTransition(err):
		resputil.HTTPError(c, http.StatusConflict, err.Error(), resputil.InvalidTransition)
	default:
		resputil.Error(c, err.Error(), resputil.NotSpecified)
	}
}

func convertApproval(req *model.ApprovalRequest, detail bool) ApprovalResp {
	completed, total := req.Progress()
	resp := ApprovalResp{
		ID:             req.ID,
		ContentID:      req.ContentID,
		ContentTitle:   req.ContentTitle,
		TemplateID:     req.TemplateID,
		Status:         req.Status,
		CurrentStageID: req.CurrentStageID,
		Creator:        req.Creator.Info(),
		CreatedAt:      req.CreatedAt,
		Progress:       payload.ProgressResp{Completed: completed, Total: total},
	}

	resp.Stages = lo.Map(req.Stages, func(st model.Stage, _ int) StageResp {
		sr := StageResp{
			ID:          st.ID,
			Name:        st.Name,
			Role:        st.Role,
			Required:    st.Required,
			Order:       st.Order,
			Status:      st.Status,
			CompletedAt: st.CompletedAt,
		}
		if st.AssignedTo != nil {
			info := st.AssignedTo.Info()
			sr.AssignedTo = &info
		}
		if st.CompletedBy != nil {
			info := st.CompletedBy.Info()
			sr.CompletedBy = &info
		}
		return sr
	})

	if detail {
		resp.Comments = lo.Map(req.Comments, func(cm model.Comment, _ int) CommentResp {
			return CommentResp{
				ID:        cm.ID,
				StageID:   cm.StageID,
				Author:    cm.Author.Info(),
				Role:      cm.AuthorRole,
				Action:    cm.Action.String(),
				Body:      cm.Body,
				CreatedAt: cm.CreatedAt,
			}
		})
	}
	return resp
}
