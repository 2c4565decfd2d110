// Package workflow implements the multi-stage approval engine: workflow
// templates are materialized into approval requests whose stages advance
// through an ordered chain of role-gated reviews, with a full comment and
// event audit trail.
package workflow

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"k8s.io/klog/v2"

	"github.com/aimd-lab/director/dao/model"
)

type Engine struct {
	store    Store
	assigner Assigner
	pub      Publisher

	// One mutex per request id serializes concurrent writers so a
	// transition never reads a stale current stage pointer. Cross-request
	// reads take no lock beyond the store's snapshot.
	locks sync.Map
}

type Option func(*Engine)

// WithPublisher attaches a publisher that receives every domain event
// after its transaction committed.
func WithPublisher(pub Publisher) Option {
	return func(e *Engine) { e.pub = pub }
}

func NewEngine(store Store, assigner Assigner, opts ...Option) *Engine {
	e := &Engine{
		store:    store,
		assigner: assigner,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) lockRequest(id uint) func() {
	v, _ := e.locks.LoadOrStore(id, &sync.Mutex{})
	mu, _ := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// releaseLock drops the mutex entry of a request that reached a terminal
// status, keeping the lock map bounded by the number of live requests.
// Callers still hold the mutex; a late arrival creates a fresh entry,
// fails the terminal-status check and drops it again.
func (e *Engine) releaseLock(req *model.ApprovalRequest) {
	if req.Status.Terminal() {
		e.locks.Delete(req.ID)
	}
}

// CreateRequest materializes a new approval request from a workflow
// template. The stages are a deep copy of the template's stage definitions;
// the first stage immediately enters InProgress and is assigned to a holder
// of its role, so the request is actionable as soon as it is visible.
func (e *Engine) CreateRequest(
	ctx context.Context,
	contentID, contentTitle string,
	templateID uint,
	creator *model.User,
) (*model.ApprovalRequest, error) {
	if strings.TrimSpace(contentID) == "" {
		return nil, &ValidationError{Reason: "content id is required"}
	}

	tmpl, err := e.store.TemplateByID(ctx, templateID)
	if err != nil {
		return nil, err
	}
	if err := tmpl.ValidateStages(); err != nil {
		return nil, &ValidationError{Reason: err.Error()}
	}

	req := &model.ApprovalRequest{
		ContentID:    contentID,
		ContentTitle: contentTitle,
		TemplateID:   tmpl.ID,
		Status:       model.RequestStatusInProgress,
		CreatorID:    creator.ID,
	}
	for i := range tmpl.Stages {
		st := tmpl.Stages[i]
		req.Stages = append(req.Stages, model.Stage{
			Name:     st.Name,
			Role:     st.Role,
			Required: st.Required,
			Order:    st.Order,
			Status:   model.StageStatusPending,
		})
	}

	first := &req.Stages[0]
	first.Status = model.StageStatusInProgress
	e.assign(ctx, first)

	req.Comments = append(req.Comments, model.Comment{
		AuthorID:   creator.ID,
		AuthorRole: creator.ReviewRole,
		Action:     model.ActionSubmit,
		Body:       "submitted for approval",
	})

	event := e.newEvent(model.EventApprovalCreated, req, creator, model.EventPayload{
		Action:       model.ActionSubmit.String(),
		FromStatus:   model.RequestStatusPending,
		ToStatus:     req.Status,
		StageName:    first.Name,
		ContentTitle: req.ContentTitle,
	})

	if err := e.store.CreateRequest(ctx, req, event); err != nil {
		return nil, err
	}

	klog.Infof("approval request %d created from template %q by %s", req.ID, tmpl.Name, creator.Name)
	e.publish(event)
	return req, nil
}

// SubmitAction applies a review action to the current stage of a request.
// Every failure is reported synchronously; approving twice fails instead of
// silently doing nothing.
func (e *Engine) SubmitAction(
	ctx context.Context,
	requestID, stageID uint,
	action model.Action,
	actor *model.User,
	comment string,
) (*model.ApprovalRequest, error) {
	unlock := e.lockRequest(requestID)
	defer unlock()

	req, err := e.store.RequestByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.Status.Terminal() {
		e.releaseLock(req)
		return nil, &InvalidStateError{Status: req.Status, Op: "act on"}
	}

	stage := req.StageByID(stageID)
	if stage == nil {
		return nil, &NotFoundError{Resource: "stage", ID: stageID}
	}
	if !canAct(actor, stage) {
		return nil, &AuthorizationError{Actor: actor.Name, Role: actor.ReviewRole, Required: stage.Role}
	}

	switch action {
	case model.ActionApprove, model.ActionReject, model.ActionRequestChanges, model.ActionSkip:
	default:
		return nil, &ValidationError{Reason: "action " + action.String() + " is not a stage action"}
	}
	if action.NeedsComment() && strings.TrimSpace(comment) == "" {
		return nil, &ValidationError{Reason: "action " + action.String() + " requires a comment"}
	}

	if req.CurrentStageID == nil || *req.CurrentStageID != stage.ID {
		return nil, &InvalidTransitionError{Reason: "stage is not the current stage of the request"}
	}
	if stage.Status != model.StageStatusInProgress {
		return nil, &InvalidStateError{Status: req.Status, Op: "act on"}
	}
	if action == model.ActionSkip && stage.Required {
		return nil, &InvalidTransitionError{Reason: "required stage " + stage.Name + " cannot be skipped"}
	}

	fromStatus := req.Status
	now := time.Now()
	stage.CompletedByID = &actor.ID
	stage.CompletedAt = &now

	var kind model.EventKind
	switch action {
	case model.ActionApprove:
		stage.Status = model.StageStatusApproved
		kind = e.advance(ctx, req, stage)
	case model.ActionSkip:
		stage.Status = model.StageStatusSkipped
		kind = e.advance(ctx, req, stage)
	case model.ActionReject:
		stage.Status = model.StageStatusRejected
		req.Status = model.RequestStatusRejected
		req.CurrentStageID = nil
		kind = model.EventApprovalRejected
	case model.ActionRequestChanges:
		stage.Status = model.StageStatusChangesRequested
		req.Status = model.RequestStatusChangesRequested
		// CurrentStageID keeps pointing at the returning stage so that a
		// later resubmission knows where the chain restarts.
		kind = model.EventChangesRequested
	}

	rec := &model.Comment{
		RequestID:  req.ID,
		StageID:    &stage.ID,
		AuthorID:   actor.ID,
		AuthorRole: actor.ReviewRole,
		Action:     action,
		Body:       comment,
	}
	event := e.newEvent(kind, req, actor, model.EventPayload{
		Action:       action.String(),
		FromStatus:   fromStatus,
		ToStatus:     req.Status,
		StageName:    stage.Name,
		ContentTitle: req.ContentTitle,
	})
	event.StageID = &stage.ID

	if err := e.store.SaveRequest(ctx, req, rec, event); err != nil {
		return nil, err
	}

	klog.Infof("approval request %d: stage %q %s by %s, request now %s",
		req.ID, stage.Name, action, actor.Name, req.Status)
	e.releaseLock(req)
	e.publish(event)
	return req, nil
}

// Resubmit reopens a request that was returned with requested changes. The
// stage that requested changes and every later stage reset to Pending; the
// returning stage becomes InProgress again and the chain replays from there.
// Earlier approvals are preserved.
func (e *Engine) Resubmit(ctx context.Context, requestID uint, actor *model.User) (*model.ApprovalRequest, error) {
	unlock := e.lockRequest(requestID)
	defer unlock()

	req, err := e.store.RequestByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.Status != model.RequestStatusChangesRequested {
		e.releaseLock(req)
		return nil, &InvalidStateError{Status: req.Status, Op: "resubmit"}
	}
	if req.CreatorID != actor.ID {
		return nil, &AuthorizationError{Actor: actor.Name}
	}

	returning := req.CurrentStage()
	if returning == nil || returning.Status != model.StageStatusChangesRequested {
		return nil, &InvalidTransitionError{Reason: "request has no stage awaiting resubmission"}
	}

	for i := range req.Stages {
		st := &req.Stages[i]
		if st.Order < returning.Order {
			continue
		}
		st.Status = model.StageStatusPending
		st.AssignedToID = nil
		st.AssignedTo = nil
		st.CompletedByID = nil
		st.CompletedBy = nil
		st.CompletedAt = nil
	}
	returning.Status = model.StageStatusInProgress
	e.assign(ctx, returning)
	req.Status = model.RequestStatusInProgress
	req.CurrentStageID = &returning.ID

	rec := &model.Comment{
		RequestID:  req.ID,
		StageID:    &returning.ID,
		AuthorID:   actor.ID,
		AuthorRole: actor.ReviewRole,
		Action:     model.ActionResubmit,
		Body:       "resubmitted after requested changes",
	}
	event := e.newEvent(model.EventApprovalResubmitted, req, actor, model.EventPayload{
		Action:       model.ActionResubmit.String(),
		FromStatus:   model.RequestStatusChangesRequested,
		ToStatus:     req.Status,
		StageName:    returning.Name,
		ContentTitle: req.ContentTitle,
	})
	event.StageID = &returning.ID

	if err := e.store.SaveRequest(ctx, req, rec, event); err != nil {
		return nil, err
	}

	klog.Infof("approval request %d resubmitted by %s, chain restarts at stage %q",
		req.ID, actor.Name, returning.Name)
	e.publish(event)
	return req, nil
}

// Cancel withdraws a non-terminal request. Only the original creator may
// cancel; the reason is recorded like any other review comment.
func (e *Engine) Cancel(ctx context.Context, requestID uint, actor *model.User, reason string) (*model.ApprovalRequest, error) {
	unlock := e.lockRequest(requestID)
	defer unlock()

	req, err := e.store.RequestByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.Status.Terminal() {
		e.releaseLock(req)
		return nil, &InvalidStateError{Status: req.Status, Op: "cancel"}
	}
	if req.CreatorID != actor.ID {
		return nil, &AuthorizationError{Actor: actor.Name}
	}
	if strings.TrimSpace(reason) == "" {
		return nil, &ValidationError{Reason: "cancellation requires a reason"}
	}

	fromStatus := req.Status
	if cur := req.CurrentStage(); cur != nil && cur.Status == model.StageStatusInProgress {
		// The stage was never visited; leave no completion record.
		cur.Status = model.StageStatusPending
		cur.AssignedToID = nil
		cur.AssignedTo = nil
	}
	req.Status = model.RequestStatusCanceled
	req.CurrentStageID = nil

	rec := &model.Comment{
		RequestID:  req.ID,
		AuthorID:   actor.ID,
		AuthorRole: actor.ReviewRole,
		Action:     model.ActionCancel,
		Body:       reason,
	}
	event := e.newEvent(model.EventApprovalCanceled, req, actor, model.EventPayload{
		Action:       model.ActionCancel.String(),
		FromStatus:   fromStatus,
		ToStatus:     req.Status,
		ContentTitle: req.ContentTitle,
	})

	if err := e.store.SaveRequest(ctx, req, rec, event); err != nil {
		return nil, err
	}

	klog.Infof("approval request %d canceled by %s", req.ID, actor.Name)
	e.releaseLock(req)
	e.publish(event)
	return req, nil
}

// Request returns a single request with stages and comments.
func (e *Engine) Request(ctx context.Context, requestID uint) (*model.ApprovalRequest, error) {
	return e.store.RequestByID(ctx, requestID)
}

// ListRequests returns requests matching the filter, newest first.
func (e *Engine) ListRequests(ctx context.Context, f Filter) ([]*model.ApprovalRequest, error) {
	return e.store.ListRequests(ctx, f)
}

// Events returns the durable activity feed of a request, oldest first.
func (e *Engine) Events(ctx context.Context, requestID uint) ([]*model.ApprovalEvent, error) {
	return e.store.EventsByRequest(ctx, requestID)
}

// Progress returns (completed, total) stage counts for dashboard bars.
func (e *Engine) Progress(req *model.ApprovalRequest) (completed, total int) {
	return req.Progress()
}

// canAct is the authorization rule: the actor holds the stage's role, or
// holds the override capability (escalation authority, not a history
// bypass: the action is still recorded against the real stage).
func canAct(actor *model.User, stage *model.Stage) bool {
	return actor.ReviewRole == stage.Role || actor.CanOverride
}

// advance moves the request to the stage with the smallest order greater
// than the completed one. If none exists the request is fully approved.
func (e *Engine) advance(ctx context.Context, req *model.ApprovalRequest, done *model.Stage) model.EventKind {
	var next *model.Stage
	for i := range req.Stages {
		st := &req.Stages[i]
		if st.Order <= done.Order {
			continue
		}
		if next == nil || st.Order < next.Order {
			next = st
		}
	}
	if next == nil {
		req.Status = model.RequestStatusApproved
		req.CurrentStageID = nil
		return model.EventApprovalApproved
	}

	next.Status = model.StageStatusInProgress
	e.assign(ctx, next)
	req.CurrentStageID = &next.ID
	return model.EventApprovalAdvanced
}

// assign stamps assigned_to from the role -> identity lookup. A role with
// no active holder leaves the stage unassigned; the escalation job nags
// about those instead of failing the transition.
func (e *Engine) assign(ctx context.Context, stage *model.Stage) {
	assignee, err := e.assigner.AssigneeForRole(ctx, stage.Role)
	if err != nil || assignee == nil {
		klog.Warningf("no assignee found for role %s (stage %q)", stage.Role, stage.Name)
		return
	}
	stage.AssignedToID = &assignee.ID
	stage.AssignedTo = assignee
}

func (e *Engine) newEvent(
	kind model.EventKind,
	req *model.ApprovalRequest,
	actor *model.User,
	payload model.EventPayload,
) *model.ApprovalEvent {
	return &model.ApprovalEvent{
		UID:       uuid.NewString(),
		Kind:      kind,
		RequestID: req.ID,
		ActorID:   actor.ID,
		Occurred:  time.Now(),
		Payload:   datatypes.NewJSONType(payload),
	}
}

func (e *Engine) publish(event *model.ApprovalEvent) {
	if e.pub != nil {
		e.pub.Publish(event)
	}
}
