package workflow

import (
	"context"

	"github.com/aimd-lab/director/dao/model"
)

// FilterKind 审批单列表过滤方式
type FilterKind uint8

const (
	FilterAll         FilterKind = iota + 1 // 全部审批单
	FilterPendingFor                        // 等待某个用户处理的审批单
	FilterSubmittedBy                       // 某个用户创建的审批单
)

// Filter selects requests for ListRequests. PendingFor matches requests
// whose overall status is InProgress and whose current stage is assigned
// to the actor.
type Filter struct {
	Kind    FilterKind
	ActorID uint
}

// Store is the persistence boundary of the engine. The engine is
// storage-agnostic: production uses the GORM implementation in
// pkg/db/approval, tests use the in-memory one in pkg/db/memory.
//
// CreateRequest and SaveRequest must be atomic: either the whole set of
// mutations (stages, request status, current stage pointer, comment and
// event append) commits or none of it does.
type Store interface {
	// TemplateByID returns the template with its stages ordered by stage order.
	TemplateByID(ctx context.Context, id uint) (*model.WorkflowTemplate, error)

	// CreateRequest persists a new request together with its materialized
	// stages, initial comments and the creation event, and marks the
	// referenced template as locked. Stage ids are only allocated here, so
	// the implementation points CurrentStageID at the first stage and
	// stamps the event's RequestID before committing.
	CreateRequest(ctx context.Context, req *model.ApprovalRequest, event *model.ApprovalEvent) error

	// RequestByID returns a request with stages (ordered by stage order),
	// comments (ordered by creation time) and creator preloaded.
	RequestByID(ctx context.Context, id uint) (*model.ApprovalRequest, error)

	// SaveRequest persists a mutated request, the comment recording the
	// action, and the resulting event in one transaction.
	SaveRequest(ctx context.Context, req *model.ApprovalRequest, comment *model.Comment, event *model.ApprovalEvent) error

	// ListRequests returns requests matching the filter, newest first
	// (created_at descending, id descending as the deterministic tiebreak).
	ListRequests(ctx context.Context, f Filter) ([]*model.ApprovalRequest, error)

	// EventsByRequest returns the durable activity feed of a request,
	// oldest first.
	EventsByRequest(ctx context.Context, requestID uint) ([]*model.ApprovalEvent, error)
}

// Assigner resolves a review role to the identity that should handle a
// stage. It fronts the external identity provider; the engine only stamps
// the result into assigned_to.
type Assigner interface {
	AssigneeForRole(ctx context.Context, role model.ReviewRole) (*model.User, error)
}
