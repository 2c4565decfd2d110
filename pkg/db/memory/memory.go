// Package memory provides an in-memory workflow.Store used by tests and
// local development. It mirrors the transactional semantics of the GORM
// store: every mutating call either applies fully or not at all, and reads
// return snapshots so callers never observe a half-applied request.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/aimd-lab/director/dao/model"
	"github.com/aimd-lab/director/pkg/workflow"
)

type Store struct {
	mu        sync.RWMutex
	templates map[uint]*model.WorkflowTemplate
	requests  map[uint]*model.ApprovalRequest
	events    map[uint][]*model.ApprovalEvent

	nextTemplateID uint
	nextStageID    uint
	nextRequestID  uint
	nextCommentID  uint
	nextEventID    uint
}

func NewStore() *Store {
	return &Store{
		templates: make(map[uint]*model.WorkflowTemplate),
		requests:  make(map[uint]*model.ApprovalRequest),
		events:    make(map[uint][]*model.ApprovalEvent),
	}
}

// AddTemplate registers a template, allocating ids for it and its stages.
// Stages are sorted by order. Used by tests in place of migrations.
func (s *Store) AddTemplate(tmpl *model.WorkflowTemplate) *model.WorkflowTemplate {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextTemplateID++
	tmpl.ID = s.nextTemplateID
	sort.Slice(tmpl.Stages, func(i, j int) bool {
		return tmpl.Stages[i].Order < tmpl.Stages[j].Order
	})
	for i := range tmpl.Stages {
		s.nextStageID++
		tmpl.Stages[i].ID = s.nextStageID
		tmpl.Stages[i].TemplateID = tmpl.ID
	}
	s.templates[tmpl.ID] = tmpl
	return tmpl
}

func (s *Store) TemplateByID(_ context.Context, id uint) (*model.WorkflowTemplate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tmpl, ok := s.templates[id]
	if !ok {
		return nil, &workflow.NotFoundError{Resource: "workflow template", ID: id}
	}
	cp := *tmpl
	cp.Stages = append([]model.StageTemplate(nil), tmpl.Stages...)
	return &cp, nil
}

func (s *Store) CreateRequest(_ context.Context, req *model.ApprovalRequest, event *model.ApprovalEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tmpl, ok := s.templates[req.TemplateID]
	if !ok {
		return &workflow.NotFoundError{Resource: "workflow template", ID: req.TemplateID}
	}
	tmpl.Locked = true

	s.nextRequestID++
	req.ID = s.nextRequestID
	req.CreatedAt = time.Now()
	req.UpdatedAt = req.CreatedAt
	for i := range req.Stages {
		s.nextStageID++
		req.Stages[i].ID = s.nextStageID
		req.Stages[i].RequestID = req.ID
	}
	for i := range req.Comments {
		s.nextCommentID++
		req.Comments[i].ID = s.nextCommentID
		req.Comments[i].RequestID = req.ID
		req.Comments[i].CreatedAt = req.CreatedAt
	}
	req.CurrentStageID = &req.Stages[0].ID

	event.RequestID = req.ID
	s.appendEventLocked(event)

	s.requests[req.ID] = cloneRequest(req)
	return nil
}

func (s *Store) RequestByID(_ context.Context, id uint) (*model.ApprovalRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	req, ok := s.requests[id]
	if !ok {
		return nil, &workflow.NotFoundError{Resource: "approval request", ID: id}
	}
	return cloneRequest(req), nil
}

func (s *Store) SaveRequest(_ context.Context, req *model.ApprovalRequest, comment *model.Comment, event *model.ApprovalEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.requests[req.ID]; !ok {
		return &workflow.NotFoundError{Resource: "approval request", ID: req.ID}
	}

	if comment != nil {
		s.nextCommentID++
		comment.ID = s.nextCommentID
		comment.RequestID = req.ID
		comment.CreatedAt = time.Now()
		req.Comments = append(req.Comments, *comment)
	}
	req.UpdatedAt = time.Now()

	if event != nil {
		event.RequestID = req.ID
		s.appendEventLocked(event)
	}

	s.requests[req.ID] = cloneRequest(req)
	return nil
}

func (s *Store) ListRequests(_ context.Context, f workflow.Filter) ([]*model.ApprovalRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*model.ApprovalRequest
	for _, req := range s.requests {
		if matches(req, f) {
			out = append(out, cloneRequest(req))
		}
	}
	// Newest first; id breaks ties so the order is deterministic for
	// identical inputs.
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (s *Store) EventsByRequest(_ context.Context, requestID uint) ([]*model.ApprovalEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	events := s.events[requestID]
	out := make([]*model.ApprovalEvent, len(events))
	for i, evt := range events {
		cp := *evt
		out[i] = &cp
	}
	return out, nil
}

func (s *Store) appendEventLocked(event *model.ApprovalEvent) {
	s.nextEventID++
	event.ID = s.nextEventID
	event.CreatedAt = time.Now()
	cp := *event
	s.events[event.RequestID] = append(s.events[event.RequestID], &cp)
}

func matches(req *model.ApprovalRequest, f workflow.Filter) bool {
	switch f.Kind {
	case workflow.FilterPendingFor:
		if req.Status != model.RequestStatusInProgress {
			return false
		}
		cur := req.CurrentStage()
		return cur != nil && cur.AssignedToID != nil && *cur.AssignedToID == f.ActorID
	case workflow.FilterSubmittedBy:
		return req.CreatorID == f.ActorID
	default:
		return true
	}
}

func cloneRequest(req *model.ApprovalRequest) *model.ApprovalRequest {
	cp := *req
	cp.Stages = append([]model.Stage(nil), req.Stages...)
	cp.Comments = append([]model.Comment(nil), req.Comments...)
	if req.CurrentStageID != nil {
		id := *req.CurrentStageID
		cp.CurrentStageID = &id
	}
	return &cp
}

// RoleAssigner is a fixed role -> user table implementing workflow.Assigner.
type RoleAssigner map[model.ReviewRole]*model.User

func (r RoleAssigner) AssigneeForRole(_ context.Context, role model.ReviewRole) (*model.User, error) {
	user, ok := r[role]
	if !ok {
		return nil, &workflow.NotFoundError{Resource: "assignee for role " + string(role), ID: 0}
	}
	return user, nil
}
