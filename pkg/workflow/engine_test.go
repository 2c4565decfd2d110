package workflow_test

import (
	"context"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
	"gorm.io/gorm"

	"github.com/aimd-lab/director/dao/model"
	"github.com/aimd-lab/director/pkg/db/memory"
	"github.com/aimd-lab/director/pkg/workflow"
)

type fixture struct {
	store    *memory.Store
	engine   *workflow.Engine
	events   []*model.ApprovalEvent
	standard *model.WorkflowTemplate
	legal    *model.WorkflowTemplate
	exec     *model.WorkflowTemplate

	creator  *model.User
	alice    *model.User // content_reviewer
	bob      *model.User // manager
	carol    *model.User // legal_reviewer
	dana     *model.User // executive
	override *model.User // cmo with override capability
}

func newFixture() *fixture {
	f := &fixture{
		store:    memory.NewStore(),
		creator:  &model.User{Model: gorm.Model{ID: 1}, Name: "creator"},
		alice:    &model.User{Model: gorm.Model{ID: 2}, Name: "alice", ReviewRole: model.ReviewRoleContentReviewer},
		bob:      &model.User{Model: gorm.Model{ID: 3}, Name: "bob", ReviewRole: model.ReviewRoleManager},
		carol:    &model.User{Model: gorm.Model{ID: 4}, Name: "carol", ReviewRole: model.ReviewRoleLegalReviewer},
		dana:     &model.User{Model: gorm.Model{ID: 5}, Name: "dana", ReviewRole: model.ReviewRoleExecutive},
		override: &model.User{Model: gorm.Model{ID: 6}, Name: "cmo", ReviewRole: model.ReviewRoleCMO, CanOverride: true},
	}

	f.standard = f.store.AddTemplate(&model.WorkflowTemplate{
		Name: "Standard Approval",
		Stages: []model.StageTemplate{
			{Name: "Content Review", Role: model.ReviewRoleContentReviewer, Required: true, Order: 1},
			{Name: "Manager Approval", Role: model.ReviewRoleManager, Required: true, Order: 2},
		},
	})
	f.legal = f.store.AddTemplate(&model.WorkflowTemplate{
		Name: "Legal Review Required",
		Stages: []model.StageTemplate{
			{Name: "Content Review", Role: model.ReviewRoleContentReviewer, Required: true, Order: 1},
			{Name: "Legal Review", Role: model.ReviewRoleLegalReviewer, Required: true, Order: 2},
			{Name: "Manager Approval", Role: model.ReviewRoleManager, Required: true, Order: 3},
		},
	})
	f.exec = f.store.AddTemplate(&model.WorkflowTemplate{
		Name: "Executive Approval",
		Stages: []model.StageTemplate{
			{Name: "Content Review", Role: model.ReviewRoleContentReviewer, Required: true, Order: 1},
			{Name: "Executive Sign-off", Role: model.ReviewRoleExecutive, Required: false, Order: 2},
			{Name: "Manager Approval", Role: model.ReviewRoleManager, Required: true, Order: 3},
		},
	})

	assigner := memory.RoleAssigner{
		model.ReviewRoleContentReviewer: f.alice,
		model.ReviewRoleManager:         f.bob,
		model.ReviewRoleLegalReviewer:   f.carol,
		model.ReviewRoleExecutive:       f.dana,
	}
	f.engine = workflow.NewEngine(f.store, assigner,
		workflow.WithPublisher(workflow.PublisherFunc(func(evt *model.ApprovalEvent) {
			f.events = append(f.events, evt)
		})))
	return f
}

// checkSingleInProgress asserts the core invariant: while the request is
// in progress exactly one stage is InProgress and it is the current stage.
func checkSingleInProgress(req *model.ApprovalRequest) {
	if req.Status != model.RequestStatusInProgress {
		return
	}
	var inProgress []model.Stage
	for _, st := range req.Stages {
		if st.Status == model.StageStatusInProgress {
			inProgress = append(inProgress, st)
		}
	}
	So(inProgress, ShouldHaveLength, 1)
	So(req.CurrentStageID, ShouldNotBeNil)
	So(inProgress[0].ID, ShouldEqual, *req.CurrentStageID)
}

func TestCreateRequest(t *testing.T) {
	ctx := context.Background()

	Convey("creating a request from a template", t, func() {
		f := newFixture()

		req, err := f.engine.CreateRequest(ctx, "content-1", "Spring campaign post", f.standard.ID, f.creator)
		So(err, ShouldBeNil)
		So(req.Status, ShouldEqual, model.RequestStatusInProgress)
		So(req.Stages, ShouldHaveLength, 2)
		So(req.Stages[0].Status, ShouldEqual, model.StageStatusInProgress)
		So(req.Stages[1].Status, ShouldEqual, model.StageStatusPending)
		So(*req.Stages[0].AssignedToID, ShouldEqual, f.alice.ID)
		checkSingleInProgress(req)

		Convey("the stages are a copy, not a reference to the template", func() {
			tmpl, terr := f.store.TemplateByID(ctx, f.standard.ID)
			So(terr, ShouldBeNil)
			So(tmpl.Stages[0].ID, ShouldNotEqual, req.Stages[0].ID)
			So(tmpl.Locked, ShouldBeTrue)
		})

		Convey("the submit action is on the audit trail", func() {
			So(req.Comments, ShouldHaveLength, 1)
			So(req.Comments[0].Action, ShouldEqual, model.ActionSubmit)
		})

		Convey("a creation event was published", func() {
			So(f.events, ShouldHaveLength, 1)
			So(f.events[0].Kind, ShouldEqual, model.EventApprovalCreated)
			So(f.events[0].RequestID, ShouldEqual, req.ID)
		})
	})

	Convey("creating a request from an unknown template fails", t, func() {
		f := newFixture()

		_, err := f.engine.CreateRequest(ctx, "content-1", "title", 9999, f.creator)
		So(workflow.IsNotFound(err), ShouldBeTrue)
	})
}

func TestApproveChain(t *testing.T) {
	ctx := context.Background()

	Convey("a two-stage standard approval driven to completion", t, func() {
		f := newFixture()
		req, err := f.engine.CreateRequest(ctx, "content-1", "Spring campaign post", f.standard.ID, f.creator)
		So(err, ShouldBeNil)

		Convey("content review approval advances to manager approval", func() {
			req, err = f.engine.SubmitAction(ctx, req.ID, req.Stages[0].ID, model.ActionApprove, f.alice, "looks good")
			So(err, ShouldBeNil)
			So(req.Status, ShouldEqual, model.RequestStatusInProgress)
			So(req.Stages[0].Status, ShouldEqual, model.StageStatusApproved)
			So(req.Stages[1].Status, ShouldEqual, model.StageStatusInProgress)
			So(*req.Stages[1].AssignedToID, ShouldEqual, f.bob.ID)
			checkSingleInProgress(req)

			Convey("manager approval completes the request", func() {
				req, err = f.engine.SubmitAction(ctx, req.ID, req.Stages[1].ID, model.ActionApprove, f.bob, "approved")
				So(err, ShouldBeNil)
				So(req.Status, ShouldEqual, model.RequestStatusApproved)
				So(req.CurrentStageID, ShouldBeNil)

				completed, total := f.engine.Progress(req)
				So(completed, ShouldEqual, 2)
				So(total, ShouldEqual, 2)

				Convey("acting on a terminal request fails", func() {
					_, err = f.engine.SubmitAction(ctx, req.ID, req.Stages[1].ID, model.ActionApprove, f.bob, "again")
					So(workflow.IsInvalidState(err), ShouldBeTrue)
				})
			})
		})
	})
}

func TestReject(t *testing.T) {
	ctx := context.Background()

	Convey("a rejection terminates the request but preserves history", t, func() {
		f := newFixture()
		req, _ := f.engine.CreateRequest(ctx, "content-2", "Launch email", f.standard.ID, f.creator)
		req, err := f.engine.SubmitAction(ctx, req.ID, req.Stages[0].ID, model.ActionApprove, f.alice, "ok")
		So(err, ShouldBeNil)

		req, err = f.engine.SubmitAction(ctx, req.ID, req.Stages[1].ID, model.ActionReject, f.bob, "not aligned with campaign")
		So(err, ShouldBeNil)
		So(req.Status, ShouldEqual, model.RequestStatusRejected)
		So(req.Stages[0].Status, ShouldEqual, model.StageStatusApproved)
		So(req.Stages[1].Status, ShouldEqual, model.StageStatusRejected)
		So(req.CurrentStageID, ShouldBeNil)

		Convey("the rejection comment is recorded against the stage", func() {
			last := req.Comments[len(req.Comments)-1]
			So(last.Action, ShouldEqual, model.ActionReject)
			So(last.Body, ShouldEqual, "not aligned with campaign")
			So(*last.StageID, ShouldEqual, req.Stages[1].ID)
		})
	})
}

func TestSkip(t *testing.T) {
	ctx := context.Background()

	Convey("skip is rejected on a required stage", t, func() {
		f := newFixture()
		req, _ := f.engine.CreateRequest(ctx, "content-3", "Legal-sensitive post", f.legal.ID, f.creator)
		req, err := f.engine.SubmitAction(ctx, req.ID, req.Stages[0].ID, model.ActionApprove, f.alice, "ok")
		So(err, ShouldBeNil)

		_, err = f.engine.SubmitAction(ctx, req.ID, req.Stages[1].ID, model.ActionSkip, f.carol, "no legal concerns")
		So(workflow.IsInvalidTransition(err), ShouldBeTrue)
	})

	Convey("skip advances over an optional stage like an approval", t, func() {
		f := newFixture()
		req, _ := f.engine.CreateRequest(ctx, "content-4", "Board deck teaser", f.exec.ID, f.creator)
		req, err := f.engine.SubmitAction(ctx, req.ID, req.Stages[0].ID, model.ActionApprove, f.alice, "ok")
		So(err, ShouldBeNil)

		req, err = f.engine.SubmitAction(ctx, req.ID, req.Stages[1].ID, model.ActionSkip, f.dana, "no exec input needed")
		So(err, ShouldBeNil)
		So(req.Stages[1].Status, ShouldEqual, model.StageStatusSkipped)
		So(req.Stages[2].Status, ShouldEqual, model.StageStatusInProgress)
		checkSingleInProgress(req)

		Convey("skipped stages count towards progress", func() {
			completed, total := f.engine.Progress(req)
			So(completed, ShouldEqual, 2)
			So(total, ShouldEqual, 3)
		})
	})
}

func TestRequestChangesAndResubmit(t *testing.T) {
	ctx := context.Background()

	Convey("a request returned for changes can be resubmitted by its creator", t, func() {
		f := newFixture()
		req, _ := f.engine.CreateRequest(ctx, "content-5", "Newsletter draft", f.standard.ID, f.creator)
		req, err := f.engine.SubmitAction(ctx, req.ID, req.Stages[0].ID, model.ActionApprove, f.alice, "ok")
		So(err, ShouldBeNil)

		req, err = f.engine.SubmitAction(ctx, req.ID, req.Stages[1].ID, model.ActionRequestChanges, f.bob, "tone it down")
		So(err, ShouldBeNil)
		So(req.Status, ShouldEqual, model.RequestStatusChangesRequested)
		So(req.Stages[1].Status, ShouldEqual, model.StageStatusChangesRequested)

		Convey("resubmission by someone else is refused", func() {
			_, err = f.engine.Resubmit(ctx, req.ID, f.bob)
			So(workflow.IsAuthorization(err), ShouldBeTrue)
		})

		Convey("resubmission before changes were requested is refused", func() {
			other, _ := f.engine.CreateRequest(ctx, "content-6", "Other", f.standard.ID, f.creator)
			_, err = f.engine.Resubmit(ctx, other.ID, f.creator)
			So(workflow.IsInvalidState(err), ShouldBeTrue)
		})

		Convey("resubmission restarts the chain at the returning stage", func() {
			req, err = f.engine.Resubmit(ctx, req.ID, f.creator)
			So(err, ShouldBeNil)
			So(req.Status, ShouldEqual, model.RequestStatusInProgress)
			So(req.Stages[0].Status, ShouldEqual, model.StageStatusApproved) // earlier approval preserved
			So(req.Stages[1].Status, ShouldEqual, model.StageStatusInProgress)
			So(req.Stages[1].CompletedByID, ShouldBeNil)
			checkSingleInProgress(req)

			Convey("the round-trip still reaches full approval", func() {
				req, err = f.engine.SubmitAction(ctx, req.ID, req.Stages[1].ID, model.ActionApprove, f.bob, "better now")
				So(err, ShouldBeNil)
				So(req.Status, ShouldEqual, model.RequestStatusApproved)

				completed, total := f.engine.Progress(req)
				So(completed, ShouldEqual, total)
			})
		})
	})
}

func TestAuthorization(t *testing.T) {
	ctx := context.Background()

	Convey("acting on a stage gated by another role", t, func() {
		f := newFixture()
		req, _ := f.engine.CreateRequest(ctx, "content-7", "Legal-sensitive post", f.legal.ID, f.creator)
		req, err := f.engine.SubmitAction(ctx, req.ID, req.Stages[0].ID, model.ActionApprove, f.alice, "ok")
		So(err, ShouldBeNil)

		Convey("a content reviewer cannot act on the legal stage", func() {
			_, err = f.engine.SubmitAction(ctx, req.ID, req.Stages[1].ID, model.ActionApprove, f.alice, "fine by me")
			So(workflow.IsAuthorization(err), ShouldBeTrue)
		})

		Convey("the override role can act on any stage, recorded with the real identity", func() {
			req, err = f.engine.SubmitAction(ctx, req.ID, req.Stages[1].ID, model.ActionApprove, f.override, "escalated sign-off")
			So(err, ShouldBeNil)
			So(req.Stages[1].Status, ShouldEqual, model.StageStatusApproved)
			So(*req.Stages[1].CompletedByID, ShouldEqual, f.override.ID)
			So(req.Stages[1].Role, ShouldEqual, model.ReviewRoleLegalReviewer)
		})
	})
}

func TestValidation(t *testing.T) {
	ctx := context.Background()

	Convey("review actions require a non-empty comment", t, func() {
		f := newFixture()
		req, _ := f.engine.CreateRequest(ctx, "content-8", "Draft", f.standard.ID, f.creator)

		for _, action := range []model.Action{model.ActionApprove, model.ActionReject, model.ActionRequestChanges} {
			_, err := f.engine.SubmitAction(ctx, req.ID, req.Stages[0].ID, action, f.alice, "   ")
			So(workflow.IsValidation(err), ShouldBeTrue)
		}
	})

	Convey("acting out of order is an invalid transition", t, func() {
		f := newFixture()
		req, _ := f.engine.CreateRequest(ctx, "content-9", "Draft", f.standard.ID, f.creator)

		_, err := f.engine.SubmitAction(ctx, req.ID, req.Stages[1].ID, model.ActionApprove, f.bob, "jumping ahead")
		So(workflow.IsInvalidTransition(err), ShouldBeTrue)
	})

	Convey("request-level actions are not accepted as stage actions", t, func() {
		f := newFixture()
		req, _ := f.engine.CreateRequest(ctx, "content-10", "Draft", f.standard.ID, f.creator)

		_, err := f.engine.SubmitAction(ctx, req.ID, req.Stages[0].ID, model.ActionCancel, f.alice, "why not")
		So(workflow.IsValidation(err), ShouldBeTrue)
	})
}

func TestCancel(t *testing.T) {
	ctx := context.Background()

	Convey("a creator can cancel a non-terminal request", t, func() {
		f := newFixture()
		req, _ := f.engine.CreateRequest(ctx, "content-11", "Draft", f.standard.ID, f.creator)

		Convey("cancellation requires a reason", func() {
			_, err := f.engine.Cancel(ctx, req.ID, f.creator, "")
			So(workflow.IsValidation(err), ShouldBeTrue)
		})

		Convey("only the creator may cancel", func() {
			_, err := f.engine.Cancel(ctx, req.ID, f.bob, "cleaning up")
			So(workflow.IsAuthorization(err), ShouldBeTrue)
		})

		Convey("cancellation is terminal", func() {
			req, err := f.engine.Cancel(ctx, req.ID, f.creator, "campaign shelved")
			So(err, ShouldBeNil)
			So(req.Status, ShouldEqual, model.RequestStatusCanceled)
			So(req.CurrentStageID, ShouldBeNil)

			_, err = f.engine.Cancel(ctx, req.ID, f.creator, "again")
			So(workflow.IsInvalidState(err), ShouldBeTrue)
		})
	})
}

func TestListRequests(t *testing.T) {
	ctx := context.Background()

	Convey("listing with filters", t, func() {
		f := newFixture()

		first, _ := f.engine.CreateRequest(ctx, "content-a", "A", f.standard.ID, f.creator)
		second, _ := f.engine.CreateRequest(ctx, "content-b", "B", f.standard.ID, f.creator)
		third, _ := f.engine.CreateRequest(ctx, "content-c", "C", f.standard.ID, f.alice)

		// Drive the second request past the content review stage and the
		// third to a terminal state.
		second, err := f.engine.SubmitAction(ctx, second.ID, second.Stages[0].ID, model.ActionApprove, f.alice, "ok")
		So(err, ShouldBeNil)
		_, err = f.engine.SubmitAction(ctx, third.ID, third.Stages[0].ID, model.ActionReject, f.alice, "off brand")
		So(err, ShouldBeNil)

		Convey("all requests come back newest first", func() {
			all, lerr := f.engine.ListRequests(ctx, workflow.Filter{Kind: workflow.FilterAll})
			So(lerr, ShouldBeNil)
			So(all, ShouldHaveLength, 3)
			So(all[0].ID, ShouldEqual, third.ID)
			So(all[1].ID, ShouldEqual, second.ID)
			So(all[2].ID, ShouldEqual, first.ID)
		})

		Convey("pending_for only returns in-progress requests waiting on the actor", func() {
			pending, lerr := f.engine.ListRequests(ctx, workflow.Filter{Kind: workflow.FilterPendingFor, ActorID: f.bob.ID})
			So(lerr, ShouldBeNil)
			So(pending, ShouldHaveLength, 1)
			So(pending[0].ID, ShouldEqual, second.ID)

			forAlice, lerr := f.engine.ListRequests(ctx, workflow.Filter{Kind: workflow.FilterPendingFor, ActorID: f.alice.ID})
			So(lerr, ShouldBeNil)
			So(forAlice, ShouldHaveLength, 1)
			So(forAlice[0].ID, ShouldEqual, first.ID)
		})

		Convey("submitted_by returns the creator's requests regardless of status", func() {
			mine, lerr := f.engine.ListRequests(ctx, workflow.Filter{Kind: workflow.FilterSubmittedBy, ActorID: f.creator.ID})
			So(lerr, ShouldBeNil)
			So(mine, ShouldHaveLength, 2)
		})
	})
}

func TestEventFeed(t *testing.T) {
	ctx := context.Background()

	Convey("every transition leaves a durable event", t, func() {
		f := newFixture()
		req, _ := f.engine.CreateRequest(ctx, "content-12", "Draft", f.standard.ID, f.creator)
		req, err := f.engine.SubmitAction(ctx, req.ID, req.Stages[0].ID, model.ActionApprove, f.alice, "ok")
		So(err, ShouldBeNil)
		_, err = f.engine.SubmitAction(ctx, req.ID, req.Stages[1].ID, model.ActionApprove, f.bob, "ship it")
		So(err, ShouldBeNil)

		events, err := f.engine.Events(ctx, req.ID)
		So(err, ShouldBeNil)
		So(events, ShouldHaveLength, 3)
		So(events[0].Kind, ShouldEqual, model.EventApprovalCreated)
		So(events[1].Kind, ShouldEqual, model.EventApprovalAdvanced)
		So(events[2].Kind, ShouldEqual, model.EventApprovalApproved)

		Convey("published and stored events line up", func() {
			So(f.events, ShouldHaveLength, 3)
			So(f.events[2].Payload.Data().ToStatus, ShouldEqual, model.RequestStatusApproved)
		})
	})
}

func TestFanout(t *testing.T) {
	Convey("fanout delivers to all subscribers and survives cancel", t, func() {
		f := workflow.NewFanout()
		ch1, cancel1 := f.Subscribe()
		ch2, cancel2 := f.Subscribe()
		defer cancel2()

		f.Publish(&model.ApprovalEvent{UID: "e1"})
		So((<-ch1).UID, ShouldEqual, "e1")
		So((<-ch2).UID, ShouldEqual, "e1")

		cancel1()
		f.Publish(&model.ApprovalEvent{UID: "e2"})
		So((<-ch2).UID, ShouldEqual, "e2")

		_, open := <-ch1
		So(open, ShouldBeFalse)
	})
}
