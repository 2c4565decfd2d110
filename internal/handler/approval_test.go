package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aimd-lab/director/dao/model"
	"github.com/aimd-lab/director/internal/resputil"
	"github.com/aimd-lab/director/pkg/workflow"
)

func recordEngineError(err error) (*httptest.ResponseRecorder, resputil.Response[any]) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", http.NoBody)

	replyEngineError(c, err)

	var resp resputil.Response[any]
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	return w, resp
}

func TestReplyEngineError(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		httpCode int
		code     resputil.ErrorCode
	}{
		{
			name:     "not found",
			err:      &workflow.NotFoundError{Resource: "approval request", ID: 3},
			httpCode: http.StatusNotFound,
			code:     resputil.NotFound,
		},
		{
			name:     "authorization",
			err:      &workflow.AuthorizationError{Actor: "bob", Role: model.ReviewRoleManager, Required: model.ReviewRoleLegalReviewer},
			httpCode: http.StatusForbidden,
			code:     resputil.UserNotAllowed,
		},
		{
			name:     "validation",
			err:      &workflow.ValidationError{Reason: "action reject requires a comment"},
			httpCode: http.StatusBadRequest,
			code:     resputil.InvalidRequest,
		},
		{
			name:     "invalid state",
			err:      &workflow.InvalidStateError{Status: model.RequestStatusApproved, Op: "act on"},
			httpCode: http.StatusConflict,
			code:     resputil.InvalidState,
		},
		{
			name:     "invalid transition",
			err:      &workflow.InvalidTransitionError{Reason: "stage is not the current stage of the request"},
			httpCode: http.StatusConflict,
			code:     resputil.InvalidTransition,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w, resp := recordEngineError(tc.err)
			assert.Equal(t, tc.httpCode, w.Code)
			assert.Equal(t, tc.code, resp.Code)
			assert.NotEmpty(t, resp.Msg)
		})
	}
}

func TestConvertApproval(t *testing.T) {
	req := &model.ApprovalRequest{
		ContentID:    "post-1",
		ContentTitle: "Launch post",
		Status:       model.RequestStatusInProgress,
		Creator:      model.User{Name: "dana"},
		Stages: []model.Stage{
			{Name: "Content Review", Role: model.ReviewRoleContentReviewer, Required: true, Order: 1, Status: model.StageStatusApproved},
			{Name: "Manager Approval", Role: model.ReviewRoleManager, Required: true, Order: 2, Status: model.StageStatusInProgress},
		},
		Comments: []model.Comment{
			{Author: model.User{Name: "alice"}, Action: model.ActionApprove, Body: "looks good"},
		},
	}

	detail := convertApproval(req, true)
	require.Len(t, detail.Stages, 2)
	require.Len(t, detail.Comments, 1)
	assert.Equal(t, "approve", detail.Comments[0].Action)
	assert.Equal(t, 1, detail.Progress.Completed)
	assert.Equal(t, 2, detail.Progress.Total)

	summary := convertApproval(req, false)
	assert.Empty(t, summary.Comments)
}
