package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/aimd-lab/director/dao/model"
	"github.com/aimd-lab/director/internal/payload"
	"github.com/aimd-lab/director/internal/resputil"
)

// newTemplateRouter wires a TemplateMgr against an in-memory sqlite DB with
// the real schema, unique indexes included, so index conflicts surface the
// same way they would on postgres.
func newTemplateRouter(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.WorkflowTemplate{}, &model.StageTemplate{}))

	mgr := &TemplateMgr{name: "templates", db: db}
	r := gin.New()
	mgr.RegisterProtected(r.Group("/templates"))
	mgr.RegisterAdmin(r.Group("/admin/templates"))
	return r, db
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeResp[T any](t *testing.T, w *httptest.ResponseRecorder) resputil.Response[T] {
	t.Helper()
	var resp resputil.Response[T]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func standardTemplateReq() TemplateReq {
	return TemplateReq{
		Name:        "Standard Approval",
		Description: "常规内容审批",
		Stages: []StageTemplateReq{
			{Name: "Content Review", Role: model.ReviewRoleContentReviewer, Order: 1},
			{Name: "Manager Approval", Role: model.ReviewRoleManager, Order: 2},
		},
	}
}

func TestCreateTemplateValidation(t *testing.T) {
	r, _ := newTemplateRouter(t)

	t.Run("stages are required", func(t *testing.T) {
		w := doJSON(t, r, http.MethodPost, "/admin/templates", TemplateReq{Name: "Empty"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("orders must be contiguous from 1", func(t *testing.T) {
		req := standardTemplateReq()
		req.Stages[1].Order = 3
		w := doJSON(t, r, http.MethodPost, "/admin/templates", req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown review role is rejected", func(t *testing.T) {
		req := standardTemplateReq()
		req.Stages[0].Role = "intern"
		w := doJSON(t, r, http.MethodPost, "/admin/templates", req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestTemplateLifecycle(t *testing.T) {
	r, _ := newTemplateRouter(t)

	w := doJSON(t, r, http.MethodPost, "/admin/templates", standardTemplateReq())
	require.Equal(t, http.StatusOK, w.Code)
	created := decodeResp[TemplateResp](t, w).Data
	require.NotZero(t, created.ID)
	require.Len(t, created.Stages, 2)
	assert.True(t, created.Stages[0].Required, "required defaults to true")

	t.Run("list returns the template with ordered stages", func(t *testing.T) {
		w := doJSON(t, r, http.MethodGet, "/templates", nil)
		require.Equal(t, http.StatusOK, w.Code)
		list := decodeResp[payload.ListResp[TemplateResp]](t, w).Data
		require.EqualValues(t, 1, list.Count)
		assert.Equal(t, "Content Review", list.Rows[0].Stages[0].Name)
	})

	t.Run("update replaces the stage set, reusing the same orders", func(t *testing.T) {
		req := standardTemplateReq()
		req.Description = "加入法务环节"
		req.Stages = []StageTemplateReq{
			{Name: "Content Review", Role: model.ReviewRoleContentReviewer, Order: 1},
			{Name: "Legal Review", Role: model.ReviewRoleLegalReviewer, Order: 2},
			{Name: "Manager Approval", Role: model.ReviewRoleManager, Order: 3},
		}
		w := doJSON(t, r, http.MethodPut, "/admin/templates/1", req)
		require.Equal(t, http.StatusOK, w.Code)

		w = doJSON(t, r, http.MethodGet, "/templates/1", nil)
		require.Equal(t, http.StatusOK, w.Code)
		got := decodeResp[TemplateResp](t, w).Data
		require.Len(t, got.Stages, 3, "old stage rows must be gone")
		assert.Equal(t, "Legal Review", got.Stages[1].Name)
	})

	t.Run("delete frees the template name for re-creation", func(t *testing.T) {
		w := doJSON(t, r, http.MethodDelete, "/admin/templates/1", nil)
		require.Equal(t, http.StatusOK, w.Code)

		w = doJSON(t, r, http.MethodGet, "/templates/1", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)

		w = doJSON(t, r, http.MethodPost, "/admin/templates", standardTemplateReq())
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestLockedTemplateIsImmutable(t *testing.T) {
	r, db := newTemplateRouter(t)

	w := doJSON(t, r, http.MethodPost, "/admin/templates", standardTemplateReq())
	require.Equal(t, http.StatusOK, w.Code)
	created := decodeResp[TemplateResp](t, w).Data

	require.NoError(t, db.Model(&model.WorkflowTemplate{}).
		Where("id = ?", created.ID).Update("locked", true).Error)

	w = doJSON(t, r, http.MethodPut, "/admin/templates/1", standardTemplateReq())
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, resputil.InvalidState, decodeResp[any](t, w).Code)

	w = doJSON(t, r, http.MethodDelete, "/admin/templates/1", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, resputil.InvalidState, decodeResp[any](t, w).Code)
}
