package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
	"github.com/yukikurage/priority-matrix/internal/constants"
	"github.com/yukikurage/priority-matrix/internal/dto"
	apierrors "github.com/yukikurage/priority-matrix/internal/errors"
	"github.com/yukikurage/priority-matrix/internal/realtime"
	"github.com/yukikurage/priority-matrix/internal/repository"
	"github.com/yukikurage/priority-matrix/internal/services"
	"github.com/yukikurage/priority-matrix/internal/testutil"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const testIdentityToken = "proxy-secret"

// TaskHandlerTestSuite drives the REST API through the full router
type TaskHandlerTestSuite struct {
	suite.Suite
	db     *gorm.DB
	router *gin.Engine
}

// SetupTest runs before each test
func (suite *TaskHandlerTestSuite) SetupTest() {
	gin.SetMode(gin.TestMode)
	suite.db = testutil.NewDB(suite.T())
	suite.router = newTestRouter(suite.db, testIdentityToken)
}

func newTestRouter(db *gorm.DB, identityToken string) *gin.Engine {
	log := zap.NewNop()

	taskRepo := repository.NewTaskRepository(db)
	relRepo := repository.NewRelationshipRepository(db)
	userRepo := repository.NewUserRepository(db)

	visibility := services.NewVisibilityService(taskRepo, relRepo)
	hub := realtime.NewHub(visibility, time.Second, log)
	hierarchy := services.NewHierarchyService(taskRepo, relRepo, hub, log)
	tasks := services.NewTaskService(taskRepo, hierarchy, visibility, hub, log)
	timers := services.NewTimerService(taskRepo, hub, log)
	imports := services.NewImportService(taskRepo, hierarchy, nil, hub, log)
	dispatcher := realtime.NewDispatcher(hub, tasks, timers, hierarchy, imports, time.Second, log)

	r := gin.New()
	r.Use(sessions.Sessions(constants.SessionCookieName, cookie.NewStore([]byte("secret"))))
	Routes{
		Auth:          NewAuthHandler(services.NewAuthService(userRepo), identityToken),
		Tasks:         NewTaskHandler(tasks, timers, hierarchy, log),
		Relationships: NewRelationshipHandler(hierarchy, log),
		Imports:       NewImportHandler(imports, tasks, log),
		Websocket:     NewWebsocketHandler(hub, dispatcher, log),
		QueryTimeout:  5 * time.Second,
	}.Register(r)
	return r
}

// Helper function to perform a request, optionally with a session cookie
func (suite *TaskHandlerTestSuite) do(method, url string, body any, session *http.Cookie) *httptest.ResponseRecorder {
	var req *http.Request
	if body != nil {
		payload, err := json.Marshal(body)
		suite.Require().NoError(err)
		req = httptest.NewRequest(method, url, bytes.NewReader(payload))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, url, nil)
	}
	if session != nil {
		req.AddCookie(session)
	}

	w := httptest.NewRecorder()
	suite.router.ServeHTTP(w, req)
	return w
}

// login opens a session for id through the identity proxy endpoint
func (suite *TaskHandlerTestSuite) login(id string) *http.Cookie {
	payload, err := json.Marshal(map[string]string{"id": id, "email": id + "@example.com"})
	suite.Require().NoError(err)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/session", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(IdentityTokenHeader, testIdentityToken)
	w := httptest.NewRecorder()
	suite.router.ServeHTTP(w, req)
	suite.Require().Equal(http.StatusOK, w.Code)

	for _, c := range w.Result().Cookies() {
		if c.Name == constants.SessionCookieName {
			return c
		}
	}
	suite.FailNow("session cookie not set")
	return nil
}

func (suite *TaskHandlerTestSuite) createTask(name string, session *http.Cookie) dto.TaskDTO {
	w := suite.do(http.MethodPost, "/api/tasks", map[string]any{"name": name}, session)
	suite.Require().Equal(http.StatusCreated, w.Code)

	var task dto.TaskDTO
	suite.Require().NoError(json.Unmarshal(w.Body.Bytes(), &task))
	return task
}

func (suite *TaskHandlerTestSuite) errorCode(w *httptest.ResponseRecorder) string {
	var apiErr apierrors.APIError
	suite.Require().NoError(json.Unmarshal(w.Body.Bytes(), &apiErr))
	return apiErr.Code
}

func (suite *TaskHandlerTestSuite) listTasks(session *http.Cookie) []dto.TaskDTO {
	w := suite.do(http.MethodGet, "/api/tasks", nil, session)
	suite.Require().Equal(http.StatusOK, w.Code)

	var response struct {
		Tasks []dto.TaskDTO `json:"tasks"`
	}
	suite.Require().NoError(json.Unmarshal(w.Body.Bytes(), &response))
	return response.Tasks
}

// TestCreateTask_CoercesScores tests that bad scores are coerced, not rejected
func (suite *TaskHandlerTestSuite) TestCreateTask_CoercesScores() {
	w := suite.do(http.MethodPost, "/api/tasks", map[string]any{
		"name":       "  Write report ",
		"importance": "7.6",
		"urgency":    "soon",
	}, nil)

	suite.Require().Equal(http.StatusCreated, w.Code)
	var task dto.TaskDTO
	suite.Require().NoError(json.Unmarshal(w.Body.Bytes(), &task))
	assert.Equal(suite.T(), "Write report", task.Name)
	assert.Equal(suite.T(), 8, task.Importance)
	assert.Equal(suite.T(), 5, task.Urgency)
	assert.Nil(suite.T(), task.UserID)

	tasks := suite.listTasks(nil)
	suite.Len(tasks, 1)
}

// TestCreateTask_MissingName tests the only rejected input
func (suite *TaskHandlerTestSuite) TestCreateTask_MissingName() {
	w := suite.do(http.MethodPost, "/api/tasks", map[string]any{"name": "   "}, nil)

	assert.Equal(suite.T(), http.StatusBadRequest, w.Code)
	assert.Equal(suite.T(), apierrors.ErrCodeMissingField, suite.errorCode(w))
}

// TestOwnedTask_HiddenFromOthers tests that owned tasks do not leak
func (suite *TaskHandlerTestSuite) TestOwnedTask_HiddenFromOthers() {
	alice := suite.login("alice")
	bob := suite.login("bob")

	task := suite.createTask("Alice only", alice)
	suite.Require().NotNil(task.UserID)
	suite.Equal("alice", *task.UserID)

	url := fmt.Sprintf("/api/tasks/%d", task.ID)
	assert.Equal(suite.T(), http.StatusOK, suite.do(http.MethodGet, url, nil, alice).Code)
	assert.Equal(suite.T(), http.StatusNotFound, suite.do(http.MethodGet, url, nil, bob).Code)
	assert.Equal(suite.T(), http.StatusNotFound, suite.do(http.MethodGet, url, nil, nil).Code)
	assert.Equal(suite.T(), http.StatusNotFound, suite.do(http.MethodDelete, url, nil, bob).Code)

	suite.Empty(suite.listTasks(bob))
	suite.Len(suite.listTasks(alice), 1)
}

// TestEditTask_ClaimsSharedTask tests that a signed-in edit takes ownership
func (suite *TaskHandlerTestSuite) TestEditTask_ClaimsSharedTask() {
	task := suite.createTask("Shared", nil)
	alice := suite.login("alice")

	w := suite.do(http.MethodPut, fmt.Sprintf("/api/tasks/%d", task.ID), map[string]any{
		"name":  "Claimed",
		"notes": "mine now",
	}, alice)

	suite.Require().Equal(http.StatusOK, w.Code)
	var updated dto.TaskDTO
	suite.Require().NoError(json.Unmarshal(w.Body.Bytes(), &updated))
	assert.Equal(suite.T(), "Claimed", updated.Name)
	suite.Require().NotNil(updated.Notes)
	assert.Equal(suite.T(), "mine now", *updated.Notes)
	suite.Require().NotNil(updated.UserID)
	assert.Equal(suite.T(), "alice", *updated.UserID)

	suite.Empty(suite.listTasks(nil))
}

// TestModifyTask_IgnoresOtherColumns tests that PATCH only touches name and scores
func (suite *TaskHandlerTestSuite) TestModifyTask_IgnoresOtherColumns() {
	task := suite.createTask("Plain", nil)

	w := suite.do(http.MethodPatch, fmt.Sprintf("/api/tasks/%d", task.ID), map[string]any{
		"urgency": 9,
		"notes":   "ignored",
	}, nil)

	suite.Require().Equal(http.StatusOK, w.Code)
	var updated dto.TaskDTO
	suite.Require().NoError(json.Unmarshal(w.Body.Bytes(), &updated))
	assert.Equal(suite.T(), 9, updated.Urgency)
	assert.Equal(suite.T(), "Plain", updated.Name)
	assert.Nil(suite.T(), updated.Notes)
}

// TestInvalidTaskID tests path validation
func (suite *TaskHandlerTestSuite) TestInvalidTaskID() {
	w := suite.do(http.MethodGet, "/api/tasks/abc", nil, nil)
	assert.Equal(suite.T(), http.StatusBadRequest, w.Code)
}

// TestToggleDone tests completion round trip
func (suite *TaskHandlerTestSuite) TestToggleDone() {
	task := suite.createTask("Finish", nil)
	url := fmt.Sprintf("/api/tasks/%d/toggle", task.ID)

	w := suite.do(http.MethodPost, url, nil, nil)
	suite.Require().Equal(http.StatusOK, w.Code)
	var done dto.TaskDTO
	suite.Require().NoError(json.Unmarshal(w.Body.Bytes(), &done))
	assert.True(suite.T(), done.Done)
	assert.NotNil(suite.T(), done.CompletedAt)

	w = suite.do(http.MethodPost, url, nil, nil)
	suite.Require().Equal(http.StatusOK, w.Code)
	var undone dto.TaskDTO
	suite.Require().NoError(json.Unmarshal(w.Body.Bytes(), &undone))
	assert.False(suite.T(), undone.Done)
	assert.Nil(suite.T(), undone.CompletedAt)
}

// TestSubtasksAndCycle tests hierarchy writes and the cycle guard
func (suite *TaskHandlerTestSuite) TestSubtasksAndCycle() {
	parent := suite.createTask("Parent", nil)

	w := suite.do(http.MethodPost, fmt.Sprintf("/api/tasks/%d/subtasks", parent.ID), map[string]any{"name": "Child"}, nil)
	suite.Require().Equal(http.StatusCreated, w.Code)
	var child dto.TaskDTO
	suite.Require().NoError(json.Unmarshal(w.Body.Bytes(), &child))
	suite.Require().NotNil(child.ParentID)
	suite.Equal(parent.ID, *child.ParentID)

	w = suite.do(http.MethodPut, fmt.Sprintf("/api/tasks/%d/parent", parent.ID), map[string]any{"parent_id": child.ID}, nil)
	assert.Equal(suite.T(), http.StatusUnprocessableEntity, w.Code)
	assert.Equal(suite.T(), apierrors.ErrCodeHierarchyCycle, suite.errorCode(w))

	w = suite.do(http.MethodPut, fmt.Sprintf("/api/tasks/%d/subtask", parent.ID), map[string]any{"parent_id": parent.ID}, nil)
	assert.Equal(suite.T(), http.StatusUnprocessableEntity, w.Code)

	w = suite.do(http.MethodPut, fmt.Sprintf("/api/tasks/%d/parent", child.ID), map[string]any{"parent_id": nil}, nil)
	suite.Require().Equal(http.StatusOK, w.Code)
	for _, task := range suite.listTasks(nil) {
		assert.Nil(suite.T(), task.ParentID)
	}
}

// TestDeleteTask_PromotesChildren tests that deleting a parent keeps its children
func (suite *TaskHandlerTestSuite) TestDeleteTask_PromotesChildren() {
	parent := suite.createTask("Parent", nil)
	w := suite.do(http.MethodPost, fmt.Sprintf("/api/tasks/%d/subtasks", parent.ID), map[string]any{"name": "Child"}, nil)
	suite.Require().Equal(http.StatusCreated, w.Code)

	w = suite.do(http.MethodDelete, fmt.Sprintf("/api/tasks/%d", parent.ID), nil, nil)
	suite.Require().Equal(http.StatusOK, w.Code)

	tasks := suite.listTasks(nil)
	suite.Require().Len(tasks, 1)
	assert.Equal(suite.T(), "Child", tasks[0].Name)
	assert.Nil(suite.T(), tasks[0].ParentID)

	w = suite.do(http.MethodGet, fmt.Sprintf("/api/tasks/%d", parent.ID), nil, nil)
	assert.Equal(suite.T(), http.StatusNotFound, w.Code)
}

// TestUpdateAttributes tests the single-field routes
func (suite *TaskHandlerTestSuite) TestUpdateAttributes() {
	task := suite.createTask("Styled", nil)

	for field, value := range map[string]string{
		"notes":  "remember milk",
		"status": "in_progress",
		"icon":   "star",
		"color":  "#ff0000",
	} {
		w := suite.do(http.MethodPut, fmt.Sprintf("/api/tasks/%d/%s", task.ID, field), map[string]any{field: value}, nil)
		suite.Require().Equal(http.StatusOK, w.Code, field)
	}

	tasks := suite.listTasks(nil)
	suite.Require().Len(tasks, 1)
	got := tasks[0]
	suite.Require().NotNil(got.Notes)
	suite.Require().NotNil(got.Status)
	suite.Require().NotNil(got.Icon)
	suite.Require().NotNil(got.Color)
	assert.Equal(suite.T(), "remember milk", *got.Notes)
	assert.Equal(suite.T(), "in_progress", *got.Status)
	assert.Equal(suite.T(), "star", *got.Icon)
	assert.Equal(suite.T(), "#ff0000", *got.Color)

	w := suite.do(http.MethodPut, fmt.Sprintf("/api/tasks/%d/notes", task.ID), map[string]any{"notes": ""}, nil)
	suite.Require().Equal(http.StatusOK, w.Code)
	var cleared dto.TaskDTO
	suite.Require().NoError(json.Unmarshal(w.Body.Bytes(), &cleared))
	assert.Nil(suite.T(), cleared.Notes)
}

// TestTimer tests start, stop and the session history
func (suite *TaskHandlerTestSuite) TestTimer() {
	task := suite.createTask("Focus", nil)
	base := fmt.Sprintf("/api/tasks/%d", task.ID)

	w := suite.do(http.MethodPost, base+"/timer/stop", nil, nil)
	assert.Equal(suite.T(), http.StatusConflict, w.Code)
	assert.Equal(suite.T(), apierrors.ErrCodeNoActiveTimer, suite.errorCode(w))

	w = suite.do(http.MethodPost, base+"/timer/start", nil, nil)
	suite.Require().Equal(http.StatusOK, w.Code)

	w = suite.do(http.MethodGet, "/api/timers/active", nil, nil)
	suite.Require().Equal(http.StatusOK, w.Code)
	assert.Contains(suite.T(), w.Body.String(), `"name":"Focus"`)

	w = suite.do(http.MethodPost, base+"/timer/stop", nil, nil)
	suite.Require().Equal(http.StatusOK, w.Code)
	var stopped dto.TimerStoppedDTO
	suite.Require().NoError(json.Unmarshal(w.Body.Bytes(), &stopped))
	assert.Equal(suite.T(), task.ID, stopped.TaskID)
	assert.NotZero(suite.T(), stopped.LogID)

	w = suite.do(http.MethodGet, base+"/time-logs?page=1&limit=10", nil, nil)
	suite.Require().Equal(http.StatusOK, w.Code)
	var logs dto.TimeLogListResponse
	suite.Require().NoError(json.Unmarshal(w.Body.Bytes(), &logs))
	assert.Equal(suite.T(), int64(1), logs.Pagination.Total)
	assert.Equal(suite.T(), 1, logs.Pagination.TotalPages)
	suite.Require().Len(logs.TimeLogs, 1)
	assert.Equal(suite.T(), constants.SessionTypeFocus, logs.TimeLogs[0].SessionType)

	w = suite.do(http.MethodPost, base+"/timer/stop", nil, nil)
	assert.Equal(suite.T(), http.StatusConflict, w.Code)
}

// TestRelationships tests edge creation, dedup, integrity and removal
func (suite *TaskHandlerTestSuite) TestRelationships() {
	enabler := suite.createTask("Enabler", nil)
	enabled := suite.createTask("Enabled", nil)
	edge := map[string]any{"enabler_id": enabler.ID, "enabled_id": enabled.ID}

	w := suite.do(http.MethodPost, "/api/relationships", edge, nil)
	suite.Require().Equal(http.StatusCreated, w.Code)
	var first dto.RelationshipDTO
	suite.Require().NoError(json.Unmarshal(w.Body.Bytes(), &first))

	w = suite.do(http.MethodPost, "/api/relationships", edge, nil)
	suite.Require().Equal(http.StatusCreated, w.Code)
	var second dto.RelationshipDTO
	suite.Require().NoError(json.Unmarshal(w.Body.Bytes(), &second))
	assert.Equal(suite.T(), first.ID, second.ID)

	w = suite.do(http.MethodPost, "/api/relationships", map[string]any{"enabler_id": enabler.ID, "enabled_id": enabler.ID}, nil)
	assert.Equal(suite.T(), http.StatusUnprocessableEntity, w.Code)
	assert.Equal(suite.T(), apierrors.ErrCodeSelfRelationship, suite.errorCode(w))

	w = suite.do(http.MethodPost, "/api/relationships", map[string]any{"enabler_id": enabler.ID, "enabled_id": 999}, nil)
	assert.Equal(suite.T(), http.StatusUnprocessableEntity, w.Code)
	assert.Equal(suite.T(), apierrors.ErrCodeNotVisible, suite.errorCode(w))

	for _, task := range suite.listTasks(nil) {
		if task.ID == enabler.ID {
			assert.Equal(suite.T(), 1, task.LeverageScore)
		}
	}

	w = suite.do(http.MethodGet, fmt.Sprintf("/api/relationships?task_id=%d", enabled.ID), nil, nil)
	suite.Require().Equal(http.StatusOK, w.Code)
	var list struct {
		Relationships []dto.RelationshipDTO `json:"relationships"`
	}
	suite.Require().NoError(json.Unmarshal(w.Body.Bytes(), &list))
	suite.Len(list.Relationships, 1)

	w = suite.do(http.MethodDelete, fmt.Sprintf("/api/relationships?enabler_id=%d&enabled_id=%d", enabler.ID, enabled.ID), nil, nil)
	suite.Require().Equal(http.StatusOK, w.Code)
	assert.JSONEq(suite.T(), `{"removed":1}`, w.Body.String())
}

// TestImportJSON tests reconciliation through the JSON import route
func (suite *TaskHandlerTestSuite) TestImportJSON() {
	suite.createTask("Existing", nil)

	w := suite.do(http.MethodPost, "/api/import", map[string]any{"tasks": []map[string]any{
		{"id": "1", "Task Name": "Existing"},
		{"id": "2", "title": "New child", "parent id": "1", "urgency": "urgent"},
		{"id": "3", "importance": 4},
	}}, nil)

	suite.Require().Equal(http.StatusOK, w.Code)
	var response struct {
		Success bool             `json:"success"`
		Details dto.ImportResult `json:"details"`
	}
	suite.Require().NoError(json.Unmarshal(w.Body.Bytes(), &response))
	assert.True(suite.T(), response.Success)
	assert.Equal(suite.T(), 1, response.Details.Imported)
	assert.Equal(suite.T(), 1, response.Details.Updated)
	suite.Require().Len(response.Details.Errors, 1)
	assert.Equal(suite.T(), 3, response.Details.Errors[0].Row)

	tasks := suite.listTasks(nil)
	suite.Require().Len(tasks, 2)
	for _, task := range tasks {
		if task.Name == "New child" {
			suite.Require().NotNil(task.ParentID)
			assert.Equal(suite.T(), 9, task.Urgency)
		}
	}
}

// TestImportCSV tests the multipart upload route
func (suite *TaskHandlerTestSuite) TestImportCSV() {
	body := &bytes.Buffer{}
	form := multipart.NewWriter(body)
	part, err := form.CreateFormFile("file", "tasks.csv")
	suite.Require().NoError(err)
	_, err = part.Write([]byte("\xEF\xBB\xBFname,importance,urgency\nFirst,9,2\nSecond,1\n"))
	suite.Require().NoError(err)
	suite.Require().NoError(form.Close())

	newRequest := func() *http.Request {
		req := httptest.NewRequest(http.MethodPost, "/api/import/csv", bytes.NewReader(body.Bytes()))
		req.Header.Set("Content-Type", form.FormDataContentType())
		return req
	}

	w := httptest.NewRecorder()
	suite.router.ServeHTTP(w, newRequest())
	assert.Equal(suite.T(), http.StatusUnauthorized, w.Code)

	req := newRequest()
	req.AddCookie(suite.login("alice"))
	w = httptest.NewRecorder()
	suite.router.ServeHTTP(w, req)
	suite.Require().Equal(http.StatusOK, w.Code)
	assert.Contains(suite.T(), w.Body.String(), `"imported":2`)
}

// TestExportCSV tests that the export is an attachment with a header row
func (suite *TaskHandlerTestSuite) TestExportCSV() {
	alice := suite.login("alice")
	suite.createTask("Exported", alice)

	assert.Equal(suite.T(), http.StatusUnauthorized, suite.do(http.MethodGet, "/api/export/csv", nil, nil).Code)

	w := suite.do(http.MethodGet, "/api/export/csv", nil, alice)
	suite.Require().Equal(http.StatusOK, w.Code)
	assert.Contains(suite.T(), w.Header().Get("Content-Disposition"), "tasks-export-")
	lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
	suite.Require().Len(lines, 2)
	assert.True(suite.T(), strings.HasPrefix(lines[0], "id,name,importance"))
	assert.Contains(suite.T(), lines[1], "Exported")
}

// TestTemplate tests the template download
func (suite *TaskHandlerTestSuite) TestTemplate() {
	w := suite.do(http.MethodGet, "/api/import/template", nil, nil)

	suite.Require().Equal(http.StatusOK, w.Code)
	assert.Contains(suite.T(), w.Header().Get("Content-Disposition"), "task-template.csv")
	assert.True(suite.T(), strings.HasPrefix(w.Body.String(), "name,importance,urgency"))
}

// TestGenerateTasks_NotConfigured tests the AI route without a backend
func (suite *TaskHandlerTestSuite) TestGenerateTasks_NotConfigured() {
	w := suite.do(http.MethodPost, "/api/import/generate", map[string]any{"text": "buy milk"}, nil)

	assert.Equal(suite.T(), http.StatusServiceUnavailable, w.Code)
	assert.Equal(suite.T(), apierrors.ErrCodeServiceUnavailable, suite.errorCode(w))
}

// TestAnalytics tests that analytics carries tasks and logs
func (suite *TaskHandlerTestSuite) TestAnalytics() {
	suite.createTask("Counted", nil)

	w := suite.do(http.MethodGet, "/api/analytics", nil, nil)
	suite.Require().Equal(http.StatusOK, w.Code)

	var analytics dto.AnalyticsDTO
	suite.Require().NoError(json.Unmarshal(w.Body.Bytes(), &analytics))
	suite.Len(analytics.Tasks, 1)
	suite.Empty(analytics.TimeLogs)
}

// TestHealth tests the liveness route
func (suite *TaskHandlerTestSuite) TestHealth() {
	w := suite.do(http.MethodGet, "/health", nil, nil)
	assert.Equal(suite.T(), http.StatusOK, w.Code)
}

// TestTaskHandlerTestSuite runs the test suite
func TestTaskHandlerTestSuite(t *testing.T) {
	suite.Run(t, new(TaskHandlerTestSuite))
}
