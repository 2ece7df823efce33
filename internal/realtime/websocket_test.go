package realtime

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/suite"
	"github.com/yukikurage/priority-matrix/internal/dto"
	apierrors "github.com/yukikurage/priority-matrix/internal/errors"
	"github.com/yukikurage/priority-matrix/internal/repository"
	"github.com/yukikurage/priority-matrix/internal/services"
	"github.com/yukikurage/priority-matrix/internal/testutil"
	"go.uber.org/zap"
)

type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// WebsocketTestSuite drives the hub and dispatcher over real connections
type WebsocketTestSuite struct {
	suite.Suite
	server *httptest.Server
	hub    *Hub
	conns  []*websocket.Conn
}

func (suite *WebsocketTestSuite) SetupTest() {
	db := testutil.NewDB(suite.T())
	log := zap.NewNop()

	taskRepo := repository.NewTaskRepository(db)
	relRepo := repository.NewRelationshipRepository(db)
	visibility := services.NewVisibilityService(taskRepo, relRepo)
	suite.hub = NewHub(visibility, 5*time.Second, log)

	hierarchy := services.NewHierarchyService(taskRepo, relRepo, suite.hub, log)
	tasks := services.NewTaskService(taskRepo, hierarchy, visibility, suite.hub, log)
	timers := services.NewTimerService(taskRepo, suite.hub, log)
	imports := services.NewImportService(taskRepo, hierarchy, nil, suite.hub, log)
	dispatcher := NewDispatcher(suite.hub, tasks, timers, hierarchy, imports, 5*time.Second, log)

	upgrader := websocket.Upgrader{}
	suite.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		suite.hub.Serve(NewClient(conn, r.URL.Query().Get("user")), dispatcher.Handle)
	}))
	suite.conns = nil
}

func (suite *WebsocketTestSuite) TearDownTest() {
	for _, conn := range suite.conns {
		conn.Close()
	}
	suite.server.Close()
}

// connect dials as user and consumes the initial snapshot
func (suite *WebsocketTestSuite) connect(user string) (*websocket.Conn, []dto.TaskDTO) {
	url := "ws" + strings.TrimPrefix(suite.server.URL, "http") + "/?user=" + user
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	suite.Require().NoError(err)
	suite.conns = append(suite.conns, conn)

	f := suite.read(conn)
	suite.Require().Equal(EventInitialData, f.Event)
	return conn, suite.tasks(f)
}

func (suite *WebsocketTestSuite) send(conn *websocket.Conn, event string, data any) {
	suite.Require().NoError(conn.WriteJSON(Envelope{Event: event, Data: data}))
}

func (suite *WebsocketTestSuite) read(conn *websocket.Conn) frame {
	suite.Require().NoError(conn.SetReadDeadline(time.Now().Add(5 * time.Second)))
	var f frame
	suite.Require().NoError(conn.ReadJSON(&f))
	return f
}

func (suite *WebsocketTestSuite) tasks(f frame) []dto.TaskDTO {
	var tasks []dto.TaskDTO
	suite.Require().NoError(json.Unmarshal(f.Data, &tasks))
	return tasks
}

func (suite *WebsocketTestSuite) errorOf(f frame) ErrorPayload {
	var p ErrorPayload
	suite.Require().NoError(json.Unmarshal(f.Data, &p))
	return p
}

func (suite *WebsocketTestSuite) TestConnectSendsEmptySnapshot() {
	_, tasks := suite.connect("")
	suite.Empty(tasks)
}

func (suite *WebsocketTestSuite) TestSharedTaskReachesEveryone() {
	anon, _ := suite.connect("")
	alice, _ := suite.connect("alice")

	suite.send(anon, "addTask", map[string]any{"name": "Shared", "importance": 8})

	f := suite.read(anon)
	suite.Equal(EventUpdateTasks, f.Event)
	suite.Len(suite.tasks(f), 1)

	f = suite.read(anon)
	suite.Equal(EventTaskAdded, f.Event)

	f = suite.read(alice)
	suite.Equal(EventUpdateTasks, f.Event)
	tasks := suite.tasks(f)
	suite.Require().Len(tasks, 1)
	suite.Equal("Shared", tasks[0].Name)
	suite.Equal(8, tasks[0].Importance)
	suite.Equal(5, tasks[0].Urgency)
}

func (suite *WebsocketTestSuite) TestOwnedTaskStaysPrivate() {
	alice, _ := suite.connect("alice")
	bob, _ := suite.connect("bob")

	suite.send(alice, "addTask", map[string]any{"name": "Private"})
	suite.Equal(EventUpdateTasks, suite.read(alice).Event)
	suite.Equal(EventTaskAdded, suite.read(alice).Event)

	// Anything pushed to bob by alice's write would arrive before this reply.
	suite.send(bob, "updateTasks", nil)
	f := suite.read(bob)
	suite.Equal(EventUpdateTasks, f.Event)
	suite.Empty(suite.tasks(f))
}

func (suite *WebsocketTestSuite) TestTimerRoundTrip() {
	conn, _ := suite.connect("alice")

	suite.send(conn, "addTask", map[string]any{"name": "Focus"})
	suite.read(conn)
	added := suite.read(conn)
	var task dto.TaskDTO
	suite.Require().NoError(json.Unmarshal(added.Data, &task))

	suite.send(conn, "stopTimer", task.ID)
	f := suite.read(conn)
	suite.Equal(EventTimerError, f.Event)
	suite.Equal(apierrors.ErrCodeNoActiveTimer, suite.errorOf(f).Code)

	suite.send(conn, "startTimer", map[string]any{"taskId": task.ID})
	suite.Equal(EventUpdateTasks, suite.read(conn).Event)
	suite.Equal(EventTimerStarted, suite.read(conn).Event)

	suite.send(conn, "stopTimer", task.ID)
	suite.Equal(EventUpdateTasks, suite.read(conn).Event)
	suite.Equal(EventTimerStopped, suite.read(conn).Event)

	suite.send(conn, "getTimeLogs", task.ID)
	f = suite.read(conn)
	suite.Equal(EventTimeLogs, f.Event)
	var logs struct {
		TaskID uint64           `json:"taskId"`
		Logs   []dto.TimeLogDTO `json:"logs"`
	}
	suite.Require().NoError(json.Unmarshal(f.Data, &logs))
	suite.Equal(task.ID, logs.TaskID)
	suite.Len(logs.Logs, 1)
}

func (suite *WebsocketTestSuite) TestSetParentCycleIsReported() {
	conn, _ := suite.connect("")

	suite.send(conn, "addTask", map[string]any{"name": "Loop"})
	suite.read(conn)
	added := suite.read(conn)
	var task dto.TaskDTO
	suite.Require().NoError(json.Unmarshal(added.Data, &task))

	suite.send(conn, "setTaskParent", map[string]any{"taskId": task.ID, "parentId": task.ID})
	f := suite.read(conn)
	suite.Equal(EventSetTaskParentError, f.Event)
	suite.Equal(apierrors.ErrCodeHierarchyCycle, suite.errorOf(f).Code)
}

func (suite *WebsocketTestSuite) TestBadFramesGetErrors() {
	conn, _ := suite.connect("")

	suite.Require().NoError(conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	f := suite.read(conn)
	suite.Equal(EventError, f.Event)
	suite.Equal(apierrors.ErrCodeInvalidInput, suite.errorOf(f).Code)

	suite.send(conn, "launchRockets", nil)
	f = suite.read(conn)
	suite.Equal(EventError, f.Event)
	suite.Equal("launchRockets", suite.errorOf(f).Event)

	suite.send(conn, "addTask", map[string]any{"importance": 3})
	f = suite.read(conn)
	suite.Equal(EventError, f.Event)
	suite.Equal(apierrors.ErrCodeMissingField, suite.errorOf(f).Code)
}

func (suite *WebsocketTestSuite) TestImportBatch() {
	conn, _ := suite.connect("alice")

	suite.send(conn, "importBatch", map[string]any{"tasks": []map[string]any{
		{"id": "p", "name": "Parent"},
		{"id": "c", "name": "Child", "parent_id": "p"},
	}})

	f := suite.read(conn)
	suite.Equal(EventUpdateTasks, f.Event)
	suite.Len(suite.tasks(f), 2)

	f = suite.read(conn)
	suite.Equal(EventImportCompleted, f.Event)
	var result dto.ImportResult
	suite.Require().NoError(json.Unmarshal(f.Data, &result))
	suite.Equal(2, result.Imported)
}

func TestWebsocketTestSuite(t *testing.T) {
	suite.Run(t, new(WebsocketTestSuite))
}
