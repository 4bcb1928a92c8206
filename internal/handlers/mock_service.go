package handlers

import (
	"context"
	"net/http"

	"env_automation/internal/models"
	"env_automation/internal/repository"
	"env_automation/internal/service"

	"github.com/gin-gonic/gin"
)

// ---- Service Mocks ----

type mockAuth struct {
	signUpID      int
	signUpErr     error
	genTokenToken string
	genTokenErr   error
	parseID       int
	parseErr      error

	lastSignUpUsername string
	lastSignUpPassword string
	lastGenUsername    string
	lastGenPassword    string
	lastParseToken     string
}

func (m *mockAuth) SignUp(ctx context.Context, username, password string) (int, error) {
	m.lastSignUpUsername = username
	m.lastSignUpPassword = password
	return m.signUpID, m.signUpErr
}
func (m *mockAuth) GenerateToken(ctx context.Context, username, password string) (string, error) {
	m.lastGenUsername = username
	m.lastGenPassword = password
	return m.genTokenToken, m.genTokenErr
}
func (m *mockAuth) ParseToken(token string) (int, error) {
	m.lastParseToken = token
	return m.parseID, m.parseErr
}

// okAuth accepts any bearer token as user 1.
func okAuth() *mockAuth { return &mockAuth{parseID: 1} }

type mockPoller struct {
	status models.PollerStatus
}

func (m *mockPoller) Start(ctx context.Context) error { return nil }
func (m *mockPoller) Stop() error { return nil }
func (m *mockPoller) Status() models.PollerStatus { return m.status }
func (m *mockPoller) Reconcile(ctx context.Context) error { return nil }

type mockStats struct {
	summary models.Summary
	err     error
}

func (m *mockStats) Summary(ctx context.Context) (models.Summary, error) {
	return m.summary, m.err
}

type mockDevices struct {
	registered  models.Device
	registerErr error
	lastReq     service.DeviceRequest

	byID      map[int64]models.Device
	getErr    error
	removeErr error
	testErr   error

	list       []models.Device
	listErr    error
	lastFilter repository.DeviceFilter
}

func (m *mockDevices) Register(ctx context.Context, req service.DeviceRequest) (models.Device, error) {
	m.lastReq = req
	return m.registered, m.registerErr
}
func (m *mockDevices) Remove(ctx context.Context, id int64) error { return m.removeErr }
func (m *mockDevices) Get(ctx context.Context, id int64) (*models.Device, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	d, ok := m.byID[id]
	if !ok {
		return nil, nil
	}
	return &d, nil
}
func (m *mockDevices) List(ctx context.Context, f repository.DeviceFilter) ([]models.Device, error) {
	m.lastFilter = f
	return m.list, m.listErr
}
func (m *mockDevices) TestConnection(ctx context.Context, id int64) error { return m.testErr }

type mockHistory struct {
	resp       []models.Reading
	err        error
	lastFilter service.HistoryFilter
	calls      int
}

func (m *mockHistory) Readings(ctx context.Context, f service.HistoryFilter) ([]models.Reading, error) {
	m.calls++
	m.lastFilter = f
	return m.resp, m.err
}

type mockAlertAdmin struct {
	created    models.Alert
	createErr  error
	lastReq    service.AlertRequest
	events     []models.AlertEvent
	eventsErr  error
	lastFilter repository.AlertEventFilter
}

func (m *mockAlertAdmin) CreateAlert(ctx context.Context, req service.AlertRequest) (models.Alert, error) {
	m.lastReq = req
	return m.created, m.createErr
}
func (m *mockAlertAdmin) ListEvents(ctx context.Context, f repository.AlertEventFilter) ([]models.AlertEvent, error) {
	m.lastFilter = f
	return m.events, m.eventsErr
}

type mockAlerts struct {
	stats   models.EvaluationStats
	err     error
	ctxErrs []error
}

func (m *mockAlerts) EvaluateAll(ctx context.Context) (models.EvaluationStats, error) {
	m.ctxErrs = append(m.ctxErrs, ctx.Err())
	return m.stats, m.err
}
func (m *mockAlerts) EvaluateOne(ctx context.Context, a models.Alert) (models.EvaluationOutcome, error) {
	return models.EvaluationOutcome{}, m.err
}

type mockJobs struct {
	schedule    models.Schedule
	scheduleErr error
	lastSched   service.ScheduleRequest

	action    models.DeviceAction
	actionErr error
	lastAct   service.ManualActionRequest

	runStats      models.ScheduleRunStats
	dispatchStats models.DispatchStats
	err           error
	ctxErrs       []error
}

func (m *mockJobs) CreateSchedule(ctx context.Context, req service.ScheduleRequest) (models.Schedule, error) {
	m.lastSched = req
	return m.schedule, m.scheduleErr
}
func (m *mockJobs) CreateManualAction(ctx context.Context, req service.ManualActionRequest) (models.DeviceAction, error) {
	m.lastAct = req
	return m.action, m.actionErr
}
func (m *mockJobs) ProcessDueSchedules(ctx context.Context) (models.ScheduleRunStats, error) {
	m.ctxErrs = append(m.ctxErrs, ctx.Err())
	return m.runStats, m.err
}
func (m *mockJobs) DispatchPending(ctx context.Context) (models.DispatchStats, error) {
	m.ctxErrs = append(m.ctxErrs, ctx.Err())
	return m.dispatchStats, m.err
}
func (m *mockJobs) RunOnce(ctx context.Context) error { return m.err }

// ---- Shared Test Helpers ----

func newTestRouter(s *service.Service) *gin.Engine {
	h := NewHandler(s, nil)
	gin.SetMode(gin.TestMode)
	return h.InitRoutes()
}

func authHeader(token string) http.Header {
	h := http.Header{}
	if token != "" {
		h.Set("Authorization", "Bearer "+token)
	}
	return h
}
