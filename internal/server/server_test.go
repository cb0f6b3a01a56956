package server

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guy-hartstein/syncforge/internal/gateway"
	"github.com/guy-hartstein/syncforge/internal/gh"
	"github.com/guy-hartstein/syncforge/internal/model"
	"github.com/guy-hartstein/syncforge/internal/orchestrator"
	"github.com/guy-hartstein/syncforge/internal/storage"
	"github.com/guy-hartstein/syncforge/internal/wizard"
)

// fakeStore is an in-memory Store for handler tests.
type fakeStore struct {
	mu             sync.Mutex
	integrations   map[uuid.UUID]model.Integration
	changeRequests map[uuid.UUID]model.ChangeRequest
	runs           map[uuid.UUID]model.Run
	settings       model.Settings
	pingErr        error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		integrations:   map[uuid.UUID]model.Integration{},
		changeRequests: map[uuid.UUID]model.ChangeRequest{},
		runs:           map[uuid.UUID]model.Run{},
	}
}

func (s *fakeStore) CreateIntegration(_ context.Context, req model.CreateIntegrationRequest) (model.Integration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	in := model.Integration{
		ID:           uuid.New(),
		Name:         req.Name,
		RepoLinks:    req.RepoLinks,
		Instructions: req.Instructions,
		Public:       req.Public,
		AutoCreatePR: req.AutoCreatePR,
		CreatedAt:    time.Now(),
	}
	s.integrations[in.ID] = in
	return in, nil
}

func (s *fakeStore) GetIntegration(_ context.Context, id uuid.UUID) (model.Integration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	in, ok := s.integrations[id]
	if !ok {
		return model.Integration{}, storage.ErrNotFound
	}
	return in, nil
}

func (s *fakeStore) ListIntegrations(_ context.Context) ([]model.Integration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Integration
	for _, in := range s.integrations {
		out = append(out, in)
	}
	return out, nil
}

func (s *fakeStore) UpdateIntegration(_ context.Context, id uuid.UUID, req model.UpdateIntegrationRequest) (model.Integration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	in, ok := s.integrations[id]
	if !ok {
		return model.Integration{}, storage.ErrNotFound
	}
	if req.Name != nil {
		in.Name = *req.Name
	}
	if req.RepoLinks != nil {
		in.RepoLinks = *req.RepoLinks
	}
	if req.Instructions != nil {
		in.Instructions = *req.Instructions
	}
	if req.Public != nil {
		in.Public = *req.Public
	}
	if req.AutoCreatePR != nil {
		in.AutoCreatePR = *req.AutoCreatePR
	}
	s.integrations[id] = in
	return in, nil
}

func (s *fakeStore) DeleteIntegration(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.integrations[id]; !ok {
		return storage.ErrNotFound
	}
	delete(s.integrations, id)
	return nil
}

func (s *fakeStore) AddMemory(_ context.Context, integrationID uuid.UUID, content string) (model.Memory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	in, ok := s.integrations[integrationID]
	if !ok {
		return model.Memory{}, storage.ErrNotFound
	}
	m := model.Memory{ID: uuid.New(), Content: content, CreatedAt: time.Now()}
	in.Memories = append(in.Memories, m)
	s.integrations[integrationID] = in
	return m, nil
}

func (s *fakeStore) DeleteMemory(_ context.Context, integrationID, memoryID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	in, ok := s.integrations[integrationID]
	if !ok {
		return storage.ErrNotFound
	}
	for i, m := range in.Memories {
		if m.ID == memoryID {
			in.Memories = append(in.Memories[:i], in.Memories[i+1:]...)
			s.integrations[integrationID] = in
			return nil
		}
	}
	return storage.ErrNotFound
}

func (s *fakeStore) CreateChangeRequest(_ context.Context, cr model.ChangeRequest) (model.ChangeRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cr.ID = uuid.New()
	cr.CreatedAt = time.Now()
	s.changeRequests[cr.ID] = cr
	return cr, nil
}

func (s *fakeStore) GetChangeRequest(_ context.Context, id uuid.UUID) (model.ChangeRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cr, ok := s.changeRequests[id]
	if !ok {
		return model.ChangeRequest{}, storage.ErrNotFound
	}
	return cr, nil
}

func (s *fakeStore) ListChangeRequests(_ context.Context) ([]model.ChangeRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.ChangeRequest
	for _, cr := range s.changeRequests {
		out = append(out, cr)
	}
	return out, nil
}

func (s *fakeStore) DeleteChangeRequest(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.changeRequests[id]; !ok {
		return storage.ErrNotFound
	}
	delete(s.changeRequests, id)
	return nil
}

func (s *fakeStore) CreateRun(_ context.Context, run model.Run) (model.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run.ID = uuid.New()
	if run.Status == "" {
		run.Status = model.RunStatusPending
	}
	s.runs[run.ID] = run
	return run, nil
}

func (s *fakeStore) GetRun(_ context.Context, id uuid.UUID) (model.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return model.Run{}, storage.ErrNotFound
	}
	return run, nil
}

func (s *fakeStore) ListRuns(_ context.Context, changeRequestID uuid.UUID) ([]model.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Run
	for _, run := range s.runs {
		if run.ChangeRequestID == changeRequestID {
			out = append(out, run)
		}
	}
	return out, nil
}

func (s *fakeStore) SaveRun(_ context.Context, run model.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[run.ID]; !ok {
		return storage.ErrNotFound
	}
	s.runs[run.ID] = run
	return nil
}

func (s *fakeStore) GetSettings(_ context.Context) (model.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings, nil
}

func (s *fakeStore) UpdateSettings(_ context.Context, req model.UpdateSettingsRequest) (model.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if req.GatewayAPIKey != nil {
		s.settings.GatewayAPIKey = *req.GatewayAPIKey
	}
	if req.WebhookSecret != nil {
		s.settings.WebhookSecret = *req.WebhookSecret
	}
	if req.GitHubToken != nil {
		s.settings.GitHubToken = *req.GitHubToken
	}
	return s.settings, nil
}

func (s *fakeStore) Ping(context.Context) error { return s.pingErr }

// fakeCoordinator records calls and returns scripted results.
type fakeCoordinator struct {
	mu       sync.Mutex
	started  []uuid.UUID
	synced   []uuid.UUID
	webhooks []gateway.WebhookPayload
	err      error
}

func (f *fakeCoordinator) StartAllAgents(_ context.Context, id uuid.UUID) (orchestrator.StartResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return orchestrator.StartResult{}, f.err
	}
	f.started = append(f.started, id)
	return orchestrator.StartResult{Started: 2}, nil
}

func (f *fakeCoordinator) SyncAllAgents(_ context.Context, id uuid.UUID) (orchestrator.SyncResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return orchestrator.SyncResult{}, f.err
	}
	f.synced = append(f.synced, id)
	return orchestrator.SyncResult{Synced: 2}, nil
}

func (f *fakeCoordinator) HandleWebhook(_ context.Context, payload gateway.WebhookPayload) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	f.webhooks = append(f.webhooks, payload)
	return true, nil
}

func (f *fakeCoordinator) SendFollowup(_ context.Context, id uuid.UUID, text string) (model.Run, error) {
	if f.err != nil {
		return model.Run{}, f.err
	}
	return model.Run{ID: id, Status: model.RunStatusInProgress}, nil
}

func (f *fakeCoordinator) StopAgent(_ context.Context, id uuid.UUID) (model.Run, error) {
	if f.err != nil {
		return model.Run{}, f.err
	}
	return model.Run{ID: id, Status: model.RunStatusCancelled}, nil
}

func (f *fakeCoordinator) CheckPRStatus(_ context.Context, id uuid.UUID) (model.Run, error) {
	if f.err != nil {
		return model.Run{}, f.err
	}
	return model.Run{ID: id, Status: model.RunStatusComplete, PRMerged: true}, nil
}

func (f *fakeCoordinator) Conversation(_ context.Context, id uuid.UUID) ([]model.Message, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []model.Message{{Role: model.RoleAgent, Text: "working"}}, nil
}

// fakeCodeHost serves scripted repos and PR diffs.
type fakeCodeHost struct {
	repos []gh.Repo
	diffs map[string]string
}

func (f *fakeCodeHost) ListRepos(context.Context) ([]gh.Repo, error) { return f.repos, nil }

func (f *fakeCodeHost) PullRequestDiff(_ context.Context, prURL string) (string, error) {
	diff, ok := f.diffs[prURL]
	if !ok {
		return "", errors.New("pull request not found")
	}
	return diff, nil
}

type testEnv struct {
	store       *fakeStore
	coordinator *fakeCoordinator
	sessions    *wizard.SessionStore
	srv         *Server
}

func newTestEnv(t *testing.T, opts ...func(*HandlersDeps)) *testEnv {
	t.Helper()
	store := newFakeStore()
	coordinator := &fakeCoordinator{}
	sessions := wizard.NewSessionStore()
	t.Cleanup(sessions.Stop)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	deps := HandlersDeps{
		Store:       store,
		Coordinator: coordinator,
		WizardSvc:   wizard.New("", logger),
		Sessions:    sessions,
		Logger:      logger,
		Version:     "test",
	}
	for _, opt := range opts {
		opt(&deps)
	}

	srv := New(Config{Handlers: deps, Port: 0})
	return &testEnv{store: store, coordinator: coordinator, sessions: sessions, srv: srv}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rdr)
	rec := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeData[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var envelope struct {
		Data T `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	return envelope.Data
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var envelope model.APIError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	return envelope.Error.Code
}

func TestHealth(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	e.store.pingErr = errors.New("db down")
	rec = e.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestIntegrationLifecycle(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodPost, "/v1/integrations", model.CreateIntegrationRequest{
		Name:      "payments",
		RepoLinks: []string{"https://github.com/acme/payments"},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decodeData[model.Integration](t, rec)
	assert.Equal(t, "payments", created.Name)

	rec = e.do(t, http.MethodGet, "/v1/integrations", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeData[[]model.Integration](t, rec), 1)

	rec = e.do(t, http.MethodPut, "/v1/integrations/"+created.ID.String(),
		map[string]any{"instructions": "run make test"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "run make test", decodeData[model.Integration](t, rec).Instructions)

	rec = e.do(t, http.MethodPost, "/v1/integrations/"+created.ID.String()+"/memories",
		map[string]string{"content": "CI is picky about imports"})
	require.Equal(t, http.StatusCreated, rec.Code)
	mem := decodeData[model.Memory](t, rec)

	rec = e.do(t, http.MethodDelete,
		"/v1/integrations/"+created.ID.String()+"/memories/"+mem.ID.String(), nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = e.do(t, http.MethodDelete, "/v1/integrations/"+created.ID.String(), nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = e.do(t, http.MethodGet, "/v1/integrations/"+created.ID.String(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateIntegrationValidation(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodPost, "/v1/integrations", model.CreateIntegrationRequest{Name: ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, model.ErrCodeInvalidInput, errorCode(t, rec))

	rec = e.do(t, http.MethodPost, "/v1/integrations", model.CreateIntegrationRequest{
		Name: "x", RepoLinks: []string{"ftp://nope"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateChangeRequestSeedsRuns(t *testing.T) {
	e := newTestEnv(t)

	withRepo, err := e.store.CreateIntegration(context.Background(), model.CreateIntegrationRequest{
		Name: "payments", RepoLinks: []string{"https://github.com/acme/payments"},
	})
	require.NoError(t, err)
	noRepo, err := e.store.CreateIntegration(context.Background(), model.CreateIntegrationRequest{
		Name: "docs",
	})
	require.NoError(t, err)

	rec := e.do(t, http.MethodPost, "/v1/change-requests", model.CreateChangeRequestRequest{
		Title:               "add healthz",
		ImplementationGuide: "Add a /healthz endpoint.",
		IntegrationConfigs:  map[uuid.UUID]string{withRepo.ID: "skip the proto dir"},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	detail := decodeData[ChangeRequestDetail](t, rec)
	require.Len(t, detail.Runs, 2)

	byIntegration := map[uuid.UUID]model.Run{}
	for _, run := range detail.Runs {
		byIntegration[run.IntegrationID] = run
	}
	assert.Equal(t, model.RunStatusPending, byIntegration[withRepo.ID].Status)
	assert.Equal(t, "skip the proto dir", byIntegration[withRepo.ID].CustomInstructions)
	assert.Equal(t, model.RunStatusSkipped, byIntegration[noRepo.ID].Status)

	rec = e.do(t, http.MethodGet, "/v1/change-requests/"+detail.ID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeData[ChangeRequestDetail](t, rec).Runs, 2)
}

func TestCreateChangeRequestValidation(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodPost, "/v1/change-requests", model.CreateChangeRequestRequest{
		ImplementationGuide: "guide",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(t, http.MethodPost, "/v1/change-requests", model.CreateChangeRequestRequest{
		Title: "no guide",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// No integrations at all.
	rec = e.do(t, http.MethodPost, "/v1/change-requests", model.CreateChangeRequestRequest{
		Title: "t", ImplementationGuide: "g",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStartAndSyncRoutes(t *testing.T) {
	e := newTestEnv(t)
	id := uuid.New()

	rec := e.do(t, http.MethodPost, "/v1/change-requests/"+id.String()+"/start-agents", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []uuid.UUID{id}, e.coordinator.started)

	rec = e.do(t, http.MethodPost, "/v1/change-requests/"+id.String()+"/sync", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []uuid.UUID{id}, e.coordinator.synced)
}

func TestStartAgentsNotConfigured(t *testing.T) {
	e := newTestEnv(t)
	e.coordinator.err = orchestrator.ErrNotConfigured

	rec := e.do(t, http.MethodPost, "/v1/change-requests/"+uuid.NewString()+"/start-agents", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, model.ErrCodeNotConfigured, errorCode(t, rec))
}

func signBody(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func TestWebhookSignatureEnforcement(t *testing.T) {
	e := newTestEnv(t)
	e.store.settings.WebhookSecret = "topsecret"
	body := []byte(`{"event":"statusChange","id":"agent-1","status":"FINISHED"}`)

	// Missing signature.
	req := httptest.NewRequest(http.MethodPost, "/v1/webhooks/agent", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, e.coordinator.webhooks)

	// Tampered signature.
	req = httptest.NewRequest(http.MethodPost, "/v1/webhooks/agent", bytes.NewReader(body))
	req.Header.Set(gateway.SignatureHeader, signBody("wrong", body))
	rec = httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Valid signature.
	req = httptest.NewRequest(http.MethodPost, "/v1/webhooks/agent", bytes.NewReader(body))
	req.Header.Set(gateway.SignatureHeader, signBody("topsecret", body))
	rec = httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, e.coordinator.webhooks, 1)
	assert.Equal(t, "agent-1", e.coordinator.webhooks[0].ID)
}

func TestWebhookWithoutSecretSkipsVerification(t *testing.T) {
	e := newTestEnv(t)
	body := []byte(`{"event":"statusChange","id":"agent-2","status":"FINISHED"}`)

	req := httptest.NewRequest(http.MethodPost, "/v1/webhooks/agent", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, e.coordinator.webhooks, 1)
}

func TestRunRoutes(t *testing.T) {
	e := newTestEnv(t)
	run, err := e.store.CreateRun(context.Background(), model.Run{Status: model.RunStatusNeedsReview})
	require.NoError(t, err)

	rec := e.do(t, http.MethodPost, "/v1/runs/"+run.ID.String()+"/followup",
		model.FollowupRequest{Text: "use the release branch"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, model.RunStatusInProgress, decodeData[model.Run](t, rec).Status)

	rec = e.do(t, http.MethodPost, "/v1/runs/"+run.ID.String()+"/followup", model.FollowupRequest{Text: "  "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(t, http.MethodPost, "/v1/runs/"+run.ID.String()+"/stop", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, model.RunStatusCancelled, decodeData[model.Run](t, rec).Status)

	rec = e.do(t, http.MethodPost, "/v1/runs/"+run.ID.String()+"/pr-status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeData[model.Run](t, rec).PRMerged)

	rec = e.do(t, http.MethodGet, "/v1/runs/"+run.ID.String()+"/conversation", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	conv := decodeData[model.ConversationResponse](t, rec)
	require.Len(t, conv.Messages, 1)
	assert.Equal(t, model.RunStatusNeedsReview, conv.Status)

	off := false
	rec = e.do(t, http.MethodPatch, "/v1/runs/"+run.ID.String()+"/settings",
		model.RunSettingsRequest{AutoCreatePR: &off})
	require.Equal(t, http.StatusOK, rec.Code)
	patched := decodeData[model.Run](t, rec)
	require.NotNil(t, patched.AutoCreatePR)
	assert.False(t, *patched.AutoCreatePR)
}

func TestSettingsMaskedRoundTrip(t *testing.T) {
	e := newTestEnv(t)

	key := "secret-key"
	rec := e.do(t, http.MethodPut, "/v1/settings", model.UpdateSettingsRequest{GatewayAPIKey: &key})
	require.Equal(t, http.StatusOK, rec.Code)
	masked := decodeData[model.SettingsResponse](t, rec)
	assert.True(t, masked.HasGatewayAPIKey)
	assert.False(t, masked.HasGitHubToken)
	assert.NotContains(t, rec.Body.String(), "secret-key")

	rec = e.do(t, http.MethodGet, "/v1/settings", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "secret-key")
}

func TestTestConnectionRequiresKey(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(t, http.MethodPost, "/v1/settings/test-connection", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, model.ErrCodeNotConfigured, errorCode(t, rec))
}

func TestCreateChangeRequestResolvesPRAttachments(t *testing.T) {
	host := &fakeCodeHost{diffs: map[string]string{
		"https://github.com/acme/api/pull/3": "diff --git a/main.go b/main.go",
	}}
	e := newTestEnv(t, func(d *HandlersDeps) {
		d.CodeHost = func(string) CodeHost { return host }
	})
	_, err := e.store.CreateIntegration(context.Background(), model.CreateIntegrationRequest{
		Name: "api", RepoLinks: []string{"https://github.com/acme/api"},
	})
	require.NoError(t, err)

	rec := e.do(t, http.MethodPost, "/v1/change-requests", model.CreateChangeRequestRequest{
		Title:               "mirror an earlier fix",
		ImplementationGuide: "Apply the same change as the attached PR.",
		Attachments: []model.Attachment{
			{Type: model.AttachmentPR, Name: "earlier fix", URL: "https://github.com/acme/api/pull/3"},
			{Type: model.AttachmentPR, Name: "missing", URL: "https://github.com/acme/api/pull/404"},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	detail := decodeData[ChangeRequestDetail](t, rec)
	require.Len(t, detail.Attachments, 2)
	assert.Equal(t, "diff --git a/main.go b/main.go", detail.Attachments[0].Content)
	assert.NotEqual(t, uuid.Nil, detail.Attachments[0].ID)
	// Unresolvable attachments survive as bare links.
	assert.Empty(t, detail.Attachments[1].Content)
}

func TestListGitHubRepos(t *testing.T) {
	host := &fakeCodeHost{repos: []gh.Repo{{FullName: "acme/api", HTMLURL: "https://github.com/acme/api"}}}
	e := newTestEnv(t, func(d *HandlersDeps) {
		d.CodeHost = func(string) CodeHost { return host }
	})
	e.store.settings.GitHubToken = "ghp_test"

	rec := e.do(t, http.MethodGet, "/v1/github/repos", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	repos := decodeData[[]gh.Repo](t, rec)
	require.Len(t, repos, 1)
	assert.Equal(t, "acme/api", repos[0].FullName)
}

func TestGitHubReposRequiresToken(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(t, http.MethodGet, "/v1/github/repos", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, model.ErrCodeNotConfigured, errorCode(t, rec))
}

func TestWizardFlow(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodPost, "/v1/wizard/sessions", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	sess := decodeData[wizard.Session](t, rec)

	base := "/v1/wizard/sessions/" + sess.ID.String()
	rec = e.do(t, http.MethodPost, base+"/messages", map[string]string{"text": "add healthz everywhere"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = e.do(t, http.MethodPost, base+"/messages", map[string]string{"text": "all Go services, verify with curl"})
	require.Equal(t, http.StatusOK, rec.Code)
	reply := decodeData[map[string]any](t, rec)
	assert.Equal(t, true, reply["ready_to_proceed"])

	rec = e.do(t, http.MethodPost, base+"/draft", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	draft := decodeData[wizard.Draft](t, rec)
	assert.NotEmpty(t, draft.ImplementationGuide)

	rec = e.do(t, http.MethodDelete, base, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = e.do(t, http.MethodGet, base, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWizardUnknownSession(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(t, http.MethodPost, "/v1/wizard/sessions/"+uuid.NewString()+"/messages",
		map[string]string{"text": "hi"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestInvalidUUIDPath(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(t, http.MethodGet, "/v1/integrations/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, model.ErrCodeInvalidInput, errorCode(t, rec))
}
