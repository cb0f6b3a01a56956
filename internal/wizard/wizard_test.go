package wizard

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guy-hartstein/syncforge/internal/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSessionStoreLifecycle(t *testing.T) {
	store := NewSessionStore()
	defer store.Stop()

	sess := store.Create()
	require.NotNil(t, sess)
	assert.NotEqual(t, uuid.Nil, sess.ID)

	got := store.Get(sess.ID)
	require.NotNil(t, got)
	assert.Equal(t, sess.ID, got.ID)

	got.Messages = append(got.Messages, model.Message{Role: model.RoleUser, Text: "hi"})
	store.Save(got)
	assert.Len(t, store.Get(sess.ID).Messages, 1)

	store.Delete(sess.ID)
	assert.Nil(t, store.Get(sess.ID))
	assert.Nil(t, store.Get(uuid.New()))
}

func TestScriptedChatFlow(t *testing.T) {
	store := NewSessionStore()
	defer store.Stop()
	svc := New("", testLogger()) // no key selects the scripted flow
	sess := store.Create()

	reply, err := svc.Chat(context.Background(), sess, "Add a /healthz endpoint everywhere")
	require.NoError(t, err)
	assert.Contains(t, reply, "?")
	assert.False(t, sess.ReadyToProceed)
	assert.Len(t, sess.Messages, 2)

	reply, err = svc.Chat(context.Background(), sess, "All Go services; curl the endpoint to verify.")
	require.NoError(t, err)
	assert.Contains(t, reply, "enough information to proceed")
	assert.True(t, sess.ReadyToProceed)
	assert.Len(t, sess.Messages, 4)
}

func TestScriptedDraft(t *testing.T) {
	svc := New("", testLogger())
	sess := &Session{Messages: []model.Message{
		{Role: model.RoleUser, Text: "Add a /healthz endpoint everywhere"},
	}}

	d, err := svc.Draft(context.Background(), sess)
	require.NoError(t, err)
	assert.Equal(t, "Add a /healthz endpoint everywhere", d.Title)
	assert.Contains(t, d.ImplementationGuide, "/healthz")
}

func TestChatRejectsEmptyMessage(t *testing.T) {
	svc := New("", testLogger())
	_, err := svc.Chat(context.Background(), &Session{}, "   ")
	assert.Error(t, err)
}

func completionServer(t *testing.T, content string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := json.Marshal(map[string]any{
			"id":     "chatcmpl-1",
			"object": "chat.completion",
			"choices": []map[string]any{{
				"index":   0,
				"message": map[string]any{"role": "assistant", "content": content},
			}},
		})
		require.NoError(t, err)
		w.Header().Set("Content-Type", "application/json")
		w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestChatDetectsReadyMarker(t *testing.T) {
	srv := completionServer(t, "I have enough information to proceed. Summary: add healthz.")
	svc := New("k", testLogger(), WithBaseURL("k", srv.URL))
	sess := &Session{}

	reply, err := svc.Chat(context.Background(), sess, "add healthz to all services, verify via curl")
	require.NoError(t, err)
	assert.Contains(t, reply, "enough information")
	assert.True(t, sess.ReadyToProceed)
}

func TestDraftParsesJSON(t *testing.T) {
	srv := completionServer(t, `{"title": "Add healthz endpoint", "description": "Adds a health check.", "implementation_guide": "1. Add handler.\n2. Wire route."}`)
	svc := New("k", testLogger(), WithBaseURL("k", srv.URL))

	d, err := svc.Draft(context.Background(), &Session{Messages: []model.Message{
		{Role: model.RoleUser, Text: "add healthz"},
	}})
	require.NoError(t, err)
	assert.Equal(t, "Add healthz endpoint", d.Title)
	assert.Contains(t, d.ImplementationGuide, "Wire route")
}

func TestDraftRejectsIncompleteJSON(t *testing.T) {
	srv := completionServer(t, `{"title": "", "implementation_guide": ""}`)
	svc := New("k", testLogger(), WithBaseURL("k", srv.URL))

	_, err := svc.Draft(context.Background(), &Session{})
	assert.Error(t, err)
}
