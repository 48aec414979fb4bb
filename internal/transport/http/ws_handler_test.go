package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"neuroaid-diagnostic-service/internal/app"
	"neuroaid-diagnostic-service/internal/domain"
	"neuroaid-diagnostic-service/internal/infra/memory"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var taskAnswers = []string{"blib", "yacht", "This sentence is scrambled.", "7 4 2"}

func TestWebSocketCompletesAndScores(t *testing.T) {
	server, scorer := newTestServer(t)

	conn := dialWS(t, server, "/ws")
	typ, payload := readNext(t, conn)
	require.Equal(t, "session", typ)
	var session sessionPayload
	require.NoError(t, json.Unmarshal(payload, &session))
	assert.Equal(t, domain.DefaultCatalogID, session.CatalogID)
	require.NotEmpty(t, session.SessionID)

	for i := 0; i < 11; i++ {
		sendAnswer(t, conn, "yes", 100)
	}
	for _, answer := range taskAnswers {
		sendAnswer(t, conn, answer, 250)
	}

	readUntil(t, conn, "submitting")
	payload = readUntil(t, conn, "result")
	var summary domain.ResultSummary
	require.NoError(t, json.Unmarshal(payload, &summary))
	assert.Equal(t, "High Risk", summary.RiskLevel)

	reqs := scorer.calls()
	require.Len(t, reqs, 1)
	assert.Equal(t, 11, reqs[0].ChecklistYesCount)
	assert.Equal(t, []int64{250, 250, 250, 250}, reqs[0].ReactionTimes)
	assert.Equal(t, 1, reqs[0].Scores[domain.CategoryAuditory])
}

func TestWebSocketScoringFailureIsRetryable(t *testing.T) {
	server, scorer := newTestServer(t)
	scorer.fail(1)

	conn := dialWS(t, server, "/ws")
	readUntil(t, conn, "session")
	for i := 0; i < 11; i++ {
		sendAnswer(t, conn, "no", 100)
	}
	for range taskAnswers {
		sendAnswer(t, conn, "", 100)
	}

	readUntil(t, conn, "submitting")
	payload := readUntil(t, conn, "error")
	var failure errorPayload
	require.NoError(t, json.Unmarshal(payload, &failure))
	assert.Equal(t, "scoring_failed", failure.Code)
	assert.True(t, failure.Retryable)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "retry"}))
	readUntil(t, conn, "submitting")
	readUntil(t, conn, "result")
	assert.Len(t, scorer.calls(), 2)
}

func TestWebSocketBackAtStartReportsError(t *testing.T) {
	server, _ := newTestServer(t)

	conn := dialWS(t, server, "/ws")
	readUntil(t, conn, "session")
	require.NoError(t, conn.WriteJSON(map[string]any{"type": "back"}))

	payload := readUntil(t, conn, "error")
	var failure errorPayload
	require.NoError(t, json.Unmarshal(payload, &failure))
	assert.Equal(t, "conflict", failure.Code)
}

func TestWebSocketResumesSession(t *testing.T) {
	server, _ := newTestServer(t)

	first := dialWS(t, server, "/ws")
	_, payload := readNext(t, first)
	var session sessionPayload
	require.NoError(t, json.Unmarshal(payload, &session))
	sendAnswer(t, first, "yes", 100)
	waitForPosition(t, first, 1)
	first.Close()

	second := dialWS(t, server, "/ws?sessionId="+session.SessionID)
	readUntil(t, second, "session")
	payload = readUntil(t, second, "item")
	var view domain.SessionView
	require.NoError(t, json.Unmarshal(payload, &view))
	assert.Equal(t, 1, view.Transition.Position)
	assert.Equal(t, 1, view.Transition.Completed)
}

func TestWebSocketClosesWhenSessionAbandoned(t *testing.T) {
	server, _ := newTestServer(t)

	conn := dialWS(t, server, "/ws")
	_, payload := readNext(t, conn)
	var session sessionPayload
	require.NoError(t, json.Unmarshal(payload, &session))
	readUntil(t, conn, "item")

	resp := doJSON(t, server, http.MethodDelete, "/api/sessions/"+session.SessionID, nil, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	var failure errorPayload
	require.NoError(t, json.Unmarshal(readUntil(t, conn, "error"), &failure))
	assert.Equal(t, "not_found", failure.Code)

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}

func TestWebSocketUnknownSession(t *testing.T) {
	server, _ := newTestServer(t)

	u := "ws" + server.URL[len("http"):] + "/ws?sessionId=missing"
	_, resp, err := websocket.DefaultDialer.Dial(u, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

type stubScorer struct {
	mu       sync.Mutex
	requests []domain.ScoreRequest
	failures int
}

func (s *stubScorer) Score(_ context.Context, req domain.ScoreRequest) (domain.ResultSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if s.failures > 0 {
		s.failures--
		return domain.ResultSummary{}, domain.ErrScoringFailed
	}
	return domain.ResultSummary{RiskLevel: "High Risk", DominantType: "Phonological", AvgTime: 0.25, Tips: "Practice phonics."}, nil
}

func (s *stubScorer) fail(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = n
}

func (s *stubScorer) calls() []domain.ScoreRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.ScoreRequest(nil), s.requests...)
}

func newTestServer(t *testing.T) (*httptest.Server, *stubScorer) {
	t.Helper()
	scorer := &stubScorer{}
	catalogs := memory.NewCatalogRepository(memory.NewDefaultCatalogLoader(), time.Minute)
	service := app.NewDiagnosticService(memory.NewSessionStore(), catalogs, scorer)
	server := httptest.NewServer(NewRouter(service, zap.NewNop(), nil))
	t.Cleanup(server.Close)
	return server, scorer
}

func dialWS(t *testing.T, server *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	u := "ws" + server.URL[len("http"):] + path
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func sendAnswer(t *testing.T, conn *websocket.Conn, value string, elapsedMs int64) {
	t.Helper()
	msg := map[string]any{
		"type":    "answer",
		"payload": map[string]any{"value": value, "elapsedMs": elapsedMs},
	}
	require.NoError(t, conn.WriteJSON(msg))
}

func readNext(t *testing.T, conn *websocket.Conn) (string, json.RawMessage) {
	t.Helper()
	var msg struct {
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	require.NoError(t, conn.ReadJSON(&msg))
	return msg.Type, msg.Payload
}

func waitForPosition(t *testing.T, conn *websocket.Conn, position int) {
	t.Helper()
	for i := 0; i < 64; i++ {
		var view domain.SessionView
		require.NoError(t, json.Unmarshal(readUntil(t, conn, "item"), &view))
		if view.Transition.Position == position {
			return
		}
	}
	t.Fatalf("session never reached position %d", position)
}

// readUntil skips interleaved item updates until a message of the wanted type arrives.
func readUntil(t *testing.T, conn *websocket.Conn, want string) json.RawMessage {
	t.Helper()
	for i := 0; i < 64; i++ {
		typ, payload := readNext(t, conn)
		if typ == want {
			return payload
		}
	}
	t.Fatalf("no %q message received", want)
	return nil
}
