package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/repaircall/internal/callengine/callenginetest"
	"github.com/vovakirdan/repaircall/internal/config"
	"github.com/vovakirdan/repaircall/internal/session"
)

type testEnv struct {
	router *gin.Engine
	coord  *session.Coordinator
	engine *callenginetest.Fake
	ctx    context.Context
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.ListenAddr = "127.0.0.1:0"
	cfg.ControlRateLimit = 0
	return &cfg
}

// newTestEnv runs a coordinator over a fake engine and builds the router
// around it. deps.Calls is filled in.
func newTestEnv(t *testing.T, cfg *config.Config, creator session.CallCreator, deps Deps) *testEnv {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	engine := callenginetest.NewFake()
	coord := session.New(session.Options{
		Engine:    engine,
		Creator:   creator,
		EngineURL: "wss://rtc.example.test",
		Clock:     clock.NewMock(),
	})
	go coord.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-coord.Done()
	})

	deps.Calls = coord
	logger := zerolog.Nop()
	return &testEnv{
		router: NewRouter(deps, cfg, nil, &logger),
		coord:  coord,
		engine: engine,
		ctx:    ctx,
	}
}

func (e *testEnv) do(t *testing.T, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Buffer
	if body != "" {
		reader = bytes.NewBufferString(body)
	} else {
		reader = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp := httptest.NewRecorder()
	e.router.ServeHTTP(resp, req)
	return resp
}

func decodeState(t *testing.T, resp *httptest.ResponseRecorder) CallStateResponse {
	t.Helper()

	if resp.Code != http.StatusOK && resp.Code != http.StatusCreated {
		t.Fatalf("unexpected status %d: %s", resp.Code, resp.Body.String())
	}
	var state CallStateResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &state); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	return state
}

func waitPhase(t *testing.T, coord *session.Coordinator, phase session.Phase) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if coord.Snapshot().Phase == phase {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("phase %s not reached, last %+v", phase, coord.Snapshot())
}

func testDescriptor(callID string) session.Descriptor {
	return session.Descriptor{
		CallID:        callID,
		Channel:       "room-" + callID,
		AuthToken:     "token-" + callID,
		LocalIdentity: 7,
		RemoteName:    "Sam the Plumber",
	}
}
