package http

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/chalayga/meetsync-server/internal/config"
	"github.com/chalayga/meetsync-server/internal/core"
	"github.com/chalayga/meetsync-server/internal/log"
	"github.com/chalayga/meetsync-server/internal/service/rooms"
	"github.com/chalayga/meetsync-server/internal/store/memory"
)

type testServer struct {
	srv    *httptest.Server
	store  *memory.Store
	rooms  *rooms.Service
	broker *core.Broker
	cfg    *config.Config
}

func newTestServer(t *testing.T, jwtSecret string) *testServer {
	t.Helper()

	logger := log.Nop()
	st := memory.New()
	broker := core.NewBroker(logger)
	recon := core.NewReconciler(st, broker, logger)
	resolver := core.NewResolver(st)
	roomsSvc := rooms.New(st, recon, logger)

	cfg := config.Default()
	cfg.JWTSecret = jwtSecret

	server := NewServer(Deps{
		Rooms:      roomsSvc,
		Resolver:   resolver,
		Reconciler: recon,
		Store:      st,
		Channel:    broker,
	}, &cfg, logger)

	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)

	return &testServer{srv: ts, store: st, rooms: roomsSvc, broker: broker, cfg: &cfg}
}

func (ts *testServer) url(path string) string {
	return ts.srv.URL + path
}

func jsonBody(t *testing.T, v any) *bytes.Reader {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	return bytes.NewReader(data)
}

func decodeData[T any](t *testing.T, body []byte) T {
	t.Helper()
	var wrapper struct {
		Data T `json:"data"`
	}
	if err := json.Unmarshal(body, &wrapper); err != nil {
		t.Fatalf("decode response %s: %v", body, err)
	}
	return wrapper.Data
}
