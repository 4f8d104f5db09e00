package rest

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"lostfound.gg/internal/protocol"
	"lostfound.gg/internal/sim/world"
)

const testConfigJSON = `{
  "defaultDogSpeed": 1.0,
  "defaultBagCapacity": 3,
  "dogRetirementTime": 3.0,
  "lootGeneratorConfig": {"period": 5.0, "probability": 0.0},
  "maps": [
    {
      "id": "town",
      "name": "Town",
      "roads": [
        {"x0": 0, "y0": 0, "x1": 10},
        {"x0": 0, "y0": 0, "y1": 5}
      ],
      "offices": [{"id": "o1", "x": 3, "y": 0, "offsetX": 1, "offsetY": 1}],
      "lootTypes": [{"value": 10}, {"value": 30}]
    }
  ]
}`

type testEnv struct {
	srv    *httptest.Server
	cancel context.CancelFunc
	done   chan error
}

func newTestEnv(t *testing.T, store world.RecordStore) *testEnv {
	t.Helper()
	cfg, err := world.ParseGameConfig([]byte(testConfigJSON))
	if err != nil {
		t.Fatalf("ParseGameConfig: %v", err)
	}
	app := world.NewApplication(world.AppConfig{Game: cfg, Seed: 1, Records: store})
	logger := log.New(io.Discard, "", 0)
	loop := world.NewLoop(app, 0, logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()

	srv := httptest.NewServer(NewServer(loop, t.TempDir(), logger))
	env := &testEnv{srv: srv, cancel: cancel, done: done}
	t.Cleanup(func() {
		srv.Close()
		cancel()
		<-done
	})
	return env
}

func (e *testEnv) request(t *testing.T, method, path, token, body string) (*http.Response, []byte) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, rd)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := e.srv.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, data
}

func (e *testEnv) join(t *testing.T, name string) protocol.JoinResponse {
	t.Helper()
	resp, body := e.request(t, http.MethodPost, "/api/v1/game/join", "",
		`{"userName": "`+name+`", "mapId": "town"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("join status %d: %s", resp.StatusCode, body)
	}
	var jr protocol.JoinResponse
	if err := json.Unmarshal(body, &jr); err != nil {
		t.Fatalf("join response: %v", err)
	}
	return jr
}

func errorCode(t *testing.T, body []byte) string {
	t.Helper()
	var e struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(body, &e); err != nil {
		t.Fatalf("error body %q: %v", body, err)
	}
	return e.Code
}

func TestServer_JoinAndState(t *testing.T) {
	env := newTestEnv(t, nil)

	jr := env.join(t, "ada")
	if len(jr.AuthToken) != 32 {
		t.Fatalf("token %q has length %d, want 32", jr.AuthToken, len(jr.AuthToken))
	}
	if jr.PlayerID != 0 {
		t.Fatalf("first player id = %d", jr.PlayerID)
	}

	resp, body := env.request(t, http.MethodGet, "/api/v1/game/state", jr.AuthToken, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("state status %d: %s", resp.StatusCode, body)
	}
	if got := resp.Header.Get("Content-Type"); got != "application/json" {
		t.Fatalf("Content-Type = %q", got)
	}
	if got := resp.Header.Get("Cache-Control"); got != "no-cache" {
		t.Fatalf("Cache-Control = %q", got)
	}
	var st protocol.StateResponse
	if err := json.Unmarshal(body, &st); err != nil {
		t.Fatalf("state body: %v", err)
	}
	ps, ok := st.Players["0"]
	if !ok {
		t.Fatalf("state misses player 0: %s", body)
	}
	if ps.Pos != [2]float64{0, 0} || ps.Dir != "U" {
		t.Fatalf("fresh state = %+v", ps)
	}

	resp, body = env.request(t, http.MethodGet, "/api/v1/game/players", jr.AuthToken, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("players status %d", resp.StatusCode)
	}
	var names map[string]protocol.PlayerName
	if err := json.Unmarshal(body, &names); err != nil {
		t.Fatalf("players body: %v", err)
	}
	if len(names) != 1 || names["0"].Name != "ada" {
		t.Fatalf("players = %+v", names)
	}
}

func TestServer_JoinValidation(t *testing.T) {
	env := newTestEnv(t, nil)

	cases := []struct {
		name     string
		body     string
		wantCode string
		status   int
	}{
		{"empty name", `{"userName": "", "mapId": "town"}`, "invalidArgument", http.StatusBadRequest},
		{"missing map", `{"userName": "ada"}`, "invalidArgument", http.StatusBadRequest},
		{"broken json", `{"userName": "ada"`, "invalidArgument", http.StatusBadRequest},
		{"unknown map", `{"userName": "ada", "mapId": "atlantis"}`, "mapNotFound", http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, body := env.request(t, http.MethodPost, "/api/v1/game/join", "", tc.body)
			if resp.StatusCode != tc.status {
				t.Fatalf("status %d, want %d: %s", resp.StatusCode, tc.status, body)
			}
			if code := errorCode(t, body); code != tc.wantCode {
				t.Fatalf("code %q, want %q", code, tc.wantCode)
			}
		})
	}

	t.Run("wrong content type", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodPost, env.srv.URL+"/api/v1/game/join",
			strings.NewReader(`{"userName": "ada", "mapId": "town"}`))
		req.Header.Set("Content-Type", "text/plain")
		resp, err := env.srv.Client().Do(req)
		if err != nil {
			t.Fatalf("Do: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("status %d, want 400", resp.StatusCode)
		}
	})

	t.Run("wrong method", func(t *testing.T) {
		resp, body := env.request(t, http.MethodGet, "/api/v1/game/join", "", "")
		if resp.StatusCode != http.StatusMethodNotAllowed {
			t.Fatalf("status %d, want 405", resp.StatusCode)
		}
		if allow := resp.Header.Get("Allow"); allow != "POST" {
			t.Fatalf("Allow = %q", allow)
		}
		if code := errorCode(t, body); code != "invalidMethod" {
			t.Fatalf("code %q", code)
		}
	})
}

func TestServer_Authorization(t *testing.T) {
	env := newTestEnv(t, nil)
	env.join(t, "ada")

	cases := []struct {
		name     string
		header   string
		wantCode string
	}{
		{"no header", "", "invalidToken"},
		{"short token", "Bearer deadbeef", "invalidToken"},
		{"long token", "Bearer " + strings.Repeat("a", 33), "invalidToken"},
		{"uppercase hex", "Bearer " + strings.Repeat("A", 32), "invalidToken"},
		{"non hex", "Bearer " + strings.Repeat("z", 32), "invalidToken"},
		{"wrong scheme", "Basic " + strings.Repeat("a", 33), "invalidToken"},
		{"unknown token", "Bearer " + strings.Repeat("0", 32), "unknownToken"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req, _ := http.NewRequest(http.MethodGet, env.srv.URL+"/api/v1/game/state", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			resp, err := env.srv.Client().Do(req)
			if err != nil {
				t.Fatalf("Do: %v", err)
			}
			defer resp.Body.Close()
			body, _ := io.ReadAll(resp.Body)
			if resp.StatusCode != http.StatusUnauthorized {
				t.Fatalf("status %d, want 401: %s", resp.StatusCode, body)
			}
			if code := errorCode(t, body); code != tc.wantCode {
				t.Fatalf("code %q, want %q", code, tc.wantCode)
			}
		})
	}
}

func TestServer_ActionAndTick(t *testing.T) {
	env := newTestEnv(t, nil)
	jr := env.join(t, "ada")

	resp, body := env.request(t, http.MethodPost, "/api/v1/game/player/action",
		jr.AuthToken, `{"move": "R"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("action status %d: %s", resp.StatusCode, body)
	}

	resp, body = env.request(t, http.MethodPost, "/api/v1/game/player/action",
		jr.AuthToken, `{"move": "Q"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad move status %d: %s", resp.StatusCode, body)
	}

	resp, body = env.request(t, http.MethodPost, "/api/v1/game/tick", "",
		`{"timeDelta": 2000}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("tick status %d: %s", resp.StatusCode, body)
	}

	resp, body = env.request(t, http.MethodGet, "/api/v1/game/state", jr.AuthToken, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("state status %d", resp.StatusCode)
	}
	var st protocol.StateResponse
	if err := json.Unmarshal(body, &st); err != nil {
		t.Fatalf("state body: %v", err)
	}
	if pos := st.Players["0"].Pos; pos != [2]float64{2, 0} {
		t.Fatalf("pos after 2s moving right = %v, want [2 0]", pos)
	}

	resp, body = env.request(t, http.MethodPost, "/api/v1/game/tick", "",
		`{"timeDelta": 0}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("zero delta status %d: %s", resp.StatusCode, body)
	}
}

func TestServer_Maps(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, body := env.request(t, http.MethodGet, "/api/v1/maps", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("maps status %d", resp.StatusCode)
	}
	var maps []protocol.MapInfo
	if err := json.Unmarshal(body, &maps); err != nil {
		t.Fatalf("maps body: %v", err)
	}
	if len(maps) != 1 || maps[0].ID != "town" || maps[0].Name != "Town" {
		t.Fatalf("maps = %+v", maps)
	}

	resp, body = env.request(t, http.MethodGet, "/api/v1/maps/town", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("descriptor status %d", resp.StatusCode)
	}
	var desc struct {
		ID    string `json:"id"`
		Roads []any  `json:"roads"`
	}
	if err := json.Unmarshal(body, &desc); err != nil {
		t.Fatalf("descriptor body: %v", err)
	}
	if desc.ID != "town" || len(desc.Roads) != 2 {
		t.Fatalf("descriptor = %+v", desc)
	}

	resp, body = env.request(t, http.MethodGet, "/api/v1/maps/atlantis", "", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown map status %d", resp.StatusCode)
	}
	if code := errorCode(t, body); code != "mapNotFound" {
		t.Fatalf("code %q", code)
	}

	resp, _ = env.request(t, http.MethodHead, "/api/v1/maps", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("HEAD maps status %d", resp.StatusCode)
	}
}

func TestServer_UnknownAPITarget(t *testing.T) {
	env := newTestEnv(t, nil)
	resp, body := env.request(t, http.MethodGet, "/api/v1/teleport", "", "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status %d, want 400", resp.StatusCode)
	}
	if code := errorCode(t, body); code != "invalidApi" {
		t.Fatalf("code %q", code)
	}
}

func TestServer_TickDisabledWithAutomaticLoop(t *testing.T) {
	cfg, err := world.ParseGameConfig([]byte(testConfigJSON))
	if err != nil {
		t.Fatalf("ParseGameConfig: %v", err)
	}
	app := world.NewApplication(world.AppConfig{Game: cfg, Seed: 1})
	logger := log.New(io.Discard, "", 0)
	loop := world.NewLoop(app, time.Hour, logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()
	srv := httptest.NewServer(NewServer(loop, t.TempDir(), logger))
	defer func() {
		srv.Close()
		cancel()
		<-done
	}()

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/api/v1/game/tick",
		strings.NewReader(`{"timeDelta": 1000}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status %d, want 400: %s", resp.StatusCode, body)
	}
	if code := errorCode(t, body); code != "badRequest" {
		t.Fatalf("code %q", code)
	}
}

type memRecordStore struct {
	rows []world.PlayerRecord
}

func (m *memRecordStore) SaveRetired(r world.RetiredPlayer) error {
	m.rows = append(m.rows, world.PlayerRecord{
		Name: r.Name, Score: r.Score, PlayTimeMs: r.PlayTime.Milliseconds(),
	})
	return nil
}

func (m *memRecordStore) Records(start, limit int) ([]world.PlayerRecord, error) {
	if start >= len(m.rows) {
		return nil, nil
	}
	end := start + limit
	if end > len(m.rows) {
		end = len(m.rows)
	}
	return m.rows[start:end], nil
}

func TestServer_Records(t *testing.T) {
	store := &memRecordStore{rows: []world.PlayerRecord{
		{Name: "ada", Score: 40, PlayTimeMs: 12500},
		{Name: "bob", Score: 10, PlayTimeMs: 3000},
	}}
	env := newTestEnv(t, store)

	resp, body := env.request(t, http.MethodGet, "/api/v1/game/records", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("records status %d: %s", resp.StatusCode, body)
	}
	var items []protocol.RecordItem
	if err := json.Unmarshal(body, &items); err != nil {
		t.Fatalf("records body: %v", err)
	}
	if len(items) != 2 || items[0].Name != "ada" || items[0].PlayTime != 12.5 {
		t.Fatalf("records = %+v", items)
	}

	resp, body = env.request(t, http.MethodGet, "/api/v1/game/records?start=1&maxItems=5", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("paged status %d", resp.StatusCode)
	}
	items = nil
	if err := json.Unmarshal(body, &items); err != nil {
		t.Fatalf("paged body: %v", err)
	}
	if len(items) != 1 || items[0].Name != "bob" {
		t.Fatalf("paged records = %+v", items)
	}

	for _, q := range []string{"?start=-1", "?maxItems=101", "?start=x", "?maxItems=-2"} {
		resp, body = env.request(t, http.MethodGet, "/api/v1/game/records"+q, "", "")
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("%s status %d, want 400: %s", q, resp.StatusCode, body)
		}
		if code := errorCode(t, body); code != "invalidArgument" {
			t.Fatalf("%s code %q", q, code)
		}
	}
}
