package main

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Seednode/partydisplay/catalog"
	"github.com/Seednode/partydisplay/protocol"
)

func testConfig(t *testing.T) *Config {
	t.Helper()

	dir := t.TempDir()

	processed := filepath.Join(dir, "characters_processed.yaml")
	require.NoError(t, catalog.WriteFile(processed, []catalog.Entity{
		{Number: 1, Name: "Tir McDohl", ImageURL: "/static/img/tir.png", RecruitmentInfo: "Automatic."},
		{Number: 2, Name: "Gremio", ImageURL: "/static/img/gremio.png", RecruitmentInfo: "Tir's servant."},
		{Number: 3, Name: "Viktor", ImageURL: "/static/img/viktor.png", RecruitmentInfo: "Lenankamp inn."},
		{Number: 4, Name: "Cleo", ImageURL: "/static/img/cleo.png", RecruitmentInfo: "Automatic."},
		{Number: 5, Name: "Pahn", ImageURL: "/static/img/pahn.png", RecruitmentInfo: "Automatic."},
		{Number: 6, Name: "Ted", ImageURL: "/static/img/ted.png", RecruitmentInfo: "Automatic."},
	}))

	static := filepath.Join(dir, "static")
	require.NoError(t, os.MkdirAll(filepath.Join(static, "img"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(static, "img", "placeholder.png"), []byte("placeholder"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(static, "index.html"), []byte("<html>party</html>"), 0o644))

	return &Config{
		catalog:     processed,
		characters:  filepath.Join(dir, "missing.json"),
		recruitment: filepath.Join(dir, "missing.json"),
		partyFile:   filepath.Join(dir, "party.json"),
		port:        5000,
		queueSize:   8,
		staticDir:   static,
		writeWait:   time.Second,
		logger:      zaptest.NewLogger(t),
	}
}

func testServer(t *testing.T) (*server, *httptest.Server) {
	t.Helper()

	s := newServer(testConfig(t))
	ts := httptest.NewServer(s.routes())
	t.Cleanup(func() {
		s.hub.Close()
		ts.Close()
	})

	return s, ts
}

func do(t *testing.T, method, url, body string) (int, map[string]any) {
	t.Helper()

	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))

	return resp.StatusCode, out
}

func partyNames(t *testing.T, reply map[string]any) []string {
	t.Helper()

	slots, ok := reply["party"].([]any)
	require.True(t, ok, "party missing from %v", reply)

	names := make([]string, len(slots))
	for i, slot := range slots {
		if e, ok := slot.(map[string]any); ok {
			names[i], _ = e["name"].(string)
		}
	}

	return names
}

func TestAPIQueries(t *testing.T) {
	_, ts := testServer(t)

	status, reply := do(t, http.MethodGet, ts.URL+"/api/characters", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Len(t, reply["characters"], 6)

	status, reply = do(t, http.MethodGet, ts.URL+"/api/party", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, []string{"", "", "", "", "", ""}, partyNames(t, reply))

	status, reply = do(t, http.MethodGet, ts.URL+"/api/character/gREMIO", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Gremio", reply["name"])
	assert.Equal(t, "Tir's servant.", reply["recruitment_info"])

	status, reply = do(t, http.MethodGet, ts.URL+"/api/character/Luc", "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "not_found", reply["code"])
}

func TestAPIMutations(t *testing.T) {
	s, ts := testServer(t)

	status, reply := do(t, http.MethodPut, ts.URL+"/api/party/0", `{"character_name":"gremio"}`)
	require.Equal(t, http.StatusOK, status, reply)
	assert.Equal(t, "Gremio added to party", reply["message"])
	assert.Equal(t, []string{"Gremio", "", "", "", "", ""}, partyNames(t, reply))

	status, reply = do(t, http.MethodPost, ts.URL+"/api/party/move", `{"from_slot":0,"to_slot":5}`)
	require.Equal(t, http.StatusOK, status, reply)
	assert.Equal(t, "Gremio moved to slot 6", reply["message"])

	status, reply = do(t, http.MethodDelete, ts.URL+"/api/party/5", "")
	require.Equal(t, http.StatusOK, status, reply)
	assert.Equal(t, "Gremio removed from party", reply["message"])

	status, reply = do(t, http.MethodPut, ts.URL+"/api/party", `{"party":["Viktor",null,"Cleo","","Ted",{"name":"Pahn"}]}`)
	require.Equal(t, http.StatusOK, status, reply)
	assert.Equal(t, []string{"Viktor", "", "Cleo", "", "Ted", "Pahn"}, partyNames(t, reply))

	data, err := os.ReadFile(s.cfg.partyFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"Pahn"`)

	status, reply = do(t, http.MethodPost, ts.URL+"/api/party/random", "")
	require.Equal(t, http.StatusOK, status, reply)
	assert.NotContains(t, partyNames(t, reply), "")

	status, reply = do(t, http.MethodDelete, ts.URL+"/api/party", "")
	require.Equal(t, http.StatusOK, status, reply)
	assert.Equal(t, []string{"", "", "", "", "", ""}, partyNames(t, reply))
	assert.EqualValues(t, 6, reply["version"])
}

func TestAPIRejectsBadRequests(t *testing.T) {
	s, ts := testServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
		code   string
	}{
		{"slot out of range", http.MethodPut, "/api/party/6", `{"character_name":"Gremio"}`, http.StatusBadRequest, "invalid_slot"},
		{"slot not a number", http.MethodPut, "/api/party/first", `{"character_name":"Gremio"}`, http.StatusBadRequest, "invalid_payload"},
		{"unknown character", http.MethodPut, "/api/party/0", `{"character_name":"Luc"}`, http.StatusNotFound, "unknown_entity"},
		{"missing name", http.MethodPut, "/api/party/0", `{}`, http.StatusBadRequest, "invalid_payload"},
		{"malformed body", http.MethodPut, "/api/party/0", `{`, http.StatusBadRequest, "invalid_payload"},
		{"remove empty slot", http.MethodDelete, "/api/party/3", "", http.StatusConflict, "empty_slot"},
		{"move from empty slot", http.MethodPost, "/api/party/move", `{"from_slot":1,"to_slot":2}`, http.StatusConflict, "empty_slot"},
		{"move string slot", http.MethodPost, "/api/party/move", `{"from_slot":"1","to_slot":2}`, http.StatusBadRequest, "invalid_payload"},
		{"short party", http.MethodPut, "/api/party", `{"party":["Gremio"]}`, http.StatusBadRequest, "invalid_length"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, reply := do(t, tt.method, ts.URL+tt.path, tt.body)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, reply["code"])
		})
	}

	assert.Zero(t, s.store.Version())
}

type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return conn
}

func read(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var f frame
	require.NoError(t, conn.ReadJSON(&f))

	return f
}

func TestWebSocketSession(t *testing.T) {
	_, ts := testServer(t)

	alice := dial(t, ts)
	bob := dial(t, ts)

	assert.Equal(t, protocol.EventServerInfo, read(t, alice).Event)
	assert.Equal(t, protocol.EventServerInfo, read(t, bob).Event)

	require.NoError(t, alice.WriteJSON(protocol.Message{Event: protocol.EventRequestInitialData}))
	f := read(t, alice)
	require.Equal(t, protocol.EventInitialData, f.Event)

	var initial protocol.InitialData
	require.NoError(t, json.Unmarshal(f.Data, &initial))
	assert.Len(t, initial.Characters, 6)
	assert.Len(t, initial.Party, 6)

	require.NoError(t, alice.WriteJSON(protocol.Message{
		Event: protocol.EventAddToParty,
		Data:  map[string]any{"character_name": "Viktor", "slot": 2},
	}))

	for _, conn := range []*websocket.Conn{alice, bob} {
		f := read(t, conn)
		require.Equal(t, protocol.EventPartyUpdated, f.Event)

		var update protocol.PartyUpdated
		require.NoError(t, json.Unmarshal(f.Data, &update))
		assert.Equal(t, "add", update.Action)
		require.NotNil(t, update.UpdatedSlot)
		assert.Equal(t, 2, *update.UpdatedSlot)
		assert.Equal(t, uint64(1), update.Version)
		require.NotNil(t, update.Party[2])
		assert.Equal(t, "Viktor", update.Party[2].Name)
	}

	f = read(t, alice)
	assert.Equal(t, protocol.EventUpdateSuccess, f.Event)
	assert.JSONEq(t, `{"message":"Viktor added to party"}`, string(f.Data))

	require.NoError(t, bob.WriteJSON(protocol.Message{
		Event: protocol.EventRemoveFromParty,
		Data:  map[string]any{"slot": 4},
	}))
	f = read(t, bob)
	require.Equal(t, protocol.EventServerError, f.Event)

	var reply protocol.ErrorReply
	require.NoError(t, json.Unmarshal(f.Data, &reply))
	assert.Equal(t, "empty_slot", reply.Code)
	assert.Contains(t, reply.Message, "no character in that slot")
}

func TestWebSocketSeesHTTPChanges(t *testing.T) {
	_, ts := testServer(t)

	conn := dial(t, ts)
	require.Equal(t, protocol.EventServerInfo, read(t, conn).Event)

	status, _ := do(t, http.MethodPut, ts.URL+"/api/party", `{"party":["Tir McDohl","Gremio","","","",""]}`)
	require.Equal(t, http.StatusOK, status)

	f := read(t, conn)
	require.Equal(t, protocol.EventPartyUpdated, f.Event)

	var update protocol.PartyUpdated
	require.NoError(t, json.Unmarshal(f.Data, &update))
	assert.Equal(t, "full_update", update.Action)
	assert.Equal(t, "external", update.Source)
	assert.Equal(t, []int{0, 1}, update.UpdatedSlots)
}

func TestStaticFiles(t *testing.T) {
	_, ts := testServer(t)

	get := func(path string) (int, string) {
		resp, err := http.Get(ts.URL + path)
		require.NoError(t, err)
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)

		return resp.StatusCode, string(body)
	}

	status, body := get("/")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "<html>party</html>", body)

	status, body = get("/static/img/gremio.png")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "placeholder", body)

	status, _ = get("/static/app.js")
	assert.Equal(t, http.StatusNotFound, status)

	status, body = get("/healthz")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Ok\n", body)

	status, body = get("/version")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "partydisplay v"+releaseVersion+"\n", body)
}

func TestQR(t *testing.T) {
	_, ts := testServer(t)

	resp, err := http.Get(ts.URL + "/qr")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(body), "\x89PNG"))
}

func TestShareURL(t *testing.T) {
	cfg := &Config{prefix: "/party/"}

	r := httptest.NewRequest(http.MethodGet, "http://tv.local:5000/party/qr", nil)
	assert.Equal(t, "http://tv.local:5000/party/", shareURL(cfg, r))

	r.Header.Set("X-Forwarded-Proto", "https")
	assert.Equal(t, "https://tv.local:5000/party/", shareURL(cfg, r))
}

func TestHomePageWithoutClient(t *testing.T) {
	cfg := testConfig(t)
	cfg.prefix = "/party"
	require.NoError(t, os.Remove(filepath.Join(cfg.staticDir, "index.html")))

	ts := httptest.NewServer(newServer(cfg).routes())
	t.Cleanup(ts.Close)

	resp, err := http.Get(ts.URL + "/party/")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "No web client is installed")
	assert.Contains(t, string(body), `href="/party/favicons/site.webmanifest"`)

	resp, err = http.Get(ts.URL + "/party/favicons/favicon.ico")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestMutationsRefuseOtherOrigins(t *testing.T) {
	s, ts := testServer(t)

	send := func(method, path, origin string) int {
		req, err := http.NewRequest(method, ts.URL+path, nil)
		require.NoError(t, err)
		req.Header.Set("Origin", origin)

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()

		return resp.StatusCode
	}

	assert.Equal(t, http.StatusForbidden, send(http.MethodPost, "/api/party/random", "http://elsewhere.example"))
	assert.Equal(t, http.StatusForbidden, send(http.MethodDelete, "/api/party", "null"))
	assert.Zero(t, s.store.Version())

	assert.Equal(t, http.StatusOK, send(http.MethodGet, "/api/party", "http://elsewhere.example"))

	assert.Equal(t, http.StatusOK, send(http.MethodPost, "/api/party/random", ts.URL))
	assert.Equal(t, uint64(1), s.store.Version())
}

func TestWebSocketRefusesOtherOrigins(t *testing.T) {
	_, ts := testServer(t)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"

	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"http://elsewhere.example"}})
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.NotNil(t, resp)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {ts.URL}})
	require.NoError(t, err)
	defer conn.Close()

	assert.Equal(t, protocol.EventServerInfo, read(t, conn).Event)
}
