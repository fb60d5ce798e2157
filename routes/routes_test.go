package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"jeoparty/handlers"
	"jeoparty/models"
	"jeoparty/security"
	"jeoparty/services"
	"jeoparty/store"
)

const (
	testSecret = "test-secret"
	hostID     = "host"
)

type testServer struct {
	router   *gin.Engine
	store    *store.MemoryStore
	registry *services.Registry
	token    string
	packID   string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	st := store.NewMemoryStore()
	pack := &models.QuestionPack{
		Name:      "Pack",
		CreatedBy: hostID,
		Rounds: []models.QuestionRound{{
			Name: "Round 1",
			Categories: []models.QuestionCategory{{
				Name:      "Category",
				Questions: []models.Question{{Question: "Q1", Answer: "A1", Value: 100}},
			}},
		}},
	}
	require.NoError(t, st.CreatePack(context.Background(), pack))

	hub := services.NewHub()
	registry := services.NewRegistry(st, hub, nil)
	hub.SetDispatcher(registry)
	gameService := services.NewGameService(st, registry, services.NewStateCache(nil, 0), "http://quiz.local")

	router := gin.New()
	SetupRoutes(router, Dependencies{
		GameHandler: handlers.NewGameHandler(gameService, registry),
		PackHandler: handlers.NewPackHandler(services.NewPackService(st)),
		GameService: gameService,
		Hub:         hub,
		JWTSecret:   testSecret,
	})

	token, err := security.GenerateJWT(hostID, testSecret, time.Hour)
	require.NoError(t, err)
	return &testServer{router: router, store: st, registry: registry, token: token, packID: pack.ID}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}, auth bool, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if auth {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v))
}

func (s *testServer) createGame(t *testing.T, title string) string {
	t.Helper()
	w := s.do(t, http.MethodPost, "/api/games", map[string]interface{}{"pack_id": s.packID, "title": title}, true)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp struct {
		Game    models.Game `json:"game"`
		JoinURL string      `json:"join_url"`
	}
	decode(t, w, &resp)
	assert.Equal(t, "http://quiz.local/join/"+resp.Game.JoinCode, resp.JoinURL)
	return resp.Game.ID
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodGet, "/health", nil, false)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	w = s.do(t, http.MethodGet, "/metrics", nil, false)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodPost, "/api/games", map[string]interface{}{"pack_id": s.packID, "title": "Quiz"}, false)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCreateGameValidation(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/games", map[string]interface{}{"title": "Quiz"}, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/api/games", map[string]interface{}{"pack_id": s.packID, "title": "Quiz", "regular_rounds": 5}, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/api/games", map[string]interface{}{"pack_id": "missing", "title": "Quiz"}, true)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestJoinSetsContestantCookie(t *testing.T) {
	s := newTestServer(t)
	gameID := s.createGame(t, "Quiz")

	w := s.do(t, http.MethodPost, "/api/join", map[string]interface{}{"join_code": "quiz", "name": "Alice", "color": "red"}, false)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var result services.JoinResult
	decode(t, w, &result)
	assert.Equal(t, gameID, result.GameID)

	var cookie *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == handlers.ContestantCookie {
			cookie = c
		}
	}
	require.NotNil(t, cookie)
	assert.Equal(t, result.UserID, cookie.Value)
	assert.True(t, cookie.HttpOnly)

	// The cookie identity wins over the body.
	w = s.do(t, http.MethodPost, "/api/join", map[string]interface{}{"join_code": "quiz", "user_id": "forged", "name": "Alicia", "color": "red"}, false, cookie)
	require.Equal(t, http.StatusOK, w.Code)
	var again services.JoinResult
	decode(t, w, &again)
	assert.Equal(t, result.UserID, again.UserID)

	w = s.do(t, http.MethodPost, "/api/join", map[string]interface{}{"join_code": "nope", "name": "Alice", "color": "red"}, false)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"error":"Game does not exist"}`, w.Body.String())

	w = s.do(t, http.MethodPost, "/api/join", map[string]interface{}{"join_code": "quiz"}, false)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPresenterFlowOverHTTP(t *testing.T) {
	s := newTestServer(t)
	gameID := s.createGame(t, "Quiz")

	w := s.do(t, http.MethodGet, "/api/games/"+gameID+"/lobby", nil, true)
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodGet, "/api/games/"+gameID+"/qr", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("\x89PNG")))

	w = s.do(t, http.MethodGet, "/api/games/"+gameID+"/question", nil, true)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(t, http.MethodGet, "/api/games/"+gameID+"/selection", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	var selection services.SelectionView
	decode(t, w, &selection)
	assert.Equal(t, models.StageSelection, selection.Stage)
	assert.True(t, selection.FirstRound)

	w = s.do(t, http.MethodGet, "/api/games/"+gameID+"/question", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	var question services.QuestionView
	decode(t, w, &question)
	assert.Equal(t, services.RedirectSelection, question.Redirect)

	w = s.do(t, http.MethodGet, "/api/games/"+gameID+"/state", nil, false)
	require.Equal(t, http.StatusOK, w.Code)
	var state services.GameState
	decode(t, w, &state)
	assert.Equal(t, models.StageSelection, state.Stage)

	w = s.do(t, http.MethodGet, "/api/games/"+gameID+"/cheatsheet", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"answer":"A1"`)

	w = s.do(t, http.MethodGet, "/api/games/"+gameID+"/export", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "scoreboard-"+gameID+".xlsx")
}

func TestOtherPresentersAreForbidden(t *testing.T) {
	s := newTestServer(t)
	gameID := s.createGame(t, "Quiz")

	other, err := security.GenerateJWT("someone-else", testSecret, time.Hour)
	require.NoError(t, err)
	s.token = other

	for _, page := range []string{"lobby", "selection", "endscreen", "cheatsheet"} {
		w := s.do(t, http.MethodGet, "/api/games/"+gameID+"/"+page, nil, true)
		assert.Equal(t, http.StatusForbidden, w.Code, page)
	}
}

func TestFlowEndpointsUnknownGame(t *testing.T) {
	s := newTestServer(t)
	for _, page := range []string{"selection", "question", "finale", "endscreen"} {
		w := s.do(t, http.MethodGet, "/api/games/no-such-game/"+page, nil, true)
		assert.Equal(t, http.StatusNotFound, w.Code, page)
	}
	assert.Zero(t, s.registry.Len())
}

func TestWebSocketUnknownGame(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodGet, "/ws/missing", nil, false)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestImportPackUpload(t *testing.T) {
	s := newTestServer(t)

	f := excelize.NewFile()
	defer f.Close()
	row := []interface{}{"Animals", 100, "Largest mammal?", "Blue whale"}
	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &row))
	workbook, err := f.WriteToBuffer()
	require.NoError(t, err)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "pack.xlsx")
	require.NoError(t, err)
	_, err = part.Write(workbook.Bytes())
	require.NoError(t, err)
	require.NoError(t, mw.WriteField("name", "Animals"))
	require.NoError(t, mw.WriteField("public", "true"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/packs/import", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+s.token)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var pack models.QuestionPack
	decode(t, w, &pack)
	assert.True(t, pack.Public)
	assert.Equal(t, hostID, pack.CreatedBy)

	w = s.do(t, http.MethodGet, "/api/packs/"+pack.ID, nil, true)
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodPost, "/api/packs/import", nil, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
