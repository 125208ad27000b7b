package handlers

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/gorilla/websocket"
	"github.com/mapleleafu/typerace/game"
	"github.com/mapleleafu/typerace/models"
	"github.com/mapleleafu/typerace/repository"
)

type fakeHistory struct {
	races    []models.Race
	sessions map[string]models.RaceSession
	limit    int
}

func (f *fakeHistory) ListRaces(_ context.Context, limit int) ([]models.Race, error) {
	f.limit = limit
	return f.races, nil
}

func (f *fakeHistory) FindSession(_ context.Context, raceID string) (models.RaceSession, error) {
	s, ok := f.sessions[raceID]
	if !ok {
		return models.RaceSession{}, repository.ErrNotFound
	}
	return s, nil
}

type apiBody struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func get(t *testing.T, h http.Handler, path string) (int, apiBody) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	var body apiBody
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode %s: %v", path, err)
	}
	return rec.Code, body
}

func TestFetchLobby(t *testing.T) {
	state := game.NewState(2)
	state.RegisterClient("Bob", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 5000})
	state.RegisterClient("Alice", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 5001})
	state.SetReady("Alice")

	code, body := get(t, NewRouter(&API{State: state}), "/api/lobby")
	if code != http.StatusOK || !body.Success {
		t.Fatalf("code = %d, body = %+v", code, body)
	}
	var lobby models.LobbyInfo
	if err := json.Unmarshal(body.Data, &lobby); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	var got []string
	for _, p := range lobby.Players {
		got = append(got, p.Username+"="+p.Status)
	}
	if diff := cmp.Diff([]string{"Alice=READY", "Bob=NOT_READY"}, got); diff != "" {
		t.Fatalf("players mismatch (-want +got):\n%s", diff)
	}
}

func TestHistoryEndpointsWithoutStores(t *testing.T) {
	r := NewRouter(&API{State: game.NewState(2)})
	for _, path := range []string{"/api/races", "/api/races/abc"} {
		if code, _ := get(t, r, path); code != http.StatusServiceUnavailable {
			t.Fatalf("%s: code = %d, want 503", path, code)
		}
	}
}

func TestFetchRacesAndSession(t *testing.T) {
	history := &fakeHistory{
		races: []models.Race{{ID: "r1", Winner: "Alice", UserNames: []string{"Alice", "Bob"}}},
		sessions: map[string]models.RaceSession{
			"r1": {RaceID: "r1", Events: []models.RaceEvent{{RaceID: "r1", Username: "server", Action: "start"}}},
		},
	}
	r := NewRouter(&API{State: game.NewState(2), Races: history, Journal: history})

	code, body := get(t, r, "/api/races?limit=500")
	if code != http.StatusOK {
		t.Fatalf("code = %d", code)
	}
	if history.limit != maxRaceLimit {
		t.Fatalf("limit = %d, want %d", history.limit, maxRaceLimit)
	}
	var races []models.Race
	json.Unmarshal(body.Data, &races)
	if len(races) != 1 || races[0].Winner != "Alice" {
		t.Fatalf("races = %+v", races)
	}

	if code, _ := get(t, r, "/api/races?limit=-1"); code != http.StatusBadRequest {
		t.Fatalf("bad limit: code = %d, want 400", code)
	}
	if code, _ := get(t, r, "/api/races/r1"); code != http.StatusOK {
		t.Fatalf("session: code = %d", code)
	}
	if code, body := get(t, r, "/api/races/missing"); code != http.StatusNotFound || body.Error == "" {
		t.Fatalf("missing session: code = %d, body = %+v", code, body)
	}
}

func TestSpectatorReceivesEvents(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub := NewHub()
	go hub.Run(ctx)

	srv := httptest.NewServer(NewRouter(&API{State: game.NewState(2), Hub: hub}))
	defer srv.Close()

	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer ws.Close()
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))

	_, snapshot, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	var lobby models.LobbyInfo
	if err := json.Unmarshal(snapshot, &lobby); err != nil || lobby.Phase != "WAITING" {
		t.Fatalf("snapshot = %s (%v)", snapshot, err)
	}

	// the snapshot is only written once the connection is registered
	hub.Broadcast([]byte("NEW_USER Alice"))
	_, msg, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("read event: %v", err)
	}
	if string(msg) != "NEW_USER Alice" {
		t.Fatalf("event = %q", msg)
	}
}
