package handlers

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/mapleleafu/typerace/client"
	"github.com/mapleleafu/typerace/game"
	"github.com/mapleleafu/typerace/models"
	"github.com/mapleleafu/typerace/protocol"
)

const raceText = "cats are agile and graceful."

type sentReply struct {
	addr    *net.UDPAddr
	payload string
}

type fakeReplier struct {
	replies chan sentReply
}

func (f *fakeReplier) Reply(addr *net.UDPAddr, payload []byte) error {
	f.replies <- sentReply{addr: addr, payload: string(payload)}
	return nil
}

type fakeBroadcaster struct {
	events chan string
}

func (f *fakeBroadcaster) Broadcast(payload []byte) error {
	f.events <- string(payload)
	return nil
}

type fixedText string

func (f fixedText) Paragraph(context.Context) (string, error) {
	return string(f), nil
}

type fakeStore struct {
	mu       sync.Mutex
	races    []models.Race
	sessions []models.RaceSession
}

func (f *fakeStore) SaveRace(_ context.Context, race models.Race) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.races = append(f.races, race)
	return nil
}

func (f *fakeStore) SaveSession(_ context.Context, session models.RaceSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions = append(f.sessions, session)
	return nil
}

type harness struct {
	t      *testing.T
	srv    *Server
	rep    *fakeReplier
	bc     *fakeBroadcaster
	store  *fakeStore
	tick   time.Duration
	byName map[string]*net.UDPAddr
}

func newHarness(t *testing.T, tick time.Duration) *harness {
	t.Helper()
	h := &harness{
		t:      t,
		rep:    &fakeReplier{replies: make(chan sentReply, 64)},
		bc:     &fakeBroadcaster{events: make(chan string, 1024)},
		store:  &fakeStore{},
		tick:   tick,
		byName: make(map[string]*net.UDPAddr),
	}
	h.srv = NewServer(game.NewState(protocol.MinPlayersForGame), h.rep, h.bc, Options{
		StartDelay:   20 * time.Millisecond,
		ProgressTick: tick,
		Content:      fixedText(raceText),
		Races:        h.store,
		Journal:      h.store,
	})
	t.Cleanup(h.srv.Close)
	return h
}

func (h *harness) addr(name string) *net.UDPAddr {
	if a, ok := h.byName[name]; ok {
		return a
	}
	a := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 40000 + len(h.byName)}
	h.byName[name] = a
	return a
}

func (h *harness) send(from, line string) {
	h.srv.HandleMessage(models.Message{Payload: []byte(line), Addr: h.addr(from)})
}

func (h *harness) expectReply(to, want string) {
	h.t.Helper()
	select {
	case r := <-h.rep.replies:
		if r.payload != want {
			h.t.Fatalf("reply = %q, want %q", r.payload, want)
		}
		if r.addr.String() != h.addr(to).String() {
			h.t.Fatalf("reply went to %s, want %s", r.addr, h.addr(to))
		}
	case <-time.After(time.Second):
		h.t.Fatalf("timed out waiting for reply %q", want)
	}
}

func (h *harness) expectNoReply() {
	h.t.Helper()
	select {
	case r := <-h.rep.replies:
		h.t.Fatalf("unexpected reply %q", r.payload)
	default:
	}
}

// expectEvent skips progress broadcasts unless want is one.
func (h *harness) expectEvent(want string) {
	h.t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-h.bc.events:
			if ev == want {
				return
			}
			if strings.HasPrefix(ev, string(protocol.AllUsersProgress)) {
				continue
			}
			h.t.Fatalf("multicast = %q, want %q", ev, want)
		case <-deadline:
			h.t.Fatalf("timed out waiting for multicast %q", want)
		}
	}
}

func (h *harness) startRace(names ...string) {
	h.t.Helper()
	for _, n := range names {
		h.send(n, "USER_JOIN "+n)
		<-h.rep.replies
		h.expectEvent("NEW_USER " + n)
	}
	for _, n := range names {
		h.send(n, "USER_READY "+n)
		<-h.rep.replies
		h.expectEvent("USER_READY " + n)
	}
	h.expectEvent("START_GAME " + raceText)
}

func TestJoinRepliesWithLobbyAndAnnounces(t *testing.T) {
	h := newHarness(t, time.Hour)

	h.send("alice", "USER_JOIN Alice")
	h.expectReply("alice", "OK")
	h.expectEvent("NEW_USER Alice")

	h.send("alice", "USER_READY Alice")
	h.expectReply("alice", "OK")
	h.expectEvent("USER_READY Alice")

	h.send("bob", "USER_JOIN Bob")
	h.expectReply("bob", "OK Alice READY")
	h.expectEvent("NEW_USER Bob")
}

func TestDuplicateJoinRejected(t *testing.T) {
	h := newHarness(t, time.Hour)
	h.send("alice", "USER_JOIN Alice")
	h.expectReply("alice", "OK")
	h.expectEvent("NEW_USER Alice")

	h.send("mallory", "USER_JOIN Alice")
	h.expectReply("mallory", "USER_JOIN_ERR Username already taken")
	if got := h.srv.State().Count(); got != 1 {
		t.Fatalf("Count = %d, want 1", got)
	}
	select {
	case ev := <-h.bc.events:
		t.Fatalf("rejected join multicast %q", ev)
	default:
	}
}

func TestProtocolErrors(t *testing.T) {
	h := newHarness(t, time.Hour)
	h.send("alice", "USER_JOIN Alice")
	h.expectReply("alice", "OK")

	cases := []struct {
		line string
		want string
	}{
		{"HELLO there", "ERROR Unknown command"},
		{"", "ERROR Unknown command"},
		{"user_join Bob", "ERROR Unknown command"},
		{"START_GAME some text", "ERROR Unknown command"},
		{"USER_JOIN", "ERROR Illegal number of arguments"},
		{"USER_JOIN Bob Carol", "ERROR Illegal number of arguments"},
		{"USER_PROGRESS Alice", "ERROR Illegal number of arguments"},
		{"USER_PROGRESS Alice abc", "ERROR Invalid progress"},
		{"USER_PROGRESS Alice 10", "ERROR User is not in race"},
		{"USER_READY Nobody", "ERROR User doesn't exist"},
		{"USER_QUIT Nobody", "ERROR User doesn't exist"},
		{"USER_JOIN Al!ce", "USER_JOIN_ERR Username must be alphanumeric"},
		{"USER_JOIN Abcdefghijklmnop", "USER_JOIN_ERR Username too long, max 15 characters"},
	}
	for _, tc := range cases {
		h.send("alice", tc.line)
		h.expectReply("alice", tc.want)
	}
}

func TestRaceStartsAndWinnerEndsIt(t *testing.T) {
	h := newHarness(t, time.Hour)
	h.startRace("Alice", "Bob")

	if got := h.srv.State().Phase(); got != models.Running {
		t.Fatalf("phase = %s, want RUNNING", got)
	}
	h.expectEvent("ALL_USERS_PROGRESS Alice 0 Bob 0")

	h.send("alice", "USER_PROGRESS Alice 40")
	h.send("alice", "USER_PROGRESS Alice 100")
	h.expectNoReply()
	h.expectEvent("END_GAME Alice")

	if got := h.srv.State().Phase(); got != models.Finished {
		t.Fatalf("phase = %s, want FINISHED", got)
	}
	for _, name := range []string{"Alice", "Bob"} {
		p, _ := h.srv.State().Player(name)
		if p.Ready || p.InRace || p.Progress != 0 {
			t.Fatalf("%s not reset: %+v", name, p)
		}
	}

	h.send("bob", "USER_PROGRESS Bob 50")
	h.expectReply("bob", "ERROR User is not in race")

	h.srv.Close()
	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	if len(h.store.races) != 1 {
		t.Fatalf("saved %d races, want 1", len(h.store.races))
	}
	race := h.store.races[0]
	if race.Winner != "Alice" || race.Text != raceText {
		t.Fatalf("unexpected race summary %+v", race)
	}
	if diff := cmp.Diff([]string{"Alice", "Bob"}, race.UserNames); diff != "" {
		t.Fatalf("participants mismatch (-want +got):\n%s", diff)
	}
	var actions []string
	for _, ev := range h.store.sessions[0].Events {
		actions = append(actions, ev.Username+":"+ev.Action)
	}
	want := []string{"server:start", "Alice:progress", "Alice:progress", "server:end"}
	if diff := cmp.Diff(want, actions); diff != "" {
		t.Fatalf("journal mismatch (-want +got):\n%s", diff)
	}
}

func TestQuitOfLastRacerFinishesRace(t *testing.T) {
	h := newHarness(t, time.Hour)
	h.startRace("Bob", "Carol")

	h.send("bob", "USER_QUIT Bob")
	h.expectEvent("DEL_USER Bob")
	if got := h.srv.State().Phase(); got != models.Running {
		t.Fatalf("phase = %s, want RUNNING", got)
	}

	h.send("carol", "USER_QUIT Carol")
	h.expectEvent("DEL_USER Carol")
	h.expectNoReply()
	if got := h.srv.State().Phase(); got != models.Finished {
		t.Fatalf("phase = %s, want FINISHED", got)
	}
	if got := h.srv.State().Count(); got != 0 {
		t.Fatalf("Count = %d, want 0", got)
	}

	h.srv.Close()
	if len(h.store.races) != 1 || h.store.races[0].Winner != "" {
		t.Fatalf("unexpected saved races %+v", h.store.races)
	}
}

func TestProgressBroadcastTracksRaceAndStops(t *testing.T) {
	tick := 10 * time.Millisecond
	h := newHarness(t, tick)
	h.startRace("Alice", "Bob")

	h.send("bob", "USER_PROGRESS Bob 40")
	h.expectEvent("ALL_USERS_PROGRESS Alice 0 Bob 40")

	h.send("alice", "USER_PROGRESS Alice 100")
	h.expectEvent("END_GAME Alice")

	// one tick may already be in flight when the race ends
	time.Sleep(3 * tick)
	for len(h.bc.events) > 0 {
		<-h.bc.events
	}
	select {
	case ev := <-h.bc.events:
		t.Fatalf("broadcast after race end: %q", ev)
	case <-time.After(5 * tick):
	}
}

func TestNextRaceGetsItsOwnBroadcaster(t *testing.T) {
	tick := 10 * time.Millisecond
	h := newHarness(t, tick)
	h.startRace("Alice", "Bob")
	first := h.srv.State().Epoch()

	h.send("alice", "USER_PROGRESS Alice 100")
	h.expectEvent("END_GAME Alice")

	h.send("alice", "USER_READY Alice")
	h.expectReply("alice", "OK Bob NOT_READY")
	h.expectEvent("USER_READY Alice")
	h.send("bob", "USER_READY Bob")
	h.expectReply("bob", "OK Alice READY")
	h.expectEvent("USER_READY Bob")
	h.expectEvent("START_GAME " + raceText)

	if got := h.srv.State().Epoch(); got != first+1 {
		t.Fatalf("epoch = %d, want %d", got, first+1)
	}
	h.expectEvent("ALL_USERS_PROGRESS Alice 0 Bob 0")

	h.srv.raceMu.Lock()
	runner := h.srv.runner
	h.srv.raceMu.Unlock()
	if runner == nil || runner.epoch != first+1 {
		t.Fatalf("runner = %+v, want epoch %d", runner, first+1)
	}
}

func TestCloseCancelsCountdown(t *testing.T) {
	h := newHarness(t, time.Hour)
	h.srv.startDelay = time.Hour

	for _, n := range []string{"Alice", "Bob"} {
		h.send(n, "USER_JOIN "+n)
		h.send(n, "USER_READY "+n)
	}
	done := make(chan struct{})
	go func() {
		h.srv.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Close did not cancel the countdown")
	}
	if got := h.srv.State().Phase(); got != models.Waiting {
		t.Fatalf("phase = %s, want WAITING", got)
	}
}

func TestJournalNotReopenedForFinishedRace(t *testing.T) {
	l := &sessionLog{}
	l.finish("r1")
	l.begin("r1")
	l.record("Alice", "join", 0)
	if l.raceID != "" || len(l.events) != 0 {
		t.Fatalf("journal reopened for a finished race: id=%q events=%d", l.raceID, len(l.events))
	}

	l.begin("r2")
	l.record("Alice", "progress", 10)
	got := l.finish("r2")
	if got.RaceID != "r2" || len(got.Events) != 1 {
		t.Fatalf("unexpected session %+v", got)
	}
}

func TestReadyDuringRaceSurvivesQuitFinish(t *testing.T) {
	h := newHarness(t, time.Hour)
	h.startRace("Alice", "Bob")

	carol := client.NewState("Carol", nil)
	h.send("carol", "USER_JOIN Carol")
	h.expectReply("carol", "OK Alice IN_GAME Bob IN_GAME")
	carol.ApplyJoinReply([]string{"Alice", "IN_GAME", "Bob", "IN_GAME"})
	h.expectEvent("NEW_USER Carol")

	h.send("carol", "USER_READY Carol")
	h.expectReply("carol", "OK Alice IN_GAME Bob IN_GAME")
	carol.ApplyReadyReply([]string{"Alice", "IN_GAME", "Bob", "IN_GAME"})

	events := []string{"USER_READY Carol", "DEL_USER Alice", "DEL_USER Bob", "NEW_USER Dave", "USER_READY Dave"}
	h.send("alice", "USER_QUIT Alice")
	h.send("bob", "USER_QUIT Bob")
	h.send("dave", "USER_JOIN Dave")
	h.expectReply("dave", "OK Carol READY")
	h.send("dave", "USER_READY Dave")
	h.expectReply("dave", "OK Carol READY")
	for _, ev := range events {
		h.expectEvent(ev)
		carol.Apply([]byte(ev))
	}

	server, _ := h.srv.State().Player("Carol")
	mirror, _ := carol.Player("Carol")
	if server.Ready != mirror.Ready {
		t.Fatalf("Carol ready: server=%v mirror=%v", server.Ready, mirror.Ready)
	}
	if carol.Phase() != models.Waiting {
		t.Fatalf("mirror phase = %s, want WAITING", carol.Phase())
	}
	// Carol and Dave are both ready, so the new cycle starts on its own
	h.expectEvent("START_GAME " + raceText)
}

func TestJoinRejectedWhenLobbyFull(t *testing.T) {
	h := newHarness(t, time.Hour)
	for i := 0; i < protocol.MaxPlayers; i++ {
		name := fmt.Sprintf("player%09d", i)
		h.send(name, "USER_JOIN "+name)
		select {
		case r := <-h.rep.replies:
			if !strings.HasPrefix(r.payload, "OK") {
				t.Fatalf("join %d: reply %q", i, r.payload)
			}
		case <-time.After(time.Second):
			t.Fatalf("join %d: no reply", i)
		}
	}

	h.send("late", "USER_JOIN latecomer")
	h.expectReply("late", "USER_JOIN_ERR Lobby full")
	if got := h.srv.State().Count(); got != protocol.MaxPlayers {
		t.Fatalf("Count = %d, want %d", got, protocol.MaxPlayers)
	}
}
