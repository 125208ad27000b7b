package protocol

import "time"

type Verb string

// Client to server.
const (
	UserJoin     Verb = "USER_JOIN"
	UserReady    Verb = "USER_READY"
	UserProgress Verb = "USER_PROGRESS"
	UserQuit     Verb = "USER_QUIT"
)

// Server to client, unicast replies.
const (
	OK          Verb = "OK"
	UserJoinErr Verb = "USER_JOIN_ERR"
	Error       Verb = "ERROR"
)

// Server to all, multicast. USER_READY is reused as the broadcast event.
const (
	NewUser          Verb = "NEW_USER"
	StartGame        Verb = "START_GAME"
	AllUsersProgress Verb = "ALL_USERS_PROGRESS"
	EndGame          Verb = "END_GAME"
	DelUser          Verb = "DEL_USER"
)

var knownVerbs = map[Verb]struct{}{
	UserJoin:         {},
	UserReady:        {},
	UserProgress:     {},
	UserQuit:         {},
	OK:               {},
	UserJoinErr:      {},
	Error:            {},
	NewUser:          {},
	StartGame:        {},
	AllUsersProgress: {},
	EndGame:          {},
	DelUser:          {},
}

// CommandArity is the number of arguments each client command carries.
var CommandArity = map[Verb]int{
	UserJoin:     1,
	UserReady:    1,
	UserProgress: 2,
	UserQuit:     1,
}

// IsKnown reports whether v is part of the protocol in either direction.
func IsKnown(v Verb) bool {
	_, ok := knownVerbs[v]
	return ok
}

type PlayerStatus string

const (
	NotReady PlayerStatus = "NOT_READY"
	Ready    PlayerStatus = "READY"
	InGame   PlayerStatus = "IN_GAME"
)

const (
	MinPlayersForGame = 2
	GameStartDelay    = 5 * time.Second
	ProgressTick      = 2 * time.Second
	ResponseTimeout   = 5 * time.Second
	MaxUsernameLen    = 15
	MaxPayload        = 1024
)

// Longest per-player entries of the two listings that grow with the lobby:
// " <user> NOT_READY" in an OK reply and " <user> 100" in ALL_USERS_PROGRESS.
const (
	maxStatusEntry   = 1 + MaxUsernameLen + 1 + len(NotReady)
	maxProgressEntry = 1 + MaxUsernameLen + 1 + len("100")
)

// MaxPlayers is the largest lobby whose OK reply and progress snapshot still
// fit in one datagram. The OK reply lists every player but the caller.
const MaxPlayers = min(
	(MaxPayload-len(OK))/maxStatusEntry+1,
	(MaxPayload-len(AllUsersProgress))/maxProgressEntry,
)
