package models

import "net"

// Message is one received datagram together with the endpoint it came from.
type Message struct {
	Payload []byte
	Addr    *net.UDPAddr
}

type LobbyPlayer struct {
	Username string `json:"username"`
	Status   string `json:"status"`
	Progress int    `json:"progress"`
	Endpoint string `json:"endpoint,omitempty"`
}

// LobbyInfo is a point-in-time view of the server state.
type LobbyInfo struct {
	Phase   string        `json:"phase"`
	Epoch   uint64        `json:"epoch"`
	RaceID  string        `json:"race_id,omitempty"`
	Players []LobbyPlayer `json:"players"`
}
