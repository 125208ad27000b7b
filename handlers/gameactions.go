package handlers

import (
	"errors"
	"log"
	"net"
	"strconv"

	"github.com/mapleleafu/typerace/game"
	"github.com/mapleleafu/typerace/models"
	"github.com/mapleleafu/typerace/protocol"
	"github.com/mapleleafu/typerace/responses"
	"github.com/mapleleafu/typerace/utils"
)

// HandleMessage processes one datagram. It is safe to call from several
// goroutines; all game state lives behind game.State.
func (s *Server) HandleMessage(msg models.Message) {
	switch d := protocol.Decode(msg.Payload).(type) {
	case protocol.Unrecognized:
		log.Printf("Received unknown command from %s: %q", msg.Addr, d.Raw)
		utils.ReplyError(s.replier, msg.Addr, responses.ErrUnknownCommand)
	case protocol.Recognized:
		log.Printf("Received from %s: %s", msg.Addr, d)
		cmd, ok := s.commands[d.Verb]
		if !ok {
			// server-to-client verbs are not commands
			utils.ReplyError(s.replier, msg.Addr, responses.ErrUnknownCommand)
			return
		}
		if len(d.Args) != cmd.arity {
			utils.ReplyError(s.replier, msg.Addr, responses.ErrIllegalArgCount)
			return
		}
		cmd.handle(msg.Addr, d.Args)
	}
}

func (s *Server) handleUserJoin(addr *net.UDPAddr, args []string) {
	username := args[0]
	if err := s.state.RegisterClient(username, addr); err != nil {
		utils.ReplyError(s.replier, addr, joinError(err))
		return
	}
	log.Printf("User %s joined from %s", username, addr)

	s.reply(addr, protocol.OK, s.state.Statuses(username)...)
	s.broadcast(protocol.NewUser, username)
	s.session.record(username, "join", 0)
}

func (s *Server) handleUserReady(addr *net.UDPAddr, args []string) {
	username := args[0]
	res, err := s.state.SetReady(username)
	if err != nil {
		utils.ReplyError(s.replier, addr, commandError(err))
		return
	}
	if res.Restarted {
		log.Println("New lobby cycle started")
	}

	s.reply(addr, protocol.OK, s.state.Statuses(username)...)
	s.broadcast(protocol.UserReady, username)
	s.session.record(username, "ready", 0)

	if res.StartPending {
		s.wg.Add(1)
		go s.startGame()
	}
}

func (s *Server) handleUserProgress(addr *net.UDPAddr, args []string) {
	username := args[0]
	value, err := protocol.ParsePercent(args[1])
	if err != nil {
		utils.ReplyError(s.replier, addr, responses.ErrInvalidProgress)
		return
	}
	res, err := s.state.SetProgress(username, value)
	if err != nil {
		utils.ReplyError(s.replier, addr, commandError(err))
		return
	}
	s.session.record(username, "progress", value)

	if res.Finished {
		log.Printf("User %s won race %s", res.Winner, res.Race.ID)
		s.broadcast(protocol.EndGame, res.Winner)
		s.endRace(res.Race)
	}
}

func (s *Server) handleUserQuit(addr *net.UDPAddr, args []string) {
	username := args[0]
	res, err := s.state.RemoveClient(username)
	if err != nil {
		utils.ReplyError(s.replier, addr, commandError(err))
		return
	}
	log.Printf("User %s quit", username)
	s.session.record(username, "quit", 0)
	s.broadcast(protocol.DelUser, username)

	if res.Finished {
		log.Printf("Race %s ended without a winner", res.Race.ID)
		s.endRace(res.Race)
	}
}

func joinError(err error) responses.CommandError {
	switch {
	case errors.Is(err, game.ErrDuplicateUsername):
		return responses.JoinError{Msg: "Username already taken"}
	case errors.Is(err, game.ErrUsernameTooLong):
		return responses.JoinError{Msg: "Username too long, max " + strconv.Itoa(protocol.MaxUsernameLen) + " characters"}
	case errors.Is(err, game.ErrInvalidUsername):
		return responses.JoinError{Msg: "Username must be alphanumeric"}
	case errors.Is(err, game.ErrLobbyFull):
		return responses.JoinError{Msg: "Lobby full"}
	}
	log.Printf("Unexpected join error: %v", err)
	return responses.JoinError{Msg: "Join rejected"}
}

func commandError(err error) responses.CommandError {
	switch {
	case errors.Is(err, game.ErrUnknownUser):
		return responses.BadRequestError{Msg: "User doesn't exist"}
	case errors.Is(err, game.ErrNotInRace):
		return responses.BadRequestError{Msg: "User is not in race"}
	case errors.Is(err, game.ErrOutOfRange):
		return responses.BadRequestError{Msg: "Invalid score"}
	}
	log.Printf("Unexpected command error: %v", err)
	return responses.BadRequestError{Msg: "Command failed"}
}
