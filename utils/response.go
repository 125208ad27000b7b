package utils

import (
	"encoding/json"
	"log"
	"net"
	"net/http"

	"github.com/mapleleafu/typerace/models"
	"github.com/mapleleafu/typerace/protocol"
	"github.com/mapleleafu/typerace/responses"
)

func HandleSuccess(w http.ResponseWriter, response models.ApiResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(response)
}

// HandleError checks the error type and sends an appropriate response
func HandleError(w http.ResponseWriter, err error) {
	var statusCode int
	var errorMsg string

	if apiErr, ok := err.(responses.APIError); ok {
		statusCode = apiErr.StatusCode()
		errorMsg = apiErr.Error()
	} else {
		statusCode = http.StatusInternalServerError
		errorMsg = "Internal Server Error"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(models.ErrorResponse(errorMsg))
}

// Replier sends a unicast datagram back to a client endpoint.
type Replier interface {
	Reply(addr *net.UDPAddr, payload []byte) error
}

// ReplyError is the datagram counterpart of HandleError: the error's verb
// followed by its message goes back to addr.
func ReplyError(r Replier, addr *net.UDPAddr, err responses.CommandError) {
	payload, encErr := protocol.Encode(err.Verb(), err.Error())
	if encErr != nil {
		log.Printf("Error encoding reply %q: %v", err.Error(), encErr)
		return
	}
	if sendErr := r.Reply(addr, payload); sendErr != nil {
		log.Printf("Error sending reply to %s: %v", addr, sendErr)
		return
	}
	log.Printf("Sent to %s: %s", addr, payload)
}
