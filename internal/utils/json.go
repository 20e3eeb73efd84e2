// internal/utils/json.go
package utils

import (
	"encoding/json"

	"github.com/charmbracelet/log"
)

type IncomingMessage struct {
	ID   string          `json:"id"`
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type OutgoingMessage struct {
	ID   string      `json:"id"`
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

func UnmarshalMessage(data []byte, target interface{}) error {
	return json.Unmarshal(data, target)
}

// SendJSON marshals data and queues it without blocking. A full buffer drops
// the message; the reader side notices a dead peer on its own.
func SendJSON(send chan<- []byte, data interface{}) bool {
	jsonData, err := json.Marshal(data)
	if err != nil {
		log.Errorf("Error marshaling JSON: %v", err)
		return false
	}
	select {
	case send <- jsonData:
		return true
	default:
		log.Warn("Send channel is full, dropping message")
		return false
	}
}

func SendError(send chan<- []byte, id, errorType, message string) {
	if id == "" {
		id = "unknown"
	}
	SendJSON(send, OutgoingMessage{
		ID:   id,
		Type: "error",
		Data: map[string]string{
			"error":   errorType,
			"message": message,
		},
	})
}

func SendMessage(send chan<- []byte, id string, typ string, data interface{}) bool {
	msg := OutgoingMessage{
		ID:   id,
		Type: typ,
		Data: data,
	}
	return SendJSON(send, msg)
}
