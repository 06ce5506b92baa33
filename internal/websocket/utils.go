package websocket

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/gin-gonic/gin/binding"
	"github.com/gorilla/websocket"
)

const (
	writeWait = 10 * time.Second
	readWait  = 5 * time.Minute
)

// WriteTyped sends a strongly-typed response payload over the WebSocket.
func WriteTyped(conn *websocket.Conn, v any) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(v)
}

// WriteError sends a typed ErrorResponse over the WebSocket.
func WriteError(conn *websocket.Conn, requestID, code, errMsg string) error {
	return WriteTyped(conn, ErrorResponse{
		Event:     EventError,
		RequestID: requestID,
		Code:      code,
		Error:     errMsg,
	})
}

// ReadJSON reads and decodes a message into the provided structure.
// It sets a read deadline.
func ReadJSON(conn *websocket.Conn, v any) error {
	_ = conn.SetReadDeadline(time.Now().Add(readWait))
	return conn.ReadJSON(v)
}

// DecodePayload unmarshals a request payload and runs the same struct
// validation as the HTTP binding layer.
func DecodePayload(req Request, dst any) error {
	if len(req.Payload) == 0 {
		return fmt.Errorf("payload is required")
	}
	if err := json.Unmarshal(req.Payload, dst); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return binding.Validator.ValidateStruct(dst)
}
