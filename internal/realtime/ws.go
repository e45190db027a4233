package realtime

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"docforge/pkg/models"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The API sits behind the auth middleware; origin policy is delegated
	// to the deployment's proxy.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// subscriptionError is pushed to the client when a subscribe request is
// rejected.
type subscriptionError struct {
	Error      string `json:"error"`
	WorkflowID string `json:"workflow_id"`
}

// WSHandler returns the echo handler for the realtime channel. The tenant is
// taken from the authenticated request context; one connection serves one
// tenant.
func WSHandler(m *Manager, tenantFromContext func(echo.Context) (string, bool)) echo.HandlerFunc {
	return func(c echo.Context) error {
		tenantID, ok := tenantFromContext(c)
		if !ok {
			return echo.NewHTTPError(http.StatusUnauthorized, "tenant not resolved")
		}

		ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
		if err != nil {
			return err
		}

		conn := NewConnection(uuid.New().String(), tenantID)
		m.Register(conn)

		go writePump(m, conn, ws)
		readPump(m, conn, ws, c)
		return nil
	}
}

func readPump(m *Manager, conn *Connection, ws *websocket.Conn, c echo.Context) {
	defer func() {
		m.Unregister(conn)
		ws.Close()
	}()

	ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			return
		}

		var msg models.ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			conn.TrySend(errorMessage("malformed message", ""))
			continue
		}
		if err := msg.Validate(); err != nil {
			conn.TrySend(errorMessage(err.Error(), msg.WorkflowID))
			continue
		}

		switch msg.Action {
		case models.ActionSubscribe:
			if err := m.Subscribe(c.Request().Context(), conn, msg.WorkflowID); err != nil {
				conn.TrySend(errorMessage("subscription denied", msg.WorkflowID))
			}
		case models.ActionUnsubscribe:
			conn.Unsubscribe(msg.WorkflowID)
		}
	}
}

func writePump(m *Manager, conn *Connection, ws *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		ws.Close()
	}()

	for {
		select {
		case msg, ok := <-conn.Outbound():
			if !ok {
				ws.SetWriteDeadline(time.Now().Add(writeWait))
				ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteJSON(msg); err != nil {
				m.Unregister(conn)
				return
			}
		case <-ticker.C:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				m.Unregister(conn)
				return
			}
		}
	}
}

func errorMessage(detail, workflowID string) models.ServerMessage {
	msg, _ := models.NewServerMessage(models.MessageSystemNotification, workflowID, models.NotificationPayload{
		Title:    "error",
		Body:     detail,
		Severity: models.SeverityWarning,
	})
	return msg
}
