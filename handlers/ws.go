package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/olahol/melody"
	"go.uber.org/zap"

	"github.com/LovationAdmin/aldia-api/middleware"
	"github.com/LovationAdmin/aldia-api/services"
	"github.com/LovationAdmin/aldia-api/utils"
)

const sessionUserKey = "user_id"

// WSHandler pushes batch query progress to the owner's open websocket
// sessions. It implements services.ProgressReporter.
type WSHandler struct {
	M      *melody.Melody
	logger *zap.Logger
}

var _ services.ProgressReporter = (*WSHandler)(nil)

func NewWSHandler(logger *zap.Logger) *WSHandler {
	m := melody.New()
	m.Config.MaxMessageSize = 1024

	// Keep-alive for proxies that drop idle connections.
	m.Config.PingPeriod = 30 * time.Second
	m.Config.PongWait = 60 * time.Second

	h := &WSHandler{M: m, logger: logger.Named("ws")}

	m.HandleConnect(func(s *melody.Session) {
		userID, _ := s.Get(sessionUserKey)
		h.logger.Debug("Client connected", utils.OwnerField(asString(userID)))
	})
	m.HandleDisconnect(func(s *melody.Session) {
		userID, _ := s.Get(sessionUserKey)
		h.logger.Debug("Client disconnected", utils.OwnerField(asString(userID)))
	})
	m.HandleError(func(s *melody.Session, err error) {
		h.logger.Warn("WebSocket error", zap.Error(err))
	})

	return h
}

func asString(v interface{}) string {
	s, _ := v.(string)
	return s
}

// HandleWS upgrades an authenticated request.
// GET /ws/queries?token=...
func (h *WSHandler) HandleWS(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	keys := map[string]interface{}{sessionUserKey: userID}
	if err := h.M.HandleRequestWithKeys(c.Writer, c.Request, keys); err != nil {
		h.logger.Warn("Failed to upgrade websocket", zap.Error(err))
	}
}

type progressMessage struct {
	Type string                 `json:"type"`
	Data services.QueryProgress `json:"data"`
}

// ReportQuery sends one progress event to every session of ownerID. Raw page
// text and screenshots are not pushed.
func (h *WSHandler) ReportQuery(ownerID string, progress services.QueryProgress) {
	progress.Outcome.Result.RawText = ""
	progress.Outcome.Result.Screenshot = ""

	msg, err := json.Marshal(progressMessage{Type: "query_progress", Data: progress})
	if err != nil {
		h.logger.Error("Failed to encode progress", zap.Error(err))
		return
	}

	err = h.M.BroadcastFilter(msg, func(s *melody.Session) bool {
		id, exists := s.Get(sessionUserKey)
		return exists && id == ownerID
	})
	if err != nil {
		h.logger.Warn("Failed to broadcast progress", utils.OwnerField(ownerID), zap.Error(err))
	}
}

// Close disconnects every session.
func (h *WSHandler) Close() error {
	return h.M.Close()
}
