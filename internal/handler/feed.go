package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"k8s.io/klog/v2"

	"github.com/aimd-lab/director/dao/model"
	"github.com/aimd-lab/director/pkg/workflow"
)

//nolint:gochecknoinits // This is the standard way to register a gin handler.
func init() {
	Registers = append(Registers, NewFeedMgr)
}

const (
	feedWriteWait  = 10 * time.Second
	feedPingPeriod = 30 * time.Second
)

// FeedMgr streams approval events to the dashboard over a websocket, so
// the activity feed updates without polling.
type FeedMgr struct {
	name     string
	fanout   *workflow.Fanout
	upgrader websocket.Upgrader
}

func NewFeedMgr(conf *RegisterConfig) Manager {
	return &FeedMgr{
		name:   "feed",
		fanout: conf.Fanout,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Token auth already ran in middleware; the browser origin is
			// checked by the CORS layer.
			CheckOrigin: func(_ *http.Request) bool { return true },
		},
	}
}

func (mgr *FeedMgr) GetName() string { return mgr.name }

func (mgr *FeedMgr) RegisterPublic(_ *gin.RouterGroup) {}

func (mgr *FeedMgr) RegisterProtected(g *gin.RouterGroup) {
	g.GET("/ws", mgr.Stream)
}

func (mgr *FeedMgr) RegisterAdmin(_ *gin.RouterGroup) {}

type FeedEvent struct {
	UID       string             `json:"uid"`
	Kind      model.EventKind    `json:"kind"`
	RequestID uint               `json:"requestID"`
	StageID   *uint              `json:"stageID,omitempty"`
	ActorID   uint               `json:"actorID"`
	Occurred  time.Time          `json:"occurred"`
	Payload   model.EventPayload `json:"payload"`
}

// Stream godoc
//
//	@Summary		审批动态推送
//	@Description	升级为 websocket 连接，实时推送审批事件
//	@Tags			feed
//	@Security		Bearer
//	@Success		101	"协议切换"
//	@Router			/v1/feed/ws [get]
func (mgr *FeedMgr) Stream(c *gin.Context) {
	conn, err := mgr.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		klog.Errorf("feed websocket upgrade: %v", err)
		return
	}
	defer conn.Close()

	events, cancel := mgr.fanout.Subscribe()
	defer cancel()

	// Read pump: discard client messages, notice the close handshake.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(feedPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case evt, ok := <-events:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(feedWriteWait))
			if err := conn.WriteJSON(FeedEvent{
				UID:       evt.UID,
				Kind:      evt.Kind,
				RequestID: evt.RequestID,
				StageID:   evt.StageID,
				ActorID:   evt.ActorID,
				Occurred:  evt.Occurred,
				Payload:   evt.Payload.Data(),
			}); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(feedWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
