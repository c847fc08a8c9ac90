package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/hitoshi/bidman/internal/broadcast"
	"github.com/hitoshi/bidman/internal/lifecycle"
	"github.com/hitoshi/bidman/internal/model"
)

const (
	// writeWait はWebSocket書き込みのタイムアウト。
	writeWait = 10 * time.Second
	// pongWait はpong応答の待機時間。これを超えると切断とみなす。
	pongWait = 60 * time.Second
	// pingPeriod はping送信間隔。pongWaitより短くなければならない。
	pingPeriod = (pongWait * 9) / 10
)

// SnapshotReaderInterface はストリームハンドラーが初期スナップショット取得に使うインターフェース。
type SnapshotReaderInterface interface {
	GetSnapshot(ctx context.Context, auctionID string) (*model.AuctionSnapshot, *lifecycle.Labels, error)
}

// StreamHandler はオークションスナップショットのWebSocket配信ハンドラー。
//
// 接続ごとにHubを購読し、versionが単調増加するスナップショットのみを配信する。
// 購読開始後に初期スナップショットを送ることで、購読とのすき間での更新を取りこぼさない。
type StreamHandler struct {
	hub      *broadcast.Hub
	reader   SnapshotReaderInterface
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// NewStreamHandler はStreamHandlerを生成する。
// allowedOriginが空の場合は全オリジンを許可する。
func NewStreamHandler(hub *broadcast.Hub, reader SnapshotReaderInterface, logger *slog.Logger, allowedOrigin string) *StreamHandler {
	return &StreamHandler{
		hub:    hub,
		reader: reader,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if allowedOrigin == "" {
					return true
				}
				return r.Header.Get("Origin") == allowedOrigin
			},
		},
	}
}

// Stream はWebSocket接続を確立してスナップショットを配信する。
// GET /api/auctions/{id}/stream
func (h *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	auctionID := chi.URLParam(r, "id")

	// 購読を開始してから初期スナップショットを読むことで、そのすき間の
	// 更新を取りこぼさない。重複はVersionGateが破棄する
	ch, cancel := h.hub.Subscribe(auctionID)
	defer cancel()

	snap, _, err := h.reader.GetSnapshot(r.Context(), auctionID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgradeは失敗時に自身でエラーレスポンスを書き込む
		h.logger.Warn("websocket upgrade failed",
			slog.String("auction_id", auctionID),
			slog.String("error", err.Error()),
		)
		return
	}

	h.logger.Info("stream connected",
		slog.String("auction_id", auctionID),
		slog.String("remote_addr", conn.RemoteAddr().String()),
	)

	done := make(chan struct{})
	go h.readPump(conn, done)
	h.writePump(conn, ch, snap, done)

	h.logger.Info("stream disconnected", slog.String("auction_id", auctionID))
}

// readPump はクライアントからの受信を読み捨て、切断を検知する。
func (h *StreamHandler) readPump(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)

	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump はスナップショットとpingをクライアントへ書き込む。
func (h *StreamHandler) writePump(conn *websocket.Conn, ch <-chan *model.AuctionSnapshot, initial *model.AuctionSnapshot, done <-chan struct{}) {
	defer conn.Close()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	var gate broadcast.VersionGate

	if err := h.writeSnapshot(conn, &gate, initial); err != nil {
		return
	}

	for {
		select {
		case snap, ok := <-ch:
			if !ok {
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := h.writeSnapshot(conn, &gate, snap); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

// writeSnapshot はversionが前回より増加している場合のみスナップショットを書き込む。
func (h *StreamHandler) writeSnapshot(conn *websocket.Conn, gate *broadcast.VersionGate, snap *model.AuctionSnapshot) error {
	if !gate.Admit(snap) {
		return nil
	}

	payload, err := json.Marshal(snap)
	if err != nil {
		return err
	}

	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, payload)
}
