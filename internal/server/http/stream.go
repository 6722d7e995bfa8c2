package httpapi

import (
	"bufio"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/and161185/access-sync/internal/convert"
)

// StatusStream pushes the job snapshot over a websocket every StreamInterval
// until the client goes away.
func (h *Handler) StatusStream(c *gin.Context) {
	conn, err := websocket.Accept(upgradeWriter(c.Writer), c.Request, nil)
	if err != nil {
		h.Log.Warn("ws accept", zap.Error(err))
		return
	}
	defer conn.CloseNow()

	ctx := conn.CloseRead(c.Request.Context())
	tick := time.NewTicker(h.StreamInterval)
	defer tick.Stop()

	for {
		jobs, err := h.Jobs.All(ctx)
		if err != nil {
			if ctx.Err() == nil {
				h.Log.Error("ws snapshot", zap.Error(err))
				conn.Close(websocket.StatusInternalError, "snapshot failed")
			}
			return
		}
		if err := wsjson.Write(ctx, conn, convert.ToJobViews(jobs)); err != nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
		}
	}
}

// ginUpgrader writes the 101 through the net/http writer and hijacks through gin,
// so gin sees an unwritten response at hijack time and a written one afterwards.
type ginUpgrader struct {
	http.ResponseWriter
	hj gin.ResponseWriter
}

func (u ginUpgrader) Hijack() (net.Conn, *bufio.ReadWriter, error) { return u.hj.Hijack() }

func upgradeWriter(w gin.ResponseWriter) http.ResponseWriter {
	raw, ok := w.(interface{ Unwrap() http.ResponseWriter })
	if !ok {
		return w
	}
	return ginUpgrader{ResponseWriter: raw.Unwrap(), hj: w}
}
