package api

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/reactoryard/internal/pkt"
)

// Poll and heartbeat intervals for the event stream.
var (
	ssePollInterval      = 2 * time.Second
	sseHeartbeatInterval = 15 * time.Second
)

// sseBatch caps how many events one poll forwards.
const sseBatch = 100

// handleSSE streams transaction events as they are committed. Clients that
// pass ?after=<id> resume from that event; otherwise only new events are
// sent.
func handleSSE(eng *pkt.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		lastSeenID, err := queryUint(c, "after")
		if err != nil {
			badRequest(c, err)
			return
		}
		if c.Query("after") == "" {
			if lastSeenID, err = eng.LastEventID(ctx); err != nil {
				writeError(c, err)
				return
			}
		}

		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Header("X-Accel-Buffering", "no")

		writeSSE(c.Writer, "connected", map[string]any{"type": "connected", "last_event_id": lastSeenID})
		c.Writer.Flush()

		ticker := time.NewTicker(ssePollInterval)
		heartbeat := time.NewTicker(sseHeartbeatInterval)
		defer ticker.Stop()
		defer heartbeat.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-heartbeat.C:
				writeSSE(c.Writer, "heartbeat", map[string]string{
					"timestamp": time.Now().UTC().Format(time.RFC3339),
				})
				c.Writer.Flush()
			case <-ticker.C:
				events, err := eng.EventsAfter(ctx, lastSeenID, sseBatch)
				if err != nil || len(events) == 0 {
					continue
				}
				for _, ev := range events {
					writeSSE(c.Writer, "transition", toEventView(ev))
				}
				lastSeenID = events[len(events)-1].ID
				c.Writer.Flush()
			}
		}
	}
}

// writeSSE writes a single SSE event to the writer.
func writeSSE(w io.Writer, event string, data any) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, string(jsonData))
}
