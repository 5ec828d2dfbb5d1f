package achievements

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gofiber/fiber/v3"
	ws "github.com/saveblush/gofiber3-contrib/websocket"

	"achievement-sync/internal/logging"
	"achievement-sync/internal/progress"
	"achievement-sync/internal/refresh"
)

// StartRequest is the POST body for kicking off a refresh. All fields are
// optional; an empty body means a Recent refresh.
type StartRequest struct {
	GameIDs []string               `json:"game_ids,omitempty"`
	Mode    string                 `json:"mode,omitempty"`
	Custom  *refresh.CustomOptions `json:"custom,omitempty"`
}

// StartHandler kicks off a background refresh. If a run is already active the
// orchestrator re-emits its current status and we answer 409 with it.
func StartHandler(o *refresh.Orchestrator) fiber.Handler {
	return func(c fiber.Ctx) error {
		var req StartRequest
		if len(c.Body()) > 0 {
			if err := c.Bind().Body(&req); err != nil {
				return c.Status(400).JSON(fiber.Map{"error": "Invalid request body"})
			}
		}

		if o.IsRunning() {
			last, _ := o.LastProgress()
			return c.Status(409).JSON(fiber.Map{
				"started":  false,
				"error":    "A refresh is already running",
				"progress": last,
			})
		}

		// Fire-and-forget; progress is observed via /status, /stream or /ws.
		go o.ExecuteRefresh(context.Background(), refresh.Request{
			GameIDs: req.GameIDs,
			ModeKey: req.Mode,
			Custom:  req.Custom,
		})
		return c.JSON(fiber.Map{"started": true})
	}
}

// CancelHandler requests cooperative cancellation of the active run.
func CancelHandler(o *refresh.Orchestrator) fiber.Handler {
	return func(c fiber.Ctx) error {
		if !o.IsRunning() {
			return c.JSON(fiber.Map{"canceled": false, "running": false})
		}
		o.CancelCurrentRun()
		return c.JSON(fiber.Map{"canceled": true, "running": true})
	}
}

// StatusHandler returns the latest progress snapshot.
func StatusHandler(o *refresh.Orchestrator) fiber.Handler {
	return func(c fiber.Ctx) error {
		last, ok := o.LastProgress()
		return c.JSON(fiber.Map{
			"running":  o.IsRunning(),
			"can_run":  o.ValidateCanStartRefresh(),
			"progress": reportOrNil(last, ok),
		})
	}
}

// StreamHandler sends progress events over SSE until the run finishes.
func StreamHandler(o *refresh.Orchestrator) fiber.Handler {
	return func(c fiber.Ctx) error {
		logging.Debug("progress SSE subscriber connected")
		defer logging.Debug("progress SSE subscriber disconnected")
		c.Set("Content-Type", "text/event-stream")
		c.Set("Cache-Control", "no-cache")
		c.Set("Connection", "keep-alive")

		if _, err := c.Write([]byte("event: hello\ndata: {}\n\n")); err != nil {
			return nil
		}
		flush(c)

		reports := make(chan progress.Report, 16)
		unsubscribe := o.Reporter().Subscribe(func(rep progress.Report) {
			// Slow clients drop intermediate reports rather than block the run.
			select {
			case reports <- rep:
			default:
			}
		})
		defer unsubscribe()

		if last, ok := o.LastProgress(); ok {
			if !writeEvent(c, last) {
				return nil
			}
		}

		keepalive := time.NewTicker(15 * time.Second)
		defer keepalive.Stop()

		for {
			select {
			case rep := <-reports:
				if !writeEvent(c, rep) {
					return nil
				}
				if rep.Final() && !o.IsRunning() {
					return nil
				}
			case <-keepalive.C:
				if _, err := c.Write([]byte(": keepalive\n\n")); err != nil {
					return nil
				}
				flush(c)
			}
		}
	}
}

// WS returns a handler that upgrades to WebSocket and pushes progress reports
// as JSON frames for the lifetime of the connection.
func WS(o *refresh.Orchestrator) fiber.Handler {
	return ws.New(func(conn *ws.Conn) {
		defer conn.Close()

		reports := make(chan progress.Report, 16)
		unsubscribe := o.Reporter().Subscribe(func(rep progress.Report) {
			select {
			case reports <- rep:
			default:
			}
		})
		defer unsubscribe()

		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		if last, ok := o.LastProgress(); ok {
			if err := conn.WriteJSON(last); err != nil {
				return
			}
		}

		for {
			select {
			case rep := <-reports:
				if err := conn.WriteJSON(rep); err != nil {
					return
				}
			case <-done:
				return
			}
		}
	})
}

func writeEvent(c fiber.Ctx, rep progress.Report) bool {
	payload, err := json.Marshal(rep)
	if err != nil {
		return true
	}
	if _, err := c.Write([]byte("event: progress\ndata: " + string(payload) + "\n\n")); err != nil {
		return false
	}
	flush(c)
	return true
}

func flush(c fiber.Ctx) {
	if f, ok := c.Response().BodyWriter().(interface{ Flush() error }); ok {
		_ = f.Flush()
	}
}

func reportOrNil(rep progress.Report, ok bool) any {
	if !ok {
		return nil
	}
	return rep
}
