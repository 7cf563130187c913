package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/AdamBeresnev/dojo-brackets/internal/httputil"
	"github.com/AdamBeresnev/dojo-brackets/internal/service"
	"github.com/gorilla/websocket"
)

const streamWriteWait = 10 * time.Second

// generateStream starts a generation run and relays its events over a websocket. Errors that stop
// the run from starting are answered as plain HTTP before the upgrade.
func (app *application) generateStream(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	run, err := app.generation.Start(r.Context(), id, generateOptions(r))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	conn, err := app.upgrader.Upgrade(w, r, nil)
	if err != nil {
		app.logger.Warn("generation stream upgrade failed, run continues unobserved", "run_id", run.ID, "error", err)
		return
	}
	defer conn.Close()

	app.relay(conn, run)
}

func (app *application) relay(conn *websocket.Conn, run *service.Run) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The observer never sends anything; reading only tells us when it leaves
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	reader := run.Stream.Reader()
	for {
		event, err := reader.Next(ctx)
		if errors.Is(err, io.EOF) {
			if err := finishStream(conn); err != nil {
				app.logger.Debug("generation stream close frame not sent", "run_id", run.ID, "error", err)
			}
			return
		}
		if err != nil {
			app.logger.Info("generation observer left", "run_id", run.ID)
			return
		}

		if err := conn.SetWriteDeadline(time.Now().Add(streamWriteWait)); err != nil {
			app.logger.Debug("generation stream write deadline", "run_id", run.ID, "error", err)
			return
		}
		if err := conn.WriteJSON(event); err != nil {
			app.logger.Info("generation observer left", "run_id", run.ID, "error", err)
			return
		}
	}
}

// finishStream tells the observer the run is over with a normal close frame.
func finishStream(conn *websocket.Conn) error {
	if err := conn.SetWriteDeadline(time.Now().Add(streamWriteWait)); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "generation finished"))
}
