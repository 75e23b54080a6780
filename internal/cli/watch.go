package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/xiaot623/thirdeye/internal/domain"
)

var watchCmd = &cobra.Command{
	Use:   "watch [session]",
	Short: "Stream live events, for one session or globally",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sessionID := ""
		if len(args) == 1 {
			sessionID = args[0]
		}
		addr, err := newClient().WebSocketURL(sessionID)
		if err != nil {
			return err
		}

		conn, _, err := websocket.DefaultDialer.DialContext(cmd.Context(), addr, nil)
		if err != nil {
			return fmt.Errorf("dial: %w", err)
		}
		defer conn.Close()

		interrupt := make(chan os.Signal, 1)
		signal.Notify(interrupt, os.Interrupt)
		defer signal.Stop(interrupt)

		var stopped atomic.Bool
		done := make(chan struct{})
		defer close(done)
		go func() {
			select {
			case <-interrupt:
			case <-cmd.Context().Done():
			case <-done:
				return
			}
			stopped.Store(true)
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			conn.Close()
		}()

		w := cmd.OutOrStdout()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				if stopped.Load() || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					return nil
				}
				return fmt.Errorf("read: %w", err)
			}

			if jsonOutput(cmd) {
				fmt.Fprintln(w, string(data))
				continue
			}
			var msg domain.BroadcastMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				continue
			}
			ts := time.UnixMilli(msg.Timestamp).Format("15:04:05")
			if msg.SessionID != "" {
				fmt.Fprintf(w, "%s [%s] %s\n", ts, msg.SessionID, msg.Type)
			} else {
				fmt.Fprintf(w, "%s %s\n", ts, msg.Type)
			}
		}
	},
}
