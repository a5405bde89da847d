package commands

import (
	"errors"
	"fmt"
	"net"
	"time"

	"agenticdebugger/internal/models"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
)

var WatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print debugger state changes as they happen",
	Long: `Subscribes to the primary's state stream and prints one line per
change. Stops after --count messages, or on Ctrl+C.`,
	RunE: runWatch,
}

func init() {
	addConnectionFlags(WatchCmd.Flags())
	WatchCmd.Flags().Int("count", 0, "Stop after this many state changes (0 runs until interrupted)")
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd.Flags())
	if err != nil {
		return err
	}
	client, err := newBridgeClient(cfg)
	if err != nil {
		return err
	}
	limit, _ := cmd.Flags().GetInt("count")

	target, err := client.streamURL()
	if err != nil {
		return err
	}
	dialer := websocket.Dialer{HandshakeTimeout: client.timeout}
	conn, _, err := dialer.DialContext(cmd.Context(), target, nil)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", client.info.BaseURL, err)
	}
	defer conn.Close()

	// unblock ReadJSON when the command is interrupted
	go func() {
		<-cmd.Context().Done()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		_ = conn.Close()
	}()

	seen := 0
	for limit == 0 || seen < limit {
		var msg models.StreamMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) ||
				errors.Is(err, net.ErrClosed) || cmd.Context().Err() != nil {
				return nil
			}
			return fmt.Errorf("stream: %w", err)
		}

		switch msg.Type {
		case models.StreamConnected:
			fmt.Printf("🔌 Connected as %s\n", msg.ConnectionID)
			if msg.Snapshot != nil {
				printSnapshot(msg.Timestamp, *msg.Snapshot)
			}
		case models.StreamStateChange:
			if msg.Snapshot != nil {
				printSnapshot(msg.Timestamp, *msg.Snapshot)
			}
			seen++
		}
	}
	return nil
}

func printSnapshot(at time.Time, snap models.Snapshot) {
	line := fmt.Sprintf("%s  %-8s", at.Local().Format("15:04:05"), snap.Mode)
	if snap.File != "" {
		line += fmt.Sprintf("  %s:%d", snap.File, snap.Line)
	}
	if snap.Exception != "" {
		line += "  ⚠️ " + snap.Exception
	}
	if snap.Notes != "" {
		line += "  (" + snap.Notes + ")"
	}
	fmt.Println(line)
}
