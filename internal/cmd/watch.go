package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/Iron-Ham/todohub/internal/collab"
	"github.com/Iron-Ham/todohub/internal/store"
)

var watchCmd = &cobra.Command{
	Use:   "watch <collection-key>",
	Short: "Follow a collection's live events",
	Long: `Join a collection over the websocket endpoint and print presence, lock
and todo events as they arrive. Useful for checking a deployment or
debugging a client.

Example:
  todohub watch 01hx3k... --url ws://localhost:3000/ws --token "$(todohub token --name ops)"`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

var (
	watchURL   string
	watchToken string
)

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().StringVar(&watchURL, "url", "ws://localhost:3000/ws", "websocket endpoint")
	watchCmd.Flags().StringVar(&watchToken, "token", "", "bearer credential (or TODOHUB_TOKEN)")
}

func runWatch(cmd *cobra.Command, args []string) error {
	token := watchToken
	if token == "" {
		token = os.Getenv("TODOHUB_TOKEN")
	}
	if token == "" {
		return fmt.Errorf("a credential is required: pass --token or set TODOHUB_TOKEN")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	return watchCollection(ctx, watchURL, token, args[0], out, paletteFor(out))
}

// watchCollection dials endpoint, joins key and prints every event until
// ctx is done or the server closes the connection.
func watchCollection(ctx context.Context, endpoint, token, key string, out io.Writer, p palette) error {
	u, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("connect to %s: %s", endpoint, resp.Status)
		}
		return fmt.Errorf("connect to %s: %w", endpoint, err)
	}
	defer func() { _ = conn.Close() }()

	join, err := json.Marshal(map[string]string{"type": collab.TypeJoinCollection, "collectionKey": key})
	if err != nil {
		return err
	}
	if err := conn.WriteMessage(websocket.TextMessage, join); err != nil {
		return fmt.Errorf("join %s: %w", key, err)
	}
	fmt.Fprintln(out, p.muted.Render("joined "+key+" (Ctrl+C to stop)"))

	go func() {
		<-ctx.Done()
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		_ = conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}
		fmt.Fprintln(out, p.fit(formatEvent(data, time.Now(), p)))
	}
}

const maxTodoText = 60

// wireEvent is the union of every server message shape.
type wireEvent struct {
	Type   string            `json:"type"`
	Users  []string          `json:"users"`
	Locks  map[string]string `json:"locks"`
	Todo   *store.TodoView   `json:"todo"`
	Action string            `json:"action"`
}

// formatEvent renders one server message as a single line.
func formatEvent(data []byte, at time.Time, p palette) string {
	stamp := p.muted.Render(at.Format("15:04:05"))

	var ev wireEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return stamp + " " + string(data)
	}

	var body string
	switch ev.Type {
	case collab.TypeActiveUsersUpdated:
		body = "present: " + strings.Join(ev.Users, ", ")
		if len(ev.Users) == 0 {
			body = "present: (nobody)"
		}
	case collab.TypeLocksUpdated:
		if len(ev.Locks) == 0 {
			body = "locks: (none)"
			break
		}
		ids := make([]string, 0, len(ev.Locks))
		for id := range ev.Locks {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		parts := make([]string, len(ids))
		for i, id := range ids {
			parts[i] = id + " by " + ev.Locks[id]
		}
		body = "locks: " + strings.Join(parts, ", ")
	case collab.TypeTodoUpdated:
		if ev.Todo == nil {
			body = ev.Action + " (no todo)"
			break
		}
		body = fmt.Sprintf("%s %s [%s] %q assigned to %s",
			p.success.Render(ev.Action), ev.Todo.ID, p.status(ev.Todo.Status), truncate(ev.Todo.Text, maxTodoText), ev.Todo.AssignedTo.Name)
	default:
		body = string(data)
	}
	return fmt.Sprintf("%s %s %s", stamp, p.accent.Render(ev.Type), body)
}
