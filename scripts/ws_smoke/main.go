package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/storyhub/internal/proto"
)

// received leaves the payload raw so each event can be decoded by name.
type received struct {
	Type      string          `json:"type"`
	Event     string          `json:"event"`
	RequestID string          `json:"request_id"`
	Data      json.RawMessage `json:"data"`
	Error     *proto.Error    `json:"error"`
}

func main() {
	if err := run(); err != nil {
		log.Printf("ws_smoke: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "ws://localhost:8080/ws", "WebSocket address")
	token := flag.String("token", "", "bearer credential (see `storyhub token`)")
	story := flag.String("story", "", "story id to join")
	comment := flag.String("comment", "", "comment to post after joining (mentors and admins)")
	timeout := flag.Duration("timeout", 5*time.Second, "total timeout for the run")
	flag.Parse()

	if *token == "" || *story == "" {
		return fmt.Errorf("-token and -story are required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+*token)
	conn, resp, err := websocket.Dial(ctx, *addr, &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial: %s: %w", resp.Status, err)
		}
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	send := func(typ, requestID string, data any) error {
		payload, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", typ, err)
		}
		if err := wsjson.Write(ctx, conn, proto.Inbound{Type: typ, RequestID: requestID, Data: payload}); err != nil {
			return fmt.Errorf("send %s: %w", typ, err)
		}
		return nil
	}

	if err := send(proto.InboundTypeJoin, "smoke-join", proto.RoomData{StoryID: *story}); err != nil {
		return err
	}

	for {
		var msg received
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			return fmt.Errorf("read: %w", err)
		}

		if msg.Type == proto.OutboundTypeError {
			if msg.Error == nil {
				return fmt.Errorf("error for %q", msg.RequestID)
			}
			return fmt.Errorf("%s for %q: %s %v", msg.Error.Code, msg.RequestID, msg.Error.Msg, msg.Error.Reasons)
		}
		fmt.Printf("event=%s request_id=%s data=%s\n", msg.Event, msg.RequestID, msg.Data)

		switch {
		case msg.Event == "room_snapshot" && msg.RequestID == "smoke-join":
			if *comment == "" {
				return nil
			}
			if err := send(proto.InboundTypeComment, "smoke-comment", proto.CommentData{StoryID: *story, Content: *comment}); err != nil {
				return err
			}
		case msg.Event == "new_comment" && msg.RequestID == "smoke-comment":
			return nil
		}
	}
}
