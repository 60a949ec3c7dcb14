package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/wirechat-relay/internal/proto"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_chat: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "ws://localhost:5050/ws", "WebSocket address")
	user := flag.String("user", "cli-user", "username")
	room := flag.String("room", "general", "room to join")
	account := flag.String("account", "", "account id used to persist messages")
	flag.Parse()

	baseCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()

	target := *addr + "?username=" + url.QueryEscape(*user)
	conn, _, err := websocket.Dial(ctx, target, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	if err := send(ctx, conn, proto.InboundTypeJoin, proto.JoinData{Room: *room}); err != nil {
		return err
	}

	fmt.Printf("Connected to %s as %s in room %s\n", *addr, *user, *room)
	fmt.Println("Type messages and press Enter to send. /status <online|away|busy>, /who, /history. Ctrl+C to exit.")

	go func() {
		defer cancel()
		readLoop(ctx, conn)
	}()

	writeLoop(ctx, conn, *room, *account)

	stop()
	cancel()
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
	return nil
}

func send(ctx context.Context, conn *websocket.Conn, typ string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", typ, err)
	}
	if err := wsjson.Write(ctx, conn, proto.Inbound{Type: typ, Data: payload}); err != nil {
		return fmt.Errorf("send %s: %w", typ, err)
	}
	return nil
}

type frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		var in frame
		if err := wsjson.Read(ctx, conn, &in); err != nil {
			// Treat expected shutdowns quietly.
			if errors.Is(err, context.Canceled) {
				return
			}
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return
			}
			log.Printf("read error: %v", err)
			return
		}

		if err := render(in); err != nil {
			log.Printf("decode %s: %v", in.Type, err)
		}
	}
}

func render(in frame) error {
	switch in.Type {
	case proto.OutboundTypeMessageReceived, proto.OutboundTypeMessageSent:
		var msg proto.Message
		if err := json.Unmarshal(in.Data, &msg); err != nil {
			return err
		}
		fmt.Printf("%s %s: %s\n", msg.Timestamp, msg.Sender.Name, msg.Content)
	case proto.OutboundTypeJoinSuccess:
		var evt proto.JoinSuccess
		if err := json.Unmarshal(in.Data, &evt); err != nil {
			return err
		}
		fmt.Println(evt.Message)
		for _, msg := range evt.History {
			fmt.Printf("%s %s: %s\n", msg.Timestamp, msg.Sender.Name, msg.Content)
		}
	case proto.OutboundTypeUserJoined, proto.OutboundTypeUserLeft:
		var evt proto.Presence
		if err := json.Unmarshal(in.Data, &evt); err != nil {
			return err
		}
		fmt.Printf("[room %s] %s\n", evt.RoomID, evt.Message)
	case proto.OutboundTypeParticipants:
		var evt proto.ParticipantsList
		if err := json.Unmarshal(in.Data, &evt); err != nil {
			return err
		}
		for _, p := range evt.Participants {
			fmt.Printf("  %s (%s)\n", p.Name, p.Status)
		}
	case proto.OutboundTypeHistory:
		var evt proto.History
		if err := json.Unmarshal(in.Data, &evt); err != nil {
			return err
		}
		for _, msg := range evt.Messages {
			fmt.Printf("%s %s: %s\n", msg.Timestamp, msg.Sender.Name, msg.Content)
		}
	case proto.OutboundTypeStatusUpdated:
		var evt proto.StatusUpdated
		if err := json.Unmarshal(in.Data, &evt); err != nil {
			return err
		}
		fmt.Printf("[room %s] %s is now %s\n", evt.RoomID, evt.Username, evt.NewStatus)
	case proto.OutboundTypeError:
		var perr proto.Error
		if err := json.Unmarshal(in.Data, &perr); err != nil {
			return err
		}
		fmt.Printf("error (%s): %s\n", perr.Code, perr.Message)
	default:
		fmt.Printf("%s %s\n", in.Type, in.Data)
	}
	return nil
}

func writeLoop(ctx context.Context, conn *websocket.Conn, room, account string) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			text := strings.TrimSpace(line)
			if text == "" {
				continue
			}

			var err error
			switch {
			case strings.HasPrefix(text, "/status "):
				err = send(ctx, conn, proto.InboundTypeUpdateStatus, proto.StatusData{Status: strings.TrimPrefix(text, "/status ")})
			case text == "/who":
				err = send(ctx, conn, proto.InboundTypeGetParticipants, proto.RoomData{Room: room})
			case text == "/history":
				err = send(ctx, conn, proto.InboundTypeGetHistory, proto.RoomData{Room: room})
			default:
				err = send(ctx, conn, proto.InboundTypeMessage, proto.MessageData{Room: room, Message: text, UserDBID: account})
			}
			if err != nil {
				log.Printf("send error: %v", err)
				return
			}
		}
	}
}
