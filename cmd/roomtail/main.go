// Command roomtail follows a match room (or the caller's user stream) and
// prints every realtime event. Useful for watching the host drive a session.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
)

type event struct {
	Type    string          `json:"type"`
	RoomID  uint            `json:"room_id"`
	Payload json.RawMessage `json:"payload"`
}

func main() {
	host := flag.String("host", "localhost:8375", "API server host")
	token := flag.String("token", os.Getenv("KINDRED_TOKEN"), "Bearer token (see cmd/seed output)")
	matchID := flag.Uint("match", 0, "Match whose room to follow; 0 follows the user stream")
	typing := flag.Duration("typing", 0, "Send a typing hint at this interval (room streams only)")
	flag.Parse()

	if *token == "" {
		log.Fatal("a token is required: -token or KINDRED_TOKEN")
	}

	ticket, err := getTicket(*host, *token)
	if err != nil {
		log.Fatalf("❌ Ticket issuance failed: %v", err)
	}

	path := "/api/ws"
	if *matchID != 0 {
		path = fmt.Sprintf("/api/ws/rooms/%d", *matchID)
	}
	u := url.URL{Scheme: "ws", Host: *host, Path: path, RawQuery: "ticket=" + ticket}

	c, resp, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		log.Fatalf("❌ Dial %s failed (status %d): %v", path, status, err)
	}
	if resp != nil && resp.Body != nil {
		defer func() { _ = resp.Body.Close() }()
	}
	defer func() { _ = c.Close() }()
	log.Printf("✅ Following %s", path)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, raw, err := c.ReadMessage()
			if err != nil {
				log.Printf("connection closed: %v", err)
				return
			}
			printEvent(raw)
		}
	}()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	var tick <-chan time.Time
	if *typing > 0 && *matchID != 0 {
		ticker := time.NewTicker(*typing)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-done:
			return
		case <-tick:
			if err := c.WriteJSON(map[string]interface{}{"type": "typing", "is_typing": true}); err != nil {
				log.Printf("write failed: %v", err)
				return
			}
		case <-interrupt:
			_ = c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			select {
			case <-done:
			case <-time.After(time.Second):
			}
			return
		}
	}
}

func getTicket(host, token string) (string, error) {
	req, err := http.NewRequest(http.MethodPost, fmt.Sprintf("http://%s/api/ws/ticket", host), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("status %d", resp.StatusCode)
	}
	var result struct {
		Ticket string `json:"ticket"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	return result.Ticket, nil
}

func printEvent(raw []byte) {
	var ev event
	if err := json.Unmarshal(raw, &ev); err != nil {
		log.Printf("?? %s", raw)
		return
	}
	switch ev.Type {
	case "host_message":
		var msg struct {
			SenderType string `json:"sender_type"`
			Content    string `json:"content"`
			Metadata   struct {
				Kind  string `json:"kind"`
				Stage string `json:"stage"`
			} `json:"metadata"`
		}
		_ = json.Unmarshal(ev.Payload, &msg)
		log.Printf("💬 %s [%s/%s] %s", msg.SenderType, msg.Metadata.Stage, msg.Metadata.Kind, msg.Content)
	default:
		log.Printf("%-16s room=%d %s", ev.Type, ev.RoomID, ev.Payload)
	}
}
