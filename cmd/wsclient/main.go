// Command wsclient is a simple WebSocket test client for scanlink.
//
// Device mode connects as a device and prints everything the host sends:
//
//	go run ./cmd/wsclient device ws://127.0.0.1:7080 [device-id]
//
// Scan mode claims a device the way a scanning app would:
//
//	go run ./cmd/wsclient scan ws://127.0.0.1:7080 <device-id>
//
// In either mode, typing a line on stdin sends it as an alias request.
package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

func main() {
	if len(os.Args) < 3 {
		fmt.Fprintln(os.Stderr, "Usage: wsclient <device|scan> <ws-url> [device-id]")
		os.Exit(1)
	}
	mode, base := os.Args[1], os.Args[2]

	var url string
	dialer := *websocket.DefaultDialer

	switch mode {
	case "device":
		did := uuid.NewString()
		if len(os.Args) > 3 {
			did = os.Args[3]
		}
		url = base + "/ws/connect"
		dialer.Subprotocols = []string{did}
		fmt.Printf("Connecting as device %s...\n", did)

	case "scan":
		if len(os.Args) < 4 {
			fmt.Fprintln(os.Stderr, "Usage: wsclient scan <ws-url> <device-id>")
			os.Exit(1)
		}
		url = base + "/ws/connect/scan/" + os.Args[3]
		fmt.Printf("Scanning device %s...\n", os.Args[3])

	default:
		fmt.Fprintf(os.Stderr, "Unknown mode: %s\n", mode)
		os.Exit(1)
	}

	conn, _, err := dialer.Dial(url, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer conn.Close()

	fmt.Println("Connected! Type an alias and press enter to claim it.")

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	done := make(chan struct{})
	messageCount := 0

	go func() {
		defer close(done)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					fmt.Printf("Read error: %v\n", err)
				}
				return
			}

			messageCount++

			var msg map[string]interface{}
			if err := json.Unmarshal(data, &msg); err != nil {
				fmt.Printf("[%d] Raw: %s\n", messageCount, string(data))
				continue
			}

			event, _ := msg["event"].(string)
			status, _ := msg["status"].(bool)
			message, _ := msg["message"].(string)
			fmt.Printf("[%d] event=%s status=%v message=%q", messageCount, event, status, message)
			if payload, ok := msg["data"].(map[string]interface{}); ok {
				fmt.Printf(" data=%v", payload)
			}
			fmt.Println()
		}
	}()

	// Forward stdin lines as alias requests.
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			payload, _ := json.Marshal(map[string]string{"alias": scanner.Text()})
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		}
	}()

	select {
	case <-done:
		fmt.Println("Connection closed")
	case <-interrupt:
		fmt.Println("Interrupted")
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		select {
		case <-done:
		case <-time.After(time.Second):
		}
	}

	fmt.Printf("Total messages received: %d\n", messageCount)
}
