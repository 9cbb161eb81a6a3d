package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/gorilla/websocket"

	"mlm_shop/internal/service"
)

// Smoke client for the order log feed: connects, waits for the ready
// handshake, then prints entries until the timeout.
func main() {
	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		log.Fatal("JWT_SECRET not set")
	}

	port := os.Getenv("APP_PORT")
	if port == "" {
		port = "8080"
	}

	orderID := flag.Int64("order", 1, "order id to follow")
	watch := flag.Duration("watch", 10*time.Second, "how long to listen")
	flag.Parse()

	service.InitJWT()
	token, err := service.GenerateAdminJWT(1)
	if err != nil {
		log.Fatalf("gen token: %v", err)
	}

	// use 127.0.0.1 to prefer IPv4 (avoid resolving to [::1])
	wsURL := fmt.Sprintf("ws://127.0.0.1:%s/ws/orders/%d/log?token=%s", port, *orderID, token)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		log.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// wait for ready handshake
	ready := false
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		conn.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			continue
		}
		var obj map[string]any
		_ = json.Unmarshal(msg, &obj)
		if t, ok := obj["type"].(string); ok && t == "ready" {
			ready = true
			break
		}
	}
	if !ready {
		log.Fatal("no ready handshake")
	}

	log.Printf("following order %d", *orderID)
	end := time.Now().Add(*watch)
	for time.Now().Before(end) {
		conn.SetReadDeadline(end)
		_, msg, err := conn.ReadMessage()
		if err != nil {
			break
		}
		log.Printf("entry: %s", string(msg))
	}

	log.Println("smoke test finished")
}
