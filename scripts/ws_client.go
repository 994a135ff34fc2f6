// Package main runs a demo WebSocket client for optimization events. It
// queues the request file given as the first argument, or only follows the
// problem id given with -id, and prints events until the problem completes.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"
)

type event struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	ProblemID string          `json:"problemId"`
	Time      time.Time       `json:"time"`
	Detail    json.RawMessage `json:"detail"`
}

func main() {
	host := flag.String("host", "localhost:8080", "API host:port")
	id := flag.String("id", "", "follow this problem id instead of queuing a request")
	wait := flag.Duration("wait", 10*time.Minute, "give up after this long")
	flag.Parse()

	problemID := *id
	var body []byte
	if problemID == "" {
		if flag.NArg() != 1 {
			log.Fatal("usage: ws_client [-host h:p] (-id problemId | request.json)")
		}
		var err error
		body, err = os.ReadFile(flag.Arg(0))
		if err != nil {
			log.Fatal(err)
		}
		var head struct {
			ProblemID string `json:"problemId"`
		}
		if err := json.Unmarshal(body, &head); err != nil || head.ProblemID == "" {
			log.Fatal("request file needs a problemId")
		}
		problemID = head.ProblemID
	}

	// Subscribe before queuing so no event is missed.
	u := url.URL{Scheme: "ws", Host: *host, Path: "/v1/problems/" + url.PathEscape(problemID) + "/events"}
	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer func() { _ = c.Close() }()

	if body != nil {
		resp, err := http.Post(fmt.Sprintf("http://%s/v1/problems", *host), "application/json", bytes.NewReader(body))
		if err != nil {
			log.Fatal(err)
		}
		_ = resp.Body.Close()
		if resp.StatusCode != http.StatusAccepted {
			log.Fatalf("enqueue: %s", resp.Status)
		}
		log.Printf("queued %s", problemID)
	}

	_ = c.SetReadDeadline(time.Now().Add(*wait))
	for {
		var e event
		if err := c.ReadJSON(&e); err != nil {
			log.Fatalf("read: %v", err)
		}
		log.Printf("WS <- %s %s: %s", e.Time.Format(time.RFC3339), e.Type, string(e.Detail))
		switch e.Type {
		case "OPTIMIZATION_COMPLETED", "OPTIMIZATION_ERROR":
			return
		}
	}
}
