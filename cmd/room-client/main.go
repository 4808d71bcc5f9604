package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"streamroom/internal/domain"
	"streamroom/internal/session"
)

func main() {
	serverAddr := flag.String("server", "localhost:8080", "room server host:port")
	room := flag.String("room", "lobby", "room to join")
	user := flag.String("user", "", "user id (required)")
	name := flag.String("name", "", "display name (defaults to user id)")
	flag.Parse()

	if *user == "" {
		fmt.Fprintln(os.Stderr, "usage: room-client -user <id> [-server host:port] [-room name] [-name display]")
		os.Exit(1)
	}
	if *name == "" {
		*name = *user
	}

	wsURL := fmt.Sprintf("ws://%s/ws/rooms/%s?user_id=%s&name=%s",
		*serverAddr, url.PathEscape(*room), url.QueryEscape(*user), url.QueryEscape(*name))

	sess := session.New(session.WebsocketDialer(wsURL),
		session.WithEventObserver(printEvent))
	sess.Start()
	defer sess.Close()

	go heartbeatLoop(sess)

	fmt.Printf("joined %s as %s, type a message and press enter (ctrl-c to quit)\n", *room, *user)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	inputDone := make(chan struct{})
	go func() {
		defer close(inputDone)
		readInput(*serverAddr, *room, *user, sess)
	}()

	select {
	case <-sigChan:
	case <-inputDone:
	}

	sess.Close()
	fmt.Println("\nbye")
}

func heartbeatLoop(sess *session.Session) {
	ticker := time.NewTicker(20 * time.Second)
	defer ticker.Stop()
	for range ticker.C {
		if sess.State() == session.StateClosed {
			return
		}
		_ = sess.Heartbeat()
	}
}

// readInput posts each stdin line as a message and streams the reply to
// stdout. The websocket session prints everything else as it arrives.
func readInput(serverAddr, room, user string, sess *session.Session) {
	submitURL := fmt.Sprintf("http://%s/api/v1/rooms/%s/messages", serverAddr, url.PathEscape(room))
	client := &http.Client{}

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		_ = sess.SendTyping(false)

		body, _ := json.Marshal(map[string]string{
			"sender_id": user,
			"content":   line,
		})
		resp, err := client.Post(submitURL, "application/json", bytes.NewReader(body))
		if err != nil {
			fmt.Fprintf(os.Stderr, "send failed: %v\n", err)
			continue
		}
		if resp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			fmt.Fprintf(os.Stderr, "send rejected (%d): %s\n", resp.StatusCode, strings.TrimSpace(string(b)))
			continue
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}
}

func printEvent(eventType string, data []byte) {
	switch eventType {
	case domain.EventToken:
		var ev domain.TokenEvent
		if json.Unmarshal(data, &ev) == nil {
			fmt.Print(ev.Delta)
		}
	case domain.EventDone:
		fmt.Println()
	case domain.EventUserMessage:
		var ev domain.UserMessageEvent
		if json.Unmarshal(data, &ev) == nil {
			fmt.Printf("[%s] %s\n", ev.SenderID, ev.Content)
		}
	case domain.EventAssistantMessage:
		// Content already streamed token by token.
	case domain.EventTyping:
		var ev domain.TypingEvent
		if json.Unmarshal(data, &ev) == nil && ev.IsTyping {
			fmt.Printf("* %s is typing\n", ev.UserID)
		}
	case domain.EventPresence:
		var ev domain.PresenceEvent
		if json.Unmarshal(data, &ev) == nil {
			names := make([]string, 0, len(ev.Users))
			for _, u := range ev.Users {
				names = append(names, u.Name)
			}
			fmt.Printf("* online: %s\n", strings.Join(names, ", "))
		}
	case domain.EventError:
		var ev domain.ErrorEvent
		if json.Unmarshal(data, &ev) == nil {
			fmt.Fprintf(os.Stderr, "! %s\n", ev.Message)
		}
	}
}
