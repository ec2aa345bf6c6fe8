// Patter CLI - Command line client for Patter
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/patter-chat/patter/clients/go/patter"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	baseURL := os.Getenv("PATTER_URL")
	client := patter.NewClient(baseURL)
	cmd := os.Args[1]

	switch cmd {
	case "health":
		resp, err := client.Health()
		exitOnError(err)
		printJSON(resp)

	case "register":
		if len(os.Args) < 5 {
			fmt.Fprintln(os.Stderr, "Usage: patter register <username> <email> <password>")
			os.Exit(1)
		}
		resp, err := client.Register(os.Args[2], os.Args[3], os.Args[4])
		exitOnError(err)
		fmt.Printf("registered as %s (id %d)\n", resp.User.Username, resp.User.ID)

	case "login":
		if len(os.Args) < 4 {
			fmt.Fprintln(os.Stderr, "Usage: patter login <email> <password>")
			os.Exit(1)
		}
		resp, err := client.Login(os.Args[2], os.Args[3])
		exitOnError(err)
		fmt.Printf("logged in as %s\n", resp.User.Username)

	case "logout":
		exitOnError(client.Logout())
		fmt.Println("logged out")

	case "me":
		resp, err := client.Me()
		exitOnError(err)
		printJSON(resp)

	case "conversations":
		conversations, err := client.ListConversations()
		exitOnError(err)
		for _, conv := range conversations {
			name := "(direct)"
			if conv.Name != nil {
				name = *conv.Name
			}
			last := ""
			if conv.LastMessage != nil {
				last = conv.LastMessage.Content
			}
			fmt.Printf("  %d  %s (%d members)  %s\n", conv.ID, name, conv.ParticipantCount, last)
		}

	case "read":
		id := parseID(2, "patter read <conversation-id>")
		messages, err := client.GetMessages(id, 50, 0)
		exitOnError(err)
		for _, msg := range messages {
			printMessage(msg)
		}

	case "send":
		if len(os.Args) < 4 {
			fmt.Fprintln(os.Stderr, "Usage: patter send <conversation-id> <message>")
			os.Exit(1)
		}
		id := parseID(2, "patter send <conversation-id> <message>")
		msg, err := client.SendMessage(id, os.Args[3])
		exitOnError(err)
		fmt.Printf("sent message %d\n", msg.ID)

	case "tail":
		id := parseID(2, "patter tail <conversation-id>")
		tail(client, id)

	case "search":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Usage: patter search <name>")
			os.Exit(1)
		}
		users, err := client.SearchUsers(os.Args[2])
		exitOnError(err)
		for _, u := range users {
			display := u.Username
			if u.DisplayName != nil {
				display = *u.DisplayName
			}
			fmt.Printf("  %d  %s (@%s)\n", u.ID, display, u.Username)
		}

	default:
		usage()
		os.Exit(1)
	}
}

// tail follows a conversation live, printing new messages as they arrive and
// reconnect status when the stream drops.
func tail(client *patter.Client, conversationID int64) {
	stream := client.StreamMessages(conversationID, patter.StreamOptions{})
	defer stream.Stop()

	printed := 0
	for range stream.Updates() {
		switch stream.State() {
		case patter.StreamErrored:
			wait := time.Until(stream.NextRetry()).Round(time.Second)
			fmt.Fprintf(os.Stderr, "connection lost (%s), retrying in %s\n", stream.LastError(), wait)
		case patter.StreamStopped:
			return
		}

		messages := stream.Messages()
		for ; printed < len(messages); printed++ {
			printMessage(messages[printed])
		}
	}
}

func printMessage(msg patter.Message) {
	from := msg.SenderName
	if msg.SenderDisplayName != nil {
		from = *msg.SenderDisplayName
	}
	fmt.Printf("[%s] %s: %s\n", msg.SentAt.Local().Format("2006-01-02 15:04:05"), from, msg.Content)
}

func parseID(arg int, usageLine string) int64 {
	if len(os.Args) <= arg {
		fmt.Fprintln(os.Stderr, "Usage: "+usageLine)
		os.Exit(1)
	}
	id, err := strconv.ParseInt(os.Args[arg], 10, 64)
	if err != nil || id <= 0 {
		fmt.Fprintln(os.Stderr, "invalid conversation id")
		os.Exit(1)
	}
	return id
}

func printJSON(v interface{}) {
	data, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(data))
}

func exitOnError(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Println(`Patter CLI

Usage: patter <command> [args]

Commands:
  register <username> <email> <password>  Create an account
  login <email> <password>                Log in
  logout                                  Log out
  me                                      Show the current user
  conversations                           List conversations
  read <conversation-id>                  Read recent messages
  send <conversation-id> <message>        Send a message
  tail <conversation-id>                  Follow a conversation live
  search <name>                           Search users by display name
  health                                  Check server health

Environment:
  PATTER_URL     Server base URL (default http://localhost:8080)
  PATTER_CONFIG  Credential directory (default ~/.patter)`)
}
