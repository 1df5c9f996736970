// CampusLink CLI - command line client for the CampusLink messaging service.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/campuslink/campuslink/clients/go/campuslink"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	baseURL := os.Getenv("CAMPUSLINK_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	token := os.Getenv("CAMPUSLINK_TOKEN")

	client := campuslink.NewClient(baseURL, token)
	ctx := context.Background()
	cmd := os.Args[1]

	switch cmd {
	case "register":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Usage: campuslink register <display-name> [email]")
			os.Exit(1)
		}
		email := ""
		if len(os.Args) > 3 {
			email = os.Args[3]
		}
		profile, err := client.UpsertProfile(ctx, os.Args[2], email)
		exitOnError(err)
		printJSON(profile)

	case "rooms":
		rooms, err := client.ListRooms(ctx)
		exitOnError(err)
		for _, room := range rooms {
			name := room.DisplayName
			if name == "" {
				name = strings.Join(room.Participants, " <-> ")
			}
			fmt.Printf("  %s  [%s]  %s\n", room.ID, room.Kind, name)
		}

	case "mkroom":
		if len(os.Args) < 4 {
			fmt.Fprintln(os.Stderr, "Usage: campuslink mkroom <dm|topic> <display-name> <participant-id>...")
			os.Exit(1)
		}
		room, err := client.CreateRoom(ctx, os.Args[2], os.Args[3], os.Args[4:])
		exitOnError(err)
		printJSON(room)

	case "history":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Usage: campuslink history <room-id> [after-seq]")
			os.Exit(1)
		}
		var after uint64
		if len(os.Args) > 3 {
			var err error
			after, err = strconv.ParseUint(os.Args[3], 10, 64)
			exitOnError(err)
		}
		page, err := client.RoomMessages(ctx, os.Args[2], after, 50)
		exitOnError(err)
		for _, msg := range page.Messages {
			fmt.Printf("  #%d %s: %s\n", msg.Seq, msg.SenderName, msg.Content)
		}
		if page.HasMore {
			fmt.Printf("  (more; continue with after=%d)\n", page.NextAfter)
		}

	case "chat":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Usage: campuslink chat <room-id>")
			os.Exit(1)
		}
		chat(ctx, client, os.Args[2])

	default:
		usage()
		os.Exit(1)
	}
}

// chat joins a room on a live session and prints messages as they arrive.
// Lines read from stdin are sent to the room.
func chat(ctx context.Context, client *campuslink.Client, roomID string) {
	session, err := client.Dial(ctx)
	exitOnError(err)
	defer session.Close()

	exitOnError(session.Join(roomID))

	go func() {
		var line string
		for {
			if _, err := fmt.Scanln(&line); err != nil {
				return
			}
			if err := session.Send(roomID, line); err != nil {
				return
			}
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case ev, ok := <-session.Events:
			if !ok {
				exitOnError(session.Err())
				return
			}
			switch ev.Type {
			case "joined":
				fmt.Printf("-- joined %s\n", ev.RoomID)
			case "message":
				fmt.Printf("#%d %s: %s\n", ev.Message.Seq, ev.Message.SenderName, ev.Message.Content)
			case "error":
				fmt.Printf("!! %s: %s\n", ev.Code, ev.Detail)
			}
		case <-quit:
			return
		}
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `CampusLink CLI

Usage: campuslink <command> [args]

Commands:
  register <display-name> [email]                 register or refresh your profile
  rooms                                           list your rooms
  mkroom <dm|topic> <display-name> <id>...        create a room
  history <room-id> [after-seq]                   read room history
  chat <room-id>                                  live chat in a room

Environment:
  CAMPUSLINK_URL    server base URL (default http://localhost:8080)
  CAMPUSLINK_TOKEN  bearer token (see cmd/mktoken for development)`)
}

func printJSON(v interface{}) {
	data, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(data))
}

func exitOnError(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
