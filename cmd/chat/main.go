package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"

	"github.com/duochat/duochat/internal/chatclient"
	"github.com/duochat/duochat/internal/config"
	"github.com/duochat/duochat/pkg/wire"
)

func main() {
	username := flag.String("username", "", "Username to log in with")
	password := flag.String("password", "", "Password to log in with")
	register := flag.Bool("register", false, "Create the account instead of logging in")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	client, err := chatclient.New(cfg)
	if err != nil {
		log.Fatalf("Failed to create client: %v", err)
	}

	ctx := context.Background()

	// Try the stored session cookie first; fall back to credentials.
	restored, err := client.Restore(ctx)
	if err != nil {
		log.Fatalf("Failed to restore session: %v", err)
	}
	if !restored {
		if *username == "" || *password == "" {
			log.Fatal("Username and password are required. Use -username and -password flags")
		}
		if *register {
			err = client.Register(ctx, *username, *password)
		} else {
			err = client.Login(ctx, *username, *password)
		}
		if err != nil {
			log.Fatalf("Authentication failed: %v", err)
		}
	}

	ident, _ := client.Identity()
	log.Printf("Logged in as %s", ident.Username)

	if err := client.Start(ctx); err != nil {
		log.Printf("Initial connect failed, retrying in background: %v", err)
	}

	// Print the newest entry whenever the timeline moves.
	client.OnTimelineChange(func() {
		msgs := client.Messages()
		if len(msgs) == 0 {
			return
		}
		printMessage(ident.ID, msgs[len(msgs)-1])
	})
	client.OnError(func(err error) {
		log.Printf("Error: %v", err)
	})

	fmt.Println("Commands: /peers, /select <userId>, /file <path>, /logout, /quit. Anything else is sent as a message.")
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		switch {
		case line == "/quit":
			return
		case line == "/peers":
			printPeers(client)
		case strings.HasPrefix(line, "/select "):
			peerID := strings.TrimSpace(strings.TrimPrefix(line, "/select "))
			if err := client.SelectPeer(ctx, peerID); err != nil {
				log.Printf("Failed to select peer: %v", err)
			}
		case strings.HasPrefix(line, "/file "):
			path := strings.TrimSpace(strings.TrimPrefix(line, "/file "))
			if err := client.SendFile(ctx, path, nil); err != nil {
				log.Printf("Failed to send file: %v", err)
			}
		case line == "/logout":
			if err := client.Logout(ctx); err != nil {
				log.Printf("Failed to log out: %v", err)
				continue
			}
			log.Println("Logged out")
			return
		default:
			client.SetCompose(line)
			if _, err := client.SendText(); err != nil {
				log.Printf("Failed to send message: %v", err)
			}
		}
	}

	if err := scanner.Err(); err != nil {
		log.Printf("Error reading input: %v", err)
	}
}

func printPeers(client *chatclient.Controller) {
	online := client.Online()
	offline := client.Offline()

	for _, id := range sortedKeys(online) {
		fmt.Printf("  ● %s (%s)\n", online[id], id)
	}
	for _, id := range sortedKeys(offline) {
		fmt.Printf("  ○ %s (%s)\n", offline[id], id)
	}
}

func printMessage(selfID string, msg wire.Message) {
	who := msg.Sender
	if msg.OwnedBy(selfID) {
		who = "me"
	}
	if msg.File != "" {
		fmt.Printf("[%s]: (file) %s\n", who, msg.File)
		return
	}
	fmt.Printf("[%s]: %s\n", who, msg.Text)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
