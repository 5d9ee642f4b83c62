package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/pairchat/pairchat/internal/api"
	"github.com/pairchat/pairchat/internal/config"
	"github.com/pairchat/pairchat/internal/conversation"
	"github.com/pairchat/pairchat/internal/logger"
	"github.com/pairchat/pairchat/internal/session"
)

func main() {
	_ = godotenv.Load(".env")

	configPath := flag.String("config", "", "path to config file")
	email := flag.String("email", "", "email to log in with when no session is stored")
	peer := flag.String("peer", "", "user to chat with on start")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger.Init(cfg.Logging.Level)

	tokenPath := cfg.Auth.TokenFile
	if tokenPath == "" {
		tokenPath, err = session.DefaultTokenPath()
		if err != nil {
			log.Fatalf("Failed to resolve token path: %v", err)
		}
	}

	rest := api.New(cfg.Server.BaseURL)
	store := session.New(rest, session.NewFileTokenStore(tokenPath))

	ctx := context.Background()
	store.Resume(ctx)

	if _, ok := store.Identity(); !ok {
		if *email == "" {
			log.Fatal("No stored session. Use -email to log in")
		}
		token, identity, err := rest.Login(ctx, *email)
		if err != nil {
			log.Fatalf("Login failed: %v", err)
		}
		store.Login(token, identity)
	}

	identity, _ := store.Identity()
	fmt.Printf("Logged in as %s\n", identity.Username)

	msgLog := conversation.NewLog()
	mgr := conversation.NewManager(cfg.Server.WSURL, rest, msgLog)
	defer mgr.Close()

	// Logout invalidates the identity the connection is scoped to.
	store.OnChange(func() {
		if _, ok := store.Identity(); !ok {
			mgr.Close()
		}
	})

	msgLog.OnAppend(func(msg conversation.Message) {
		if msg.User == identity.Username {
			return // already echoed at the prompt
		}
		fmt.Printf("[%s]: %s\n", msg.User, msg.Text)
	})

	printUsers(ctx, rest, store)

	selectPeer := func(name string) {
		token, ok := store.Token()
		if !ok {
			fmt.Println("Not logged in.")
			return
		}
		mgr.SetConversation(identity.Username, token, name)
		fmt.Printf("Chatting with %s\n", name)
	}
	if *peer != "" {
		selectPeer(*peer)
	}

	fmt.Println("Commands: /to <user>, /users, /logout, /quit. Anything else is sent.")
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "/quit":
			return
		case line == "/users":
			printUsers(ctx, rest, store)
		case line == "/logout":
			store.Logout()
			fmt.Println("Logged out.")
			return
		case strings.HasPrefix(line, "/to "):
			selectPeer(strings.TrimSpace(strings.TrimPrefix(line, "/to ")))
		default:
			if err := mgr.Send(line); err != nil {
				fmt.Printf("Not sent: %v\n", err)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		log.Printf("Error reading input: %v", err)
	}
}

func printUsers(ctx context.Context, rest *api.Client, store *session.Store) {
	token, ok := store.Token()
	if !ok {
		return
	}
	users, err := rest.Users(ctx, token)
	if err != nil {
		fmt.Printf("Failed to fetch users: %v\n", err)
		return
	}
	self, _ := store.Identity()
	fmt.Print("Users:")
	for _, u := range users {
		if u.Username == self.Username {
			continue
		}
		fmt.Printf(" %s", u.Username)
	}
	fmt.Println()
}
