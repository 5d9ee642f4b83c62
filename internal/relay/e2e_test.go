package relay_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/pairchat/pairchat/internal/api"
	"github.com/pairchat/pairchat/internal/conversation"
	"github.com/pairchat/pairchat/internal/session"
	"github.com/pairchat/pairchat/pkg/channel"
	"github.com/pairchat/pairchat/pkg/protocol"
)

// Full client stack against the relay: session store, REST client, and the
// connection manager over a real websocket.
func TestEndToEnd_ClientAgainstRelay(t *testing.T) {
	server := startRelay(t)
	rest := api.New(server.URL)
	ctx := context.Background()

	// Alice logs in through the session store.
	tokens := session.NewMemTokenStore()
	store := session.New(rest, tokens)
	aliceToken, alice, err := rest.Login(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	store.Login(aliceToken, alice)

	// Bob is a raw socket already in the conversation.
	bobToken := login(t, server, "bob@example.com")
	bob := connect(t, server, bobToken, "alice")

	// Bob spoke first; his message must come back to Alice as backlog.
	{
		f, err := protocol.NewSend("alice", "bob", "hey")
		writeFrame(t, bob, mustFrame(t, f, err))
	}
	waitHistory(t, rest, bobToken, 1)

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	log := conversation.NewLog()
	mgr := conversation.NewManager(wsURL, rest, log)
	defer mgr.Close()

	token, _ := store.Token()
	mgr.SetConversation(alice.Username, token, "bob")
	waitManagerState(t, mgr, conversation.StateActive)
	waitLogLen(t, log, 1)

	if e := log.Entries()[0]; e.User != "bob" || e.Text != "hey" || e.TargetUser != "bob" {
		t.Errorf("backlog entry = %+v", e)
	}

	// Live delivery on the pair channel.
	{
		f, err := protocol.NewSend("alice", "bob", "yo")
		writeFrame(t, bob, mustFrame(t, f, err))
	}
	waitLogLen(t, log, 2)
	if e := log.Entries()[1]; e.User != "bob" || e.Text != "yo" || e.TargetUser != "bob" {
		t.Errorf("live entry = %+v", e)
	}

	// Alice replies: optimistic append locally, pair-channel delivery to Bob.
	if err := mgr.Send("hi bob"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if got := log.Len(); got != 3 {
		t.Errorf("log length = %d immediately after Send, want 3", got)
	}

	frame := readFrame(t, bob)
	if want := channel.Derive("alice", "bob"); frame.Event != want {
		t.Errorf("bob got event %q, want pair digest", frame.Event)
	}
	payload, err := frame.IncomingPayload()
	if err != nil {
		t.Fatal(err)
	}
	if payload.User != "alice" || payload.Message != "hi bob" {
		t.Errorf("payload = %+v", payload)
	}

	// A later run resumes the persisted session silently.
	resumed := session.New(rest, tokens)
	resumed.Resume(ctx)
	if got, ok := resumed.Identity(); !ok || got.Username != "alice" {
		t.Errorf("resumed identity = %+v, %v", got, ok)
	}
}

func waitHistory(t *testing.T, rest *api.Client, token string, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		msgs, err := rest.History(context.Background(), token, "bob", "alice")
		if err == nil && len(msgs) >= want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("history never reached %d entries", want)
}

func waitManagerState(t *testing.T, m *conversation.Manager, want conversation.State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if m.State() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("manager state = %v, want %v", m.State(), want)
}

func waitLogLen(t *testing.T, log *conversation.Log, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if log.Len() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("log length = %d, want %d", log.Len(), want)
}
