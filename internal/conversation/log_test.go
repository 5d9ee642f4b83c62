package conversation_test

import (
	"testing"

	"github.com/pairchat/pairchat/internal/conversation"
)

func TestLog_AppendAndEntries(t *testing.T) {
	log := conversation.NewLog()

	log.Append(conversation.Message{User: "alice", Text: "one"})
	log.Append(conversation.Message{User: "bob", Text: "two"})

	entries := log.Entries()
	if len(entries) != 2 {
		t.Fatalf("Entries() length = %d, want 2", len(entries))
	}
	if entries[0].Text != "one" || entries[1].Text != "two" {
		t.Errorf("entries out of order: %+v", entries)
	}
}

func TestLog_ReplaceAll(t *testing.T) {
	log := conversation.NewLog()
	log.Append(conversation.Message{User: "alice", Text: "stale"})

	log.ReplaceAll([]conversation.Message{
		{User: "bob", Text: "hey"},
		{User: "alice", Text: "hi"},
	})

	entries := log.Entries()
	if len(entries) != 2 {
		t.Fatalf("Entries() length = %d, want 2", len(entries))
	}
	if entries[0].Text != "hey" {
		t.Errorf("ReplaceAll did not discard previous entries: %+v", entries)
	}

	log.Clear()
	if log.Len() != 0 {
		t.Errorf("Len() after Clear = %d, want 0", log.Len())
	}
}

func TestLog_EntriesReturnsCopy(t *testing.T) {
	log := conversation.NewLog()
	log.Append(conversation.Message{User: "alice", Text: "original"})

	entries := log.Entries()
	entries[0].Text = "mutated"

	if got := log.Entries()[0].Text; got != "original" {
		t.Errorf("log entry changed through returned slice: %q", got)
	}
}

func TestLog_OnAppend(t *testing.T) {
	log := conversation.NewLog()

	var seen []string
	log.OnAppend(func(msg conversation.Message) {
		seen = append(seen, msg.Text)
	})

	log.Append(conversation.Message{Text: "a"})
	log.Append(conversation.Message{Text: "b"})

	if len(seen) != 2 || seen[0] != "a" || seen[1] != "b" {
		t.Errorf("OnAppend saw %v, want [a b]", seen)
	}
}
