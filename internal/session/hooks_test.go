package session

import (
	"context"
	"errors"
	"testing"
)

func TestBuildHooks_Order(t *testing.T) {
	hooks := BuildHooks([]string{"alerts", "news"}, []string{"ops"}, "hello")

	want := []string{"follow:alerts", "follow:news", "join:ops", "welcome"}
	if len(hooks) != len(want) {
		t.Fatalf("got %d hooks, want %d", len(hooks), len(want))
	}
	for i, h := range hooks {
		if h.Name != want[i] {
			t.Errorf("hooks[%d] = %q, want %q", i, h.Name, want[i])
		}
	}
	if hooks[3].NewSessionsOnly != true {
		t.Error("welcome hook should be restricted to new sessions")
	}
	if hooks[0].NewSessionsOnly {
		t.Error("follow hooks should run on every connect")
	}
}

func TestBuildHooks_Empty(t *testing.T) {
	if hooks := BuildHooks(nil, nil, ""); len(hooks) != 0 {
		t.Errorf("got %d hooks, want none", len(hooks))
	}
}

func TestRunHooks_SkipsNewOnlyForResumedSessions(t *testing.T) {
	conn := newFakeConn()
	sup := NewSupervisor(testConfig(), &fakeDialer{}, nil, nil, nil,
		WithHooks(BuildHooks([]string{"news"}, nil, "hello")))

	sup.runHooks(context.Background(), &Entry{Identity: "15550100", Conn: conn, IsNew: false})

	got := conn.recorded()
	if len(got) != 1 || got[0] != "follow:news" {
		t.Errorf("ops = %v, want only follow:news", got)
	}
}

func TestRunHooks_FailureDoesNotAbort(t *testing.T) {
	conn := newFakeConn()
	conn.followErr = errors.New("rate limited")

	sup := NewSupervisor(testConfig(), &fakeDialer{}, nil, nil, nil,
		WithHooks(BuildHooks([]string{"news"}, []string{"ops"}, "hello")))

	sup.runHooks(context.Background(), &Entry{Identity: "15550100", Conn: conn, IsNew: true})

	want := []string{"follow:news", "join:ops", "send:15550100:hello"}
	got := conn.recorded()
	if len(got) != len(want) {
		t.Fatalf("ops = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("ops[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
