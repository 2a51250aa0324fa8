package assistant

import (
	"context"
	"strings"
	"testing"
)

func TestHandleTranslate(t *testing.T) {
	t.Parallel()

	a := newTestAssistant(t, nil)
	reply := a.handleTranslate("translate good morning to spanish")
	if !strings.Contains(reply, "good morning") || !strings.Contains(reply, "spanish") {
		t.Errorf("translate reply = %q", reply)
	}

	// Both separators the classifier routes here are understood.
	reply = a.handleTranslate("translate good morning in spanish")
	if !strings.Contains(reply, "good morning") || !strings.Contains(reply, "spanish") {
		t.Errorf("translate reply = %q", reply)
	}

	usage := a.handleTranslate("translate")
	if !strings.Contains(usage, "Format") {
		t.Errorf("missing usage help: %q", usage)
	}
}

func TestHandleWeather(t *testing.T) {
	t.Parallel()

	a := newTestAssistant(t, nil)
	reply := a.handleWeather("weather in berlin")
	if !strings.Contains(strings.ToLower(reply), "berlin") {
		t.Errorf("weather reply = %q", reply)
	}
}

func TestHandleCodeHelp(t *testing.T) {
	t.Parallel()

	a := newTestAssistant(t, nil)
	if reply := a.handleCodeHelp("how do I debug python"); !strings.Contains(strings.ToLower(reply), "python") {
		t.Errorf("python help = %q", reply)
	}
	if reply := a.handleCodeHelp("javascript question"); !strings.Contains(strings.ToLower(reply), "javascript") {
		t.Errorf("javascript help = %q", reply)
	}
}

func TestHandleCommandUnknown(t *testing.T) {
	t.Parallel()

	a := newTestAssistant(t, nil)
	sess := a.registry.GetSession("user1")
	reply := a.handleCommand(context.Background(), sess, "/frobnicate")
	if !strings.Contains(reply, "/frobnicate") {
		t.Errorf("unknown command reply should name the command: %q", reply)
	}
}

func TestHandleCommandRemind(t *testing.T) {
	t.Parallel()

	a := newTestAssistant(t, nil)
	sess := a.registry.GetSession("user1")
	reply := a.handleCommand(context.Background(), sess, "/remind buy milk")
	if !strings.Contains(reply, "buy milk") {
		t.Errorf("/remind reply = %q", reply)
	}
	if len(sess.Tasks()) != 1 {
		t.Errorf("task count = %d", len(sess.Tasks()))
	}
}

func TestHandleGreetingShowsSearchStatus(t *testing.T) {
	t.Parallel()

	a := newTestAssistant(t, nil)
	off := a.handleGreeting(a.registry.GetSession("u1"))
	if !strings.Contains(off, "❌") {
		t.Errorf("greeting without search should show ❌: %q", off)
	}

	a.SetCodeSearcher(&fakeSearcher{enabled: true})
	on := a.handleGreeting(a.registry.GetSession("u2"))
	if !strings.Contains(on, "✅") {
		t.Errorf("greeting with search should show ✅: %q", on)
	}
}
