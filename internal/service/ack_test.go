package service

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
)

func newTestAcks(t *testing.T) (*AckService, *SessionService, *Session) {
	t.Helper()
	sessions, _ := newTestSessions(t)
	sess, err := sessions.Create(context.Background(), "visitor@example.com")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if err := sess.Bridge.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	return NewAckService(sessions, slog.Default()), sessions, sess
}

func TestAcknowledgeFiresOncePerSession(t *testing.T) {
	acks, _, sess := newTestAcks(t)
	ctx := context.Background()

	fired, err := acks.Acknowledge(ctx, sess.ID, "nav-back")
	if err != nil {
		t.Fatalf("acknowledge: %v", err)
	}
	if !fired {
		t.Fatal("first acknowledgment did not fire")
	}

	fired, err = acks.Acknowledge(ctx, sess.ID, "nav-back")
	if err != nil {
		t.Fatalf("second acknowledge: %v", err)
	}
	if fired {
		t.Error("acknowledgment fired twice in one session")
	}

	// A different id still fires.
	fired, err = acks.Acknowledge(ctx, sess.ID, "quiz-complete")
	if err != nil {
		t.Fatalf("acknowledge other id: %v", err)
	}
	if !fired {
		t.Error("independent acknowledgment suppressed")
	}
}

func TestAcknowledgeUnknownID(t *testing.T) {
	acks, _, sess := newTestAcks(t)
	if _, err := acks.Acknowledge(context.Background(), sess.ID, "no-such-ack"); err == nil {
		t.Error("unknown acknowledgment id accepted")
	}
}

func TestAcknowledgeUnknownSession(t *testing.T) {
	acks, _, _ := newTestAcks(t)
	if _, err := acks.Acknowledge(context.Background(), "missing", "nav-back"); err != ErrSessionNotFound {
		t.Errorf("err = %v, want ErrSessionNotFound", err)
	}
}

func TestAcknowledgeSendFailureStillCountsAsFired(t *testing.T) {
	sessions, mock := newTestSessions(t)
	sess, err := sessions.Create(context.Background(), "visitor@example.com")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if err := sess.Bridge.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	mock.SendErr = fmt.Errorf("runtime gone")
	acks := NewAckService(sessions, slog.Default())

	fired, err := acks.Acknowledge(context.Background(), sess.ID, "nav-back")
	if err != nil {
		t.Fatalf("acknowledge: %v", err)
	}
	if !fired {
		t.Fatal("acknowledgment not marked fired on send failure")
	}

	// The failed send must not re-arm the acknowledgment.
	mock.SendErr = nil
	fired, _ = acks.Acknowledge(context.Background(), sess.ID, "nav-back")
	if fired {
		t.Error("acknowledgment re-fired after a failed send")
	}
}

func TestResetReArmsAcknowledgments(t *testing.T) {
	acks, _, sess := newTestAcks(t)
	ctx := context.Background()

	if fired, _ := acks.Acknowledge(ctx, sess.ID, "nav-back"); !fired {
		t.Fatal("first acknowledgment did not fire")
	}
	acks.Reset(sess.ID)
	if fired, _ := acks.Acknowledge(ctx, sess.ID, "nav-back"); !fired {
		t.Error("acknowledgment did not re-fire after reset")
	}
}

func TestNotifyForwardsFreeForm(t *testing.T) {
	acks, _, sess := newTestAcks(t)

	if err := acks.Notify(context.Background(), sess.ID, "the visitor hovered the pricing table"); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if err := acks.Notify(context.Background(), "missing", "hello"); err != ErrSessionNotFound {
		t.Errorf("notify unknown session = %v, want ErrSessionNotFound", err)
	}
}
