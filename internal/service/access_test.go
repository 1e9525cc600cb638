package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/teleglass/gateway/internal/auth"
)

type captureMailer struct {
	mu    sync.Mutex
	codes map[string]string
	err   error
}

func newCaptureMailer() *captureMailer {
	return &captureMailer{codes: make(map[string]string)}
}

func (m *captureMailer) SendCode(ctx context.Context, to, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.codes[to] = code
	return nil
}

func (m *captureMailer) code(to string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.codes[to]
}

type captureSMS struct {
	mu    sync.Mutex
	codes map[string]string
	err   error
}

func newCaptureSMS() *captureSMS {
	return &captureSMS{codes: make(map[string]string)}
}

func (s *captureSMS) SendCode(ctx context.Context, phone, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.codes[phone] = code
	return nil
}

func newTestAccess(mailer Mailer, sms SMSSender) *AccessService {
	return NewAccessService("test-secret", 10*time.Minute, mailer, sms, nil, slog.Default())
}

func TestAccessRoundTrip(t *testing.T) {
	mailer := newCaptureMailer()
	svc := newTestAccess(mailer, nil)
	ctx := context.Background()

	if err := svc.RequestCode(ctx, "Visitor@Example.com", ""); err != nil {
		t.Fatalf("request: %v", err)
	}
	code := mailer.code("visitor@example.com")
	if len(code) != 6 {
		t.Fatalf("code = %q, want 6 digits", code)
	}

	w := httptest.NewRecorder()
	token, err := svc.Verify(ctx, w, "visitor@example.com", code)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}

	claims, err := auth.ValidateToken("test-secret", token)
	if err != nil {
		t.Fatalf("validate session token: %v", err)
	}
	if claims.Email != "visitor@example.com" || claims.Purpose != "session" {
		t.Errorf("claims = %+v, want session for visitor@example.com", claims)
	}

	var foundCookie bool
	for _, c := range w.Result().Cookies() {
		if c.Name == "session" {
			foundCookie = true
			if !c.HttpOnly {
				t.Error("session cookie not HttpOnly")
			}
		}
	}
	if !foundCookie {
		t.Error("no session cookie set")
	}

	// Codes are single-use.
	if _, err := svc.Verify(ctx, httptest.NewRecorder(), "visitor@example.com", code); err == nil {
		t.Error("code accepted twice")
	}
}

func TestVerifyWithoutRequest(t *testing.T) {
	svc := newTestAccess(newCaptureMailer(), nil)
	if _, err := svc.Verify(context.Background(), httptest.NewRecorder(), "nobody@example.com", "123456"); err == nil {
		t.Error("verify succeeded with no outstanding code")
	}
}

func TestVerifyAttemptCap(t *testing.T) {
	mailer := newCaptureMailer()
	svc := newTestAccess(mailer, nil)
	ctx := context.Background()

	if err := svc.RequestCode(ctx, "visitor@example.com", ""); err != nil {
		t.Fatalf("request: %v", err)
	}
	code := mailer.code("visitor@example.com")
	wrong := "000000"
	if wrong == code {
		wrong = "000001"
	}

	for i := 0; i < maxAttempts; i++ {
		if _, err := svc.Verify(ctx, httptest.NewRecorder(), "visitor@example.com", wrong); err == nil {
			t.Fatalf("attempt %d: wrong code accepted", i)
		}
	}

	// The cap invalidated the code; even the right one fails now.
	if _, err := svc.Verify(ctx, httptest.NewRecorder(), "visitor@example.com", code); err == nil {
		t.Error("code survived the attempt cap")
	}
}

func TestVerifyExpiredCode(t *testing.T) {
	mailer := newCaptureMailer()
	svc := newTestAccess(mailer, nil)
	ctx := context.Background()

	if err := svc.RequestCode(ctx, "visitor@example.com", ""); err != nil {
		t.Fatalf("request: %v", err)
	}
	code := mailer.code("visitor@example.com")

	svc.now = func() time.Time { return time.Now().Add(11 * time.Minute) }
	if _, err := svc.Verify(ctx, httptest.NewRecorder(), "visitor@example.com", code); err == nil {
		t.Error("expired code accepted")
	}
}

func TestRequestCodeInvalidEmail(t *testing.T) {
	svc := newTestAccess(newCaptureMailer(), nil)
	for _, email := range []string{"", "   ", "not-an-email"} {
		if err := svc.RequestCode(context.Background(), email, ""); err == nil {
			t.Errorf("email %q accepted", email)
		}
	}
}

func TestRequestCodeDualChannel(t *testing.T) {
	mailer := newCaptureMailer()
	sms := newCaptureSMS()
	svc := newTestAccess(mailer, sms)

	if err := svc.RequestCode(context.Background(), "visitor@example.com", "+15550100"); err != nil {
		t.Fatalf("request: %v", err)
	}

	emailCode := mailer.code("visitor@example.com")
	sms.mu.Lock()
	smsCode := sms.codes["+15550100"]
	sms.mu.Unlock()
	if emailCode == "" || emailCode != smsCode {
		t.Errorf("email code %q and sms code %q differ, want same code on both channels", emailCode, smsCode)
	}
}

func TestRequestCodeSurvivesOneChannelFailure(t *testing.T) {
	mailer := newCaptureMailer()
	mailer.err = fmt.Errorf("relay down")
	sms := newCaptureSMS()
	svc := newTestAccess(mailer, sms)

	if err := svc.RequestCode(context.Background(), "visitor@example.com", "+15550100"); err != nil {
		t.Errorf("request failed with one live channel: %v", err)
	}
}

func TestRequestCodeAllChannelsFail(t *testing.T) {
	mailer := newCaptureMailer()
	mailer.err = fmt.Errorf("relay down")
	svc := newTestAccess(mailer, nil)

	if err := svc.RequestCode(context.Background(), "visitor@example.com", ""); err == nil {
		t.Error("request succeeded with every channel down")
	}
}
