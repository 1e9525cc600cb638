package service

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/teleglass/gateway/internal/auth"
	"github.com/teleglass/gateway/internal/store"
)

const (
	codeLength   = 6
	maxAttempts  = 5
	sessionTTL   = 24 * time.Hour
	sessionScope = "session"
)

// issuedCode is one outstanding access code. Codes are single-use,
// time-bounded, and attempt-limited.
type issuedCode struct {
	code      string
	phone     string
	expiresAt time.Time
	attempts  int
}

// AccessService runs the NDA access flow: mint a one-time code, dispatch
// it over every configured channel, verify it, and issue a session on
// success.
type AccessService struct {
	jwtSecret string
	codeTTL   time.Duration
	mailer    Mailer
	sms       SMSSender // nil disables the SMS channel
	grants    *store.Store
	logger    *slog.Logger

	mu    sync.Mutex
	codes map[string]*issuedCode // keyed by email

	now func() time.Time
}

// NewAccessService creates a new AccessService.
func NewAccessService(jwtSecret string, codeTTL time.Duration, mailer Mailer, sms SMSSender, grants *store.Store, logger *slog.Logger) *AccessService {
	return &AccessService{
		jwtSecret: jwtSecret,
		codeTTL:   codeTTL,
		mailer:    mailer,
		sms:       sms,
		grants:    grants,
		logger:    logger,
		codes:     make(map[string]*issuedCode),
		now:       time.Now,
	}
}

// RequestCode mints a code for the email and dispatches it over email and,
// when a phone is given, SMS. The channels run concurrently and fail
// independently; the request errors only when every channel failed. There
// is no delivery confirmation beyond the relay accepting the request.
func (s *AccessService) RequestCode(ctx context.Context, email, phone string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return fmt.Errorf("invalid email")
	}

	code, err := generateCode()
	if err != nil {
		return fmt.Errorf("generate code: %w", err)
	}

	s.mu.Lock()
	s.codes[email] = &issuedCode{
		code:      code,
		phone:     phone,
		expiresAt: s.now().Add(s.codeTTL),
	}
	s.mu.Unlock()

	type outcome struct {
		channel string
		err     error
	}
	results := make(chan outcome, 2)
	channels := 0

	channels++
	go func() {
		results <- outcome{"email", s.mailer.SendCode(ctx, email, code)}
	}()

	if s.sms != nil && phone != "" {
		channels++
		go func() {
			results <- outcome{"sms", s.sms.SendCode(ctx, phone, code)}
		}()
	}

	failures := 0
	for i := 0; i < channels; i++ {
		r := <-results
		if r.err != nil {
			failures++
			s.logger.Error("access code delivery failed", "channel", r.channel, "error", r.err)
		}
	}
	if failures == channels {
		return fmt.Errorf("code delivery failed on all channels")
	}
	return nil
}

// Verify checks a submitted code. The stored code is cleared only on
// success; failed attempts count toward a cap, after which the code is
// invalidated. On success the acknowledgment is recorded, a grant stored,
// and a session JWT issued and set as an HttpOnly cookie.
func (s *AccessService) Verify(ctx context.Context, w http.ResponseWriter, email, code string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	code = strings.TrimSpace(code)

	s.mu.Lock()
	issued, ok := s.codes[email]
	if !ok {
		s.mu.Unlock()
		return "", fmt.Errorf("no code requested")
	}
	if s.now().After(issued.expiresAt) {
		delete(s.codes, email)
		s.mu.Unlock()
		return "", fmt.Errorf("code expired")
	}
	if subtle.ConstantTimeCompare([]byte(issued.code), []byte(code)) != 1 {
		issued.attempts++
		if issued.attempts >= maxAttempts {
			delete(s.codes, email)
		}
		s.mu.Unlock()
		return "", fmt.Errorf("incorrect code")
	}
	phone := issued.phone
	delete(s.codes, email)
	s.mu.Unlock()

	now := s.now()
	if s.grants != nil {
		if err := s.grants.RecordAcknowledgment(ctx, email, phone, now); err != nil {
			s.logger.Error("record acknowledgment failed", "error", err)
		}
		if err := s.grants.RecordGrant(ctx, email, now, now.Add(sessionTTL)); err != nil {
			s.logger.Error("record grant failed", "error", err)
		}
	}

	sessionToken, err := auth.GenerateToken(s.jwtSecret, email, sessionScope, sessionTTL)
	if err != nil {
		return "", fmt.Errorf("generate session: %w", err)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "session",
		Value:    sessionToken,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(sessionTTL / time.Second),
	})

	return sessionToken, nil
}

// HasAccess reports whether the email holds an unexpired grant.
func (s *AccessService) HasAccess(ctx context.Context, email string) (bool, error) {
	if s.grants == nil {
		return false, nil
	}
	return s.grants.HasActiveGrant(ctx, strings.ToLower(strings.TrimSpace(email)), s.now())
}

// generateCode returns a 6-digit decimal code from a cryptographically
// secure source. Leading zeros are preserved.
func generateCode() (string, error) {
	max := big.NewInt(1)
	for i := 0; i < codeLength; i++ {
		max.Mul(max, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", codeLength, n), nil
}
