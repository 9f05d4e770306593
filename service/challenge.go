package service

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/CoachCoe/polkadot-sso-sub002/core"
	"github.com/CoachCoe/polkadot-sso-sub002/internal/clock"
	"github.com/CoachCoe/polkadot-sso-sub002/ports"
)

// SIWEConfig identifies this service in the messages it asks wallets
// to sign.
type SIWEConfig struct {
	Domain    string
	URI       string
	Version   string
	ChainID   string
	Statement string
}

// VerifyRequest carries the route layer's input to the verification
// protocol.
type VerifyRequest struct {
	ChallengeID  string
	ClientID     string
	Address      string
	Signature    string
	CodeVerifier string
	State        string

	// Message is optional; when supplied it must equal the stored
	// challenge message. The signature is always verified against the
	// stored message, never the supplied one.
	Message string

	IPAddress string
	UserAgent string
}

// ChallengeService issues and verifies PKCE+SIWE authentication
// challenges.
type ChallengeService struct {
	store  ports.ChallengeStore
	codes  ports.AuthCodeStore
	cache  ports.Cache
	wallet ports.SignatureVerifier
	audit  *AuditService
	clock  clock.Clock
	logger *zap.Logger
	siwe   SIWEConfig
}

// NewChallengeService creates the challenge service.
func NewChallengeService(
	store ports.ChallengeStore,
	codes ports.AuthCodeStore,
	cache ports.Cache,
	wallet ports.SignatureVerifier,
	audit *AuditService,
	clk clock.Clock,
	logger *zap.Logger,
	siwe SIWEConfig,
) *ChallengeService {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if siwe.Version == "" {
		siwe.Version = "1"
	}
	return &ChallengeService{
		store:  store,
		codes:  codes,
		cache:  cache,
		wallet: wallet,
		audit:  audit,
		clock:  clk,
		logger: logger,
		siwe:   siwe,
	}
}

// GenerateChallenge issues a new challenge for the client: a fresh
// PKCE pair, nonce and state, and the canonical message for the wallet
// to sign. The challenge is persisted and cached for its 5-minute
// lifetime.
func (s *ChallengeService) GenerateChallenge(ctx context.Context, clientID, address string) (*core.Challenge, error) {
	if clientID == "" {
		return nil, core.ErrInvalidRequest
	}

	verifier, err := core.GenerateCodeVerifier()
	if err != nil {
		return nil, fmt.Errorf("generating code verifier: %w", err)
	}
	nonce, err := core.GenerateNonce()
	if err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}
	state, err := core.GenerateState()
	if err != nil {
		return nil, fmt.Errorf("generating state: %w", err)
	}

	now := s.clock.Now()
	issuedAt := now.UTC().Format(time.RFC3339)
	expiresAt := now.Add(core.ChallengeTTL)

	msg := core.SIWEMessage{
		Domain:         s.siwe.Domain,
		Address:        address,
		Statement:      s.siwe.Statement,
		URI:            s.siwe.URI,
		Version:        s.siwe.Version,
		ChainID:        s.siwe.ChainID,
		Nonce:          nonce,
		IssuedAt:       issuedAt,
		ExpirationTime: expiresAt.UTC().Format(time.RFC3339),
	}

	ch := &core.Challenge{
		ID:            uuid.NewString(),
		Message:       msg.Format(),
		ClientID:      clientID,
		CreatedAt:     now.UnixMilli(),
		ExpiresAt:     expiresAt.UnixMilli(),
		CodeVerifier:  verifier,
		CodeChallenge: core.ComputeCodeChallenge(verifier),
		State:         state,
		Nonce:         nonce,
		IssuedAt:      issuedAt,
	}

	if err := s.store.Save(ctx, ch); err != nil {
		return nil, fmt.Errorf("persisting challenge: %w", err)
	}
	s.cacheChallenge(ctx, ch)
	return ch, nil
}

// GetChallenge returns the challenge by id, or
// core.ErrChallengeNotFound if it is absent, already used or expired.
// Cache-first; a hit is still re-validated against used/expiry.
func (s *ChallengeService) GetChallenge(ctx context.Context, id string) (*core.Challenge, error) {
	now := s.clock.Now()
	if ch := s.cachedChallenge(ctx, id); ch != nil {
		if ch.Used || ch.Expired(now) {
			return nil, core.ErrChallengeNotFound
		}
		return ch, nil
	}

	ch, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if ch.Used || ch.Expired(now) {
		return nil, core.ErrChallengeNotFound
	}
	s.cacheChallenge(ctx, ch)
	return ch, nil
}

// MarkChallengeUsed flips the challenge's used flag exactly once,
// reporting whether this call did the flip.
func (s *ChallengeService) MarkChallengeUsed(ctx context.Context, id string) (bool, error) {
	flipped, err := s.store.MarkUsed(ctx, id)
	if err != nil {
		return false, err
	}
	if flipped {
		if err := s.cache.Delete(ctx, ports.ChallengeCache.Key(id)); err != nil {
			s.logger.Debug("challenge cache delete failed", zap.Error(err))
		}
	}
	return flipped, nil
}

// Verify runs the verification protocol: challenge lookup, state
// match, PKCE verifier match, then signature verification, and on
// success mints a single-use authorization code bound to the address
// and client.
//
// The challenge is marked used before the signature check. A
// submission with the right state and verifier but a wrong signature
// therefore burns the challenge: it can never be replayed, even though
// nothing else about it was consumed.
func (s *ChallengeService) Verify(ctx context.Context, req VerifyRequest) (*core.AuthorizationCode, error) {
	if req.ChallengeID == "" || req.ClientID == "" || req.Address == "" ||
		req.Signature == "" || req.CodeVerifier == "" || req.State == "" {
		return nil, s.reject(ctx, req, core.ErrInvalidRequest)
	}

	ch, err := s.store.Get(ctx, req.ChallengeID)
	if err != nil {
		if core.Reason(err) != "" {
			return nil, s.reject(ctx, req, err)
		}
		return nil, err
	}
	switch {
	case ch.Used:
		return nil, s.reject(ctx, req, core.ErrChallengeAlreadyUsed)
	case ch.Expired(s.clock.Now()):
		return nil, s.reject(ctx, req, core.ErrChallengeExpired)
	case ch.ClientID != req.ClientID:
		return nil, s.reject(ctx, req, core.ErrInvalidRequest)
	case req.Message != "" && req.Message != ch.Message:
		return nil, s.reject(ctx, req, core.ErrInvalidRequest)
	}

	if subtle.ConstantTimeCompare([]byte(ch.State), []byte(req.State)) != 1 {
		return nil, s.reject(ctx, req, core.ErrStateMismatch)
	}
	if subtle.ConstantTimeCompare(
		[]byte(core.ComputeCodeChallenge(req.CodeVerifier)),
		[]byte(ch.CodeChallenge)) != 1 {
		return nil, s.reject(ctx, req, core.ErrInvalidCodeVerifier)
	}

	flipped, err := s.MarkChallengeUsed(ctx, ch.ID)
	if err != nil {
		return nil, err
	}
	if !flipped {
		// Lost the race to a concurrent verification.
		return nil, s.reject(ctx, req, core.ErrChallengeAlreadyUsed)
	}

	ok, err := s.wallet.Verify(ch.Message, req.Signature, req.Address)
	if err != nil || !ok {
		if err != nil {
			s.logger.Debug("signature verification error", zap.Error(err))
		}
		return nil, s.reject(ctx, req, core.ErrInvalidSignature)
	}

	code, err := core.GenerateAuthCode()
	if err != nil {
		return nil, fmt.Errorf("generating auth code: %w", err)
	}
	now := s.clock.Now()
	ac := &core.AuthorizationCode{
		Code:      code,
		Address:   req.Address,
		ClientID:  req.ClientID,
		CreatedAt: now.UnixMilli(),
		ExpiresAt: now.Add(core.AuthCodeTTL).UnixMilli(),
	}
	if err := s.codes.Save(ctx, ac); err != nil {
		return nil, fmt.Errorf("persisting auth code: %w", err)
	}

	s.audit.Record(ctx, core.AuditEvent{
		EventType:   core.AuditAuthSuccess,
		UserAddress: req.Address,
		ClientID:    req.ClientID,
		Action:      "verify_challenge",
		Status:      core.AuditStatusSuccess,
		IPAddress:   req.IPAddress,
		UserAgent:   req.UserAgent,
	})
	return ac, nil
}

// CleanupExpired removes expired challenges and authorization codes,
// returning how many of each were deleted.
func (s *ChallengeService) CleanupExpired(ctx context.Context) (challenges, codes int, err error) {
	now := s.clock.Now().UnixMilli()
	challenges, err = s.store.DeleteExpired(ctx, now)
	if err != nil {
		return 0, 0, err
	}
	codes, err = s.codes.DeleteExpired(ctx, now)
	if err != nil {
		return challenges, 0, err
	}
	return challenges, codes, nil
}

// StartCleanup runs CleanupExpired every interval until the returned
// stop function is called.
func (s *ChallengeService) StartCleanup(interval time.Duration) (stop func()) {
	done := make(chan struct{})
	ticker := s.clock.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				nc, na, err := s.CleanupExpired(context.Background())
				if err != nil {
					s.logger.Warn("challenge cleanup failed", zap.Error(err))
				} else if nc+na > 0 {
					s.logger.Debug("cleaned up expired rows",
						zap.Int("challenges", nc),
						zap.Int("auth_codes", na),
					)
				}
			case <-done:
				return
			}
		}
	}()
	return func() { close(done) }
}

// Stats returns counts over the challenge table.
func (s *ChallengeService) Stats(ctx context.Context) (core.ChallengeStats, error) {
	return s.store.Stats(ctx, s.clock.Now().UnixMilli())
}

// reject records an audit failure event and returns the rejection.
func (s *ChallengeService) reject(ctx context.Context, req VerifyRequest, err error) error {
	s.audit.Record(ctx, core.AuditEvent{
		EventType:   core.AuditAuthFailure,
		UserAddress: req.Address,
		ClientID:    req.ClientID,
		Action:      "verify_challenge",
		Status:      core.AuditStatusFailure,
		Details:     core.Reason(err),
		IPAddress:   req.IPAddress,
		UserAgent:   req.UserAgent,
	})
	return err
}

func (s *ChallengeService) cacheChallenge(ctx context.Context, ch *core.Challenge) {
	data, err := json.Marshal(ch)
	if err != nil {
		return
	}
	key := ports.ChallengeCache.Key(ch.ID)
	if err := s.cache.Set(ctx, key, string(data), ports.ChallengeCache.TTL); err != nil {
		s.logger.Debug("challenge cache set failed", zap.Error(err))
	}
}

func (s *ChallengeService) cachedChallenge(ctx context.Context, id string) *core.Challenge {
	data, err := s.cache.Get(ctx, ports.ChallengeCache.Key(id))
	if err != nil {
		return nil
	}
	var ch core.Challenge
	if err := json.Unmarshal([]byte(data), &ch); err != nil {
		return nil
	}
	return &ch
}
