package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/CoachCoe/polkadot-sso-sub002/core"
	"github.com/CoachCoe/polkadot-sso-sub002/internal/clock"
	"github.com/CoachCoe/polkadot-sso-sub002/ports"
)

// Token types carried in the "type" claim.
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// TokenClaims is the payload of both token kinds. Fingerprint binds
// the token to the session row's current rotation; jti (RegisteredClaims.ID)
// is unique per issuance.
type TokenClaims struct {
	jwt.RegisteredClaims
	Address     string `json:"address"`
	ClientID    string `json:"client_id"`
	TokenType   string `json:"type"`
	Fingerprint string `json:"fingerprint"`
}

// Verification is the outcome of VerifyToken. Protocol rejections set
// Valid=false and Err; they are never returned as Go errors, so the
// boundary layer can map reasons to responses without exception-style
// control flow.
type Verification struct {
	Valid   bool
	Claims  *TokenClaims
	Session *core.Session
	Err     *core.Error
}

// TokenConfig parameterizes signing. Secret is required.
type TokenConfig struct {
	Secret     []byte
	Issuer     string        // default "polkadot-sso"
	AccessTTL  time.Duration // default core.AccessTokenTTL
	RefreshTTL time.Duration // default core.RefreshTokenTTL
}

// TokenService issues, verifies, rotates and invalidates session
// tokens.
type TokenService struct {
	sessions ports.SessionStore
	codes    ports.AuthCodeStore
	cache    ports.Cache
	audit    *AuditService
	clock    clock.Clock
	logger   *zap.Logger
	cfg      TokenConfig
}

// NewTokenService creates the token service.
func NewTokenService(
	sessions ports.SessionStore,
	codes ports.AuthCodeStore,
	cache ports.Cache,
	audit *AuditService,
	clk clock.Clock,
	logger *zap.Logger,
	cfg TokenConfig,
) (*TokenService, error) {
	if len(cfg.Secret) == 0 {
		return nil, fmt.Errorf("token service: signing secret is required")
	}
	if cfg.Issuer == "" {
		cfg.Issuer = "polkadot-sso"
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = core.AccessTokenTTL
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = core.RefreshTokenTTL
	}
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TokenService{
		sessions: sessions,
		codes:    codes,
		cache:    cache,
		audit:    audit,
		clock:    clk,
		logger:   logger,
		cfg:      cfg,
	}, nil
}

// GenerateTokens signs a fresh access/refresh pair sharing one new
// fingerprint. Each token gets its own jti.
func (s *TokenService) GenerateTokens(address, clientID string) (*core.TokenPair, error) {
	fingerprint, err := core.GenerateFingerprint()
	if err != nil {
		return nil, fmt.Errorf("generating fingerprint: %w", err)
	}

	now := s.clock.Now()
	accessID := uuid.NewString()
	refreshID := uuid.NewString()
	accessExpiry := now.Add(s.cfg.AccessTTL)
	refreshExpiry := now.Add(s.cfg.RefreshTTL)

	access, err := s.sign(address, clientID, TokenTypeAccess, accessID, fingerprint, now, accessExpiry)
	if err != nil {
		return nil, fmt.Errorf("signing access token: %w", err)
	}
	refresh, err := s.sign(address, clientID, TokenTypeRefresh, refreshID, fingerprint, now, refreshExpiry)
	if err != nil {
		return nil, fmt.Errorf("signing refresh token: %w", err)
	}

	return &core.TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		Fingerprint:      fingerprint,
		AccessTokenID:    accessID,
		RefreshTokenID:   refreshID,
		AccessExpiresAt:  accessExpiry.UnixMilli(),
		RefreshExpiresAt: refreshExpiry.UnixMilli(),
	}, nil
}

func (s *TokenService) sign(address, clientID, tokenType, jti, fingerprint string, now, expiry time.Time) (string, error) {
	claims := TokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   address,
			Issuer:    s.cfg.Issuer,
			Audience:  jwt.ClaimStrings{clientID},
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiry),
		},
		Address:     address,
		ClientID:    clientID,
		TokenType:   tokenType,
		Fingerprint: fingerprint,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.cfg.Secret)
}

// VerifyToken checks signature, issuer, algorithm, type, and binds the
// token to its session: the session must exist, be active, and carry
// the same fingerprint. A fingerprint mismatch means the session has
// rotated since this token was issued; the token is dead regardless of
// its own validity.
//
// A non-nil error is only returned for storage failures; every
// protocol rejection comes back inside the Verification.
func (s *TokenService) VerifyToken(ctx context.Context, token, expectedType string) (*Verification, error) {
	claims := &TokenClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims,
		func(t *jwt.Token) (any, error) { return s.cfg.Secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.cfg.Issuer),
		jwt.WithTimeFunc(s.clock.Now),
	)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return invalid(core.ErrTokenExpired), nil
	case err != nil, !parsed.Valid:
		return invalid(core.ErrInvalidToken), nil
	}
	if claims.TokenType != expectedType {
		return invalid(core.ErrInvalidToken), nil
	}
	if len(claims.Audience) == 0 || claims.Audience[0] != claims.ClientID {
		return invalid(core.ErrInvalidToken), nil
	}

	sess, err := s.lookupSession(ctx, claims.Address, claims.ClientID)
	if err != nil {
		if errors.Is(err, core.ErrSessionNotFound) {
			return invalid(core.ErrSessionNotFound), nil
		}
		return nil, err
	}
	if !sess.IsActive {
		return invalid(core.ErrSessionInactive), nil
	}
	if claims.Fingerprint != sess.Fingerprint {
		return invalid(core.ErrFingerprintMismatch), nil
	}
	expectedID := sess.AccessTokenID
	if expectedType == TokenTypeRefresh {
		expectedID = sess.RefreshTokenID
	}
	if claims.ID != expectedID {
		return invalid(core.ErrInvalidToken), nil
	}

	return &Verification{Valid: true, Claims: claims, Session: sess}, nil
}

// CreateSession issues a token pair and persists the session row. A
// storage failure is returned to the caller, which may retry the
// exchange.
func (s *TokenService) CreateSession(ctx context.Context, address, clientID string) (*core.Session, error) {
	pair, err := s.GenerateTokens(address, clientID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now().UnixMilli()
	sess := &core.Session{
		ID:                    uuid.NewString(),
		Address:               address,
		ClientID:              clientID,
		AccessToken:           pair.AccessToken,
		RefreshToken:          pair.RefreshToken,
		AccessTokenID:         pair.AccessTokenID,
		RefreshTokenID:        pair.RefreshTokenID,
		Fingerprint:           pair.Fingerprint,
		AccessTokenExpiresAt:  pair.AccessExpiresAt,
		RefreshTokenExpiresAt: pair.RefreshExpiresAt,
		CreatedAt:             now,
		LastUsedAt:            now,
		IsActive:              true,
	}
	if err := s.sessions.Save(ctx, sess); err != nil {
		s.logger.Error("session save failed",
			zap.String("address", address),
			zap.String("client_id", clientID),
			zap.Error(err),
		)
		return nil, fmt.Errorf("persisting session: %w", err)
	}
	s.cacheSession(ctx, sess)

	s.audit.Record(ctx, core.AuditEvent{
		EventType:   core.AuditTokenIssued,
		UserAddress: address,
		ClientID:    clientID,
		Action:      "create_session",
		Status:      core.AuditStatusSuccess,
	})
	return sess, nil
}

// ExchangeCode consumes a single-use authorization code and creates
// the session it authorized.
func (s *TokenService) ExchangeCode(ctx context.Context, code, clientID string) (*core.Session, error) {
	if code == "" || clientID == "" {
		return nil, core.ErrInvalidRequest
	}
	ac, err := s.codes.Consume(ctx, code, s.clock.Now().UnixMilli())
	if err != nil {
		return nil, err
	}
	if ac.ClientID != clientID {
		return nil, core.ErrClientMismatch
	}
	return s.CreateSession(ctx, ac.Address, clientID)
}

// RefreshSession rotates the session: a full new token pair with a new
// fingerprint overwrites the row in place, so the old pair is
// permanently dead even before its stated expiry.
func (s *TokenService) RefreshSession(ctx context.Context, refreshToken string) (*core.Session, error) {
	v, err := s.VerifyToken(ctx, refreshToken, TokenTypeRefresh)
	if err != nil {
		return nil, err
	}
	if !v.Valid {
		return nil, v.Err
	}

	pair, err := s.GenerateTokens(v.Session.Address, v.Session.ClientID)
	if err != nil {
		return nil, err
	}
	sess := v.Session
	sess.AccessToken = pair.AccessToken
	sess.RefreshToken = pair.RefreshToken
	sess.AccessTokenID = pair.AccessTokenID
	sess.RefreshTokenID = pair.RefreshTokenID
	sess.Fingerprint = pair.Fingerprint
	sess.AccessTokenExpiresAt = pair.AccessExpiresAt
	sess.RefreshTokenExpiresAt = pair.RefreshExpiresAt
	sess.LastUsedAt = s.clock.Now().UnixMilli()

	if err := s.sessions.Update(ctx, sess); err != nil {
		if core.Reason(err) != "" {
			return nil, err
		}
		return nil, fmt.Errorf("rotating session: %w", err)
	}
	s.cacheSession(ctx, sess)

	s.audit.Record(ctx, core.AuditEvent{
		EventType:   core.AuditTokenRefresh,
		UserAddress: sess.Address,
		ClientID:    sess.ClientID,
		Action:      "refresh_session",
		Status:      core.AuditStatusSuccess,
	})
	return sess, nil
}

// InvalidateSession retires the session behind a valid access token.
// Returns whether a live session was deactivated.
func (s *TokenService) InvalidateSession(ctx context.Context, accessToken string) (bool, error) {
	v, err := s.VerifyToken(ctx, accessToken, TokenTypeAccess)
	if err != nil {
		return false, err
	}
	if !v.Valid {
		return false, v.Err
	}

	flipped, err := s.sessions.Deactivate(ctx, v.Session.ID)
	if err != nil {
		return false, fmt.Errorf("deactivating session: %w", err)
	}
	key := ports.SessionCache.Key(v.Session.Address, v.Session.ClientID)
	if err := s.cache.Delete(ctx, key); err != nil {
		s.logger.Debug("session cache delete failed", zap.Error(err))
	}

	s.audit.Record(ctx, core.AuditEvent{
		EventType:   core.AuditTokenRevoked,
		UserAddress: v.Session.Address,
		ClientID:    v.Session.ClientID,
		Action:      "invalidate_session",
		Status:      core.AuditStatusSuccess,
	})
	return flipped, nil
}

func invalid(reason *core.Error) *Verification {
	return &Verification{Valid: false, Err: reason}
}

// lookupSession is cache-first by the address+client composite key. A
// cache hit still re-validates flags in VerifyToken; staleness is
// bounded by the namespace TTL.
func (s *TokenService) lookupSession(ctx context.Context, address, clientID string) (*core.Session, error) {
	key := ports.SessionCache.Key(address, clientID)
	if data, err := s.cache.Get(ctx, key); err == nil {
		var sess core.Session
		if err := json.Unmarshal([]byte(data), &sess); err == nil {
			return &sess, nil
		}
	}
	sess, err := s.sessions.Get(ctx, address, clientID)
	if err != nil {
		return nil, err
	}
	s.cacheSession(ctx, sess)
	return sess, nil
}

func (s *TokenService) cacheSession(ctx context.Context, sess *core.Session) {
	data, err := json.Marshal(sess)
	if err != nil {
		return
	}
	key := ports.SessionCache.Key(sess.Address, sess.ClientID)
	if err := s.cache.Set(ctx, key, string(data), ports.SessionCache.TTL); err != nil {
		s.logger.Debug("session cache set failed", zap.Error(err))
	}
}
