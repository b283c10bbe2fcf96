package member

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/referralpay/ledger/internal/middleware"
	"github.com/referralpay/ledger/internal/types/member"
)

var (
	ErrMemberExists        = errors.New("member already exists")
	ErrInvalidCreds        = errors.New("invalid credentials")
	ErrPasswordTooShort    = errors.New("password must be at least 8 characters")
	ErrMemberNotFound      = errors.New("member not found")
	ErrUnknownReferralCode = errors.New("unknown referral code")
	ErrEmptyWalletAddress  = errors.New("wallet address must not be empty")
)

type Service struct {
	repo      MemberRepository
	jwtSecret []byte
	jwtTTL    time.Duration
}

func NewService(repo MemberRepository, jwtSecret []byte, jwtTTL time.Duration) *Service {
	return &Service{repo: repo, jwtSecret: jwtSecret, jwtTTL: jwtTTL}
}

// Register creates a PENDING member. The referral code of the sponsor, if
// given, fixes the member's position in the referral tree; it cannot be
// changed afterwards.
func (s *Service) Register(ctx context.Context, login, password, referralCode string) (*member.Member, error) {
	if len(password) < 8 {
		return nil, ErrPasswordTooShort
	}
	if _, err := s.repo.FindMemberByLogin(ctx, login); err == nil {
		return nil, ErrMemberExists
	}

	var referredBy *int64
	if referralCode != "" {
		sponsor, err := s.repo.FindMemberByReferralCode(ctx, referralCode)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUnknownReferralCode
		}
		if err != nil {
			return nil, err
		}
		referredBy = &sponsor.ID
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	m := &member.Member{
		Login:        login,
		PasswordHash: string(hash),
		ReferralCode: uuid.NewString(),
		ReferredBy:   referredBy,
		Status:       member.StatusPending,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.repo.CreateMember(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *Service) Authenticate(ctx context.Context, login, password string) (string, error) {
	m, err := s.repo.FindMemberByLogin(ctx, login)
	if err != nil {
		return "", ErrInvalidCreds
	}
	if m.Status == member.StatusDeleted {
		return "", ErrInvalidCreds
	}
	if err := bcrypt.CompareHashAndPassword([]byte(m.PasswordHash), []byte(password)); err != nil {
		return "", ErrInvalidCreds
	}
	now := time.Now().UTC()
	claims := middleware.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   login,
			ExpiresAt: jwt.NewNumericDate(now.Add(s.jwtTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		IsAdmin: m.IsAdmin,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

func (s *Service) UpdateWallet(ctx context.Context, memberID int64, address string) error {
	if address == "" {
		return ErrEmptyWalletAddress
	}
	return s.repo.UpdateWalletAddress(ctx, memberID, address)
}

func (s *Service) Block(ctx context.Context, memberID int64) error {
	return s.setStatus(ctx, memberID, member.StatusBlocked)
}

func (s *Service) Unblock(ctx context.Context, memberID int64) error {
	return s.setStatus(ctx, memberID, member.StatusApproved)
}

// Delete is a soft delete: the member keeps its place in the referral
// tree so descendants' chains stay intact.
func (s *Service) Delete(ctx context.Context, memberID int64) error {
	return s.setStatus(ctx, memberID, member.StatusDeleted)
}

func (s *Service) setStatus(ctx context.Context, memberID int64, status member.MembershipStatus) error {
	if _, err := s.repo.FindMemberByID(ctx, memberID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrMemberNotFound
		}
		return err
	}
	return s.repo.UpdateMemberStatus(ctx, memberID, status)
}
