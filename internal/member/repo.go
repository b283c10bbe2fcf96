package member

import (
	"context"

	"github.com/referralpay/ledger/internal/types/member"
)

type MemberRepository interface {
	CreateMember(ctx context.Context, m *member.Member) error
	FindMemberByLogin(ctx context.Context, login string) (*member.Member, error)
	FindMemberByID(ctx context.Context, id int64) (*member.Member, error)
	FindMemberByReferralCode(ctx context.Context, code string) (*member.Member, error)
	UpdateWalletAddress(ctx context.Context, memberID int64, address string) error
	UpdateMemberStatus(ctx context.Context, memberID int64, status member.MembershipStatus) error
}
