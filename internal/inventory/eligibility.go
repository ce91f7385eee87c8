package inventory

import (
	"context"
	"fmt"
	"strings"

	"github.com/ariefcatur/go-marketplace-stock/internal/apperr"
	"github.com/ariefcatur/go-marketplace-stock/internal/orders"
	"go.uber.org/zap"
)

// BuyerPolicy decides what happens when an unapproved buyer tries to purchase.
type BuyerPolicy int

const (
	// PolicyAutoApprove approves the buyer once and lets the purchase continue.
	PolicyAutoApprove BuyerPolicy = iota
	PolicyReject
)

func ParseBuyerPolicy(s string) (BuyerPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto_approve":
		return PolicyAutoApprove, nil
	case "reject":
		return PolicyReject, nil
	default:
		return PolicyAutoApprove, fmt.Errorf("unknown buyer policy %q", s)
	}
}

func (p BuyerPolicy) String() string {
	if p == PolicyReject {
		return "reject"
	}
	return "auto_approve"
}

// EnsureBuyerEligible checks that buyerID is a known, approved buyer. Under
// PolicyAutoApprove an unapproved buyer is approved as a side effect.
func (s *Service) EnsureBuyerEligible(ctx context.Context, buyerID string) (orders.User, error) {
	u, err := s.Reader.GetUser(ctx, buyerID)
	if err != nil {
		return orders.User{}, err
	}
	if u.Role != orders.RoleBuyer {
		return orders.User{}, apperr.Unauthorized("only buyers can place orders")
	}
	if u.Approved {
		return u, nil
	}
	if s.Policy == PolicyReject {
		return orders.User{}, apperr.Unauthorized("buyer account is not approved")
	}

	if err := s.Store.ApproveBuyer(ctx, buyerID); err != nil {
		return orders.User{}, err
	}
	s.log().Warn("buyer auto-approved during purchase", zap.String("buyer_id", buyerID))
	u.Approved = true
	return u, nil
}
