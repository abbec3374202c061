package orders

import (
	"context"
	"errors"
	"fmt"
)

type ActorKind string

const (
	KindBuyer  ActorKind = "buyer"
	KindSeller ActorKind = "seller"
	KindAdmin  ActorKind = "admin"
)

// Access is an order together with the users owning the stores its items
// were bought from.
type Access struct {
	Order   Order
	Sellers map[string]bool
}

func (a Access) HasSeller(userID string) bool { return a.Sellers[userID] }

// Actor is a capability check over an order. Each variant decides on its own
// whether it may read the order and which status it may request.
type Actor interface {
	ID() string
	Kind() ActorKind
	CanView(a Access) bool
	CanRequest(a Access, to Status) bool
}

// Buyer owns the orders it placed and may only self-cancel while PENDING.
type Buyer struct{ UserID string }

func (b Buyer) ID() string      { return b.UserID }
func (b Buyer) Kind() ActorKind { return KindBuyer }

func (b Buyer) CanView(a Access) bool { return a.Order.BuyerID == b.UserID }

func (b Buyer) CanRequest(a Access, to Status) bool {
	return b.CanView(a) && to == StatusCancelled && a.Order.Status == StatusPending
}

// Seller has standing over an order when at least one item came from a store
// it owns. Standing covers the whole order.
type Seller struct{ UserID string }

func (s Seller) ID() string      { return s.UserID }
func (s Seller) Kind() ActorKind { return KindSeller }

func (s Seller) CanView(a Access) bool { return a.HasSeller(s.UserID) }

func (s Seller) CanRequest(a Access, _ Status) bool { return s.CanView(a) }

// Admin bypasses ownership. Whether a user is an admin is decided upstream.
type Admin struct{ UserID string }

func (ad Admin) ID() string                  { return ad.UserID }
func (ad Admin) Kind() ActorKind             { return KindAdmin }
func (Admin) CanView(Access) bool            { return true }
func (Admin) CanRequest(Access, Status) bool { return true }

// ActorFor maps an authenticated (role, user) pair onto an actor variant.
func ActorFor(role, userID string) (Actor, error) {
	if userID == "" {
		return nil, InvalidInput("missing user id")
	}
	switch ActorKind(role) {
	case KindBuyer:
		return Buyer{UserID: userID}, nil
	case KindSeller:
		return Seller{UserID: userID}, nil
	case KindAdmin:
		return Admin{UserID: userID}, nil
	default:
		return nil, InvalidInput(fmt.Sprintf("unknown role %q", role))
	}
}

// resolveAccess looks up the owner of every distinct store referenced by the
// order's items. Stores that no longer exist grant nobody standing.
func resolveAccess(ctx context.Context, dir StoreDirectory, o Order) (Access, error) {
	sellers := make(map[string]bool)
	seen := make(map[string]bool)
	for _, it := range o.Items {
		if it.StoreID == "" || seen[it.StoreID] {
			continue
		}
		seen[it.StoreID] = true
		owner, err := dir.OwnerOf(ctx, it.StoreID)
		if err != nil {
			if errors.Is(err, ErrRecordNotFound) {
				continue
			}
			return Access{}, err
		}
		sellers[owner] = true
	}
	return Access{Order: o, Sellers: sellers}, nil
}
