package order

import (
	"fmt"

	"github.com/blindbox-shop/order-service/internal/domain/auth"
)

// transitions encodes the forward-only status machine. Cancelled and
// returned are terminal; returned is only reachable from delivered.
var transitions = map[Status][]Status{
	StatusProcessing: {StatusConfirmed, StatusCancelled},
	StatusConfirmed:  {StatusShipping},
	StatusShipping:   {StatusDelivered},
	StatusDelivered:  {StatusReturned},
}

// ValidStatus reports whether s is a known order status.
func ValidStatus(s Status) bool {
	switch s {
	case StatusProcessing, StatusConfirmed, StatusShipping, StatusDelivered, StatusCancelled, StatusReturned:
		return true
	}
	return false
}

// CanTransition reports whether the machine allows moving from s to next.
func (s Status) CanTransition(next Status) bool {
	for _, t := range transitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transitions are allowed from s.
func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

// authorizeTransition applies the role gate for a requested transition.
// Users may only cancel their own orders while still processing; sellers are
// confined to orders of their own store; admins are unrestricted. Machine
// validity is checked separately, after the gate.
func authorizeTransition(caller *auth.Identity, o *Order, next Status) error {
	switch caller.Role {
	case auth.RoleAdmin:
		return nil
	case auth.RoleSeller:
		if o.Store.StoreID != caller.StoreID {
			return ErrForbidden
		}
		return nil
	case auth.RoleUser:
		if o.Buyer.UserID != caller.ID {
			return ErrForbidden
		}
		if next != StatusCancelled || o.Status != StatusProcessing {
			return ErrForbidden
		}
		return nil
	default:
		return ErrForbidden
	}
}

// authorizeRead applies the role visibility rule for GET paths: users see
// their own orders, sellers their store's, admins everything.
func authorizeRead(caller *auth.Identity, o *Order) error {
	switch caller.Role {
	case auth.RoleAdmin:
		return nil
	case auth.RoleSeller:
		if o.Store.StoreID != caller.StoreID {
			return ErrForbidden
		}
		return nil
	case auth.RoleUser:
		if o.Buyer.UserID != caller.ID {
			return ErrForbidden
		}
		return nil
	default:
		return ErrForbidden
	}
}

// defaultNote is appended to the history when the caller supplies none.
func defaultNote(s Status) string {
	return fmt.Sprintf("Status updated to %s", s)
}
