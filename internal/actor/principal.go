// Package actor identifies who is performing an operation.
package actor

import "fmt"

// Role names as carried in access tokens.
const (
	RoleCustomer = "customer"
	RoleSeller   = "seller"
	RoleAdmin    = "admin"
	RoleSystem   = "system"
)

// Principal is a closed set of variants: Customer, Seller, Admin and System.
// Code that branches on the variant should go through Match so a new
// variant fails to compile at every call site.
type Principal interface {
	ID() string
	Role() string
	principal()
}

// Customer places and cancels their own orders. ID is the customer's
// email address.
type Customer struct{ UserID string }

// Seller operates exactly one store.
type Seller struct {
	UserID  string
	StoreID string
}

type Admin struct{ UserID string }

// System is an internal automation such as a courier integration.
type System struct{ Name string }

func (c Customer) ID() string { return c.UserID }
func (s Seller) ID() string { return s.UserID }
func (a Admin) ID() string { return a.UserID }
func (s System) ID() string { return s.Name }

func (Customer) Role() string { return RoleCustomer }
func (Seller) Role() string { return RoleSeller }
func (Admin) Role() string { return RoleAdmin }
func (System) Role() string { return RoleSystem }

func (Customer) principal() {}
func (Seller) principal()   {}
func (Admin) principal()    {}
func (System) principal()   {}

// Match dispatches on the variant of p.
func Match[T any](
	p Principal,
	customer func(Customer) T,
	seller func(Seller) T,
	admin func(Admin) T,
	system func(System) T,
) T {
	switch v := p.(type) {
	case Customer:
		return customer(v)
	case Seller:
		return seller(v)
	case Admin:
		return admin(v)
	case System:
		return system(v)
	}
	panic(fmt.Sprintf("actor: unknown principal %T", p))
}

// FromClaims builds a principal from token claims.
func FromClaims(userID, role, storeID string) (Principal, error) {
	if userID == "" {
		return nil, fmt.Errorf("actor: missing user id")
	}
	switch role {
	case RoleCustomer:
		return Customer{UserID: userID}, nil
	case RoleSeller:
		if storeID == "" {
			return nil, fmt.Errorf("actor: seller %s has no store", userID)
		}
		return Seller{UserID: userID, StoreID: storeID}, nil
	case RoleAdmin:
		return Admin{UserID: userID}, nil
	case RoleSystem:
		return System{Name: userID}, nil
	default:
		return nil, fmt.Errorf("actor: unknown role %q", role)
	}
}

// Describe renders p for logs and error messages.
func Describe(p Principal) string {
	if p == nil {
		return "anonymous"
	}
	return p.Role() + ":" + p.ID()
}
