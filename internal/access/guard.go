// Package access implements the single-role admin gate protecting registry writes.
package access

import (
	"errors"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/sirupsen/logrus"
)

// AdminRole is the role tag of the registry administrator
var AdminRole = crypto.Keccak256Hash([]byte("ADMIN_ROLE"))

// ErrUnauthorized is returned when the caller does not hold the admin role
var ErrUnauthorized = errors.New("unauthorized: caller is not admin")

// Guard tracks role assignments. Exactly one account holds AdminRole at any time.
type Guard struct {
	mu    sync.RWMutex
	roles map[common.Address]common.Hash
	admin common.Address
}

// NewGuard assigns the admin role to the deploying account
func NewGuard(admin common.Address) *Guard {
	return &Guard{
		roles: map[common.Address]common.Hash{admin: AdminRole},
		admin: admin,
	}
}

// RequireAdmin fails with ErrUnauthorized unless caller holds AdminRole
func (g *Guard) RequireAdmin(caller common.Address) error {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.roles[caller] != AdminRole {
		return ErrUnauthorized
	}
	return nil
}

// UpdateAdmin moves the admin role from caller to newAccount in one step
func (g *Guard) UpdateAdmin(caller, newAccount common.Address) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.roles[caller] != AdminRole {
		return ErrUnauthorized
	}
	delete(g.roles, caller)
	g.roles[newAccount] = AdminRole
	g.admin = newAccount

	logrus.WithFields(logrus.Fields{
		"previous": caller.Hex(),
		"admin":    newAccount.Hex(),
	}).Info("Admin role transferred")
	return nil
}

// RoleOf returns the role of an account, or the zero hash
func (g *Guard) RoleOf(account common.Address) common.Hash {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.roles[account]
}

// Admin returns the current admin account
func (g *Guard) Admin() common.Address {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.admin
}
