package registry

import (
	"context"
	"fmt"

	"github.com/Emmet-Finance/Bridge-Data/internal/access"
	"github.com/Emmet-Finance/Bridge-Data/internal/events"
	"github.com/ethereum/go-ethereum/common"
)

// UpdateAdmin transfers the admin role from caller to newAdmin
func (r *Registry) UpdateAdmin(ctx context.Context, caller, newAdmin common.Address) error {
	r.mu.Lock()
	if err := r.guard.RequireAdmin(caller); err != nil {
		r.mu.Unlock()
		return err
	}
	if err := r.store.SaveAdmin(ctx, newAdmin); err != nil {
		r.mu.Unlock()
		return fmt.Errorf("failed to persist admin: %w", err)
	}
	if err := r.guard.UpdateAdmin(caller, newAdmin); err != nil {
		r.mu.Unlock()
		return err
	}
	r.mu.Unlock()

	r.publish(events.AdminUpdated, caller, newAdmin.Hex(), map[string]interface{}{
		"role": access.AdminRole.Hex(),
	})
	return nil
}

// RequireAdmin fails with ErrUnauthorized unless caller is the current admin
func (r *Registry) RequireAdmin(caller common.Address) error {
	return r.guard.RequireAdmin(caller)
}

// RoleOf returns the role tag held by account, or the zero hash
func (r *Registry) RoleOf(account common.Address) common.Hash {
	return r.guard.RoleOf(account)
}

// Admin returns the current admin account
func (r *Registry) Admin() common.Address {
	return r.guard.Admin()
}

