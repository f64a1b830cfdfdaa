package engine

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/dehublabs/predictiond/internal/domain"
)

// Roles is the access-control component: a role→address mapping checked at
// the top of every privileged operation. The admin changes configuration and
// roles; the operator drives the round lifecycle.
//
// Roles carries its own lock: handover arrives through the admin API while
// the driver goroutine checks the operator role on every tick, so reads and
// writes must synchronize independently of the engine mutex.
type Roles struct {
	mu       sync.RWMutex
	admin    common.Address
	operator common.Address
}

// NewRoles creates the role set with the given admin and operator addresses.
func NewRoles(admin, operator common.Address) *Roles {
	return &Roles{admin: admin, operator: operator}
}

// Admin returns the current admin address.
func (r *Roles) Admin() common.Address {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.admin
}

// Operator returns the current operator address.
func (r *Roles) Operator() common.Address {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.operator
}

// RequireAdmin returns ErrUnauthorized unless caller is the admin.
func (r *Roles) RequireAdmin(caller common.Address) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if caller != r.admin {
		return domain.ErrUnauthorized
	}
	return nil
}

// RequireOperator returns ErrUnauthorized unless caller is the operator.
func (r *Roles) RequireOperator(caller common.Address) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if caller != r.operator {
		return domain.ErrUnauthorized
	}
	return nil
}

// SetOperator changes the operator address. Only the admin may call it.
func (r *Roles) SetOperator(caller, operator common.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if caller != r.admin {
		return domain.ErrUnauthorized
	}
	r.operator = operator
	return nil
}

// SetAdmin hands the admin role to a new address. Only the current admin may
// call it.
func (r *Roles) SetAdmin(caller, admin common.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if caller != r.admin {
		return domain.ErrUnauthorized
	}
	r.admin = admin
	return nil
}
