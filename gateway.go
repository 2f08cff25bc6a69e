package accessgate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/accessgate/internal/flows"
	"github.com/MrEthical07/accessgate/internal/mask"
	"github.com/MrEthical07/accessgate/internal/resilience"
)

// gateway is the only path from the Engine to the AccountStore. Every call
// runs under the database guard; a failure that survives retries becomes
// ErrServiceUnavailable.
type gateway struct {
	store AccountStore
	guard *resilience.Guard
	now   func() time.Time
}

type lookup struct {
	account Account
	found   bool
}

func storeUnavailable[T any](cause error) (T, error) {
	var zero T
	return zero, fmt.Errorf("%w: %v", ErrServiceUnavailable, cause)
}

func (g *gateway) findByEmail(ctx context.Context, email string) (Account, bool, error) {
	res, err := resilience.Execute(ctx, g.guard, mask.Email(email), func(ctx context.Context) (lookup, error) {
		a, found, err := g.store.FindByEmail(ctx, email)
		return lookup{account: a, found: found}, err
	}, storeUnavailable[lookup])
	return res.account, res.found, err
}

func (g *gateway) findByID(ctx context.Context, id string) (Account, bool, error) {
	res, err := resilience.Execute(ctx, g.guard, mask.Identifier(id), func(ctx context.Context) (lookup, error) {
		a, found, err := g.store.FindByID(ctx, id)
		return lookup{account: a, found: found}, err
	}, storeUnavailable[lookup])
	return res.account, res.found, err
}

func (g *gateway) existsByEmail(ctx context.Context, email string) (bool, error) {
	_, found, err := g.findByEmail(ctx, email)
	return found, err
}

// save is insert-or-update. A duplicate email or username is a business
// answer and is returned as ErrAccountExists without retry.
func (g *gateway) save(ctx context.Context, account Account) error {
	_, err := resilience.Execute(ctx, g.guard, mask.Identifier(account.ID), func(ctx context.Context) (struct{}, error) {
		err := g.store.Save(ctx, account)
		if errors.Is(err, ErrAccountExists) {
			return struct{}{}, resilience.Permanent(err)
		}
		return struct{}{}, err
	}, storeUnavailable[struct{}])
	return err
}

// update applies change to the stored account and saves it. Missing accounts
// yield ErrAccountNotFound. Both steps share one guarded attempt, so a retry
// rereads the row.
func (g *gateway) update(ctx context.Context, id string, change func(*Account)) (Account, error) {
	return resilience.Execute(ctx, g.guard, mask.Identifier(id), func(ctx context.Context) (Account, error) {
		a, found, err := g.store.FindByID(ctx, id)
		if err != nil {
			return Account{}, err
		}
		if !found {
			return Account{}, resilience.Permanent(ErrAccountNotFound)
		}
		change(&a)
		a.UpdatedAt = g.now().UTC()
		if err := g.store.Save(ctx, a); err != nil {
			if errors.Is(err, ErrAccountExists) {
				return Account{}, resilience.Permanent(err)
			}
			return Account{}, err
		}
		return a, nil
	}, storeUnavailable[Account])
}

func (g *gateway) setStatus(ctx context.Context, id string, status Status) error {
	_, err := g.update(ctx, id, func(a *Account) { a.Status = status })
	return err
}

func (g *gateway) setPasswordHash(ctx context.Context, id, hash string) error {
	_, err := g.update(ctx, id, func(a *Account) { a.PasswordHash = hash })
	return err
}

func (g *gateway) count(ctx context.Context) (int64, error) {
	return resilience.Execute(ctx, g.guard, "count", g.store.Count, storeUnavailable[int64])
}

/*
====================================
FLOW ADAPTERS
====================================
*/

func flowFinder(find func(context.Context, string) (Account, bool, error)) flows.AccountFinder {
	return func(ctx context.Context, key string) (flows.AccountRecord, bool, error) {
		a, found, err := find(ctx, key)
		if err != nil || !found {
			return flows.AccountRecord{}, found, err
		}
		return toRecord(a), true, nil
	}
}

func (g *gateway) flowSetStatus(ctx context.Context, id string, status flows.AccountStatus) error {
	return g.setStatus(ctx, id, Status(status))
}

func (g *gateway) flowInsert(ctx context.Context, r flows.AccountRecord) error {
	return g.save(ctx, fromRecord(r))
}

func toRecord(a Account) flows.AccountRecord {
	return flows.AccountRecord{
		ID:           a.ID,
		Username:     a.Username,
		Email:        a.Email,
		PasswordHash: a.PasswordHash,
		Status:       flows.AccountStatus(a.Status),
		CreatedAt:    a.CreatedAt,
		UpdatedAt:    a.UpdatedAt,
	}
}

func fromRecord(r flows.AccountRecord) Account {
	return Account{
		ID:           r.ID,
		Username:     r.Username,
		Email:        r.Email,
		PasswordHash: r.PasswordHash,
		Status:       Status(r.Status),
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}
