package access

import (
	"context"
	"fmt"
	"time"

	"github.com/pagegraph/pagegraph/internal/graph"
)

// Rules manages access rule entities and their flag masks. All flag reads
// go through the request-scoped read-through cache; every successful flag
// mutation invalidates the cached value together with the underlying
// property write, so a caller never observes a stale flag within a request.
type Rules struct {
	store graph.Store
}

// NewRules creates the rule manager.
func NewRules(store graph.Store) *Rules {
	return &Rules{store: store}
}

// Create validates and persists a new access rule.
func (r *Rules) Create(ctx context.Context, entry *Entry) (*Entry, error) {
	props := map[string]any{
		KeyResource:  entry.Resource,
		KeyFlags:     uint64(entry.Flags),
		KeyPosition:  entry.Position,
		KeyCreatedAt: time.Now().UnixNano(),
	}

	if entry.PropertyKey != "" {
		props[KeyPropertyKey] = entry.PropertyKey
	}

	if entry.GranteeID != "" {
		props[KeyGranteeID] = entry.GranteeID
	}

	if err := ValidateRuleProps(props); err != nil {
		return nil, err
	}

	entity := graph.NewEntity(TypeAccessRule, props)
	if err := r.store.Create(ctx, entity); err != nil {
		return nil, fmt.Errorf("access: create rule: %w", err)
	}

	return EntryFromEntity(entity), nil
}

// Flags returns the rule's flag mask through the request cache.
func (r *Rules) Flags(ctx context.Context, ruleID string) (Permission, error) {
	cache := CacheFromContext(ctx)

	if value, ok := cache.Get(ruleID, KeyFlags); ok {
		if flags, ok := value.(Permission); ok {
			return flags, nil
		}
	}

	entity, err := r.store.Get(ctx, ruleID)
	if err != nil {
		return 0, fmt.Errorf("access: load rule %s: %w", ruleID, err)
	}

	flags := Permission(entity.GetUint64(KeyFlags))
	cache.Put(ruleID, KeyFlags, flags)

	return flags, nil
}

// Position returns the rule's position through the request cache.
func (r *Rules) Position(ctx context.Context, ruleID string) (int, error) {
	cache := CacheFromContext(ctx)

	if value, ok := cache.Get(ruleID, KeyPosition); ok {
		if position, ok := value.(int); ok {
			return position, nil
		}
	}

	entity, err := r.store.Get(ctx, ruleID)
	if err != nil {
		return 0, fmt.Errorf("access: load rule %s: %w", ruleID, err)
	}

	position := entity.GetInt(KeyPosition)
	cache.Put(ruleID, KeyPosition, position)

	return position, nil
}

// HasFlag reports whether the rule carries the flag.
func (r *Rules) HasFlag(ctx context.Context, ruleID string, flag Permission) (bool, error) {
	flags, err := r.Flags(ctx, ruleID)
	if err != nil {
		return false, err
	}

	return flags&flag == flag, nil
}

// SetFlag adds a flag to the rule's mask. The cached flag value is dropped
// together with the property write.
func (r *Rules) SetFlag(ctx context.Context, ruleID string, flag Permission) error {
	flags, err := r.Flags(ctx, ruleID)
	if err != nil {
		return err
	}

	if err := r.store.Update(ctx, ruleID, map[string]any{KeyFlags: uint64(flags | flag)}); err != nil {
		return fmt.Errorf("access: set flag on %s: %w", ruleID, err)
	}

	CacheFromContext(ctx).Invalidate(ruleID, KeyFlags)

	return nil
}

// ClearFlag removes a flag from the rule's mask. The cached flag value is
// dropped together with the property write.
func (r *Rules) ClearFlag(ctx context.Context, ruleID string, flag Permission) error {
	flags, err := r.Flags(ctx, ruleID)
	if err != nil {
		return err
	}

	if err := r.store.Update(ctx, ruleID, map[string]any{KeyFlags: uint64(flags &^ flag)}); err != nil {
		return fmt.Errorf("access: clear flag on %s: %w", ruleID, err)
	}

	CacheFromContext(ctx).Invalidate(ruleID, KeyFlags)

	return nil
}
