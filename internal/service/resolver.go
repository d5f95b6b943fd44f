package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"orgnotify/internal/model"
	"orgnotify/pkg/metrics"
)

// Directory is the read-only lookup into the organization directory. The
// engine never mutates directory state through it.
type Directory interface {
	ActiveAccountIDs(ctx context.Context) ([]int64, error)
	Affiliations(ctx context.Context, accountIDs []int64) (map[int64]model.AccountAffiliation, error)
	ActiveAccountsByAffiliation(ctx context.Context, kind string, targetIDs []int64) ([]int64, error)
}

// RecipientResolver maps a notification's rule set to the concrete recipient
// set. Implemented by Resolver and by the redis-backed CachedResolver.
type RecipientResolver interface {
	ResolveFor(ctx context.Context, notificationID int64, rules []model.AudienceRule) (map[int64]struct{}, error)
}

type Resolver struct {
	directory Directory
	logger    *zap.Logger
}

func NewResolver(directory Directory, logger *zap.Logger) *Resolver {
	return &Resolver{
		directory: directory,
		logger:    logger,
	}
}

// ResolveFor satisfies RecipientResolver; plain resolution ignores the
// notification id.
func (r *Resolver) ResolveFor(ctx context.Context, _ int64, rules []model.AudienceRule) (map[int64]struct{}, error) {
	return r.Resolve(ctx, rules)
}

// Resolve turns a rule set into the deduplicated set of active accounts.
// Pure with respect to the directory snapshot: the result depends only on
// the rules and the directory, never on rule order. An empty rule set or a
// rule set matching only inactive accounts yields an empty set, not an error.
func (r *Resolver) Resolve(ctx context.Context, rules []model.AudienceRule) (map[int64]struct{}, error) {
	start := time.Now()
	defer func() {
		metrics.RecordResolveDuration("directory", time.Since(start))
	}()

	recipients := make(map[int64]struct{})
	if len(rules) == 0 {
		return recipients, nil
	}

	// An all rule dominates: every other rule is ignored. Authoring a mix
	// is suspicious enough to warn about, but the semantics stay as-is.
	for _, rule := range rules {
		if rule.Kind == model.RuleKindAll {
			if len(rules) > 1 {
				r.logger.Warn("all rule present alongside other audience rules, ignoring the rest",
					zap.Int64("notification_id", rule.NotificationID),
					zap.Int("rule_count", len(rules)),
				)
			}
			ids, err := r.directory.ActiveAccountIDs(ctx)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", model.ErrDirectoryUnavailable, err)
			}
			for _, id := range ids {
				recipients[id] = struct{}{}
			}
			return recipients, nil
		}
	}

	userTargets := make(map[int64]struct{})
	kindTargets := map[string]map[int64]struct{}{
		model.RuleKindProvince:  {},
		model.RuleKindRegion:    {},
		model.RuleKindCommunity: {},
	}

	for _, rule := range rules {
		if rule.TargetID == nil {
			r.logger.Warn("audience rule without target, skipping",
				zap.Int64("rule_id", rule.ID),
				zap.String("kind", rule.Kind),
			)
			continue
		}
		switch rule.Kind {
		case model.RuleKindUser:
			userTargets[*rule.TargetID] = struct{}{}
		case model.RuleKindProvince, model.RuleKindRegion, model.RuleKindCommunity:
			kindTargets[rule.Kind][*rule.TargetID] = struct{}{}
		default:
			r.logger.Warn("unknown audience rule kind, skipping",
				zap.Int64("rule_id", rule.ID),
				zap.String("kind", rule.Kind),
			)
		}
	}

	// One directory query per hierarchical kind; results are active-only.
	for _, kind := range []string{model.RuleKindProvince, model.RuleKindRegion, model.RuleKindCommunity} {
		targets := kindTargets[kind]
		if len(targets) == 0 {
			continue
		}
		ids, err := r.directory.ActiveAccountsByAffiliation(ctx, kind, setToSortedIDs(targets))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", model.ErrDirectoryUnavailable, err)
		}
		for _, id := range ids {
			recipients[id] = struct{}{}
		}
	}

	// Directly targeted accounts still have to be active to receive delivery.
	if len(userTargets) > 0 {
		affiliations, err := r.directory.Affiliations(ctx, setToSortedIDs(userTargets))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", model.ErrDirectoryUnavailable, err)
		}
		for id := range userTargets {
			if a, ok := affiliations[id]; ok && a.Active {
				recipients[id] = struct{}{}
			}
		}
	}

	return recipients, nil
}

// SortedIDs flattens a recipient set into a stable, ascending slice.
func SortedIDs(set map[int64]struct{}) []int64 {
	return setToSortedIDs(set)
}

func setToSortedIDs(set map[int64]struct{}) []int64 {
	ids := make([]int64, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
