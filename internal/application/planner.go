package application

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sort"

	"github.com/bnema/ritual-rpa/internal/domain"
	"github.com/rs/zerolog"
)

// BlockPredicate reports whether an account must be left out of planning.
type BlockPredicate func(domain.Account) bool

// PairPlanner turns the roster and the current progress into an ordered plan.
type PairPlanner struct {
	progress *ProgressStore
	logger   zerolog.Logger
	shuffle  func(n int, swap func(i, j int))
}

func NewPairPlanner(progress *ProgressStore, logger zerolog.Logger) *PairPlanner {
	return &PairPlanner{progress: progress, logger: logger, shuffle: rand.Shuffle}
}

type giverSlot struct {
	account   domain.Account
	remaining int
	usage     int
}

type receiverNeed struct {
	account domain.Account
	bless   int
	curse   int
}

func (n receiverNeed) total() int { return n.bless + n.curse }

type queuedAction struct {
	receiver domain.Account
	action   domain.ActionKind
	priority int
}

// PlanPairs builds the smart plan: neediest receivers first, givers assigned so
// their usage stays flat, then the whole plan is shuffled and renumbered.
// maxActions <= 0 means no cap.
func (p *PairPlanner) PlanPairs(ctx context.Context, roster []domain.Account, maxActions int, blocked BlockPredicate) ([]domain.PlanItem, error) {
	if blocked == nil {
		blocked = func(domain.Account) bool { return false }
	}

	for _, account := range roster {
		p.progress.GetProgress(account.Name)
	}
	if err := p.progress.SaveIfDirty(ctx); err != nil {
		return nil, fmt.Errorf("register roster progress: %w", err)
	}

	givers := p.availableGivers(roster, blocked)
	if len(givers) == 0 {
		p.logger.Warn().Msg("no givers available today")
		return nil, nil
	}

	needs := p.needingReceivers(roster, blocked)
	if len(needs) == 0 {
		p.logger.Info().Msg("all targets satisfied")
		return nil, nil
	}

	items := assignGivers(givers, buildQueue(needs, maxActions))
	p.shuffle(len(items), func(i, j int) { items[i], items[j] = items[j], items[i] })
	domain.Renumber(items)

	p.logger.Info().Int("actions", len(items)).Int("givers", len(givers)).Int("receivers", len(needs)).Msg("planned actions")
	return items, nil
}

func (p *PairPlanner) availableGivers(roster []domain.Account, blocked BlockPredicate) []*giverSlot {
	givers := make([]*giverSlot, 0, len(roster))
	for _, account := range roster {
		if blocked(account) {
			continue
		}
		ok, remaining := p.progress.CanGiveToday(account.Name)
		if !ok {
			continue
		}
		givers = append(givers, &giverSlot{account: account, remaining: remaining})
	}
	return givers
}

func (p *PairPlanner) needingReceivers(roster []domain.Account, blocked BlockPredicate) []receiverNeed {
	needs := make([]receiverNeed, 0, len(roster))
	for _, account := range roster {
		if blocked(account) {
			continue
		}
		_, bless := p.progress.NeedsBless(account.Name)
		_, curse := p.progress.NeedsCurse(account.Name)
		if bless == 0 && curse == 0 {
			continue
		}
		needs = append(needs, receiverNeed{account: account, bless: bless, curse: curse})
	}
	sort.SliceStable(needs, func(i, j int) bool { return needs[i].total() > needs[j].total() })
	return needs
}

func buildQueue(needs []receiverNeed, maxActions int) []queuedAction {
	queue := make([]queuedAction, 0, len(needs)*len(domain.ActionKinds))
	for _, need := range needs {
		if need.bless > 0 {
			queue = append(queue, queuedAction{receiver: need.account, action: domain.ActionBless, priority: need.bless})
		}
		if need.curse > 0 {
			queue = append(queue, queuedAction{receiver: need.account, action: domain.ActionCurse, priority: need.curse})
		}
	}
	sort.SliceStable(queue, func(i, j int) bool { return queue[i].priority > queue[j].priority })
	if maxActions > 0 && len(queue) > maxActions {
		queue = queue[:maxActions]
	}
	return queue
}

// assignGivers walks the queue once. The pointer moves to the next least-used
// giver with capacity after every assignment; items with no eligible giver are
// dropped.
func assignGivers(givers []*giverSlot, queue []queuedAction) []domain.PlanItem {
	items := make([]domain.PlanItem, 0, len(queue))
	idx := 0
	for _, queued := range queue {
		var giver *giverSlot
		for attempts := 0; attempts < len(givers); attempts++ {
			candidate := givers[idx]
			if candidate.account.Name != queued.receiver.Name && candidate.remaining > 0 {
				giver = candidate
				break
			}
			idx = (idx + 1) % len(givers)
		}
		if giver == nil {
			continue
		}

		items = append(items, domain.PlanItem{Giver: giver.account, Receiver: queued.receiver, Action: queued.action})
		giver.remaining--
		giver.usage++
		idx = nextGiver(givers, idx)
	}
	return items
}

func nextGiver(givers []*giverSlot, current int) int {
	minUsage := givers[0].usage
	for _, giver := range givers[1:] {
		minUsage = min(minUsage, giver.usage)
	}
	for i := range givers {
		idx := (current + 1 + i) % len(givers)
		if givers[idx].usage == minUsage && givers[idx].remaining > 0 {
			return idx
		}
	}
	return (current + 1) % len(givers)
}

// PlanChain has every account act on the next one in roster order, wrapping
// around, with one item per action kind.
func PlanChain(roster []domain.Account, maxActions int, blocked BlockPredicate) []domain.PlanItem {
	if len(roster) < 2 {
		return nil
	}

	items := make([]domain.PlanItem, 0, len(roster)*len(domain.ActionKinds))
	for i, giver := range roster {
		receiver := roster[(i+1)%len(roster)]
		for _, kind := range domain.ActionKinds {
			items = append(items, domain.PlanItem{Giver: giver, Receiver: receiver, Action: kind})
		}
	}
	return finishFixedPlan(items, maxActions, blocked)
}

// PlanSingleTarget has every other account act on target.
func PlanSingleTarget(roster []domain.Account, target domain.AccountName, kinds []domain.ActionKind, maxActions int, blocked BlockPredicate) ([]domain.PlanItem, error) {
	receiver, ok := domain.IndexByName(roster)[target]
	if !ok {
		return nil, fmt.Errorf("plan single target: %w: %s", domain.ErrAccountNotFound, target)
	}
	if len(kinds) == 0 {
		kinds = domain.ActionKinds
	}

	items := make([]domain.PlanItem, 0, len(roster)*len(kinds))
	for _, giver := range roster {
		for _, kind := range kinds {
			items = append(items, domain.PlanItem{Giver: giver, Receiver: receiver, Action: kind})
		}
	}
	return finishFixedPlan(items, maxActions, blocked), nil
}

// ExplicitPair names a giver and receiver from the roster. An empty Action
// expands to every action kind.
type ExplicitPair struct {
	Giver    domain.AccountName
	Receiver domain.AccountName
	Action   domain.ActionKind
}

func PlanExplicit(roster []domain.Account, pairs []ExplicitPair, maxActions int, blocked BlockPredicate) ([]domain.PlanItem, error) {
	byName := domain.IndexByName(roster)
	items := make([]domain.PlanItem, 0, len(pairs))
	for _, pair := range pairs {
		giver, ok := byName[pair.Giver]
		if !ok {
			return nil, fmt.Errorf("plan explicit pairs: giver %w: %s", domain.ErrAccountNotFound, pair.Giver)
		}
		receiver, ok := byName[pair.Receiver]
		if !ok {
			return nil, fmt.Errorf("plan explicit pairs: receiver %w: %s", domain.ErrAccountNotFound, pair.Receiver)
		}

		kinds := domain.ActionKinds
		if pair.Action != "" {
			kinds = []domain.ActionKind{pair.Action}
		}
		for _, kind := range kinds {
			items = append(items, domain.PlanItem{Giver: giver, Receiver: receiver, Action: kind})
		}
	}
	return finishFixedPlan(items, maxActions, blocked), nil
}

// finishFixedPlan drops blocked and self-targeting pairs, applies the cap and
// numbers the result.
func finishFixedPlan(items []domain.PlanItem, maxActions int, blocked BlockPredicate) []domain.PlanItem {
	out := make([]domain.PlanItem, 0, len(items))
	for _, item := range items {
		if item.SelfTargeting() {
			continue
		}
		if blocked != nil && (blocked(item.Giver) || blocked(item.Receiver)) {
			continue
		}
		out = append(out, item)
	}
	if maxActions > 0 && len(out) > maxActions {
		out = out[:maxActions]
	}
	domain.Renumber(out)
	return out
}
