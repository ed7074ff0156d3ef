package domain

type PlanItem struct {
	Giver    Account
	Receiver Account
	Action   ActionKind
	Index    int
	Total    int
}

func (p PlanItem) SelfTargeting() bool {
	return p.Giver.Name == p.Receiver.Name
}

// Renumber assigns 1-based indexes in slice order.
func Renumber(items []PlanItem) {
	for i := range items {
		items[i].Index = i + 1
		items[i].Total = len(items)
	}
}

// GiverBatch is the slice of a plan one profile session executes.
type GiverBatch struct {
	Giver Account
	Items []PlanItem
}

// GroupByGiver keeps the first-appearance order of givers and the plan order of
// items within each giver, then splits groups longer than perSession.
func GroupByGiver(items []PlanItem, perSession int) []GiverBatch {
	order := make([]AccountName, 0)
	grouped := make(map[AccountName][]PlanItem)
	givers := make(map[AccountName]Account)
	for _, item := range items {
		name := item.Giver.Name
		if _, ok := grouped[name]; !ok {
			order = append(order, name)
			givers[name] = item.Giver
		}
		grouped[name] = append(grouped[name], item)
	}

	batches := make([]GiverBatch, 0, len(order))
	for _, name := range order {
		group := grouped[name]
		if perSession <= 0 {
			batches = append(batches, GiverBatch{Giver: givers[name], Items: group})
			continue
		}
		for start := 0; start < len(group); start += perSession {
			end := min(start+perSession, len(group))
			batches = append(batches, GiverBatch{Giver: givers[name], Items: group[start:end]})
		}
	}

	return batches
}
