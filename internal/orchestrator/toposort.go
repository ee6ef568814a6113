package orchestrator

import (
	"sort"

	"github.com/clawflow/clawflow/internal/models"
)

// topoSort orders tasks by dependency (restricted to edges between members
// of this slice — dependencies outside the group are assumed already
// satisfied), tie-breaking on priority desc then creation time asc.
func topoSort(tasks []*models.Task) []*models.Task {
	byID := make(map[int64]*models.Task, len(tasks))
	inDegree := make(map[int64]int, len(tasks))
	dependents := make(map[int64][]int64, len(tasks))

	for _, t := range tasks {
		byID[t.ID] = t
		inDegree[t.ID] = 0
	}
	for _, t := range tasks {
		for _, dep := range t.DependsOn {
			if _, ok := byID[dep]; !ok {
				continue // dependency outside the group, not an edge to order by
			}
			inDegree[t.ID]++
			dependents[dep] = append(dependents[dep], t.ID)
		}
	}

	ready := make([]*models.Task, 0, len(tasks))
	for _, t := range tasks {
		if inDegree[t.ID] == 0 {
			ready = append(ready, t)
		}
	}
	sortReady(ready)

	var order []*models.Task
	for len(ready) > 0 {
		next := ready[0]
		ready = ready[1:]
		order = append(order, next)

		var newlyReady []*models.Task
		for _, depID := range dependents[next.ID] {
			inDegree[depID]--
			if inDegree[depID] == 0 {
				newlyReady = append(newlyReady, byID[depID])
			}
		}
		sortReady(newlyReady)
		ready = mergeReady(ready, newlyReady)
	}
	return order
}

// mergeReady keeps the combined ready set in priority/creation order
// without a full re-sort of the whole slice each time.
func mergeReady(existing, added []*models.Task) []*models.Task {
	if len(added) == 0 {
		return existing
	}
	out := append(existing, added...)
	sortReady(out)
	return out
}

func sortReady(tasks []*models.Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		pi, pj := priorityRank(tasks[i].Priority), priorityRank(tasks[j].Priority)
		if pi != pj {
			return pi > pj
		}
		return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
	})
}

func priorityRank(p models.Priority) int {
	switch p {
	case models.PriorityCritical:
		return 3
	case models.PriorityHigh:
		return 2
	case models.PriorityMedium:
		return 1
	default:
		return 0
	}
}
