package pathfinder

import "github.com/annel0/voxel-nav/internal/navgraph"

type queueItem struct {
	node   *navgraph.WalkableBlock
	gScore float64
	fCost  float64
	seq    uint64 // порядок обнаружения
	index  int
}

// priorityQueue упорядочен по fCost, при равенстве раньше обнаруженный узел
type priorityQueue []*queueItem

func (queue priorityQueue) Len() int { return len(queue) }
func (queue priorityQueue) Less(i, j int) bool {
	if queue[i].fCost != queue[j].fCost {
		return queue[i].fCost < queue[j].fCost
	}
	return queue[i].seq < queue[j].seq
}
func (queue priorityQueue) Swap(i, j int) {
	queue[i], queue[j] = queue[j], queue[i]
	queue[i].index = i
	queue[j].index = j
}

func (queue *priorityQueue) Push(x any) {
	item := x.(*queueItem)
	item.index = len(*queue)
	*queue = append(*queue, item)
}

func (queue *priorityQueue) Pop() any {
	old := *queue
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*queue = old[:n-1]
	item.index = -1
	return item
}
