package scheduler

import (
	"container/heap"
	"context"
)

// Kind тип задачи
type Kind int

const (
	KindRebuild Kind = iota
	KindSearch
	KindShutdown
)

// String возвращает метку типа для логов и метрик
func (k Kind) String() string {
	switch k {
	case KindRebuild:
		return "rebuild"
	case KindSearch:
		return "search"
	case KindShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// Приоритеты: меньшее значение выполняется раньше
const (
	PriorityShutdown int64 = -1
	PriorityRebuild  int64 = 0
)

// Task единица работы планировщика
type Task struct {
	Name     string
	Kind     Kind
	Priority int64
	Run      func(ctx context.Context)

	seq   uint64 // порядок постановки, разрешает равные приоритеты
	index int
	drain bool // только для KindShutdown
}

// NewRebuildTask создаёт задачу перестроения (приоритет 0)
func NewRebuildTask(name string, run func(ctx context.Context)) *Task {
	return &Task{Name: name, Kind: KindRebuild, Priority: PriorityRebuild, Run: run}
}

// NewSearchTask создаёт задачу поиска с приоритетом 1+seq
func NewSearchTask(seq uint64, name string, run func(ctx context.Context)) *Task {
	return &Task{Name: name, Kind: KindSearch, Priority: 1 + int64(seq), Run: run}
}

// taskHeap упорядочивает задачи по (Priority, seq)
type taskHeap []*Task

func (h taskHeap) Len() int { return len(h) }
func (h taskHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority < h[j].Priority
	}
	return h[i].seq < h[j].seq
}
func (h taskHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *taskHeap) Push(x any) {
	t := x.(*Task)
	t.index = len(*h)
	*h = append(*h, t)
}

func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}

var _ heap.Interface = (*taskHeap)(nil)
