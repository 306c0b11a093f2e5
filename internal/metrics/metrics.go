package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// NavMetrics объединяет Prometheus-метрики навигационной подсистемы.
//
// Метрики:
// * nav_tasks_queued — gauge, текущая глубина очереди планировщика
// * nav_tasks_executed_total{kind} — выполненные задачи по типу
// * nav_task_duration_seconds{kind} — длительность задач
// * nav_task_panics_total — задачи, завершившиеся паникой
// * nav_chunk_rebuilds_total, nav_chunk_walkable_blocks — перестроения графа
// * nav_graph_changed_total — отправленные (после дебаунса) события изменения графа
// * nav_path_searches_total{result} — поиски пути (found/invalid)
// * nav_path_expanded_nodes — раскрытые A* узлы за поиск
type NavMetrics struct {
	TasksQueued    prometheus.Gauge
	TasksExecuted  *prometheus.CounterVec
	TaskDuration   *prometheus.HistogramVec
	TaskPanics     prometheus.Counter
	ChunkRebuilds  prometheus.Counter
	WalkableBlocks prometheus.Histogram
	GraphChanged   prometheus.Counter
	PathSearches   *prometheus.CounterVec
	ExpandedNodes  prometheus.Histogram
}

// New создаёт метрики и регистрирует их в reg. При reg == nil метрики
// работают, но нигде не регистрируются (удобно для тестов).
func New(reg prometheus.Registerer) *NavMetrics {
	m := &NavMetrics{
		TasksQueued: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "nav",
			Name:      "tasks_queued",
			Help:      "Количество задач в очереди планировщика.",
		}),
		TasksExecuted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nav",
			Name:      "tasks_executed_total",
			Help:      "Выполненные задачи планировщика по типу.",
		}, []string{"kind"}),
		TaskDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "nav",
			Name:      "task_duration_seconds",
			Help:      "Длительность выполнения задач.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 14),
		}, []string{"kind"}),
		TaskPanics: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "nav",
			Name:      "task_panics_total",
			Help:      "Задачи, завершившиеся паникой.",
		}),
		ChunkRebuilds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "nav",
			Name:      "chunk_rebuilds_total",
			Help:      "Перестроения навигационного графа чанков.",
		}),
		WalkableBlocks: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "nav",
			Name:      "chunk_walkable_blocks",
			Help:      "Количество WalkableBlock в перестроенном чанке.",
			Buckets:   []float64{0, 16, 64, 128, 256, 512, 1024, 4096},
		}),
		GraphChanged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "nav",
			Name:      "graph_changed_total",
			Help:      "События изменения графа после дебаунса.",
		}),
		PathSearches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nav",
			Name:      "path_searches_total",
			Help:      "Поиски пути по результату.",
		}, []string{"result"}),
		ExpandedNodes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "nav",
			Name:      "path_expanded_nodes",
			Help:      "Количество раскрытых узлов A* за один поиск.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 10),
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.TasksQueued, m.TasksExecuted, m.TaskDuration, m.TaskPanics,
			m.ChunkRebuilds, m.WalkableBlocks, m.GraphChanged,
			m.PathSearches, m.ExpandedNodes,
		)
	}
	return m
}
