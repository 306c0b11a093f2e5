package pathfinder

import (
	"github.com/annel0/voxel-nav/internal/navgraph"
	"github.com/annel0/voxel-nav/internal/vec"
)

type status uint8

const (
	statusPending status = iota
	statusFound
	statusInvalid
)

// Path хранит результат поиска. Узлы идут от цели к старту.
// Нулевое значение означает "ещё не посчитан", Invalid означает "пути нет".
type Path struct {
	// Nodes полная последовательность узлов A*
	Nodes []*navgraph.WalkableBlock
	// Waypoints сглаженная по прямой видимости последовательность; цель и старт сохраняются
	Waypoints []*navgraph.WalkableBlock
	// Length евклидова длина Nodes
	Length float64

	status status
}

// Invalid обозначает отсутствие пути
var Invalid = Path{status: statusInvalid}

// IsValid true, если путь найден
func (p Path) IsValid() bool { return p.status == statusFound }

// IsInvalid true, если пути нет
func (p Path) IsInvalid() bool { return p.status == statusInvalid }

// IsPending true для нулевого значения
func (p Path) IsPending() bool { return p.status == statusPending }

// Target возвращает цель пути
func (p Path) Target() *navgraph.WalkableBlock {
	if len(p.Nodes) == 0 {
		return nil
	}
	return p.Nodes[0]
}

// Start возвращает выбранный старт
func (p Path) Start() *navgraph.WalkableBlock {
	if len(p.Nodes) == 0 {
		return nil
	}
	return p.Nodes[len(p.Nodes)-1]
}

// Positions возвращает координаты узлов
func (p Path) Positions() []vec.Vec3 {
	return positions(p.Nodes)
}

// WaypointPositions возвращает координаты сглаженных точек
func (p Path) WaypointPositions() []vec.Vec3 {
	return positions(p.Waypoints)
}

func positions(blocks []*navgraph.WalkableBlock) []vec.Vec3 {
	result := make([]vec.Vec3, len(blocks))
	for i, b := range blocks {
		result[i] = b.Position()
	}
	return result
}

func (p Path) String() string {
	switch p.status {
	case statusFound:
		return "Path(" + p.Target().Position().String() + " <- " + p.Start().Position().String() + ")"
	case statusInvalid:
		return "Path(INVALID)"
	default:
		return "Path(pending)"
	}
}

func newPath(nodes []*navgraph.WalkableBlock) Path {
	length := 0.0
	for i := 1; i < len(nodes); i++ {
		length += nodes[i-1].Position().DistanceTo(nodes[i].Position())
	}
	return Path{
		Nodes:     nodes,
		Waypoints: Smooth(nodes),
		Length:    length,
		status:    statusFound,
	}
}
