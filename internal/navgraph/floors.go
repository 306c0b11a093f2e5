package navgraph

// FindFloors разбивает блоки графа на этажи и записывает переходы между
// этажами внутри чанка. Обход идёт в стабильном порядке (x, z, высота), поэтому
// повторный вызов на том же мире даёт те же id этажей и те же переходы.
func FindFloors(g *ChunkGraph) []*Floor {
	blocks := g.Blocks()
	assigned := make(map[*WalkableBlock]*Floor, len(blocks))
	g.floors = g.floors[:0]

	for _, start := range blocks {
		if _, ok := assigned[start]; ok {
			continue
		}

		floor := newFloor(len(g.floors), g)
		g.floors = append(g.floors, floor)

		queue := []*WalkableBlock{start}
		assigned[start] = floor
		for len(queue) > 0 {
			current := queue[0]
			queue = queue[1:]

			current.floor.Store(floor)
			floor.blocks = append(floor.blocks, current)

			for d := Direction(0); d < DirectionCount; d++ {
				next := current.Neighbor(d)
				if next == nil || next.pos.Y != current.pos.Y {
					continue
				}
				if _, ok := assigned[next]; ok {
					continue
				}
				assigned[next] = floor
				queue = append(queue, next)
			}
		}
	}

	// связи с другой высотой внутри чанка становятся переходами
	for _, block := range blocks {
		from := block.Floor()
		for d := Direction(0); d < DirectionCount; d++ {
			next := block.Neighbor(d)
			if next == nil {
				continue
			}
			to := assigned[next]
			if to == nil || to == from {
				continue
			}
			from.addEntrance(block, to)
		}
	}

	return g.floors
}
