package world

import (
	"github.com/annel0/voxel-nav/internal/vec"
)

// Listener получает уведомления мира. Вызывается синхронно из горутины,
// которая изменила мир, поэтому реализация не должна блокироваться надолго.
type Listener interface {
	// OnWorldChanged вызывается после изменения вокселя
	OnWorldChanged(pos vec.Vec3)
	// OnChunkLoaded вызывается после того, как чанк стал доступен
	OnChunkLoaded(coords vec.Vec2)
	// OnChunkUnloaded вызывается после выгрузки чанка
	OnChunkUnloaded(coords vec.Vec2)
}

// ListenerFuncs адаптер для функций
type ListenerFuncs struct {
	Changed  func(pos vec.Vec3)
	Loaded   func(coords vec.Vec2)
	Unloaded func(coords vec.Vec2)
}

func (l ListenerFuncs) OnWorldChanged(pos vec.Vec3) {
	if l.Changed != nil {
		l.Changed(pos)
	}
}

func (l ListenerFuncs) OnChunkLoaded(coords vec.Vec2) {
	if l.Loaded != nil {
		l.Loaded(coords)
	}
}

func (l ListenerFuncs) OnChunkUnloaded(coords vec.Vec2) {
	if l.Unloaded != nil {
		l.Unloaded(coords)
	}
}
