package storage

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/dgraph-io/badger/v3"
	"github.com/klauspost/compress/zstd"

	"github.com/annel0/voxel-nav/internal/vec"
	"github.com/annel0/voxel-nav/internal/world"
)

// ErrNotReady возвращается после Close
var ErrNotReady = errors.New("хранилище не готово")

// WorldStorage хранит воксельные чанки эталонного мира в BadgerDB.
// Значением служит сжатый zstd бинарный снимок чанка. Навигационный граф
// не сохраняется: он всегда перестраивается по вокселям.
type WorldStorage struct {
	db      *badger.DB
	dbPath  string
	encoder *zstd.Encoder
	decoder *zstd.Decoder
	mutex   sync.RWMutex
	isReady bool
}

// NewWorldStorage открывает (или создаёт) хранилище в dataPath/world
func NewWorldStorage(dataPath string) (*WorldStorage, error) {
	dbPath := filepath.Join(dataPath, "world")
	opts := badger.DefaultOptions(dbPath)
	opts.Logger = nil // Отключаем логирование BadgerDB

	return open(opts, dbPath)
}

// NewInMemoryWorldStorage создаёт хранилище без файлов (для тестов)
func NewInMemoryWorldStorage() (*WorldStorage, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil

	return open(opts, "")
}

func open(opts badger.Options, dbPath string) (*WorldStorage, error) {
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть BadgerDB: %w", err)
	}

	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		encoder.Close()
		db.Close()
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}

	return &WorldStorage{
		db:      db,
		dbPath:  dbPath,
		encoder: encoder,
		decoder: decoder,
		isReady: true,
	}, nil
}

// Close закрывает хранилище данных
func (ws *WorldStorage) Close() error {
	ws.mutex.Lock()
	defer ws.mutex.Unlock()

	if !ws.isReady {
		return nil
	}

	ws.isReady = false
	ws.decoder.Close()
	_ = ws.encoder.Close()
	return ws.db.Close()
}

func chunkKey(coords vec.Vec2) []byte {
	return []byte(fmt.Sprintf("chunk:%d:%d", coords.X, coords.Z))
}

// SaveChunk сохраняет чанк, если в нём есть изменения, и сбрасывает счётчик
func (ws *WorldStorage) SaveChunk(chunk *world.Chunk) error {
	ws.mutex.RLock()
	defer ws.mutex.RUnlock()

	if !ws.isReady {
		return ErrNotReady
	}

	// Если нет изменений, пропускаем
	if !chunk.HasChanges() {
		return nil
	}

	raw, err := chunk.MarshalBinary()
	if err != nil {
		return fmt.Errorf("ошибка сериализации чанка: %w", err)
	}
	data := ws.encoder.EncodeAll(raw, make([]byte, 0, len(raw)/4))

	err = ws.db.Update(func(txn *badger.Txn) error {
		return txn.Set(chunkKey(chunk.Coords), data)
	})
	if err != nil {
		return fmt.Errorf("ошибка сохранения в BadgerDB: %w", err)
	}

	chunk.ClearChanges()
	return nil
}

// LoadChunk загружает чанк. Второе значение false, если чанк не сохранялся.
func (ws *WorldStorage) LoadChunk(coords vec.Vec2, sizeX, height, sizeZ int) (*world.Chunk, bool, error) {
	ws.mutex.RLock()
	defer ws.mutex.RUnlock()

	if !ws.isReady {
		return nil, false, ErrNotReady
	}

	var data []byte
	err := ws.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(chunkKey(coords))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("ошибка чтения из BadgerDB: %w", err)
	}

	raw, err := ws.decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, false, fmt.Errorf("ошибка распаковки чанка: %w", err)
	}

	chunk := world.NewChunk(coords, sizeX, height, sizeZ)
	if err := chunk.UnmarshalBinary(raw); err != nil {
		return nil, false, fmt.Errorf("ошибка десериализации чанка: %w", err)
	}
	if chunk.SizeX != sizeX || chunk.Height != height || chunk.SizeZ != sizeZ {
		return nil, false, fmt.Errorf("чанк (%d,%d) сохранён с размерами %dx%dx%d", coords.X, coords.Z, chunk.SizeX, chunk.Height, chunk.SizeZ)
	}
	return chunk, true, nil
}

// SaveDirty сохраняет все изменённые чанки мира, возвращает их количество
func (ws *WorldStorage) SaveDirty(w *world.VoxelWorld) (int, error) {
	saved := 0
	for _, coords := range w.Chunks() {
		chunk, ok := w.GetChunk(coords)
		if !ok || !chunk.HasChanges() {
			continue
		}
		if err := ws.SaveChunk(chunk); err != nil {
			return saved, err
		}
		saved++
	}
	return saved, nil
}

// Count возвращает число сохранённых чанков
func (ws *WorldStorage) Count() (int, error) {
	ws.mutex.RLock()
	defer ws.mutex.RUnlock()

	if !ws.isReady {
		return 0, ErrNotReady
	}

	count := 0
	err := ws.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte("chunk:")
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}
