package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/annel0/voxel-nav/internal/cache"
	"github.com/annel0/voxel-nav/internal/logging"
	"github.com/annel0/voxel-nav/internal/middleware"
	"github.com/annel0/voxel-nav/internal/navgraph"
	"github.com/annel0/voxel-nav/internal/pathfinder"
	"github.com/annel0/voxel-nav/internal/pathservice"
	"github.com/annel0/voxel-nav/internal/scheduler"
	"github.com/annel0/voxel-nav/internal/vec"
	"github.com/annel0/voxel-nav/internal/world"
)

// Graph описывает, что REST нужно от навигационного графа
type Graph interface {
	Lookup(pos vec.Vec3) *navgraph.WalkableBlock
	Version() uint64
	Revision() uint64
	ChunkCoords() []vec.Vec2
}

// PathRequester выполняет асинхронный поиск пути
type PathRequester interface {
	RequestPath(ctx context.Context, starts []vec.Vec3, target vec.Vec3, h pathservice.Handler) (uint64, error)
	Cancel(id uint64)
}

// WorldEditor изменяет воксельный мир. Изменения доходят до графа через
// уведомления мира, REST только инициирует их.
type WorldEditor interface {
	SetSolid(pos vec.Vec3, solid bool) bool
	UnloadChunk(coords vec.Vec2) (*world.Chunk, bool)
}

// ChunkSaver сохраняет выгружаемые чанки
type ChunkSaver interface {
	SaveChunk(chunk *world.Chunk) error
}

// SchedulerStats источник статистики очереди
type SchedulerStats interface {
	Stats() scheduler.Stats
}

// RestServer представляет REST API сервер навигации
type RestServer struct {
	router      *gin.Engine
	server      *http.Server
	graph       Graph
	paths       PathRequester
	sched       SchedulerStats
	world       WorldEditor
	store       ChunkSaver
	port        string
	pathTimeout time.Duration
	cache       cache.CacheRepo
	cacheTTL    time.Duration
	namespace   string
	metrics     *ServerMetrics
	logger      *logging.Logger
}

// Config содержит конфигурацию для REST сервера
type Config struct {
	Port        string        // порт для запуска сервера, ":8090"
	Graph       Graph         // навигационный граф
	Paths       PathRequester // сервис запросов пути
	Scheduler   SchedulerStats
	World       WorldEditor // nil — мир только для чтения
	Store       ChunkSaver  // куда сохранять выгружаемые чанки; nil — не сохранять
	Registry    *prometheus.Registry // метрики для /metrics; nil — без метрик
	PathTimeout time.Duration        // сколько ждать результат поиска
	Cache       cache.CacheRepo      // кеш результатов; nil — без кеша
	CacheTTL    time.Duration        // время жизни записи кеша
	Namespace   string               // префикс ключей кеша, уникальный для экземпляра мира
	Logger      *logging.Logger
}

// NewRestServer создает новый REST API сервер
func NewRestServer(config Config) *RestServer {
	if config.Port == "" {
		config.Port = ":8090"
	}
	if config.PathTimeout <= 0 {
		config.PathTimeout = 5 * time.Second
	}
	if config.Logger == nil {
		config.Logger = logging.GetComponentLogger(logging.ComponentServer)
	}

	// Устанавливаем режим релиза для gin
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()        // без стандартного logger/recovery
	router.Use(gin.Recovery()) // добавим только recovery

	// === Observability middleware ===
	router.Use(otelgin.Middleware("voxel-nav"))
	router.Use(middleware.NewRequestLogger(config.Logger).Handler())

	if config.Registry != nil {
		promMw := middleware.NewPrometheusMiddleware("nav_rest", config.Registry)
		router.Use(promMw.Handler())
		promMw.RegisterMetricsEndpoint(router, config.Registry)
	}

	rs := &RestServer{
		router:      router,
		graph:       config.Graph,
		paths:       config.Paths,
		sched:       config.Scheduler,
		world:       config.World,
		store:       config.Store,
		port:        config.Port,
		pathTimeout: config.PathTimeout,
		cache:       config.Cache,
		cacheTTL:    config.CacheTTL,
		namespace:   config.Namespace,
		metrics:     NewServerMetrics(),
		logger:      config.Logger,
	}
	rs.setupRoutes()
	return rs
}

// setupRoutes настраивает маршруты REST API
func (rs *RestServer) setupRoutes() {
	v1 := rs.router.Group("/api/v1")
	{
		v1.GET("/lookup", rs.handleLookup)
		v1.POST("/path", rs.handlePath)
		v1.GET("/stats", rs.handleStats)

		if rs.world != nil {
			v1.POST("/voxel", rs.handleSetVoxel)
			v1.DELETE("/chunks/:x/:z", rs.handleUnloadChunk)
		}
	}

	// Health check
	rs.router.GET("/health", rs.handleHealth)
}

// Handler возвращает http.Handler (для тестов)
func (rs *RestServer) Handler() http.Handler {
	return rs.router
}

// GenericResponse представляет общий ответ API
type GenericResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Point координата [x, y, z] в JSON
type Point [3]int

func (p Point) vec() vec.Vec3 { return vec.Vec3{X: p[0], Y: p[1], Z: p[2]} }

func pointOf(v vec.Vec3) Point { return Point{v.X, v.Y, v.Z} }

// PathRequest тело POST /api/v1/path
type PathRequest struct {
	Starts []Point `json:"starts" binding:"required,min=1"`
	Target *Point  `json:"target" binding:"required"`
}

// VoxelRequest тело POST /api/v1/voxel
type VoxelRequest struct {
	Pos   *Point `json:"pos" binding:"required"`
	Solid *bool  `json:"solid" binding:"required"`
}

// PathResponse результат поиска
type PathResponse struct {
	RequestID uint64  `json:"request_id"`
	Cached    bool    `json:"cached"`
	Valid     bool    `json:"valid"`
	Length    float64 `json:"length"`
	Nodes     []Point `json:"nodes,omitempty"`
	Waypoints []Point `json:"waypoints,omitempty"`
}

func newPathResponse(id uint64, p pathfinder.Path) PathResponse {
	resp := PathResponse{RequestID: id, Valid: p.IsValid(), Length: p.Length}
	for _, pos := range p.Positions() {
		resp.Nodes = append(resp.Nodes, pointOf(pos))
	}
	for _, pos := range p.WaypointPositions() {
		resp.Waypoints = append(resp.Waypoints, pointOf(pos))
	}
	return resp
}

// handleLookup находит WalkableBlock под позицией
func (rs *RestServer) handleLookup(c *gin.Context) {
	var coords [3]int
	for i, name := range []string{"x", "y", "z"} {
		v, err := strconv.Atoi(c.Query(name))
		if err != nil {
			c.JSON(http.StatusBadRequest, GenericResponse{
				Success: false,
				Message: fmt.Sprintf("Неверный параметр %s", name),
			})
			return
		}
		coords[i] = v
	}

	block := rs.graph.Lookup(Point(coords).vec())
	if block == nil {
		c.JSON(http.StatusNotFound, GenericResponse{
			Success: false,
			Message: "Блок не найден",
		})
		return
	}

	data := gin.H{"position": pointOf(block.Position())}
	if floor := block.Floor(); floor != nil {
		data["floor"] = floor.ID()
		data["chunk"] = [2]int{floor.Chunk().X, floor.Chunk().Z}
	}
	neighbors := make([]Point, 0, navgraph.DirectionCount)
	for _, n := range block.Neighbors() {
		neighbors = append(neighbors, pointOf(n.Position()))
	}
	data["neighbors"] = neighbors

	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Блок найден",
		Data:    data,
	})
}

// handlePath ставит поиск в очередь и ждёт результат не дольше pathTimeout
func (rs *RestServer) handlePath(c *gin.Context) {
	var req PathRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, GenericResponse{
			Success: false,
			Message: "Неверный формат запроса",
		})
		return
	}

	starts := make([]vec.Vec3, len(req.Starts))
	for i, p := range req.Starts {
		starts[i] = p.vec()
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), rs.pathTimeout)
	defer cancel()

	key := rs.pathKey(starts, req.Target.vec())
	if resp, ok := rs.cachedPath(ctx, key); ok {
		c.JSON(http.StatusOK, GenericResponse{
			Success: true,
			Message: "Путь из кеша",
			Data:    resp,
		})
		return
	}

	results := make(chan PathResponse, 1)
	id, err := rs.paths.RequestPath(ctx, starts, req.Target.vec(), func(id uint64, p pathfinder.Path) {
		results <- newPathResponse(id, p)
	})
	if err != nil {
		rs.logger.Warn("Запрос пути отклонён: %v", err)
		c.JSON(http.StatusServiceUnavailable, GenericResponse{
			Success: false,
			Message: "Планировщик недоступен",
		})
		return
	}

	select {
	case resp := <-results:
		rs.storePath(ctx, key, resp)
		c.JSON(http.StatusOK, GenericResponse{
			Success: true,
			Message: "Поиск завершён",
			Data:    resp,
		})
	case <-ctx.Done():
		rs.paths.Cancel(id)
		c.JSON(http.StatusGatewayTimeout, GenericResponse{
			Success: false,
			Message: fmt.Sprintf("Поиск #%d не завершился вовремя", id),
		})
	}
}

// pathKey строит ключ кеша. Ревизия графа входит в ключ, поэтому любое
// запланированное изменение мира делает старые записи недостижимыми.
func (rs *RestServer) pathKey(starts []vec.Vec3, target vec.Vec3) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s:path:%d:%s<-", rs.namespace, rs.graph.Revision(), target)
	for _, s := range starts {
		b.WriteString(s.String())
	}
	return b.String()
}

func (rs *RestServer) cachedPath(ctx context.Context, key string) (PathResponse, bool) {
	var resp PathResponse
	if rs.cache == nil {
		return resp, false
	}
	data, err := rs.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			rs.logger.Warn("Кеш путей недоступен: %v", err)
		}
		return resp, false
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return resp, false
	}
	resp.Cached = true
	return resp, true
}

func (rs *RestServer) storePath(ctx context.Context, key string, resp PathResponse) {
	if rs.cache == nil {
		return
	}
	data, err := json.Marshal(resp)
	if err != nil {
		return
	}
	if err := rs.cache.Set(ctx, key, data, rs.cacheTTL); err != nil {
		rs.logger.Warn("Не удалось сохранить путь в кеш: %v", err)
	}
}

// handleSetVoxel меняет воксель. Перестроение графа ставится в очередь
// до ответа, поэтому следующий поиск уже видит изменение.
func (rs *RestServer) handleSetVoxel(c *gin.Context) {
	var req VoxelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, GenericResponse{
			Success: false,
			Message: "Неверный формат запроса",
		})
		return
	}

	pos := req.Pos.vec()
	if !rs.world.SetSolid(pos, *req.Solid) {
		c.JSON(http.StatusNotFound, GenericResponse{
			Success: false,
			Message: "Чанк не загружен",
		})
		return
	}
	rs.logger.Debug("Воксель %s solid=%t", pos, *req.Solid)

	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Воксель изменён",
		Data: gin.H{
			"position": pointOf(pos),
			"solid":    *req.Solid,
			"revision": rs.graph.Revision(),
		},
	})
}

// handleUnloadChunk выгружает чанк из мира и сохраняет его, если он менялся
func (rs *RestServer) handleUnloadChunk(c *gin.Context) {
	x, errX := strconv.Atoi(c.Param("x"))
	z, errZ := strconv.Atoi(c.Param("z"))
	if errX != nil || errZ != nil {
		c.JSON(http.StatusBadRequest, GenericResponse{
			Success: false,
			Message: "Неверные координаты чанка",
		})
		return
	}

	coords := vec.Vec2{X: x, Z: z}
	chunk, ok := rs.world.UnloadChunk(coords)
	if !ok {
		c.JSON(http.StatusNotFound, GenericResponse{
			Success: false,
			Message: "Чанк не загружен",
		})
		return
	}

	saved := false
	if rs.store != nil && chunk.HasChanges() {
		if err := rs.store.SaveChunk(chunk); err != nil {
			rs.logger.Error("❌ Чанк %s выгружен, но не сохранён: %v", coords, err)
			c.JSON(http.StatusInternalServerError, GenericResponse{
				Success: false,
				Message: "Ошибка сохранения чанка",
			})
			return
		}
		saved = true
	}
	rs.logger.Info("📦 Чанк %s выгружен (saved=%t)", coords, saved)

	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Чанк выгружен",
		Data: gin.H{
			"chunk":    [2]int{x, z},
			"saved":    saved,
			"revision": rs.graph.Revision(),
		},
	})
}

// handleStats возвращает статистику графа, очереди и процесса
func (rs *RestServer) handleStats(c *gin.Context) {
	stats := make(map[string]interface{})

	stats["graph"] = map[string]interface{}{
		"version":  rs.graph.Version(),
		"revision": rs.graph.Revision(),
		"chunks":   len(rs.graph.ChunkCoords()),
	}
	if rs.sched != nil {
		stats["scheduler"] = rs.sched.Stats()
	}
	if rs.cache != nil {
		stats["cache"] = rs.cache.GetMetrics()
	}

	cpuPercent, _ := rs.metrics.GetCPUUsage()
	stats["server"] = map[string]interface{}{
		"uptime":      rs.metrics.GetUptime(),
		"memory_mb":   fmt.Sprintf("%.2f", rs.metrics.GetMemoryUsage()),
		"cpu_percent": fmt.Sprintf("%.2f", cpuPercent),
		"server_time": time.Now().Unix(),
	}
	stats["memory_details"] = rs.metrics.GetDetailedMemoryStats()

	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Статистика получена",
		Data:    stats,
	})
}

// handleHealth проверка состояния сервера
func (rs *RestServer) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().Unix(),
	})
}

// Start запускает REST сервер и блокируется до Stop
func (rs *RestServer) Start() error {
	rs.server = &http.Server{Addr: rs.port, Handler: rs.router}
	rs.logger.Info("🌐 REST API слушает %s", rs.port)
	if err := rs.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop корректно останавливает REST сервер
func (rs *RestServer) Stop(ctx context.Context) error {
	if rs.server == nil {
		return nil
	}
	return rs.server.Shutdown(ctx)
}
