package app

import (
	"context"
	"fmt"
	"sync"

	"tablesync/internal/connection"
	"tablesync/internal/db"
	"tablesync/internal/logger"
)

// Emitter receives the sync:* events published while a job runs.
type Emitter func(event string, payload any)

// App struct
type App struct {
	ctx       context.Context
	poolCache map[string]*db.Pool // Cache for DB connections
	mu        sync.Mutex          // Mutex for cache access
	emit      Emitter
}

// NewApp creates a new App; emit may be nil.
func NewApp(emit Emitter) *App {
	return &App{
		ctx:       context.Background(),
		poolCache: make(map[string]*db.Pool),
		emit:      emit,
	}
}

// Startup stores the context later jobs run under.
func (a *App) Startup(ctx context.Context) {
	a.ctx = ctx
}

// Shutdown closes every cached pool.
func (a *App) Shutdown(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for key, p := range a.poolCache {
		if err := p.Close(); err != nil {
			logger.Warnf("关闭数据库连接失败：%v", err)
		}
		delete(a.poolCache, key)
	}
}

// Helper: Generate a unique key for the connection config
func getCacheKey(config connection.ConnectionConfig) string {
	return fmt.Sprintf("%s|%s|%s|%s:%d|%s|%s|%s|%s|%v",
		config.Type, config.Driver, config.User, config.Host, config.Port, config.Database, config.DSN, config.Charset, config.SSH.Host, config.UseSSH)
}

// Helper: Get or create a database pool
func (a *App) getPool(config connection.ConnectionConfig) (*db.Pool, error) {
	key := getCacheKey(config)

	a.mu.Lock()
	defer a.mu.Unlock()

	if p, ok := a.poolCache[key]; ok {
		if err := p.Ping(); err == nil {
			return p, nil
		}
		_ = p.Close()
		delete(a.poolCache, key)
	}

	p, err := db.Open(config)
	if err != nil {
		return nil, err
	}

	a.poolCache[key] = p
	return p, nil
}

func (a *App) emitEvent(event string, payload any) {
	if a.emit != nil {
		a.emit(event, payload)
	}
}

func (a *App) context() context.Context {
	if a.ctx == nil {
		return context.Background()
	}
	return a.ctx
}
