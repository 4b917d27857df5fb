package main

import (
	"log"
	"path/filepath"

	"github.com/JillVernus/feature-gate/internal/config"
	"github.com/JillVernus/feature-gate/internal/database"
	"github.com/JillVernus/feature-gate/internal/quota"
)

// InitStorage 根据 STORAGE_TYPE 选择配额存储后端
// 返回存储实例和关闭函数（无需关闭时为 nil）。
// database / redis 初始化失败时回退到 JSON 文件存储，服务不因外部依赖缺失而拒绝启动。
func InitStorage(envCfg *config.EnvConfig) (quota.Store, func() error) {
	switch envCfg.StorageType {
	case "database":
		if store, closeFn := initDatabaseStorage(envCfg); store != nil {
			return store, closeFn
		}
	case "redis":
		if store, closeFn := initRedisStorage(envCfg); store != nil {
			return store, closeFn
		}
	case "json", "":
		// 默认走下面的 JSON 分支
	default:
		log.Printf("⚠️ 未知的 STORAGE_TYPE=%q，回退到 JSON 文件存储", envCfg.StorageType)
	}

	store, err := quota.NewFileStore(envCfg.ConfigDir)
	if err != nil {
		log.Printf("⚠️ JSON 配额存储初始化失败: %v (使用内存存储，重启后用量丢失)", err)
		return quota.NewMemoryStore(), nil
	}
	log.Printf("📁 Using JSON file storage (default)")
	return store, nil
}

// initDatabaseStorage 初始化数据库存储 (STORAGE_TYPE=database)
// 返回 nil 表示初始化失败，调用方回退到 JSON 存储
func initDatabaseStorage(envCfg *config.EnvConfig) (quota.Store, func() error) {
	log.Printf("🗄️ Using database storage (STORAGE_TYPE=database)")

	dbCfg := database.ConfigFromEnv()
	db, err := database.New(dbCfg)
	if err != nil {
		log.Printf("⚠️ Failed to initialize database storage: %v", err)
		log.Printf("📁 Falling back to JSON file storage")
		return nil, nil
	}

	if err := database.RunMigrations(db); err != nil {
		log.Printf("⚠️ Failed to run database migrations: %v", err)
		db.Close()
		log.Printf("📁 Falling back to JSON file storage")
		return nil, nil
	}

	store := quota.NewDBQuotaStorage(db)

	// 从旧版 JSON 文件迁移（仅当数据库为空时执行一次）
	jsonPath := filepath.Join(envCfg.ConfigDir, "feature_quota.json")
	if err := store.MigrateFromJSONIfNeeded(jsonPath); err != nil {
		log.Printf("⚠️ JSON migration had errors: %v", err)
	}

	log.Printf("✅ Database storage initialized (dialect: %s)", db.Dialect())
	return store, db.Close
}

// initRedisStorage 初始化 Redis 存储 (STORAGE_TYPE=redis)
// 返回 nil 表示初始化失败，调用方回退到 JSON 存储
func initRedisStorage(envCfg *config.EnvConfig) (quota.Store, func() error) {
	log.Printf("📦 Using Redis storage (STORAGE_TYPE=redis)")

	store, err := quota.NewRedisStore(envCfg.RedisAddr, envCfg.RedisPassword, envCfg.RedisDB)
	if err != nil {
		log.Printf("⚠️ Failed to initialize Redis storage: %v", err)
		log.Printf("📁 Falling back to JSON file storage")
		return nil, nil
	}

	log.Printf("✅ Redis storage initialized (addr: %s, db: %d)", envCfg.RedisAddr, envCfg.RedisDB)
	return store, store.Close
}
