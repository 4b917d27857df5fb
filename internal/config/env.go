package config

import (
	"os"
	"strconv"
)

// EnvConfig 环境变量配置
type EnvConfig struct {
	Port            int
	Env             string
	GateAccessKey   string
	LogLevel        string
	ConfigDir       string
	StorageType     string // json | database | redis
	EnableCORS      bool
	CORSOrigin      string
	EnableRateLimit bool
	RateLimitRPS    float64
	RateLimitBurst  int
	HealthCheckPath string
	// Redis 存储配置
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	// 日志文件相关配置
	LogDir        string
	LogFile       string
	LogMaxSize    int  // 单个日志文件最大大小 (MB)
	LogMaxBackups int  // 保留的旧日志文件最大数量
	LogMaxAge     int  // 保留的旧日志文件最大天数
	LogCompress   bool // 是否压缩旧日志文件
	LogToConsole  bool // 是否同时输出到控制台
}

// NewEnvConfig 创建环境配置
func NewEnvConfig() *EnvConfig {
	return &EnvConfig{
		Port:            getEnvAsInt("PORT", 3000),
		Env:             getEnv("ENV", "development"),
		GateAccessKey:   getEnv("GATE_ACCESS_KEY", ""),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		ConfigDir:       getEnv("CONFIG_DIR", ".config"),
		StorageType:     getEnv("STORAGE_TYPE", "json"),
		EnableCORS:      getEnv("ENABLE_CORS", "true") != "false",
		CORSOrigin:      getEnv("CORS_ORIGIN", "*"),
		EnableRateLimit: getEnv("ENABLE_RATE_LIMIT", "false") == "true",
		RateLimitRPS:    getEnvAsFloat("RATE_LIMIT_RPS", 10),
		RateLimitBurst:  getEnvAsInt("RATE_LIMIT_BURST", 20),
		HealthCheckPath: getEnv("HEALTH_CHECK_PATH", "/health"),
		// Redis 存储配置
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),
		// 日志文件配置
		LogDir:        getEnv("LOG_DIR", "logs"),
		LogFile:       getEnv("LOG_FILE", "app.log"),
		LogMaxSize:    getEnvAsInt("LOG_MAX_SIZE", 100),   // 默认 100MB
		LogMaxBackups: getEnvAsInt("LOG_MAX_BACKUPS", 10), // 默认保留 10 个
		LogMaxAge:     getEnvAsInt("LOG_MAX_AGE", 30),     // 默认保留 30 天
		LogCompress:   getEnv("LOG_COMPRESS", "true") != "false",
		LogToConsole:  getEnv("LOG_TO_CONSOLE", "true") != "false",
	}
}

// IsDevelopment 是否为开发环境
func (c *EnvConfig) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction 是否为生产环境
func (c *EnvConfig) IsProduction() bool {
	return c.Env == "production"
}

// ShouldLog 是否应该记录日志
func (c *EnvConfig) ShouldLog(level string) bool {
	levels := map[string]int{
		"error": 0,
		"warn":  1,
		"info":  2,
		"debug": 3,
	}

	currentLevel, ok := levels[c.LogLevel]
	if !ok {
		currentLevel = 2 // 默认 info
	}

	requestLevel, ok := levels[level]
	if !ok {
		return false
	}

	return requestLevel <= currentLevel
}

// getEnv 获取环境变量，如果不存在则返回默认值
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt 获取环境变量并转换为整数
func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvAsFloat 获取环境变量并转换为浮点数
func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}
