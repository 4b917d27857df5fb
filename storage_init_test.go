package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/JillVernus/feature-gate/internal/config"
	"github.com/JillVernus/feature-gate/internal/quota"
)

func TestInitStorageDefaultsToJSONFile(t *testing.T) {
	envCfg := &config.EnvConfig{StorageType: "json", ConfigDir: t.TempDir()}

	store, closeFn := InitStorage(envCfg)
	if closeFn != nil {
		t.Cleanup(func() { closeFn() })
	}

	if _, ok := store.(*quota.FileStore); !ok {
		t.Fatalf("expected *quota.FileStore, got %T", store)
	}
}

func TestInitStorageUnknownTypeFallsBackToJSON(t *testing.T) {
	envCfg := &config.EnvConfig{StorageType: "cassandra", ConfigDir: t.TempDir()}

	store, closeFn := InitStorage(envCfg)
	if closeFn != nil {
		t.Cleanup(func() { closeFn() })
	}

	if _, ok := store.(*quota.FileStore); !ok {
		t.Fatalf("expected fallback to *quota.FileStore, got %T", store)
	}
}

func TestInitStorageDatabaseSQLite(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("DATABASE_TYPE", "sqlite")
	t.Setenv("DATABASE_URL", filepath.Join(dir, "gate.db"))
	envCfg := &config.EnvConfig{StorageType: "database", ConfigDir: dir}

	store, closeFn := InitStorage(envCfg)
	if closeFn == nil {
		t.Fatalf("expected a close function for database storage")
	}
	t.Cleanup(func() { closeFn() })

	if _, ok := store.(*quota.DBQuotaStorage); !ok {
		t.Fatalf("expected *quota.DBQuotaStorage, got %T", store)
	}
}

func TestInitStorageDatabaseMigratesLegacyJSON(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("DATABASE_TYPE", "sqlite")
	t.Setenv("DATABASE_URL", filepath.Join(dir, "gate.db"))
	envCfg := &config.EnvConfig{StorageType: "database", ConfigDir: dir}

	// 旧版 JSON 配额文件，首次切换到数据库存储时应被导入
	legacy := map[string]map[quota.Feature]quota.State{
		"features": {
			quota.FeatureSearch: {Feature: quota.FeatureSearch, UsageCount: 4, CooldownStart: 1700000000},
		},
	}
	data, err := json.Marshal(legacy)
	if err != nil {
		t.Fatalf("marshal legacy file: %v", err)
	}
	jsonPath := filepath.Join(dir, "feature_quota.json")
	if err := os.WriteFile(jsonPath, data, 0644); err != nil {
		t.Fatalf("write legacy file: %v", err)
	}

	store, closeFn := InitStorage(envCfg)
	if closeFn == nil {
		t.Fatalf("expected a close function for database storage")
	}
	t.Cleanup(func() { closeFn() })

	st, err := store.Load(quota.FeatureSearch)
	if err != nil {
		t.Fatalf("load migrated state: %v", err)
	}
	if st == nil {
		t.Fatalf("expected migrated state for %s, got none", quota.FeatureSearch)
	}
	if st.UsageCount != 4 || st.CooldownStart != 1700000000 {
		t.Fatalf("expected usage=4 cooldownStart=1700000000, got usage=%d cooldownStart=%d",
			st.UsageCount, st.CooldownStart)
	}

	// 迁移后原 JSON 文件应被改名备份，避免二次导入
	if _, err := os.Stat(jsonPath); !os.IsNotExist(err) {
		t.Fatalf("expected legacy JSON to be renamed after migration, stat err=%v", err)
	}
}
