package quota

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFileStoreRoundTrip(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "featgate-filestore-test")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	store, err := NewFileStore(tmpDir)
	if err != nil {
		t.Fatalf("Failed to create file store: %v", err)
	}

	// Nothing persisted yet.
	st, err := store.Load(FeatureConversation)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if st != nil {
		t.Fatalf("expected nil for unpersisted feature, got %+v", st)
	}

	if err := store.Save(&State{Feature: FeatureConversation, UsageCount: 4, CooldownStart: 1234}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := store.Save(&State{Feature: FeatureSearch, UsageCount: 1}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	// A fresh store over the same directory must see the saved state,
	// like an app relaunch.
	reopened, err := NewFileStore(tmpDir)
	if err != nil {
		t.Fatalf("Failed to reopen file store: %v", err)
	}

	st, err = reopened.Load(FeatureConversation)
	if err != nil {
		t.Fatalf("Load after reopen failed: %v", err)
	}
	if st == nil || st.UsageCount != 4 || st.CooldownStart != 1234 {
		t.Fatalf("unexpected reloaded state: %+v", st)
	}

	all, err := reopened.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll failed: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 states, got %d", len(all))
	}
}

func TestFileStoreRejectsCorruptFile(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "featgate-filestore-test")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	path := filepath.Join(tmpDir, "feature_quota.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatalf("Failed to write corrupt file: %v", err)
	}

	if _, err := NewFileStore(tmpDir); err == nil {
		t.Fatalf("expected error for corrupt quota file")
	}
}

func TestFileStoreFillsMissingFeatureKey(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "featgate-filestore-test")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	// Legacy documents keyed the map but left the embedded feature
	// field empty.
	path := filepath.Join(tmpDir, "feature_quota.json")
	doc := `{"features":{"refresh":{"usageCount":2,"cooldownStart":0}}}`
	if err := os.WriteFile(path, []byte(doc), 0644); err != nil {
		t.Fatalf("Failed to write legacy file: %v", err)
	}

	store, err := NewFileStore(tmpDir)
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}

	st, err := store.Load(FeatureRefresh)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if st == nil || st.Feature != FeatureRefresh || st.UsageCount != 2 {
		t.Fatalf("unexpected legacy state: %+v", st)
	}
}
