package settings

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"lanpad/internal/bus"
)

func TestStoreLoad(t *testing.T) {
	t.Run("missing file yields defaults", func(t *testing.T) {
		st := NewStore(filepath.Join(t.TempDir(), "settings.json"), nil)

		got := st.Current()
		if got.Provider != ProviderZhipu || got.CorrectionMode != ModeManual {
			t.Fatalf("defaults = %+v", got)
		}
		if st.Degraded() || st.Notice() != "" {
			t.Errorf("degraded=%v notice=%q for a simply missing file", st.Degraded(), st.Notice())
		}
	})

	t.Run("existing file is loaded", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "settings.json")
		writeJSON(t, path, map[string]any{
			"provider": "ollama",
			"providers": map[string]any{
				"ollama": map[string]any{"model": "llama3", "apiUrl": "http://box:11434/api/generate"},
			},
			"aiCorrectionMode": "auto",
		})

		st := NewStore(path, nil)
		got := st.Current()
		if got.Provider != ProviderOllama || got.CorrectionMode != ModeAuto {
			t.Fatalf("loaded = %+v", got)
		}
		ps, ok := got.Active()
		if !ok || ps.Model != "llama3" {
			t.Fatalf("active = %+v ok=%v", ps, ok)
		}
		// Unset keys keep their defaults.
		if got.PromptTemplateID != "default" || got.PromptTemplate == "" {
			t.Errorf("prompt defaults not applied: %+v", got)
		}
	})

	t.Run("corrupt file degrades to defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "settings.json")
		if err := os.WriteFile(path, []byte("{nope"), 0o644); err != nil {
			t.Fatal(err)
		}

		st := NewStore(path, nil)
		if st.Current().Provider != ProviderZhipu {
			t.Fatalf("current = %+v", st.Current())
		}
		if !st.Degraded() || st.Notice() == "" {
			t.Errorf("degraded=%v notice=%q", st.Degraded(), st.Notice())
		}
	})

	t.Run("legacy schema is set aside", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "settings.json")
		writeJSON(t, path, map[string]any{
			"aiProvider":   "online",
			"onlineApiKey": "old-key",
		})

		st := NewStore(path, nil)
		if st.Current().Provider != ProviderZhipu {
			t.Fatalf("current = %+v", st.Current())
		}
		if st.Notice() == "" {
			t.Error("no notice for legacy settings")
		}
		if _, err := os.Stat(path + ".legacy"); err != nil {
			t.Errorf("legacy file not set aside: %v", err)
		}
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Errorf("original legacy file still present: %v", err)
		}
	})
}

func TestStoreUpdate(t *testing.T) {
	t.Run("persists and publishes", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "settings.json")
		b := bus.New()

		var published []Settings
		b.Subscribe(TopicChanged, func(p any) {
			published = append(published, p.(Settings))
		})

		st := NewStore(path, b)
		got, err := st.Update(func(s *Settings) {
			s.CorrectionMode = ModeAuto
			ps := s.Providers[ProviderZhipu]
			ps.APIKey = "sk-test"
			s.Providers[ProviderZhipu] = ps
		})
		if err != nil {
			t.Fatal(err)
		}
		if got.CorrectionMode != ModeAuto {
			t.Fatalf("updated = %+v", got)
		}

		if len(published) != 1 || published[0].CorrectionMode != ModeAuto {
			t.Errorf("published = %+v", published)
		}

		// Reload from disk to confirm persistence.
		st2 := NewStore(path, nil)
		reloaded := st2.Current()
		if reloaded.CorrectionMode != ModeAuto {
			t.Errorf("reloaded = %+v", reloaded)
		}
		if reloaded.Providers[ProviderZhipu].APIKey != "sk-test" {
			t.Errorf("api key not persisted: %+v", reloaded.Providers[ProviderZhipu])
		}
	})

	t.Run("invalid update is rejected", func(t *testing.T) {
		st := NewStore(filepath.Join(t.TempDir(), "settings.json"), nil)
		before := st.Current()

		_, err := st.Update(func(s *Settings) {
			s.CorrectionMode = "sometimes"
		})
		if err == nil {
			t.Fatal("expected validation error")
		}
		if got := st.Current(); got.CorrectionMode != before.CorrectionMode {
			t.Errorf("rejected update leaked into current: %+v", got)
		}
	})

	t.Run("snapshots do not alias the store", func(t *testing.T) {
		st := NewStore(filepath.Join(t.TempDir(), "settings.json"), nil)

		snap := st.Current()
		snap.Providers[ProviderZhipu] = ProviderSettings{APIKey: "tampered"}

		if st.Current().Providers[ProviderZhipu].APIKey == "tampered" {
			t.Fatal("mutating a snapshot changed the store")
		}
	})
}

func TestValidate(t *testing.T) {
	s := Default()
	s.Provider = "nonexistent"
	if err := s.Validate(); err == nil {
		t.Error("expected error for provider without a configuration block")
	}

	s = Default()
	if err := s.Validate(); err != nil {
		t.Errorf("defaults invalid: %v", err)
	}
}

func writeJSON(t *testing.T, path string, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
}
