package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

func TestStoreRoundTrip(t *testing.T) {
	for _, driver := range []string{"file", "sqlite"} {
		t.Run(driver, func(t *testing.T) {
			ctx := context.Background()
			cfg := Config{Driver: driver, Path: filepath.Join(t.TempDir(), "settings.db")}

			st, err := Open(cfg, zerolog.Nop())
			if err != nil {
				t.Fatalf("Open: %v", err)
			}

			if _, ok, err := st.Get(ctx, "spaceId0"); err != nil || ok {
				t.Fatalf("fresh store Get = ok=%v err=%v", ok, err)
			}
			if err := st.Set(ctx, "spaceId0", "acme"); err != nil {
				t.Fatalf("Set: %v", err)
			}
			if err := st.Set(ctx, "spaceId0", "acme2"); err != nil {
				t.Fatalf("overwrite Set: %v", err)
			}
			v, ok, err := st.Get(ctx, "spaceId0")
			if err != nil || !ok || v != "acme2" {
				t.Fatalf("Get = %q ok=%v err=%v", v, ok, err)
			}

			if err := st.Delete(ctx, "spaceId0", "missing"); err != nil {
				t.Fatalf("Delete: %v", err)
			}
			if _, ok, _ := st.Get(ctx, "spaceId0"); ok {
				t.Fatal("key survived Delete")
			}

			if err := st.Set(ctx, "a", "1"); err != nil {
				t.Fatal(err)
			}
			if err := st.Set(ctx, "b", "2"); err != nil {
				t.Fatal(err)
			}
			if err := st.Clear(ctx); err != nil {
				t.Fatalf("Clear: %v", err)
			}
			if _, ok, _ := st.Get(ctx, "a"); ok {
				t.Fatal("key survived Clear")
			}
			if err := st.Close(); err != nil {
				t.Fatalf("Close: %v", err)
			}
		})
	}
}

func TestStorePersistsAcrossReopen(t *testing.T) {
	for _, driver := range []string{"file", "sqlite"} {
		t.Run(driver, func(t *testing.T) {
			ctx := context.Background()
			cfg := Config{Driver: driver, Path: filepath.Join(t.TempDir(), "settings.db")}

			st, err := Open(cfg, zerolog.Nop())
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			if err := st.Set(ctx, "notifierCount", "3"); err != nil {
				t.Fatal(err)
			}
			if err := st.Close(); err != nil {
				t.Fatal(err)
			}

			st, err = Open(cfg, zerolog.Nop())
			if err != nil {
				t.Fatalf("reopen: %v", err)
			}
			defer st.Close()
			v, ok, err := st.Get(ctx, "notifierCount")
			if err != nil || !ok || v != "3" {
				t.Fatalf("after reopen Get = %q ok=%v err=%v", v, ok, err)
			}
		})
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	if _, err := Open(Config{Driver: "redis", Path: "x"}, zerolog.Nop()); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func TestFileStoreCorruptSnapshot(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "settings.db")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}

	st, err := Open(Config{Driver: "file", Path: path}, zerolog.Nop())
	if err != nil {
		t.Fatalf("corrupt snapshot should degrade, got: %v", err)
	}
	defer st.Close()
	if _, ok, _ := st.Get(ctx, "anything"); ok {
		t.Fatal("corrupt store should read as empty")
	}
}
