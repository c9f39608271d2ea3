package webkit

import (
	"context"
	"errors"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"github.com/giantswarm/webkit/instrumentation"
	"github.com/giantswarm/webkit/internal/testutil"
	"github.com/giantswarm/webkit/security"
	"github.com/giantswarm/webkit/storage"
	"github.com/giantswarm/webkit/storage/memory"
)

func TestOpenStore_Drivers(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	port, err := strconv.Atoi(mr.Port())
	if err != nil {
		t.Fatalf("Atoi() error = %v", err)
	}

	tests := []struct {
		name string
		cfg  CacheConfig
	}{
		{"map", CacheConfig{Driver: DriverMap}},
		{"shared map", CacheConfig{Driver: DriverSharedMap}},
		{"redis", CacheConfig{Driver: DriverRedis, Address: mr.Host(), Port: port, Iterator: storage.ModeScan}},
		{"bolt", CacheConfig{Driver: DriverBolt, Path: filepath.Join(t.TempDir(), "webkit.db")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := OpenStore(ctx, tt.cfg, nil, testutil.DiscardLogger())
			if err != nil {
				t.Fatalf("OpenStore() error = %v", err)
			}
			defer store.Close()

			if err := store.Write(ctx, "k1", "v1"); err != nil {
				t.Fatalf("Write() error = %v", err)
			}
			got, err := store.Read(ctx, "k1")
			if err != nil || got != "v1" {
				t.Errorf("Read() = %q, %v, want v1", got, err)
			}
		})
	}
}

func TestOpenStore_UnknownDriver(t *testing.T) {
	_, err := OpenStore(context.Background(), CacheConfig{Driver: "etcd"}, nil, nil)
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("OpenStore() error = %v, want ErrInvalidConfig", err)
	}
}

func TestOpenStore_Encrypted(t *testing.T) {
	ctx := context.Background()
	key, err := security.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}

	store, err := OpenStore(ctx, CacheConfig{Driver: DriverSharedMap, EncryptionKey: key}, nil, testutil.DiscardLogger())
	if err != nil {
		t.Fatalf("OpenStore() error = %v", err)
	}
	defer store.Close()

	if err := store.HWrite(ctx, "h", "f", "secret value"); err != nil {
		t.Fatalf("HWrite() error = %v", err)
	}
	got, err := store.HRead(ctx, "h", "f")
	if err != nil || got != "secret value" {
		t.Errorf("HRead() = %q, %v", got, err)
	}

	if _, err := OpenStore(ctx, CacheConfig{Driver: DriverMap, EncryptionKey: []byte("short")}, nil, nil); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("OpenStore(short key) error = %v, want ErrInvalidConfig", err)
	}
}

func TestOpenStore_Instrumented(t *testing.T) {
	inst, err := instrumentation.New(instrumentation.Config{Enabled: true, MetricExporter: instrumentation.ExporterNone})
	if err != nil {
		t.Fatalf("instrumentation.New() error = %v", err)
	}
	defer inst.Shutdown(context.Background())

	store, err := OpenStore(context.Background(), CacheConfig{Driver: DriverMap}, inst, testutil.DiscardLogger())
	if err != nil {
		t.Fatalf("OpenStore() error = %v", err)
	}
	defer store.Close()

	if _, ok := store.(*storage.InstrumentedStore); !ok {
		t.Errorf("OpenStore() = %T, want *storage.InstrumentedStore", store)
	}
}

func TestNew(t *testing.T) {
	tk, err := New(context.Background(), testConfig(), Options{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if tk.Store() == nil || tk.Sessions() == nil || tk.Server() == nil {
		t.Fatal("New() left a component nil")
	}
	if tk.Auditor() != nil || tk.Instrumentation() != nil {
		t.Error("optional collaborators set without options")
	}
	if tk.Server().Config().DisableRefreshToken {
		t.Error("refresh tokens disabled by default")
	}

	if err := tk.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if err := tk.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestNew_InjectedStore(t *testing.T) {
	store := memory.NewShared(testutil.DiscardLogger())
	tk, err := New(context.Background(), testConfig(), Options{Store: store})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer tk.Close()

	if tk.Store() != store {
		t.Error("Store() is not the injected store")
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"driver", func(c *Config) { c.Cache.Driver = "floppy" }},
		{"token support", func(c *Config) { c.Session.TokenSupport = "header" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			if _, err := New(context.Background(), cfg, Options{}); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("New() error = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestNew_Auditor(t *testing.T) {
	auditor := security.NewAuditor(testutil.DiscardLogger(), true)
	tk, err := New(context.Background(), testConfig(), Options{Auditor: auditor})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer tk.Close()

	if tk.Auditor() != auditor {
		t.Error("Auditor() is not the injected auditor")
	}
}
