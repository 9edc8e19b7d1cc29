package config

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

var (
	dotenvOnce sync.Once
	cache      sync.Map // reflect.Type -> any (value of the config struct)
	loadMu     sync.Mutex
)

// Load parses environment variables into cfg, a pointer to a struct.
// The first successful load of a type is cached; later calls copy the cached
// value into cfg. A .env file in the working directory is read once, without
// overriding variables already set.
func Load[T any](cfg *T) error {
	if cfg == nil {
		return fmt.Errorf("config: nil target")
	}
	dotenvOnce.Do(func() {
		_ = godotenv.Load()
	})

	t := reflect.TypeFor[T]()
	if v, ok := cache.Load(t); ok {
		*cfg = v.(T)
		return nil
	}

	loadMu.Lock()
	defer loadMu.Unlock()
	if v, ok := cache.Load(t); ok {
		*cfg = v.(T)
		return nil
	}

	var parsed T
	if err := env.Parse(&parsed); err != nil {
		return fmt.Errorf("config: parse %s: %w", t, err)
	}
	cache.Store(t, parsed)
	*cfg = parsed
	return nil
}

// MustLoad is like Load but panics on failure. Intended for startup.
func MustLoad[T any](cfg *T) {
	if err := Load(cfg); err != nil {
		panic(err)
	}
}

// Reset drops every cached configuration. Tests use it between cases.
func Reset() {
	cache.Range(func(k, _ any) bool {
		cache.Delete(k)
		return true
	})
}
