// Package kv provides a small Redis-like key-value store abstraction with
// in-memory and Redis-backed implementations.
//
// Backends register themselves on import:
//
//	import (
//		"github.com/EcoEarn/ecoearn-interface-sub000/pkg/kv"
//		_ "github.com/EcoEarn/ecoearn-interface-sub000/pkg/kv/memory"
//		_ "github.com/EcoEarn/ecoearn-interface-sub000/pkg/kv/redis"
//	)
//
//	store, err := kv.NewStoreFromConfig(kv.Config{Backend: kv.BackendMemory})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer store.Close()
//
//	_ = store.Set(ctx, "eco:pool:p1", []byte("{}"), 15*time.Second)
//	if _, err := store.Get(ctx, "eco:pool:p1"); errors.Is(err, kv.ErrNotFound) {
//		log.Println("expired")
//	}
//
// A redis backend that cannot be reached at startup degrades to the in-memory
// store; callers see the same interface either way.
package kv
