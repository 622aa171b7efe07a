package memory

import "github.com/EcoEarn/ecoearn-interface-sub000/pkg/kv"

// The factory fills JanitorInterval before any backend is built.
func init() {
	kv.RegisterBackend(kv.BackendMemory, func(cfg kv.Config) (kv.Store, error) {
		return New(cfg.JanitorInterval), nil
	})
}
