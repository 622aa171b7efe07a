package redis

import (
	"errors"

	"github.com/EcoEarn/ecoearn-interface-sub000/pkg/kv"
)

var errNoURL = errors.New("kv: redis backend selected without ECO_REDIS_URL")

func init() {
	kv.RegisterBackend(kv.BackendRedis, func(cfg kv.Config) (kv.Store, error) {
		if cfg.RedisURL == "" {
			return nil, errNoURL
		}
		return New(cfg.RedisURL)
	})
}
