package utils

import (
	"testing"
	"time"
)

func TestRedisConfig_Defaults(t *testing.T) {
	got := RedisConfig{}.withDefaults()
	if got.DialTimeout != 3*time.Second || got.ReadTimeout != 2*time.Second || got.WriteTimeout != 2*time.Second {
		t.Fatalf("unexpected timeouts: %+v", got)
	}
	if got.PoolSize != 20 || got.PingTimeout != 2*time.Second {
		t.Fatalf("unexpected pool/ping defaults: %+v", got)
	}

	// Explicit values survive.
	got = RedisConfig{PoolSize: 5}.withDefaults()
	if got.PoolSize != 5 {
		t.Fatalf("explicit value overridden: %+v", got)
	}
}

func TestBridgeCapScriptsInitialized(t *testing.T) {
	if bridgeCapAcquireScript == nil || bridgeCapReleaseScript == nil {
		t.Fatalf("expected cap scripts to be initialized")
	}
}
