package replication

import (
	"time"

	"github.com/pixil98/go-tundra/internal/scene"
)

type SyncManagerOpt func(*SyncManager)

func WithUpdatePeriod(d time.Duration) SyncManagerOpt {
	return func(sm *SyncManager) {
		sm.SetUpdatePeriod(d)
	}
}

func WithCodec(c scene.Codec) SyncManagerOpt {
	return func(sm *SyncManager) {
		sm.codec = c
	}
}

func WithClock(now func() time.Time) SyncManagerOpt {
	return func(sm *SyncManager) {
		sm.now = now
	}
}
