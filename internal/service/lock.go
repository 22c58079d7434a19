package service

import "sync"

// activityLocks queues this process's writers per activity id before they
// reach the store's own lock. Ids hash onto a fixed set of mutexes, so
// unrelated activities rarely contend.
type activityLocks struct {
	shards [32]sync.Mutex
}

func (l *activityLocks) lock(activityID string) func() {
	m := &l.shards[shardFor(activityID, len(l.shards))]
	m.Lock()
	return m.Unlock
}

func shardFor(key string, n int) int {
	var h uint32
	for i := 0; i < len(key); i++ {
		h = h*31 + uint32(key[i])
	}
	return int(h % uint32(n))
}
