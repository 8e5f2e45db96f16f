package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	goredis "github.com/go-redis/redis/v8"

	"github.com/quillsync/quill/pkg/quilllog"
	"github.com/quillsync/quill/pkg/revlog"
)

// topicPrefix namespaces document pub-sub channels within a shared Redis
// instance.
const topicPrefix = "quill:doc:"

// Redis is a cross-process PubSub backed by Redis pub-sub, the topology a
// multi-process quilld deployment uses so a write admitted on one process
// reaches clients connected to another.
type Redis struct {
	client *goredis.Client

	mu   sync.Mutex
	subs map[string]*goredis.PubSub
}

// NewRedis wraps an already-connected Redis client.
func NewRedis(client *goredis.Client) *Redis {
	return &Redis{client: client, subs: make(map[string]*goredis.PubSub)}
}

// Publish implements Publisher by publishing the JSON-encoded revision to
// the document's topic. Publish failures are logged, not returned: a
// dropped broadcast is not fatal, since GetDocumentRevisions is always
// the source of truth.
func (r *Redis) Publish(docID string, rev revlog.Revision) {
	data, err := json.Marshal(rev)
	if err != nil {
		quilllog.Error("broadcast: encode revision for doc=%s: %v", docID, err)
		return
	}

	ctx := context.Background()
	if err := r.client.Publish(ctx, topicPrefix+docID, data).Err(); err != nil {
		quilllog.Error("broadcast: publish for doc=%s: %v", docID, err)
	}
}

// Subscribe implements Subscriber by opening a Redis subscription to the
// document's topic and decoding each message as it arrives.
func (r *Redis) Subscribe(docID string) (<-chan revlog.Revision, func()) {
	ctx := context.Background()
	sub := r.client.Subscribe(ctx, topicPrefix+docID)

	out := make(chan revlog.Revision, 16)
	done := make(chan struct{})

	go func() {
		ch := sub.Channel()
		for {
			select {
			case <-done:
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var rev revlog.Revision
				if err := json.Unmarshal([]byte(msg.Payload), &rev); err != nil {
					quilllog.Error("broadcast: decode revision for doc=%s: %v", docID, err)
					continue
				}
				select {
				case out <- rev:
				default:
				}
			}
		}
	}()

	unsubscribe := func() {
		close(done)
		sub.Close()
		// out is deliberately left open: the reader goroutine above may
		// still be inside its send select when done fires, and closing out
		// here would race a concurrent "out <- rev" into a panic. The
		// goroutine exits on its next loop iteration and out is then
		// unreferenced and collected.
	}

	return out, unsubscribe
}

// Ping verifies the Redis connection is reachable, for use at startup.
func (r *Redis) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("broadcast: redis ping: %w", err)
	}
	return nil
}
