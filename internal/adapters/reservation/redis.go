package reservation

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "lighthouse:port:"

// releaseScript deletes a reservation only while this instance still owns it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis shares reservations between orchestrator instances. Each reservation
// is a key written with SET NX and a TTL, so a crashed instance cannot leak a
// port for longer than the TTL. The key's value names the owning instance, and
// Release leaves keys owned by anyone else untouched.
type Redis struct {
	client  *redis.Client
	prefix  string
	ttl     time.Duration
	timeout time.Duration
	owner   string
}

// NewRedis connects to addr and verifies the connection.
func NewRedis(addr, password string, db int, ttl time.Duration, owner string) (*Redis, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Redis{
		client:  client,
		prefix:  defaultRedisPrefix,
		ttl:     ttl,
		timeout: 500 * time.Millisecond,
		owner:   owner,
	}, nil
}

func (r *Redis) key(port int) string {
	return r.prefix + strconv.Itoa(port)
}

func (r *Redis) Reserve(ctx context.Context, port int) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	ok, err := r.client.SetNX(ctx, r.key(port), r.owner, r.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis reserve %d: %w", port, err)
	}
	return ok, nil
}

func (r *Redis) Release(ctx context.Context, port int) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	if err := releaseScript.Run(ctx, r.client, []string{r.key(port)}, r.owner).Err(); err != nil {
		return fmt.Errorf("redis release %d: %w", port, err)
	}
	return nil
}

func (r *Redis) Reserved(ctx context.Context, start, end int) (map[int]struct{}, error) {
	ctx, cancel := context.WithTimeout(ctx, 4*r.timeout)
	defer cancel()
	out := make(map[int]struct{})
	iter := r.client.Scan(ctx, 0, r.prefix+"*", 256).Iterator()
	for iter.Next(ctx) {
		port, err := strconv.Atoi(strings.TrimPrefix(iter.Val(), r.prefix))
		if err != nil {
			continue
		}
		if port >= start && port <= end {
			out[port] = struct{}{}
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan reservations: %w", err)
	}
	return out, nil
}

// Close releases the underlying connection pool.
func (r *Redis) Close() error {
	if r.client == nil {
		return nil
	}
	return r.client.Close()
}
