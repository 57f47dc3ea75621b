package ledger

import "fmt"

// Backend names accepted by Open.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// Open returns the backend named by kind. path is used by sqlite and
// redisURL by redis.
func Open(kind, path, redisURL string) (Backend, error) {
	switch kind {
	case BackendMemory:
		return NewMemory(), nil
	case BackendSQLite:
		return OpenSQLite(path)
	case BackendRedis:
		return OpenRedis(redisURL)
	default:
		return nil, fmt.Errorf("unknown ledger backend %q", kind)
	}
}
