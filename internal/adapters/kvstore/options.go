package kvstore

import "github.com/okian/ladder/pkg/logger"

// FileOption configures a FileStore.
type FileOption func(*FileStore)

// WithFileLogger sets the logger used for recovery warnings.
func WithFileLogger(l logger.Logger) FileOption {
	return func(s *FileStore) {
		if l != nil {
			s.log = l
		}
	}
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithKeyPrefix namespaces every key stored in Redis.
func WithKeyPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		s.prefix = prefix
	}
}
