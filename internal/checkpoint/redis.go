package checkpoint

import (
	"fmt"
	"time"

	"github.com/go-mysql-org/go-mysql/mysql"
	"github.com/gomodule/redigo/redis"
)

// RedisHolder keeps the position under a single redis key
type RedisHolder struct {
	pool *redis.Pool
	key  string
}

// NewRedisHolder dials lazily through a small pool
func NewRedisHolder(addr, password, key string) *RedisHolder {
	pool := &redis.Pool{
		MaxIdle:     1,
		MaxActive:   2,
		IdleTimeout: 5 * time.Minute,
		Dial: func() (redis.Conn, error) {
			opts := []redis.DialOption{redis.DialConnectTimeout(5 * time.Second)}
			if password != "" {
				opts = append(opts, redis.DialPassword(password))
			}
			return redis.Dial("tcp", addr, opts...)
		},
	}
	return &RedisHolder{pool: pool, key: key}
}

// Load implements Holder
func (h *RedisHolder) Load() (*mysql.Position, error) {
	conn := h.pool.Get()
	defer conn.Close()

	value, err := redis.String(conn.Do("GET", h.key))
	if err == redis.ErrNil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load position from redis: %w", err)
	}
	pos, err := Parse(value)
	if err != nil {
		return nil, err
	}
	return &pos, nil
}

// Save implements Holder
func (h *RedisHolder) Save(pos mysql.Position) error {
	conn := h.pool.Get()
	defer conn.Close()

	if _, err := conn.Do("SET", h.key, Format(pos)); err != nil {
		return fmt.Errorf("failed to save position to redis: %w", err)
	}
	return nil
}

// Close releases the pool
func (h *RedisHolder) Close() error {
	return h.pool.Close()
}
