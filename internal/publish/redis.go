package publish

import (
	"context"
	"fmt"
	"time"

	"github.com/gomodule/redigo/redis"

	"github.com/hyperjump/simgroup/internal/models"
)

// ConnPool hands out Redis connections. *redis.Pool satisfies it.
type ConnPool interface {
	Get() redis.Conn
	Close() error
}

// RedisSink appends encoded messages to a Redis list, which consumers pop as a queue.
type RedisSink struct {
	pool ConnPool
	key  string
}

// NewRedisPool returns a connection pool for addr.
func NewRedisPool(addr string) *redis.Pool {
	return &redis.Pool{
		MaxIdle:     4,
		IdleTimeout: 4 * time.Minute,
		Dial: func() (redis.Conn, error) {
			return redis.Dial("tcp", addr,
				redis.DialConnectTimeout(5*time.Second),
				redis.DialReadTimeout(10*time.Second),
				redis.DialWriteTimeout(10*time.Second),
			)
		},
		TestOnBorrow: func(c redis.Conn, t time.Time) error {
			if time.Since(t) < time.Minute {
				return nil
			}
			_, err := c.Do("PING")
			return err
		},
	}
}

// NewRedisSink returns a sink pushing to list key through pool.
func NewRedisSink(pool ConnPool, key string) *RedisSink {
	return &RedisSink{pool: pool, key: key}
}

// Send RPUSHes one envelope onto the list.
func (s *RedisSink) Send(ctx context.Context, messageType string, records []models.GroupAssignment) error {
	payload, err := Encode(messageType, records)
	if err != nil {
		return err
	}
	conn := s.pool.Get()
	defer conn.Close()
	if err := conn.Err(); err != nil {
		return fmt.Errorf("redis connection: %w", err)
	}
	if cwt, ok := conn.(redis.ConnWithContext); ok {
		_, err = cwt.DoContext(ctx, "RPUSH", s.key, payload)
	} else {
		_, err = conn.Do("RPUSH", s.key, payload)
	}
	if err != nil {
		return fmt.Errorf("redis RPUSH %s: %w", s.key, err)
	}
	return nil
}

// Close closes the pool.
func (s *RedisSink) Close() error {
	return s.pool.Close()
}
