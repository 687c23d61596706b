package storage

import (
	"bytes"
	"context"
	"sort"
	"strings"

	"github.com/goccy/go-json"

	"github.com/theracowch/cowch/pkg/logger"
	"github.com/theracowch/cowch/pkg/metrics"
)

const DefaultKeyPrefix = "cowch"

// Adapter namespaces keys per user and hides every storage failure from
// callers: loads fall back to a default and saves report success as a bool.
type Adapter struct {
	backend Backend
	prefix  string
}

func NewAdapter(backend Backend, prefix string) *Adapter {
	prefix = strings.Trim(strings.TrimSpace(prefix), ":")
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &Adapter{backend: backend, prefix: prefix}
}

// Key builds "<prefix>:<userID>:<name>".
func (a *Adapter) Key(userID, name string) string {
	return a.prefix + ":" + userID + ":" + name
}

// Load decodes the value stored at key. Missing, null or undecodable data
// yields def().
func Load[T any](ctx context.Context, a *Adapter, key string, def func() T) T {
	raw, found, err := a.backend.Get(ctx, key)
	if err != nil {
		metrics.StorageErrorsTotal.WithLabelValues("load").Inc()
		logger.WarnCF("storage", "Could not read stored value", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
		return def()
	}
	trimmed := bytes.TrimSpace(raw)
	if !found || len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return def()
	}

	var v T
	if err := json.Unmarshal(trimmed, &v); err != nil {
		metrics.StorageErrorsTotal.WithLabelValues("decode").Inc()
		logger.WarnCF("storage", "Stored value is corrupt, using default", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
		return def()
	}
	return v
}

// Save serializes v and stores it at key.
func (a *Adapter) Save(ctx context.Context, key string, v interface{}) bool {
	raw, err := json.Marshal(v)
	if err != nil {
		metrics.StorageErrorsTotal.WithLabelValues("encode").Inc()
		logger.ErrorCF("storage", "Could not serialize value", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
		return false
	}
	if err := a.backend.Set(ctx, key, raw); err != nil {
		metrics.StorageErrorsTotal.WithLabelValues("save").Inc()
		logger.ErrorCF("storage", "Could not save value", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
		return false
	}
	return true
}

// Clear removes the value stored at key.
func (a *Adapter) Clear(ctx context.Context, key string) bool {
	if err := a.backend.Delete(ctx, key); err != nil {
		metrics.StorageErrorsTotal.WithLabelValues("clear").Inc()
		logger.ErrorCF("storage", "Could not clear value", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
		return false
	}
	return true
}

// Users lists the user IDs that have at least one stored key.
func (a *Adapter) Users(ctx context.Context) []string {
	scope := a.prefix + ":"
	keys, err := a.backend.Keys(ctx, scope)
	if err != nil {
		metrics.StorageErrorsTotal.WithLabelValues("list").Inc()
		logger.WarnCF("storage", "Could not list stored keys", map[string]interface{}{"error": err.Error()})
		return nil
	}

	seen := map[string]struct{}{}
	for _, k := range keys {
		rest := strings.TrimPrefix(k, scope)
		idx := strings.LastIndex(rest, ":")
		if idx <= 0 {
			continue
		}
		seen[rest[:idx]] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for u := range seen {
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}

func (a *Adapter) Close() error {
	return a.backend.Close()
}
