package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	colMapKeyPrefix = "wbs:cols:" // field→columnID map per sheet: wbs:cols:{sheet_id}
	colMapTTL       = 12 * time.Hour
)

// ColumnCache caches resolved field→columnID maps per sheet in Redis, so
// single-row paths (webhook events, link write-back) do not refetch the
// whole sheet. Entries are invalidated when the remote reports the sheet
// gone or the schema stops matching.
type ColumnCache struct {
	client *redis.Client
}

func NewColumnCache(client *redis.Client) *ColumnCache {
	return &ColumnCache{client: client}
}

// Get returns the cached column map for the sheet, or redis.Nil-backed miss
// as (nil, nil).
func (c *ColumnCache) Get(ctx context.Context, sheetID int64) (map[string]int64, error) {
	if c.client == nil {
		return nil, nil
	}
	data, err := c.client.Get(ctx, c.key(sheetID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get column map: %w", err)
	}

	var cols map[string]int64
	if err := json.Unmarshal([]byte(data), &cols); err != nil {
		return nil, fmt.Errorf("unmarshal column map: %w", err)
	}
	return cols, nil
}

// Put stores the column map with a TTL.
func (c *ColumnCache) Put(ctx context.Context, sheetID int64, cols map[string]int64) error {
	if c.client == nil {
		return nil
	}
	data, err := json.Marshal(cols)
	if err != nil {
		return fmt.Errorf("marshal column map: %w", err)
	}
	if err := c.client.Set(ctx, c.key(sheetID), data, colMapTTL).Err(); err != nil {
		return fmt.Errorf("set column map: %w", err)
	}
	return nil
}

// Invalidate drops the cached map for the sheet.
func (c *ColumnCache) Invalidate(ctx context.Context, sheetID int64) error {
	if c.client == nil {
		return nil
	}
	if err := c.client.Del(ctx, c.key(sheetID)).Err(); err != nil {
		return fmt.Errorf("invalidate column map: %w", err)
	}
	return nil
}

func (c *ColumnCache) key(sheetID int64) string {
	return fmt.Sprintf("%s%d", colMapKeyPrefix, sheetID)
}
