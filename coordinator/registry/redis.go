package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"simfleet/protocol"
)

// Mirror pushes registry snapshots into Redis so dashboards and sibling
// tools can read fleet state without touching the coordinator. The
// in-memory registry stays authoritative; mirror failures are logged and
// otherwise ignored.
type Mirror struct {
	client *redis.Client
}

func NewMirror(client *redis.Client) *Mirror {
	return &Mirror{client: client}
}

func rigKey(nodeID int64) string {
	return fmt.Sprintf("simfleet:rig:%d", nodeID)
}

const allRigsKey = "simfleet:rigs"

// SetRig stores one rig snapshot and adds it to the fleet index.
func (m *Mirror) SetRig(ctx context.Context, snap protocol.NodeSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	pipe := m.client.Pipeline()
	pipe.Set(ctx, rigKey(snap.NodeID), data, 0)
	pipe.SAdd(ctx, allRigsKey, snap.NodeID)
	_, err = pipe.Exec(ctx)
	return err
}

// GetRig reads one mirrored snapshot. Missing keys return (nil, nil).
func (m *Mirror) GetRig(ctx context.Context, nodeID int64) (*protocol.NodeSnapshot, error) {
	data, err := m.client.Get(ctx, rigKey(nodeID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var snap protocol.NodeSnapshot
	return &snap, json.Unmarshal(data, &snap)
}

// AllRigIDs lists every mirrored rig id.
func (m *Mirror) AllRigIDs(ctx context.Context) ([]int64, error) {
	members, err := m.client.SMembers(ctx, allRigsKey).Result()
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(members))
	for _, member := range members {
		id, err := strconv.ParseInt(member, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// RemoveRig drops one rig from the mirror.
func (m *Mirror) RemoveRig(ctx context.Context, nodeID int64) error {
	pipe := m.client.Pipeline()
	pipe.Del(ctx, rigKey(nodeID))
	pipe.SRem(ctx, allRigsKey, nodeID)
	_, err := pipe.Exec(ctx)
	return err
}

// Flush clears all mirrored fleet state. Called on coordinator startup so
// stale rigs from a previous run do not linger in dashboards.
func (m *Mirror) Flush(ctx context.Context) error {
	ids, err := m.AllRigIDs(ctx)
	if err != nil {
		return err
	}
	for _, id := range ids {
		m.RemoveRig(ctx, id)
	}
	return m.client.Del(ctx, allRigsKey).Err()
}
