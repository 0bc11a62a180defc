package publisher

import (
	"context"
	"encoding/json"
	"time"

	"github.com/vishalnemlekar/instabot/internal/catalog"
)

// ChangeMessageKey is the stream field carrying a change event
const ChangeMessageKey = "b64_product"

// ChangeKind tells consumers why a row was written
type ChangeKind string

const (
	ChangeNew     ChangeKind = "new"
	ChangeChanged ChangeKind = "changed"
)

// ChangeEvent is one row written to the store during a pass
type ChangeEvent struct {
	RunID     string               `json:"run_id"`
	Kind      ChangeKind           `json:"kind"`
	Row       catalog.PersistedRow `json:"row"`
	WrittenAt time.Time            `json:"written_at"`
}

// PublishChange encodes ev and publishes it on p
func PublishChange(ctx context.Context, p Publisher, ev ChangeEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return p.Publish(ctx, ChangeMessageKey, data)
}
