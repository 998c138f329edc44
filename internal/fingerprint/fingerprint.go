// Package fingerprint computes stable content digests over the semantically
// relevant subset of a canonical entity. Fields outside that subset (free-text
// notes, manually curated descriptions) never enter the digest, so manual
// edits in the content store survive a re-sync.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/lucasjahn/simplyOrg-connector/internal/domain"
)

// eventPayload pins the set and order of event fields that participate in the
// digest. Struct-tag marshalling keeps the key order fixed across runs.
type eventPayload struct {
	ExternalID string              `json:"external_id"`
	Title      string              `json:"title"`
	Trainers   []domain.TrainerRef `json:"trainers"`
	Category   string              `json:"category"`
	Dates      []domain.DateEntry  `json:"dates"`
}

type trainerPayload struct {
	ExternalID *int64 `json:"external_id"`
	Name       string `json:"name"`
}

// Event digests a canonical event. Trainer order and date order are part of
// the content: the normalizer already emits both in canonical order.
func Event(ev domain.CanonicalEvent) string {
	return digest(eventPayload{
		ExternalID: ev.ExternalID,
		Title:      ev.Title,
		Trainers:   ev.Trainers,
		Category:   ev.Category,
		Dates:      ev.Dates,
	})
}

// Trainer digests a trainer reference.
func Trainer(t domain.TrainerRef) string {
	return digest(trainerPayload{
		ExternalID: t.ExternalID,
		Name:       t.Name,
	})
}

// Changed reports whether an entity needs a write: an empty stored
// fingerprint means the entity has never been synced and counts as changed.
func Changed(stored, fresh string) bool {
	if stored == "" {
		return true
	}
	return stored != fresh
}

func digest(payload any) string {
	data, err := json.Marshal(payload)
	if err != nil {
		// Payload types contain only plain data; Marshal cannot fail on them.
		panic(err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
