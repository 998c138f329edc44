package service

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/lucasjahn/simplyOrg-connector/internal/domain"
	"github.com/lucasjahn/simplyOrg-connector/internal/fingerprint"
)

// TrainerResolver makes sure every trainer referenced by an event exists as
// an entity in the content store. Lookup goes by upstream id first, then by
// exact name; a name match back-fills the upstream id so later passes take
// the strong key. Two differently spelled names for the same person will
// create two entities; the upstream data gives nothing safer to match on.
type TrainerResolver struct {
	store       ContentStore
	log         *slog.Logger
	trainerType string
}

func NewTrainerResolver(store ContentStore, trainerType string, log *slog.Logger) *TrainerResolver {
	return &TrainerResolver{
		store:       store,
		log:         log.With(slog.String("component", "trainer_resolver")),
		trainerType: trainerType,
	}
}

// Resolve creates or refreshes the entity for one trainer reference and
// reports whether a new entity was created.
func (r *TrainerResolver) Resolve(ctx context.Context, ref domain.TrainerRef) (bool, error) {
	newFP := fingerprint.Trainer(ref)

	if ref.ExternalID != nil {
		extID := strconv.FormatInt(*ref.ExternalID, 10)
		id, found, err := r.store.FindEntityByExternalID(ctx, extID, r.trainerType)
		if err != nil {
			return false, err
		}
		if found {
			return false, r.refresh(ctx, id, ref, newFP)
		}
	}

	id, found, err := r.store.FindEntityByTitle(ctx, ref.Name, r.trainerType)
	if err != nil {
		return false, err
	}
	if found {
		return false, r.refresh(ctx, id, ref, newFP)
	}

	id, err = r.store.CreateEntity(ctx, r.trainerType, ref.Name, "")
	if err != nil {
		return false, err
	}
	if err := r.store.SetStructuredFields(ctx, id, trainerFields(ref)); err != nil {
		return false, err
	}
	if err := r.store.SetFingerprint(ctx, id, newFP); err != nil {
		return false, err
	}

	r.log.Debug("trainer created", slog.String("name", ref.Name), slog.Int64("entity_id", id))
	return true, nil
}

// refresh rewrites name, fields and fingerprint when the stored fingerprint
// no longer matches. A name-matched trainer with an unknown stored
// fingerprint always lands here, which is what back-fills its upstream id.
func (r *TrainerResolver) refresh(ctx context.Context, id int64, ref domain.TrainerRef, newFP string) error {
	stored, _, err := r.store.GetFingerprint(ctx, id)
	if err != nil {
		return err
	}
	if !fingerprint.Changed(stored, newFP) {
		return nil
	}

	if err := r.store.UpdateEntityTitle(ctx, id, ref.Name); err != nil {
		return err
	}
	if err := r.store.SetStructuredFields(ctx, id, trainerFields(ref)); err != nil {
		return err
	}
	return r.store.SetFingerprint(ctx, id, newFP)
}

func trainerFields(ref domain.TrainerRef) map[string]any {
	fields := map[string]any{
		"name": ref.Name,
	}
	if ref.ExternalID != nil {
		fields["external_id"] = strconv.FormatInt(*ref.ExternalID, 10)
	}
	return fields
}
