package archive

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/archivist/internal/document"
	"github.com/roach88/archivist/internal/store"
)

// ProvenanceCollection holds one record per restore.
const ProvenanceCollection = "archive_provenance"

// ProvenanceRecord explains a restore: which snapshot was applied and what
// it did to the live version. A destructive rollback is the only way a live
// version decreases, and each one leaves a record here.
type ProvenanceRecord struct {
	ID       string
	Kind     string
	Identity any
	Mode     Mode
	// FromVersion is the live version before the restore.
	FromVersion int64
	// SourceVersion is the version tag of the snapshot applied.
	SourceVersion int64
	// ToVersion is the live version after the restore.
	ToVersion int64
	At        time.Time
}

func (r ProvenanceRecord) document() document.Document {
	return document.Document{
		document.IDField: r.ID,
		"kind":           r.Kind,
		"identity":       r.Identity,
		"mode":           string(r.Mode),
		"from_version":   r.FromVersion,
		"source_version": r.SourceVersion,
		"to_version":     r.ToVersion,
		"at":             r.At.UTC().Format(time.RFC3339Nano),
	}
}

func provenanceFromDocument(doc document.Document) (ProvenanceRecord, error) {
	rec := ProvenanceRecord{Identity: doc["identity"]}
	rec.ID, _ = doc[document.IDField].(string)
	rec.Kind, _ = doc["kind"].(string)
	mode, _ := doc["mode"].(string)
	rec.Mode = Mode(mode)

	var err error
	if rec.FromVersion, err = doc.Int("from_version"); err != nil {
		return rec, err
	}
	if rec.SourceVersion, err = doc.Int("source_version"); err != nil {
		return rec, err
	}
	if rec.ToVersion, err = doc.Int("to_version"); err != nil {
		return rec, err
	}
	at, _ := doc["at"].(string)
	if rec.At, err = time.Parse(time.RFC3339Nano, at); err != nil {
		return rec, fmt.Errorf("provenance %s: at: %w", rec.ID, err)
	}
	return rec, nil
}

func (a *Archiver) recordProvenance(ctx context.Context, mode Mode, t *target, source, to int64) {
	rec := ProvenanceRecord{
		ID:            uuid.Must(uuid.NewV7()).String(),
		Kind:          t.reg.Kind,
		Identity:      t.identity,
		Mode:          mode,
		FromVersion:   t.current,
		SourceVersion: source,
		ToVersion:     to,
		At:            a.now(),
	}
	if _, err := a.store.Insert(ctx, ProvenanceCollection, rec.document()); err != nil {
		a.logger.Warn("restore committed but provenance was not recorded",
			"kind", rec.Kind, "identity", rec.Identity, "mode", mode, "error", err)
	}
}

// Provenance lists the restores applied to identity, oldest first.
func (a *Archiver) Provenance(ctx context.Context, kind string, identity any) ([]ProvenanceRecord, error) {
	docs, err := a.store.Find(ctx, ProvenanceCollection, store.Where(
		store.Eq("kind", kind),
		store.Eq("identity", identity),
	), store.FindOptions{})
	if err != nil {
		return nil, fmt.Errorf("provenance %s %v: %w", kind, identity, err)
	}
	out := make([]ProvenanceRecord, 0, len(docs))
	for _, doc := range docs {
		rec, err := provenanceFromDocument(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}
