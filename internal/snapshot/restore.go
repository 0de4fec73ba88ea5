package snapshot

import (
	"context"
	"fmt"
	"slices"

	apperrors "github.com/arkilian/spacemeta/internal/errors"
	"github.com/arkilian/spacemeta/internal/schema"
	"github.com/arkilian/spacemeta/pkg/types"
)

// Report lists what Restore did. Conflicts are differences it left alone.
type Report struct {
	CreatedSpaces   []string   `json:"created_spaces"`
	AddedProperties []string   `json:"added_properties"` // space.property
	CreatedIndexes  []string   `json:"created_indexes"`  // space.index
	Unchanged       []string   `json:"unchanged"`
	Conflicts       []Conflict `json:"conflicts"`
}

// Conflict is a difference between a snapshot and the live schema that an
// additive restore cannot resolve.
type Conflict struct {
	Space  string `json:"space"`
	Reason string `json:"reason"`
}

func (r *Report) conflict(space, format string, args ...any) {
	r.Conflicts = append(r.Conflicts, Conflict{Space: space, Reason: fmt.Sprintf(format, args...)})
}

// Restore makes every space of snap exist in s. It only adds: missing
// spaces, trailing properties and indexes are created; anything else that
// differs is reported as a conflict. Catalog failures abort the restore.
func Restore(ctx context.Context, s *schema.Schema, snap *Snapshot) (*Report, error) {
	report := &Report{}
	for i := range snap.Spaces {
		if err := restoreSpace(ctx, s, &snap.Spaces[i], report); err != nil {
			return report, err
		}
	}
	return report, nil
}

func restoreSpace(ctx context.Context, s *schema.Schema, want *SpaceSnapshot, report *Report) error {
	sp, err := s.GetSpace(ctx, want.Name)
	switch {
	case apperrors.IsNotFound(err):
		if sp, err = s.CreateSpace(ctx, want.Name, nil); err != nil {
			return err
		}
		report.CreatedSpaces = append(report.CreatedSpaces, want.Name)
	case err != nil:
		return err
	case sp.Fingerprint() == want.Fingerprint:
		report.Unchanged = append(report.Unchanged, want.Name)
		return nil
	}

	have := sp.GetProperties()
	for ord, def := range want.Format {
		if ord < len(have) {
			if have[ord].Name != def.Name || have[ord].Type != def.Type {
				report.conflict(want.Name, "property %d is %s %s, snapshot has %s %s",
					ord, have[ord].Name, have[ord].Type, def.Name, def.Type)
				return nil
			}
			if have[ord].Nullable != def.Nullable {
				report.conflict(want.Name, "property %s nullable is %t, snapshot has %t",
					def.Name, have[ord].Nullable, def.Nullable)
			}
			continue
		}
		opts := []schema.PropertyOption{schema.WithNullable(def.Nullable)}
		if def.Default != nil {
			opts = append(opts, schema.WithDefault(def.Default))
		}
		if err := sp.AddProperty(ctx, def.Name, def.Type, opts...); err != nil {
			return err
		}
		report.AddedProperties = append(report.AddedProperties, want.Name+"."+def.Name)
	}

	for _, def := range want.Indexes {
		fields, err := want.IndexFields(def)
		if err != nil {
			return err
		}
		if existing, err := sp.GetIndex(def.Name); err == nil {
			if !sameIndex(existing, def, fields) {
				report.conflict(want.Name, "index %s differs from the snapshot", def.Name)
			}
			continue
		}

		unique := def.Unique
		_, err = sp.CreateIndex(ctx, schema.IndexSpec{
			Fields: fields,
			Type:   def.Type,
			Unique: &unique,
			Name:   def.Name,
		})
		if apperrors.IsDuplicate(err) {
			report.conflict(want.Name, "index %s: %s", def.Name, apperrors.Message(err))
			continue
		}
		if err != nil {
			return err
		}
		report.CreatedIndexes = append(report.CreatedIndexes, want.Name+"."+def.Name)
	}
	return nil
}

func sameIndex(idx *schema.Index, def types.IndexDef, fields []string) bool {
	if idx.Type != def.Type || idx.Unique != def.Unique || !slices.Equal(idx.Fields, fields) {
		return false
	}
	for i, part := range def.Parts {
		if idx.Parts[i].Type != part.Type {
			return false
		}
	}
	return true
}
