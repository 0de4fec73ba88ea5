package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/arkilian/spacemeta/internal/schema"
	"github.com/arkilian/spacemeta/pkg/types"
)

type spaceView struct {
	ID          uint32              `json:"id"`
	Name        string              `json:"name"`
	System      bool                `json:"system,omitempty"`
	Fingerprint string              `json:"fingerprint"`
	Format      []types.PropertyDef `json:"format"`
	Indexes     []indexView         `json:"indexes"`
}

type indexView struct {
	IID    uint32          `json:"iid"`
	Name   string          `json:"name"`
	Type   types.IndexType `json:"type"`
	Unique bool            `json:"unique"`
	Fields []string        `json:"fields"`
}

func viewOf(sp *schema.Space) spaceView {
	v := spaceView{
		ID:          sp.ID(),
		Name:        sp.Name(),
		System:      sp.IsSystem(),
		Fingerprint: fmt.Sprintf("%016x", sp.Fingerprint()),
		Format:      sp.GetProperties(),
	}
	for _, idx := range sp.GetIndexes() {
		v.Indexes = append(v.Indexes, viewOfIndex(idx))
	}
	return v
}

func viewOfIndex(idx *schema.Index) indexView {
	return indexView{
		IID:    idx.IID,
		Name:   idx.Name,
		Type:   idx.Type,
		Unique: idx.Unique,
		Fields: idx.Fields,
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printSpace(w io.Writer, v spaceView) error {
	if jsonOutput {
		return printJSON(w, v)
	}

	fmt.Fprintf(w, "space %s (id %d, fingerprint %s)\n", v.Name, v.ID, v.Fingerprint)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tPROPERTY\tTYPE\tNULLABLE\tDEFAULT")
	for i, p := range v.Format {
		def := ""
		if p.Default != nil {
			def = fmt.Sprint(p.Default)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%t\t%s\n", i, p.Name, p.Type, p.Nullable, def)
	}
	tw.Flush()

	if len(v.Indexes) == 0 {
		return nil
	}
	fmt.Fprintln(w)
	tw = tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "IID\tINDEX\tTYPE\tUNIQUE\tFIELDS")
	for _, idx := range v.Indexes {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%t\t%s\n", idx.IID, idx.Name, idx.Type, idx.Unique, strings.Join(idx.Fields, ", "))
	}
	return tw.Flush()
}
