package router

import (
	"encoding/json"
	"math"
	"net/http"
	"slices"

	"github.com/mohammed-shakir/h3-refcat/internal/loader"
	"github.com/mohammed-shakir/h3-refcat/internal/refcat"
)

type fieldJSON struct {
	Name  string `json:"name"`
	Kind  string `json:"kind"`
	Units string `json:"units,omitempty"`
	Alias string `json:"alias,omitempty"`
}

type regionJSON struct {
	RA     float64 `json:"ra"`
	Dec    float64 `json:"dec"`
	Radius float64 `json:"radius"`
}

type indicesJSON struct {
	Selected   int `json:"selected"`
	Failed     int `json:"failed"`
	Duplicates int `json:"duplicates"`
}

type resultJSON struct {
	FluxField string           `json:"fluxField"`
	Count     int              `json:"count"`
	Region    regionJSON       `json:"region"`
	Indices   indicesJSON      `json:"indices"`
	Fields    []fieldJSON      `json:"fields"`
	Records   []map[string]any `json:"records"`
}

func writeResult(w http.ResponseWriter, res loader.Result) {
	out := encodeResult(res)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}

// encodeResult flattens the catalog into one JSON object per record.
// Aliases repeat their target's value; NaN becomes null.
func encodeResult(res loader.Result) resultJSON {
	cat := res.RefCat
	schema := cat.Schema()
	fields := schema.Fields()
	aliases := schema.Aliases()
	names := make([]string, 0, len(aliases))
	for a := range aliases {
		names = append(names, a)
	}
	slices.Sort(names)

	out := resultJSON{
		FluxField: res.FluxField,
		Count:     cat.Len(),
		Region: regionJSON{
			RA:     res.Region.Center.RADeg(),
			Dec:    res.Region.Center.DecDeg(),
			Radius: res.Region.Radius.Degrees(),
		},
		Indices: indicesJSON{
			Selected:   res.Stats.Selected,
			Failed:     res.Stats.Failed,
			Duplicates: res.Stats.Duplicates,
		},
		Fields:  make([]fieldJSON, 0, len(fields)+len(names)),
		Records: make([]map[string]any, 0, cat.Len()),
	}
	for _, f := range fields {
		out.Fields = append(out.Fields, fieldJSON{Name: f.Name, Kind: f.Kind.String(), Units: f.Units})
	}
	for _, a := range names {
		f, err := schema.Find(a)
		if err != nil {
			continue
		}
		out.Fields = append(out.Fields, fieldJSON{Name: a, Kind: f.Kind.String(), Units: f.Units, Alias: aliases[a]})
	}

	for _, rec := range cat.All() {
		m := make(map[string]any, len(fields)+len(names)+2)
		for _, f := range fields {
			switch f.Name {
			case refcat.FieldCoord:
				m["coord_ra"] = rec.Coord.RADeg()
				m["coord_dec"] = rec.Coord.DecDeg()
			case refcat.FieldCentroid:
				if rec.HasCentroid {
					m["centroid_x"] = rec.Centroid.X
					m["centroid_y"] = rec.Centroid.Y
				}
			default:
				m[f.Name] = jsonValue(rec.Get(f))
			}
		}
		for _, a := range names {
			m[a] = m[aliases[a]]
		}
		out.Records = append(out.Records, m)
	}
	return out
}

func jsonValue(v any) any {
	if f, ok := v.(float64); ok && (math.IsNaN(f) || math.IsInf(f, 0)) {
		return nil
	}
	return v
}
