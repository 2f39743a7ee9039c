package http

import (
	"encoding/json"
	gohttp "net/http"

	"github.com/tilezen/go-tilemesh/feature"
)

type featureView struct {
	ID       uint32  `json:"id"`
	Selector string  `json:"selector"`
	LayerID  uint32  `json:"layer_id"`
	Visible  bool    `json:"visible"`
	ZIndex   float32 `json:"z_index"`
}

// FeaturesHandler lists the features of c with their resolved styles.
func FeaturesHandler(c *feature.Collection) gohttp.HandlerFunc {
	return func(w gohttp.ResponseWriter, r *gohttp.Request) {
		snapshot := c.Snapshot()
		out := make([]featureView, len(snapshot))
		for i, f := range snapshot {
			out[i] = featureView{
				ID:       f.ID,
				Selector: f.Selector.String(),
				LayerID:  f.LayerID,
				Visible:  f.Style.Visible(),
				ZIndex:   f.Style.ZIndex,
			}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(out)
	}
}
