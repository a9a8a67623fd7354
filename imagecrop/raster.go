package imagecrop

import "encoding/base64"

// Raster is an encoded image at the exact target resolution.
type Raster struct {
	Width   int    `json:"width"`
	Height  int    `json:"height"`
	Format  string `json:"format"` // MIME type
	Quality int    `json:"quality"`
	Data    []byte `json:"-"`
}

// DataURL returns the raster as a data: URL usable by any consumer that
// accepts image references.
func (r *Raster) DataURL() string {
	if r == nil {
		return ""
	}
	return "data:" + r.Format + ";base64," + base64.StdEncoding.EncodeToString(r.Data)
}
