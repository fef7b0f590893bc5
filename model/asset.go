package model

import "time"

// Asset kinds, classified from the file extension.
const (
	AssetKindFont  = "font"
	AssetKindImage = "image"
	AssetKindFile  = "file"
)

// AssetInfo is one entry in the asset listing.
type AssetInfo struct {
	Name       string    `json:"name"`
	Size       int64     `json:"size"`
	Kind       string    `json:"kind"`
	ModifiedAt time.Time `json:"modified_at"`
}
