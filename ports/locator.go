package ports

import (
	"context"

	"fctarget/domain/volume"
)

// VolumeLocator resolves dataset identifiers to loaded volumes and masks.
// Unresolvable identifiers yield core.ErrInputNotFound.
type VolumeLocator interface {
	LoadSeries(ctx context.Context, ref string) (*volume.VolumeSeries, error)
	LoadMask(ctx context.Context, ref string) (volume.SpatialMask, error)
}
