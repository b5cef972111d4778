package nifti

import (
	"context"
	"os"
	"path/filepath"

	"fctarget/domain/core"
	"fctarget/domain/volume"
	"fctarget/internal"
)

// extensions tried, in order, when resolving a reference
var extensions = []string{"", ".nii", ".nii.gz"}

// Locator resolves dataset references to NIfTI files under a root directory.
// Absolute references are used as is.
type Locator struct {
	root   string
	logger *internal.Logger
}

// NewLocator creates a file-backed locator
func NewLocator(root string, logger *internal.Logger) *Locator {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &Locator{root: root, logger: logger.Component("nifti")}
}

// Resolve returns the first existing file for ref
func (l *Locator) Resolve(ref string) (string, error) {
	base := ref
	if !filepath.IsAbs(base) && l.root != "" {
		base = filepath.Join(l.root, ref)
	}
	for _, ext := range extensions {
		p := base + ext
		if st, err := os.Stat(p); err == nil && !st.IsDir() {
			return p, nil
		}
	}
	return "", core.NewInputNotFoundError("dataset", ref)
}

// LoadSeries loads a 3-D or 4-D dataset as a volume series
func (l *Locator) LoadSeries(ctx context.Context, ref string) (*volume.VolumeSeries, error) {
	img, err := l.load(ctx, ref)
	if err != nil {
		return nil, err
	}
	l.logger.Info("[Locator] loaded series %s (%s, T=%d)", ref, img.Grid, img.T)
	return img.Series(ref), nil
}

// LoadMask loads a dataset and selects its non-zero voxels
func (l *Locator) LoadMask(ctx context.Context, ref string) (volume.SpatialMask, error) {
	img, err := l.load(ctx, ref)
	if err != nil {
		return volume.SpatialMask{}, err
	}
	mask, err := img.Mask(ref)
	if err != nil {
		return volume.SpatialMask{}, err
	}
	l.logger.Info("[Locator] loaded mask %s (%d voxels)", ref, mask.Count())
	return mask, nil
}

func (l *Locator) load(ctx context.Context, ref string) (*Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := l.Resolve(ref)
	if err != nil {
		return nil, err
	}
	l.logger.Debug("[Locator] %s -> %s", ref, path)
	return ReadFile(path)
}
