package nifti

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
	log "github.com/sirupsen/logrus"

	"fctarget/domain/core"
	"fctarget/domain/volume"
)

// Image is a decoded dataset with scaling applied
type Image struct {
	Header Header
	Grid   volume.Grid
	T      int
	Data   []float64 // volume-major, x fastest
}

// Series returns the image as a 4-D series (T = 1 for a 3-D file)
func (img *Image) Series(name string) *volume.VolumeSeries {
	return &volume.VolumeSeries{Grid: img.Grid, T: img.T, Data: img.Data, Name: name}
}

// Mask selects the non-zero voxels of the first volume
func (img *Image) Mask(name string) (volume.SpatialMask, error) {
	return volume.MaskFromValues(name, img.Grid, img.Data[:img.Grid.Size()])
}

func dim(h Header, i int) int {
	if i > int(h.Dim[0]) || h.Dim[i] < 1 {
		return 1
	}
	return int(h.Dim[i])
}

// affineFromHeader prefers the sform, then the quaternion qform, and falls
// back to a diagonal affine built from pixdim
func affineFromHeader(h Header) volume.Affine {
	if h.SFormCode > 0 {
		var a volume.Affine
		for c := 0; c < 4; c++ {
			a[0][c] = float64(h.SRowX[c])
			a[1][c] = float64(h.SRowY[c])
			a[2][c] = float64(h.SRowZ[c])
		}
		return a
	}
	if h.QFormCode > 0 {
		return qformAffine(h)
	}
	d := voxelSizes(h)
	return volume.ScaledAffine(d[0], d[1], d[2], [3]float64{})
}

func voxelSizes(h Header) [3]float64 {
	d := [3]float64{1, 1, 1}
	for i := range d {
		if p := float64(h.PixDim[i+1]); p > 0 {
			d[i] = p
		}
	}
	return d
}

// qformAffine builds the rotation from quatern_b/c/d, scales it by the voxel
// sizes (z by the pixdim[0] qfac) and shifts it by qoffset
func qformAffine(h Header) volume.Affine {
	b, c, d := float64(h.QuaternB), float64(h.QuaternC), float64(h.QuaternD)
	a := 1 - (b*b + c*c + d*d)
	if a < 1e-7 {
		n := 1 / math.Sqrt(b*b+c*c+d*d)
		b, c, d = b*n, c*n, d*n
		a = 0
	} else {
		a = math.Sqrt(a)
	}

	size := voxelSizes(h)
	if h.PixDim[0] < 0 {
		size[2] = -size[2]
	}

	rot := [3][3]float64{
		{a*a + b*b - c*c - d*d, 2 * (b*c - a*d), 2 * (b*d + a*c)},
		{2 * (b*c + a*d), a*a + c*c - b*b - d*d, 2 * (c*d - a*b)},
		{2 * (b*d - a*c), 2 * (c*d + a*b), a*a + d*d - c*c - b*b},
	}
	offset := [3]float64{float64(h.QOffsetX), float64(h.QOffsetY), float64(h.QOffsetZ)}

	var out volume.Affine
	for r := 0; r < 3; r++ {
		for col := 0; col < 3; col++ {
			out[r][col] = rot[r][col] * size[col]
		}
		out[r][3] = offset[r]
	}
	return out
}

// Decode reads a single-file NIfTI-1 stream
func Decode(r io.Reader) (*Image, error) {
	h, order, err := ReadHeader(r)
	if err != nil {
		return nil, err
	}

	offset := int64(h.VoxOffset)
	if offset < headerSize {
		offset = headerSize
	}
	if _, err := io.CopyN(io.Discard, r, offset-minHeaderSize); err != nil {
		return nil, core.NewValidationError("nifti data", fmt.Sprintf("missing extension block: %v", err))
	}

	img := &Image{
		Header: h,
		Grid: volume.Grid{
			Nx:     dim(h, 1),
			Ny:     dim(h, 2),
			Nz:     dim(h, 3),
			Affine: affineFromHeader(h),
		},
		T: dim(h, 4),
	}

	nvox := img.Grid.Size() * img.T
	width := bytesPer(h.DataType)
	raw := make([]byte, nvox*width)
	if _, err := io.ReadFull(r, raw); err != nil {
		return nil, core.NewValidationError("nifti data", fmt.Sprintf("expected %d bytes: %v", len(raw), err))
	}

	slope, inter := float64(h.SclSlope), float64(h.SclInter)
	if slope == 0 || math.IsNaN(slope) {
		slope, inter = 1, 0
	}

	img.Data = make([]float64, nvox)
	for i := range img.Data {
		img.Data[i] = decodeValue(raw[i*width:(i+1)*width], h.DataType, order)*slope + inter
	}

	log.WithFields(log.Fields{
		"grid": img.Grid.String(),
		"t":    img.T,
	}).Debug("Decoded nifti image")

	return img, nil
}

func decodeValue(b []byte, dt int16, order binary.ByteOrder) float64 {
	switch dt {
	case DTUint8:
		return float64(b[0])
	case DTInt8:
		return float64(int8(b[0]))
	case DTInt16:
		return float64(int16(order.Uint16(b)))
	case DTUint16:
		return float64(order.Uint16(b))
	case DTInt32:
		return float64(int32(order.Uint32(b)))
	case DTFloat32:
		return float64(math.Float32frombits(order.Uint32(b)))
	case DTFloat64:
		return math.Float64frombits(order.Uint64(b))
	default:
		return math.NaN()
	}
}

// Encode writes a little-endian float64 NIfTI-1 dataset. t = 1 writes a 3-D file.
func Encode(w io.Writer, g volume.Grid, t int, data []float64) error {
	if err := g.Validate(); err != nil {
		return core.NewValidationError("nifti grid", err.Error())
	}
	if t < 1 || len(data) != g.Size()*t {
		return core.NewGridMismatchError("nifti data", g.Size()*t, len(data))
	}

	h := Header{
		SizeOfHdr: minHeaderSize,
		DataType:  DTFloat64,
		BitPix:    64,
		VoxOffset: headerSize,
		SclSlope:  1,
		SFormCode: 1, // NIFTI_XFORM_SCANNER_ANAT
		Magic:     singleFileMagic,
	}
	h.Dim = [8]int16{3, int16(g.Nx), int16(g.Ny), int16(g.Nz), 1, 1, 1, 1}
	if t > 1 {
		h.Dim[0] = 4
		h.Dim[4] = int16(t)
	}
	h.PixDim[0] = 1
	for r := 0; r < 3; r++ {
		col := [3]float64{g.Affine[0][r], g.Affine[1][r], g.Affine[2][r]}
		h.PixDim[r+1] = float32(math.Sqrt(col[0]*col[0] + col[1]*col[1] + col[2]*col[2]))
	}
	h.PixDim[4] = 1
	for c := 0; c < 4; c++ {
		h.SRowX[c] = float32(g.Affine[0][c])
		h.SRowY[c] = float32(g.Affine[1][c])
		h.SRowZ[c] = float32(g.Affine[2][c])
	}

	bw := bufio.NewWriter(w)
	if err := binary.Write(bw, binary.LittleEndian, &h); err != nil {
		return err
	}
	if _, err := bw.Write([]byte{0, 0, 0, 0}); err != nil {
		return err
	}
	buf := make([]byte, 8)
	for _, v := range data {
		binary.LittleEndian.PutUint64(buf, math.Float64bits(v))
		if _, err := bw.Write(buf); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// ReadFile decodes a .nii or .nii.gz file
func ReadFile(path string) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, core.NewInputNotFoundError("nifti file", path)
		}
		return nil, err
	}
	defer f.Close()

	var r io.Reader = bufio.NewReader(f)
	if strings.HasSuffix(path, ".gz") {
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("open gzip %s: %w", path, err)
		}
		defer zr.Close()
		r = zr
	}

	img, err := Decode(r)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return img, nil
}

// WriteFile encodes a dataset, gzip-compressing when path ends in .gz
func WriteFile(path string, g volume.Grid, t int, data []float64) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	if !strings.HasSuffix(path, ".gz") {
		return Encode(f, g, t, data)
	}
	zw := gzip.NewWriter(f)
	if err := Encode(zw, g, t, data); err != nil {
		return err
	}
	return zw.Close()
}
