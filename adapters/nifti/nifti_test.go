package nifti

import (
	"bytes"
	"context"
	"encoding/binary"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fctarget/domain/core"
	"fctarget/domain/volume"
	"fctarget/internal"
)

func testGrid() volume.Grid {
	g := volume.NewGrid(3, 2, 2)
	g.Affine = volume.ScaledAffine(2, 2, 3, [3]float64{-90, -126, -72})
	return g
}

func ramp(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = float64(i)*0.5 - 3
	}
	return out
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	g := testGrid()
	data := ramp(g.Size() * 4)

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, g, 4, data))
	assert.Equal(t, headerSize+len(data)*8, buf.Len())

	img, err := Decode(&buf)
	require.NoError(t, err)

	assert.Equal(t, 4, img.T)
	assert.True(t, g.SameShape(img.Grid))
	assert.Equal(t, g.Affine, img.Grid.Affine)
	assert.Equal(t, data, img.Data)
	assert.InDelta(t, 2.0, float64(img.Header.PixDim[1]), 1e-6)
	assert.InDelta(t, 3.0, float64(img.Header.PixDim[3]), 1e-6)
}

func TestDecode_ScaledInt16(t *testing.T) {
	h := Header{
		SizeOfHdr: minHeaderSize,
		DataType:  DTInt16,
		BitPix:    16,
		VoxOffset: headerSize,
		SclSlope:  0.5,
		SclInter:  10,
		Magic:     singleFileMagic,
	}
	h.Dim = [8]int16{3, 2, 1, 1, 1, 1, 1, 1}
	h.PixDim = [8]float32{1, 2.5, 2.5, 2.5}

	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, binary.BigEndian, &h))
	buf.Write([]byte{0, 0, 0, 0})
	require.NoError(t, binary.Write(&buf, binary.BigEndian, []int16{-4, 6}))

	img, err := Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, []float64{8, 13}, img.Data)
	assert.Equal(t, 1, img.T)
	// no sform: pixdim fallback
	assert.Equal(t, volume.ScaledAffine(2.5, 2.5, 2.5, [3]float64{}), img.Grid.Affine)
}

func encodeHeaderOnly(t *testing.T, h Header, values []float32) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, &h))
	buf.Write([]byte{0, 0, 0, 0})
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, values))
	return &buf
}

func TestDecode_QFormOnly(t *testing.T) {
	h := Header{
		SizeOfHdr: minHeaderSize,
		DataType:  DTFloat32,
		BitPix:    32,
		VoxOffset: headerSize,
		QFormCode: 1,
		QOffsetX:  -90,
		QOffsetY:  -126,
		QOffsetZ:  -72,
		Magic:     singleFileMagic,
	}
	h.Dim = [8]int16{3, 2, 1, 1, 1, 1, 1, 1}
	h.PixDim = [8]float32{1, 2, 2, 2}

	img, err := Decode(encodeHeaderOnly(t, h, []float32{1, 2}))
	require.NoError(t, err)

	assert.Equal(t, volume.ScaledAffine(2, 2, 2, [3]float64{-90, -126, -72}), img.Grid.Affine)
	assert.Equal(t, [3]float64{-90, -126, -72}, img.Grid.Physical(0))
	assert.Equal(t, [3]float64{-88, -126, -72}, img.Grid.Physical(1))
}

func TestQFormAffine_RotationAndQfac(t *testing.T) {
	// 180 degrees about z (d = 1) with a negative qfac flips x, y and z
	h := Header{QFormCode: 1, QuaternD: 1, QOffsetX: 10, QOffsetY: 20, QOffsetZ: 30}
	h.PixDim = [8]float32{-1, 2, 3, 4}

	want := volume.Affine{
		{-2, 0, 0, 10},
		{0, -3, 0, 20},
		{0, 0, -4, 30},
	}
	assert.Equal(t, want, affineFromHeader(h))

	// the sform wins when both are set
	h.SFormCode = 1
	h.SRowX = [4]float32{1, 0, 0, 0}
	h.SRowY = [4]float32{0, 1, 0, 0}
	h.SRowZ = [4]float32{0, 0, 1, 0}
	assert.Equal(t, volume.IdentityAffine(), affineFromHeader(h))
}

func TestDecode_RejectsBadHeader(t *testing.T) {
	h := Header{SizeOfHdr: minHeaderSize, DataType: DTFloat32, Magic: [4]byte{'n', 'i', '1', 0}}
	h.Dim = [8]int16{3, 1, 1, 1}
	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, &h))

	_, err := Decode(&buf)
	assert.ErrorIs(t, err, core.ErrInvalidInput)

	_, err = Decode(bytes.NewReader([]byte("short")))
	assert.ErrorIs(t, err, core.ErrInvalidInput)
}

func TestWriteReadFileGzip(t *testing.T) {
	dir := t.TempDir()
	g := testGrid()
	data := ramp(g.Size())

	for _, name := range []string{"vol.nii", "vol2.nii.gz"} {
		path := filepath.Join(dir, name)
		require.NoError(t, WriteFile(path, g, 1, data))

		img, err := ReadFile(path)
		require.NoError(t, err, name)
		assert.Equal(t, data, img.Data, name)
	}
}

func TestLocator(t *testing.T) {
	dir := t.TempDir()
	g := testGrid()

	series := ramp(g.Size() * 3)
	require.NoError(t, WriteFile(filepath.Join(dir, "bold.nii.gz"), g, 3, series))

	maskData := make([]float64, g.Size())
	maskData[0], maskData[5] = 1, 1
	require.NoError(t, WriteFile(filepath.Join(dir, "seed.nii"), g, 1, maskData))

	loc := NewLocator(dir, internal.Discard())
	ctx := context.Background()

	vs, err := loc.LoadSeries(ctx, "bold")
	require.NoError(t, err)
	assert.Equal(t, 3, vs.T)
	assert.Equal(t, series, vs.Data)

	mask, err := loc.LoadMask(ctx, "seed.nii")
	require.NoError(t, err)
	assert.Equal(t, []int{0, 5}, mask.Indices())

	_, err = loc.LoadSeries(ctx, "missing")
	assert.ErrorIs(t, err, core.ErrInputNotFound)
}
