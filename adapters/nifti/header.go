// Package nifti reads and writes single-file NIfTI-1 volumes (.nii, .nii.gz).
//
// Based on the nifti1 header definition,
// https://nifti.nimh.nih.gov/pub/dist/src/niftilib/nifti1.h
package nifti

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	log "github.com/sirupsen/logrus"

	"fctarget/domain/core"
)

// Header defines the structure of the NIfTI-1 header.
//
// Type translation from the nifti1 C header:
//
// C     Go
// -------------
// int   int32
// float float32
// short int16
// char  int8
type Header struct {
	SizeOfHdr          int32    // Must be 348
	UnusedDataType     [10]int8 // Unused
	UnusedDbName       [18]int8 // Unused
	UnusedExtents      int32    // Unused
	UnusedSessionError int16    // Unused
	UnusedRegular      int8     // Unused
	DimInfo            int8     // MRI slice ordering

	Dim           [8]int16   // Data array dimensions
	IntentP1      float32    // 1st intent parameter
	IntentP2      float32    // 2nd intent parameter
	IntentP3      float32    // 3rd intent parameter
	IntentCode    int16      // NIFTI_INTENT_* code
	DataType      int16      // Defines data type
	BitPix        int16      // Number bits/voxel
	SliceStart    int16      // First slice index
	PixDim        [8]float32 // Grid spacing
	VoxOffset     float32    // Offset into .nii file
	SclSlope      float32    // Data scaling: slope
	SclInter      float32    // Data scaling: offset
	SliceEnd      int16      // Last slice index
	SliceCode     int8       // Slice timing order
	XYZTUnits     int8       // Units of pixdim[1..4]
	CalMax        float32    // Max display intensity
	CalMin        float32    // Min display intensity
	SliceDuration float32    // Time for 1 slice
	TOffset       float32    // Time axis shift
	UnusedGlmax   int32      // Unused
	UnusedGlmin   int32      // Unused

	Descrip [80]byte // Any text you like
	AuxFile [24]byte // Auxiliary filename

	QFormCode int16 // NIFTI_XFORM_* code
	SFormCode int16 // NIFTI_XFORM_* code

	QuaternB float32 // Quaternion b params
	QuaternC float32 // Quaternion c params
	QuaternD float32 // Quaternion d params
	QOffsetX float32 // Quaternion x shift
	QOffsetY float32 // Quaternion y shift
	QOffsetZ float32 // Quaternion z shift

	SRowX [4]float32 // 1st row affine transform
	SRowY [4]float32 // 2nd row affine transform
	SRowZ [4]float32 // 3rd row affine transform

	IntentName [16]byte // 'name' or meaning of data

	Magic [4]byte // "n+1\0" for single-file datasets
}

const (
	headerSize    = 352 // header plus the 4-byte extension flag
	minHeaderSize = 348
)

// Supported NIFTI_TYPE_* datatype codes
const (
	DTUint8   int16 = 2
	DTInt16   int16 = 4
	DTInt32   int16 = 8
	DTFloat32 int16 = 16
	DTFloat64 int16 = 64
	DTInt8    int16 = 256
	DTUint16  int16 = 512
)

var singleFileMagic = [4]byte{'n', '+', '1', 0}

// bytesPer returns the storage width of a datatype, or 0 when unsupported
func bytesPer(dt int16) int {
	switch dt {
	case DTUint8, DTInt8:
		return 1
	case DTInt16, DTUint16:
		return 2
	case DTInt32, DTFloat32:
		return 4
	case DTFloat64:
		return 8
	default:
		return 0
	}
}

// ReadHeader reads a header and returns the byte order of the file. The byte
// order is inferred from dim[0], which must lie in [1, 7].
func ReadHeader(r io.Reader) (Header, binary.ByteOrder, error) {
	raw := make([]byte, minHeaderSize)
	if _, err := io.ReadFull(r, raw); err != nil {
		return Header{}, nil, core.NewValidationError("nifti header", fmt.Sprintf("short read: %v", err))
	}

	var order binary.ByteOrder = binary.LittleEndian
	h := Header{}
	if err := binary.Read(bytes.NewReader(raw), order, &h); err != nil {
		return Header{}, nil, err
	}
	if h.Dim[0] < 1 || h.Dim[0] > 7 {
		order = binary.BigEndian
		h = Header{}
		if err := binary.Read(bytes.NewReader(raw), order, &h); err != nil {
			return Header{}, nil, err
		}
	}
	if h.Dim[0] < 1 || h.Dim[0] > 7 {
		return Header{}, nil, core.NewValidationError("nifti header", "cannot infer byte order: dim[0] not in [1, 7]")
	}

	if err := validateHeader(h); err != nil {
		return Header{}, nil, err
	}

	log.WithFields(log.Fields{
		"byteOrder": order,
		"dim":       h.Dim,
		"datatype":  h.DataType,
	}).Debug("Read nifti header")

	return h, order, nil
}

func validateHeader(h Header) error {
	switch {
	case h.SizeOfHdr != minHeaderSize:
		return core.NewValidationError("nifti header", fmt.Sprintf("sizeof_hdr is %d, want %d", h.SizeOfHdr, minHeaderSize))
	case h.Magic != singleFileMagic:
		return core.NewValidationError("nifti header", "magic must be n+1 (header and data in one file)")
	case bytesPer(h.DataType) == 0:
		return core.NewValidationError("nifti header", fmt.Sprintf("unsupported datatype %d", h.DataType))
	}
	for i := 1; i <= int(h.Dim[0]); i++ {
		if h.Dim[i] < 1 {
			return core.NewValidationError("nifti header", fmt.Sprintf("dim[%d] = %d", i, h.Dim[i]))
		}
	}
	for i := 5; i <= int(h.Dim[0]); i++ {
		if h.Dim[i] > 1 {
			return core.NewValidationError("nifti header", "only 3-D and 4-D datasets are supported")
		}
	}
	return nil
}
