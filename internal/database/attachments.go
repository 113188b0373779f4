package database

import (
	"encoding/binary"
	"fmt"
	"image"
	"math"

	"github.com/fxamacker/cbor/v2"
	"gonum.org/v1/gonum/mat"
)

// Attachments are stored as RFC 8746 multi-dimensional typed arrays:
// tag 40 wrapping [dims, typed array].
const (
	tagMultiDimArray = 40
	tagUint8         = 64
	tagUint16LE      = 69
	tagFloat64LE     = 86
)

func marshalArray(dims []int, typed cbor.Tag) ([]byte, error) {
	return cbor.Marshal(cbor.Tag{
		Number:  tagMultiDimArray,
		Content: []any{dims, typed},
	})
}

// encodeColor stores the RGB channels of img as a rows x cols x 3 uint8 array
func encodeColor(img *image.RGBA) ([]byte, error) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	data := make([]byte, 0, w*h*3)
	for y := 0; y < h; y++ {
		off := img.PixOffset(b.Min.X, b.Min.Y+y)
		for x := 0; x < w; x++ {
			p := img.Pix[off+x*4 : off+x*4+3]
			data = append(data, p[0], p[1], p[2])
		}
	}
	return marshalArray([]int{h, w, 3}, cbor.Tag{Number: tagUint8, Content: data})
}

// encodeDepth stores img as a rows x cols little-endian uint16 array
func encodeDepth(img *image.Gray16) ([]byte, error) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	data := make([]byte, w*h*2)
	for y := 0; y < h; y++ {
		off := img.PixOffset(b.Min.X, b.Min.Y+y)
		for x := 0; x < w; x++ {
			v := uint16(img.Pix[off+x*2])<<8 | uint16(img.Pix[off+x*2+1])
			binary.LittleEndian.PutUint16(data[(y*w+x)*2:], v)
		}
	}
	return marshalArray([]int{h, w}, cbor.Tag{Number: tagUint16LE, Content: data})
}

func encodeMask(img *image.Gray) ([]byte, error) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	data := make([]byte, 0, w*h)
	for y := 0; y < h; y++ {
		off := img.PixOffset(b.Min.X, b.Min.Y+y)
		data = append(data, img.Pix[off:off+w]...)
	}
	return marshalArray([]int{h, w}, cbor.Tag{Number: tagUint8, Content: data})
}

func encodeFloats(dims []int, values []float64) ([]byte, error) {
	data := make([]byte, len(values)*8)
	for i, v := range values {
		binary.LittleEndian.PutUint64(data[i*8:], math.Float64bits(v))
	}
	return marshalArray(dims, cbor.Tag{Number: tagFloat64LE, Content: data})
}

func encodeRotation(r *mat.Dense) ([]byte, error) {
	rows, cols := r.Dims()
	values := make([]float64, 0, rows*cols)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			values = append(values, r.At(i, j))
		}
	}
	return encodeFloats([]int{rows, cols}, values)
}

func encodeTranslation(t *mat.VecDense) ([]byte, error) {
	values := make([]float64, t.Len())
	for i := range values {
		values[i] = t.AtVec(i)
	}
	return encodeFloats([]int{len(values)}, values)
}

// typedArray is a decoded attachment before it is turned into an image or matrix
type typedArray struct {
	dims []int
	tag  uint64
	data []byte
}

func (a typedArray) elements() int {
	n := 1
	for _, d := range a.dims {
		n *= d
	}
	return n
}

func decodeArray(raw []byte) (typedArray, error) {
	var value any
	if err := cbor.Unmarshal(raw, &value); err != nil {
		return typedArray{}, fmt.Errorf("%w: %v", ErrCorruptAttachment, err)
	}
	tag, ok := value.(cbor.Tag)
	if !ok || tag.Number != tagMultiDimArray {
		return typedArray{}, fmt.Errorf("%w: expected multidim tag 40", ErrCorruptAttachment)
	}
	items, ok := tag.Content.([]any)
	if !ok || len(items) != 2 {
		return typedArray{}, fmt.Errorf("%w: invalid multidim array content", ErrCorruptAttachment)
	}
	dimsRaw, ok := items[0].([]any)
	if !ok || len(dimsRaw) == 0 {
		return typedArray{}, fmt.Errorf("%w: invalid multidim dimensions", ErrCorruptAttachment)
	}

	arr := typedArray{dims: make([]int, len(dimsRaw))}
	for i, d := range dimsRaw {
		n, err := toInt(d)
		if err != nil {
			return typedArray{}, err
		}
		arr.dims[i] = n
	}

	typed, ok := items[1].(cbor.Tag)
	if !ok {
		return typedArray{}, fmt.Errorf("%w: expected typed array tag", ErrCorruptAttachment)
	}
	data, ok := typed.Content.([]byte)
	if !ok {
		return typedArray{}, fmt.Errorf("%w: unsupported typed array content %T", ErrCorruptAttachment, typed.Content)
	}
	arr.tag = typed.Number
	arr.data = data

	size := map[uint64]int{tagUint8: 1, tagUint16LE: 2, tagFloat64LE: 8}[arr.tag]
	if size == 0 {
		return typedArray{}, fmt.Errorf("%w: unsupported typed array tag %d", ErrCorruptAttachment, arr.tag)
	}
	if arr.elements()*size != len(arr.data) {
		return typedArray{}, fmt.Errorf("%w: dimension mismatch", ErrCorruptAttachment)
	}
	return arr, nil
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case uint64:
		return int(n), nil
	default:
		return 0, fmt.Errorf("%w: unsupported int type %T", ErrCorruptAttachment, v)
	}
}

func (a typedArray) expect(tag uint64, dims ...int) error {
	if a.tag != tag {
		return fmt.Errorf("%w: expected typed array tag %d, got %d", ErrCorruptAttachment, tag, a.tag)
	}
	if len(a.dims) != len(dims) {
		return fmt.Errorf("%w: expected %d dimensions, got %d", ErrCorruptAttachment, len(dims), len(a.dims))
	}
	for i, d := range dims {
		if d >= 0 && a.dims[i] != d {
			return fmt.Errorf("%w: dimension %d is %d, expected %d", ErrCorruptAttachment, i, a.dims[i], d)
		}
	}
	return nil
}

func decodeColor(raw []byte) (*image.RGBA, error) {
	arr, err := decodeArray(raw)
	if err != nil {
		return nil, err
	}
	if err := arr.expect(tagUint8, -1, -1, 3); err != nil {
		return nil, err
	}
	h, w := arr.dims[0], arr.dims[1]
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < w*h; i++ {
		copy(img.Pix[i*4:i*4+3], arr.data[i*3:i*3+3])
		img.Pix[i*4+3] = 255
	}
	return img, nil
}

func decodeDepth(raw []byte) (*image.Gray16, error) {
	arr, err := decodeArray(raw)
	if err != nil {
		return nil, err
	}
	if err := arr.expect(tagUint16LE, -1, -1); err != nil {
		return nil, err
	}
	h, w := arr.dims[0], arr.dims[1]
	img := image.NewGray16(image.Rect(0, 0, w, h))
	for i := 0; i < w*h; i++ {
		v := binary.LittleEndian.Uint16(arr.data[i*2:])
		img.Pix[i*2] = uint8(v >> 8)
		img.Pix[i*2+1] = uint8(v)
	}
	return img, nil
}

func decodeMask(raw []byte) (*image.Gray, error) {
	arr, err := decodeArray(raw)
	if err != nil {
		return nil, err
	}
	if err := arr.expect(tagUint8, -1, -1); err != nil {
		return nil, err
	}
	h, w := arr.dims[0], arr.dims[1]
	img := image.NewGray(image.Rect(0, 0, w, h))
	copy(img.Pix, arr.data)
	return img, nil
}

func decodeFloats(arr typedArray) []float64 {
	out := make([]float64, len(arr.data)/8)
	for i := range out {
		out[i] = math.Float64frombits(binary.LittleEndian.Uint64(arr.data[i*8:]))
	}
	return out
}

func decodeRotation(raw []byte) (*mat.Dense, error) {
	arr, err := decodeArray(raw)
	if err != nil {
		return nil, err
	}
	if err := arr.expect(tagFloat64LE, 3, 3); err != nil {
		return nil, err
	}
	return mat.NewDense(3, 3, decodeFloats(arr)), nil
}

func decodeTranslation(raw []byte) (*mat.VecDense, error) {
	arr, err := decodeArray(raw)
	if err != nil {
		return nil, err
	}
	if err := arr.expect(tagFloat64LE, 3); err != nil {
		return nil, err
	}
	return mat.NewVecDense(3, decodeFloats(arr)), nil
}
