package dataset

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"math/big"
	"os"
	"reflect"
	"strings"

	"github.com/nlpodyssey/gopickle/pickle"
	"github.com/nlpodyssey/gopickle/types"
	"github.com/pkg/errors"
)

const (
	keySegments = "serialised_segments"
	keyRows     = "rows"
	keyColumns  = "columns"
)

// LoadPickle Reads segments dataset from pickled dictionary stored in file
func LoadPickle(path string) (*Segments, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "Can't open dataset")
	}
	defer f.Close()
	return ReadPickle(bufio.NewReader(f))
}

// ReadPickle Reads segments dataset from pickled dictionary.
// Dictionary must contain 'serialised_segments' (2-D numpy array or list of lists), 'rows' and 'columns'
func ReadPickle(r io.Reader) (*Segments, error) {
	u := pickle.NewUnpickler(r)
	u.FindClass = findNumpyClass
	obj, err := u.Load()
	if err != nil {
		return nil, errors.Wrap(err, "Can't unpickle dataset")
	}
	dict, ok := obj.(pyDict)
	if !ok {
		return nil, fmt.Errorf("Pickled object must be a dictionary, but got %T", obj)
	}
	rows, err := dictInt(dict, keyRows)
	if err != nil {
		return nil, err
	}
	columns, err := dictInt(dict, keyColumns)
	if err != nil {
		return nil, err
	}
	raw, ok := dict.Get(keySegments)
	if !ok {
		return nil, fmt.Errorf("Key '%s' is missing", keySegments)
	}
	data, width, err := matrixValues(raw)
	if err != nil {
		return nil, errors.Wrapf(err, "Can't read '%s'", keySegments)
	}
	if width != rows*columns {
		return nil, fmt.Errorf("Segment length %d doesn't match tile %dx%d", width, rows, columns)
	}
	return NewSegments(data, rows, columns)
}

// pyDict Dict and OrderedDict of gopickle share this method
type pyDict interface {
	Get(key interface{}) (interface{}, bool)
}

// pySequence List and Tuple of gopickle share these methods
type pySequence interface {
	Len() int
	Get(i int) interface{}
}

func dictInt(dict pyDict, key string) (int, error) {
	v, ok := dict.Get(key)
	if !ok {
		return 0, fmt.Errorf("Key '%s' is missing", key)
	}
	n, err := toInt(v)
	if err != nil {
		return 0, errors.Wrapf(err, "Can't read '%s'", key)
	}
	return n, nil
}

// matrixValues Flattens 2-D numpy array or sequence of numeric sequences. Returns values and row width
func matrixValues(v interface{}) ([]float64, int, error) {
	switch m := v.(type) {
	case *ndarray:
		if len(m.shape) != 2 {
			return nil, 0, fmt.Errorf("Array must have 2 dimensions, but got shape %v", m.shape)
		}
		return m.values, m.shape[1], nil
	case pySequence:
		if m.Len() == 0 {
			return nil, 0, fmt.Errorf("Empty sequence")
		}
		width := -1
		data := []float64{}
		for i := 0; i < m.Len(); i++ {
			row, ok := m.Get(i).(pySequence)
			if !ok {
				return nil, 0, fmt.Errorf("Row %d is %T, but sequence expected", i, m.Get(i))
			}
			if width < 0 {
				width = row.Len()
			}
			if row.Len() != width {
				return nil, 0, fmt.Errorf("Row %d has length %d, but %d expected", i, row.Len(), width)
			}
			for j := 0; j < row.Len(); j++ {
				x, err := toFloat(row.Get(j))
				if err != nil {
					return nil, 0, errors.Wrapf(err, "Bad value at [%d, %d]", i, j)
				}
				data = append(data, x)
			}
		}
		return data, width, nil
	default:
		return nil, 0, fmt.Errorf("Unsupported segments container %T", v)
	}
}

func toFloat(v interface{}) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	case *big.Int:
		f, _ := new(big.Float).SetInt(x).Float64()
		return f, nil
	case *scalar:
		return x.value, nil
	default:
		return 0, fmt.Errorf("Can't convert %T to number", v)
	}
}

func toInt(v interface{}) (int, error) {
	switch x := v.(type) {
	case int:
		return x, nil
	case int64:
		return int(x), nil
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	case *big.Int:
		if !x.IsInt64() {
			return 0, fmt.Errorf("Integer %s overflows", x.String())
		}
		return int(x.Int64()), nil
	case *scalar:
		if x.value != math.Trunc(x.value) {
			return 0, fmt.Errorf("Scalar %v is not integer", x.value)
		}
		return int(x.value), nil
	default:
		return 0, fmt.Errorf("Can't convert %T to integer", v)
	}
}

// toBytes Accepts bytes objects in any form gopickle produces them: []byte, ByteArray or latin1 string
func toBytes(v interface{}) ([]byte, error) {
	if s, ok := v.(string); ok {
		return latin1(s)
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Ptr && !rv.IsNil() {
		rv = rv.Elem()
	}
	if rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() == reflect.Uint8 {
		return rv.Bytes(), nil
	}
	return nil, fmt.Errorf("Can't convert %T to bytes", v)
}

func latin1(s string) ([]byte, error) {
	buf := make([]byte, 0, len(s))
	for _, r := range s {
		if r > 0xff {
			return nil, fmt.Errorf("Rune %q is out of latin1 range", r)
		}
		buf = append(buf, byte(r))
	}
	return buf, nil
}

func findNumpyClass(module, name string) (interface{}, error) {
	numpyModule := module == "numpy" || strings.HasPrefix(module, "numpy.")
	switch {
	case module == "_codecs" && name == "encode":
		return codecsEncode{}, nil
	case numpyModule && name == "_reconstruct":
		return reconstructFunc{}, nil
	case numpyModule && name == "_frombuffer":
		return frombufferFunc{}, nil
	case numpyModule && name == "scalar":
		return scalarFunc{}, nil
	case numpyModule && name == "dtype":
		return dtypeClass{}, nil
	case numpyModule && name == "ndarray":
		return ndarrayClass{}, nil
	}
	return types.NewGenericClass(module, name), nil
}

// codecsEncode Python 3 bytes pickled with protocol 2 arrive as _codecs.encode(str, 'latin1')
type codecsEncode struct{}

func (codecsEncode) Call(args ...interface{}) (interface{}, error) {
	if len(args) < 1 {
		return nil, fmt.Errorf("_codecs.encode expects arguments")
	}
	s, ok := args[0].(string)
	if !ok {
		return nil, fmt.Errorf("_codecs.encode expects string, but got %T", args[0])
	}
	return latin1(s)
}

type ndarrayClass struct{}

type dtypeClass struct{}

// dtype Numpy data type. Only numeric kinds are supported
type dtype struct {
	kind     byte
	itemSize int
	order    binary.ByteOrder
}

func (dtypeClass) Call(args ...interface{}) (interface{}, error) {
	if len(args) < 1 {
		return nil, fmt.Errorf("dtype expects arguments")
	}
	descr, ok := args[0].(string)
	if !ok {
		return nil, fmt.Errorf("dtype expects string description, but got %T", args[0])
	}
	return parseDtype(descr)
}

// parseDtype Parses descriptions like 'f8', '<i4', '|u1'
func parseDtype(descr string) (*dtype, error) {
	d := &dtype{order: binary.LittleEndian}
	if len(descr) > 0 {
		switch descr[0] {
		case '<', '|', '=':
			descr = descr[1:]
		case '>':
			d.order = binary.BigEndian
			descr = descr[1:]
		}
	}
	if len(descr) < 2 {
		return nil, fmt.Errorf("Bad dtype description '%s'", descr)
	}
	d.kind = descr[0]
	size := 0
	if _, err := fmt.Sscanf(descr[1:], "%d", &size); err != nil {
		return nil, errors.Wrapf(err, "Bad dtype description '%s'", descr)
	}
	d.itemSize = size
	switch {
	case d.kind == 'f' && (size == 4 || size == 8):
	case (d.kind == 'i' || d.kind == 'u') && (size == 1 || size == 2 || size == 4 || size == 8):
	case d.kind == 'b' && size == 1:
	default:
		return nil, fmt.Errorf("Unsupported dtype '%s'", descr)
	}
	return d, nil
}

// PySetState State is (version, byteorder, subarray, names, fields, elsize, alignment, flags)
func (d *dtype) PySetState(state interface{}) error {
	tuple, ok := state.(pySequence)
	if !ok || tuple.Len() < 2 {
		return fmt.Errorf("Bad dtype state %T", state)
	}
	order, ok := tuple.Get(1).(string)
	if !ok {
		return fmt.Errorf("Bad dtype byte order %T", tuple.Get(1))
	}
	switch order {
	case ">":
		d.order = binary.BigEndian
	case "<", "|", "=":
		d.order = binary.LittleEndian
	default:
		return fmt.Errorf("Unknown byte order '%s'", order)
	}
	return nil
}

// decode Converts raw buffer into float64 values
func (d *dtype) decode(buf []byte) ([]float64, error) {
	if len(buf)%d.itemSize != 0 {
		return nil, fmt.Errorf("Buffer of %d bytes is not multiple of item size %d", len(buf), d.itemSize)
	}
	n := len(buf) / d.itemSize
	values := make([]float64, n)
	for i := 0; i < n; i++ {
		item := buf[i*d.itemSize : (i+1)*d.itemSize]
		switch d.kind {
		case 'f':
			if d.itemSize == 4 {
				values[i] = float64(math.Float32frombits(d.order.Uint32(item)))
			} else {
				values[i] = math.Float64frombits(d.order.Uint64(item))
			}
		case 'i':
			switch d.itemSize {
			case 1:
				values[i] = float64(int8(item[0]))
			case 2:
				values[i] = float64(int16(d.order.Uint16(item)))
			case 4:
				values[i] = float64(int32(d.order.Uint32(item)))
			case 8:
				values[i] = float64(int64(d.order.Uint64(item)))
			}
		case 'u', 'b':
			switch d.itemSize {
			case 1:
				values[i] = float64(item[0])
			case 2:
				values[i] = float64(d.order.Uint16(item))
			case 4:
				values[i] = float64(d.order.Uint32(item))
			case 8:
				values[i] = float64(d.order.Uint64(item))
			}
		}
	}
	return values, nil
}

// ndarray Decoded numpy array in C order
type ndarray struct {
	shape  []int
	values []float64
}

type reconstructFunc struct{}

// Call Arguments are (ndarray class, (0,), b'b'). Real content comes with PySetState
func (reconstructFunc) Call(args ...interface{}) (interface{}, error) {
	return &ndarray{}, nil
}

// PySetState State is (version, shape, dtype, is_fortran, rawdata)
func (a *ndarray) PySetState(state interface{}) error {
	tuple, ok := state.(pySequence)
	if !ok || tuple.Len() != 5 {
		return fmt.Errorf("Bad ndarray state %T", state)
	}
	shape, err := toShape(tuple.Get(1))
	if err != nil {
		return err
	}
	dt, ok := tuple.Get(2).(*dtype)
	if !ok {
		return fmt.Errorf("Bad ndarray dtype %T", tuple.Get(2))
	}
	fortran, ok := tuple.Get(3).(bool)
	if !ok {
		return fmt.Errorf("Bad ndarray order flag %T", tuple.Get(3))
	}
	buf, err := toBytes(tuple.Get(4))
	if err != nil {
		return errors.Wrap(err, "Can't read ndarray data (object arrays are not supported)")
	}
	return a.fill(shape, dt, fortran, buf)
}

func (a *ndarray) fill(shape []int, dt *dtype, fortran bool, buf []byte) error {
	values, err := dt.decode(buf)
	if err != nil {
		return err
	}
	total := 1
	for _, s := range shape {
		total *= s
	}
	if total != len(values) {
		return fmt.Errorf("Shape %v needs %d values, but buffer holds %d", shape, total, len(values))
	}
	if fortran && len(shape) > 1 {
		values = fortranToC(values, shape)
	}
	a.shape = shape
	a.values = values
	return nil
}

// fortranToC Reorders column-major values into row-major
func fortranToC(values []float64, shape []int) []float64 {
	out := make([]float64, len(values))
	idx := make([]int, len(shape))
	for c := range out {
		// c is the row-major position of idx, f is its column-major position
		f, stride := 0, 1
		for k := 0; k < len(shape); k++ {
			f += idx[k] * stride
			stride *= shape[k]
		}
		out[c] = values[f]
		for k := len(shape) - 1; k >= 0; k-- {
			idx[k]++
			if idx[k] < shape[k] {
				break
			}
			idx[k] = 0
		}
	}
	return out
}

func toShape(v interface{}) ([]int, error) {
	seq, ok := v.(pySequence)
	if !ok {
		n, err := toInt(v)
		if err != nil {
			return nil, fmt.Errorf("Bad shape %T", v)
		}
		return []int{n}, nil
	}
	shape := make([]int, seq.Len())
	for i := range shape {
		n, err := toInt(seq.Get(i))
		if err != nil {
			return nil, errors.Wrap(err, "Bad shape")
		}
		shape[i] = n
	}
	return shape, nil
}

type frombufferFunc struct{}

// Call Arguments are (buffer, dtype, shape, order)
func (frombufferFunc) Call(args ...interface{}) (interface{}, error) {
	if len(args) != 4 {
		return nil, fmt.Errorf("_frombuffer expects 4 arguments, but got %d", len(args))
	}
	buf, err := toBytes(args[0])
	if err != nil {
		return nil, err
	}
	dt, ok := args[1].(*dtype)
	if !ok {
		return nil, fmt.Errorf("Bad _frombuffer dtype %T", args[1])
	}
	shape, err := toShape(args[2])
	if err != nil {
		return nil, err
	}
	order, _ := args[3].(string)
	a := &ndarray{}
	if err := a.fill(shape, dt, order == "F", buf); err != nil {
		return nil, err
	}
	return a, nil
}

// scalar Numpy scalar such as numpy.int64(65)
type scalar struct {
	value float64
}

type scalarFunc struct{}

// Call Arguments are (dtype, rawbytes)
func (scalarFunc) Call(args ...interface{}) (interface{}, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("scalar expects 2 arguments, but got %d", len(args))
	}
	dt, ok := args[0].(*dtype)
	if !ok {
		return nil, fmt.Errorf("Bad scalar dtype %T", args[0])
	}
	buf, err := toBytes(args[1])
	if err != nil {
		return nil, err
	}
	values, err := dt.decode(buf)
	if err != nil {
		return nil, err
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("Scalar holds %d values", len(values))
	}
	return &scalar{value: values[0]}, nil
}
