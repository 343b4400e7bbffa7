package dataset

import (
	"bytes"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"
)

// pickleWriter Assembles protocol 2/3 pickle streams opcode by opcode
type pickleWriter struct {
	bytes.Buffer
}

func newPickleWriter() *pickleWriter {
	w := &pickleWriter{}
	w.Write([]byte{0x80, 0x03})
	return w
}

func (w *pickleWriter) op(codes ...byte) *pickleWriter {
	w.Write(codes)
	return w
}

func (w *pickleWriter) str(s string) *pickleWriter {
	w.WriteByte('X')
	binary.Write(w, binary.LittleEndian, uint32(len(s)))
	w.WriteString(s)
	return w
}

func (w *pickleWriter) int1(n byte) *pickleWriter {
	return w.op('K', n)
}

func (w *pickleWriter) float(f float64) *pickleWriter {
	w.WriteByte('G')
	binary.Write(w, binary.BigEndian, f)
	return w
}

func (w *pickleWriter) bin(b []byte) *pickleWriter {
	w.WriteByte('B')
	binary.Write(w, binary.LittleEndian, uint32(len(b)))
	w.Write(b)
	return w
}

func (w *pickleWriter) global(module, name string) *pickleWriter {
	w.WriteByte('c')
	w.WriteString(module + "\n" + name + "\n")
	return w
}

const (
	opMark      = '('
	opTuple     = 't'
	opTuple1    = 0x85
	opTuple2    = 0x86
	opTuple3    = 0x87
	opReduce    = 'R'
	opBuild     = 'b'
	opNone      = 'N'
	opNewTrue   = 0x88
	opNewFalse  = 0x89
	opEmptyDict = '}'
	opEmptyList = ']'
	opAppends   = 'e'
	opSetItems  = 'u'
	opStop      = '.'
)

// dtype Pushes numpy.dtype(descr) with byte order set by BUILD
func (w *pickleWriter) dtype(descr, order string) *pickleWriter {
	w.global("numpy", "dtype").str(descr).op(opNewFalse, opNewTrue, opTuple3, opReduce)
	w.op(opMark).int1(3).str(order).op(opNone, opNone, opNone, opTuple, opBuild)
	return w
}

// ndarray Pushes array the way numpy.ndarray.__reduce__ does
func (w *pickleWriter) ndarray(rows, columns byte, descr string, fortran bool, raw []byte) *pickleWriter {
	w.global("numpy.core.multiarray", "_reconstruct").global("numpy", "ndarray")
	w.int1(0).op(opTuple1).str("b").op(opTuple3, opReduce)
	w.op(opMark).int1(1).int1(rows).int1(columns).op(opTuple2)
	w.dtype(descr, "<")
	if fortran {
		w.op(opNewTrue)
	} else {
		w.op(opNewFalse)
	}
	w.bin(raw)
	w.op(opTuple, opBuild)
	return w
}

func float64Bytes(values ...float64) []byte {
	buf := &bytes.Buffer{}
	binary.Write(buf, binary.LittleEndian, values)
	return buf.Bytes()
}

func datasetPickle(rows, columns byte, segments func(w *pickleWriter)) []byte {
	w := newPickleWriter()
	w.op(opEmptyDict, opMark)
	w.str("rows").int1(rows)
	w.str("columns").int1(columns)
	w.str("serialised_segments")
	segments(w)
	w.op(opSetItems, opStop)
	return w.Bytes()
}

func checkValues(t *testing.T, s *Segments, correct []float64) {
	values := s.Data.Data().([]float64)
	if len(values) != len(correct) {
		t.Errorf("Number of values should be %d, but got %d", len(correct), len(values))
		return
	}
	for i := range correct {
		if math.Abs(values[i]-correct[i]) > 1e-6 {
			t.Errorf("Value %d should be %f, but got %f", i, correct[i], values[i])
		}
	}
}

func TestReadPickleNestedLists(t *testing.T) {
	raw := datasetPickle(1, 3, func(w *pickleWriter) {
		w.op(opEmptyList, opMark)
		w.op(opEmptyList, opMark).float(0.5).int1(1).float(0).op(opAppends)
		w.op(opEmptyList, opMark).int1(0).float(0.25).float(1).op(opAppends)
		w.op(opAppends)
	})
	s, err := ReadPickle(bytes.NewReader(raw))
	if err != nil {
		t.Error(err)
		return
	}
	if s.Rows != 1 || s.Columns != 3 || s.Len() != 2 {
		t.Errorf("Should be 2 tiles of 1x3, but got %d tiles of %dx%d", s.Len(), s.Rows, s.Columns)
	}
	checkValues(t, s, []float64{0.5, 1, 0, 0, 0.25, 1})
}

func TestReadPickleNdarray(t *testing.T) {
	correct := []float64{0, 1, 2, 3, 4, 5, 6, 7}
	raw := datasetPickle(2, 2, func(w *pickleWriter) {
		w.ndarray(2, 4, "f8", false, float64Bytes(correct...))
	})
	s, err := ReadPickle(bytes.NewReader(raw))
	if err != nil {
		t.Error(err)
		return
	}
	if s.Len() != 2 || s.TileSize() != 4 {
		t.Errorf("Should be 2 tiles of 4 values, but got %d tiles of %d", s.Len(), s.TileSize())
	}
	checkValues(t, s, correct)
}

func TestReadPickleFortranOrder(t *testing.T) {
	// Column-major layout of [[0 1 2 3] [4 5 6 7]]
	raw := datasetPickle(2, 2, func(w *pickleWriter) {
		w.ndarray(2, 4, "f8", true, float64Bytes(0, 4, 1, 5, 2, 6, 3, 7))
	})
	s, err := ReadPickle(bytes.NewReader(raw))
	if err != nil {
		t.Error(err)
		return
	}
	checkValues(t, s, []float64{0, 1, 2, 3, 4, 5, 6, 7})
}

func TestReadPickleUint8(t *testing.T) {
	raw := datasetPickle(1, 2, func(w *pickleWriter) {
		w.ndarray(2, 2, "u1", false, []byte{0, 1, 1, 0})
	})
	s, err := ReadPickle(bytes.NewReader(raw))
	if err != nil {
		t.Error(err)
		return
	}
	checkValues(t, s, []float64{0, 1, 1, 0})
}

func (w *pickleWriter) scalar(descr string, raw []byte) *pickleWriter {
	w.global("numpy.core.multiarray", "scalar")
	w.dtype(descr, "<")
	w.bin(raw)
	return w.op(opTuple2, opReduce)
}

func TestReadPickleNumpyScalars(t *testing.T) {
	w := newPickleWriter()
	w.op(opEmptyDict, opMark)
	w.str("rows").scalar("i8", []byte{1, 0, 0, 0, 0, 0, 0, 0})
	w.str("columns").scalar("i8", []byte{1, 0, 0, 0, 0, 0, 0, 0})
	w.str("serialised_segments")
	w.ndarray(3, 1, "i4", false, []byte{5, 0, 0, 0, 0xff, 0xff, 0xff, 0xff, 0, 1, 0, 0})
	w.op(opSetItems, opStop)
	s, err := ReadPickle(bytes.NewReader(w.Bytes()))
	if err != nil {
		t.Error(err)
		return
	}
	if s.Rows != 1 || s.Columns != 1 {
		t.Errorf("Tile should be 1x1, but got %dx%d", s.Rows, s.Columns)
	}
	checkValues(t, s, []float64{5, -1, 256})
}

func TestReadPickleBytesSegments(t *testing.T) {
	// bytes pickled with protocol 2 by Python 3
	raw := datasetPickle(1, 1, func(w *pickleWriter) {
		w.global("_codecs", "encode")
		w.str(string([]rune{0x00, 0x80, 0xff, 0x01})).str("latin1").op(opTuple2, opReduce)
	})
	if _, err := ReadPickle(bytes.NewReader(raw)); err == nil {
		t.Error("Bytes object should not be accepted as segments")
	}
}

func TestLatin1Codec(t *testing.T) {
	out, err := codecsEncode{}.Call(string([]rune{0x00, 0x80, 0xff}), "latin1")
	if err != nil {
		t.Error(err)
		return
	}
	buf := out.([]byte)
	if !bytes.Equal(buf, []byte{0x00, 0x80, 0xff}) {
		t.Errorf("Bytes should be [0 128 255], but got %v", buf)
	}
}

func TestReadPickleErrors(t *testing.T) {
	notDict := newPickleWriter().op(opEmptyList, opStop).Bytes()
	if _, err := ReadPickle(bytes.NewReader(notDict)); err == nil {
		t.Error("List should not be accepted as dataset")
	}
	missing := newPickleWriter().op(opEmptyDict, opMark).str("rows").int1(1).op(opSetItems, opStop).Bytes()
	if _, err := ReadPickle(bytes.NewReader(missing)); err == nil {
		t.Error("Dataset without 'columns' should give error")
	}
	wrongLength := datasetPickle(3, 3, func(w *pickleWriter) {
		w.ndarray(2, 4, "f8", false, float64Bytes(0, 1, 2, 3, 4, 5, 6, 7))
	})
	if _, err := ReadPickle(bytes.NewReader(wrongLength)); err == nil {
		t.Error("Segment length which doesn't match rows*columns should give error")
	}
	if _, err := LoadPickle(filepath.Join(t.TempDir(), "absent.pickle")); err == nil {
		t.Error("Missing file should give error")
	}
}

func TestLoadPickle(t *testing.T) {
	raw := datasetPickle(1, 2, func(w *pickleWriter) {
		w.ndarray(1, 2, "f4", false, []byte{0, 0, 0x80, 0x3f, 0, 0, 0, 0x3f})
	})
	path := filepath.Join(t.TempDir(), "data_tower.pickle")
	if err := os.WriteFile(path, raw, 0644); err != nil {
		t.Error(err)
		return
	}
	s, err := LoadPickle(path)
	if err != nil {
		t.Error(err)
		return
	}
	checkValues(t, s, []float64{1, 0.5})
}
