package groundtruth

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"io"
	"math"
	"strings"

	"github.com/pkg/errors"
)

// Minimal reader for MATLAB level 5 MAT files: enough to pull numeric
// variables (optionally nested one level in a struct) out of the per-clip
// ground-truth sidecars. Sparse, cell, char and object arrays are skipped.

const matHeaderLen = 128

// MAT data types.
const (
	miINT8       = 1
	miUINT8      = 2
	miINT16      = 3
	miUINT16     = 4
	miINT32      = 5
	miUINT32     = 6
	miSINGLE     = 7
	miDOUBLE     = 9
	miINT64      = 12
	miUINT64     = 13
	miMATRIX     = 14
	miCOMPRESSED = 15
)

// MAT array classes.
const (
	mxSTRUCT = 2
	mxDOUBLE = 6
	mxUINT64 = 15
)

type matVar struct {
	Name   string
	Class  byte
	Dims   []int
	Data   []float64
	Fields map[string][]*matVar
}

func (v *matVar) numeric() bool { return v.Class >= mxDOUBLE && v.Class <= mxUINT64 }

type matReader struct {
	order binary.ByteOrder
}

// readMAT decodes every top-level variable of a MAT file.
func readMAT(r io.Reader) ([]*matVar, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if len(data) < matHeaderLen {
		return nil, errors.New("mat: file shorter than header")
	}
	var m matReader
	switch string(data[126:128]) {
	case "IM":
		m.order = binary.LittleEndian
	case "MI":
		m.order = binary.BigEndian
	default:
		return nil, errors.Errorf("mat: bad endian indicator %q", data[126:128])
	}
	if v := m.order.Uint16(data[124:126]); v != 0x0100 {
		return nil, errors.Errorf("mat: unsupported version 0x%04x", v)
	}
	return m.elements(data[matHeaderLen:])
}

func (m matReader) elements(buf []byte) ([]*matVar, error) {
	var vars []*matVar
	for len(buf) >= 8 {
		typ, body, rest, err := m.next(buf)
		if err != nil {
			return nil, err
		}
		buf = rest
		switch typ {
		case miCOMPRESSED:
			zr, err := zlib.NewReader(bytes.NewReader(body))
			if err != nil {
				return nil, errors.Wrap(err, "mat: compressed element")
			}
			inner, err := io.ReadAll(zr)
			zr.Close()
			if err != nil {
				return nil, errors.Wrap(err, "mat: inflate")
			}
			vs, err := m.elements(inner)
			if err != nil {
				return nil, err
			}
			vars = append(vars, vs...)
		case miMATRIX:
			v, err := m.matrix(body)
			if err != nil {
				return nil, err
			}
			vars = append(vars, v)
		}
	}
	return vars, nil
}

// next splits the first data element off buf.
func (m matReader) next(buf []byte) (typ uint32, body, rest []byte, err error) {
	if len(buf) < 8 {
		return 0, nil, nil, errors.New("mat: truncated tag")
	}
	typ = m.order.Uint32(buf[0:4])
	if small := typ >> 16; small != 0 {
		// small data element: size and type share the first word
		if small > 4 {
			return 0, nil, nil, errors.Errorf("mat: small element of %d bytes", small)
		}
		return typ & 0xffff, buf[4 : 4+small], buf[8:], nil
	}
	n := int(m.order.Uint32(buf[4:8]))
	if n < 0 || 8+n > len(buf) {
		return 0, nil, nil, errors.Errorf("mat: element of %d bytes overruns buffer", n)
	}
	end := 8 + n
	if typ != miCOMPRESSED {
		end = 8 + (n+7)/8*8
		if end > len(buf) {
			end = len(buf)
		}
	}
	return typ, buf[8 : 8+n], buf[end:], nil
}

func (m matReader) matrix(buf []byte) (*matVar, error) {
	v := &matVar{}
	if len(buf) == 0 {
		return v, nil
	}
	_, flags, buf, err := m.next(buf)
	if err != nil {
		return nil, err
	}
	if len(flags) < 4 {
		return nil, errors.New("mat: short array flags")
	}
	v.Class = byte(m.order.Uint32(flags[0:4]) & 0xff)

	typ, dims, buf, err := m.next(buf)
	if err != nil {
		return nil, err
	}
	for _, d := range m.numbers(typ, dims) {
		v.Dims = append(v.Dims, int(d))
	}
	_, name, buf, err := m.next(buf)
	if err != nil {
		return nil, err
	}
	v.Name = string(name)

	switch {
	case v.numeric():
		typ, re, _, err := m.next(buf)
		if err != nil {
			return nil, err
		}
		v.Data = m.numbers(typ, re)
	case v.Class == mxSTRUCT:
		if err := m.structFields(v, buf); err != nil {
			return nil, errors.Wrapf(err, "struct %q", v.Name)
		}
	}
	return v, nil
}

func (m matReader) structFields(v *matVar, buf []byte) error {
	typ, lenBody, buf, err := m.next(buf)
	if err != nil {
		return err
	}
	nameLen := m.numbers(typ, lenBody)
	if len(nameLen) != 1 || nameLen[0] <= 0 {
		return errors.New("mat: bad field name length")
	}
	_, namesBody, buf, err := m.next(buf)
	if err != nil {
		return err
	}
	width := int(nameLen[0])
	var names []string
	for i := 0; i+width <= len(namesBody); i += width {
		names = append(names, strings.TrimRight(string(namesBody[i:i+width]), "\x00"))
	}
	count := 1
	for _, d := range v.Dims {
		count *= d
	}
	v.Fields = make(map[string][]*matVar, len(names))
	for i := 0; i < count; i++ {
		for _, name := range names {
			typ, body, rest, err := m.next(buf)
			if err != nil {
				return err
			}
			buf = rest
			if typ != miMATRIX {
				return errors.Errorf("mat: field %q is not a matrix", name)
			}
			fv, err := m.matrix(body)
			if err != nil {
				return err
			}
			fv.Name = name
			v.Fields[name] = append(v.Fields[name], fv)
		}
	}
	return nil
}

func (m matReader) numbers(typ uint32, b []byte) []float64 {
	var out []float64
	switch typ {
	case miINT8:
		for _, x := range b {
			out = append(out, float64(int8(x)))
		}
	case miUINT8:
		for _, x := range b {
			out = append(out, float64(x))
		}
	case miINT16:
		for i := 0; i+2 <= len(b); i += 2 {
			out = append(out, float64(int16(m.order.Uint16(b[i:]))))
		}
	case miUINT16:
		for i := 0; i+2 <= len(b); i += 2 {
			out = append(out, float64(m.order.Uint16(b[i:])))
		}
	case miINT32:
		for i := 0; i+4 <= len(b); i += 4 {
			out = append(out, float64(int32(m.order.Uint32(b[i:]))))
		}
	case miUINT32:
		for i := 0; i+4 <= len(b); i += 4 {
			out = append(out, float64(m.order.Uint32(b[i:])))
		}
	case miSINGLE:
		for i := 0; i+4 <= len(b); i += 4 {
			out = append(out, float64(math.Float32frombits(m.order.Uint32(b[i:]))))
		}
	case miDOUBLE:
		for i := 0; i+8 <= len(b); i += 8 {
			out = append(out, math.Float64frombits(m.order.Uint64(b[i:])))
		}
	case miINT64:
		for i := 0; i+8 <= len(b); i += 8 {
			out = append(out, float64(int64(m.order.Uint64(b[i:]))))
		}
	case miUINT64:
		for i := 0; i+8 <= len(b); i += 8 {
			out = append(out, float64(m.order.Uint64(b[i:])))
		}
	}
	return out
}

// matFrames returns the integer contents of the numeric variable called field,
// either at the top level or as a field of a top-level struct.
func matFrames(vars []*matVar, field string) ([]int, error) {
	var found *matVar
	for _, v := range vars {
		if v.Name == field && v.numeric() {
			found = v
			break
		}
		if fs := v.Fields[field]; len(fs) > 0 && fs[0].numeric() {
			found = fs[0]
			break
		}
	}
	if found == nil {
		return nil, errors.Errorf("mat: no numeric variable %q", field)
	}
	frames := make([]int, len(found.Data))
	for i, f := range found.Data {
		if f != math.Trunc(f) {
			return nil, errors.Errorf("mat: %s[%d] = %v is not a frame number", field, i, f)
		}
		frames[i] = int(f)
	}
	return frames, nil
}
