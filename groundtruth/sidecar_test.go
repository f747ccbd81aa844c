package groundtruth

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"errors"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

// matElement appends a tagged data element padded to 8 bytes.
func matElement(buf *bytes.Buffer, order binary.ByteOrder, typ uint32, data []byte) {
	binary.Write(buf, order, typ)
	binary.Write(buf, order, uint32(len(data)))
	buf.Write(data)
	if pad := (8 - len(data)%8) % 8; pad > 0 {
		buf.Write(make([]byte, pad))
	}
}

// matDoubleVar encodes a 1xN double matrix called name.
func matDoubleVar(order binary.ByteOrder, name string, values []float64) []byte {
	var body bytes.Buffer
	flags := make([]byte, 8)
	order.PutUint32(flags, mxDOUBLE)
	matElement(&body, order, miUINT32, flags)

	dims := make([]byte, 8)
	order.PutUint32(dims[0:], 1)
	order.PutUint32(dims[4:], uint32(len(values)))
	matElement(&body, order, miINT32, dims)
	matElement(&body, order, miINT8, []byte(name))

	data := make([]byte, 8*len(values))
	for i, v := range values {
		order.PutUint64(data[8*i:], math.Float64bits(v))
	}
	matElement(&body, order, miDOUBLE, data)

	var out bytes.Buffer
	matElement(&out, order, miMATRIX, body.Bytes())
	return out.Bytes()
}

func matCompressed(t *testing.T, order binary.ByteOrder, element []byte) []byte {
	t.Helper()
	var z bytes.Buffer
	zw := zlib.NewWriter(&z)
	if _, err := zw.Write(element); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	var out bytes.Buffer
	binary.Write(&out, order, uint32(miCOMPRESSED))
	binary.Write(&out, order, uint32(z.Len()))
	out.Write(z.Bytes())
	return out.Bytes()
}

func matFile(order binary.ByteOrder, elements ...[]byte) []byte {
	header := bytes.Repeat([]byte(" "), matHeaderLen)
	copy(header, "MATLAB 5.0 MAT-file, written by tests")
	for i := 116; i < 124; i++ {
		header[i] = 0
	}
	order.PutUint16(header[124:], 0x0100)
	order.PutUint16(header[126:], 'M'<<8|'I')
	out := append([]byte{}, header...)
	for _, e := range elements {
		out = append(out, e...)
	}
	return out
}

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestReadMATVariants(t *testing.T) {
	frames := []float64{3, 4, 5, 10}
	cases := map[string][]byte{
		"little endian": matFile(binary.LittleEndian,
			matDoubleVar(binary.LittleEndian, "other", []float64{1.5}),
			matDoubleVar(binary.LittleEndian, "gt_frame", frames)),
		"big endian": matFile(binary.BigEndian, matDoubleVar(binary.BigEndian, "gt_frame", frames)),
		"compressed": matFile(binary.LittleEndian,
			matCompressed(t, binary.LittleEndian, matDoubleVar(binary.LittleEndian, "gt_frame", frames))),
	}
	for name, data := range cases {
		vars, err := readMAT(bytes.NewReader(data))
		if err != nil {
			t.Errorf("%s: readMAT: %v", name, err)
			continue
		}
		got, err := matFrames(vars, "gt_frame")
		if err != nil {
			t.Errorf("%s: matFrames: %v", name, err)
			continue
		}
		if !reflect.DeepEqual(got, []int{3, 4, 5, 10}) {
			t.Errorf("%s: got %v", name, got)
		}
	}
}

func TestReadMATErrors(t *testing.T) {
	if _, err := readMAT(bytes.NewReader([]byte("short"))); err == nil {
		t.Error("expected an error for a short file")
	}
	data := matFile(binary.LittleEndian, matDoubleVar(binary.LittleEndian, "gt_frame", []float64{1.5}))
	vars, err := readMAT(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("readMAT: %v", err)
	}
	if _, err := matFrames(vars, "gt_frame"); err == nil {
		t.Error("expected an error for a fractional frame number")
	}
	if _, err := matFrames(vars, "missing"); err == nil {
		t.Error("expected an error for a missing variable")
	}
}

func TestSidecarResolver(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "Test001_gt.mat"),
		matFile(binary.LittleEndian, matDoubleVar(binary.LittleEndian, "gt_frame", []float64{2, 3})))

	r, err := NewSidecarResolver(dir, ".MAT", "", MissingNormal)
	if err != nil {
		t.Fatalf("NewSidecarResolver: %v", err)
	}
	s, err := r.Resolve(ClipFromName("Test001"))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !reflect.DeepEqual(s.Frames(), []int{2, 3}) {
		t.Fatalf("got %v", s)
	}

	s, err = r.Resolve(ClipFromName("Test002"))
	if err != nil || !s.Empty() {
		t.Fatalf("missing sidecar with MissingNormal: got %v, %v", s, err)
	}

	r.Missing = MissingFail
	if _, err := r.Resolve(ClipFromName("Test002")); !errors.Is(err, ErrSidecarMissing) {
		t.Fatalf("missing sidecar with MissingFail: expected ErrSidecarMissing, got %v", err)
	}

	writeFile(t, filepath.Join(dir, "Test003_gt.mat"), []byte("not a mat file"))
	if _, err := r.Resolve(ClipFromName("Test003")); err == nil {
		t.Fatal("expected an error for a corrupt sidecar")
	}
}

func TestSidecarResolverJSON(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "Test007_gt.json"), []byte(`{"frames": [9, 1, 2]}`))

	r, err := NewSidecarResolver(dir, "json", "frames", MissingNormal)
	if err != nil {
		t.Fatalf("NewSidecarResolver: %v", err)
	}
	s, err := r.Resolve(Clip{Name: "Test007", Index: 6})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !reflect.DeepEqual(s.Frames(), []int{1, 2, 9}) {
		t.Fatalf("got %v", s)
	}

	writeFile(t, filepath.Join(dir, "Test008_gt.json"),
		[]byte(`{"clip": "Test008", "pixel_mask": {"w": 238}, "frames": [3, 4]}`))
	s, err = r.Resolve(Clip{Name: "Test008", Index: 7})
	if err != nil {
		t.Fatalf("Resolve with extra fields: %v", err)
	}
	if !reflect.DeepEqual(s.Frames(), []int{3, 4}) {
		t.Fatalf("extra fields: got %v", s)
	}

	writeFile(t, filepath.Join(dir, "Test009_gt.json"), []byte(`{"frames": "all"}`))
	if _, err := r.Resolve(Clip{Name: "Test009", Index: 8}); err == nil {
		t.Fatal("expected an error for a non-numeric frames field")
	}
	writeFile(t, filepath.Join(dir, "Test010_gt.json"), []byte(`{"clip": "Test010"}`))
	if _, err := r.Resolve(Clip{Name: "Test010", Index: 9}); err == nil {
		t.Fatal("expected an error for a sidecar without the frames field")
	}

	if _, err := NewSidecarResolver(dir, "npy", "", MissingNormal); err == nil {
		t.Fatal("expected an error for an unsupported extension")
	}
}

func TestParseMissingPolicy(t *testing.T) {
	for s, want := range map[string]MissingPolicy{"": MissingNormal, "normal": MissingNormal, "FAIL": MissingFail} {
		got, err := ParseMissingPolicy(s)
		if err != nil || got != want {
			t.Errorf("ParseMissingPolicy(%q) = %v, %v", s, got, err)
		}
	}
	if _, err := ParseMissingPolicy("ignore"); err == nil {
		t.Error("expected an error for an unknown policy")
	}
}
