package muxer

import (
	"bytes"
	"io"
	"strconv"
	"testing"
)

// numericSequence returns the concatenation of the decimal representations
// of from..to inclusive, e.g. numericSequence(1, 10) == "12345678910".
func numericSequence(from, to int) string {
	var buf bytes.Buffer
	for i := from; i <= to; i++ {
		buf.WriteString(strconv.Itoa(i))
	}
	return buf.String()
}

func TestMuxRoundTrip(t *testing.T) {
	m, err := New(4, 71)
	if err != nil {
		t.Fatal(err)
	}

	parts := []string{
		numericSequence(1, 10),
		numericSequence(11, 20),
		numericSequence(21, 30),
		numericSequence(31, 40),
	}
	for _, p := range parts {
		if err := m.Input(bytes.NewReader([]byte(p))); err != nil {
			t.Fatal(err)
		}
	}

	got, err := io.ReadAll(m)
	if err != nil {
		t.Fatal(err)
	}

	want := "12345678910111213141516171819202122232425262728293031323334353637383940"
	if string(got) != want {
		t.Fatalf("mux output mismatch:\n got  %q\n want %q", got, want)
	}
}

func TestMuxConstructionValidation(t *testing.T) {
	if _, err := New(-1, 128); err != ErrZeroShards {
		t.Fatalf("expected ErrZeroShards, got %v", err)
	}
	if _, err := New(2, 0); err != ErrMissingLength {
		t.Fatalf("expected ErrMissingLength, got %v", err)
	}
}

func TestMuxInputExceedsDeclaredLength(t *testing.T) {
	m, err := New(2, 2)
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Input(bytes.NewReader([]byte{0x01, 0x02, 0x03})); err != nil {
		t.Fatal(err)
	}
	if err := m.Input(bytes.NewReader(nil)); err != nil {
		t.Fatal(err)
	}

	buf := make([]byte, 16)
	_, err = m.Read(buf)
	if err != ErrInputExceedsDeclaredLength {
		t.Fatalf("expected ErrInputExceedsDeclaredLength, got %v", err)
	}
}

func TestMuxInputsExceedDeclaredShards(t *testing.T) {
	m, err := New(1, 10)
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Input(bytes.NewReader([]byte("hello"))); err != nil {
		t.Fatal(err)
	}
	if err := m.Input(bytes.NewReader([]byte("world"))); err == nil {
		t.Fatal("expected second Input to be rejected")
	}
}

func TestMuxShortInputAtTerminalRead(t *testing.T) {
	m, err := New(1, 10)
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Input(bytes.NewReader([]byte("short"))); err != nil {
		t.Fatal(err)
	}

	_, err = io.ReadAll(m)
	if err != ErrShortInput {
		t.Fatalf("expected ErrShortInput, got %v", err)
	}
}

func TestMuxUnexpectedEndOfInput(t *testing.T) {
	m, err := New(1, 10)
	if err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, 4)
	if _, err := m.Read(buf); err != ErrUnexpectedEndOfInput {
		t.Fatalf("expected ErrUnexpectedEndOfInput, got %v", err)
	}
}

func TestMuxGrowRequiresOption(t *testing.T) {
	m, err := New(1, 10)
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Grow(1, 10); err != ErrGrowthDisabled {
		t.Fatalf("expected ErrGrowthDisabled, got %v", err)
	}

	g, err := New(1, 10, AllowGrowth())
	if err != nil {
		t.Fatal(err)
	}
	if err := g.Grow(1, 10); err != nil {
		t.Fatalf("expected Grow to succeed under AllowGrowth, got %v", err)
	}
}

// TestDemuxMuxRoundTrip exercises invariant 3: concatenating Demuxer's
// shards and feeding them through a Muxer in order reproduces the
// original bytes exactly.
func TestDemuxMuxRoundTrip(t *testing.T) {
	source := []byte(numericSequence(1, 1000))

	d := NewDemuxer(bytes.NewReader(source), 37)

	var shards [][]byte
	for {
		r, _, ok, err := d.Next()
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			break
		}
		b, err := io.ReadAll(r)
		if err != nil {
			t.Fatal(err)
		}
		shards = append(shards, b)
	}

	var concatenated bytes.Buffer
	for _, s := range shards {
		concatenated.Write(s)
	}
	if !bytes.Equal(concatenated.Bytes(), source) {
		t.Fatal("concatenated demux shards do not reproduce source bytes")
	}

	total := int64(len(source))
	m, err := New(len(shards), total)
	if err != nil {
		t.Fatal(err)
	}
	for _, s := range shards {
		if err := m.Input(bytes.NewReader(s)); err != nil {
			t.Fatal(err)
		}
	}

	reassembled, err := io.ReadAll(m)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(reassembled, source) {
		t.Fatal("mux(demux(file)) did not reproduce source bytes")
	}
}
