package cube

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// Serializer reads and writes Grid/Node/Hypothesis state as a flat binary
// stream. Spec §4.5: single-writer/single-reader, not versioned, explicit
// packed records rather than a dump of in-memory structs so the format is
// host-independent (spec §9 Open Question (iii) — this is a from-scratch
// little-endian layout, not bit-compatible with the legacy host-endian C
// structs). Grounded on the field order in
// original_source/libsrc/cube/cube_node.c / cube_grid.c's serialization
// routines; byte-framing idiom follows gsf/record.go's
// binary.Read/binary.Write usage.
var byteOrder = binary.LittleEndian

// gridMagic tags the start of a serialized grid, so a short or foreign file
// is rejected early rather than misread.
const gridMagic uint32 = 0x43554245 // "CUBE"

// WriteGrid serializes g to w: header, nx*ny node records in row-major
// order, then the raw cache surface.
func WriteGrid(w io.Writer, g *Grid) error {
	header := struct {
		Magic      uint32
		NX, NY     int32
		DX, DY     float64
		CacheField int32
	}{
		Magic:      gridMagic,
		NX:         int32(g.NX),
		NY:         int32(g.NY),
		DX:         g.DX,
		DY:         g.DY,
		CacheField: int32(g.cacheField),
	}
	if err := binary.Write(w, byteOrder, header); err != nil {
		return fmt.Errorf("%w: grid header: %v", ErrSerialization, err)
	}

	for row := 0; row < g.NY; row++ {
		for col := 0; col < g.NX; col++ {
			if err := writeNode(w, g.Nodes[row][col], g.Params); err != nil {
				return err
			}
		}
	}

	if err := binary.Write(w, byteOrder, g.cache); err != nil {
		return fmt.Errorf("%w: cache surface: %v", ErrSerialization, err)
	}
	return nil
}

// ReadGrid deserializes a grid previously written by WriteGrid. p supplies
// the Parameters the reconstructed grid will operate under (not validated here);
// it is not itself part of the stream (spec: "Parameters... consulted by
// C1-C3", not persisted per-grid).
func ReadGrid(r io.Reader, p Parameters) (*Grid, error) {
	var header struct {
		Magic      uint32
		NX, NY     int32
		DX, DY     float64
		CacheField int32
	}
	if err := binary.Read(r, byteOrder, &header); err != nil {
		return nil, fmt.Errorf("%w: grid header: %v", ErrSerialization, err)
	}
	if header.Magic != gridMagic {
		return nil, fmt.Errorf("%w: bad grid magic", ErrSerialization)
	}

	g := NewGrid(int(header.NX), int(header.NY), header.DX, header.DY, p)
	g.cacheField = ScalarField(header.CacheField)

	for row := 0; row < g.NY; row++ {
		for col := 0; col < g.NX; col++ {
			node, err := readNode(r)
			if err != nil {
				return nil, err
			}
			g.Nodes[row][col] = node
		}
	}

	g.cache = make([]float32, g.NX*g.NY)
	if err := binary.Read(r, byteOrder, g.cache); err != nil {
		return nil, fmt.Errorf("%w: cache surface: %v", ErrSerialization, err)
	}
	return g, nil
}

// nodeHeader is the fixed-size portion of a node record: queue length,
// prior surface, and the debug flag. Spec §4.5 "node header (invariant
// size: queue-length, pointer placeholders, pred_depth, pred_var, debug
// flag)"; the "pointer placeholders" of the source's in-memory struct have
// no meaning on disk and are dropped rather than padded in, since nothing
// reads them back.
type nodeHeader struct {
	QueueLength int32
	PredDepth   float64
	PredVar     float64
	Debug       uint8
	_           [7]byte // reserved zero bytes; the record is 28 bytes in all
}

func writeNode(w io.Writer, n *Node, p Parameters) error {
	debug := uint8(0)
	if n.Debug {
		debug = 1
	}
	hdr := nodeHeader{
		QueueLength: int32(len(n.Queue)),
		PredDepth:   n.PredDepth,
		PredVar:     n.PredVar,
		Debug:       debug,
	}
	if err := binary.Write(w, byteOrder, hdr); err != nil {
		return fmt.Errorf("%w: node header: %v", ErrSerialization, err)
	}
	for _, q := range n.Queue {
		if err := binary.Write(w, byteOrder, q); err != nil {
			return fmt.Errorf("%w: queue entry: %v", ErrSerialization, err)
		}
	}

	reportable := n.reportableHypotheses()
	if err := binary.Write(w, byteOrder, int32(len(reportable))); err != nil {
		return fmt.Errorf("%w: hypothesis count: %v", ErrSerialization, err)
	}
	nominatedIndex := int32(0)
	for i, h := range reportable {
		if err := writeHypothesis(w, h); err != nil {
			return err
		}
		if n.Nominated >= 0 && n.Nominated < len(n.Hypotheses) && n.Hypotheses[n.Nominated] == h {
			nominatedIndex = int32(i + 1) // 1-based, 0 = no nomination
		}
	}
	if err := binary.Write(w, byteOrder, nominatedIndex); err != nil {
		return fmt.Errorf("%w: nominated index: %v", ErrSerialization, err)
	}
	return nil
}

func readNode(r io.Reader) (*Node, error) {
	var hdr nodeHeader
	if err := binary.Read(r, byteOrder, &hdr); err != nil {
		return nil, fmt.Errorf("%w: node header: %v", ErrSerialization, err)
	}
	if hdr.QueueLength < 0 || hdr.QueueLength > 100000 {
		return nil, fmt.Errorf("%w: implausible queue length %d", ErrSerialization, hdr.QueueLength)
	}

	n := NewNode()
	n.PredDepth = hdr.PredDepth
	n.PredVar = hdr.PredVar
	n.Debug = hdr.Debug != 0

	n.Queue = make([]QueueEntry, hdr.QueueLength)
	for i := range n.Queue {
		if err := binary.Read(r, byteOrder, &n.Queue[i]); err != nil {
			return nil, fmt.Errorf("%w: queue entry: %v", ErrSerialization, err)
		}
	}

	var count int32
	if err := binary.Read(r, byteOrder, &count); err != nil {
		return nil, fmt.Errorf("%w: hypothesis count: %v", ErrSerialization, err)
	}
	if count < 0 || count > 1<<20 {
		return nil, fmt.Errorf("%w: implausible hypothesis count %d", ErrSerialization, count)
	}

	n.Hypotheses = make([]*Hypothesis, count)
	for i := 0; i < int(count); i++ {
		h, err := readHypothesis(r)
		if err != nil {
			return nil, err
		}
		n.nextHypothesisID++
		h.ID = n.nextHypothesisID
		n.Hypotheses[i] = h
	}

	var nominatedIndex int32
	if err := binary.Read(r, byteOrder, &nominatedIndex); err != nil {
		return nil, fmt.Errorf("%w: nominated index: %v", ErrSerialization, err)
	}
	if nominatedIndex <= 0 || int(nominatedIndex) > len(n.Hypotheses) {
		n.Nominated = -1
	} else {
		n.Nominated = int(nominatedIndex) - 1
	}
	return n, nil
}

// hypothesisRecord is the on-disk layout of one Hypothesis. The id field is
// never read back (spec §3: "regenerated on serialization so files always
// start at 1"); writeHypothesis omits it entirely.
type hypothesisRecord struct {
	Mean         float64
	Variance     float64
	PredMean     float64
	PredVariance float64
	CumBayes     float64
	SeqLen       int32
	NSamples     int32
	SampleVar    float64
}

func writeHypothesis(w io.Writer, h *Hypothesis) error {
	rec := hypothesisRecord{
		Mean:         h.Mean,
		Variance:     h.Variance,
		PredMean:     h.PredMean,
		PredVariance: h.PredVariance,
		CumBayes:     h.CumBayes,
		SeqLen:       int32(h.SeqLen),
		NSamples:     int32(h.NSamples),
		SampleVar:    h.SampleVar,
	}
	if err := binary.Write(w, byteOrder, rec); err != nil {
		return fmt.Errorf("%w: hypothesis record: %v", ErrSerialization, err)
	}
	return nil
}

func readHypothesis(r io.Reader) (*Hypothesis, error) {
	var rec hypothesisRecord
	if err := binary.Read(r, byteOrder, &rec); err != nil {
		return nil, fmt.Errorf("%w: hypothesis record: %v", ErrSerialization, err)
	}
	if rec.Variance <= 0 || math.IsNaN(rec.Variance) {
		return nil, fmt.Errorf("%w: non-positive hypothesis variance on read", ErrSerialization)
	}
	return &Hypothesis{
		Mean:         rec.Mean,
		Variance:     rec.Variance,
		PredMean:     rec.PredMean,
		PredVariance: rec.PredVariance,
		CumBayes:     rec.CumBayes,
		SeqLen:       int(rec.SeqLen),
		NSamples:     int(rec.NSamples),
		SampleVar:    rec.SampleVar,
		samples:      []float64{rec.Mean},
	}, nil
}

// EncodeGrid is a convenience wrapper returning the serialized bytes of g.
func EncodeGrid(g *Grid) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteGrid(&buf, g); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeGrid is EncodeGrid's inverse.
func DecodeGrid(data []byte, p Parameters) (*Grid, error) {
	return ReadGrid(bytes.NewReader(data), p)
}
