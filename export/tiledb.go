// Package export writes a Grid's extracted scalar surfaces to a dense
// TileDB array, one cell per (row, col) node. Grounded on
// gsf/tiledb.go's CreateAttr/schema-construction pattern and
// gsf/attitude.go's ToTileDB array-create-then-write idiom, adapted from
// a 1-D ping/sparse-point layout to a 2-D dense grid.
package export

import (
	"errors"
	"reflect"

	tiledb "github.com/TileDB-Inc/TileDB-Go"
	"github.com/samber/lo"
	stgpsr "github.com/yuin/stagparser"

	cube "github.com/rolker/cube-bathymetry-sub002"
)

var ErrCreateGridTdb = errors.New("error creating grid TileDB array")
var ErrWriteGridTdb = errors.New("error writing grid TileDB array")

// GridSurface is the on-disk attribute layout of an extracted grid: one
// record per (row, col) node, dense over the full nx*ny domain.
type GridSurface struct {
	Row         []uint64  `tiledb:"dtype=uint64,ftype=dim"`
	Col         []uint64  `tiledb:"dtype=uint64,ftype=dim"`
	Depth       []float32 `tiledb:"dtype=float32,ftype=attr" filters:"zstd(level=16)"`
	Uncertainty []float32 `tiledb:"dtype=float32,ftype=attr" filters:"zstd(level=16)"`
	Count       []float32 `tiledb:"dtype=float32,ftype=attr" filters:"zstd(level=16)"`
	Ratio       []float32 `tiledb:"dtype=float32,ftype=attr" filters:"zstd(level=16)"`
}

// fieldNames returns the exported field names of t, in declaration order.
func fieldNames(t any) []string {
	typ := reflect.TypeOf(t)
	names := make([]string, 0, typ.NumField())
	for i := 0; i < typ.NumField(); i++ {
		if typ.Field(i).IsExported() {
			names = append(names, typ.Field(i).Name)
		}
	}
	return names
}

// addAttr creates one TileDB attribute from a struct field's tiledb/filters
// tags and attaches it to schema. Grounded on gsf/tiledb.go's CreateAttr,
// trimmed to the subset of datatypes and filters this package's attributes
// actually use (float32/zstd).
func addAttr(name string, filterDefs []stgpsr.Definition, tiledbDefs map[string]stgpsr.Definition, schema *tiledb.ArraySchema, ctx *tiledb.Context) error {
	def, ok := tiledbDefs["dtype"]
	if !ok {
		return errors.Join(ErrCreateGridTdb, errors.New("dtype tag not found for "+name))
	}
	dtypeAttr, _ := def.Attribute("dtype")

	var dtype tiledb.Datatype
	switch dtypeAttr {
	case "float32":
		dtype = tiledb.TILEDB_FLOAT32
	case "float64":
		dtype = tiledb.TILEDB_FLOAT64
	case "uint64":
		dtype = tiledb.TILEDB_UINT64
	default:
		return errors.Join(ErrCreateGridTdb, errors.New("unsupported dtype "+dtypeAttr))
	}

	filts, err := tiledb.NewFilterList(ctx)
	if err != nil {
		return errors.Join(ErrCreateGridTdb, err)
	}
	defer filts.Free()

	for _, filter := range filterDefs {
		if filter.Name() != "zstd" {
			continue
		}
		level, ok := filter.Attribute("level")
		if !ok {
			return errors.Join(ErrCreateGridTdb, errors.New("zstd level not defined for "+name))
		}
		filt, err := tiledb.NewFilter(ctx, tiledb.TILEDB_FILTER_ZSTD)
		if err != nil {
			return errors.Join(ErrCreateGridTdb, err)
		}
		defer filt.Free()
		if err := filt.SetOption(tiledb.TILEDB_COMPRESSION_LEVEL, int32(level.(int64))); err != nil {
			return errors.Join(ErrCreateGridTdb, err)
		}
		if err := filts.AddFilter(filt); err != nil {
			return errors.Join(ErrCreateGridTdb, err)
		}
	}

	attr, err := tiledb.NewAttribute(ctx, name, dtype)
	if err != nil {
		return errors.Join(ErrCreateGridTdb, err)
	}
	defer attr.Free()

	if err := attr.SetFilterList(filts); err != nil {
		return errors.Join(ErrCreateGridTdb, err)
	}
	if err := schema.AddAttributes(attr); err != nil {
		return errors.Join(ErrCreateGridTdb, err)
	}
	return nil
}

// schemaAttrs walks GridSurface's tagged fields and attaches the non-
// dimension ones to schema as attributes, stagparser-driven the same way
// gsf/schema.go's schemaAttrs drives attribute construction from struct
// tags rather than a hand-written switch per field.
func schemaAttrs(schema *tiledb.ArraySchema, ctx *tiledb.Context) error {
	var surf GridSurface
	filtDefs, _ := stgpsr.ParseStruct(&surf, "filters")
	tdbDefs, _ := stgpsr.ParseStruct(&surf, "tiledb")

	for _, name := range fieldNames(surf) {
		fieldTdb := make(map[string]stgpsr.Definition)
		for _, v := range tdbDefs[name] {
			fieldTdb[v.Name()] = v
		}
		def, ok := fieldTdb["ftype"]
		if !ok {
			return errors.Join(ErrCreateGridTdb, errors.New("ftype tag not found for "+name))
		}
		ftype, _ := def.Attribute("ftype")
		if ftype == "dim" {
			continue
		}
		if err := addAttr(name, filtDefs[name], fieldTdb, schema, ctx); err != nil {
			return err
		}
	}
	return nil
}

// createArray establishes a dense (row, col) TileDB array schema sized to
// nx*ny and creates it at uri. Grounded on gsf/svp.go's svp_tiledb_array.
func createArray(uri string, nx, ny int, ctx *tiledb.Context) error {
	domain, err := tiledb.NewDomain(ctx)
	if err != nil {
		return errors.Join(ErrCreateGridTdb, err)
	}
	defer domain.Free()

	rowDim, err := tiledb.NewDimension(ctx, "Row", tiledb.TILEDB_UINT64, []uint64{0, uint64(ny - 1)}, uint64(ny))
	if err != nil {
		return errors.Join(ErrCreateGridTdb, err)
	}
	defer rowDim.Free()

	colDim, err := tiledb.NewDimension(ctx, "Col", tiledb.TILEDB_UINT64, []uint64{0, uint64(nx - 1)}, uint64(nx))
	if err != nil {
		return errors.Join(ErrCreateGridTdb, err)
	}
	defer colDim.Free()

	if err := domain.AddDimensions(rowDim, colDim); err != nil {
		return errors.Join(ErrCreateGridTdb, err)
	}

	schema, err := tiledb.NewArraySchema(ctx, tiledb.TILEDB_DENSE)
	if err != nil {
		return errors.Join(ErrCreateGridTdb, err)
	}
	defer schema.Free()

	if err := schema.SetDomain(domain); err != nil {
		return errors.Join(ErrCreateGridTdb, err)
	}
	if err := schema.SetCellOrder(tiledb.TILEDB_ROW_MAJOR); err != nil {
		return errors.Join(ErrCreateGridTdb, err)
	}
	if err := schema.SetTileOrder(tiledb.TILEDB_ROW_MAJOR); err != nil {
		return errors.Join(ErrCreateGridTdb, err)
	}

	if err := schemaAttrs(schema, ctx); err != nil {
		return err
	}

	array, err := tiledb.NewArray(ctx, uri)
	if err != nil {
		return errors.Join(ErrCreateGridTdb, err)
	}
	defer array.Free()

	if err := array.Create(schema); err != nil {
		return errors.Join(ErrCreateGridTdb, err)
	}
	return nil
}

// WriteGrid extracts g's depth/uncertainty/count/ratio surfaces and writes
// them to a new dense TileDB array at uri, one cell per node. Grounded on
// gsf/attitude.go's ToTileDB (create-then-open-then-query-then-submit).
func WriteGrid(uri string, g *cube.Grid, ctx *tiledb.Context) error {
	nx, ny := g.NX, g.NY
	n := nx * ny

	if err := createArray(uri, nx, ny, ctx); err != nil {
		return err
	}

	depth := make([]float32, n)
	unct := make([]float32, n)
	ratio := make([]float32, n)
	g.GetAll(depth, unct, ratio)

	count := make([]float32, n)
	g.Get(cube.FieldCount, count)

	array, err := tiledb.NewArray(ctx, uri)
	if err != nil {
		return errors.Join(ErrWriteGridTdb, err)
	}
	defer array.Free()

	if err := array.Open(tiledb.TILEDB_WRITE); err != nil {
		return errors.Join(ErrWriteGridTdb, err)
	}
	defer array.Close()

	query, err := tiledb.NewQuery(ctx, array)
	if err != nil {
		return errors.Join(ErrWriteGridTdb, err)
	}
	defer query.Free()

	if err := query.SetLayout(tiledb.TILEDB_ROW_MAJOR); err != nil {
		return errors.Join(ErrWriteGridTdb, err)
	}

	buffers := map[string][]float32{
		"Depth":       depth,
		"Uncertainty": unct,
		"Count":       count,
		"Ratio":       ratio,
	}
	for _, name := range lo.Keys(buffers) {
		if _, err := query.SetDataBuffer(name, buffers[name]); err != nil {
			return errors.Join(ErrWriteGridTdb, err)
		}
	}

	subarr, err := array.NewSubarray()
	if err != nil {
		return errors.Join(ErrWriteGridTdb, err)
	}
	defer subarr.Free()

	if err := subarr.AddRangeByName("Row", tiledb.MakeRange(uint64(0), uint64(ny-1))); err != nil {
		return errors.Join(ErrWriteGridTdb, err)
	}
	if err := subarr.AddRangeByName("Col", tiledb.MakeRange(uint64(0), uint64(nx-1))); err != nil {
		return errors.Join(ErrWriteGridTdb, err)
	}
	if err := query.SetSubarray(subarr); err != nil {
		return errors.Join(ErrWriteGridTdb, err)
	}

	if err := query.Submit(); err != nil {
		return errors.Join(ErrWriteGridTdb, err)
	}
	return query.Finalize()
}
