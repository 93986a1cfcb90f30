package cube

import (
	"encoding/json"

	tiledb "github.com/TileDB-Inc/TileDB-Go"
)

// GridSummary is a lightweight JSON-friendly snapshot of a grid's
// dimensions and parameters, used for debug dumps alongside the binary
// Serializer. Not part of the persisted grid format itself.
type GridSummary struct {
	NX, NY int
	DX, DY float64
	Params Parameters
}

// Summary captures g's current shape and configuration.
func (g *Grid) Summary() GridSummary {
	return GridSummary{NX: g.NX, NY: g.NY, DX: g.DX, DY: g.DY, Params: g.Params}
}

// WriteJson serialises data to a JSON file, locally or on an object store,
// via TileDB's VFS abstraction. Grounded on gsf/json.go's WriteJson.
func WriteJson(fileURI, configURI string, data any) (int, error) {
	var config *tiledb.Config
	var err error

	if configURI == "" {
		config, err = tiledb.NewConfig()
		if err != nil {
			return 0, err
		}
	} else {
		config, err = tiledb.LoadConfig(configURI)
		if err != nil {
			return 0, err
		}
	}
	defer config.Free()

	ctx, err := tiledb.NewContext(config)
	if err != nil {
		return 0, err
	}
	defer ctx.Free()

	vfs, err := tiledb.NewVFS(ctx, config)
	if err != nil {
		return 0, err
	}
	defer vfs.Free()

	stream, err := vfs.Open(fileURI, tiledb.TILEDB_VFS_WRITE)
	if err != nil {
		return 0, err
	}
	defer stream.Close()

	jsn, err := json.MarshalIndent(data, "", "    ")
	if err != nil {
		return 0, err
	}

	return stream.Write(jsn)
}

// JsonDumps constructs a compact JSON string of the supplied data.
func JsonDumps(data any) (string, error) {
	jsn, err := json.Marshal(data)
	if err != nil {
		return "", err
	}
	return string(jsn), nil
}

// JsonIndentDumps constructs an indented JSON string of the supplied data.
func JsonIndentDumps(data any) (string, error) {
	jsn, err := json.MarshalIndent(data, "", "    ")
	if err != nil {
		return "", err
	}
	return string(jsn), nil
}
