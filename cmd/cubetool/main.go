// Command cubetool drives CUBE grid ingest, extraction, and search from
// the shell. Grounded on gsf/cmd/main.go's convert/convert-trawl command
// pair and its pond-backed fan-out over a file list.
package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"

	tiledb "github.com/TileDB-Inc/TileDB-Go"
	"github.com/alitto/pond"
	"github.com/urfave/cli/v2"

	cube "github.com/rolker/cube-bathymetry-sub002"
	"github.com/rolker/cube-bathymetry-sub002/export"
	"github.com/rolker/cube-bathymetry-sub002/search"
)

// loadSoundings reads a JSON array of cube.Sounding records from path.
func loadSoundings(path string) ([]cube.Sounding, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var soundings []cube.Sounding
	if err := json.Unmarshal(data, &soundings); err != nil {
		return nil, err
	}
	return soundings, nil
}

// ingest builds a grid from a JSON soundings file and writes it to outUri
// in the package's native binary format.
func ingest(soundingsUri, outUri string, nx, ny int, dx, dy, west, north float64) error {
	log.Println("Reading soundings:", soundingsUri)
	soundings, err := loadSoundings(soundingsUri)
	if err != nil {
		return err
	}

	params := cube.DefaultParameters()
	grid := cube.NewGrid(nx, ny, dx, dy, params)

	log.Println("Inserting", len(soundings), "soundings")
	grid.Insert(soundings, west, north)
	grid.Flush()

	log.Println("Writing grid:", outUri)
	f, err := os.Create(outUri)
	if err != nil {
		return err
	}
	defer f.Close()

	return cube.WriteGrid(f, grid)
}

// ingestList submits every *.json soundings file directly in dir (its
// subdirectories are not searched) to a fixed worker pool, one grid per file. Grounded on gsf/cmd/main.go's
// convert_gsf_list.
func ingestList(dir, outdir string, nx, ny int, dx, dy, west, north float64) error {
	entries, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return err
	}
	log.Println("Number of soundings files to process:", len(entries))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	n := runtime.NumCPU() * 2
	pool := pond.New(n, 0, pond.MinWorkers(n), pond.Context(ctx))
	defer pool.StopAndWait()

	for _, name := range entries {
		soundingsUri := name
		outUri := filepath.Join(outdir, filepath.Base(name)+".cube")
		pool.Submit(func() {
			if err := ingest(soundingsUri, outUri, nx, ny, dx, dy, west, north); err != nil {
				log.Println("error ingesting", soundingsUri, ":", err)
			}
		})
	}

	return nil
}

// extract reads a serialized grid and exports its depth/uncertainty/count/
// ratio surfaces to a dense TileDB array, plus a JSON summary alongside it.
func extract(cubeUri, tiledbUri, configUri string) error {
	log.Println("Reading grid:", cubeUri)
	f, err := os.Open(cubeUri)
	if err != nil {
		return err
	}
	defer f.Close()

	params := cube.DefaultParameters()
	grid, err := cube.ReadGrid(f, params)
	if err != nil {
		return err
	}

	var config *tiledb.Config
	if configUri == "" {
		config, err = tiledb.NewConfig()
	} else {
		config, err = tiledb.LoadConfig(configUri)
	}
	if err != nil {
		return err
	}
	defer config.Free()

	ctx, err := tiledb.NewContext(config)
	if err != nil {
		return err
	}
	defer ctx.Free()

	log.Println("Writing TileDB array:", tiledbUri)
	if err := export.WriteGrid(tiledbUri, grid, ctx); err != nil {
		return err
	}

	summaryUri := tiledbUri + "-summary.json"
	_, err = cube.WriteJson(summaryUri, configUri, grid.Summary())
	return err
}

func main() {
	app := &cli.App{
		Commands: []*cli.Command{
			{
				Name: "ingest",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "soundings-uri", Usage: "Pathname to a JSON file holding an array of soundings."},
					&cli.StringFlag{Name: "out-uri", Usage: "Pathname for the serialized grid."},
					&cli.IntFlag{Name: "nx", Usage: "Grid width in nodes."},
					&cli.IntFlag{Name: "ny", Usage: "Grid height in nodes."},
					&cli.Float64Flag{Name: "dx", Usage: "Node spacing, easting."},
					&cli.Float64Flag{Name: "dy", Usage: "Node spacing, northing."},
					&cli.Float64Flag{Name: "west", Usage: "Grid origin easting."},
					&cli.Float64Flag{Name: "north", Usage: "Grid origin northing."},
				},
				Action: func(cCtx *cli.Context) error {
					return ingest(
						cCtx.String("soundings-uri"), cCtx.String("out-uri"),
						cCtx.Int("nx"), cCtx.Int("ny"),
						cCtx.Float64("dx"), cCtx.Float64("dy"),
						cCtx.Float64("west"), cCtx.Float64("north"),
					)
				},
			},
			{
				Name: "ingest-trawl",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "dir", Usage: "Directory containing JSON soundings files."},
					&cli.StringFlag{Name: "outdir", Usage: "Output directory for serialized grids."},
					&cli.IntFlag{Name: "nx", Usage: "Grid width in nodes."},
					&cli.IntFlag{Name: "ny", Usage: "Grid height in nodes."},
					&cli.Float64Flag{Name: "dx", Usage: "Node spacing, easting."},
					&cli.Float64Flag{Name: "dy", Usage: "Node spacing, northing."},
					&cli.Float64Flag{Name: "west", Usage: "Grid origin easting."},
					&cli.Float64Flag{Name: "north", Usage: "Grid origin northing."},
				},
				Action: func(cCtx *cli.Context) error {
					return ingestList(
						cCtx.String("dir"), cCtx.String("outdir"),
						cCtx.Int("nx"), cCtx.Int("ny"),
						cCtx.Float64("dx"), cCtx.Float64("dy"),
						cCtx.Float64("west"), cCtx.Float64("north"),
					)
				},
			},
			{
				Name: "extract",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "cube-uri", Usage: "Pathname to a serialized grid."},
					&cli.StringFlag{Name: "tiledb-uri", Usage: "URI for the output dense TileDB array."},
					&cli.StringFlag{Name: "config-uri", Usage: "URI or pathname to a TileDB config file."},
				},
				Action: func(cCtx *cli.Context) error {
					return extract(cCtx.String("cube-uri"), cCtx.String("tiledb-uri"), cCtx.String("config-uri"))
				},
			},
			{
				Name: "search",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "uri", Usage: "URI or pathname to a directory containing .cube files."},
					&cli.StringFlag{Name: "config-uri", Usage: "URI or pathname to a TileDB config file."},
				},
				Action: func(cCtx *cli.Context) error {
					items := search.FindGrids(cCtx.String("uri"), cCtx.String("config-uri"))
					for _, item := range items {
						log.Println(item)
					}
					return nil
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
