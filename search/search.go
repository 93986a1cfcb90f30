// Package search trawls a directory or object-store URI for persisted CUBE
// grid files, adapted from gsf/search/search.go's trawl/FindGsf pattern and
// retargeted at *.cube grid files instead of *.gsf soundings files.
package search

import (
	"path/filepath"

	tiledb "github.com/TileDB-Inc/TileDB-Go"
)

// trawl recurses over uri, collecting file paths whose basename matches
// pattern. The basename is matched, not the full path (e.g. "*.cube",
// "0060_mbes_survey.cube").
func trawl(vfs *tiledb.VFS, pattern, uri string, items []string) []string {
	dirs, files, err := vfs.List(uri)
	if err != nil {
		panic(err)
	}

	for _, file := range files {
		match, err := filepath.Match(pattern, filepath.Base(file))
		if err != nil {
			panic(err)
		}
		if match {
			items = append(items, file)
		}
	}

	for _, dir := range dirs {
		items = trawl(vfs, pattern, dir, items)
	}

	return items
}

// FindGrids recursively searches for *.cube files under uri. Uses TileDB's
// Go bindings so the search works seamlessly against local filesystems or
// object stores such as AWS S3; configURI supplies credentials/settings for
// the latter.
func FindGrids(uri, configURI string) []string {
	var (
		config *tiledb.Config
		err    error
	)

	if configURI == "" {
		config, err = tiledb.NewConfig()
		if err != nil {
			panic(err)
		}
	} else {
		config, err = tiledb.LoadConfig(configURI)
		if err != nil {
			panic(err)
		}
	}
	defer config.Free()

	ctx, err := tiledb.NewContext(config)
	if err != nil {
		panic(err)
	}
	defer ctx.Free()

	vfs, err := tiledb.NewVFS(ctx, config)
	if err != nil {
		panic(err)
	}
	defer vfs.Free()

	items := make([]string, 0)
	return trawl(vfs, "*.cube", uri, items)
}
