package cube

// Sounding is a single georeferenced depth observation handed to Grid.Insert.
// Ingest, attitude correction, and navigation interpolation are external
// collaborators (spec §1); by the time a Sounding reaches this package it is
// already georeferenced and error-tagged.
type Sounding struct {
	East, North float64 // projected meters
	Depth       float64 // meters, positive-up
	Range       float64 // slant range, 0 if unknown/unused
	Dz          float64 // depth-error variance, m^2
	Dr          float64 // horizontal positioning variance, m^2

	BeamNumber  int
	FileID      int
	Flags       uint32
	Backscatter float32
}
