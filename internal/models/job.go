package models

// Job is the parsed command line of one conversion. It is built once by the
// argument parser and passed by value through the pipeline.
type Job struct {
	Input  string
	Output string
	// Rescale is the --scale factor, or 0 when the option was not given.
	Rescale float64
}

// HasRescale reports whether a --scale factor other than 1 was given.
func (j Job) HasRescale() bool { return j.Rescale != 0 && j.Rescale != 1 }
