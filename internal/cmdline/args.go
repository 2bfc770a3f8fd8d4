// Package cmdline parses the filename pair and --scale option that follow the
// "--" separator on the command line.
package cmdline

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"dae2blend/internal/models"
)

const (
	Separator = "--"

	SceneExt   = ".dae"
	ArchiveExt = ".zip"
	ProjectExt = ".blend"
)

// ArgError reports a bad command line. Nothing has touched the filesystem or
// the host when it is returned.
type ArgError struct {
	Msg string
}

func (e *ArgError) Error() string { return e.Msg }

func argErrorf(format string, a ...any) *ArgError {
	return &ArgError{Msg: fmt.Sprintf(format, a...)}
}

// Parse takes the positional arguments left after flag parsing and dash, the
// index in args where the "--" separator stood (-1 when it was absent). Nothing
// may come before the separator.
func Parse(args []string, dash int) (models.Job, error) {
	if dash < 0 {
		return models.Job{}, argErrorf("missing %q separator before the input and output filenames", Separator)
	}
	if dash > 0 {
		return models.Job{}, argErrorf("unexpected arguments before %s: %q", Separator, args[:dash])
	}
	return ParseTail(args[dash:])
}

// ParseTail parses the arguments after the separator: exactly two filenames and
// an optional --scale=<factor>, which may appear anywhere. An inner "--" ends
// option parsing.
func ParseTail(tail []string) (models.Job, error) {
	var (
		positional []string
		scaleArg   string
		scaleSet   bool
	)

	for i := 0; i < len(tail); i++ {
		a := tail[i]
		switch {
		case a == Separator:
			positional = append(positional, tail[i+1:]...)
			i = len(tail)
		case a == "--scale":
			if i+1 >= len(tail) {
				return models.Job{}, argErrorf("option --scale requires an argument")
			}
			i++
			scaleArg, scaleSet = tail[i], true
		case strings.HasPrefix(a, "--scale="):
			scaleArg, scaleSet = strings.TrimPrefix(a, "--scale="), true
		case strings.HasPrefix(a, "--"):
			return models.Job{}, argErrorf("option %s not recognized", strings.SplitN(a, "=", 2)[0])
		case strings.HasPrefix(a, "-") && a != "-":
			return models.Job{}, argErrorf("option %s not recognized", a)
		default:
			positional = append(positional, a)
		}
	}

	if len(positional) != 2 {
		return models.Job{}, argErrorf("need exactly 2 args, the input and output filenames")
	}
	job := models.Job{Input: positional[0], Output: positional[1]}

	if scaleSet {
		f, err := parseScale(scaleArg)
		if err != nil {
			return models.Job{}, err
		}
		job.Rescale = f
	}

	if !strings.HasSuffix(job.Output, ProjectExt) {
		return models.Job{}, argErrorf("output filename must end with %s", ProjectExt)
	}
	if !strings.HasSuffix(job.Input, SceneExt) && !strings.HasSuffix(job.Input, ArchiveExt) {
		return models.Job{}, argErrorf("input filename must end with %s or %s", SceneExt, ArchiveExt)
	}
	return job, nil
}

func parseScale(s string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, argErrorf("invalid --scale value %q", s)
	}
	if f == 0 || f < 0 || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, argErrorf("invalid --scale value %q: must be a positive number", s)
	}
	return f, nil
}
