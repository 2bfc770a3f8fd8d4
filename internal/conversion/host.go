package conversion

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
)

// Host is the set of operations the pipeline needs from the 3D application.
// Calls are made in order: ResetWorkspace, ImportScene, Rescale (optional),
// PackImages, SaveProject.
type Host interface {
	ResetWorkspace(ctx context.Context) error
	ImportScene(ctx context.Context, scenePath string) error
	Rescale(ctx context.Context, factor float64) error
	PackImages(ctx context.Context) error
	SaveProject(ctx context.Context, projectPath string) error
}

// ErrNotReset is returned when a host operation is called before ResetWorkspace.
var ErrNotReset = errors.New("host workspace was not reset")

// CapabilityError reports a host operation that is not available, such as a
// missing executable or an import operator the installed version lacks.
type CapabilityError struct {
	Operation string
	Err       error
}

func (e *CapabilityError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("host operation %s is unavailable: %v", e.Operation, e.Err)
	}
	return fmt.Sprintf("host operation %s is unavailable", e.Operation)
}

func (e *CapabilityError) Unwrap() error { return e.Err }

// HostError reports a failure inside the host application.
type HostError struct {
	Step   string
	Detail string
	Err    error
}

func (e *HostError) Error() string {
	msg := "host failed"
	if e.Step != "" {
		msg = fmt.Sprintf("host step %s failed", e.Step)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *HostError) Unwrap() error { return e.Err }
