package stagepipe

import (
	"errors"
	"fmt"
)

// Collection errors. These are recoverable: the pipeline is left unchanged.
var (
	// ErrDuplicateSingletonStage is returned when adding a second Extractor or Sorter.
	ErrDuplicateSingletonStage = errors.New("only one instance of that stage category allowed")
	// ErrBoundaryReached is returned when a move would cross a stage boundary.
	ErrBoundaryReached = errors.New("element cannot move past its stage boundary")
	// ErrNotFound is returned when the exact element instance is not in the pipeline.
	ErrNotFound = errors.New("element not found in pipeline")
	// ErrNothingToClear is returned when clearing an empty pipeline.
	ErrNothingToClear = errors.New("nothing to clear")
	// ErrNothingToRun is carried by results of runs over an empty pipeline.
	ErrNothingToRun = errors.New("nothing to run")
)

// Deserialize errors. The whole operation is aborted and no pipeline is produced.
var (
	// ErrStageUnavailable means a saved stage type is unknown or not installed.
	ErrStageUnavailable = errors.New("stage unavailable")
	// ErrSchemaIncompatible means a saved parameter no longer exists in the stage schema.
	ErrSchemaIncompatible = errors.New("saved stage incompatible with current version")
	// ErrInvalidPipeline means the element order breaks the stage ordering or singleton rules.
	ErrInvalidPipeline = errors.New("invalid pipeline")
	// ErrInvalidDocument means a persisted document does not match the pipeline schema.
	ErrInvalidDocument = errors.New("invalid pipeline document")
)

// ErrParameterInvalid is wrapped by stage implementations when a parameter value
// is missing or unusable. Runs failing with it are classified ParameterInvalid.
var ErrParameterInvalid = errors.New("invalid parameter value")

// FailureReason classifies a failed run.
type FailureReason string

const (
	ReasonNone               FailureReason = ""
	ReasonParameterInvalid   FailureReason = "ParameterInvalid"
	ReasonUnspecified        FailureReason = "Unspecified"
	ReasonStageUnavailable   FailureReason = "StageUnavailable"
	ReasonSchemaIncompatible FailureReason = "SchemaIncompatible"
	ReasonInvalidPipeline    FailureReason = "InvalidPipeline"
)

// classify maps a run error onto its FailureReason.
func classify(err error) FailureReason {
	switch {
	case err == nil:
		return ReasonNone
	case errors.Is(err, ErrStageUnavailable):
		return ReasonStageUnavailable
	case errors.Is(err, ErrSchemaIncompatible):
		return ReasonSchemaIncompatible
	case errors.Is(err, ErrInvalidPipeline), errors.Is(err, ErrInvalidDocument):
		return ReasonInvalidPipeline
	case errors.Is(err, ErrParameterInvalid):
		return ReasonParameterInvalid
	default:
		return ReasonUnspecified
	}
}

// sentinel returns the error a reason was classified from, used to rebuild
// errors that crossed a worker boundary.
func (r FailureReason) sentinel() error {
	switch r {
	case ReasonParameterInvalid:
		return ErrParameterInvalid
	case ReasonStageUnavailable:
		return ErrStageUnavailable
	case ReasonSchemaIncompatible:
		return ErrSchemaIncompatible
	case ReasonInvalidPipeline:
		return ErrInvalidPipeline
	default:
		return nil
	}
}

// IsRecoverable reports whether err is a transient, user-facing status that
// left the pipeline untouched.
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrDuplicateSingletonStage) ||
		errors.Is(err, ErrBoundaryReached) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrNothingToClear)
}

// RecordError names the serialized record that made a deserialize fail.
type RecordError struct {
	Index  int
	Record SerializedElementRecord
	Err    error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("record %d (%s/%s): %v",
		e.Index, e.Record.StageImplSourceID, e.Record.StageImplTypeName, e.Err)
}

func (e *RecordError) Unwrap() error { return e.Err }

// RunError names the element that halted a run.
type RunError struct {
	Index   int
	Element string
	Stage   TypeID
	Err     error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("element %d '%s' (%s) failed: %v", e.Index, e.Element, e.Stage, e.Err)
}

func (e *RunError) Unwrap() error { return e.Err }
