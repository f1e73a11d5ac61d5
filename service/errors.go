package service

import (
	"errors"
	"fmt"

	"comment-map/constant"
)

var (
	ErrInvalidReference = errors.New("invalid source reference")
	ErrNoComments       = errors.New("source returned no comments")
	ErrJobLost          = errors.New("job is no longer processing")
)

// StageError records which pipeline stage failed. Its message is what ends
// up in a failed job's error_message.
type StageError struct {
	Stage constant.Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func stageErr(stage constant.Stage, err error) error {
	var se *StageError
	if errors.As(err, &se) {
		return err
	}
	return &StageError{Stage: stage, Err: err}
}
