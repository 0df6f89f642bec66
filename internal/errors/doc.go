// Package errors provides typed errors with exit codes for cappit.
//
// Every failure that reaches the operator carries a Kind. Kinds map to
// process exit codes and can be matched with Is against the exported
// sentinels:
//
//	if errors.Is(err, errors.ErrEntryNotFound) {
//	    ...
//	}
//
// Pipeline failures also record which step failed:
//
//	var ce *errors.CappitError
//	if errors.As(err, &ce) && ce.Kind == errors.KindPipelineStepFailed {
//	    fmt.Println(ce.Step)
//	}
package errors
