// Package validator builds declarative input checks out of small Rule
// values. Apply evaluates the rules and aggregates every failure into a
// ValidationErrors value that satisfies the error interface, so a single
// error return can carry all field problems to an HTTP handler.
//
//	err := validator.Apply(
//	    validator.Required("name", in.Name),
//	    validator.Between("max_attempts", in.MaxAttempts, 1, 10),
//	    validator.Check("url", urlErr == nil, "must be an https URL"),
//	)
//	if verrs := validator.ExtractValidationErrors(err); verrs != nil {
//	    // render verrs as field errors
//	}
package validator
