// Package errors provides coded, terminal-friendly errors for the ripple
// command.
//
// Each code (e.g. "R010") maps to a registered template with a category,
// a short message, a longer detail and a documentation link. Errors can
// carry a file location; when they do, Format prints the surrounding
// lines of that file, which is how configuration mistakes are reported.
//
//	err := errors.New("R011").
//	    WithLocation("ripple.toml", 7, 9).
//	    WithSuggestion(`log.level must be one of "debug", "info", "warn", "error"`)
//
//	errors.PrintError(err)
//	// ERROR R011: Invalid configuration value
//	//
//	//   ripple.toml:7:9
//	//
//	//        6 │ [log]
//	//   →    7 │ level = "loud"
//	//          │         ^
//	//  ...
package errors
