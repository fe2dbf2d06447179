package errors

import (
	"sort"
	"sync"
)

// ErrorTemplate defines a registered error type.
type ErrorTemplate struct {
	Category Category
	Message  string
	Detail   string
	DocURL   string
}

const docBase = "https://github.com/vango-dev/ripple/blob/main/docs/errors.md#"

var (
	registryMu sync.RWMutex

	// registry maps error codes to their templates.
	registry = map[string]ErrorTemplate{
		// Configuration (R010-R019)
		"R010": {
			Category: CategoryConfig,
			Message:  "Configuration file could not be parsed",
			Detail:   "The file is not valid JSON or TOML. The format is chosen from the extension: .toml is TOML, anything else is JSON.",
			DocURL:   docBase + "r010",
		},
		"R011": {
			Category: CategoryConfig,
			Message:  "Invalid configuration value",
			Detail:   "A setting was parsed but its value is out of range.",
			DocURL:   docBase + "r011",
		},
		"R012": {
			Category: CategoryConfig,
			Message:  "Configuration file not found",
			Detail:   "The file passed with --config does not exist.",
			DocURL:   docBase + "r012",
		},

		// CLI (R020-R029)
		"R020": {
			Category: CategoryCLI,
			Message:  "Invalid flag value",
			Detail:   "A command-line flag has a value the command cannot use.",
			DocURL:   docBase + "r020",
		},
		"R021": {
			Category: CategoryCLI,
			Message:  "Benchmark failed",
			Detail:   "A benchmark scenario did not complete. The assertion that failed is shown below.",
			DocURL:   docBase + "r021",
		},

		// Inspector (R030-R039)
		"R030": {
			Category: CategoryInspect,
			Message:  "Inspector failed to start",
			Detail:   "The HTTP listener could not be opened. Another process may be using the address.",
			DocURL:   docBase + "r030",
		},
		"R031": {
			Category: CategoryInspect,
			Message:  "Inspector shut down with an error",
			Detail:   "Open connections did not close before the shutdown deadline.",
			DocURL:   docBase + "r031",
		},

		// Runtime (R040-R049)
		"R040": {
			Category: CategoryRuntime,
			Message:  "Structural transformer unavailable",
			Detail:   "Update was called on a composite cell without a transformer or transformer loader, or the loader failed.",
			DocURL:   docBase + "r040",
		},
	}
)

// GetAllCodes returns all registered error codes in order.
func GetAllCodes() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	codes := make([]string, 0, len(registry))
	for code := range registry {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// GetTemplate returns the template for an error code.
func GetTemplate(code string) (ErrorTemplate, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	t, ok := registry[code]
	return t, ok
}

// Register adds or replaces an error template.
func Register(code string, template ErrorTemplate) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[code] = template
}
