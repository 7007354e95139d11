package errors

import "sort"

// ErrorTemplate defines a registered error.
type ErrorTemplate struct {
	Category Category
	Message  string
	Detail   string
	DocURL   string
}

const docBase = "https://docs.practicedesk.dev/portal/errors/"

var registry = map[string]ErrorTemplate{
	// Configuration (E100-E199)

	"E120": {
		Category: CategoryConfig,
		Message:  "Invalid configuration file",
		Detail:   "portal.json could not be read or is not valid JSON.",
		DocURL:   docBase + "E120",
	},
	"E121": {
		Category: CategoryConfig,
		Message:  "Invalid duration",
		Detail:   "Durations are written as Go duration strings such as \"45m\" or \"5s\".",
		DocURL:   docBase + "E121",
	},
	"E122": {
		Category: CategoryConfig,
		Message:  "Invalid listen address",
		Detail:   "The listen address must be host:port.",
		DocURL:   docBase + "E122",
	},
	"E123": {
		Category: CategoryConfig,
		Message:  "Missing signing key",
		Detail:   "A signing key of at least 32 bytes is required to sign session cookies and reset tokens.",
		DocURL:   docBase + "E123",
	},
	"E124": {
		Category: CategoryConfig,
		Message:  "Invalid environment override",
		Detail:   "An environment variable could not be parsed into its configuration field.",
		DocURL:   docBase + "E124",
	},
	"E125": {
		Category: CategoryConfig,
		Message:  "Invalid store selection",
		Detail:   "The session store and portal flag source must be \"memory\" or \"redis\" (flags also accept \"postgres\").",
		DocURL:   docBase + "E125",
	},
	"E126": {
		Category: CategoryConfig,
		Message:  "Invalid trusted proxy",
		Detail:   "Trusted proxies are IP addresses or CIDR ranges.",
		DocURL:   docBase + "E126",
	},
	"E141": {
		Category: CategoryConfig,
		Message:  "Configuration file not found",
		Detail:   "No portal.json was found at the given path.",
		DocURL:   docBase + "E141",
	},

	// Backends (E200-E299)

	"E201": {
		Category: CategoryBackend,
		Message:  "Database unavailable",
		Detail:   "The Postgres connection could not be established.",
		DocURL:   docBase + "E201",
	},
	"E202": {
		Category: CategoryBackend,
		Message:  "Redis unavailable",
		Detail:   "The Redis server did not answer a PING.",
		DocURL:   docBase + "E202",
	},
	"E203": {
		Category: CategoryBackend,
		Message:  "Tracing setup failed",
		Detail:   "The OTLP exporter could not be created.",
		DocURL:   docBase + "E203",
	},
	"E204": {
		Category: CategoryBackend,
		Message:  "Profile not found",
		Detail:   "No profile row exists for the user.",
		DocURL:   docBase + "E204",
	},

	// Command line (E300-E399)

	"E301": {
		Category: CategoryCLI,
		Message:  "Invalid flag value",
		Detail:   "portal-flag set accepts \"true\" or \"false\".",
		DocURL:   docBase + "E301",
	},
	"E302": {
		Category: CategoryCLI,
		Message:  "Server failed",
		Detail:   "The HTTP server stopped with an error.",
		DocURL:   docBase + "E302",
	},
}

// GetAllCodes returns all registered codes in order.
func GetAllCodes() []string {
	codes := make([]string, 0, len(registry))
	for code := range registry {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// GetTemplate returns the template for code.
func GetTemplate(code string) (ErrorTemplate, bool) {
	t, ok := registry[code]
	return t, ok
}
