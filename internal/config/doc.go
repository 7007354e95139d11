// Package config loads portal process configuration.
//
// Settings come from portal.json when present, then from environment
// variables, which win. Durations are Go duration strings.
//
// # Configuration File Structure
//
//	{
//	  "addr": ":8080",
//	  "baseURL": "https://portal.example.com",
//	  "database": { "url": "postgres://portal@db/portal" },
//	  "redis": { "addr": "redis:6379" },
//	  "session": {
//	    "store": "redis",
//	    "ttl": "12h",
//	    "secureCookies": true,
//	    "trustedProxies": ["10.0.0.0/8"]
//	  },
//	  "portal": { "flagSource": "postgres", "pollInterval": "30s" },
//	  "guard": { "interval": "45m", "cooldown": "30m" },
//	  "telemetry": { "otlpEndpoint": "http://otel-collector:4318" },
//	  "log": { "level": "info", "format": "json" }
//	}
//
// # Usage
//
//	cfg, err := config.Resolve("portal.json", nil)
//	if err != nil {
//	    errors.PrintError(err)
//	    os.Exit(1)
//	}
//
//	fmt.Println("Listening on", cfg.Addr)
package config
