// Package config loads journaldconcat configuration from layered JSON or
// YAML files and environment overrides.
//
// Layers are merged in order over Defaults(). Nested objects merge key by
// key, except each component's "config" object, which the last layer that
// mentions it replaces wholesale. Environment variables prefixed with
// JOURNALDCONCAT_ are applied last:
//
//	JOURNALDCONCAT_PLATFORM_ORG    platform.org
//	JOURNALDCONCAT_PLATFORM_ID     platform.id
//	JOURNALDCONCAT_NATS_URLS       nats.urls (comma separated)
//	JOURNALDCONCAT_NATS_USERNAME   nats.username
//	JOURNALDCONCAT_NATS_PASSWORD   nats.password
//	JOURNALDCONCAT_NATS_TOKEN      nats.token
//	JOURNALDCONCAT_METRICS_PORT    metrics.port
//	JOURNALDCONCAT_LOG_LEVEL       log.level
//
// A minimal YAML file:
//
//	platform:
//	  org: acme
//	  id: edge-1
//	components:
//	  concat:
//	    name: partial_concat
//	    type: processor
//	    enabled: true
//	    config:
//	      flush_interval: 30s
//	      timeout_label: slow
//	      labels:
//	        slow: logs.concat.timeout
//
// Usage:
//
//	loader := config.NewLoader()
//	loader.AddLayer("journaldconcat.yaml")
//	loader.EnableValidation(true)
//	cfg, err := loader.Load()
package config
