// Package config provides centralized configuration management for the
// enrichment pipeline. It loads configuration from multiple sources, validates
// it, and hands a typed Config to the rest of the application.
//
// # Configuration Sources
//
// Configuration is loaded from the following sources in order of precedence:
//
//	1. Environment variables (highest priority)
//	2. A YAML configuration file passed to Load
//	3. Default values from Default (lowest priority)
//
// # Environment Variables
//
// All environment variables follow the pattern ZIPENRICH_<SECTION>_<FIELD>:
//
//	ZIPENRICH_LOGGING_LEVEL=debug
//	ZIPENRICH_INPUT_PATH=s3://collisions/2024.csv
//	ZIPENRICH_GEOCODER_MIN_DELAY=1s
//	ZIPENRICH_DEMOGRAPHICS_DB_PATH=data/zipdb.bolt
//	ZIPENRICH_CLEANER_DROP_COLUMNS=location,date,time
//
// # Validation
//
// Load validates the merged configuration with go-playground/validator, so
// callers never see an out-of-range delay, an unknown compression codec or a
// malformed geocoder URL.
//
// # Usage
//
//	cfg, err := config.Load("zipenrich.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
package config
