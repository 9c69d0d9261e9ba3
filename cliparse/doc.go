// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package cliparse handles command-line argument parsing and configuration.

# Configuration

ParseFlags returns a Config struct with all settings:

	cfg, err := cliparse.ParseFlags(os.Args[1:])

Values are read from the environment (cleanenv struct tags), then any flag
given on the command line replaces its environment value.

# Environment Variables

	PORT            server port (default 3318)            → -p
	DATABASE_URL    connection string (required)          → -d
	DATABASE_TYPE   postgres or sqlite (default sqlite)   → -t
	JWT_SECRET      token signing secret (required)       → -jwt-secret
	TOKEN_TTL       token lifetime (default 5h)
	ENV             local, dev or prod (default local)    → -env
	LIVE_BREAKDOWN  per-option live counts (default off)  → -live-breakdown
	CLOSE_RETRIES   timer close retries (default 3)
	CORS_ORIGIN     allowed origin (default *)

# Validation

ParseFlags returns an error if DATABASE_URL or JWT_SECRET is missing, or if
PORT, TOKEN_TTL or CLOSE_RETRIES is out of range.
*/
package cliparse
