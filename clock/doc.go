// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package clock provides the time source injected into the session registry.

Production code uses Real(). Tests use Fake(), whose timers fire only when
Advance is called:

	c := clock.Fake(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	reg := session.NewRegistry(store, hub, c, logger, cfg)
	// ... activate a question with a 30s timer ...
	c.Advance(30 * time.Second) // the closing callback runs here
*/
package clock
