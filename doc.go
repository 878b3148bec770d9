// Package piclaim automates claiming time-locked Pi balances and forwarding
// them the instant they unlock.
//
// The engine corrects its clock once against an NTP reference, waits for the
// configured unlock instant, and fires batches of concurrent claim+payment
// transactions against a Horizon-compatible API. Concurrent attempts contend
// for the account's sequence number on purpose: one lands, the rest conflict
// and are reconciled against the chain. A polling mode covers balances whose
// unlock time is not known in advance.
//
// # Quick Start
//
//	cfg, err := piclaim.LoadConfig("")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	bot, err := piclaim.New(ctx, cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	err = bot.Run(ctx, piclaim.ModeBurst)
//
// Configuration comes from PI_* environment variables, optionally layered
// over a YAML file. The cmd/piclaim CLI wraps this package.
package piclaim
