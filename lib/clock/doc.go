// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock abstracts the current time so that partition
// assignment and time-window logic can be tested deterministically.
//
// Production code injects [Real]; tests inject [Fake] and move time
// with [FakeClock.Advance] or [FakeClock.Set]. Code that assigns
// uploads to a day partition, picks files modified in the last N
// hours, or ages out transient artifacts takes a Clock instead of
// calling time.Now directly.
package clock
