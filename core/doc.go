// Package core contains the account lifecycle domain: request normalization,
// validation, organisation membership reconciliation, verification flags,
// persistence coordination and audit emission. Adapters depend on this
// package; core must not depend on storage or transport adapters.
package core
