// Package auth provides authentication and authorisation for Lab Rig Core.
//
// It implements a 4-tier role model (station → operator → admin → owner) with:
//   - Argon2id password hashing (OWASP 2025 recommendation)
//   - JWT access/refresh token rotation with family-based theft detection
//   - Multi-instrument station device identity for shared bench displays
//   - Explicit per-user instrument grants with per-instrument configure control
//   - Static role-permission mapping (compile-time, no database lookup)
//
// Instrument scoping uses a "zero access by default, grant explicitly" model:
// an operator with no instrument assignments cannot access anything. Admin must
// deliberately grant access to specific instruments via user_instrument_access.
// Admin and owner roles bypass instrument scoping entirely.
package auth
