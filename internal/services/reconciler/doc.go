// Package reconciler maps externally verified identities onto local profile
// records and issues session credentials.
//
// Register, Login and FederatedLogin differ only in how the identity is
// established. All three issue a session credential only once a profile
// record for the external id is known to exist.
//
// Identity creation and profile creation are not transactional across the
// identity authority and the profile store. Register runs them as two
// phases; a uniqueness conflict in the second phase deletes the identity
// created in the first. A failed compensating delete is reported to a
// compensation.Sink and logged, and the original error is returned.
package reconciler
