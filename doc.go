// Package auth implements TaskFlow sign-in: it verifies credentials or an
// externally asserted identity, ensures a local user record exists, and issues
// a signed session token carrying the user's id and role.
//
// Sign-in methods:
//   - Credentials (email + password) go through CredentialVerifier, which
//     never creates accounts. Password checking is delegated to a
//     PasswordPolicy; the default AcceptAnyPassword policy is for demos only.
//   - Federated methods (GitHub, Google, email link) produce an
//     ExternalIdentity that AccountProvisioner links to a user by email,
//     creating a MEMBER account when none exists.
//
// Sessions:
//   - SessionIssuer signs HS256 JWTs. The role and id embedded in a token are
//     re-read from the UserStore at issuance, so role changes apply on the
//     next sign-in or refresh.
//   - Materialize turns a raw token into a Session or nil; it never fails
//     loudly so request handlers can treat a missing session as anonymous.
//
// Failures:
//   - Every failure carries a FailureKind for logs, metrics and the
//     ActivitySink, while callers of Auther only ever see ErrSignInFailed.
package auth
