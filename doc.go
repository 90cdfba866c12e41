// Package social connects user accounts to OAuth2 social providers (Google,
// Instagram, Twitter/X, LinkedIn, Facebook, Threads), keeps the resulting
// credentials encrypted at rest, refreshes them ahead of expiry, and exposes
// each provider's recent content as a normalized feed.
//
// Flow coordination:
//   - Connector drives the authorization-code dance. BeginAuth issues a
//     single-use anti-CSRF state bound to (user, provider) and builds the
//     provider redirect URL; CompleteAuth validates the callback, exchanges
//     the code, resolves the provider account, and persists the connection.
//     Every operation takes the user identifier explicitly so the package can
//     be embedded behind any session or identity layer.
//
// Token storage:
//   - TokenStore owns the (user, provider) credential records. Access and
//     refresh tokens are sealed with AES-GCM under an externally supplied key
//     before they reach the repository, and per-key locking keeps concurrent
//     mutations of the same connection serialized without blocking others.
//
// Refresh:
//   - Refresher renews tokens when they enter the safety margin before
//     expiry, collapses concurrent refreshes of one connection into a single
//     provider call, and marks records expired when a provider rejects the
//     refresh so callers see ErrTokenExpired instead of stale credentials.
//
// Content:
//   - Fetcher pages through each provider's content API under a client-side
//     rate limiter and stops immediately on provider throttling, surfacing
//     ErrRateLimited with the suggested retry-after interval.
package social
