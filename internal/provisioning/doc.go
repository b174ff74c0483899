// Package provisioning finds a zone with free GPU capacity and creates the
// conversion VM there.
//
// Providers (internal/platform/gce, internal/platform/hcloud) implement
// [Provider] and report every failed creation as a [*CreateError] whose
// [FailureKind] drives the zone search:
//
//   - KindQuotaExceeded stops the search; the limit is project-wide.
//   - KindResourcePoolExhausted moves on to the next zone.
//   - KindOther is logged as a warning and also moves on.
//
// Zones are tried in the order the provider lists them.
package provisioning
