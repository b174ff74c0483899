// Package hcloud creates conversion servers on Hetzner Cloud.
//
// [Provider] implements provisioning.Provider. Locations play the role of
// zones, and API error codes are mapped onto provisioning failure kinds:
//
//   - resource_limit_exceeded: quota exceeded, the search stops
//   - resource_unavailable, placement_error: no capacity, next location
//
// The server's public IPv4 is returned as the instance host so that the
// pipeline can reach it over native SSH as root.
package hcloud
