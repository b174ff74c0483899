// Package gce creates GPU instances through the Compute Engine REST API.
//
// Creation failures are classified from structured API data only: the
// reasons of a synchronous googleapi.Error and the error codes of the zone
// operation that performs the insert.
package gce
