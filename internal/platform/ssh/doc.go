// Package ssh is the native remote.Transport for servers with a public
// address, such as Hetzner Cloud machines.
//
// Each operation opens its own connection; dialing is retried with
// exponential backoff while the server is still booting. Files are uploaded
// by streaming them into "cat" and directories are moved as tar streams.
//
// Host key verification is disabled by default because the servers are
// short-lived. Set Config.HostKeyCallback to verify keys.
package ssh
