// Package config defines the configuration consumed by the ebookcast commands.
//
// Three sources feed a run:
//
//   - the connection [Record], a flat JSON file written by `ebookcast provision`
//     and read by `ebookcast convert`;
//   - the optional YAML [Settings] file with the VM shape, the language map,
//     the VITS allow-list and the manual exclusion list;
//   - environment variables (optionally from a .env file) for credentials and
//     [Timeouts].
package config
