// Package naming provides consistent names for the artifacts ebookcast
// creates on the VM and locally.
//
// The converter image is tagged {repo}-{branch} where repo is the GitHub
// owner/name pair joined by a dash, so that several forks and branches
// can live side by side on one VM.
package naming
