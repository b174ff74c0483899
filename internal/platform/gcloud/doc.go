// Package gcloud wraps the Google Cloud CLI: project and account discovery
// for provisioning, and a remote.Transport built on "gcloud compute ssh"
// and "gcloud compute scp".
package gcloud
