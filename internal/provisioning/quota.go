package provisioning

import (
	"fmt"
	"strings"
)

const quotaURLFormat = "https://console.cloud.google.com/iam-admin/quotas?project=%s" +
	"&pageState=(%%22allQuotas%%22:(%%22hidden%%22:true,%%22metric%%22:%%22compute.googleapis.com%%2F%s%%22,%%22region%%22:%%22%s%%22))" +
	"&cloudshell=false"

// RegionOf returns the region of a GCE zone: its first two dash-separated parts.
// Zones without a second dash are returned unchanged.
func RegionOf(zone string) string {
	parts := strings.Split(zone, "-")
	if len(parts) < 3 {
		return zone
	}
	return parts[0] + "-" + parts[1]
}

// QuotaURL builds the cloud console link for raising metric in the region of zone.
func QuotaURL(project, metric, zone string) string {
	return fmt.Sprintf(quotaURLFormat, project, metric, RegionOf(zone))
}

// QuotaSteps are the remediation instructions printed after a quota error.
var QuotaSteps = []string{
	"Click the link below to go directly to the quota request page.",
	"Check the box for the quota, click 'EDIT QUOTAS'.",
	"Set the new limit to '1' and submit the request.",
	"After Google approves your request via email, run provision again.",
}
