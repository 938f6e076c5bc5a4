package edge

// DefaultShieldRegion is the origin shield used for regions outside the table.
const DefaultShieldRegion = "us-east-1"

// shieldRegions maps a deployment region to the edge region that shields the origin.
var shieldRegions = map[string]string{
	"af-south-1":     "eu-west-2",
	"ap-east-1":      "ap-northeast-2",
	"ap-northeast-1": "ap-northeast-1",
	"ap-northeast-2": "ap-northeast-2",
	"ap-northeast-3": "ap-northeast-1",
	"ap-south-1":     "ap-south-1",
	"ap-southeast-1": "ap-southeast-1",
	"ap-southeast-2": "ap-southeast-2",
	"ca-central-1":   "us-east-1",
	"eu-central-1":   "eu-central-1",
	"eu-north-1":     "eu-central-1",
	"eu-south-1":     "eu-central-1",
	"eu-west-1":      "eu-west-1",
	"eu-west-2":      "eu-west-2",
	"eu-west-3":      "eu-west-2",
	"me-south-1":     "ap-south-1",
	"sa-east-1":      "sa-east-1",
	"us-east-1":      "us-east-1",
	"us-east-2":      "us-east-2",
	"us-west-1":      "us-west-1",
	"us-west-2":      "us-west-2",
}

// ShieldRegion returns the origin-shield region for region.
func ShieldRegion(region string) string {
	if shield, ok := shieldRegions[region]; ok {
		return shield
	}
	return DefaultShieldRegion
}
