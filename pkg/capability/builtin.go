package capability

import "time"

// BuiltinDescriptors returns the static table of known capability
// providers. Priorities follow deployment order: foundation and security
// load first, observability last.
func BuiltinDescriptors() []Descriptor {
	return []Descriptor{
		{ID: "vpc", Domain: DomainFoundation, Priority: 10, LoadTimeout: 30 * time.Second},
		{ID: "iam", Domain: DomainSecurity, Priority: 20, LoadTimeout: 20 * time.Second},
		{ID: "route53", Domain: DomainNetworking, Priority: 30, LoadTimeout: 20 * time.Second},
		{ID: "elb", Domain: DomainNetworking, Priority: 35, LoadTimeout: 30 * time.Second},
		{ID: "rds", Domain: DomainData, Priority: 40, LoadTimeout: 60 * time.Second},
		{ID: "dynamodb", Domain: DomainData, Priority: 45, LoadTimeout: 30 * time.Second},
		{ID: "s3", Domain: DomainData, Priority: 50, LoadTimeout: 20 * time.Second},
		{ID: "ec2", Domain: DomainCompute, Priority: 60, LoadTimeout: 45 * time.Second},
		{ID: "ecs", Domain: DomainCompute, Priority: 65, LoadTimeout: 60 * time.Second},
		{ID: "lambda", Domain: DomainCompute, Priority: 70, LoadTimeout: 30 * time.Second},
		{ID: "apigateway", Domain: DomainApplication, Priority: 80, LoadTimeout: 30 * time.Second},
		{ID: "cloudwatch", Domain: DomainObservability, Priority: 90, LoadTimeout: 20 * time.Second},
	}
}
