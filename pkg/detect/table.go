package detect

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Table holds the keyword lists driving detection.
// Keys are capability/pattern names; values are the trigger keywords,
// matched as lowercase substrings of the normalized intent.
type Table struct {
	// Capabilities maps capability ID to its keywords.
	Capabilities map[string][]string `yaml:"capabilities"`

	// Patterns maps pattern name to its keywords.
	Patterns map[string][]string `yaml:"patterns"`
}

// Validate checks that every entry has at least one keyword.
// Entries with zero keywords would make the confidence ratio undefined.
func (t *Table) Validate() error {
	for name, kws := range t.Capabilities {
		if len(kws) == 0 {
			return fmt.Errorf("capability %s has no keywords", name)
		}
	}
	for name, kws := range t.Patterns {
		if len(kws) == 0 {
			return fmt.Errorf("pattern %s has no keywords", name)
		}
	}
	return nil
}

// capabilityNames returns the capability keys in sorted order for
// deterministic iteration.
func (t *Table) capabilityNames() []string {
	names := make([]string, 0, len(t.Capabilities))
	for name := range t.Capabilities {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// patternNames returns the pattern keys in sorted order.
func (t *Table) patternNames() []string {
	names := make([]string, 0, len(t.Patterns))
	for name := range t.Patterns {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LoadTable parses a keyword table from a YAML file.
func LoadTable(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read keyword table: %w", err)
	}

	var table Table
	if err := yaml.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("failed to parse keyword table: %w", err)
	}

	if err := table.Validate(); err != nil {
		return nil, fmt.Errorf("invalid keyword table: %w", err)
	}

	return &table, nil
}

// BuiltinTable returns the default keyword table.
func BuiltinTable() *Table {
	return &Table{
		Capabilities: map[string][]string{
			"vpc":        {"vpc", "virtual private cloud", "subnet", "private network"},
			"iam":        {"iam", "identity", "access role", "permission boundary"},
			"route53":    {"route53", "dns", "hosted zone", "domain name"},
			"elb":        {"load balancer", "elb", "alb", "balancer"},
			"rds":        {"rds", "postgres", "mysql", "aurora", "relational database"},
			"dynamodb":   {"dynamodb", "nosql", "key-value store"},
			"s3":         {"s3", "bucket", "object storage", "static assets"},
			"ec2":        {"ec2", "virtual machine", "bare instance"},
			"ecs":        {"ecs", "container", "docker", "fargate", "cluster"},
			"lambda":     {"lambda", "serverless function", "faas"},
			"apigateway": {"api gateway", "rest api", "http api"},
			"cloudwatch": {"cloudwatch", "monitoring", "alarm", "dashboards"},
		},
		Patterns: map[string][]string{
			"microservices":     {"microservice", "microservices", "service mesh"},
			"serverless":        {"serverless", "faas", "event function"},
			"three-tier":        {"three tier", "3-tier", "web app with database"},
			"event-driven":      {"event driven", "message queue", "pub/sub", "sqs", "sns"},
			"static-website":    {"static site", "static website", "cdn"},
			"high-availability": {"high availability", "fault tolerant", "multi-az"},
		},
	}
}
