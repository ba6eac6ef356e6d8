package tenancy

// Reference data inserted into every new tenant schema. Names are unique per
// table, so reseeding is a no-op.

var cloudProviderSeeds = []string{
	"AWS",
	"Azure",
	"GCP",
	"On-Premise",
	"DigitalOcean",
	"Oracle Cloud",
}

var registryProviderSeeds = []string{
	"DockerHub",
	"AWS ECR",
	"GCP GCR",
	"Azure ACR",
	"GitHub Container Registry",
	"GitLab Container Registry",
	"Harbor",
	"JFrog Artifactory",
}

type serviceTypeSeed struct {
	Name        string
	Description string
	IsManaged   bool
}

var serviceTypeSeeds = []serviceTypeSeed{
	{"API", "RESTful API service", true},
	{"Worker", "Background worker service", true},
	{"Frontend", "Frontend web application", true},
	{"Database", "Database service", false},
	{"Cache", "Caching service (Redis, Memcached)", false},
	{"Message Queue", "Message queue service (RabbitMQ, Kafka)", false},
	{"Microservice", "General microservice", true},
}
