package backend

import (
	"strconv"

	"github.com/example/cosyctl/internal/config"
	"github.com/example/cosyctl/internal/materialize"
	"github.com/example/cosyctl/internal/request"
)

// Placeholder names shared by the compose and cluster templates.
const (
	PlaceholderDomain          = "DOMAIN"
	PlaceholderPort            = "PORT"
	PlaceholderCORSOrigin      = "CORS_ORIGIN"
	PlaceholderVersion         = "VERSION"
	PlaceholderPostgresVersion = "POSTGRES_VERSION"
	PlaceholderLokiVersion     = "LOKI_VERSION"
	PlaceholderNginxVersion    = "NGINX_VERSION"
	PlaceholderInfluxVersion   = "INFLUXDB_VERSION"
	PlaceholderInfluxOrg       = "INFLUXDB_ORG"
	PlaceholderInfluxBucket    = "INFLUXDB_BUCKET"
	PlaceholderProject         = "PROJECT"
	PlaceholderNamespace       = "NAMESPACE"
)

// Placeholders resolves the values common to both backends.
func Placeholders(req *request.DeploymentRequest, s *config.Settings) materialize.Placeholders {
	return materialize.Placeholders{}.
		Set(PlaceholderDomain, req.Domain()).
		Set(PlaceholderPort, strconv.Itoa(req.Port())).
		Set(PlaceholderCORSOrigin, req.CORSOrigin()).
		Set(PlaceholderVersion, s.Images.App).
		Set(PlaceholderPostgresVersion, s.Images.Postgres).
		Set(PlaceholderLokiVersion, s.Images.Loki).
		Set(PlaceholderNginxVersion, s.Images.Nginx).
		Set(PlaceholderInfluxVersion, s.Images.InfluxDB).
		Set(PlaceholderInfluxOrg, s.MetricsOrg).
		Set(PlaceholderInfluxBucket, s.MetricsBucket).
		Set(PlaceholderProject, s.Project)
}
