package compose

import (
	"context"
	"fmt"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
)

// influxReady asks the metrics store whether it finished starting. No token
// is needed for the readiness endpoint.
func influxReady(ctx context.Context, url string) error {
	client := influxdb2.NewClient(url, "")
	defer client.Close()
	ready, err := client.Ready(ctx)
	if err != nil {
		return fmt.Errorf("metrics store at %s is not ready: %w", url, err)
	}
	if ready != nil && ready.Status != nil && string(*ready.Status) != "ready" {
		return fmt.Errorf("metrics store at %s reports status %s", url, *ready.Status)
	}
	return nil
}
