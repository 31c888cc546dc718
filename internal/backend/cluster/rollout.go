package cluster

import (
	"context"
	"fmt"
	"time"

	"github.com/example/cosyctl/internal/deployerr"
	"github.com/example/cosyctl/internal/health"
	"github.com/example/cosyctl/internal/kube"
	"github.com/go-logr/logr"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/utils/clock"
)

// rolloutProbe reports a workload ready once the controller observed the
// current generation and every desired replica is updated and ready.
type rolloutProbe struct {
	client    *kube.Client
	namespace string
	w         workload
}

func (p rolloutProbe) String() string { return p.w.String() }

func (p rolloutProbe) Check(ctx context.Context) error {
	obj, err := p.client.Dynamic.Resource(p.w.Resource).Namespace(p.namespace).Get(ctx, p.w.Name, metav1.GetOptions{})
	if err != nil {
		return err
	}
	return rolloutComplete(obj)
}

func rolloutComplete(obj *unstructured.Unstructured) error {
	num := func(fields ...string) int64 {
		v, _, _ := unstructured.NestedInt64(obj.Object, fields...)
		return v
	}
	desired, found, _ := unstructured.NestedInt64(obj.Object, "spec", "replicas")
	if !found {
		desired = 1
	}
	if observed := num("status", "observedGeneration"); observed < obj.GetGeneration() {
		return fmt.Errorf("waiting for controller to observe generation %d (seen %d)", obj.GetGeneration(), observed)
	}
	if updated := num("status", "updatedReplicas"); updated < desired {
		return fmt.Errorf("%d of %d replicas updated", updated, desired)
	}
	if ready := num("status", "readyReplicas"); ready < desired {
		return fmt.Errorf("%d of %d replicas ready", ready, desired)
	}
	if obj.GetKind() == "Deployment" {
		if available := num("status", "availableReplicas"); available < desired {
			return fmt.Errorf("%d of %d replicas available", available, desired)
		}
	}
	return nil
}

// rolloutAttempts converts a timeout into gate attempts, rounding up.
func rolloutAttempts(timeout, poll time.Duration) int {
	if poll <= 0 {
		return 1
	}
	n := int((timeout + poll - 1) / poll)
	if n < 1 {
		n = 1
	}
	return n
}

func awaitRollout(ctx context.Context, client *kube.Client, namespace string, w workload, poll, timeout time.Duration, clk clock.Clock, log logr.Logger) error {
	gate := health.Gate{
		Interval:    poll,
		MaxAttempts: rolloutAttempts(timeout, poll),
		Clock:       clk,
		Log:         log,
	}
	res, err := gate.Await(ctx, rolloutProbe{client: client, namespace: namespace, w: w})
	if err != nil {
		return err
	}
	if res.Outcome == health.Timeout {
		return deployerr.New(deployerr.HealthTimeout, fmt.Errorf("%s not rolled out after %s: %v", w, res.Elapsed, res.LastErr)).
			WithHint("inspect it with kubectl -n %s describe %s", namespace, w)
	}
	log.Info("workload ready", "workload", w.String(), "elapsed", res.Elapsed.String())
	return nil
}
