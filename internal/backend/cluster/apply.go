package cluster

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/example/cosyctl/internal/deployerr"
	"github.com/example/cosyctl/internal/kube"
	"github.com/go-logr/logr"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/meta"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	utilyaml "k8s.io/apimachinery/pkg/util/yaml"
	"k8s.io/client-go/dynamic"
	"sigs.k8s.io/yaml"
)

// workload is a Deployment or StatefulSet whose rollout is awaited.
type workload struct {
	Kind     string
	Name     string
	Resource schema.GroupVersionResource
}

func (w workload) String() string { return fmt.Sprintf("%s/%s", w.Kind, w.Name) }

type applier struct {
	client    *kube.Client
	namespace string
	log       logr.Logger
}

// decodeDocuments splits a multi-document YAML stream into objects. Empty
// documents are skipped.
func decodeDocuments(data []byte) ([]*unstructured.Unstructured, error) {
	reader := utilyaml.NewYAMLReader(bufio.NewReader(bytes.NewReader(data)))
	var objs []*unstructured.Unstructured
	for {
		doc, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return objs, nil
		}
		if err != nil {
			return nil, err
		}
		if len(bytes.TrimSpace(doc)) == 0 {
			continue
		}
		raw, err := yaml.YAMLToJSON(doc)
		if err != nil {
			return nil, err
		}
		if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
			continue
		}
		obj := &unstructured.Unstructured{}
		if err := obj.UnmarshalJSON(raw); err != nil {
			return nil, err
		}
		objs = append(objs, obj)
	}
}

// applyDocuments creates or updates every object in data and returns the
// workloads among them.
func (a applier) applyDocuments(ctx context.Context, group string, data []byte) ([]workload, error) {
	objs, err := decodeDocuments(data)
	if err != nil {
		return nil, deployerr.New(deployerr.BackendCommandFailure, fmt.Errorf("decode %s manifests: %w", group, err))
	}
	var out []workload
	for _, obj := range objs {
		gvk := obj.GroupVersionKind()
		mapping, err := a.client.RESTMapper.RESTMapping(gvk.GroupKind(), gvk.Version)
		if err != nil {
			return out, deployerr.New(deployerr.BackendCommandFailure, fmt.Errorf("%s: resolve %s: %w", group, gvk, err))
		}
		var ri dynamic.ResourceInterface = a.client.Dynamic.Resource(mapping.Resource)
		if mapping.Scope.Name() == meta.RESTScopeNameNamespace {
			obj.SetNamespace(a.namespace)
			ri = a.client.Dynamic.Resource(mapping.Resource).Namespace(a.namespace)
		}
		objLabels := obj.GetLabels()
		if objLabels == nil {
			objLabels = map[string]string{}
		}
		objLabels[PartOfLabel] = "cosy"
		obj.SetLabels(objLabels)

		if err := createOrUpdate(ctx, ri, obj); err != nil {
			return out, deployerr.New(deployerr.BackendCommandFailure, fmt.Errorf("%s: apply %s %s: %w", group, gvk.Kind, obj.GetName(), err))
		}
		a.log.V(1).Info("object applied", "group", group, "kind", gvk.Kind, "name", obj.GetName())
		switch gvk.Kind {
		case "Deployment", "StatefulSet":
			out = append(out, workload{Kind: gvk.Kind, Name: obj.GetName(), Resource: mapping.Resource})
		}
	}
	return out, nil
}

func createOrUpdate(ctx context.Context, ri dynamic.ResourceInterface, obj *unstructured.Unstructured) error {
	existing, err := ri.Get(ctx, obj.GetName(), metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		_, err = ri.Create(ctx, obj, metav1.CreateOptions{FieldManager: FieldManager})
		return err
	}
	if err != nil {
		return err
	}
	obj.SetResourceVersion(existing.GetResourceVersion())
	if obj.GetKind() == "Service" {
		// Allocated cluster IPs are immutable.
		if ip, found, _ := unstructured.NestedString(existing.Object, "spec", "clusterIP"); found {
			if _, set, _ := unstructured.NestedString(obj.Object, "spec", "clusterIP"); !set {
				_ = unstructured.SetNestedField(obj.Object, ip, "spec", "clusterIP")
			}
		}
	}
	_, err = ri.Update(ctx, obj, metav1.UpdateOptions{FieldManager: FieldManager})
	return err
}
