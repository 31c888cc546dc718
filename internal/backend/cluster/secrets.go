package cluster

import (
	"context"
	"fmt"

	"github.com/example/cosyctl/internal/config"
	"github.com/example/cosyctl/internal/credentials"
	"github.com/example/cosyctl/internal/deployerr"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
)

// Secret names created in the install namespace.
const (
	SecretPostgres     = "cosy-postgres"
	SecretLoki         = "cosy-loki"
	SecretLokiHtpasswd = "cosy-loki-htpasswd"
	SecretInfluxDB     = "cosy-influxdb"
	SecretAdmin        = "cosy-admin"
)

func labels() map[string]string {
	return map[string]string{PartOfLabel: "cosy", "app.kubernetes.io/managed-by": FieldManager}
}

func ensureNamespace(ctx context.Context, cs kubernetes.Interface, name string) error {
	existing, err := cs.CoreV1().Namespaces().Get(ctx, name, metav1.GetOptions{})
	switch {
	case apierrors.IsNotFound(err):
		ns := &corev1.Namespace{ObjectMeta: metav1.ObjectMeta{Name: name, Labels: labels()}}
		if _, err := cs.CoreV1().Namespaces().Create(ctx, ns, metav1.CreateOptions{FieldManager: FieldManager}); err != nil && !apierrors.IsAlreadyExists(err) {
			return deployerr.New(deployerr.BackendCommandFailure, fmt.Errorf("create namespace %s: %w", name, err))
		}
		return nil
	case err != nil:
		return deployerr.New(deployerr.BackendCommandFailure, fmt.Errorf("get namespace %s: %w", name, err))
	}
	if existing.Status.Phase == corev1.NamespaceTerminating {
		return deployerr.Newf(deployerr.BackendCommandFailure, "namespace %s is still terminating", name).
			WithHint("wait for the previous uninstall to finish, then retry")
	}
	updated := existing.DeepCopy()
	if updated.Labels == nil {
		updated.Labels = map[string]string{}
	}
	for k, v := range labels() {
		updated.Labels[k] = v
	}
	if _, err := cs.CoreV1().Namespaces().Update(ctx, updated, metav1.UpdateOptions{FieldManager: FieldManager}); err != nil {
		return deployerr.New(deployerr.BackendCommandFailure, fmt.Errorf("update namespace %s: %w", name, err))
	}
	return nil
}

func buildSecrets(namespace string, creds credentials.Set, s *config.Settings) []*corev1.Secret {
	db := creds.Get(credentials.Database)
	logs := creds.Get(credentials.LogStore)
	metrics := creds.Get(credentials.MetricsStore)
	admin := creds.Get(credentials.ApplicationAdmin)
	mk := func(name string, data map[string]string) *corev1.Secret {
		return &corev1.Secret{
			ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: namespace, Labels: labels()},
			Type:       corev1.SecretTypeOpaque,
			StringData: data,
		}
	}
	return []*corev1.Secret{
		mk(SecretPostgres, map[string]string{
			"POSTGRES_USER":     db.Username,
			"POSTGRES_PASSWORD": db.Secret,
			"POSTGRES_DB":       credentials.DatabaseUser,
		}),
		mk(SecretLoki, map[string]string{
			"LOKI_USER":     logs.Username,
			"LOKI_PASSWORD": logs.Secret,
		}),
		mk(SecretLokiHtpasswd, map[string]string{
			".htpasswd": logs.DerivedHash + "\n",
		}),
		mk(SecretInfluxDB, map[string]string{
			"INFLUXDB_ADMIN_USER":     metrics.Username,
			"INFLUXDB_ADMIN_PASSWORD": metrics.Secret,
			"INFLUXDB_ADMIN_TOKEN":    metrics.Token,
			"INFLUXDB_ORG":            s.MetricsOrg,
			"INFLUXDB_BUCKET":         s.MetricsBucket,
		}),
		mk(SecretAdmin, map[string]string{
			"COSY_ADMIN_USERNAME": admin.Username,
			"COSY_ADMIN_PASSWORD": admin.Secret,
		}),
	}
}

func ensureSecret(ctx context.Context, cs kubernetes.Interface, secret *corev1.Secret) error {
	api := cs.CoreV1().Secrets(secret.Namespace)
	existing, err := api.Get(ctx, secret.Name, metav1.GetOptions{})
	switch {
	case apierrors.IsNotFound(err):
		if _, err := api.Create(ctx, secret, metav1.CreateOptions{FieldManager: FieldManager}); err != nil {
			return deployerr.New(deployerr.BackendCommandFailure, fmt.Errorf("create secret %s: %w", secret.Name, err))
		}
		return nil
	case err != nil:
		return deployerr.New(deployerr.BackendCommandFailure, fmt.Errorf("get secret %s: %w", secret.Name, err))
	}
	updated := secret.DeepCopy()
	updated.ResourceVersion = existing.ResourceVersion
	if _, err := api.Update(ctx, updated, metav1.UpdateOptions{FieldManager: FieldManager}); err != nil {
		return deployerr.New(deployerr.BackendCommandFailure, fmt.Errorf("update secret %s: %w", secret.Name, err))
	}
	return nil
}
