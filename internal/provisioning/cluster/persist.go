package cluster

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/imamik/metalboot/internal/provisioning"
	"github.com/imamik/metalboot/internal/util/labels"
	"github.com/imamik/metalboot/internal/util/naming"
)

const (
	credentialDirMode  = 0o700
	credentialFileMode = 0o600
)

// Persist writes the credentials to the output directory and, when
// configured, mirrors them into the management cluster and object storage.
// Only the local write is fatal.
func Persist(ctx *provisioning.Context) error {
	files := map[string][]byte{
		naming.KubeconfigFile: ctx.State.Kubeconfig,
	}
	if len(ctx.State.TalosConfig) > 0 {
		files[naming.TalosconfigFile] = ctx.State.TalosConfig
	}

	path, err := WriteCredentials(ctx.Config.Cluster.OutputDir, files)
	if err != nil {
		return fmt.Errorf("failed to persist credentials: %w", err)
	}
	ctx.State.CredentialsPath = path
	provisioning.LogResource(ctx.Observer, verifyPhase, "file", path, "created")

	if ctx.Secrets != nil {
		if err := storeSecret(ctx, files); err != nil {
			ctx.Warn(verifyPhase, "credentials not stored in secret %s/%s: %v",
				ctx.Config.Cluster.SecretNamespace, ctx.Config.Cluster.SecretName, err)
		}
	}

	if ctx.Archive != nil {
		keys, err := ctx.Archive.Store(ctx, ctx.Config.ClusterName, files)
		if err != nil {
			ctx.Warn(verifyPhase, "credentials not archived: %v", err)
		} else {
			ctx.State.ArchivedKeys = keys
			for _, k := range keys {
				provisioning.LogResource(ctx.Observer, verifyPhase, "object", k, "created")
			}
		}
	}
	return nil
}

// WriteCredentials writes files into dir with owner-only permissions and
// returns the kubeconfig path.
func WriteCredentials(dir string, files map[string][]byte) (string, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, credentialDirMode); err != nil {
		return "", err
	}
	for name, data := range files {
		if err := writeFileAtomic(filepath.Join(dir, name), data); err != nil {
			return "", err
		}
	}
	return filepath.Join(dir, naming.KubeconfigFile), nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+"-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // no-op after rename

	if err := tmp.Chmod(credentialFileMode); err != nil {
		tmp.Close() //nolint:errcheck
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close() //nolint:errcheck
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func storeSecret(ctx *provisioning.Context, files map[string][]byte) error {
	ns, name := ctx.Config.Cluster.SecretNamespace, ctx.Config.Cluster.SecretName
	if err := ctx.Secrets.EnsureNamespace(ctx, ns); err != nil {
		return err
	}
	lbls := labels.NewLabelBuilder(ctx.Config.ClusterName).Build()
	if err := ctx.Secrets.CreateOrUpdateSecret(ctx, ns, name, files, lbls); err != nil {
		return err
	}
	provisioning.LogResource(ctx.Observer, verifyPhase, "secret", ns+"/"+name, "updated")
	return nil
}
