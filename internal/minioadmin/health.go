package minioadmin

import (
	"context"
	"net/http"
	"strings"

	logf "sigs.k8s.io/controller-runtime/pkg/log"
)

// IsReady reports whether the MinIO server at endpoint answers its liveness probe.
func IsReady(ctx context.Context, endpoint string) bool {
	logger := logf.Log.WithName("minioadmin").WithValues("endpoint", endpoint)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimSuffix(endpoint, "/")+"/minio/health/live", nil)
	if err != nil {
		logger.Error(err, "failed to build health request")
		return false
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		logger.V(1).Info("minio not ready yet", "error", err.Error())
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		logger.V(1).Info("minio not ready yet", "status", resp.StatusCode)
		return false
	}
	return true
}
