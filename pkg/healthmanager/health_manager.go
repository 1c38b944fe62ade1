package healthmanager

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/kubescape/go-logger"
	"github.com/kubescape/go-logger/helpers"
	"github.com/kubescape/process-monitor/pkg/subscriptionmanager"
)

type HealthManager struct {
	subscriptionManager subscriptionmanager.SubscriptionManagerClient
	port                int
	srv                 *http.Server
}

func NewHealthManager(port int) *HealthManager {
	return &HealthManager{
		port: port,
	}
}

func (h *HealthManager) SetSubscriptionManager(subscriptionManager subscriptionmanager.SubscriptionManagerClient) {
	h.subscriptionManager = subscriptionManager
}

func (h *HealthManager) Start(ctx context.Context) {
	mux := http.NewServeMux()
	mux.HandleFunc("/livez", h.livenessProbe)
	mux.HandleFunc("/readyz", h.readinessProbe)
	h.srv = &http.Server{
		Addr:         fmt.Sprintf(":%d", h.port),
		Handler:      mux,
		WriteTimeout: 15 * time.Second,
		ReadTimeout:  15 * time.Second,
	}

	go func() {
		logger.L().Info("starting health manager", helpers.Int("port", h.port))
		if err := h.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.L().Ctx(ctx).Error("failed to start health manager", helpers.Error(err), helpers.Int("port", h.port))
		}
	}()
}

func (h *HealthManager) Stop(ctx context.Context) error {
	if h.srv == nil {
		return nil
	}
	return h.srv.Shutdown(ctx)
}

func (h *HealthManager) livenessProbe(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// readinessProbe reports ready while a subscription is live.
func (h *HealthManager) readinessProbe(w http.ResponseWriter, _ *http.Request) {
	if h.subscriptionManager != nil && h.subscriptionManager.Ready() {
		w.WriteHeader(http.StatusOK)
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
}
