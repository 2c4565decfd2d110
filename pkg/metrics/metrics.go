// Package metrics exposes Prometheus counters for the approval engine
// and serves them on a dedicated listener.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"k8s.io/klog/v2"
)

var (
	// ApprovalsCreated 创建的审批单总数
	ApprovalsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "director",
		Name:      "approvals_created_total",
		Help:      "Total number of approval requests created.",
	})

	// StageActions 各类环节动作的处理次数，按动作和结果区分
	StageActions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "director",
		Name:      "stage_actions_total",
		Help:      "Total number of stage actions processed, by action and outcome.",
	}, []string{"action", "outcome"})

	// ApprovalsFinished 进入终态的审批单数，按终态区分
	ApprovalsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "director",
		Name:      "approvals_finished_total",
		Help:      "Total number of approval requests reaching a terminal status.",
	}, []string{"status"})

	// EscalationReminders 升级提醒发送次数
	EscalationReminders = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "director",
		Name:      "escalation_reminders_total",
		Help:      "Total number of escalation reminders sent for stalled stages.",
	})
)

// Serve blocks serving /metrics on addr until ctx is canceled.
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			klog.Errorf("metrics server shutdown: %v", err)
		}
	}()

	klog.Infof("metrics listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
