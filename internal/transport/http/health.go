package transporthttp

import (
	"net/http"

	"go.uber.org/zap"
)

func (d *ServerDeps) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (d *ServerDeps) HandleReadyz(w http.ResponseWriter, r *http.Request) {
	if err := d.Store.Ready(r.Context()); err != nil {
		d.Log.Warn("readiness check failed", zap.Error(err))
		WriteProblem(w, http.StatusServiceUnavailable, "not ready", "event store not reachable", nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
