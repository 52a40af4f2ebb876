// Package api exposes the scheduler over HTTP: an on-demand cycle trigger for
// external timers, a health probe and the Prometheus scrape endpoint.
package api

import (
	"errors"
	"net/http"

	"github.com/ecociel/escalator/domain"
	"github.com/ecociel/escalator/uc"
	restful "github.com/emicklei/go-restful/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type Resource struct {
	cycle uc.RunCycleUseCase
	log   *zap.SugaredLogger
}

func NewResource(cycle uc.RunCycleUseCase, log *zap.SugaredLogger) *Resource {
	return &Resource{cycle: cycle, log: log}
}

// NewContainer wires the resource and the metrics handler into one container.
func NewContainer(r *Resource, gatherer prometheus.Gatherer) *restful.Container {
	c := restful.NewContainer()
	c.Add(r.WebService())
	c.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return c
}

func (r *Resource) WebService() *restful.WebService {
	ws := new(restful.WebService)
	ws.Path("/v1").Produces(restful.MIME_JSON)

	ws.Route(ws.POST("/cycles").To(r.runCycle).
		Doc("run one escalation cycle").
		Writes(domain.CycleReport{}).
		Returns(http.StatusOK, "OK", domain.CycleReport{}).
		Returns(http.StatusConflict, "cycle running elsewhere", nil).
		Returns(http.StatusInternalServerError, "cycle failed", nil))

	ws.Route(ws.GET("/healthz").To(r.health).
		Doc("liveness probe"))
	return ws
}

type status struct {
	Status string `json:"status"`
}

func (r *Resource) runCycle(req *restful.Request, resp *restful.Response) {
	report, err := r.cycle(req.Request.Context())
	switch {
	case errors.Is(err, uc.ErrCycleInProgress):
		_ = resp.WriteErrorString(http.StatusConflict, err.Error())
	case err != nil:
		r.log.Warnw("triggered cycle failed", "error", err)
		_ = resp.WriteErrorString(http.StatusInternalServerError, err.Error())
	default:
		_ = resp.WriteHeaderAndEntity(http.StatusOK, report)
	}
}

func (r *Resource) health(_ *restful.Request, resp *restful.Response) {
	_ = resp.WriteEntity(status{Status: "ok"})
}
