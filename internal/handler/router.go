package handler

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/goydb/mrindex/internal/controller"
	"github.com/goydb/mrindex/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Router struct {
	Engine *controller.Engine
	Logger logger.Logger
	// Gatherer is served on /metrics, if nil the default registry is used
	Gatherer prometheus.Gatherer
}

func (router Router) Build(r *mux.Router) error {
	b := Base{
		Engine: router.Engine,
		Logger: router.Logger,
	}

	gatherer := router.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Methods("GET").Path("/metrics").Handler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Methods("GET").Path("/_all_dbs").Handler(&DBAll{Base: b})
	r.Methods("GET").Path("/_active_tasks").Handler(&ActiveTasks{Base: b})

	r.Methods("POST").Path("/{db}/_bulk_docs").Handler(&DBDocsBulk{Base: b})

	r.Methods("GET").Path("/{db}/_indexes").Handler(&IndexList{Base: b})
	r.Methods("POST").Path("/{db}/_indexes/_validate").Handler(&IndexValidate{Base: b})
	r.Methods("GET").Path("/{db}/_indexes/{name}/_info").Handler(&IndexInfo{Base: b})
	r.Methods("GET").Path("/{db}/_indexes/{name}/_stale").Handler(&IndexStale{Base: b})
	r.Methods("GET").Path("/{db}/_indexes/{name}/_etag").Handler(&IndexEtag{Base: b})
	r.Methods("GET").Path("/{db}/_indexes/{name}/_referenced").Handler(&IndexReferenced{Base: b})
	r.Methods("GET").Path("/{db}/_indexes/{name}/_errors").Handler(&IndexErrors{Base: b})
	r.Methods("DELETE").Path("/{db}/_indexes/{name}/_errors").Handler(&IndexErrors{Base: b, Clear: true})
	r.Methods("GET").Path("/{db}/_indexes/{name}/_results").Handler(&IndexResults{Base: b})
	r.Methods("GET").Path("/{db}/_indexes/{name}").Handler(&IndexGet{Base: b})
	r.Methods("PUT").Path("/{db}/_indexes/{name}").Handler(&IndexPut{Base: b})
	r.Methods("DELETE").Path("/{db}/_indexes/{name}").Handler(&IndexDelete{Base: b})

	r.Methods("GET").Path("/{db}/{collection}/_all_docs").Handler(&DBDocsAll{Base: b})
	r.Methods("GET").Path("/{db}/{collection}/_changes").Handler(&DBChanges{Base: b})
	r.Methods("GET").Path("/{db}/{collection}/{docid}").Handler(&DBDocGet{Base: b})
	r.Methods("PUT").Path("/{db}/{collection}/{docid}").Handler(&DBDocPut{Base: b})
	r.Methods("DELETE").Path("/{db}/{collection}/{docid}").Handler(&DBDocDelete{Base: b})
	r.Methods("POST").Path("/{db}/{collection}").Handler(&DBDocPut{Base: b})

	r.Methods("GET").Path("/{db}/").Handler(&DBInfo{Base: b})
	r.Methods("GET").Path("/{db}").Handler(&DBInfo{Base: b})
	r.Methods("PUT").Path("/{db}").Handler(&DBCreate{Base: b})
	r.Methods("DELETE").Path("/{db}").Handler(&DBDelete{Base: b})

	r.Methods("GET").Path("/").Handler(&Index{})

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, http.StatusNotFound, "unknown path")
	})

	return nil
}
