package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with a custom registry", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithRegistry(registry), WithNamespace("test"), WithSubsystem("unit"))

			Convey("Then metrics are registered on it", func() {
				So(manager.Registry(), ShouldEqual, registry)
				manager.RecordCategoryBuilt()
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				So(len(families), ShouldBeGreaterThan, 0)
				So(families[0].GetName(), ShouldStartWith, "test_unit_")
			})
		})

		Convey("When creating two managers with defaults", func() {
			Convey("Then they do not collide", func() {
				So(func() {
					NewManager()
					NewManager()
				}, ShouldNotPanic)
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given a metrics manager", t, func() {
		manager := NewManager(WithRegistry(prometheus.NewRegistry()))

		Convey("When generation runs finish", func() {
			manager.RecordGeneration("complete", 2*time.Second)
			manager.RecordGeneration("complete", time.Second)
			manager.RecordGeneration("error", time.Second)

			Convey("Then runs are counted per outcome", func() {
				So(testutil.ToFloat64(manager.generationRuns.WithLabelValues("complete")), ShouldEqual, 2)
				So(testutil.ToFloat64(manager.generationRuns.WithLabelValues("error")), ShouldEqual, 1)
			})
		})

		Convey("When matches change", func() {
			manager.RecordMatchUpdate("result")
			manager.RecordMatchUpdate("override")
			manager.RecordCascadeVoided(3)
			manager.RecordCascadeVoided(0)

			Convey("Then updates and voided matches are counted", func() {
				So(testutil.ToFloat64(manager.matchUpdates.WithLabelValues("result")), ShouldEqual, 1)
				So(testutil.ToFloat64(manager.cascadeVoided), ShouldEqual, 3)
			})
		})

		Convey("When live connections open and close", func() {
			manager.LiveConnectionOpened()
			manager.LiveConnectionOpened()
			manager.LiveConnectionClosed()

			Convey("Then the gauge follows", func() {
				So(testutil.ToFloat64(manager.liveConnections), ShouldEqual, 1)
			})
		})
	})
}

func TestMetricsMiddleware(t *testing.T) {
	Convey("Given a router instrumented by the middleware", t, func() {
		manager := NewManager(WithRegistry(prometheus.NewRegistry()))
		r := chi.NewRouter()
		r.Use(manager.Middleware)
		r.Get("/brackets/{id}", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTeapot)
		})
		r.Handle("/metrics", manager.Handler())

		Convey("When requests hit a parameterised route", func() {
			for _, id := range []string{"a", "b"} {
				r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/brackets/"+id, nil))
			}

			Convey("Then they share the route pattern label", func() {
				counter := manager.httpRequests.WithLabelValues("/brackets/{id}", http.MethodGet, "418")
				So(testutil.ToFloat64(counter), ShouldEqual, 2)
			})

			Convey("Then the metrics endpoint exposes them", func() {
				rec := httptest.NewRecorder()
				r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
				So(rec.Code, ShouldEqual, http.StatusOK)
				So(strings.Contains(rec.Body.String(), "dojo_brackets_http_requests_total"), ShouldBeTrue)
			})
		})
	})
}
