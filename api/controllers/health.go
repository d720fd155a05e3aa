package controllers

import (
	"context"
	"net/http"

	"github.com/freshfold/freshfold-backend/api/responses"
	"github.com/freshfold/freshfold-backend/pkg/config"
	"github.com/freshfold/freshfold-backend/pkg/db"
	pkgerrors "github.com/freshfold/freshfold-backend/pkg/errors"
	"github.com/freshfold/freshfold-backend/pkg/logger"
	"github.com/freshfold/freshfold-backend/pkg/storage/gcs"
)

const envHeader = "X-FreshFold-Env"

type pinger interface {
	Ping(ctx context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady pings every hard dependency. A nil pinger means the dependency
// is disabled in this environment and is skipped.
func HealthReady(cfg *config.Config, logg *logger.Logger, dbP db.Pinger, redisP pinger, gcsP gcs.Pinger, pubsubP pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)

		checks := []struct {
			name string
			ping func(context.Context) error
		}{
			{"database", pingFn(dbP)},
			{"redis", pingFn(redisP)},
			{"gcs", pingFn(gcsP)},
			{"pubsub", pingFn(pubsubP)},
		}

		status := map[string]string{}
		for _, check := range checks {
			if check.ping == nil {
				status[check.name] = "skipped"
				continue
			}
			if err := check.ping(r.Context()); err != nil {
				status[check.name] = "down"
				responses.WriteError(r.Context(), logg, w,
					pkgerrors.Wrap(pkgerrors.CodeDependency, err, check.name+" unavailable").WithDetails(status))
				return
			}
			status[check.name] = "ok"
		}

		responses.WriteSuccess(w, status)
	}
}

func pingFn(p pinger) func(context.Context) error {
	if p == nil {
		return nil
	}
	return p.Ping
}
