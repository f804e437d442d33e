package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/okian/noderank/internal/adapters/artifact"
	"github.com/okian/noderank/internal/adapters/http/api"
	"github.com/okian/noderank/internal/adapters/mlp"
	"github.com/okian/noderank/internal/adapters/repository"
	service "github.com/okian/noderank/internal/app"
	"github.com/okian/noderank/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
	"github.com/spf13/afero"
)

func TestModelRoutesEndToEnd(t *testing.T) {
	Convey("Given the API over a started service", t, func() {
		ctx := context.Background()
		svc := service.New(
			service.WithWorkerCount(2),
			service.WithRecordStore(repository.NewMemoryStore()),
			service.WithArtifactStore(artifact.NewStore("trained", artifact.WithFs(afero.NewMemMapFs()))),
			service.WithPredictorFactory(mlp.NewFactory(mlp.WithSeed(11))),
		)
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop(ctx)

		mux := http.NewServeMux()
		api.NewServer(svc, svc).Register(ctx, mux)

		Convey("A model can be created, trained, ranked, downloaded and deleted", func() {
			w := do(mux, http.MethodPost, "/models", `{"name":"M1"}`)
			So(w.Code, ShouldEqual, http.StatusCreated)
			var rec model.Record
			So(json.Unmarshal(w.Body.Bytes(), &rec), ShouldBeNil)
			So(rec.Status, ShouldEqual, model.StatusNotTrained)
			So(rec.ArtifactLocation, ShouldEqual, "trained/"+rec.ID)

			w = do(mux, http.MethodPut, "/models/"+rec.ID+"/train", `[
				{"age":5,"depth":2,"noiseLevel":0.4,"nodeType":1,"label":0.9},
				{"age":1,"depth":0,"noiseLevel":0.9,"nodeType":0,"label":0.1}
			]`)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"status":"trained"`)

			w = do(mux, http.MethodPost, "/models/"+rec.ID+"/test", `{"dataset":[
				{"age":5,"depth":2,"noiseLevel":0.4,"nodeType":1},
				{"age":1,"depth":0,"noiseLevel":0.9,"nodeType":0},
				{"age":3,"depth":1,"noiseLevel":0.5,"nodeType":1}
			],"numberOfNodes":2}`)
			So(w.Code, ShouldEqual, http.StatusOK)
			var ranked struct {
				TopNodes []model.ScoredCandidate `json:"topNodes"`
			}
			So(json.Unmarshal(w.Body.Bytes(), &ranked), ShouldBeNil)
			So(ranked.TopNodes, ShouldHaveLength, 2)
			So(ranked.TopNodes[0].Score, ShouldBeGreaterThanOrEqualTo, ranked.TopNodes[1].Score)

			w = do(mux, http.MethodPost, "/models/"+rec.ID+"/test", `{"dataset":[{"age":5,"depth":2,"noiseLevel":0.4,"nodeType":1}],"numberOfNodes":2}`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)

			w = do(mux, http.MethodGet, "/models/"+rec.ID+"/download", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(json.Valid(w.Body.Bytes()), ShouldBeTrue)

			w = do(mux, http.MethodGet, "/models", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, rec.ID)

			w = do(mux, http.MethodDelete, "/models/"+rec.ID, "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"artifactRemoved":true`)

			So(do(mux, http.MethodGet, "/models/"+rec.ID, "").Code, ShouldEqual, http.StatusNotFound)
			So(do(mux, http.MethodGet, "/models/"+rec.ID+"/download", "").Code, ShouldEqual, http.StatusNotFound)
			So(do(mux, http.MethodDelete, "/models/"+rec.ID, "").Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("A blank name is rejected and nothing is stored", func() {
			w := do(mux, http.MethodPost, "/models", `{"name":""}`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(do(mux, http.MethodGet, "/models", "").Body.String(), ShouldStartWith, "[]")
		})
	})
}
