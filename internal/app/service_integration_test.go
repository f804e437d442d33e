package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/okian/noderank/internal/adapters/artifact"
	"github.com/okian/noderank/internal/adapters/mlp"
	"github.com/okian/noderank/internal/adapters/repository"
	service "github.com/okian/noderank/internal/app"
	"github.com/okian/noderank/internal/domain/errkind"
	"github.com/okian/noderank/internal/domain/lifecycle"
	"github.com/okian/noderank/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
	"github.com/spf13/afero"
)

func label(v float64) *float64 { return &v }

func trainingSet() []model.FeatureRecord {
	out := make([]model.FeatureRecord, 0, 30)
	for i := 0; i < 30; i++ {
		l := 0.2
		if i%2 == 0 {
			l = 0.8
		}
		out = append(out, model.FeatureRecord{Age: int64(i), Depth: int64(i % 4), NoiseLevel: float64(i%5) / 5, NodeType: int64(i % 2), Label: label(l)})
	}
	return out
}

func newService(t *testing.T) (*service.Service, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	svc := service.New(
		service.WithWorkerCount(4),
		service.WithQueueSize(64),
		service.WithRecordStore(repository.NewMemoryStore()),
		service.WithArtifactStore(artifact.NewStore("trained", artifact.WithFs(fs))),
		service.WithPredictorFactory(mlp.NewFactory(mlp.WithSeed(7))),
		service.WithLifecycleOptions(lifecycle.WithSeed(3), lifecycle.WithTrainEpochs(3)),
	)
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() { svc.Stop(context.Background()) })
	return svc, fs
}

func TestServiceModelFlow(t *testing.T) {
	Convey("Given a started service", t, func() {
		ctx := context.Background()
		svc, fs := newService(t)

		Convey("A model goes through create, train, rank, fetch and delete", func() {
			rec, err := svc.CreateModel(ctx, "M1", nil)
			So(err, ShouldBeNil)
			So(rec.Status, ShouldEqual, model.StatusNotTrained)

			list, err := svc.ListModels(ctx)
			So(err, ShouldBeNil)
			So(list, ShouldHaveLength, 1)

			res, err := svc.TrainModel(ctx, rec.ID, trainingSet())
			So(err, ShouldBeNil)
			So(res.Record.Status, ShouldEqual, model.StatusTrained)
			So(res.Rows, ShouldEqual, 30)

			got, err := svc.GetModel(ctx, rec.ID)
			So(err, ShouldBeNil)
			So(got.Status, ShouldEqual, model.StatusTrained)

			candidates := []model.FeatureRecord{
				{Age: 1, Depth: 0, NoiseLevel: 0.1, NodeType: 0},
				{Age: 20, Depth: 3, NoiseLevel: 0.9, NodeType: 1},
				{Age: 5, Depth: 1, NoiseLevel: 0.5, NodeType: 1},
			}
			ranked, err := svc.RankCandidates(ctx, rec.ID, candidates, 2)
			So(err, ShouldBeNil)
			So(ranked, ShouldHaveLength, 2)
			So(ranked[0].Label, ShouldBeGreaterThanOrEqualTo, ranked[1].Label)

			rc, size, err := svc.FetchArtifact(ctx, rec.ID)
			So(err, ShouldBeNil)
			body, err := io.ReadAll(rc)
			So(rc.Close(), ShouldBeNil)
			So(err, ShouldBeNil)
			So(int64(len(body)), ShouldEqual, size)
			So(json.Valid(body), ShouldBeTrue)

			del, err := svc.DeleteModel(ctx, rec.ID)
			So(err, ShouldBeNil)
			So(del.ArtifactRemoved, ShouldBeTrue)

			exists, err := afero.DirExists(fs, "trained/"+rec.ID)
			So(err, ShouldBeNil)
			So(exists, ShouldBeFalse)

			_, err = svc.GetModel(ctx, rec.ID)
			So(errors.Is(err, errkind.ErrNotFound), ShouldBeTrue)
			_, err = svc.RankCandidates(ctx, rec.ID, candidates, 1)
			So(errors.Is(err, errkind.ErrNotFound), ShouldBeTrue)
		})

		Convey("Validation errors pass through the pool unchanged", func() {
			_, err := svc.CreateModel(ctx, "  ", nil)
			So(errors.Is(err, errkind.ErrValidation), ShouldBeTrue)
		})

		Convey("Concurrent creates each get a record", func() {
			var wg sync.WaitGroup
			errs := make(chan error, 10)
			for i := 0; i < 10; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					_, err := svc.CreateModel(ctx, fmt.Sprintf("M%d", i), nil)
					errs <- err
				}(i)
			}
			wg.Wait()
			close(errs)
			for err := range errs {
				So(err, ShouldBeNil)
			}
			list, err := svc.ListModels(ctx)
			So(err, ShouldBeNil)
			So(list, ShouldHaveLength, 10)
			So(svc.GetStats(ctx)["models"], ShouldEqual, 10)
		})
	})
}
